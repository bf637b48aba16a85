package provider

// BuiltinProfiles returns the static provider table. Prices are USD per
// 1M tokens and track each vendor's published list pricing; they are
// inputs to routing heuristics, not billing ground truth.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			ID:          SiliconFlow,
			DisplayName: "SiliconFlow",
			BaseURL:     "https://api.siliconflow.cn/v1",
			Models: map[Task]string{
				TaskScan:       "Qwen/Qwen2.5-Coder-32B-Instruct",
				TaskPatch:      "deepseek-ai/DeepSeek-V3",
				TaskEmbeddings: "BAAI/bge-m3",
				TaskExplain:    "Qwen/Qwen2.5-7B-Instruct",
			},
			InputPricePer1M:  0.07,
			OutputPricePer1M: 0.28,
			ContextWindow:    131072,
			MaxRetries:       3,
			Priority:         1,
		},
		{
			ID:          Kimi,
			DisplayName: "Kimi (Moonshot)",
			BaseURL:     "https://api.moonshot.ai/v1",
			Models: map[Task]string{
				TaskScan:    "kimi-k2-0905-preview",
				TaskPatch:   "kimi-k2-0905-preview",
				TaskExplain: "moonshot-v1-32k",
			},
			InputPricePer1M:  0.15,
			OutputPricePer1M: 2.50,
			ContextWindow:    262144,
			MaxRetries:       3,
			Priority:         2,
		},
		{
			ID:          OpenAI,
			DisplayName: "OpenAI",
			BaseURL:     "https://api.openai.com/v1",
			Models: map[Task]string{
				TaskScan:       "gpt-4o-mini",
				TaskPatch:      "gpt-4o",
				TaskEmbeddings: "text-embedding-3-small",
				TaskExplain:    "gpt-4o-mini",
			},
			InputPricePer1M:  0.15,
			OutputPricePer1M: 0.60,
			ContextWindow:    128000,
			MaxRetries:       3,
			Priority:         3,
		},
		{
			ID:          Anthropic,
			DisplayName: "Anthropic",
			BaseURL:     "https://api.anthropic.com/v1",
			Models: map[Task]string{
				TaskScan:    "claude-3-5-haiku-20241022",
				TaskPatch:   "claude-sonnet-4-5-20250929",
				TaskExplain: "claude-3-5-haiku-20241022",
			},
			InputPricePer1M:  3.00,
			OutputPricePer1M: 15.00,
			ContextWindow:    200000,
			MaxRetries:       3,
			Priority:         4,
		},
		{
			ID:          OpenRouter,
			DisplayName: "OpenRouter",
			BaseURL:     "https://openrouter.ai/api/v1",
			Models: map[Task]string{
				TaskScan:       "qwen/qwen-2.5-coder-32b-instruct",
				TaskPatch:      "anthropic/claude-sonnet-4.5",
				TaskEmbeddings: "openai/text-embedding-3-small",
				TaskExplain:    "openai/gpt-4o-mini",
			},
			InputPricePer1M:  0.20,
			OutputPricePer1M: 0.80,
			ContextWindow:    131072,
			MaxRetries:       2,
			Priority:         5,
		},
	}
}
