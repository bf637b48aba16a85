package client

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/complyscan/airouter/internal/failover"
	"github.com/complyscan/airouter/internal/provider"
)

// completeAnthropic calls the Messages API through the official SDK and
// flattens the text blocks into a single string.
func (c *Client) completeAnthropic(ctx context.Context, prof provider.Profile, model, prompt string, maxTokens int) (failover.Result, error) {
	opts := []option.RequestOption{option.WithAPIKey(prof.APIKey)}
	if c.anthropicBase != "" {
		opts = append(opts, option.WithBaseURL(c.anthropicBase))
	}
	sdk := anthropic.NewClient(opts...)

	resp, err := sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return failover.Result{}, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return failover.Result{
		Content:      text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
