// Package client performs the actual wire calls to AI providers. Every
// provider except Anthropic speaks the OpenAI-compatible JSON API
// (POST {base_url}/chat/completions and /embeddings); Anthropic goes
// through the official SDK. The failover executor supplies provider id
// and model, so this package never makes routing decisions of its own.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/complyscan/airouter/internal/failover"
	"github.com/complyscan/airouter/internal/provider"
)

// DefaultTemperature keeps scan and patch output reproducible enough
// to diff across runs.
const DefaultTemperature = 0.2

// maxErrorBody caps how much of a provider error response we quote.
const maxErrorBody = 512

// Client calls providers over HTTP. It is safe for concurrent use.
type Client struct {
	registry *provider.Registry
	http     *http.Client

	// anthropicBase overrides the Anthropic endpoint in tests.
	anthropicBase string
}

// New returns a client that resolves endpoints and keys from reg.
func New(reg *provider.Registry) *Client {
	return &Client{
		registry: reg,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// chatRequest is the OpenAI-compatible completion request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}

type usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage embeddingsUsage `json:"usage"`
}

// embeddingsUsage differs from chat usage: embeddings responses report
// total_tokens, though some gateways also fill prompt_tokens.
type embeddingsUsage struct {
	PromptTokens int64 `json:"prompt_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// tokens prefers total_tokens and falls back to prompt_tokens.
func (u embeddingsUsage) tokens() int64 {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens
}

// EmbeddingResult holds the vectors for one Embed call, in input order.
type EmbeddingResult struct {
	Vectors     [][]float64
	InputTokens int64
}

// Complete sends prompt to the given provider and model and returns the
// first choice's text plus token usage. ctx carries the per-attempt
// timeout set by the failover executor.
func (c *Client) Complete(ctx context.Context, id provider.ID, model, prompt string, maxTokens int) (failover.Result, error) {
	prof, ok := c.registry.Get(id)
	if !ok {
		return failover.Result{}, fmt.Errorf("no profile for provider %s", id)
	}
	if id == provider.Anthropic {
		return c.completeAnthropic(ctx, prof, model, prompt, maxTokens)
	}

	body := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: DefaultTemperature,
	}
	var resp chatResponse
	if err := c.post(ctx, prof, "/chat/completions", body, &resp); err != nil {
		return failover.Result{}, err
	}
	if len(resp.Choices) == 0 {
		return failover.Result{}, fmt.Errorf("%s returned no choices", id)
	}
	return failover.Result{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Embed vectorizes inputs with the given provider and model. Anthropic
// has no embeddings endpoint, so routing policy never sends the
// embeddings task there.
func (c *Client) Embed(ctx context.Context, id provider.ID, model string, inputs []string) (*EmbeddingResult, error) {
	prof, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("no profile for provider %s", id)
	}
	if id == provider.Anthropic {
		return nil, fmt.Errorf("%s does not serve embeddings", id)
	}

	var resp embeddingsResponse
	if err := c.post(ctx, prof, "/embeddings", embeddingsRequest{Model: model, Input: inputs}, &resp); err != nil {
		return nil, err
	}
	vectors := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%s returned embedding index %d out of range", id, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return &EmbeddingResult{Vectors: vectors, InputTokens: resp.Usage.tokens()}, nil
}

// CompletionOperation adapts a prompt into the operation shape the
// failover executor runs, so callers write
// exec.Execute(ctx, task, client.CompletionOperation(prompt, 4096)).
func (c *Client) CompletionOperation(prompt string, maxTokens int) failover.Operation {
	return func(ctx context.Context, id provider.ID, model string) (failover.Result, error) {
		return c.Complete(ctx, id, model, prompt, maxTokens)
	}
}

// EmbeddingOperation adapts embedding inputs into a failover operation.
// The vectors are delivered through out, which must be non-nil.
func (c *Client) EmbeddingOperation(inputs []string, out *EmbeddingResult) failover.Operation {
	return func(ctx context.Context, id provider.ID, model string) (failover.Result, error) {
		res, err := c.Embed(ctx, id, model, inputs)
		if err != nil {
			return failover.Result{}, err
		}
		*out = *res
		return failover.Result{InputTokens: res.InputTokens}, nil
	}
}

// Probe is a cheap liveness check used by the health tracker to test
// whether an open circuit can close: a GET of the provider's model
// listing, which exercises auth and reachability without token spend.
func (c *Client) Probe(ctx context.Context, id provider.ID) error {
	prof, ok := c.registry.Get(id)
	if !ok {
		return fmt.Errorf("no profile for provider %s", id)
	}
	base := prof.BaseURL
	if id == provider.Anthropic && c.anthropicBase != "" {
		base = c.anthropicBase
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return err
	}
	c.authorize(req, prof)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: status %d", id, resp.StatusCode)
	}
	return nil
}

// post sends body to prof.BaseURL+path and decodes the JSON response
// into out. Non-2xx responses become errors quoting the provider's
// error body.
func (c *Client) post(ctx context.Context, prof provider.Profile, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", prof.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, prof.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, prof)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", prof.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s returned status %d: %s", prof.ID, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", prof.ID, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request, prof provider.Profile) {
	if prof.ID == provider.Anthropic {
		req.Header.Set("x-api-key", prof.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
		return
	}
	req.Header.Set("Authorization", "Bearer "+prof.APIKey)
}
