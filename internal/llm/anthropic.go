// Package llm wraps the Anthropic SDK behind small, node-oriented
// primitives: plain completions, streaming completions and a multi-turn
// tool-calling conversation. Agent nodes never touch SDK types directly.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// Client is a chat-completion-capable model handle.
type Client struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// New creates a client backed by Anthropic Claude or a compatible provider
// behind a custom base URL.
func New(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		client:    client,
		model:     model,
		maxTokens: 4096,
	}
}

// Model returns the underlying model identifier.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) params(system string, messages []anthropic.MessageParam) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(c.model)),
		MaxTokens: anthropic.F(int64(c.maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}
	return params
}

// Complete sends a single-turn prompt and returns the response text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	resp, err := c.client.Messages.New(ctx, c.params(systemPrompt, messages))
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	log.Debug().
		Dur("duration", time.Since(start)).
		Str("stop_reason", string(resp.StopReason)).
		Int("text_len", len(text)).
		Msg("llm completion")

	return text, nil
}

// CompleteStream sends a single-turn prompt and invokes onDelta for every
// text fragment as it arrives. Returns the full accumulated text.
func (c *Client) CompleteStream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(string)) (string, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	stream := c.client.Messages.NewStreaming(ctx, c.params(systemPrompt, messages))

	var full string
	for stream.Next() {
		event := stream.Current()
		switch delta := event.Delta.(type) {
		case anthropic.ContentBlockDeltaEventDelta:
			if delta.Text != "" {
				full += delta.Text
				onDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return full, fmt.Errorf("LLM stream failed: %w", err)
	}
	return full, nil
}
