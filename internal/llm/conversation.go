package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"
)

// ToolDef describes a tool the model may call during a conversation.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Turn is the model's output for one conversation step: any text it wrote
// plus the tool calls it wants executed before it continues.
type Turn struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// Conversation is a multi-turn tool-calling session with a fixed system
// prompt and tool set. Callers alternate Step with AddToolResult until the
// model stops requesting tools.
type Conversation struct {
	client   *Client
	system   string
	tools    []anthropic.ToolUnionUnionParam
	messages []anthropic.MessageParam
	results  []anthropic.ContentBlockParamUnion
}

// NewConversation starts a conversation bound to the given tool set.
func (c *Client) NewConversation(systemPrompt string, tools []ToolDef) *Conversation {
	toolParams := make([]anthropic.ToolUnionUnionParam, len(tools))
	for i, t := range tools {
		var propsRaw interface{}
		if props, ok := t.InputSchema["properties"]; ok {
			propsRaw = props
		}
		schema := map[string]interface{}{
			"type":       "object",
			"properties": propsRaw,
		}
		if required, ok := t.InputSchema["required"]; ok {
			schema["required"] = required
		}
		toolParams[i] = anthropic.ToolParam{
			Name:        anthropic.String(t.Name),
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.F[interface{}](schema),
		}
	}
	return &Conversation{
		client: c,
		system: systemPrompt,
		tools:  toolParams,
	}
}

// AddUser appends a user message.
func (cv *Conversation) AddUser(text string) {
	cv.messages = append(cv.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
}

// AddToolResult records the outcome of an executed tool call. Results are
// flushed as a single user message on the next Step.
func (cv *Conversation) AddToolResult(callID, content string, isError bool) {
	cv.results = append(cv.results, anthropic.NewToolResultBlock(callID, content, isError))
}

// Step sends the conversation and returns the model's next turn.
func (cv *Conversation) Step(ctx context.Context) (*Turn, error) {
	if len(cv.results) > 0 {
		cv.messages = append(cv.messages, anthropic.NewUserMessage(cv.results...))
		cv.results = nil
	}

	params := cv.client.params(cv.system, cv.messages)
	if len(cv.tools) > 0 {
		params.Tools = anthropic.F(cv.tools)
	}

	resp, err := cv.client.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	cv.messages = append(cv.messages, resp.ToParam())

	turn := &Turn{StopReason: string(resp.StopReason)}
	for _, block := range resp.Content {
		switch b := block.AsUnion().(type) {
		case anthropic.TextBlock:
			turn.Text += b.Text
		case anthropic.ToolUseBlock:
			var input map[string]interface{}
			if err := json.Unmarshal(b.Input, &input); err != nil {
				log.Warn().Err(err).Str("tool", b.Name).Msg("failed to parse tool input")
				input = map[string]interface{}{}
			}
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
	}
	return turn, nil
}
