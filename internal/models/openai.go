package models

import (
	"sort"
	"strings"
)

// ChatMessage is a single message in an OpenAI-compatible conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the inbound request for POST /v1/chat/completions.
// Metadata keys prefixed "project_id" / "dataset_id" carry comma-separated
// scope filters for dataset search.
type ChatCompletionRequest struct {
	Messages []ChatMessage     `json:"messages"`
	Model    string            `json:"model"`
	User     string            `json:"user,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Stream   bool              `json:"stream"`
}

// LastUserMessage returns the content of the most recent user message.
func (r *ChatCompletionRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// History returns every message preceding the last user message.
func (r *ChatCompletionRequest) History() []ChatMessage {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[:i]
		}
	}
	return r.Messages
}

// ParseMetadata extracts project and dataset scope filters from request
// metadata. All keys starting with "project_id" (project_id, project_id_1,
// ...) are merged, split on commas, trimmed, with empty entries dropped.
// Same for "dataset_id". Returns empty slices when metadata is absent.
func (r *ChatCompletionRequest) ParseMetadata() (projectIDs, datasetIDs []string) {
	projectIDs = collectMetadataList(r.Metadata, "project_id")
	datasetIDs = collectMetadataList(r.Metadata, "dataset_id")
	return projectIDs, datasetIDs
}

func collectMetadataList(metadata map[string]string, prefix string) []string {
	out := []string{}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	// map iteration is random; merge in key order so output is deterministic
	sort.Strings(keys)
	for _, k := range keys {
		for _, part := range strings.Split(metadata[k], ",") {
			if v := strings.TrimSpace(part); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// FunctionCall is the function payload of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is an OpenAI-compatible tool call entry.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ResponseMessage is the assistant message of a non-streaming completion.
type ResponseMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// Usage is the token accounting block. The agent does not meter tokens, so
// counts are zero; the block is present for client compatibility.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletion is the non-streaming response object.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ChunkDelta is the incremental delta of a streaming chunk. Role is set only
// on the first content-bearing chunk of a stream.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ChunkToolCall `json:"tool_calls,omitempty"`
}

// ChunkToolCall is a tool call delta inside a streaming chunk.
type ChunkToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ChunkChoice is one choice of a streaming chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one chat.completion.chunk frame.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ModelInfo is one entry of GET /v1/models.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the response of GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

var validFinishReasons = map[string]bool{
	"stop":           true,
	"length":         true,
	"tool_calls":     true,
	"content_filter": true,
	"function_call":  true,
}

// CoerceFinishReason maps an internal finish reason onto the closed set the
// chat-completions protocol allows. Anything unrecognized becomes "stop".
func CoerceFinishReason(reason string) string {
	if validFinishReasons[reason] {
		return reason
	}
	return "stop"
}
