// Package stream transcodes the agent's internal chunk sequence into the
// OpenAI-compatible wire shapes: chat.completion.chunk SSE frames for
// streaming callers, or one aggregated chat.completion object otherwise.
// Side-channel facts (datasets used, generated SQL, tool messages) travel
// as synthetic tool-call deltas and are deduplicated so each fact is sent
// at most once per stream.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/factly/gopie/internal/agent"
	"github.com/factly/gopie/internal/models"
)

const (
	factDatasets     = "datasets_used"
	factSQLQuery     = "sql_query"
	factToolMessages = "tool_messages"

	errorFinishReason = "error"
)

// State tracks one adapter invocation. It is owned by a single request
// and never shared.
type State struct {
	CompletionID string
	Created      int64
	Model        string

	contentSoFar string
	roleSent     bool

	datasetsUsed     map[string]bool
	sqlQueriesSent   map[string]bool
	toolMessagesSent map[string]bool
	toolCallCounter  int

	// finishReason defaults to "stop"; once set to an error-kind value it
	// is never reset to success.
	finishReason string
	errored      bool
}

// NewState initializes adapter state for one response.
func NewState(model string, created int64) *State {
	return &State{
		CompletionID:     "chatcmpl-" + uuid.NewString(),
		Created:          created,
		Model:            model,
		datasetsUsed:     make(map[string]bool),
		sqlQueriesSent:   make(map[string]bool),
		toolMessagesSent: make(map[string]bool),
		finishReason:     "stop",
	}
}

// Content returns the accumulated text so far.
func (s *State) Content() string { return s.contentSoFar }

// FinishReason returns the current finish reason.
func (s *State) FinishReason() string { return s.finishReason }

// SetError records an upstream failure. The finish reason stays an
// error-kind value for the remainder of the stream.
func (s *State) SetError() {
	s.errored = true
	s.finishReason = errorFinishReason
}

// nextCallID mints a unique per-stream tool-call identifier.
func (s *State) nextCallID() string {
	id := fmt.Sprintf("call_%d", s.toolCallCounter)
	s.toolCallCounter++
	return id
}

// newDatasets filters out dataset names already emitted this stream.
func (s *State) newDatasets(names []string) []string {
	var fresh []string
	for _, n := range names {
		if n != "" && !s.datasetsUsed[n] {
			s.datasetsUsed[n] = true
			fresh = append(fresh, n)
		}
	}
	return fresh
}

func (s *State) newSQLQueries(queries []string) []string {
	var fresh []string
	for _, q := range queries {
		if q != "" && !s.sqlQueriesSent[q] {
			s.sqlQueriesSent[q] = true
			fresh = append(fresh, q)
		}
	}
	return fresh
}

func (s *State) newToolMessages(messages []string) []string {
	var fresh []string
	for _, m := range messages {
		if m != "" && !s.toolMessagesSent[m] {
			s.toolMessagesSent[m] = true
			fresh = append(fresh, m)
		}
	}
	return fresh
}

// Frames transcodes one internal chunk into zero or more wire frames.
// Content and each fact category travel in separate frames so every
// tool-call delta carries exactly one synthetic call.
func (s *State) Frames(chunk agent.Chunk) []models.ChatCompletionChunk {
	var frames []models.ChatCompletionChunk

	if chunk.Err != nil {
		s.SetError()
	}

	if chunk.Content != "" {
		delta := models.ChunkDelta{Content: chunk.Content}
		// Only the first content-bearing frame names the assistant role.
		if !s.roleSent {
			delta.Role = "assistant"
			s.roleSent = true
		}
		s.contentSoFar += chunk.Content
		frames = append(frames, s.frame(delta))
	}

	if fresh := s.newDatasets(chunk.Datasets); len(fresh) > 0 {
		frames = append(frames, s.factFrame(factDatasets, map[string]any{"datasets": fresh}))
	}
	if fresh := s.newSQLQueries(chunk.SQLQueries); len(fresh) > 0 {
		frames = append(frames, s.factFrame(factSQLQuery, map[string]any{"sql_queries": fresh}))
	}
	if fresh := s.newToolMessages(chunk.ToolMessages); len(fresh) > 0 {
		frames = append(frames, s.factFrame(factToolMessages, map[string]any{"messages": fresh}))
	}

	return frames
}

// FinalFrame is the single closing frame carrying the finish reason.
func (s *State) FinalFrame() models.ChatCompletionChunk {
	f := s.frame(models.ChunkDelta{})
	f.Choices[0].FinishReason = &s.finishReason
	return f
}

func (s *State) frame(delta models.ChunkDelta) models.ChatCompletionChunk {
	return models.ChatCompletionChunk{
		ID:      s.CompletionID,
		Object:  "chat.completion.chunk",
		Created: s.Created,
		Model:   s.Model,
		Choices: []models.ChunkChoice{{Index: 0, Delta: delta}},
	}
}

func (s *State) factFrame(function string, payload map[string]any) models.ChatCompletionChunk {
	args, err := json.Marshal(payload)
	if err != nil {
		args = []byte("{}")
	}
	return s.frame(models.ChunkDelta{
		ToolCalls: []models.ChunkToolCall{{
			Index: 0,
			ID:    s.nextCallID(),
			Type:  "function",
			Function: models.FunctionCall{
				Name:      function,
				Arguments: string(args),
			},
		}},
	})
}
