package stream

import (
	"encoding/json"

	"github.com/factly/gopie/internal/agent"
	"github.com/factly/gopie/internal/models"
)

// Aggregator collects the chunk sequence for a non-streaming caller and
// produces one chat.completion object. Facts are deduplicated the same
// way as in streaming mode, but the response carries at most one tool
// call per fact category.
type Aggregator struct {
	state    *State
	datasets []string
	sql      []string
	toolMsgs []string
}

// NewAggregator wraps adapter state for non-streaming collection.
func NewAggregator(state *State) *Aggregator {
	return &Aggregator{state: state}
}

// Add consumes one internal chunk.
func (a *Aggregator) Add(chunk agent.Chunk) {
	if chunk.Err != nil {
		a.state.SetError()
	}
	a.state.contentSoFar += chunk.Content
	a.datasets = append(a.datasets, a.state.newDatasets(chunk.Datasets)...)
	a.sql = append(a.sql, a.state.newSQLQueries(chunk.SQLQueries)...)
	a.toolMsgs = append(a.toolMsgs, a.state.newToolMessages(chunk.ToolMessages)...)
}

// Completion builds the final response object. The finish reason is
// coerced to the protocol's allowed set.
func (a *Aggregator) Completion() models.ChatCompletion {
	var toolCalls []models.ToolCall
	if len(a.datasets) > 0 {
		toolCalls = append(toolCalls, a.aggregateCall(factDatasets, map[string]any{"datasets": a.datasets}))
	}
	if len(a.sql) > 0 {
		toolCalls = append(toolCalls, a.aggregateCall(factSQLQuery, map[string]any{"sql_queries": a.sql}))
	}
	if len(a.toolMsgs) > 0 {
		toolCalls = append(toolCalls, a.aggregateCall(factToolMessages, map[string]any{"messages": a.toolMsgs}))
	}

	return models.ChatCompletion{
		ID:      a.state.CompletionID,
		Object:  "chat.completion",
		Created: a.state.Created,
		Model:   a.state.Model,
		Choices: []models.Choice{{
			Index: 0,
			Message: models.ResponseMessage{
				Role:      "assistant",
				Content:   a.state.contentSoFar,
				ToolCalls: toolCalls,
			},
			FinishReason: models.CoerceFinishReason(a.state.finishReason),
		}},
	}
}

func (a *Aggregator) aggregateCall(function string, payload map[string]any) models.ToolCall {
	args, err := json.Marshal(payload)
	if err != nil {
		args = []byte("{}")
	}
	return models.ToolCall{
		ID:   a.state.nextCallID(),
		Type: "function",
		Function: models.FunctionCall{
			Name:      function,
			Arguments: string(args),
		},
	}
}
