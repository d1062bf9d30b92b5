package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
)

const conversationalConfidenceFloor = 8

// classify decides whether a sub-query needs dataset access. The model may
// call auxiliary tools before deciding, bounded by the tool-call cap.
// Outcomes: terminal conversational resolution, or escalation to dataset
// identification. Any model or parsing failure degrades the sub-query to
// conversational with confidence 3 so the graph always advances.
func (a *Agent) classify(ctx context.Context, rn *run, sq *SubQuery) stage {
	conv := a.llm.Converse(a.prompts.MustGet(prompts.NodeClassify), rn.tools.Defs())
	conv.AddUser(fmt.Sprintf("Chat history:\n%s\nSub-query: %s", rn.history, sq.QueryText))

	toolCalls := 0
	for {
		turn, err := conv.Step(ctx)
		if err != nil {
			return a.degradeClassification(rn, sq, "classifier", err)
		}

		if len(turn.ToolCalls) == 0 {
			return a.finishClassification(rn, sq, turn.Text)
		}

		for _, call := range turn.ToolCalls {
			if toolCalls >= a.caps.MaxToolCalls {
				log.Info().Str("sub_query", sq.QueryText).Msg("tool-call cap reached, resolving as conversational")
				sq.QueryType = QueryTypeConversational
				sq.ConfidenceScore = conversationalConfidenceFloor
				sq.SetNodeMessage("classify", "tool budget exhausted before classification")
				return stageDone
			}
			toolCalls++

			result, err := rn.tools.Invoke(ctx, call.Name, call.Input)
			if err != nil {
				rn.qr.LogError("classifier_tool", err.Error())
				conv.AddToolResult(call.ID, err.Error(), true)
				continue
			}
			sq.ToolResults = append(sq.ToolResults, result)
			rn.emit(Chunk{ToolMessages: []string{result.String()}})
			conv.AddToolResult(call.ID, result.String(), false)
		}
	}
}

func (a *Agent) finishClassification(rn *run, sq *SubQuery, response string) stage {
	var out struct {
		QueryType       string `json:"query_type"`
		ConfidenceScore int    `json:"confidence_score"`
		Reasoning       string `json:"reasoning"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		return a.degradeClassification(rn, sq, "classifier", fmt.Errorf("parse classification: %w", err))
	}

	sq.ConfidenceScore = out.ConfidenceScore
	sq.SetNodeMessage("classify", out.Reasoning)

	switch out.QueryType {
	case string(QueryTypeDataQuery):
		sq.QueryType = QueryTypeDataQuery
		return stageIdentify
	case string(QueryTypeConversational):
		sq.QueryType = QueryTypeConversational
		if out.ConfidenceScore >= conversationalConfidenceFloor {
			return stageDone
		}
		// Low-confidence conversational answers are escalated to dataset
		// search as a safety net.
		return stageIdentify
	default:
		return a.degradeClassification(rn, sq, "classifier", fmt.Errorf("unknown query type %q", out.QueryType))
	}
}

func (a *Agent) degradeClassification(rn *run, sq *SubQuery, origin string, err error) stage {
	rn.qr.LogError(origin, err.Error())
	sq.QueryType = QueryTypeConversational
	sq.ConfidenceScore = 3
	log.Warn().Err(err).Str("sub_query", sq.QueryText).Msg("classification failed, degrading to conversational")
	return stageDone
}
