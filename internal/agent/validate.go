package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
)

// validate judges whether the execution output actually answers the
// sub-query. A no-SQL resolution skips validation entirely. The loop is
// bounded by its own retry counter, independent of the executor's; when
// the budget is spent or the last step errored, routing is forced rather
// than asked for. Unrecognized recommendations fail open: a degraded
// answer beats a stalled request.
func (a *Agent) validate(ctx context.Context, rn *run, sq *SubQuery) stage {
	if sq.NoSQLResponse != "" {
		return stageDone
	}

	a.flagLargeResults(sq)

	if sq.ValidationRetryCount >= a.caps.MaxValidationRetryCount {
		log.Info().Int("validation_retry_count", sq.ValidationRetryCount).Msg("validation budget exhausted, routing to response")
		return stageDone
	}
	if rn.cycleError() != "" {
		return stageDone
	}

	recommendation := a.validationRecommendation(ctx, rn, sq)
	switch recommendation {
	case "replan":
		sq.ValidationRetryCount++
		return stagePlan
	case "reidentify_datasets":
		sq.ValidationRetryCount++
		return stageIdentify
	default:
		return stageDone
	}
}

func (a *Agent) validationRecommendation(ctx context.Context, rn *run, sq *SubQuery) string {
	snapshot, err := json.Marshal(struct {
		QueryText  string         `json:"query_text"`
		QueryType  QueryType      `json:"query_type"`
		TablesUsed []string       `json:"tables_used"`
		SQLQueries []SqlQueryInfo `json:"sql_queries"`
	}{sq.QueryText, sq.QueryType, sq.TablesUsed, summarizeForValidation(sq.SQLQueries)})
	if err != nil {
		rn.qr.LogError("validator", "snapshot sub-query: "+err.Error())
		return "route_response"
	}

	system := a.prompts.MustGet(prompts.NodeValidate)
	response, err := a.llm.Complete(ctx, system, string(snapshot))
	if err != nil {
		rn.qr.LogError("validator", err.Error())
		return "route_response"
	}

	var out struct {
		Recommendation string `json:"recommendation"`
		Reasoning      string `json:"reasoning"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		rn.qr.LogError("validator", "parse recommendation: "+err.Error())
		return "route_response"
	}

	switch out.Recommendation {
	case "route_response", "replan", "reidentify_datasets":
		sq.SetNodeMessage("validate", out.Reasoning)
		return out.Recommendation
	default:
		rn.qr.LogError("validator", fmt.Sprintf("invalid recommendation %q", out.Recommendation))
		return "route_response"
	}
}

// summarizeForValidation caps each result at a handful of rows so the
// validation prompt stays small; large results are judged by shape, not
// content.
func summarizeForValidation(queries []SqlQueryInfo) []SqlQueryInfo {
	const sampleRows = 10
	out := make([]SqlQueryInfo, len(queries))
	for i, q := range queries {
		out[i] = q
		if len(q.Result) > sampleRows {
			out[i].Result = q.Result[:sampleRows]
		}
	}
	return out
}

// flagLargeResults marks statements whose output exceeds the row or byte
// thresholds, signalling summarization instead of raw inclusion.
func (a *Agent) flagLargeResults(sq *SubQuery) {
	for i := range sq.SQLQueries {
		q := &sq.SQLQueries[i]
		if !q.Success {
			continue
		}
		if a.caps.LargeResultRowLimit > 0 && len(q.Result) > a.caps.LargeResultRowLimit {
			q.ContainsLargeResults = true
			continue
		}
		if a.caps.LargeResultByteLimit > 0 {
			if b, err := json.Marshal(q.Result); err == nil && len(b) > a.caps.LargeResultByteLimit {
				q.ContainsLargeResults = true
			}
		}
	}
}

// describeOutcome renders a sub-query's outcome for narrative prompts.
func describeOutcome(sq *SubQuery) string {
	var sb strings.Builder
	sb.WriteString("Sub-query: " + sq.QueryText + "\n")
	sb.WriteString("Type: " + string(sq.QueryType) + "\n")
	if sq.NoSQLResponse != "" {
		sb.WriteString("No SQL was needed: " + sq.NoSQLResponse + "\n")
		return sb.String()
	}
	for i := range sq.SQLQueries {
		q := &sq.SQLQueries[i]
		if q.Error != "" {
			sb.WriteString(fmt.Sprintf("Query %d failed: %s\n", i+1, q.Error))
		} else {
			sb.WriteString(fmt.Sprintf("Query %d returned %d rows\n", i+1, len(q.Result)))
		}
	}
	return sb.String()
}
