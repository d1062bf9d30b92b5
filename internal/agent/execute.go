package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/factly/gopie/internal/engine"
	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
)

// execute runs every planned statement independently: one statement's
// failure never aborts the others, and each records either rows or an
// error, never both. Afterwards a replan decision routes recoverable
// failures back through the graph, bounded by the retry cap.
func (a *Agent) execute(ctx context.Context, rn *run, sq *SubQuery) stage {
	if len(sq.SQLQueries) > 0 {
		a.runStatements(ctx, rn, sq)
	}

	failed := firstFailure(sq)
	if failed == "" && rn.cycleError() == "" {
		return stageValidate
	}
	if failed != "" {
		rn.qr.LogError("executor", failed)
	}
	if sq.RetryCount >= a.caps.MaxRetryCount {
		log.Info().Int("retry_count", sq.RetryCount).Msg("replan budget exhausted, proceeding to validation")
		return stageValidate
	}

	switch a.replanDecision(ctx, rn, sq) {
	case "replan":
		sq.RetryCount++
		return stagePlan
	case "reidentify_datasets":
		sq.RetryCount++
		return stageIdentify
	default:
		return stageValidate
	}
}

// runStatements executes the drafts concurrently. Statements are
// independent read-only queries, so no ordering is required; results are
// recorded by input position.
func (a *Agent) runStatements(ctx context.Context, rn *run, sq *SubQuery) {
	if a.querier == nil {
		for i := range sq.SQLQueries {
			sq.SQLQueries[i].Success = false
			sq.SQLQueries[i].Error = "no execution engine configured"
			sq.SQLQueries[i].Result = nil
		}
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i := range sq.SQLQueries {
		q := &sq.SQLQueries[i]
		g.Go(func() error {
			if msg := engine.ValidateSQL(q.SQLQuery); msg != "" {
				q.Success = false
				q.Error = msg
				q.Result = nil
				return nil
			}
			res, err := a.querier.Query(gCtx, q.SQLQuery)
			if err != nil {
				q.Success = false
				q.Error = err.Error()
				q.Result = nil
				return nil
			}
			q.Success = true
			q.Error = ""
			q.Result = res.Rows
			return nil
		})
	}
	_ = g.Wait()

	queries := make([]string, len(sq.SQLQueries))
	for i := range sq.SQLQueries {
		queries[i] = sq.SQLQueries[i].SQLQuery
	}
	rn.emit(Chunk{SQLQueries: queries})
}

func firstFailure(sq *SubQuery) string {
	for i := range sq.SQLQueries {
		if sq.SQLQueries[i].Error != "" {
			return fmt.Sprintf("SQL failed: %s (%s)", sq.SQLQueries[i].SQLQuery, sq.SQLQueries[i].Error)
		}
	}
	return ""
}

// replanDecision asks whether the failure is fixable by replanning,
// requires different datasets, or should proceed to the response anyway.
// Any failure in the decision itself defaults to proceeding.
func (a *Agent) replanDecision(ctx context.Context, rn *run, sq *SubQuery) string {
	var sb strings.Builder
	sb.WriteString("Sub-query: " + sq.QueryText + "\n")
	sb.WriteString(fmt.Sprintf("Retry count: %d of %d\n", sq.RetryCount, a.caps.MaxRetryCount))
	sb.WriteString("Errors so far:\n")
	for _, e := range rn.qr.ErrorLog {
		sb.WriteString("- " + e.Origin + ": " + e.Message + "\n")
	}
	for i := range sq.SQLQueries {
		q := &sq.SQLQueries[i]
		if q.Error != "" {
			sb.WriteString("- failed SQL: " + q.SQLQuery + " (" + q.Error + ")\n")
		} else {
			sb.WriteString(fmt.Sprintf("- succeeded SQL: %s (%d rows)\n", q.SQLQuery, len(q.Result)))
		}
	}

	system := a.prompts.MustGet(prompts.NodeReplanDecision)
	response, err := a.llm.Complete(ctx, system, sb.String())
	if err != nil {
		rn.qr.LogError("executor", "replan decision: "+err.Error())
		return "route_response"
	}

	var out struct {
		Decision  string `json:"decision"`
		Reasoning string `json:"reasoning"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		rn.qr.LogError("executor", "parse replan decision: "+err.Error())
		return "route_response"
	}

	switch out.Decision {
	case "replan", "reidentify_datasets", "route_response":
		sq.SetNodeMessage("replan_decision", out.Reasoning)
		return out.Decision
	default:
		rn.qr.LogError("executor", fmt.Sprintf("unknown replan decision %q", out.Decision))
		return "route_response"
	}
}
