package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
)

// interim streams a short narrative about a resolved sub-query when more
// sub-queries remain. Failure framing is chosen by whether the sub-query
// spent its retry budget, and is always user-facing language, never raw
// errors.
func (a *Agent) interim(ctx context.Context, rn *run, sq *SubQuery) {
	node := prompts.NodeInterim
	if sq.RetryBudgetExceeded(a.caps.MaxRetryCount, a.caps.MaxValidationRetryCount) {
		node = prompts.NodeFailureNarrative
	}

	system := a.prompts.MustGet(node)
	user := describeOutcome(sq)
	_, err := a.llm.CompleteStream(ctx, system, user, func(delta string) {
		rn.emit(Chunk{Content: delta})
	})
	if err != nil {
		rn.qr.LogError("router", "interim narrative: "+err.Error())
		return
	}
	rn.emit(Chunk{Content: "\n\n"})
}

// shouldContinue asks whether remaining sub-queries are still worth
// resolving given this one's outcome. The default is to keep going; only
// an explicit end_execution stops early.
func (a *Agent) shouldContinue(ctx context.Context, rn *run, sq *SubQuery) bool {
	remaining := 0
	if i := indexOf(rn.qr.SubQueries, sq); i >= 0 {
		remaining = len(rn.qr.SubQueries) - i - 1
	}

	user := fmt.Sprintf("%s\nRemaining sub-queries: %d\nOriginal request: %s",
		describeOutcome(sq), remaining, rn.qr.OriginalUserQuery)
	system := a.prompts.MustGet(prompts.NodeContinuation)
	response, err := a.llm.Complete(ctx, system, user)
	if err != nil {
		rn.qr.LogError("router", "continuation judgment: "+err.Error())
		return true
	}

	var out struct {
		Decision  string `json:"decision"`
		Reasoning string `json:"reasoning"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		rn.qr.LogError("router", "parse continuation judgment: "+err.Error())
		return true
	}
	if out.Decision == "end_execution" {
		log.Info().Str("reasoning", out.Reasoning).Msg("continuation declined")
		return false
	}
	return true
}

func indexOf(subqueries []*SubQuery, sq *SubQuery) int {
	for i := range subqueries {
		if subqueries[i] == sq {
			return i
		}
	}
	return -1
}
