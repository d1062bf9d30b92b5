package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
)

// decompose splits the user query into at most MaxSubQueries ordered
// sub-queries and appends a SubQuery record for each. Any failure falls
// back to the single original query so the graph always has work.
func (a *Agent) decompose(ctx context.Context, rn *run) {
	texts := a.decomposeTexts(ctx, rn)
	for _, t := range texts {
		rn.qr.AddSubQuery(t)
	}
}

func (a *Agent) decomposeTexts(ctx context.Context, rn *run) []string {
	fallback := []string{rn.req.Query}

	needs, err := a.needsBreakdown(ctx, rn)
	if err != nil {
		rn.qr.LogError("decomposer", err.Error())
		return fallback
	}
	if !needs {
		return fallback
	}

	system := a.prompts.MustGet(prompts.NodeDecompose)
	user := fmt.Sprintf("Chat history:\n%s\nUser query: %s", rn.history, rn.req.Query)
	response, err := a.llm.Complete(ctx, system, user)
	if err != nil {
		rn.qr.LogError("decomposer", err.Error())
		return fallback
	}

	var out struct {
		SubQueries []string `json:"subqueries"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		rn.qr.LogError("decomposer", "parse breakdown response: "+err.Error())
		return fallback
	}

	texts := make([]string, 0, len(out.SubQueries))
	for _, s := range out.SubQueries {
		if t := strings.TrimSpace(s); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		rn.qr.LogError("decomposer", "breakdown returned no sub-queries")
		return fallback
	}
	if len(texts) > a.caps.MaxSubQueries {
		log.Debug().Int("got", len(texts)).Int("cap", a.caps.MaxSubQueries).Msg("truncating sub-queries")
		texts = texts[:a.caps.MaxSubQueries]
	}
	return texts
}

func (a *Agent) needsBreakdown(ctx context.Context, rn *run) (bool, error) {
	system := a.prompts.MustGet(prompts.NodeDecomposeCheck)
	user := fmt.Sprintf("Chat history:\n%s\nUser query: %s", rn.history, rn.req.Query)
	response, err := a.llm.Complete(ctx, system, user)
	if err != nil {
		return false, err
	}
	var out struct {
		NeedsBreakdown bool   `json:"needs_breakdown"`
		Rationale      string `json:"rationale"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		return false, fmt.Errorf("parse breakdown check: %w", err)
	}
	return out.NeedsBreakdown, nil
}
