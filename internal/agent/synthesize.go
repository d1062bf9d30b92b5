package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/engine"
	"github.com/factly/gopie/internal/prompts"
)

const synthesisRowCap = 50

// synthesize streams the final answer from the whole accumulated
// aggregate. The prompt branch is a property of the entire turn: if any
// sub-query retrieved data, the answer is framed as a data answer, with a
// distinct branch when the data queries all came back empty; otherwise
// the conversational framing is used.
func (a *Agent) synthesize(ctx context.Context, rn *run) {
	qr := rn.qr
	if len(qr.SubQueries) == 0 {
		// Malformed aggregate. Surfaced as a structured message, never as
		// an unhandled error reaching the wire.
		rn.emit(Chunk{Content: "I wasn't able to process that request. Could you rephrase it?"})
		rn.emit(Chunk{Err: fmt.Errorf("synthesis reached with no sub-queries")})
		qr.LogError("synthesizer", "no sub-queries in aggregate")
		return
	}

	var node prompts.Node
	switch {
	case qr.AnyDataResults():
		node = prompts.NodeSynthesizeData
	case qr.AnyDataQuery():
		node = prompts.NodeSynthesizeEmpty
	default:
		node = prompts.NodeSynthesizeChat
	}
	log.Info().Str("branch", string(node)).Msg("synthesizing final answer")

	system := a.prompts.MustGet(node)
	user := a.synthesisContext(qr)
	_, err := a.llm.CompleteStream(ctx, system, user, func(delta string) {
		rn.emit(Chunk{Content: delta})
	})
	if err != nil {
		qr.LogError("synthesizer", err.Error())
		rn.emit(Chunk{Err: fmt.Errorf("answer synthesis failed: %w", err)})
	}
}

// synthesisContext renders the whole turn for the synthesis prompt:
// per-sub-query outcomes, result tables (capped), tool findings and any
// no-SQL explanations.
func (a *Agent) synthesisContext(qr *QueryResult) string {
	var sb strings.Builder
	sb.WriteString("Original request: " + qr.OriginalUserQuery + "\n\n")

	for i, sq := range qr.SubQueries {
		sb.WriteString(fmt.Sprintf("## Sub-query %d: %s\n", i+1, sq.QueryText))
		sb.WriteString("Type: " + string(sq.QueryType) + "\n")

		if sq.NoSQLResponse != "" {
			sb.WriteString("No SQL was needed: " + sq.NoSQLResponse + "\n")
		}
		if len(sq.TablesUsed) > 0 {
			sb.WriteString("Tables used: " + strings.Join(sq.TablesUsed, ", ") + "\n")
		}

		for _, q := range sq.SQLQueries {
			sb.WriteString("SQL: " + q.SQLQuery + "\n")
			switch {
			case q.Error != "":
				sb.WriteString("This query failed; do not mention technical details, acknowledge the gap.\n")
			case q.ContainsLargeResults:
				sb.WriteString(fmt.Sprintf("Result is large (%d rows); summarize rather than listing.\n", len(q.Result)))
				sb.WriteString(engine.FormatResult(rowsToResult(q), synthesisRowCap))
			default:
				sb.WriteString(engine.FormatResult(rowsToResult(q), synthesisRowCap))
			}
		}

		for _, tr := range sq.ToolResults {
			sb.WriteString("Tool finding: " + tr.String() + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// rowsToResult adapts an executed statement back into the engine's result
// shape for formatting. Columns are sorted so rendering is deterministic.
func rowsToResult(q SqlQueryInfo) engine.QueryResult {
	res := engine.QueryResult{
		SQL:   q.SQLQuery,
		Rows:  q.Result,
		Count: len(q.Result),
	}
	if len(q.Result) > 0 {
		for col := range q.Result[0] {
			res.Columns = append(res.Columns, col)
		}
		sort.Strings(res.Columns)
	}
	return res
}
