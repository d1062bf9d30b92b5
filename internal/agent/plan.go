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

// plan drafts SQL for the sub-query, or records a no-SQL explanation when
// SQL cannot satisfy it. The two outcomes are mutually exclusive; absence
// of both is a hard planning error. Any SQL drafted by a previous attempt
// is discarded first so retries never accumulate stale plans.
func (a *Agent) plan(ctx context.Context, rn *run, sq *SubQuery) stage {
	rn.cycleMark = len(rn.qr.ErrorLog)

	// Failed drafts from the previous attempt feed the retry prompt, then
	// the slate is wiped.
	var prevFailed []SqlQueryInfo
	for i := range sq.SQLQueries {
		if sq.SQLQueries[i].Error != "" {
			prevFailed = append(prevFailed, sq.SQLQueries[i])
		}
	}
	sq.SQLQueries = nil
	sq.NoSQLResponse = ""

	if len(sq.Datasets) > 1 {
		a.assessRelationship(ctx, rn, sq)
	}

	system := a.prompts.MustGet(prompts.NodePlan)
	response, err := a.llm.Complete(ctx, system, a.planContext(rn, sq, prevFailed))
	if err != nil {
		rn.qr.LogError("planner", err.Error())
		return stageExecute
	}

	var out struct {
		Queries []struct {
			SQL         string `json:"sql"`
			Explanation string `json:"explanation"`
		} `json:"queries"`
		NoSQLResponse string `json:"no_sql_response"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		rn.qr.LogError("planner", "parse plan: "+err.Error())
		return stageExecute
	}

	if len(out.Queries) == 0 && out.NoSQLResponse == "" {
		rn.qr.LogError("planner", "plan produced neither SQL nor a no-SQL explanation")
		return stageExecute
	}
	if out.NoSQLResponse != "" {
		sq.NoSQLResponse = out.NoSQLResponse
		return stageValidate
	}

	for _, q := range out.Queries {
		if strings.TrimSpace(q.SQL) == "" {
			continue
		}
		sq.SQLQueries = append(sq.SQLQueries, SqlQueryInfo{
			SQLQuery:    strings.TrimSpace(q.SQL),
			Explanation: q.Explanation,
		})
	}
	if len(sq.SQLQueries) == 0 {
		rn.qr.LogError("planner", "plan contained only empty SQL statements")
	}
	return stageExecute
}

// assessRelationship decides whether the selected datasets are joinable.
// The decision determines single-vs-multiple-query shape and is recorded
// in node messages for the executor and validator to reference.
func (a *Agent) assessRelationship(ctx context.Context, rn *run, sq *SubQuery) {
	var schemas strings.Builder
	for i := range sq.Datasets {
		schemas.WriteString(sq.Datasets[i].String())
		schemas.WriteString("\n")
	}

	system := a.prompts.MustGet(prompts.NodeRelationship)
	user := fmt.Sprintf("Dataset schemas:\n%s\nSub-query: %s", schemas.String(), sq.QueryText)
	response, err := a.llm.Complete(ctx, system, user)
	if err != nil {
		rn.qr.LogError("planner", "relationship assessment: "+err.Error())
		return
	}

	var out struct {
		Related   bool   `json:"related"`
		JoinKey   string `json:"join_key"`
		Reasoning string `json:"reasoning"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		rn.qr.LogError("planner", "parse relationship assessment: "+err.Error())
		return
	}

	note, _ := json.Marshal(out)
	sq.SetNodeMessage("relationship", string(note))
	log.Debug().Bool("related", out.Related).Str("join_key", out.JoinKey).Msg("relationship assessed")
}

// planContext assembles everything the planner prompt needs: schemas,
// verified column evidence, relationship assessment, prior errors, retry
// count, and SQL already used by earlier sub-queries.
func (a *Agent) planContext(rn *run, sq *SubQuery, prevFailed []SqlQueryInfo) string {
	var sb strings.Builder

	sb.WriteString("Dataset schemas:\n")
	for i := range sq.Datasets {
		sb.WriteString(sq.Datasets[i].String())
		sb.WriteString("\n")
	}

	if len(sq.TableNames) > 0 {
		mapping, _ := json.Marshal(sq.TableNames)
		sb.WriteString("Table name mapping: ")
		sb.Write(mapping)
		sb.WriteString("\n")
	}

	if len(sq.VerifiedColumns) > 0 {
		sb.WriteString("Verified column values (use these, not guesses):\n")
		for _, vc := range sq.VerifiedColumns {
			entry, _ := json.Marshal(vc)
			sb.Write(entry)
			sb.WriteString("\n")
		}
	}

	if note, ok := sq.NodeMessages["relationship"]; ok {
		sb.WriteString("Relationship assessment: ")
		sb.WriteString(note)
		sb.WriteString("\n")
	}

	if sq.RetryCount > 0 || sq.ValidationRetryCount > 0 {
		sb.WriteString(fmt.Sprintf("Retry attempt %d (validation retries: %d). Previous errors:\n",
			sq.RetryCount, sq.ValidationRetryCount))
		for _, e := range rn.qr.ErrorLog {
			sb.WriteString("- " + e.Origin + ": " + e.Message + "\n")
		}
		for i := range prevFailed {
			sb.WriteString("- failed SQL: " + prevFailed[i].SQLQuery + " (" + prevFailed[i].Error + ")\n")
		}
	}

	var priorSQL []string
	for _, prior := range rn.qr.SubQueries {
		if prior == sq {
			break
		}
		for i := range prior.SQLQueries {
			priorSQL = append(priorSQL, prior.SQLQueries[i].SQLQuery)
		}
	}
	if len(priorSQL) > 0 {
		sb.WriteString("SQL already used for earlier sub-queries:\n")
		for _, q := range priorSQL {
			sb.WriteString("- " + q + "\n")
		}
	}

	sb.WriteString("\nSub-query: " + sq.QueryText)
	return sb.String()
}
