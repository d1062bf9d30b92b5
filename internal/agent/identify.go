package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
	"github.com/factly/gopie/internal/search"
)

const datasetMatchConfidence = 7

// identify selects the minimal relevant dataset set for a sub-query.
// History-carried and freshly-searched datasets are evaluated as one pool;
// selection is driven by relevance to the current sub-query, not by prior
// classification confidence.
func (a *Agent) identify(ctx context.Context, rn *run, sq *SubQuery) stage {
	pool := a.candidatePool(ctx, rn, sq)
	if len(pool) == 0 {
		// Zero candidates forcibly downgrades the sub-query, even if it
		// was previously classified data_query.
		sq.QueryType = QueryTypeConversational
		sq.SetNodeMessage("identify_datasets", "no datasets found")
		log.Info().Str("sub_query", sq.QueryText).Msg("no candidate datasets, downgrading to conversational")
		return stageDone
	}

	var schemas strings.Builder
	for i := range pool {
		schemas.WriteString(pool[i].String())
		schemas.WriteString("\n")
	}

	system := a.prompts.MustGet(prompts.NodeIdentify)
	user := fmt.Sprintf("Candidate dataset schemas:\n%s\nChat history:\n%s\nSub-query: %s",
		schemas.String(), rn.history, sq.QueryText)
	response, err := a.llm.Complete(ctx, system, user)
	if err != nil {
		return a.degradeIdentification(rn, sq, err)
	}

	var out struct {
		Datasets          []string          `json:"datasets"`
		TableNames        map[string]string `json:"table_names"`
		ColumnAssumptions []struct {
			Dataset string   `json:"dataset"`
			Column  string   `json:"column"`
			Values  []string `json:"values"`
		} `json:"column_assumptions"`
		ConfidenceScore int    `json:"confidence_score"`
		Reasoning       string `json:"reasoning"`
	}
	if err := llm.ParseJSON(response, &out); err != nil {
		return a.degradeIdentification(rn, sq, fmt.Errorf("parse identification: %w", err))
	}

	selected := selectSchemas(pool, out.Datasets)
	if len(selected) == 0 {
		sq.QueryType = QueryTypeConversational
		sq.SetNodeMessage("identify_datasets", "no datasets found")
		return stageDone
	}

	sq.Datasets = selected
	sq.TableNames = out.TableNames
	sq.SetNodeMessage("identify_datasets", out.Reasoning)

	sq.TablesUsed = sq.TablesUsed[:0]
	names := make([]string, 0, len(selected))
	for i := range selected {
		names = append(names, selected[i].Name)
		table := selected[i].TableName
		if mapped, ok := out.TableNames[selected[i].Name]; ok && mapped != "" {
			table = mapped
		}
		sq.TablesUsed = append(sq.TablesUsed, table)
	}

	// Value assumptions are only admitted for text columns. Numeric, date
	// and boolean columns never receive assumed literals.
	sq.ColumnAssumptions = sq.ColumnAssumptions[:0]
	for _, ca := range out.ColumnAssumptions {
		schema := findSchema(selected, ca.Dataset)
		if schema == nil {
			continue
		}
		col := schema.Column(ca.Column)
		if col == nil || !search.IsTextColumn(col.Type) {
			continue
		}
		if len(ca.Values) == 0 {
			continue
		}
		sq.ColumnAssumptions = append(sq.ColumnAssumptions, ColumnAssumption{
			Dataset: ca.Dataset,
			Column:  ca.Column,
			Values:  ca.Values,
		})
	}

	// A confident dataset match upgrades a conversational sub-query.
	if sq.QueryType == QueryTypeConversational && out.ConfidenceScore >= datasetMatchConfidence {
		sq.QueryType = QueryTypeDataQuery
	}

	rn.emit(Chunk{Datasets: names})
	return stageVerify
}

// candidatePool merges semantic-search candidates with datasets carried
// over from earlier sub-queries in this turn, deduplicated by name.
func (a *Agent) candidatePool(ctx context.Context, rn *run, sq *SubQuery) []search.DatasetSchema {
	var pool []search.DatasetSchema
	seen := make(map[string]bool)

	for _, prior := range rn.qr.SubQueries {
		if prior == sq {
			break
		}
		for i := range prior.Datasets {
			if !seen[prior.Datasets[i].Name] {
				seen[prior.Datasets[i].Name] = true
				pool = append(pool, prior.Datasets[i])
			}
		}
	}

	if a.store != nil {
		for _, s := range a.store.Search(ctx, sq.QueryText, rn.req.ProjectIDs, rn.req.DatasetIDs) {
			if !seen[s.Name] {
				seen[s.Name] = true
				pool = append(pool, s)
			}
		}
	}
	return pool
}

func (a *Agent) degradeIdentification(rn *run, sq *SubQuery, err error) stage {
	rn.qr.LogError("identifier", err.Error())
	sq.QueryType = QueryTypeConversational
	log.Warn().Err(err).Str("sub_query", sq.QueryText).Msg("dataset identification failed, degrading to conversational")
	return stageDone
}

func selectSchemas(pool []search.DatasetSchema, names []string) []search.DatasetSchema {
	var selected []search.DatasetSchema
	for _, name := range names {
		if s := findSchema(pool, name); s != nil {
			selected = append(selected, *s)
		}
	}
	return selected
}

func findSchema(pool []search.DatasetSchema, name string) *search.DatasetSchema {
	for i := range pool {
		if strings.EqualFold(pool[i].Name, name) {
			return &pool[i]
		}
	}
	return nil
}
