package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog/log"
)

const (
	distinctValueLimit   = 200
	fuzzyDistanceBound   = 3
	fuzzySuggestionLimit = 5
)

// verify checks the identifier's assumed column values against live data.
// Exact matches are kept; when none exist, distance-bounded fuzzy
// suggestions are produced instead. The planner works from this evidence,
// never from the raw assumptions. Failures route onward rather than
// blocking: an unverifiable assumption is simply dropped and logged.
func (a *Agent) verify(ctx context.Context, rn *run, sq *SubQuery) stage {
	sq.VerifiedColumns = sq.VerifiedColumns[:0]
	if len(sq.ColumnAssumptions) == 0 {
		return stagePlan
	}
	if a.querier == nil {
		rn.qr.LogError("verifier", "no execution engine available for value verification")
		return stagePlan
	}

	for _, assumption := range sq.ColumnAssumptions {
		table := a.physicalTable(sq, assumption.Dataset)
		if table == "" {
			rn.qr.LogError("verifier", fmt.Sprintf("no table mapping for dataset %q", assumption.Dataset))
			continue
		}

		values, err := a.distinctValues(ctx, table, assumption.Column)
		if err != nil {
			rn.qr.LogError("verifier", fmt.Sprintf("fetch distinct values for %s.%s: %v", table, assumption.Column, err))
			continue
		}

		verified := matchValues(assumption, values)
		sq.VerifiedColumns = append(sq.VerifiedColumns, verified)
		log.Debug().
			Str("column", assumption.Column).
			Int("exact", len(verified.ExactValues)).
			Int("fuzzy", len(verified.FuzzyValues)).
			Msg("column values verified")
	}
	return stagePlan
}

func (a *Agent) physicalTable(sq *SubQuery, dataset string) string {
	if t, ok := sq.TableNames[dataset]; ok && t != "" {
		return t
	}
	if s := findSchema(sq.Datasets, dataset); s != nil {
		return s.TableName
	}
	return ""
}

func (a *Agent) distinctValues(ctx context.Context, table, column string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		quoteIdent(column), quoteIdent(table), quoteIdent(column), distinctValueLimit)
	res, err := a.querier.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, res.Count)
	for _, row := range res.Rows {
		for _, v := range row {
			if s, ok := v.(string); ok && s != "" {
				values = append(values, s)
			}
		}
	}
	return values, nil
}

// matchValues pairs each assumed value with evidence: exact matches by
// case-insensitive equality, fuzzy suggestions by Levenshtein distance or
// substring containment when no exact match exists.
func matchValues(assumption ColumnAssumption, actual []string) VerifiedColumn {
	verified := VerifiedColumn{
		Dataset:     assumption.Dataset,
		Column:      assumption.Column,
		ExactValues: []string{},
		FuzzyValues: []string{},
	}

	for _, want := range assumption.Values {
		exact := ""
		for _, have := range actual {
			if strings.EqualFold(want, have) {
				exact = have
				break
			}
		}
		if exact != "" {
			verified.ExactValues = append(verified.ExactValues, exact)
			continue
		}

		lowerWant := strings.ToLower(want)
		for _, have := range actual {
			if len(verified.FuzzyValues) >= fuzzySuggestionLimit {
				break
			}
			lowerHave := strings.ToLower(have)
			if strings.Contains(lowerHave, lowerWant) || strings.Contains(lowerWant, lowerHave) {
				verified.FuzzyValues = append(verified.FuzzyValues, have)
				continue
			}
			if levenshtein.ComputeDistance(lowerWant, lowerHave) <= fuzzyDistanceBound {
				verified.FuzzyValues = append(verified.FuzzyValues, have)
			}
		}
	}
	return verified
}

// quoteIdent wraps an identifier in double quotes, doubling any embedded
// quotes. Assumed table and column names come from LLM output and are
// never interpolated raw.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
