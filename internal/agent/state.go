// Package agent implements the multi-step query-resolution state machine:
// a user request is decomposed into sub-queries, each resolved through
// classification, dataset identification, column verification, SQL planning,
// execution and validation, with bounded retry loops, then synthesized into
// a streamed natural-language answer.
package agent

import (
	"time"

	"github.com/factly/gopie/internal/search"
	"github.com/factly/gopie/internal/tools"
)

// QueryType classifies how a sub-query is resolved.
type QueryType string

const (
	QueryTypeConversational QueryType = "conversational"
	QueryTypeDataQuery      QueryType = "data_query"
)

// ErrorEntry is one diagnostic record in the append-only error log.
type ErrorEntry struct {
	Origin  string `json:"origin"`
	Message string `json:"message"`
}

// SqlQueryInfo is one planned SQL statement and its execution outcome.
// After execution exactly one of Result and Error is set.
type SqlQueryInfo struct {
	SQLQuery             string           `json:"sql_query"`
	Explanation          string           `json:"explanation"`
	Result               []map[string]any `json:"result,omitempty"`
	Success              bool             `json:"success"`
	Error                string           `json:"error,omitempty"`
	ContainsLargeResults bool             `json:"contains_large_results"`
}

// ColumnAssumption is a filter value the identifier guessed for a text
// column. Numeric, date and boolean columns never carry assumptions.
type ColumnAssumption struct {
	Dataset string   `json:"dataset"`
	Column  string   `json:"column"`
	Values  []string `json:"values"`
}

// VerifiedColumn replaces an assumption with evidence from live data.
type VerifiedColumn struct {
	Dataset     string   `json:"dataset"`
	Column      string   `json:"column"`
	ExactValues []string `json:"exact_values"`
	FuzzyValues []string `json:"fuzzy_values"`
}

// SubQuery is the per-step resolution record. QueryText is immutable once
// created; everything else is mutated by downstream stages and retained
// for synthesis and error reporting.
type SubQuery struct {
	QueryText       string    `json:"query_text"`
	QueryType       QueryType `json:"query_type"`
	ConfidenceScore int       `json:"confidence_score"`

	TablesUsed  []string       `json:"tables_used,omitempty"`
	SQLQueries  []SqlQueryInfo `json:"sql_queries,omitempty"`
	ToolResults []tools.Result `json:"tool_used_result,omitempty"`

	// RetryCount bounds the executor's replan loop; ValidationRetryCount
	// bounds the validator's independent loop. Both only ever increase.
	RetryCount           int `json:"retry_count"`
	ValidationRetryCount int `json:"validation_retry_count"`

	NoSQLResponse string            `json:"no_sql_response,omitempty"`
	NodeMessages  map[string]string `json:"node_messages,omitempty"`

	// Working state carried between stages, not part of the wire shape.
	Datasets          []search.DatasetSchema `json:"-"`
	TableNames        map[string]string      `json:"-"`
	ColumnAssumptions []ColumnAssumption     `json:"-"`
	VerifiedColumns   []VerifiedColumn       `json:"-"`
}

// SetNodeMessage records a cross-stage note under the given stage name.
func (s *SubQuery) SetNodeMessage(stage, message string) {
	if s.NodeMessages == nil {
		s.NodeMessages = make(map[string]string)
	}
	s.NodeMessages[stage] = message
}

// RetryBudgetExceeded reports whether either retry loop hit its cap.
func (s *SubQuery) RetryBudgetExceeded(maxRetry, maxValidationRetry int) bool {
	return s.RetryCount >= maxRetry || s.ValidationRetryCount >= maxValidationRetry
}

// HasSuccessfulResults reports whether any executed statement returned rows.
func (s *SubQuery) HasSuccessfulResults() bool {
	for i := range s.SQLQueries {
		if s.SQLQueries[i].Success && len(s.SQLQueries[i].Result) > 0 {
			return true
		}
	}
	return false
}

// QueryResult is the root aggregate for one chat turn. It is exclusively
// owned by the in-flight request and threaded by reference through every
// stage.
type QueryResult struct {
	OriginalUserQuery string        `json:"original_user_query"`
	CreatedAt         time.Time     `json:"created_at"`
	ExecutionTime     time.Duration `json:"execution_time"`
	ErrorLog          []ErrorEntry  `json:"error_log,omitempty"`
	SubQueries        []*SubQuery   `json:"subqueries"`
}

// LogError appends to the error log. The log is never cleared; it feeds
// replanning prompts and diagnostics.
func (q *QueryResult) LogError(origin, message string) {
	q.ErrorLog = append(q.ErrorLog, ErrorEntry{Origin: origin, Message: message})
}

// AddSubQuery appends a fresh sub-query record and returns it.
func (q *QueryResult) AddSubQuery(text string) *SubQuery {
	sq := &SubQuery{
		QueryText: text,
		QueryType: QueryTypeConversational,
	}
	q.SubQueries = append(q.SubQueries, sq)
	return sq
}

// AnyDataResults reports whether any sub-query across the whole turn is a
// data query with non-empty SQL results. Final synthesis branches on this
// whole-aggregate property, not on the last sub-query alone.
func (q *QueryResult) AnyDataResults() bool {
	for _, sq := range q.SubQueries {
		if sq.QueryType == QueryTypeDataQuery && sq.HasSuccessfulResults() {
			return true
		}
	}
	return false
}

// AnyDataQuery reports whether any sub-query was resolved as a data query,
// regardless of whether its SQL returned rows.
func (q *QueryResult) AnyDataQuery() bool {
	for _, sq := range q.SubQueries {
		if sq.QueryType == QueryTypeDataQuery {
			return true
		}
	}
	return false
}
