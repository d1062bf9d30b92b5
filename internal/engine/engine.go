// Package engine abstracts SQL execution over the supported backends
// (DuckDB, PostgreSQL, BigQuery) behind a single Querier interface.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QueryResult holds the outcome of one executed SQL statement.
type QueryResult struct {
	SQL     string           `json:"sql"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

// Querier executes a single SQL statement against a backend.
type Querier interface {
	// Query runs one SELECT statement. An error return means execution
	// failed; a nil error means the result is complete, possibly empty.
	Query(ctx context.Context, sql string) (QueryResult, error)

	// TestConnection verifies the backend is reachable.
	TestConnection(ctx context.Context) error

	// Close releases the underlying connection resources.
	Close() error
}

// deadlineCtx bounds one statement's execution. A non-positive timeout
// leaves the caller's deadline in place.
func deadlineCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// FormatResult renders a result for inclusion in a prompt. Display is
// capped at maxRows rows so large result sets do not blow the context
// window.
func FormatResult(result QueryResult, maxRows int) string {
	if result.Count == 0 {
		return "Query returned no results."
	}
	if maxRows <= 0 {
		maxRows = 50
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(result.Columns, ", ")))
	sb.WriteString(fmt.Sprintf("Rows (%d total):\n", result.Count))

	display := result.Count
	if display > maxRows {
		display = maxRows
	}
	for i := 0; i < display && i < len(result.Rows); i++ {
		values := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			values[j] = formatValue(result.Rows[i][col])
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}
	if result.Count > maxRows {
		sb.WriteString(fmt.Sprintf("... and %d more rows\n", result.Count-maxRows))
	}
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case []byte:
		return string(val)
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}
}
