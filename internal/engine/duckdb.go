package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DuckDB runs queries against a local DuckDB database file. An empty path
// opens an in-memory database.
type DuckDB struct {
	db      *sql.DB
	timeout time.Duration
}

// NewDuckDB opens the database at path. timeout bounds each statement.
func NewDuckDB(path string, timeout time.Duration) (*DuckDB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &DuckDB{db: db, timeout: timeout}, nil
}

func (d *DuckDB) Query(ctx context.Context, query string) (QueryResult, error) {
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")
	result := QueryResult{SQL: query, Rows: []map[string]any{}}

	qCtx, cancel := deadlineCtx(ctx, d.timeout)
	defer cancel()

	rows, err := d.db.QueryContext(qCtx, query)
	if err != nil {
		return result, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return result, fmt.Errorf("read columns: %w", err)
	}
	result.Columns = cols

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return result, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("iterate rows: %w", err)
	}
	result.Count = len(result.Rows)
	return result, nil
}

func (d *DuckDB) TestConnection(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DuckDB) Close() error {
	return d.db.Close()
}
