package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQuery runs queries against Google BigQuery.
type BigQuery struct {
	client   *bigquery.Client
	location string
	timeout  time.Duration
}

// NewBigQuery creates a client for the given GCP project. credentialsFile
// is optional; when empty, application default credentials are used.
// timeout bounds each statement.
func NewBigQuery(ctx context.Context, projectID, credentialsFile, location string, timeout time.Duration) (*BigQuery, error) {
	if projectID == "" {
		return nil, fmt.Errorf("bigquery project ID is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &BigQuery{client: client, location: location, timeout: timeout}, nil
}

func (b *BigQuery) Query(ctx context.Context, query string) (QueryResult, error) {
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")
	result := QueryResult{SQL: query, Rows: []map[string]any{}}

	qCtx, cancel := deadlineCtx(ctx, b.timeout)
	defer cancel()

	q := b.client.Query(query)
	q.Location = b.location
	job, err := q.Run(qCtx)
	if err != nil {
		return result, fmt.Errorf("query run: %w", err)
	}
	status, err := job.Wait(qCtx)
	if err != nil {
		return result, fmt.Errorf("job wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return result, fmt.Errorf("query failed: %w", err)
	}

	it, err := job.Read(qCtx)
	if err != nil {
		return result, fmt.Errorf("job read: %w", err)
	}

	first := true
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read row: %w", err)
		}
		if first && it.Schema != nil {
			for _, f := range it.Schema {
				result.Columns = append(result.Columns, f.Name)
			}
			first = false
		}
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}
		result.Rows = append(result.Rows, m)
	}
	result.Count = len(result.Rows)
	return result, nil
}

func (b *BigQuery) TestConnection(ctx context.Context) error {
	// A metadata-only statement verifies both connectivity and auth.
	q := b.client.Query("SELECT 1")
	qCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	it, err := q.Read(qCtx)
	if err != nil {
		return err
	}
	var row map[string]bigquery.Value
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}
