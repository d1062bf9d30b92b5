// Package search implements the dataset-schema semantic search capability:
// dataset schemas are indexed in Elasticsearch with dense-vector embeddings
// and retrieved by kNN similarity to the sub-query, optionally filtered by
// project/dataset scope.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ColumnSchema describes one column of an indexed dataset.
type ColumnSchema struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// DatasetSchema is one schema record returned by semantic search.
type DatasetSchema struct {
	Name        string         `json:"name"`
	ProjectID   string         `json:"project_id"`
	DatasetID   string         `json:"dataset_id"`
	TableName   string         `json:"table_name"`
	Description string         `json:"description,omitempty"`
	Columns     []ColumnSchema `json:"columns"`
}

// Column returns the column with the given name, or nil.
func (s *DatasetSchema) Column(name string) *ColumnSchema {
	for i := range s.Columns {
		if strings.EqualFold(s.Columns[i].Name, name) {
			return &s.Columns[i]
		}
	}
	return nil
}

// String renders the schema for inclusion in a prompt.
func (s *DatasetSchema) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Dataset: %s (table: %s)\n", s.Name, s.TableName))
	if s.Description != "" {
		sb.WriteString(s.Description + "\n")
	}
	for _, c := range s.Columns {
		sb.WriteString(fmt.Sprintf("  - %s (%s)", c.Name, c.Type))
		if c.Description != "" {
			sb.WriteString(": " + c.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

var textColumnTypes = map[string]bool{
	"string": true, "text": true, "varchar": true, "char": true,
	"character varying": true, "str": true, "object": true,
}

// IsTextColumn reports whether a schema type can carry value assumptions.
// Numeric, date and boolean columns never get assumed literal values.
func IsTextColumn(columnType string) bool {
	t := strings.ToLower(strings.TrimSpace(columnType))
	if i := strings.Index(t, "("); i != -1 {
		t = t[:i]
	}
	return textColumnTypes[t]
}

// Searcher is the schema-search capability consumed by the resolution
// graph and its tools. *SchemaStore implements it over Elasticsearch.
type Searcher interface {
	Search(ctx context.Context, query string, projectIDs, datasetIDs []string) []DatasetSchema
}

const schemaCacheTTL = 5 * time.Minute

type cacheEntry struct {
	schemas   []DatasetSchema
	expiresAt time.Time
}

// SchemaStore searches dataset schemas in Elasticsearch by embedding
// similarity. Search never fails outward: any internal error yields an
// empty result set, and the caller treats "no candidates" as a routing
// signal.
type SchemaStore struct {
	client   *elasticsearch.Client
	embedder Embedder
	index    string
	topK     int

	mu    sync.RWMutex
	cache map[string]cacheEntry
	sf    singleflight.Group // deduplicate concurrent identical searches
}

// NewSchemaStore creates a schema search client.
func NewSchemaStore(addresses []string, user, password string, embedder Embedder, index string, topK int) (*SchemaStore, error) {
	cfg := elasticsearch.Config{
		Addresses:  addresses,
		MaxRetries: 3,
	}
	if user != "" {
		cfg.Username = user
		cfg.Password = password
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}
	if topK <= 0 {
		topK = 5
	}
	return &SchemaStore{
		client:   client,
		embedder: embedder,
		index:    index,
		topK:     topK,
		cache:    make(map[string]cacheEntry),
	}, nil
}

// TestConnection pings the cluster.
func (s *SchemaStore) TestConnection(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping error: %s", res.Status())
	}
	return nil
}

// Search returns the top-K schemas semantically similar to the query,
// restricted to the given project/dataset scope when provided. Returns an
// empty slice on any internal failure.
func (s *SchemaStore) Search(ctx context.Context, query string, projectIDs, datasetIDs []string) []DatasetSchema {
	key := cacheKey(query, projectIDs, datasetIDs)

	s.mu.RLock()
	if e, ok := s.cache[key]; ok && time.Now().Before(e.expiresAt) {
		s.mu.RUnlock()
		return e.schemas
	}
	s.mu.RUnlock()

	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		schemas, err := s.search(ctx, query, projectIDs, datasetIDs)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = cacheEntry{schemas: schemas, expiresAt: time.Now().Add(schemaCacheTTL)}
		s.mu.Unlock()
		return schemas, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("schema search failed, returning no candidates")
		return []DatasetSchema{}
	}
	return v.([]DatasetSchema)
}

func (s *SchemaStore) search(ctx context.Context, query string, projectIDs, datasetIDs []string) ([]DatasetSchema, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	knn := map[string]interface{}{
		"field":          "embedding",
		"query_vector":   vector,
		"k":              s.topK,
		"num_candidates": s.topK * 20,
	}
	var filters []map[string]interface{}
	if len(projectIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"project_id": projectIDs},
		})
	}
	if len(datasetIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"dataset_id": datasetIDs},
		})
	}
	if len(filters) > 0 {
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": filters},
		}
	}

	body := map[string]interface{}{
		"knn":  knn,
		"size": s.topK,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.Status())
	}

	var esResp struct {
		Hits struct {
			Hits []struct {
				Source DatasetSchema `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	schemas := make([]DatasetSchema, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		schemas = append(schemas, hit.Source)
	}
	return schemas, nil
}

func cacheKey(query string, projectIDs, datasetIDs []string) string {
	return query + "|" + strings.Join(projectIDs, ",") + "|" + strings.Join(datasetIDs, ",")
}
