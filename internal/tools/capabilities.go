package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/factly/gopie/internal/engine"
	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
	"github.com/factly/gopie/internal/search"
)

// schemaLookupTool searches indexed dataset schemas by semantic similarity.
type schemaLookupTool struct {
	store search.Searcher
	scope Scope
}

func (t *schemaLookupTool) Name() string { return "search_schemas" }

func (t *schemaLookupTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Search available dataset schemas by natural-language description. Returns matching dataset names, table names and column definitions.",
		InputSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language description of the data you are looking for",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (t *schemaLookupTool) Invoke(ctx context.Context, args map[string]interface{}) (Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		return Result{}, fmt.Errorf("search_schemas: query is required")
	}
	if t.store == nil {
		return Result{}, fmt.Errorf("search_schemas: schema search is not configured")
	}
	schemas := t.store.Search(ctx, query, t.scope.ProjectIDs, t.scope.DatasetIDs)
	rendered := make([]string, len(schemas))
	for i := range schemas {
		rendered[i] = schemas[i].String()
	}
	return Result{
		Kind: KindSchemaLookup,
		Tool: t.Name(),
		Payload: map[string]interface{}{
			"count":   len(schemas),
			"schemas": rendered,
		},
	}, nil
}

// datasetListTool lists the datasets visible within the request scope.
type datasetListTool struct {
	store search.Searcher
	scope Scope
}

func (t *datasetListTool) Name() string { return "list_datasets" }

func (t *datasetListTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "List the datasets available to this conversation with a short description of each.",
		InputSchema: map[string]interface{}{
			"properties": map[string]interface{}{},
		},
	}
}

func (t *datasetListTool) Invoke(ctx context.Context, _ map[string]interface{}) (Result, error) {
	if t.store == nil {
		return Result{}, fmt.Errorf("list_datasets: schema search is not configured")
	}
	schemas := t.store.Search(ctx, "all available datasets", t.scope.ProjectIDs, t.scope.DatasetIDs)
	entries := make([]map[string]string, len(schemas))
	for i, s := range schemas {
		entries[i] = map[string]string{
			"name":        s.Name,
			"table_name":  s.TableName,
			"description": s.Description,
		}
	}
	return Result{
		Kind: KindDatasetList,
		Tool: t.Name(),
		Payload: map[string]interface{}{
			"count":    len(entries),
			"datasets": entries,
		},
	}, nil
}

// directSQLTool executes a read-only statement and returns the result.
type directSQLTool struct {
	querier engine.Querier
}

func (t *directSQLTool) Name() string { return "execute_sql" }

func (t *directSQLTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Execute a read-only SELECT statement and return the rows. Use only when you already know the exact table and columns.",
		InputSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"sql": map[string]interface{}{
					"type":        "string",
					"description": "The SELECT statement to run",
				},
			},
			"required": []string{"sql"},
		},
	}
}

func (t *directSQLTool) Invoke(ctx context.Context, args map[string]interface{}) (Result, error) {
	sqlText := stringArg(args, "sql")
	if msg := engine.ValidateSQL(sqlText); msg != "" {
		return Result{}, fmt.Errorf("execute_sql: %s", msg)
	}
	if t.querier == nil {
		return Result{}, fmt.Errorf("execute_sql: no execution engine configured")
	}
	res, err := t.querier.Query(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute_sql: %w", err)
	}
	return Result{
		Kind: KindDirectSQL,
		Tool: t.Name(),
		Payload: map[string]interface{}{
			"sql":       res.SQL,
			"columns":   res.Columns,
			"row_count": res.Count,
			"rows":      engine.FormatResult(res, 20),
		},
	}, nil
}

// sqlPlanTool drafts SQL for a question without executing it.
type sqlPlanTool struct {
	store  search.Searcher
	client llm.Completer
	reg    *prompts.Registry
	scope  Scope
}

func (t *sqlPlanTool) Name() string { return "plan_sql" }

func (t *sqlPlanTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: "Draft the SQL that would answer a question, without running it. Useful to check whether a question is answerable from the available data.",
		InputSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to draft SQL for",
				},
			},
			"required": []string{"question"},
		},
	}
}

func (t *sqlPlanTool) Invoke(ctx context.Context, args map[string]interface{}) (Result, error) {
	question := stringArg(args, "question")
	if question == "" {
		return Result{}, fmt.Errorf("plan_sql: question is required")
	}

	var schemas []search.DatasetSchema
	if t.store != nil {
		schemas = t.store.Search(ctx, question, t.scope.ProjectIDs, t.scope.DatasetIDs)
	}
	var sb strings.Builder
	for i := range schemas {
		sb.WriteString(schemas[i].String())
		sb.WriteString("\n")
	}

	system := t.reg.MustGet(prompts.NodePlan)
	user := fmt.Sprintf("Available schemas:\n%s\nQuestion: %s\n\nDraft the SQL only, do not execute anything.", sb.String(), question)
	response, err := t.client.Complete(ctx, system, user)
	if err != nil {
		return Result{}, fmt.Errorf("plan_sql: %w", err)
	}

	var plan struct {
		Queries []struct {
			SQL         string `json:"sql"`
			Explanation string `json:"explanation"`
		} `json:"queries"`
		NoSQLResponse string `json:"no_sql_response"`
	}
	if err := llm.ParseJSON(response, &plan); err != nil {
		return Result{}, fmt.Errorf("plan_sql: parse response: %w", err)
	}
	return Result{
		Kind: KindSQLPlan,
		Tool: t.Name(),
		Payload: map[string]interface{}{
			"queries":         plan.Queries,
			"no_sql_response": plan.NoSQLResponse,
		},
	}, nil
}
