// Package tools exposes the auxiliary capabilities the classifier may
// invoke while deciding how to route a sub-query: schema lookup, dataset
// listing, direct SQL execution, and SQL-plan-only generation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/factly/gopie/internal/engine"
	"github.com/factly/gopie/internal/llm"
	"github.com/factly/gopie/internal/prompts"
	"github.com/factly/gopie/internal/search"
)

// ResultKind tags the payload variant a tool produced.
type ResultKind string

const (
	KindSchemaLookup ResultKind = "schema_lookup"
	KindDatasetList  ResultKind = "dataset_list"
	KindDirectSQL    ResultKind = "direct_sql"
	KindSQLPlan      ResultKind = "sql_plan"
)

// Result is one tool outcome. Payload is shaped per Kind so consumers can
// switch exhaustively instead of probing an untyped map.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Tool    string     `json:"tool"`
	Payload any        `json:"payload"`
}

// String renders the result as compact JSON for tool-result messages.
func (r Result) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"kind":%q,"tool":%q,"error":"unserializable payload"}`, r.Kind, r.Tool)
	}
	return string(b)
}

// Scope restricts tool access to the datasets named in request metadata.
type Scope struct {
	ProjectIDs []string
	DatasetIDs []string
}

// Tool is one invokable capability.
type Tool interface {
	Name() string
	Definition() llm.ToolDef
	Invoke(ctx context.Context, args map[string]interface{}) (Result, error)
}

// Registry holds the capability set for one request, bound to its scope.
type Registry struct {
	tools map[string]Tool
	defs  []llm.ToolDef
}

// New builds the capability set over the given backends.
func New(store search.Searcher, querier engine.Querier, client llm.Completer, reg *prompts.Registry, scope Scope) *Registry {
	all := []Tool{
		&schemaLookupTool{store: store, scope: scope},
		&datasetListTool{store: store, scope: scope},
		&directSQLTool{querier: querier},
		&sqlPlanTool{store: store, client: client, reg: reg, scope: scope},
	}
	r := &Registry{tools: make(map[string]Tool, len(all))}
	for _, t := range all {
		r.tools[t.Name()] = t
		r.defs = append(r.defs, t.Definition())
	}
	return r
}

// Defs returns the tool definitions to bind to a conversation.
func (r *Registry) Defs() []llm.ToolDef {
	return r.defs
}

// Invoke dispatches a tool call by name.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("unknown tool: %q", name)
	}
	return t.Invoke(ctx, args)
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
