// Package prompts holds the system prompts for every node of the
// query-resolution graph. The node set is closed: prompts are loaded from an
// embedded filesystem at startup and an unknown node name is a startup
// error, not a runtime lookup failure.
package prompts

import (
	"embed"
	"fmt"
)

//go:embed templates/*.md
var templateFS embed.FS

// Node identifies a graph stage with its own prompt.
type Node string

const (
	NodeDecomposeCheck   Node = "decompose_check"
	NodeDecompose        Node = "decompose"
	NodeClassify         Node = "classify"
	NodeIdentify         Node = "identify"
	NodePlan             Node = "plan"
	NodeRelationship     Node = "relationship"
	NodeReplanDecision   Node = "replan_decision"
	NodeValidate         Node = "validate"
	NodeInterim          Node = "interim"
	NodeContinuation     Node = "continuation"
	NodeSynthesizeData   Node = "synthesize_data"
	NodeSynthesizeEmpty  Node = "synthesize_empty"
	NodeSynthesizeChat   Node = "synthesize_conversational"
	NodeFailureNarrative Node = "failure_narrative"
)

// allNodes is the closed set; Load fails if any template is missing so a
// bad build cannot reach runtime with a hole in the registry.
var allNodes = []Node{
	NodeDecomposeCheck,
	NodeDecompose,
	NodeClassify,
	NodeIdentify,
	NodePlan,
	NodeRelationship,
	NodeReplanDecision,
	NodeValidate,
	NodeInterim,
	NodeContinuation,
	NodeSynthesizeData,
	NodeSynthesizeEmpty,
	NodeSynthesizeChat,
	NodeFailureNarrative,
}

// Registry maps nodes to their system prompts.
type Registry struct {
	prompts map[Node]string
}

// Load reads every node prompt from the embedded filesystem.
func Load() (*Registry, error) {
	r := &Registry{prompts: make(map[Node]string, len(allNodes))}
	for _, node := range allNodes {
		data, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.md", node))
		if err != nil {
			return nil, fmt.Errorf("load prompt %q: %w", node, err)
		}
		r.prompts[node] = string(data)
	}
	return r, nil
}

// Get returns the system prompt for a node. Unknown nodes are an error.
func (r *Registry) Get(node Node) (string, error) {
	p, ok := r.prompts[node]
	if !ok {
		return "", fmt.Errorf("unknown prompt node: %q", node)
	}
	return p, nil
}

// MustGet is Get for nodes known at compile time.
func (r *Registry) MustGet(node Node) string {
	p, err := r.Get(node)
	if err != nil {
		panic(err)
	}
	return p
}
