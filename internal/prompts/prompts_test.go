package prompts_test

import (
	"testing"

	"github.com/factly/gopie/internal/prompts"
)

func TestLoadProvidesEveryNode(t *testing.T) {
	reg, err := prompts.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	nodes := []prompts.Node{
		prompts.NodeDecomposeCheck,
		prompts.NodeDecompose,
		prompts.NodeClassify,
		prompts.NodeIdentify,
		prompts.NodePlan,
		prompts.NodeRelationship,
		prompts.NodeReplanDecision,
		prompts.NodeValidate,
		prompts.NodeInterim,
		prompts.NodeContinuation,
		prompts.NodeSynthesizeData,
		prompts.NodeSynthesizeEmpty,
		prompts.NodeSynthesizeChat,
		prompts.NodeFailureNarrative,
	}
	for _, n := range nodes {
		p, err := reg.Get(n)
		if err != nil {
			t.Errorf("node %s: %v", n, err)
		}
		if p == "" {
			t.Errorf("node %s: empty prompt", n)
		}
	}
}

func TestGetUnknownNode(t *testing.T) {
	reg, err := prompts.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := reg.Get(prompts.Node("no_such_node")); err == nil {
		t.Error("want error for unknown node")
	}
}
