package llm_test

import (
	"testing"

	"github.com/factly/gopie/internal/llm"
)

// ─── JSON extraction ──────────────────────────────────────────────────────────

func TestExtractJSONBareObject(t *testing.T) {
	got := llm.ExtractJSON(`{"a": 1}`)
	if got != `{"a": 1}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONFromFence(t *testing.T) {
	input := "```json\n{\"query_type\": \"data_query\"}\n```"
	got := llm.ExtractJSON(input)
	if got != `{"query_type": "data_query"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONFromProse(t *testing.T) {
	input := `Sure, here is the classification: {"query_type": "conversational", "confidence_score": 9} hope that helps.`
	got := llm.ExtractJSON(input)
	if got != `{"query_type": "conversational", "confidence_score": 9}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNestedObjects(t *testing.T) {
	input := `{"table_names": {"sales": "sales_2022"}, "datasets": ["sales"]}`
	if got := llm.ExtractJSON(input); got != input {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	input := `{"reasoning": "the pattern {x} is literal", "ok": true}`
	if got := llm.ExtractJSON(input); got != input {
		t.Errorf("braces inside string values broke extraction: %q", got)
	}
}

func TestExtractJSONNone(t *testing.T) {
	if got := llm.ExtractJSON("no structured output here"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := llm.ExtractJSON(`{"unterminated": `); got != "" {
		t.Errorf("unbalanced object extracted as %q", got)
	}
}

// ─── Parsing ──────────────────────────────────────────────────────────────────

func TestParseJSONIntoStruct(t *testing.T) {
	var out struct {
		Decision string `json:"decision"`
	}
	err := llm.ParseJSON("```\n{\"decision\": \"replan\"}\n```", &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "replan" {
		t.Errorf("decision = %q", out.Decision)
	}
}

func TestParseJSONNoObject(t *testing.T) {
	var out map[string]any
	if err := llm.ParseJSON("plain prose", &out); err == nil {
		t.Error("want error for a response with no JSON object")
	}
}
