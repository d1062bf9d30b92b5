package models_test

import (
	"reflect"
	"testing"

	"github.com/factly/gopie/internal/models"
)

// ─── Metadata parsing ─────────────────────────────────────────────────────────

func TestParseMetadataMergesPrefixedKeys(t *testing.T) {
	req := models.ChatCompletionRequest{
		Metadata: map[string]string{
			"project_id_1": "a,b",
			"project_id_2": "c",
		},
	}
	projectIDs, datasetIDs := req.ParseMetadata()

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(projectIDs, want) {
		t.Errorf("project_ids = %v, want %v", projectIDs, want)
	}
	if len(datasetIDs) != 0 {
		t.Errorf("dataset_ids = %v, want empty", datasetIDs)
	}
}

func TestParseMetadataTrimsAndDropsEmpty(t *testing.T) {
	req := models.ChatCompletionRequest{
		Metadata: map[string]string{
			"dataset_id": " ds1 , , ds2,",
		},
	}
	_, datasetIDs := req.ParseMetadata()

	if want := []string{"ds1", "ds2"}; !reflect.DeepEqual(datasetIDs, want) {
		t.Errorf("dataset_ids = %v, want %v", datasetIDs, want)
	}
}

func TestParseMetadataAbsent(t *testing.T) {
	req := models.ChatCompletionRequest{}
	projectIDs, datasetIDs := req.ParseMetadata()

	if projectIDs == nil || len(projectIDs) != 0 {
		t.Errorf("project_ids = %v, want empty non-nil slice", projectIDs)
	}
	if datasetIDs == nil || len(datasetIDs) != 0 {
		t.Errorf("dataset_ids = %v, want empty non-nil slice", datasetIDs)
	}
}

// ─── Finish reason coercion ───────────────────────────────────────────────────

func TestCoerceFinishReason(t *testing.T) {
	cases := map[string]string{
		"stop":           "stop",
		"length":         "length",
		"tool_calls":     "tool_calls",
		"content_filter": "content_filter",
		"function_call":  "function_call",
		"error":          "stop",
		"banana":         "stop",
		"":               "stop",
	}
	for in, want := range cases {
		if got := models.CoerceFinishReason(in); got != want {
			t.Errorf("CoerceFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

// ─── Message helpers ──────────────────────────────────────────────────────────

func TestLastUserMessageAndHistory(t *testing.T) {
	req := models.ChatCompletionRequest{
		Messages: []models.ChatMessage{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "answer"},
			{Role: "user", Content: "second"},
		},
	}

	if got := req.LastUserMessage(); got != "second" {
		t.Errorf("LastUserMessage = %q, want %q", got, "second")
	}
	history := req.History()
	if len(history) != 2 || history[1].Content != "answer" {
		t.Errorf("History = %v, want the two messages before the last user turn", history)
	}
}

func TestLastUserMessageEmpty(t *testing.T) {
	req := models.ChatCompletionRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: ""}},
	}
	if got := req.LastUserMessage(); got != "" {
		t.Errorf("LastUserMessage = %q, want empty", got)
	}
}
