package stream_test

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/factly/gopie/internal/agent"
	"github.com/factly/gopie/internal/models"
	"github.com/factly/gopie/internal/stream"
)

// ─── Deduplication ────────────────────────────────────────────────────────────

func TestDatasetFactEmittedOnce(t *testing.T) {
	st := stream.NewState("gopie", 1700000000)

	var frames []models.ChatCompletionChunk
	for i := 0; i < 3; i++ {
		frames = append(frames, st.Frames(agent.Chunk{Datasets: []string{"sales"}})...)
	}

	facts := 0
	for _, f := range frames {
		for _, c := range f.Choices {
			for _, tc := range c.Delta.ToolCalls {
				if tc.Function.Name == "datasets_used" {
					facts++
				}
			}
		}
	}
	if facts != 1 {
		t.Errorf("datasets_used facts = %d, want exactly 1", facts)
	}
}

func TestSQLFactDedupAcrossChunks(t *testing.T) {
	st := stream.NewState("gopie", 1700000000)

	first := st.Frames(agent.Chunk{SQLQueries: []string{"SELECT 1", "SELECT 2"}})
	second := st.Frames(agent.Chunk{SQLQueries: []string{"SELECT 2", "SELECT 3"}})

	if len(first) != 1 {
		t.Fatalf("first chunk frames = %d, want 1", len(first))
	}
	if len(second) != 1 {
		t.Fatalf("second chunk frames = %d, want 1", len(second))
	}

	var payload struct {
		SQLQueries []string `json:"sql_queries"`
	}
	args := second[0].Choices[0].Delta.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if len(payload.SQLQueries) != 1 || payload.SQLQueries[0] != "SELECT 3" {
		t.Errorf("second fact = %v, want only the unseen query", payload.SQLQueries)
	}
}

// ─── Role placement and call IDs ──────────────────────────────────────────────

func TestRoleOnFirstContentChunkOnly(t *testing.T) {
	st := stream.NewState("gopie", 1700000000)

	first := st.Frames(agent.Chunk{Content: "Hello"})
	second := st.Frames(agent.Chunk{Content: " world"})

	if got := first[0].Choices[0].Delta.Role; got != "assistant" {
		t.Errorf("first chunk role = %q, want assistant", got)
	}
	if got := second[0].Choices[0].Delta.Role; got != "" {
		t.Errorf("second chunk role = %q, want omitted", got)
	}

	// The marshaled delta must omit the role key entirely after chunk 1.
	b, err := json.Marshal(second[0].Choices[0].Delta)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), `"role"`) {
		t.Errorf("second chunk delta should omit role key, got %s", b)
	}
}

func TestToolCallIDsIncrement(t *testing.T) {
	st := stream.NewState("gopie", 1700000000)

	frames := st.Frames(agent.Chunk{
		Datasets:   []string{"a"},
		SQLQueries: []string{"SELECT 1"},
	})
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2 (one per fact category)", len(frames))
	}
	if id := frames[0].Choices[0].Delta.ToolCalls[0].ID; id != "call_0" {
		t.Errorf("first call ID = %q, want call_0", id)
	}
	if id := frames[1].Choices[0].Delta.ToolCalls[0].ID; id != "call_1" {
		t.Errorf("second call ID = %q, want call_1", id)
	}
}

// ─── Stream termination ───────────────────────────────────────────────────────

func collectSSE(t *testing.T, chunks []agent.Chunk) string {
	t.Helper()
	rec := httptest.NewRecorder()
	st := stream.NewState("gopie", 1700000000)
	sw, err := stream.NewSSEWriter(rec, st)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks {
		sw.Write(c)
	}
	sw.Close()
	return rec.Body.String()
}

func TestStreamEndsWithDone(t *testing.T) {
	body := collectSSE(t, []agent.Chunk{{Content: "hi"}})

	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream must end with the DONE sentinel, got tail %q", tail(body))
	}
}

func TestStreamTerminatesOnError(t *testing.T) {
	body := collectSSE(t, []agent.Chunk{
		{Content: "partial"},
		{Err: errors.New("upstream exploded")},
	})

	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("errored stream must still end with DONE, got tail %q", tail(body))
	}

	finishReasons := parseFinishReasons(t, body)
	if len(finishReasons) != 1 {
		t.Fatalf("final finish_reason frames = %d, want exactly 1", len(finishReasons))
	}
	if finishReasons[0] == "stop" {
		t.Errorf("finish_reason = stop, want an error-kind value")
	}
}

func TestFinalChunkHasFinishReason(t *testing.T) {
	body := collectSSE(t, []agent.Chunk{{Content: "answer"}})

	finishReasons := parseFinishReasons(t, body)
	if len(finishReasons) != 1 || finishReasons[0] != "stop" {
		t.Errorf("finish reasons = %v, want exactly one %q", finishReasons, "stop")
	}
}

func parseFinishReasons(t *testing.T, body string) []string {
	t.Helper()
	var reasons []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
			continue
		}
		var frame models.ChatCompletionChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("invalid frame %q: %v", line, err)
		}
		for _, c := range frame.Choices {
			if c.FinishReason != nil {
				reasons = append(reasons, *c.FinishReason)
			}
		}
	}
	return reasons
}

func tail(s string) string {
	if len(s) > 80 {
		return s[len(s)-80:]
	}
	return s
}

// ─── Non-streaming aggregation ────────────────────────────────────────────────

func TestAggregatorOneCallPerCategory(t *testing.T) {
	st := stream.NewState("gopie", 1700000000)
	agg := stream.NewAggregator(st)

	agg.Add(agent.Chunk{Content: "The answer ", Datasets: []string{"sales"}})
	agg.Add(agent.Chunk{Content: "is 42.", Datasets: []string{"sales", "orders"}, SQLQueries: []string{"SELECT 42"}})

	completion := agg.Completion()
	if got := completion.Choices[0].Message.Content; got != "The answer is 42." {
		t.Errorf("content = %q", got)
	}

	calls := completion.Choices[0].Message.ToolCalls
	byName := map[string]int{}
	for _, c := range calls {
		byName[c.Function.Name]++
	}
	if byName["datasets_used"] != 1 || byName["sql_query"] != 1 {
		t.Errorf("tool calls per category = %v, want one each", byName)
	}

	var payload struct {
		Datasets []string `json:"datasets"`
	}
	for _, c := range calls {
		if c.Function.Name == "datasets_used" {
			if err := json.Unmarshal([]byte(c.Function.Arguments), &payload); err != nil {
				t.Fatal(err)
			}
		}
	}
	if len(payload.Datasets) != 2 {
		t.Errorf("aggregated datasets = %v, want both deduplicated names", payload.Datasets)
	}
}

func TestAggregatorCoercesErrorFinishReason(t *testing.T) {
	st := stream.NewState("gopie", 1700000000)
	agg := stream.NewAggregator(st)
	agg.Add(agent.Chunk{Err: errors.New("boom")})

	completion := agg.Completion()
	if got := completion.Choices[0].FinishReason; got != "stop" {
		t.Errorf("finish_reason = %q, want coerced to stop", got)
	}
}
