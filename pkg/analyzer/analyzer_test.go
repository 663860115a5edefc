package analyzer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/qxlabai/datapipe/pkg/analyzer"
	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/judge"
)

// cannedJudge answers by the last user message. Verdict requests fan
// out concurrently, so every access is locked.
type cannedJudge struct {
	mu      sync.Mutex
	answers map[string]string
	calls   []judge.Request
}

func (c *cannedJudge) Complete(_ context.Context, req judge.Request) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	last := req.Messages[len(req.Messages)-1].Content
	answer, ok := c.answers[last]
	if !ok {
		return nil, fmt.Errorf("no canned answer for %q", last)
	}
	return []string{answer}, nil
}

func (c *cannedJudge) requests(t *testing.T) []judge.Request {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]judge.Request(nil), c.calls...)
}

func verdict(quality float64, category, language string) string {
	return fmt.Sprintf(`{"quality_index": %v, "quality_reason": "r1", "ethical_index": 0.5, "ethical_reason": "r2", "category": %q, "language": %q}`,
		quality, category, language)
}

func TestQualityAddsScoreColumns(t *testing.T) {
	ds := dataset.New([]string{"messages", "id"}, []dataset.Record{
		{"messages": "hi", "id": 1},
		{"messages": "yo", "id": 2},
		{"messages": "hi", "id": 3},
	})
	j := &cannedJudge{answers: map[string]string{
		"hi": verdict(0.9, "greeting", "en"),
		"yo": verdict(0.4, "slang", "en"),
	}}

	out, err := analyzer.Quality(context.Background(), ds, j, &analyzer.QualityConfig{})
	if err != nil {
		t.Fatalf("Quality: %v", err)
	}

	if out.Len() != 3 {
		t.Fatalf("rows = %d, want 3", out.Len())
	}
	for _, col := range []string{"quality_index", "quality_reason", "ethical_index", "ethical_reason", "category", "language"} {
		if !out.HasColumn(col) {
			t.Fatalf("missing column %q in %v", col, out.Columns())
		}
	}

	first := out.Row(0)
	if first["quality_index"] != 0.9 || first["category"] != "greeting" || first["language"] != "en" {
		t.Fatalf("row 0 = %v, want the hi verdict", first)
	}
	if first["id"] != 1 {
		t.Fatalf("row 0 id = %v, want original value", first["id"])
	}
	// The duplicate text shares the unique verdict.
	if out.Row(2)["quality_index"] != 0.9 || out.Row(1)["quality_index"] != 0.4 {
		t.Fatalf("verdicts misassigned: %v / %v", out.Row(1), out.Row(2))
	}

	calls := j.requests(t)
	if len(calls) != 2 {
		t.Fatalf("judge calls = %d, want one per unique text", len(calls))
	}
	for _, req := range calls {
		if len(req.Messages) != 4 {
			t.Fatalf("messages = %d, want few-shot prelude plus text", len(req.Messages))
		}
		if req.Messages[0].Role != chat.RoleSystem {
			t.Fatalf("first message role = %q, want system", req.Messages[0].Role)
		}
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Fatalf("temperature = %v, want 0", req.Temperature)
		}
		if req.N != 1 {
			t.Fatalf("n = %d, want 1", req.N)
		}
		if req.Schema == nil {
			t.Fatal("request has no response schema")
		}
	}
}

func TestQualityRendersMessageLists(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "yo"},
	}
	rendered := "[INST] hi [/INST] yo"
	ds := dataset.New([]string{"messages"}, []dataset.Record{{"messages": msgs}})
	j := &cannedJudge{answers: map[string]string{
		rendered: verdict(0.7, "chat", "en"),
	}}

	out, err := analyzer.Quality(context.Background(), ds, j, &analyzer.QualityConfig{})
	if err != nil {
		t.Fatalf("Quality: %v", err)
	}
	if got := out.Row(0)["category"]; got != "chat" {
		t.Fatalf("category = %v, want chat (scored on rendered text)", got)
	}
	calls := j.requests(t)
	if len(calls) != 1 || calls[0].Messages[3].Content != rendered {
		t.Fatalf("judge saw %q, want %q", calls[0].Messages[3].Content, rendered)
	}
}

func TestQualitySnapsCategories(t *testing.T) {
	ds := dataset.New([]string{"text"}, []dataset.Record{{"text": "the rivers of europe"}})
	j := &cannedJudge{answers: map[string]string{
		"the rivers of europe": verdict(0.8, "Geografy", "en"),
	}}

	out, err := analyzer.Quality(context.Background(), ds, j, &analyzer.QualityConfig{
		Column:     "text",
		Categories: []string{"history", "geography", "science"},
	})
	if err != nil {
		t.Fatalf("Quality: %v", err)
	}
	if got := out.Row(0)["category"]; got != "geography" {
		t.Fatalf("category = %v, want geography", got)
	}
}

func TestQualityFailedTextGetsNullFields(t *testing.T) {
	ds := dataset.New([]string{"messages"}, []dataset.Record{
		{"messages": "hi"},
		{"messages": "unanswerable"},
	})
	j := &cannedJudge{answers: map[string]string{
		"hi": verdict(0.9, "greeting", "en"),
	}}

	out, err := analyzer.Quality(context.Background(), ds, j, &analyzer.QualityConfig{})
	if err != nil {
		t.Fatalf("Quality: %v", err)
	}
	if got := out.Row(0)["language"]; got != "en" {
		t.Fatalf("scored row language = %v, want en", got)
	}
	failed := out.Row(1)
	for _, col := range []string{"quality_index", "quality_reason", "ethical_index", "ethical_reason", "category", "language"} {
		if failed[col] != nil {
			t.Fatalf("failed row %q = %v, want nil", col, failed[col])
		}
	}
}

func TestQualityUnrenderableCell(t *testing.T) {
	ds := dataset.New([]string{"messages"}, []dataset.Record{{"messages": 5}})
	j := &cannedJudge{answers: map[string]string{}}

	out, err := analyzer.Quality(context.Background(), ds, j, &analyzer.QualityConfig{})
	if err != nil {
		t.Fatalf("Quality: %v", err)
	}
	if got := out.Row(0)["quality_index"]; got != nil {
		t.Fatalf("quality_index = %v, want nil", got)
	}
	if calls := j.requests(t); len(calls) != 0 {
		t.Fatalf("judge called %d times for unrenderable cell", len(calls))
	}
}

func TestQualityMissingColumn(t *testing.T) {
	ds := dataset.New([]string{"other"}, []dataset.Record{{"other": "x"}})
	_, err := analyzer.Quality(context.Background(), ds, &cannedJudge{}, &analyzer.QualityConfig{})
	if err == nil {
		t.Fatal("Quality succeeded without the scored column")
	}
}

func TestQualityNilConfig(t *testing.T) {
	ds := dataset.New([]string{"messages"}, []dataset.Record{{"messages": "hi"}})
	j := &cannedJudge{}

	out, err := analyzer.Quality(context.Background(), ds, j, nil)
	if err != nil {
		t.Fatalf("Quality: %v", err)
	}
	if out != ds {
		t.Fatal("nil config should return the dataset unchanged")
	}
	if calls := j.requests(t); len(calls) != 0 {
		t.Fatalf("judge called %d times with nil config", len(calls))
	}
}

func TestOutputIdentity(t *testing.T) {
	ds := dataset.New([]string{"a"}, []dataset.Record{{"a": 1}})
	if analyzer.Output(ds) != ds {
		t.Fatal("Output changed the dataset")
	}
}
