package dedup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/dedup"
)

// mapEmbedder returns a fixed vector per text and counts batches, so
// tests control the distance geometry exactly.
type mapEmbedder struct {
	vectors map[string][]float32
	batches int
}

func (m *mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mapEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batches++
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := m.vectors[text]
		if !ok {
			return nil, errors.New("no vector for " + text)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (m *mapEmbedder) Dimension() int { return 2 }

func (m *mapEmbedder) Model() string { return "fake-model" }

func textDataset(column string, texts ...string) *dataset.Dataset {
	rows := make([]dataset.Record, len(texts))
	for i, text := range texts {
		rows[i] = dataset.Record{column: text, "n": i}
	}
	return dataset.New([]string{column, "n"}, rows)
}

func columnStrings(t *testing.T, ds *dataset.Dataset, column string) []string {
	t.Helper()
	out := make([]string, 0, ds.Len())
	for _, cell := range ds.Column(column) {
		s, ok := cell.(string)
		if !ok {
			t.Fatalf("cell %v is %T, want string", cell, cell)
		}
		out = append(out, s)
	}
	return out
}

func TestSemanticCollapsesExactDuplicates(t *testing.T) {
	ds := textDataset("messages", "alpha", "beta", "alpha", "gamma")
	emb := &mapEmbedder{vectors: map[string][]float32{
		"alpha": {0, 0},
		"beta":  {10, 0},
		"gamma": {0, 10},
	}}

	dd, err := dedup.Semantic(context.Background(), ds, emb, nil)
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}

	got := columnStrings(t, dd[dedup.KeyDeduplicated], "messages")
	want := []string{"alpha", "beta", "gamma"}
	if len(got) != len(want) {
		t.Fatalf("deduplicated = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("deduplicated = %v, want %v", got, want)
		}
	}
	// The surviving alpha is the first one.
	if n := dd[dedup.KeyDeduplicated].Row(0)["n"]; n != 0 {
		t.Fatalf("kept alpha row n = %v, want 0", n)
	}

	// The dropped copy's text still exists in the kept rows, so the
	// duplicates set stays empty.
	if n := dd[dedup.KeyDuplicates].Len(); n != 0 {
		t.Fatalf("duplicates len = %d, want 0", n)
	}
}

func TestSemanticReportsFullyDroppedTexts(t *testing.T) {
	// x1, x2 and both y1 rows all score zero: x2 shares x1's vector and
	// the y1 rows are exact twins. The collapse keeps only x1, so the
	// texts x2 and y1 disappear entirely and land in duplicates.
	ds := textDataset("messages", "x1", "x2", "y1", "y1", "far")
	emb := &mapEmbedder{vectors: map[string][]float32{
		"x1":  {0, 0},
		"x2":  {0, 0},
		"y1":  {5, 0},
		"far": {20, 0},
	}}

	dd, err := dedup.Semantic(context.Background(), ds, emb, nil)
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}

	// Raw twin distances: x1, x2, y1, y1 are all 0; far's nearest
	// neighbour is y1 at 15^2 = 225. Normalized: [0 0 0 0 1]. Rows
	// below 0.2 share score 0, so only x1 survives the collapse.
	got := columnStrings(t, dd[dedup.KeyDeduplicated], "messages")
	if len(got) != 2 || got[0] != "x1" || got[1] != "far" {
		t.Fatalf("deduplicated = %v, want [x1 far]", got)
	}

	dup := columnStrings(t, dd[dedup.KeyDuplicates], "messages")
	if len(dup) != 3 || dup[0] != "x2" || dup[1] != "y1" || dup[2] != "y1" {
		t.Fatalf("duplicates = %v, want [x2 y1 y1]", dup)
	}
	// Duplicates keep the original columns and row data.
	if n := dd[dedup.KeyDuplicates].Row(0)["n"]; n != 1 {
		t.Fatalf("duplicate x2 row n = %v, want 1", n)
	}
}

func TestSemanticThresholdAndColumnOverrides(t *testing.T) {
	ds := textDataset("text", "p", "p", "q")
	emb := &mapEmbedder{vectors: map[string][]float32{
		"p": {0, 0},
		"q": {1, 0},
	}}

	// Raw scores [0 0 1] normalize to themselves. A 0.5 threshold
	// collapses the two p rows.
	half := 0.5
	dd, err := dedup.Semantic(context.Background(), ds, emb, &dedup.Config{Column: "text", Threshold: &half})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	got := columnStrings(t, dd[dedup.KeyDeduplicated], "text")
	if len(got) != 2 || got[0] != "p" || got[1] != "q" {
		t.Fatalf("deduplicated = %v, want [p q]", got)
	}

	// A zero threshold keeps everything: no score is below it.
	zero := 0.0
	dd, err = dedup.Semantic(context.Background(), ds, emb, &dedup.Config{Column: "text", Threshold: &zero})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if n := dd[dedup.KeyDeduplicated].Len(); n != 3 {
		t.Fatalf("deduplicated len = %d, want all 3 rows", n)
	}
	if n := dd[dedup.KeyDuplicates].Len(); n != 0 {
		t.Fatalf("duplicates len = %d, want 0", n)
	}
}

func TestSemanticAllEqualDistancesKeepsOneRow(t *testing.T) {
	// Every vector is identical, so min and max distance coincide.
	// All scores become zero and a single representative survives.
	ds := textDataset("messages", "a", "b", "b")
	emb := &mapEmbedder{vectors: map[string][]float32{
		"a": {0, 0},
		"b": {0, 0},
	}}

	dd, err := dedup.Semantic(context.Background(), ds, emb, nil)
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	got := columnStrings(t, dd[dedup.KeyDeduplicated], "messages")
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("deduplicated = %v, want [a]", got)
	}
	dup := columnStrings(t, dd[dedup.KeyDuplicates], "messages")
	if len(dup) != 2 || dup[0] != "b" || dup[1] != "b" {
		t.Fatalf("duplicates = %v, want [b b]", dup)
	}
}

func TestSemanticPassThrough(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{}}

	cases := map[string]*dataset.Dataset{
		"empty":          dataset.New([]string{"messages"}, nil),
		"missing column": textDataset("other", "a", "a"),
		"no duplicates":  textDataset("messages", "a", "b"),
		"non-string": dataset.New([]string{"messages"}, []dataset.Record{
			{"messages": 1}, {"messages": 1},
		}),
	}

	for name, ds := range cases {
		t.Run(name, func(t *testing.T) {
			dd, err := dedup.Semantic(context.Background(), ds, emb, nil)
			if err != nil {
				t.Fatalf("Semantic: %v", err)
			}
			if !dd[dedup.KeyDeduplicated].Equal(ds) {
				t.Fatal("deduplicated is not the input dataset")
			}
			if n := dd[dedup.KeyDuplicates].Len(); n != 0 {
				t.Fatalf("duplicates len = %d, want 0", n)
			}
			if emb.batches != 0 {
				t.Fatalf("embedder called %d times for pass-through", emb.batches)
			}
		})
	}
}

func TestSemanticEmbedderErrors(t *testing.T) {
	ds := textDataset("messages", "a", "a")
	emb := &mapEmbedder{vectors: map[string][]float32{}} // no vectors at all

	_, err := dedup.Semantic(context.Background(), ds, emb, nil)
	if err == nil {
		t.Fatal("Semantic succeeded with failing embedder")
	}
}
