// Package dedup splits a dataset into kept rows and near-duplicate rows
// using embedding distance.
//
// Every text in the configured column is embedded and indexed, then each
// row is scored by the squared L2 distance to its second-nearest
// neighbour. Exact duplicates score zero against their twin; near
// duplicates score close to zero. Scores are min-max normalized and rows
// scoring below the threshold collapse to one row per distinct score,
// keeping the first.
package dedup

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/embed"
	"github.com/qxlabai/datapipe/pkg/parallel"
	"github.com/qxlabai/datapipe/pkg/vecstore"
)

// Keys of the dataset dict returned by Semantic.
const (
	KeyDeduplicated = "deduplicated"
	KeyDuplicates   = "duplicates"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultColumn    = "messages"
	DefaultThreshold = 0.2
)

// Config controls semantic deduplication.
type Config struct {
	// Column is the text column rows are compared on. Empty means
	// "messages".
	Column string `json:"column,omitempty" yaml:"column,omitempty"`

	// Threshold is the normalized distance below which a row counts as
	// a near-duplicate. Nil means 0.2.
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

func (c *Config) column() string {
	if c == nil || c.Column == "" {
		return DefaultColumn
	}
	return c.Column
}

func (c *Config) threshold() float64 {
	if c == nil || c.Threshold == nil {
		return DefaultThreshold
	}
	return *c.Threshold
}

// Semantic splits ds into deduplicated rows and the dropped duplicates,
// under the keys [KeyDeduplicated] and [KeyDuplicates].
//
// Deduplication only applies when the column exists, holds only strings,
// and contains at least one exact duplicate text. Otherwise the whole
// dataset is returned as deduplicated with an empty duplicates set.
func Semantic(ctx context.Context, ds *dataset.Dataset, embedder embed.Embedder, cfg *Config) (dataset.Dict, error) {
	texts, ok := dedupableTexts(ds, cfg.column())
	if !ok {
		return dataset.Dict{KeyDeduplicated: ds, KeyDuplicates: ds.Empty()}, nil
	}

	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("dedup: embed column %q: %w", cfg.column(), err)
	}

	scores, err := twinDistances(ctx, texts, vecs)
	if err != nil {
		return nil, err
	}
	normalize(scores)

	threshold := cfg.threshold()
	kept := make([]int, 0, len(texts))
	seen := make(map[float64]bool)
	for i, score := range scores {
		if score < threshold {
			// Near-duplicates collapse to one row per distinct score.
			if seen[score] {
				continue
			}
			seen[score] = true
		}
		kept = append(kept, i)
	}

	keptTexts := make(map[string]bool, len(kept))
	for _, i := range kept {
		keptTexts[texts[i]] = true
	}
	var dropped []int
	for i, text := range texts {
		if !keptTexts[text] {
			dropped = append(dropped, i)
		}
	}

	deduplicated, err := ds.FilterRows(kept)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}
	duplicates, err := ds.FilterRows(dropped)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}
	return dataset.Dict{KeyDeduplicated: deduplicated, KeyDuplicates: duplicates}, nil
}

// dedupableTexts returns the column's texts when the dataset qualifies
// for deduplication.
func dedupableTexts(ds *dataset.Dataset, column string) ([]string, bool) {
	if ds == nil || ds.Len() == 0 || !ds.HasColumn(column) {
		return nil, false
	}
	texts := make([]string, ds.Len())
	distinct := make(map[string]bool, ds.Len())
	for i, cell := range ds.Column(column) {
		text, ok := cell.(string)
		if !ok {
			return nil, false
		}
		texts[i] = text
		distinct[text] = true
	}
	if len(distinct) == len(texts) {
		return nil, false
	}
	return texts, true
}

// twinDistances returns, per row, the squared L2 distance to the
// second-nearest indexed vector. All vectors are indexed, duplicates
// included, so a row with an exact twin scores zero.
func twinDistances(ctx context.Context, texts []string, vecs [][]float32) ([]float64, error) {
	index := vecstore.NewFlat(0)
	ids := make([]string, len(texts))
	for i, text := range texts {
		ids[i] = uuid.NewMD5(uuid.NameSpaceDNS, []byte(text)).String()
	}
	if err := index.BatchInsert(ids, vecs); err != nil {
		return nil, fmt.Errorf("dedup: index: %w", err)
	}

	scores := make([]float64, len(vecs))
	for i, res := range parallel.Map(ctx, vecs, 0, func(_ context.Context, vec []float32) (float64, error) {
		matches, err := index.Search(vec, 2)
		if err != nil {
			return 0, err
		}
		return float64(matches[len(matches)-1].Distance), nil
	}) {
		if res.Err != nil {
			return nil, fmt.Errorf("dedup: score row %d: %w", i, res.Err)
		}
		scores[i] = res.Out
	}
	return scores, nil
}

// normalize rescales scores to [0, 1]. When every score is equal they
// all become zero, so one representative row survives the threshold.
func normalize(scores []float64) {
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi == lo {
		for i := range scores {
			scores[i] = 0
		}
		return
	}
	for i := range scores {
		scores[i] = (scores[i] - lo) / (hi - lo)
	}
}
