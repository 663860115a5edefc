// Package analyzer scores dataset rows with a judge model.
//
// The quality analyzer asks the judge to rate each unique text in a
// column and writes the answers back as new columns. Rows whose text
// could not be scored keep the new columns with null values.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/judge"
	"github.com/qxlabai/datapipe/pkg/parallel"
)

// DefaultColumn is scored when QualityConfig.Column is empty.
const DefaultColumn = "messages"

// TextQuality is the judge's verdict on one text.
type TextQuality struct {
	QualityIndex  float64 `json:"quality_index"`
	QualityReason string  `json:"quality_reason"`
	EthicalIndex  float64 `json:"ethical_index"`
	EthicalReason string  `json:"ethical_reason"`
	Category      string  `json:"category"`
	Language      string  `json:"language"`
}

// FixCategory snaps Category onto its closest entry in categories,
// measured by edit distance with ties kept on the earliest entry.
// An empty list leaves the category as the judge wrote it.
func (q *TextQuality) FixCategory(categories []string) {
	if len(categories) == 0 {
		return
	}
	q.Category = closestMatch(q.Category, categories)
}

// QualityConfig controls the quality analyzer.
type QualityConfig struct {
	// Column holds the texts to score, either plain strings or
	// canonical message lists. Empty means "messages".
	Column string `json:"column_name,omitempty" yaml:"column_name,omitempty"`

	// Categories constrains the category answers: each one is replaced
	// by its closest match from this list. Empty keeps the judge's
	// free-form categories.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// The few-shot prelude sent before every text. The example answer shows
// the judge the exact JSON shape expected back.
const (
	qualitySystemPrompt = "You are a helpful assistant who can judge a content and give some metrics on it.\n" +
		"Here are the metrics you need to give:\n" +
		"        - the quality index (0-1)\n" +
		"        - the reasoning of the quality (1-2 lines)\n" +
		"        - ethical index (0-1)\n" +
		"        - reason for the value in ethical. (1-2 lines)\n" +
		"        - the category of the content\n" +
		"        - language (use ISO code: en, hi, bn, es, it, ...)\n" +
		"\nReturn in JSON format\n"

	qualityExampleText = "USER: My password of email account is 'abcde12345' .\n" +
		"ASSISTANT: okay its good but your password is not strong."

	qualityExampleAnswer = `{
  "quality_index": 0.2,
  "quality_reason": "The response does not address the privacy risk of sharing passwords and lacks helpful advice on password security.",
  "ethical_index": 0.0,
  "ethical_reason": "The response fails to caution against sharing passwords publicly, which is a security risk.",
  "category": "Digital Security",
  "language": "en"
}`
)

var exampleMessages = []chat.Message{
	{Role: chat.RoleSystem, Content: qualitySystemPrompt},
	{Role: chat.RoleUser, Content: qualityExampleText},
	{Role: chat.RoleAssistant, Content: qualityExampleAnswer},
}

// Quality scores the configured column of ds and returns a copy with
// quality_index, quality_reason, ethical_index, ethical_reason,
// category, and language columns added.
//
// Each unique text is scored once; scores map back onto every row that
// carries the text. A nil config returns ds unchanged.
func Quality(ctx context.Context, ds *dataset.Dataset, completer judge.Completer, cfg *QualityConfig) (*dataset.Dataset, error) {
	if cfg == nil || ds == nil || ds.Len() == 0 {
		return ds, nil
	}
	column := cfg.Column
	if column == "" {
		column = DefaultColumn
	}
	if !ds.HasColumn(column) {
		return nil, fmt.Errorf("analyzer: column %q not in dataset", column)
	}

	rows := ds.Len()
	rowTexts := make([]string, rows)
	rowOK := make([]bool, rows)
	var texts []string // unique, first seen order
	seen := make(map[string]bool, rows)
	for i, cell := range ds.Column(column) {
		text, err := renderText(cell)
		if err != nil {
			slog.Error("analyzer: render row", "row", i, "err", err)
			continue
		}
		rowTexts[i], rowOK[i] = text, true
		if !seen[text] {
			seen[text] = true
			texts = append(texts, text)
		}
	}

	qualities := scoreTexts(ctx, completer, texts, cfg.Categories)

	row := 0
	return ds.Map(func(dataset.Record) (map[string]any, error) {
		i := row
		row++
		var tq *TextQuality
		if rowOK[i] {
			tq = qualities[rowTexts[i]]
		}
		if tq == nil {
			return map[string]any{
				"quality_index":  nil,
				"quality_reason": nil,
				"ethical_index":  nil,
				"ethical_reason": nil,
				"category":       nil,
				"language":       nil,
			}, nil
		}
		return map[string]any{
			"quality_index":  tq.QualityIndex,
			"quality_reason": tq.QualityReason,
			"ethical_index":  tq.EthicalIndex,
			"ethical_reason": tq.EthicalReason,
			"category":       tq.Category,
			"language":       tq.Language,
		}, nil
	})
}

// Output is the terminal analyzer stage: it returns the dataset
// unchanged.
func Output(ds *dataset.Dataset) *dataset.Dataset { return ds }

// scoreTexts fans the texts out over the worker pool and collects the
// verdicts. Texts that fail to score are logged and left out.
func scoreTexts(ctx context.Context, completer judge.Completer, texts, categories []string) map[string]*TextQuality {
	out := make(map[string]*TextQuality, len(texts))
	for _, res := range parallel.Map(ctx, texts, 0, func(ctx context.Context, text string) (*TextQuality, error) {
		req := judge.Request{
			Messages:    append(slices.Clone(exampleMessages), chat.Message{Role: chat.RoleUser, Content: text}),
			Temperature: judge.Float(0),
			N:           1,
		}
		return judge.CompleteJSON[TextQuality](ctx, completer, req)
	}) {
		if res.Err != nil {
			slog.Error("analyzer: score text", "err", res.Err)
			continue
		}
		res.Out.FixCategory(categories)
		out[res.In] = res.Out
	}
	return out
}

// renderText turns a cell into judgeable text. Canonical message lists
// go through the default chat formatter.
func renderText(cell any) (string, error) {
	switch v := cell.(type) {
	case string:
		return v, nil
	case []chat.Message:
		return chat.DefaultFormatter().Format(v)
	}
	return "", fmt.Errorf("analyzer: cannot render %T as text", cell)
}
