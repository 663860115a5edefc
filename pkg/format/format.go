// Package format implements the detection chain that normalizes
// heterogeneous chat and instruction datasets to the canonical message
// schema in [chat].
//
// A chain runs a fixed sequence of stages: merger, sft, conv_text,
// conv, dpo, output, and, when textualization is requested, to_text.
// Each stage probes one sampled record for applicability and, when it
// recognizes the layout, rewrites the whole dataset. A stage whose
// config is absent is skipped. The chain accumulates the names of the
// applied stages and the columns that now hold canonical message
// lists; the output stage can project the dataset down to those
// columns.
package format

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/judge"
)

// Config selects and configures the chain's stages. Nil stage configs
// are skipped entirely.
type Config struct {
	Merger   *MergerConfig   `json:"merger,omitempty" yaml:"merger,omitempty"`
	SFT      *SFTConfig      `json:"sft,omitempty" yaml:"sft,omitempty"`
	ConvText *ConvTextConfig `json:"conv_text,omitempty" yaml:"conv_text,omitempty"`
	Conv     *ConvConfig     `json:"conv,omitempty" yaml:"conv,omitempty"`
	DPO      *DPOConfig      `json:"dpo,omitempty" yaml:"dpo,omitempty"`
	Output   *OutputConfig   `json:"output,omitempty" yaml:"output,omitempty"`
	ToText   *ToTextConfig   `json:"to_text,omitempty" yaml:"to_text,omitempty"`

	// Textualize appends the to_text stage, flattening canonical
	// message columns to formatted text.
	Textualize bool `json:"textualize,omitempty" yaml:"textualize,omitempty"`
}

// Stage is one detector in the chain.
type Stage interface {
	// Name identifies the stage in logs and run results.
	Name() string

	// Detect probes ds and returns the transform to apply, or nil when
	// the stage does not recognize the dataset.
	Detect(ctx context.Context, ds *dataset.Dataset) (*Transform, error)
}

// Transform is an applicable stage's rewrite.
type Transform struct {
	// MessageColumns are the columns the rewrite leaves holding
	// canonical message lists.
	MessageColumns []string

	// Apply rewrites the dataset. It must not mutate its input.
	Apply func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error)
}

// Option configures a Chain.
type Option func(*chainOptions)

type chainOptions struct {
	judge judge.Completer
}

// WithJudge provides the judge used by judge-assisted detection. A
// config that needs one fails fast in [New] when none is given.
func WithJudge(j judge.Completer) Option {
	return func(o *chainOptions) { o.judge = j }
}

// Chain runs configured stages in a fixed order.
type Chain struct {
	cfg    *Config
	stages []Stage
	toText *toTextStage
}

// New builds a Chain from cfg.
func New(cfg *Config, opts ...Option) (*Chain, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var o chainOptions
	for _, opt := range opts {
		opt(&o)
	}
	ch := &Chain{cfg: cfg}
	if cfg.Merger != nil {
		ch.stages = append(ch.stages, newMerger(cfg.Merger))
	}
	if cfg.SFT != nil {
		st, err := newSFT(cfg.SFT, o.judge)
		if err != nil {
			return nil, err
		}
		ch.stages = append(ch.stages, st)
	}
	if cfg.ConvText != nil {
		st, err := newConvText(cfg.ConvText, o.judge)
		if err != nil {
			return nil, err
		}
		ch.stages = append(ch.stages, st)
	}
	if cfg.Conv != nil {
		ch.stages = append(ch.stages, newConv(cfg.Conv))
	}
	if cfg.DPO != nil {
		st, err := newDPO(cfg.DPO)
		if err != nil {
			return nil, err
		}
		ch.stages = append(ch.stages, st)
	}
	if cfg.Textualize {
		st, err := newToText(cfg.ToText)
		if err != nil {
			return nil, err
		}
		ch.toText = st
	}
	return ch, nil
}

// Result reports one chain run.
type Result struct {
	Dataset *dataset.Dataset

	// Applied lists the stages that recognized the dataset, in run
	// order.
	Applied []string

	// MessageColumns are the columns holding canonical message lists
	// after the run, in the order stages registered them.
	MessageColumns []string
}

// Run detects and applies each configured stage once, in order. A chain
// whose stages all pass leaves the dataset untouched.
func (ch *Chain) Run(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	res := &Result{Dataset: ds}
	seen := make(map[string]bool)
	register := func(cols []string) {
		for _, c := range cols {
			if !seen[c] {
				seen[c] = true
				res.MessageColumns = append(res.MessageColumns, c)
			}
		}
	}
	run := func(st Stage) error {
		t, err := st.Detect(ctx, res.Dataset)
		if err != nil {
			return fmt.Errorf("format: %s: detect: %w", st.Name(), err)
		}
		if t == nil {
			slog.Debug("format: stage not applicable", "stage", st.Name())
			return nil
		}
		out, err := t.Apply(ctx, res.Dataset)
		if err != nil {
			return fmt.Errorf("format: %s: apply: %w", st.Name(), err)
		}
		slog.Debug("format: stage applied", "stage", st.Name(), "columns", t.MessageColumns)
		res.Dataset = out
		res.Applied = append(res.Applied, st.Name())
		register(t.MessageColumns)
		return nil
	}
	for _, st := range ch.stages {
		if err := run(st); err != nil {
			return nil, err
		}
	}
	if ch.cfg.Output != nil {
		out, err := ch.cfg.Output.apply(res.Dataset, res.MessageColumns)
		if err != nil {
			return nil, fmt.Errorf("format: output: %w", err)
		}
		res.Dataset = out
		res.Applied = append(res.Applied, "output")
	}
	if ch.toText != nil {
		if err := run(ch.toText); err != nil {
			return nil, err
		}
	}
	return res, nil
}
