package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/qxlabai/datapipe/pkg/analyzer"
	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/dedup"
	"github.com/qxlabai/datapipe/pkg/embed"
	"github.com/qxlabai/datapipe/pkg/format"
	"github.com/qxlabai/datapipe/pkg/judge"
	"github.com/qxlabai/datapipe/pkg/loader"
	"github.com/qxlabai/datapipe/pkg/parallel"
	"github.com/qxlabai/datapipe/pkg/saver"
)

// DedupConfig selects the deduplication strategies a job applies.
// Strategies left nil are skipped.
type DedupConfig struct {
	Semantic *dedup.Config `json:"semantic,omitempty" yaml:"semantic,omitempty"`
}

// AnalyzeConfig selects the analyzers a job applies. Analyzers left nil
// are skipped.
type AnalyzeConfig struct {
	Quality *analyzer.QualityConfig `json:"quality,omitempty" yaml:"quality,omitempty"`
}

// JobConfig describes one dataset job. Load is required; every other
// stage runs only when its section is present.
type JobConfig struct {
	Load        *loader.Config `json:"load,omitempty" yaml:"load,omitempty"`
	Format      *format.Config `json:"format,omitempty" yaml:"format,omitempty"`
	Deduplicate *DedupConfig   `json:"deduplicate,omitempty" yaml:"deduplicate,omitempty"`
	Analyze     *AnalyzeConfig `json:"analyze,omitempty" yaml:"analyze,omitempty"`
	Save        *saver.Config  `json:"save,omitempty" yaml:"save,omitempty"`

	// Judge and Embeddings configure the external models the stages
	// above call into.
	Judge      *judge.Config `json:"judge,omitempty" yaml:"judge,omitempty"`
	Embeddings *embed.Config `json:"embeddings,omitempty" yaml:"embeddings,omitempty"`
}

// Job is a runnable instance of a JobConfig with its clients built.
type Job struct {
	cfg       *JobConfig
	completer judge.Completer
	embedder  embed.Embedder
	chain     *format.Chain

	// embedClient is set only when the job opened the embeddings client
	// itself and owns closing it.
	embedClient *embed.Client
}

// JobOption overrides how a Job reaches external services.
type JobOption func(*Job)

// WithCompleter supplies the judge used by formatting and analysis,
// taking precedence over the config's judge section.
func WithCompleter(c judge.Completer) JobOption {
	return func(j *Job) { j.completer = c }
}

// WithEmbedder supplies the embedder used by deduplication, taking
// precedence over the config's embeddings section.
func WithEmbedder(e embed.Embedder) JobOption {
	return func(j *Job) { j.embedder = e }
}

// NewJob validates cfg, builds the configured clients and the format
// chain. Stages that need a judge or an embedder fail here, not at run
// time.
func NewJob(cfg *JobConfig, opts ...JobOption) (*Job, error) {
	if cfg == nil || cfg.Load == nil {
		return nil, errors.New("pipeline: job config needs a load section")
	}
	j := &Job{cfg: cfg}
	for _, opt := range opts {
		opt(j)
	}
	if j.completer == nil && cfg.Judge != nil {
		client, err := judge.NewClient(cfg.Judge)
		if err != nil {
			return nil, fmt.Errorf("pipeline: judge client: %w", err)
		}
		j.completer = client
	}
	if j.embedder == nil && cfg.Embeddings != nil {
		client, err := embed.Open(cfg.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("pipeline: embeddings client: %w", err)
		}
		j.embedder = client
		j.embedClient = client
	}
	if cfg.Deduplicate != nil && cfg.Deduplicate.Semantic != nil && j.embedder == nil {
		return nil, errors.New("pipeline: semantic deduplication needs an embeddings config")
	}
	if cfg.Analyze != nil && cfg.Analyze.Quality != nil && j.completer == nil {
		return nil, errors.New("pipeline: quality analysis needs a judge config")
	}
	if cfg.Format != nil {
		var chainOpts []format.Option
		if j.completer != nil {
			chainOpts = append(chainOpts, format.WithJudge(j.completer))
		}
		chain, err := format.New(cfg.Format, chainOpts...)
		if err != nil {
			return nil, fmt.Errorf("pipeline: format chain: %w", err)
		}
		j.chain = chain
	}
	return j, nil
}

// Close releases the clients the job opened itself. Injected clients
// stay open.
func (j *Job) Close() error {
	if j.embedClient != nil {
		return j.embedClient.Close()
	}
	return nil
}

// split pairs a dict key with its dataset while stages rename and fan
// out splits.
type split struct {
	name string
	ds   *dataset.Dataset
}

// Run loads the configured sources and pushes every split through the
// job's stages concurrently. A failing split is logged and dropped
// without touching its siblings; Run returns the splits that survived.
func (j *Job) Run(ctx context.Context) (dataset.Dict, error) {
	loaded, err := loader.New(j.cfg.Load).Load(ctx)
	if err != nil {
		return nil, err
	}

	names := slices.Sorted(maps.Keys(loaded))
	results := parallel.Map(ctx, names, 0, func(ctx context.Context, name string) ([]split, error) {
		return j.runSplit(ctx, name, loaded[name])
	})

	out := dataset.Dict{}
	for _, res := range results {
		if res.Err != nil {
			slog.Error("pipeline: split failed", "split", res.In, "error", res.Err)
			continue
		}
		for _, s := range res.Out {
			out[s.name] = s.ds
		}
	}
	if j.cfg.Save != nil {
		j.saveAll(ctx, out)
	}
	return out, nil
}

// runSplit applies format, deduplication and analysis to one loaded
// split. Deduplication fans the split out into a deduplicated and a
// duplicates part; duplicates are never analyzed.
func (j *Job) runSplit(ctx context.Context, name string, ds *dataset.Dataset) ([]split, error) {
	if j.chain != nil {
		res, err := j.chain.Run(ctx, ds)
		if err != nil {
			return nil, err
		}
		ds = res.Dataset
	}

	parts := []split{{name, ds}}
	if j.cfg.Deduplicate != nil && j.cfg.Deduplicate.Semantic != nil {
		dd, err := dedup.Semantic(ctx, ds, j.embedder, j.cfg.Deduplicate.Semantic)
		if err != nil {
			return nil, err
		}
		parts = []split{
			{name + "-" + dedup.KeyDeduplicated, dd[dedup.KeyDeduplicated]},
			{name + "-" + dedup.KeyDuplicates, dd[dedup.KeyDuplicates]},
		}
	}

	if j.cfg.Analyze != nil && j.cfg.Analyze.Quality != nil {
		for i, p := range parts {
			if strings.Contains(p.name, "duplicates") {
				continue
			}
			scored, err := analyzer.Quality(ctx, p.ds, j.completer, j.cfg.Analyze.Quality)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.name, err)
			}
			parts[i].ds = analyzer.Output(scored)
		}
	}
	return parts, nil
}

// saveAll writes every split under its own name, concurrently. Save
// failures are logged, not returned, so one bad split cannot block the
// others.
func (j *Job) saveAll(ctx context.Context, splits dataset.Dict) {
	names := slices.Sorted(maps.Keys(splits))
	results := parallel.Map(ctx, names, 0, func(ctx context.Context, name string) (string, error) {
		cfg := *j.cfg.Save
		cfg.Filename = name
		return saver.Save(ctx, splits[name], &cfg)
	})
	for _, res := range results {
		if res.Err != nil {
			slog.Error("pipeline: save failed", "split", res.In, "error", res.Err)
		}
	}
}
