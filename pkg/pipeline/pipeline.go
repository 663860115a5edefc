// Package pipeline turns job config files into runnable dataset jobs:
// load splits, normalize their format, deduplicate, analyze and save.
//
// A job file configures one [JobConfig]; a pipeline file holds a list
// of them under a "jobs" key. Both JSON and YAML are accepted.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Pipeline is an ordered list of jobs run back to back.
type Pipeline struct {
	Jobs []*JobConfig `json:"jobs" yaml:"jobs"`
}

// FromFile reads a pipeline from a JSON or YAML file. A file holding a
// single job config becomes a one-job pipeline.
func FromFile(path string) (*Pipeline, error) {
	var job JobConfig
	if err := decodeFile(path, &job); err == nil && job.Load != nil {
		return &Pipeline{Jobs: []*JobConfig{&job}}, nil
	}
	var p Pipeline
	if err := decodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("pipeline: parse %s: %w", path, err)
	}
	if len(p.Jobs) == 0 {
		return nil, fmt.Errorf("pipeline: %s holds neither a job nor a pipeline", path)
	}
	return &p, nil
}

// FromDir collects every job and pipeline file directly under dir, in
// name order. Files that fail to parse are logged and skipped; a config
// appearing in several files runs once.
func FromDir(dir string) (*Pipeline, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", dir, err)
	}

	merged := &Pipeline{}
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := FromFile(path)
		if err != nil {
			slog.Warn("pipeline: skipping config", "path", path, "error", err)
			continue
		}
		for _, job := range p.Jobs {
			key, err := json.Marshal(job)
			if err != nil {
				return nil, fmt.Errorf("pipeline: fingerprint %s: %w", path, err)
			}
			if seen[string(key)] {
				continue
			}
			seen[string(key)] = true
			merged.Jobs = append(merged.Jobs, job)
		}
	}
	if len(merged.Jobs) == 0 {
		return nil, fmt.Errorf("pipeline: no job configs under %s", dir)
	}
	return merged, nil
}

// Run executes the jobs in order. A failing job is logged and does not
// stop the jobs after it; Run reports the collected failures once the
// last job finished. Cancelling ctx stops between jobs.
func (p *Pipeline) Run(ctx context.Context, opts ...JobOption) error {
	var errs []error
	for i, cfg := range p.Jobs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		slog.Info("pipeline: job starting", "job", i+1, "of", len(p.Jobs))
		if err := runJob(ctx, cfg, opts...); err != nil {
			slog.Error("pipeline: job failed", "job", i+1, "error", err)
			errs = append(errs, fmt.Errorf("job %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

func runJob(ctx context.Context, cfg *JobConfig, opts ...JobOption) error {
	job, err := NewJob(cfg, opts...)
	if err != nil {
		return err
	}
	_, err = job.Run(ctx)
	if cerr := job.Close(); err == nil {
		err = cerr
	}
	return err
}

// decodeFile unmarshals path into v, picking the decoder by extension.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return json.Unmarshal(data, v)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported extension %q", ext)
	}
}
