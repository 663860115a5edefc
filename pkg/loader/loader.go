// Package loader reads datasets into memory from the Hugging Face hub
// and from local files.
//
// A Config lists any number of hub and local file sources. Load fetches
// them all and merges the results into a dataset.Dict keyed by split
// name; when two sources produce the same name the later one wins. An
// optional jq expression reshapes every record after loading.
package loader

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/itchyny/gojq"

	"github.com/qxlabai/datapipe/pkg/dataset"
)

// Config selects the sources to load. At least one source must be set.
type Config struct {
	HuggingFace []HubConfig       `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
	LocalFile   []LocalFileConfig `json:"local,omitempty" yaml:"local,omitempty"`

	// Query is an optional jq expression applied to every record after
	// loading. It must produce an object, which replaces the record.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`
}

// Loader fetches the datasets described by a Config.
type Loader struct {
	cfg     *Config
	baseURL string
	client  *http.Client
}

// Option adjusts a Loader.
type Option func(*Loader)

// WithBaseURL points the hub API client at a different server.
func WithBaseURL(url string) Option {
	return func(l *Loader) { l.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client for hub requests.
func WithHTTPClient(client *http.Client) Option {
	return func(l *Loader) { l.client = client }
}

const defaultTimeout = 2 * time.Minute

// New builds a Loader for cfg.
func New(cfg *Config, opts ...Option) *Loader {
	l := &Loader{
		cfg:     cfg,
		baseURL: hubBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches every configured source and merges the splits.
func (l *Loader) Load(ctx context.Context) (dataset.Dict, error) {
	if l.cfg == nil || (len(l.cfg.HuggingFace) == 0 && len(l.cfg.LocalFile) == 0) {
		return nil, fmt.Errorf("loader: no sources configured")
	}

	var query *gojq.Query
	if l.cfg.Query != "" {
		q, err := gojq.Parse(l.cfg.Query)
		if err != nil {
			return nil, fmt.Errorf("loader: invalid query %q: %w", l.cfg.Query, err)
		}
		query = q
	}

	out := dataset.Dict{}
	for _, hub := range l.cfg.HuggingFace {
		splits, err := l.loadHub(ctx, hub)
		if err != nil {
			return nil, fmt.Errorf("loader: hub %q: %w", hub.Path, err)
		}
		maps.Copy(out, splits)
	}
	for _, file := range l.cfg.LocalFile {
		name, ds, err := loadLocalFile(file)
		if err != nil {
			return nil, fmt.Errorf("loader: file %q: %w", file.Path, err)
		}
		out[name] = ds
	}

	if query != nil {
		for name, ds := range out {
			reshaped, err := applyQuery(query, ds)
			if err != nil {
				return nil, fmt.Errorf("loader: query split %q: %w", name, err)
			}
			out[name] = reshaped
		}
	}
	return out, nil
}
