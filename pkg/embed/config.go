package embed

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/qxlabai/datapipe/pkg/kv"
)

// config holds shared configuration for embedder implementations.
type config struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// Option configures an embedder.
type Option func(*config)

// WithModel sets the embedding model name.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithDimension sets the desired output vector dimensionality.
// Zero omits the parameter from requests and keeps the model's native
// dimensionality. Not all models support overriding it.
func WithDimension(dim int) Option {
	return func(c *config) { c.dim = dim }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// Config wires an embedder from a job file.
type Config struct {
	// BaseURL overrides the API endpoint. Empty means the OpenAI
	// default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey authenticates requests. A $VAR reference resolves from the
	// environment.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the embedding model name. Empty means
	// text-embedding-3-small.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Dimension overrides the output dimensionality on models that
	// support it. Zero keeps the model's native dimensionality.
	Dimension int `json:"dimension,omitempty" yaml:"dimension,omitempty"`

	// CacheDir enables the on-disk embedding cache in that directory.
	// Empty disables caching.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
}

// Client is the embedder a job config describes, plus the cache store
// backing it when one is open. Close releases the store.
type Client struct {
	Embedder

	store kv.Store
}

// Open builds the embedder cfg describes: an OpenAI-compatible client,
// wrapped in a badger-backed write-through cache when CacheDir is set.
func Open(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	opts := []Option{WithDimension(cfg.Dimension)}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	inner := NewOpenAI(expandEnv(cfg.APIKey), opts...)

	c := &Client{Embedder: inner}
	if cfg.CacheDir != "" {
		store, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.CacheDir})
		if err != nil {
			return nil, fmt.Errorf("embed: open cache: %w", err)
		}
		c.Embedder = NewCache(inner, store)
		c.store = store
	}
	return c, nil
}

// Close releases the cache store, when one is open.
func (c *Client) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// expandEnv resolves $VAR and ${VAR} references, so config files can
// point at the environment instead of holding keys.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}
