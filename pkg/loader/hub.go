package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/qxlabai/datapipe/pkg/dataset"
)

const (
	hubBaseURL = "https://datasets-server.huggingface.co"

	// The rows API serves at most 100 rows per request.
	hubPageLength = 100

	// hubPageConcurrency bounds parallel page fetches per split.
	hubPageConcurrency = 4
)

// HubConfig describes one dataset on the Hugging Face hub.
type HubConfig struct {
	// Path is the repository path, for example "tatsu-lab/alpaca".
	Path string `json:"path" yaml:"path"`
	// Name selects a dataset configuration when the repository has
	// several.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Token authenticates against gated or private datasets. A $VAR
	// reference resolves from the environment.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// Split loads a single split instead of all of them.
	Split string `json:"split,omitempty" yaml:"split,omitempty"`
	// TakeRows truncates every split to the first n rows.
	TakeRows int `json:"take_rows,omitempty" yaml:"take_rows,omitempty"`
	// CacheDir stores fetched splits on disk and reuses them on the
	// next load.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
}

type hubSplit struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
	Split   string `json:"split"`
}

type hubSplitsResponse struct {
	Splits []hubSplit `json:"splits"`
}

type hubFeature struct {
	FeatureIdx int    `json:"feature_idx"`
	Name       string `json:"name"`
}

type hubRow struct {
	RowIdx int            `json:"row_idx"`
	Row    map[string]any `json:"row"`
}

type hubRowsResponse struct {
	Features     []hubFeature `json:"features"`
	Rows         []hubRow     `json:"rows"`
	NumRowsTotal int          `json:"num_rows_total"`
}

// loadHub fetches every requested split of one hub dataset. Splits are
// named "{path}-{split}".
func (l *Loader) loadHub(ctx context.Context, cfg HubConfig) (dataset.Dict, error) {
	var splitsResp hubSplitsResponse
	params := url.Values{"dataset": {cfg.Path}}
	if err := l.hubGet(ctx, cfg.Token, "/splits", params, &splitsResp); err != nil {
		return nil, err
	}

	config, err := pickHubConfig(splitsResp.Splits, cfg.Name)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range splitsResp.Splits {
		if s.Config == config {
			names = append(names, s.Split)
		}
	}
	if cfg.Split != "" {
		if !slices.Contains(names, cfg.Split) {
			return nil, fmt.Errorf("split %q not found (have %s)", cfg.Split, strings.Join(names, ", "))
		}
		names = []string{cfg.Split}
	}

	out := dataset.Dict{}
	for _, split := range names {
		ds, err := l.loadHubSplit(ctx, cfg, config, split)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", split, err)
		}
		out[fmt.Sprintf("%s-%s", cfg.Path, split)] = ds
	}
	return out, nil
}

// pickHubConfig resolves the dataset configuration to load. Without an
// explicit name the dataset must have exactly one.
func pickHubConfig(splits []hubSplit, name string) (string, error) {
	var configs []string
	for _, s := range splits {
		if !slices.Contains(configs, s.Config) {
			configs = append(configs, s.Config)
		}
	}
	if len(configs) == 0 {
		return "", errors.New("no splits found")
	}
	if name == "" {
		if len(configs) > 1 {
			return "", fmt.Errorf("several configs available (%s), set name", strings.Join(configs, ", "))
		}
		return configs[0], nil
	}
	if !slices.Contains(configs, name) {
		return "", fmt.Errorf("config %q not found (have %s)", name, strings.Join(configs, ", "))
	}
	return name, nil
}

func (l *Loader) loadHubSplit(ctx context.Context, cfg HubConfig, config, split string) (*dataset.Dataset, error) {
	cachePath := ""
	if cfg.CacheDir != "" {
		cachePath = filepath.Join(cfg.CacheDir, hubCacheName(cfg, config, split))
		if ds, ok := readSplitCache(cachePath); ok {
			slog.Debug("loader: split served from cache", "path", cachePath)
			return ds, nil
		}
	}

	ds, err := l.fetchHubSplit(ctx, cfg, config, split)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		writeSplitCache(cachePath, ds)
	}
	return ds, nil
}

// fetchHubSplit pages through the rows API. The first page reports the
// row total and the column order; the remaining pages are fetched in
// parallel.
func (l *Loader) fetchHubSplit(ctx context.Context, cfg HubConfig, config, split string) (*dataset.Dataset, error) {
	first, err := l.fetchRowsPage(ctx, cfg, config, split, 0)
	if err != nil {
		return nil, err
	}

	need := first.NumRowsTotal
	if cfg.TakeRows > 0 && cfg.TakeRows < need {
		need = cfg.TakeRows
	}

	features := slices.Clone(first.Features)
	slices.SortStableFunc(features, func(a, b hubFeature) int { return a.FeatureIdx - b.FeatureIdx })
	cols := make([]string, len(features))
	for i, f := range features {
		cols[i] = f.Name
	}

	pages := make([]*hubRowsResponse, (need+hubPageLength-1)/hubPageLength)
	if len(pages) > 0 {
		pages[0] = first
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hubPageConcurrency)
	for p := 1; p < len(pages); p++ {
		g.Go(func() error {
			resp, err := l.fetchRowsPage(gctx, cfg, config, split, p*hubPageLength)
			if err != nil {
				return err
			}
			pages[p] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]dataset.Record, 0, need)
	for _, page := range pages {
		for _, r := range page.Rows {
			if len(rows) == need {
				break
			}
			rows = append(rows, dataset.Record(r.Row))
		}
	}
	return dataset.New(cols, rows), nil
}

func (l *Loader) fetchRowsPage(ctx context.Context, cfg HubConfig, config, split string, offset int) (*hubRowsResponse, error) {
	params := url.Values{
		"dataset": {cfg.Path},
		"config":  {config},
		"split":   {split},
		"offset":  {strconv.Itoa(offset)},
		"length":  {strconv.Itoa(hubPageLength)},
	}
	var resp hubRowsResponse
	if err := l.hubGet(ctx, cfg.Token, "/rows", params, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Rows {
		resp.Rows[i].Row = normalizeNumbers(resp.Rows[i].Row).(map[string]any)
	}
	return &resp, nil
}

// hubGet performs one datasets-server API call.
func (l *Loader) hubGet(ctx context.Context, token, path string, params url.Values, out any) error {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	u.Path = path
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		if strings.HasPrefix(token, "$") {
			token = os.ExpandEnv(token)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w (body: %s)", path, err, body)
	}
	return nil
}

type splitCache struct {
	Columns []string         `json:"columns"`
	Rows    []dataset.Record `json:"rows"`
}

// hubCacheName keys cache files by everything that shapes the fetched
// rows, so a truncated fetch never masks a full one.
func hubCacheName(cfg HubConfig, config, split string) string {
	name := fmt.Sprintf("%s_%s_%s", cfg.Path, config, split)
	if cfg.TakeRows > 0 {
		name = fmt.Sprintf("%s_take%d", name, cfg.TakeRows)
	}
	return strings.ReplaceAll(name, "/", "_") + ".json"
}

func readSplitCache(path string) (*dataset.Dataset, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("loader: read split cache", "path", path, "error", err)
		}
		return nil, false
	}
	var c splitCache
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&c); err != nil {
		slog.Warn("loader: corrupt split cache", "path", path, "error", err)
		return nil, false
	}
	for i := range c.Rows {
		c.Rows[i] = normalizeNumbers(c.Rows[i]).(dataset.Record)
	}
	return dataset.New(c.Columns, c.Rows), true
}

// writeSplitCache stores a fetched split. Failures are logged, not
// returned.
func writeSplitCache(path string, ds *dataset.Dataset) {
	payload, err := json.Marshal(splitCache{Columns: ds.Columns(), Rows: ds.Records()})
	if err != nil {
		slog.Warn("loader: encode split cache", "path", path, "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("loader: create cache dir", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		slog.Warn("loader: write split cache", "path", path, "error", err)
	}
}
