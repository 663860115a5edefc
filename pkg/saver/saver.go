// Package saver writes datasets to disk or object storage as parquet,
// csv, or json lines files.
package saver

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/storage"
)

// Supported file types.
const (
	TypeCSV     = "csv"
	TypeJSON    = "json"
	TypeParquet = "parquet"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultDirectory = "processed"
	DefaultFiletype  = TypeParquet
)

// Config controls where and how a dataset is written.
type Config struct {
	// Directory receives the file. Plain paths are local directories,
	// s3://bucket/prefix routes to S3. Empty means "processed".
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`

	// Filename names the file, without or with the filetype suffix.
	// Empty means dataset_<timestamp>.
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`

	// Filetype is csv, json (json lines), or parquet. Anything else
	// falls back to parquet with a warning. Empty means parquet.
	Filetype string `json:"filetype,omitempty" yaml:"filetype,omitempty"`
}

func (c *Config) directory() string {
	if c == nil || c.Directory == "" {
		return DefaultDirectory
	}
	return c.Directory
}

func (c *Config) filetype() string {
	if c == nil || c.Filetype == "" {
		return DefaultFiletype
	}
	ft := strings.ToLower(c.Filetype)
	switch ft {
	case TypeCSV, TypeJSON, TypeParquet:
		return ft
	}
	slog.Warn("saver: invalid filetype, defaulting to parquet", "filetype", c.Filetype)
	return DefaultFiletype
}

func (c *Config) filename(filetype string) string {
	name := ""
	if c != nil {
		name = c.Filename
	}
	if name == "" {
		now := time.Now()
		name = fmt.Sprintf("dataset_%s%06d", now.Format("20060102150405"), now.Nanosecond()/1000)
	}
	if suffix := "." + filetype; !strings.HasSuffix(name, suffix) {
		name += suffix
	}
	return name
}

// Save writes ds per cfg and returns the written path. A nil config
// saves with all defaults.
func Save(ctx context.Context, ds *dataset.Dataset, cfg *Config) (string, error) {
	filetype := cfg.filetype()
	filename := cfg.filename(filetype)
	dir := cfg.directory()

	store, err := storage.ForURL(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("saver: %w", err)
	}
	w, err := store.Write(ctx, filename)
	if err != nil {
		return "", fmt.Errorf("saver: open %s: %w", filename, err)
	}

	switch filetype {
	case TypeParquet:
		err = writeParquet(w, ds)
	case TypeCSV:
		err = writeCSV(w, ds)
	case TypeJSON:
		err = writeJSONLines(w, ds)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("saver: write %s: %w", filename, err)
	}

	written := filepath.Join(dir, filename)
	if _, _, ok := storage.ParseS3URL(dir); ok {
		written = strings.TrimSuffix(dir, "/") + "/" + filename
	}
	slog.Info("saver: dataset written", "path", written, "rows", ds.Len())
	return written, nil
}
