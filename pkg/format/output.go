package format

import (
	"log/slog"
	"slices"

	"github.com/qxlabai/datapipe/pkg/dataset"
)

// OutputConfig controls the final projection of a chain run.
type OutputConfig struct {
	// ReturnOnlyMessages keeps only the message columns the chain
	// produced, dropping everything else.
	ReturnOnlyMessages bool `json:"return_only_messages,omitempty" yaml:"return_only_messages,omitempty"`
}

// apply projects the dataset down to the accumulated message columns,
// preserving dataset column order. When nothing was accumulated the
// dataset passes through unchanged rather than coming back empty.
func (cfg *OutputConfig) apply(ds *dataset.Dataset, msgCols []string) (*dataset.Dataset, error) {
	if !cfg.ReturnOnlyMessages {
		return ds, nil
	}
	keep := make([]string, 0, len(msgCols))
	for _, col := range ds.Columns() {
		if slices.Contains(msgCols, col) {
			keep = append(keep, col)
		}
	}
	if len(keep) == 0 {
		slog.Warn("format: output: no message columns to keep")
		return ds, nil
	}
	return ds.Select(keep)
}
