package format

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
)

// ToTextConfig configures how message columns are rendered back to flat
// text. The zero value uses the default role templates.
type ToTextConfig struct {
	chat.FormatterConfig `yaml:",inline"`
}

type toTextStage struct {
	formatter *chat.Formatter
}

func newToText(cfg *ToTextConfig) (*toTextStage, error) {
	if cfg == nil {
		cfg = &ToTextConfig{}
	}
	f, err := chat.NewFormatter(&cfg.FormatterConfig)
	if err != nil {
		return nil, fmt.Errorf("format: to_text: %w", err)
	}
	return &toTextStage{formatter: f}, nil
}

func (s *toTextStage) Name() string { return "to_text" }

// Detect finds the columns already holding canonical messages and
// renders each back to text in place.
func (s *toTextStage) Detect(ctx context.Context, ds *dataset.Dataset) (*Transform, error) {
	rec := ds.Sample()
	if rec == nil {
		return nil, nil
	}
	var cols []string
	for _, col := range ds.Columns() {
		if chat.IsStandard(rec[col]) {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return &Transform{
		Apply: func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			slog.Info("format: rendering message columns to text", "columns", strings.Join(cols, ", "))
			return ds.Map(func(r dataset.Record) (map[string]any, error) {
				out := make(map[string]any, len(cols))
				for _, col := range cols {
					msgs, ok := chat.AsMessages(r[col])
					if !ok {
						return nil, fmt.Errorf("column %q: value is not a message list", col)
					}
					text, err := s.formatter.Format(msgs)
					if err != nil {
						return nil, fmt.Errorf("column %q: %w", col, err)
					}
					out[col] = text
				}
				return out, nil
			})
		},
	}, nil
}
