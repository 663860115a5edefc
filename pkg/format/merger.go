package format

import (
	"context"
	"strings"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
)

// FieldConfig merges a group of source columns into one column.
type FieldConfig struct {
	// Fields are the source columns, joined in configured order.
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Separator joins the field values. Nil means a single space.
	Separator *string `json:"separator,omitempty" yaml:"separator,omitempty"`

	// MergedField names the destination column. Empty means the group's
	// role name.
	MergedField string `json:"merged_field,omitempty" yaml:"merged_field,omitempty"`
}

// MergerConfig configures the merger stage: one optional field group
// per role.
type MergerConfig struct {
	System    *FieldConfig `json:"system,omitempty" yaml:"system,omitempty"`
	User      *FieldConfig `json:"user,omitempty" yaml:"user,omitempty"`
	Assistant *FieldConfig `json:"assistant,omitempty" yaml:"assistant,omitempty"`

	// RemoveOtherCols drops the source columns that were merged away.
	RemoveOtherCols bool `json:"remove_other_cols,omitempty" yaml:"remove_other_cols,omitempty"`
}

// mergeGroup is one resolved field group.
type mergeGroup struct {
	fields    []string
	separator string
	dest      string
}

type mergerStage struct {
	cfg *MergerConfig
}

func newMerger(cfg *MergerConfig) *mergerStage {
	return &mergerStage{cfg: cfg}
}

func (s *mergerStage) Name() string { return "merger" }

// groups resolves the configured field groups in role order, applying
// the separator and destination defaults. Nil groups contribute
// nothing.
func (s *mergerStage) groups() []mergeGroup {
	var out []mergeGroup
	for _, rc := range []struct {
		fc   *FieldConfig
		role chat.Role
	}{
		{s.cfg.System, chat.RoleSystem},
		{s.cfg.User, chat.RoleUser},
		{s.cfg.Assistant, chat.RoleAssistant},
	} {
		if rc.fc == nil {
			continue
		}
		g := mergeGroup{fields: rc.fc.Fields, separator: " ", dest: rc.fc.MergedField}
		if rc.fc.Separator != nil {
			g.separator = *rc.fc.Separator
		}
		if g.dest == "" {
			g.dest = string(rc.role)
		}
		out = append(out, g)
	}
	return out
}

// Detect reports the merger applicable when at least one group names
// fields and every configured field exists in the dataset.
func (s *mergerStage) Detect(ctx context.Context, ds *dataset.Dataset) (*Transform, error) {
	groups := s.groups()
	if len(groups) == 0 {
		return nil, nil
	}
	any := false
	for _, g := range groups {
		if len(g.fields) > 0 {
			any = true
		}
		for _, f := range g.fields {
			if !ds.HasColumn(f) {
				return nil, nil
			}
		}
	}
	if !any {
		return nil, nil
	}
	return &Transform{Apply: s.apply(groups)}, nil
}

func (s *mergerStage) apply(groups []mergeGroup) func(context.Context, *dataset.Dataset) (*dataset.Dataset, error) {
	return func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
		out, err := ds.Map(func(r dataset.Record) (map[string]any, error) {
			merged := make(map[string]any, len(groups))
			for _, g := range groups {
				if g.fields == nil {
					continue
				}
				vals := make([]string, 0, len(g.fields))
				for _, f := range g.fields {
					if v, ok := r[f].(string); ok {
						vals = append(vals, v)
					}
				}
				merged[g.dest] = strings.Join(vals, g.separator)
			}
			return merged, nil
		})
		if err != nil {
			return nil, err
		}
		if !s.cfg.RemoveOtherCols {
			return out, nil
		}
		dests := make(map[string]bool, len(groups))
		for _, g := range groups {
			dests[g.dest] = true
		}
		var drop []string
		seen := make(map[string]bool)
		for _, g := range groups {
			for _, f := range g.fields {
				if !dests[f] && !seen[f] {
					seen[f] = true
					drop = append(drop, f)
				}
			}
		}
		if len(drop) == 0 {
			return out, nil
		}
		return out.Remove(drop)
	}
}
