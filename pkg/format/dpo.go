package format

import (
	"context"
	"fmt"
	"reflect"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
)

// DPOConfig configures the preference-pair detector.
type DPOConfig struct {
	// ColumnRoleMap overrides the built-in pattern table. Roles are
	// system, user, chosen, and rejected.
	ColumnRoleMap PatternMap `json:"column_role_map,omitempty" yaml:"column_role_map,omitempty"`
}

type dpoStage struct {
	cfg   *DPOConfig
	table *claimTable
}

func newDPO(cfg *DPOConfig) (*dpoStage, error) {
	pm := cfg.ColumnRoleMap
	if len(pm) == 0 {
		pm = defaultDPOPatterns
	}
	table, err := newClaimTable(pm, dpoRoles)
	if err != nil {
		return nil, fmt.Errorf("format: dpo: %w", err)
	}
	return &dpoStage{cfg: cfg, table: table}, nil
}

func (s *dpoStage) Name() string { return "dpo" }

// Detect recognizes the dataset when at least two roles are bound and
// both answer variants are among them. A dataset whose chosen and
// rejected columns already hold canonical messages is left alone.
func (s *dpoStage) Detect(ctx context.Context, ds *dataset.Dataset) (*Transform, error) {
	rec := ds.Sample()
	if rec == nil {
		return nil, nil
	}
	bound := s.table.Claim(ds.Columns())
	if len(bound) < 2 {
		return nil, nil
	}
	chosenCol, ok := bound[roleChosen]
	if !ok {
		return nil, nil
	}
	rejectedCol, ok := bound[roleRejected]
	if !ok {
		return nil, nil
	}
	if chat.IsStandard(rec[chosenCol]) && chat.IsStandard(rec[rejectedCol]) {
		return nil, nil
	}
	convCols := make(map[string]bool)
	for _, col := range ds.Columns() {
		if chat.IsConversation(rec[col]) {
			convCols[col] = true
		}
	}
	return &Transform{
		MessageColumns: []string{roleChosen, roleRejected},
		Apply: func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return ds.Map(func(r dataset.Record) (map[string]any, error) {
				return map[string]any{
					roleChosen:   variantMessages(r, bound, convCols, roleChosen),
					roleRejected: variantMessages(r, bound, convCols, roleRejected),
				}, nil
			})
		},
	}, nil
}

// variantMessages builds one preference variant: the system and user
// columns followed by the variant's answer column. Columns holding
// embedded conversations are spliced in turn by turn; scalar columns
// contribute a single message. Exact duplicates keep their first
// occurrence.
func variantMessages(r dataset.Record, bound map[string]string, convCols map[string]bool, variant string) []any {
	var msgs []any
	for _, role := range []string{"system", "user", variant} {
		col, ok := bound[role]
		if !ok {
			continue
		}
		if convCols[col] {
			if items, ok := chat.Items(r[col]); ok {
				msgs = append(msgs, items...)
			}
			continue
		}
		msgRole := chat.RoleAssistant
		switch role {
		case "system":
			msgRole = chat.RoleSystem
		case "user":
			msgRole = chat.RoleUser
		}
		msgs = append(msgs, chat.Message{Role: msgRole, Content: chat.ContentString(r[col])})
	}
	deduped := make([]any, 0, len(msgs))
	for _, m := range msgs {
		dup := false
		for _, d := range deduped {
			if reflect.DeepEqual(m, d) {
				dup = true
				break
			}
		}
		if !dup {
			deduped = append(deduped, m)
		}
	}
	return deduped
}
