package format

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
)

// ConvConfig enables the conversation-object normalizer. There is
// nothing to configure; the stage infers the turn schema from the data.
type ConvConfig struct{}

// convScanLimit bounds how many conversations key inference flattens.
const convScanLimit = 1000

type convStage struct {
	cfg *ConvConfig
}

func newConv(cfg *ConvConfig) *convStage { return &convStage{cfg: cfg} }

func (s *convStage) Name() string { return "conv" }

// convProps is everything inferred about one conversation column: the
// turn key holding the speaker, the turn key holding the text, and the
// mapping from observed speaker values to canonical roles.
type convProps struct {
	column     string
	roleKey    string
	contentKey string
	hasSystem  bool
	roles      map[string]chat.Role
}

func (p *convProps) valid() bool {
	return len(p.roles) > 0 && p.roleKey != "" && p.contentKey != ""
}

// Detect probes every column whose sampled value looks like an embedded
// conversation and keeps the ones whose turn schema could be inferred.
// Columns already holding canonical messages are left alone.
func (s *convStage) Detect(ctx context.Context, ds *dataset.Dataset) (*Transform, error) {
	rec := ds.Sample()
	if rec == nil {
		return nil, nil
	}
	var props []convProps
	for _, col := range ds.Columns() {
		v := rec[col]
		if !chat.IsConversation(v) || chat.IsStandard(v) {
			continue
		}
		p := inferConvProps(ds, col)
		if p.valid() {
			props = append(props, p)
		}
	}
	if len(props) == 0 {
		return nil, nil
	}
	// A single recognized column lands in "messages"; several keep
	// their own names.
	single := ""
	if len(props) == 1 {
		single = "messages"
	}
	msgCols := make([]string, 0, len(props))
	for _, p := range props {
		if single != "" {
			msgCols = append(msgCols, single)
		} else {
			msgCols = append(msgCols, p.column)
		}
	}
	return &Transform{
		MessageColumns: msgCols,
		Apply: func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			out := ds
			var err error
			for _, p := range props {
				dst := p.column
				if single != "" {
					dst = single
				}
				out, err = out.Map(func(r dataset.Record) (map[string]any, error) {
					msgs, err := p.standardize(r[p.column])
					if err != nil {
						return nil, err
					}
					return map[string]any{dst: msgs}, nil
				})
				if err != nil {
					return nil, err
				}
			}
			return out, nil
		},
	}, nil
}

// standardize rewrites one conversation into canonical messages. A
// speaker value outside the inferred mapping or a turn without the
// content key is an error; null content becomes the empty string.
func (p *convProps) standardize(v any) ([]chat.Message, error) {
	items, ok := chat.Items(v)
	if !ok {
		return nil, fmt.Errorf("column %q: value is not a conversation", p.column)
	}
	msgs := make([]chat.Message, 0, len(items))
	for _, it := range items {
		t, ok := chat.AsTurn(it)
		if !ok {
			return nil, fmt.Errorf("column %q: conversation holds a non-object turn", p.column)
		}
		rv, _ := t.Values[p.roleKey].(string)
		role, ok := p.roles[rv]
		if !ok {
			return nil, fmt.Errorf("column %q: speaker value %q is not mapped to a role", p.column, rv)
		}
		cv, ok := t.Values[p.contentKey]
		if !ok {
			return nil, fmt.Errorf("column %q: turn is missing content key %q", p.column, p.contentKey)
		}
		msgs = append(msgs, chat.Message{Role: role, Content: chat.ContentString(cv)})
	}
	return msgs, nil
}

func inferConvProps(ds *dataset.Dataset, column string) convProps {
	p := convProps{column: column}
	keys, turns := flattenTurns(ds.Column(column), convScanLimit)
	if len(turns) < 6 {
		slog.Warn("format: conv: few turns to infer keys from", "column", column, "turns", len(turns))
	}
	p.roleKey, p.contentKey = inferKeys(keys, turns)
	if p.roleKey == "" || p.contentKey == "" {
		return p
	}
	p.hasSystem = distinctStrings(turns, p.roleKey) == 3
	p.roles = inferRoles(ds.Column(column), p.roleKey, p.hasSystem)
	return p
}

// flattenTurns collects the turns of the first limit conversations and
// the union of their keys in first-appearance order. Rows and items
// that are not turn-shaped are skipped.
func flattenTurns(rows []any, limit int) ([]string, []chat.Turn) {
	if len(rows) > limit {
		rows = rows[:limit]
	}
	var keys []string
	seen := make(map[string]bool)
	var turns []chat.Turn
	for _, row := range rows {
		items, ok := chat.Items(row)
		if !ok {
			continue
		}
		for _, it := range items {
			t, ok := chat.AsTurn(it)
			if !ok {
				continue
			}
			for _, k := range t.Keys {
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
			turns = append(turns, t)
		}
	}
	return keys, turns
}

// distinctStrings counts the distinct non-null string values a key
// takes across turns. Turns without the key do not count.
func distinctStrings(turns []chat.Turn, key string) int {
	set := make(map[string]struct{})
	for _, t := range turns {
		if v, ok := t.Values[key]; ok {
			if s, ok := v.(string); ok {
				set[s] = struct{}{}
			}
		}
	}
	return len(set)
}

// inferKeys picks the role key and the content key. The role key is
// the first key whose distinct value count is small enough to be a
// speaker vocabulary (1 to 3); the content key is the remaining key
// with the most distinct values, later keys winning ties.
func inferKeys(keys []string, turns []chat.Turn) (roleKey, contentKey string) {
	for _, k := range keys {
		if n := distinctStrings(turns, k); n >= 1 && n <= 3 {
			roleKey = k
			break
		}
	}
	if roleKey == "" {
		return "", ""
	}
	best := -1
	for _, k := range keys {
		if k == roleKey {
			continue
		}
		if n := distinctStrings(turns, k); n >= best {
			best = n
			contentKey = k
		}
	}
	return roleKey, contentKey
}

// roleCell is one position's speaker value; ok distinguishes a real
// value from a missing or null one.
type roleCell struct {
	val string
	ok  bool
}

// inferRoles maps observed speaker values to canonical roles from the
// positional shape of the whole column: the most frequent complete
// first-three-positions triple with pairwise distinct speakers when a
// system speaker exists, the most frequent complete pair for two-turn
// conversations, and a literal-or-user guess for single turns.
func inferRoles(rows []any, roleKey string, hasSystem bool) map[string]chat.Role {
	cells := make([][]roleCell, len(rows))
	maxPos := 0
	for i, row := range rows {
		items, _ := chat.Items(row)
		cs := make([]roleCell, len(items))
		for j, it := range items {
			t, ok := chat.AsTurn(it)
			if !ok {
				continue
			}
			if v, ok := t.Values[roleKey]; ok {
				if s, ok := v.(string); ok {
					cs[j] = roleCell{val: s, ok: true}
				}
			}
		}
		cells[i] = cs
		if len(cs) > maxPos {
			maxPos = len(cs)
		}
	}
	switch {
	case hasSystem && maxPos >= 3:
		type triple [3]string
		counts := make(map[triple]int)
		var order []triple
		for _, cs := range cells {
			if len(cs) < 3 || !cs[0].ok || !cs[1].ok || !cs[2].ok {
				continue
			}
			t := triple{cs[0].val, cs[1].val, cs[2].val}
			if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
				continue
			}
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
		var best triple
		bestN := 0
		for _, t := range order {
			if counts[t] > bestN {
				bestN, best = counts[t], t
			}
		}
		if bestN == 0 {
			return nil
		}
		return map[string]chat.Role{
			best[0]: chat.RoleSystem,
			best[1]: chat.RoleUser,
			best[2]: chat.RoleAssistant,
		}
	case maxPos == 2:
		type pair [2]string
		counts := make(map[pair]int)
		var order []pair
		for _, cs := range cells {
			if len(cs) < 2 || !cs[0].ok || !cs[1].ok {
				continue
			}
			t := pair{cs[0].val, cs[1].val}
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
		var best pair
		bestN := 0
		for _, t := range order {
			if counts[t] > bestN {
				bestN, best = counts[t], t
			}
		}
		if bestN == 0 {
			return nil
		}
		m := make(map[string]chat.Role, 2)
		m[best[0]] = chat.RoleUser
		m[best[1]] = chat.RoleAssistant
		return m
	case maxPos == 1:
		v := ""
		if len(cells) > 0 && len(cells[0]) > 0 && cells[0][0].ok {
			v = cells[0][0].val
		}
		switch v {
		case "system", "instruction", "instructions":
			return map[string]chat.Role{v: chat.RoleSystem}
		}
		return map[string]chat.Role{v: chat.RoleUser}
	}
	return nil
}
