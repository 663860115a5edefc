package format

import (
	"fmt"
	"regexp"

	"github.com/goccy/go-yaml"
)

// PatternRole binds a column-name pattern to the role it claims.
type PatternRole struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Role    string `json:"role" yaml:"role"`
}

// PatternMap is an ordered pattern-to-role table. Order matters: a
// column is claimed by the first live pattern that matches it, so the
// table decodes from a YAML or JSON mapping keeping document order. A
// sequence of {pattern, role} pairs is accepted too.
type PatternMap []PatternRole

// UnmarshalYAML decodes either form.
func (pm *PatternMap) UnmarshalYAML(data []byte) error {
	var ms yaml.MapSlice
	if err := yaml.UnmarshalWithOptions(data, &ms, yaml.UseOrderedMap()); err == nil {
		out := make(PatternMap, 0, len(ms))
		for _, item := range ms {
			k, kok := item.Key.(string)
			v, vok := item.Value.(string)
			if !kok || !vok {
				return fmt.Errorf("format: pattern map entries must map string to string, got %v: %v", item.Key, item.Value)
			}
			out = append(out, PatternRole{Pattern: k, Role: v})
		}
		*pm = out
		return nil
	}
	var pairs []PatternRole
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("format: decode pattern map: %w", err)
	}
	*pm = pairs
	return nil
}

// MarshalYAML writes the sequence form, which survives round-trips
// without losing order.
func (pm PatternMap) MarshalYAML() ([]byte, error) {
	return yaml.Marshal([]PatternRole(pm))
}

// claimEntry is one compiled pattern. Matching is case-insensitive and
// unanchored, like the column names these tables grew around.
type claimEntry struct {
	re   *regexp.Regexp
	role string
}

// claimTable walks columns against an ordered pattern table and binds
// each role to at most one column.
type claimTable struct {
	entries []claimEntry
}

func newClaimTable(pm PatternMap, roles map[string]bool) (*claimTable, error) {
	t := &claimTable{entries: make([]claimEntry, 0, len(pm))}
	for _, pr := range pm {
		if !roles[pr.Role] {
			return nil, fmt.Errorf("format: pattern %q maps to unknown role %q", pr.Pattern, pr.Role)
		}
		re, err := regexp.Compile("(?i)" + pr.Pattern)
		if err != nil {
			return nil, fmt.Errorf("format: pattern %q: %w", pr.Pattern, err)
		}
		t.entries = append(t.entries, claimEntry{re: re, role: pr.Role})
	}
	return t, nil
}

// Claim walks columns in order. Each column binds to the role of the
// first pattern that matches it; binding a role retires all patterns
// carrying that role, so later columns cannot claim it again.
func (t *claimTable) Claim(columns []string) map[string]string {
	bound := make(map[string]string)
	for _, col := range columns {
		for _, e := range t.entries {
			if _, taken := bound[e.role]; taken {
				continue
			}
			if e.re.MatchString(col) {
				bound[e.role] = col
				break
			}
		}
	}
	return bound
}

var sftRoles = map[string]bool{"system": true, "user": true, "assistant": true}

var defaultSFTPatterns = PatternMap{
	{Pattern: "human.*", Role: "user"},
	{Pattern: "question.*", Role: "user"},
	{Pattern: "user.*", Role: "user"},
	{Pattern: "dialogue.*", Role: "user"},
	{Pattern: "input.*", Role: "system"},
	{Pattern: "^prompt.*", Role: "user"},
	{Pattern: "^instruction.*", Role: "user"},
	{Pattern: "message_1", Role: "user"},
	{Pattern: "source.*", Role: "user"},
	{Pattern: "response.*", Role: "assistant"},
	{Pattern: "output.*", Role: "assistant"},
	{Pattern: "assistant.*", Role: "assistant"},
	{Pattern: "answer.*", Role: "assistant"},
	{Pattern: "summary.*", Role: "assistant"},
	{Pattern: "gpt.*", Role: "assistant"},
	{Pattern: "support.*", Role: "assistant"},
	{Pattern: "message_2", Role: "assistant"},
	{Pattern: "target.*", Role: "assistant"},
	{Pattern: "system.*", Role: "system"},
	{Pattern: "instruction.*", Role: "system"},
}

// DPO column roles: besides system and user, the two answer variants.
const (
	roleChosen   = "chosen"
	roleRejected = "rejected"
)

var dpoRoles = map[string]bool{"system": true, "user": true, roleChosen: true, roleRejected: true}

var defaultDPOPatterns = PatternMap{
	{Pattern: "chosen.*", Role: roleChosen},
	{Pattern: "rejected.*", Role: roleRejected},
	{Pattern: "trajectory.*", Role: "user"},
	{Pattern: "instruction.*", Role: "user"},
	{Pattern: "human.*", Role: "user"},
	{Pattern: "question.*", Role: "user"},
	{Pattern: "^prompt.*", Role: "user"},
	{Pattern: "user.*", Role: "user"},
	{Pattern: "system.*", Role: "system"},
}
