package chat

import (
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"
)

// Turn is a read-only view over one conversation turn regardless of the
// concrete container a loader produced. JSON and YAML loaders decode
// objects into ordered [yaml.MapSlice] values, which preserve the document
// key order the role/content inference depends on; plain Go maps fall back
// to lexicographic key order.
type Turn struct {
	// Keys in document order.
	Keys []string
	// Values indexed by key.
	Values map[string]any
}

// AsTurn interprets v as a single conversation turn.
func AsTurn(v any) (Turn, bool) {
	switch m := v.(type) {
	case yaml.MapSlice:
		t := Turn{Keys: make([]string, 0, len(m)), Values: make(map[string]any, len(m))}
		for _, item := range m {
			k, ok := item.Key.(string)
			if !ok {
				if item.Key != nil {
					return Turn{}, false
				}
				k = ""
			}
			t.Keys = append(t.Keys, k)
			t.Values[k] = item.Value
		}
		return t, true
	case map[string]any:
		t := Turn{Keys: make([]string, 0, len(m)), Values: m}
		for k := range m {
			t.Keys = append(t.Keys, k)
		}
		sort.Strings(t.Keys)
		return t, true
	case map[string]string:
		t := Turn{Keys: make([]string, 0, len(m)), Values: make(map[string]any, len(m))}
		for k, v := range m {
			t.Keys = append(t.Keys, k)
			t.Values[k] = v
		}
		sort.Strings(t.Keys)
		return t, true
	case Message:
		return Turn{
			Keys:   []string{"role", "content"},
			Values: map[string]any{"role": string(m.Role), "content": m.Content},
		}, true
	}
	return Turn{}, false
}

// Items interprets v as a sequence of turn-shaped elements.
func Items(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []Message:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	case []yaml.MapSlice:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// IsConversation reports whether v looks like an embedded conversation:
// a non-empty sequence whose every element is a map-like turn with two or
// three entries and string-or-null values.
func IsConversation(v any) bool {
	items, ok := Items(v)
	if !ok || len(items) == 0 {
		return false
	}
	for _, it := range items {
		t, ok := AsTurn(it)
		if !ok || len(t.Keys) < 2 || len(t.Keys) > 3 {
			return false
		}
		for _, k := range t.Keys {
			if !stringOrNil(t.Values[k]) {
				return false
			}
		}
	}
	return true
}

// IsStandard reports whether v is already a canonical message list: a
// non-empty sequence of turns with exactly the role and content keys, a
// role from the canonical vocabulary, and string-or-null content.
func IsStandard(v any) bool {
	_, ok := AsMessages(v)
	return ok
}

// AsMessages converts a canonical-shaped value into typed messages.
// Null content becomes the empty string. The second result is false when
// v is not a canonical message list.
func AsMessages(v any) ([]Message, bool) {
	if msgs, ok := v.([]Message); ok {
		if len(msgs) == 0 {
			return nil, false
		}
		for _, m := range msgs {
			if _, err := ParseRole(string(m.Role)); err != nil {
				return nil, false
			}
		}
		return msgs, true
	}
	items, ok := Items(v)
	if !ok || len(items) == 0 {
		return nil, false
	}
	out := make([]Message, 0, len(items))
	for _, it := range items {
		t, ok := AsTurn(it)
		if !ok || len(t.Keys) != 2 {
			return nil, false
		}
		if _, ok := t.Values["role"]; !ok {
			return nil, false
		}
		if _, ok := t.Values["content"]; !ok {
			return nil, false
		}
		rs, ok := t.Values["role"].(string)
		if !ok {
			return nil, false
		}
		role, err := ParseRole(rs)
		if err != nil {
			return nil, false
		}
		var content string
		switch c := t.Values["content"].(type) {
		case nil:
		case string:
			content = c
		default:
			return nil, false
		}
		out = append(out, Message{Role: role, Content: content})
	}
	return out, true
}

func stringOrNil(v any) bool {
	switch v.(type) {
	case nil, string:
		return true
	}
	return false
}

// MustMessages is AsMessages for values already known to be canonical.
func MustMessages(v any) []Message {
	msgs, ok := AsMessages(v)
	if !ok {
		panic(fmt.Sprintf("chat: value is not a canonical message list: %T", v))
	}
	return msgs
}
