// Package chat defines the canonical message schema that format detection
// normalizes datasets into, plus helpers for recognizing and rendering
// chat-shaped values found in arbitrary dataset columns.
//
// A canonical conversation is an ordered list of [Message] values whose
// roles come from the closed vocabulary [RoleSystem], [RoleUser],
// [RoleAssistant]. Message content is always a string; anything else is
// serialized before assignment.
package chat

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/qxlabai/datapipe/pkg/dataset"
)

// Role identifies the author of a message.
type Role string

// The canonical role vocabulary.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Roles lists the canonical vocabulary in rendering order.
var Roles = []Role{RoleSystem, RoleUser, RoleAssistant}

// ParseRole validates s against the canonical vocabulary.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	}
	return "", fmt.Errorf("chat: unknown role %q", s)
}

// order positions a role within one exchange; unknown roles sort last.
func order(r Role) int {
	switch r {
	case RoleSystem:
		return 0
	case RoleUser:
		return 1
	case RoleAssistant:
		return 2
	}
	return 3
}

// Message is one turn of a canonical conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Sort orders messages system first, then user, then assistant.
// The sort is stable so same-role messages keep their relative order.
func Sort(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return cmp.Compare(order(a.Role), order(b.Role))
	})
}

// ContentString coerces an arbitrary cell value into message content.
// Strings pass through, nil becomes empty, and everything else is
// serialized to JSON.
func ContentString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := dataset.MarshalValue(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
