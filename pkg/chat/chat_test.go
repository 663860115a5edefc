package chat_test

import (
	"reflect"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/qxlabai/datapipe/pkg/chat"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"system", "user", "assistant"} {
		if _, err := chat.ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "User", "bot", "human"} {
		if _, err := chat.ParseRole(s); err == nil {
			t.Errorf("ParseRole(%q): want error", s)
		}
	}
}

func TestSortOrdersSystemUserAssistant(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleAssistant, Content: "a"},
		{Role: chat.RoleSystem, Content: "s"},
		{Role: chat.RoleUser, Content: "u"},
	}
	chat.Sort(msgs)
	want := []chat.Message{
		{Role: chat.RoleSystem, Content: "s"},
		{Role: chat.RoleUser, Content: "u"},
		{Role: chat.RoleAssistant, Content: "a"},
	}
	if !reflect.DeepEqual(msgs, want) {
		t.Errorf("Sort = %v, want %v", msgs, want)
	}
}

func TestContentString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{nil, ""},
		{int64(7), "7"},
		{[]any{"a", "b"}, `["a","b"]`},
		{yaml.MapSlice{{Key: "k", Value: "v"}}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		if got := chat.ContentString(tt.in); got != tt.want {
			t.Errorf("ContentString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsConversation(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{
			"from/value turns",
			[]any{
				yaml.MapSlice{{Key: "from", Value: "human"}, {Key: "value", Value: "hi"}},
				yaml.MapSlice{{Key: "from", Value: "gpt"}, {Key: "value", Value: "hello"}},
			},
			true,
		},
		{
			"three entries with null",
			[]any{yaml.MapSlice{
				{Key: "role", Value: "user"},
				{Key: "text", Value: nil},
				{Key: "meta", Value: "x"},
			}},
			true,
		},
		{"empty list", []any{}, false},
		{"scalar", "hello", false},
		{"one entry turn", []any{yaml.MapSlice{{Key: "a", Value: "b"}}}, false},
		{
			"four entry turn",
			[]any{yaml.MapSlice{
				{Key: "a", Value: "1"}, {Key: "b", Value: "2"},
				{Key: "c", Value: "3"}, {Key: "d", Value: "4"},
			}},
			false,
		},
		{
			"non-string value",
			[]any{yaml.MapSlice{{Key: "from", Value: "human"}, {Key: "value", Value: int64(3)}}},
			false,
		},
		{
			"typed messages",
			[]chat.Message{{Role: chat.RoleUser, Content: "hi"}},
			true,
		},
	}
	for _, tt := range tests {
		if got := chat.IsConversation(tt.in); got != tt.want {
			t.Errorf("%s: IsConversation = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsStandardAndAsMessages(t *testing.T) {
	canonical := []any{
		yaml.MapSlice{{Key: "role", Value: "user"}, {Key: "content", Value: "hi"}},
		yaml.MapSlice{{Key: "role", Value: "assistant"}, {Key: "content", Value: nil}},
	}
	if !chat.IsStandard(canonical) {
		t.Fatal("canonical list not recognized")
	}
	msgs, ok := chat.AsMessages(canonical)
	if !ok {
		t.Fatal("AsMessages failed")
	}
	want := []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: ""},
	}
	if !reflect.DeepEqual(msgs, want) {
		t.Errorf("AsMessages = %v, want %v", msgs, want)
	}

	notStandard := []any{
		yaml.MapSlice{{Key: "from", Value: "human"}, {Key: "value", Value: "hi"}},
	}
	if chat.IsStandard(notStandard) {
		t.Error("from/value turns misrecognized as canonical")
	}
	badRole := []any{
		yaml.MapSlice{{Key: "role", Value: "robot"}, {Key: "content", Value: "hi"}},
	}
	if chat.IsStandard(badRole) {
		t.Error("unknown role misrecognized as canonical")
	}
	if !chat.IsStandard([]chat.Message{{Role: chat.RoleUser, Content: "hi"}}) {
		t.Error("typed message slice not recognized")
	}
}
