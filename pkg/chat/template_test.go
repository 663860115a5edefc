package chat_test

import (
	"testing"

	"github.com/qxlabai/datapipe/pkg/chat"
)

func TestParseTemplateRejectsEmptyPlaceholder(t *testing.T) {
	if _, err := chat.ParseTemplate("Q: {} A: {assistant}"); err == nil {
		t.Fatal("template with {} accepted, want error")
	}
}

func TestParseTemplateRejectsDuplicatePlaceholder(t *testing.T) {
	if _, err := chat.ParseTemplate("{user} and {user}"); err == nil {
		t.Fatal("duplicate placeholder accepted, want error")
	}
}

func TestTemplateMatch(t *testing.T) {
	tpl, err := chat.ParseTemplate("Q: {user}\nA: {assistant}")
	if err != nil {
		t.Fatal(err)
	}
	got := tpl.Match("Q: What is Go?\nA: A programming language.")
	if got["user"] != "What is Go?" {
		t.Errorf("user = %q", got["user"])
	}
	if got["assistant"] != "A programming language." {
		t.Errorf("assistant = %q", got["assistant"])
	}
}

func TestTemplateMatchTolerantOfSurroundingText(t *testing.T) {
	tpl, err := chat.ParseTemplate("[INST] {user} [/INST] {assistant}")
	if err != nil {
		t.Fatal(err)
	}
	got := tpl.Match("prefix [INST] hi [/INST] hello")
	if got["user"] != "hi" || got["assistant"] != "hello" {
		t.Errorf("got %v", got)
	}
}

func TestTemplateMatchMissReturnsEmptyMap(t *testing.T) {
	tpl, err := chat.ParseTemplate("Q: {user}\nA: {assistant}")
	if err != nil {
		t.Fatal(err)
	}
	got := tpl.Match("totally unrelated text")
	if len(got) != 0 {
		t.Errorf("want empty map, got %v", got)
	}
}

func TestTemplateFields(t *testing.T) {
	tpl, err := chat.ParseTemplate("{system} then {user} then {assistant}")
	if err != nil {
		t.Fatal(err)
	}
	fields := tpl.Fields()
	if len(fields) != 3 || fields[0] != "system" || fields[1] != "user" || fields[2] != "assistant" {
		t.Errorf("Fields = %v", fields)
	}
}

func TestFormatterDefaults(t *testing.T) {
	f := chat.DefaultFormatter()
	got, err := f.Format([]chat.Message{
		{Role: chat.RoleSystem, Content: "be brief"},
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "<<SYS>> be brief <<SYS>> [INST] hi [/INST] hello"
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestNewFormatterValidatesKeys(t *testing.T) {
	_, err := chat.NewFormatter(&chat.FormatterConfig{
		User: &chat.RoleTemplate{Template: "no placeholder here", Key: "user"},
	})
	if err == nil {
		t.Fatal("template without its key accepted, want error")
	}
}

func TestFormatterUnknownRole(t *testing.T) {
	f := chat.DefaultFormatter()
	if _, err := f.Format([]chat.Message{{Role: "narrator", Content: "x"}}); err == nil {
		t.Fatal("unknown role accepted, want error")
	}
}

func TestFormatterCustomSeparator(t *testing.T) {
	sep := "\n"
	f, err := chat.NewFormatter(&chat.FormatterConfig{Separator: &sep})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.Format([]chat.Message{
		{Role: chat.RoleUser, Content: "a"},
		{Role: chat.RoleAssistant, Content: "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := "[INST] a [/INST]\nb"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}
