package format_test

import (
	"context"
	"slices"
	"testing"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/format"
)

func TestConvFromValueTurns(t *testing.T) {
	ds := dataset.New([]string{"conversations"}, []dataset.Record{
		{"conversations": []any{
			turn("from", "human", "value", "What is Go?"),
			turn("from", "gpt", "value", "A language."),
		}},
		{"conversations": []any{
			turn("from", "human", "value", "Who made it?"),
			turn("from", "gpt", "value", "Google."),
		}},
		{"conversations": []any{
			turn("from", "human", "value", "Is it fast?"),
			turn("from", "gpt", "value", "Yes."),
		}},
	})
	res := runChain(t, &format.Config{Conv: &format.ConvConfig{}}, ds)
	if want := []string{"conv"}; !slices.Equal(res.Applied, want) {
		t.Fatalf("Applied = %v, want %v", res.Applied, want)
	}
	if want := []string{"messages"}; !slices.Equal(res.MessageColumns, want) {
		t.Errorf("MessageColumns = %v, want %v", res.MessageColumns, want)
	}
	msgs := messages(t, res.Dataset.Row(0)["messages"])
	want := []chat.Message{
		{Role: chat.RoleUser, Content: "What is Go?"},
		{Role: chat.RoleAssistant, Content: "A language."},
	}
	if !slices.Equal(msgs, want) {
		t.Errorf("messages = %v, want %v", msgs, want)
	}
	if !res.Dataset.HasColumn("conversations") {
		t.Error("source column should survive when the rewrite adds messages")
	}
}

func TestConvThreeSpeakerVocabulary(t *testing.T) {
	ds := dataset.New([]string{"dialog"}, []dataset.Record{
		{"dialog": []any{
			turn("speaker", "sys", "text", "Be terse."),
			turn("speaker", "hum", "text", "Hi?"),
			turn("speaker", "bot", "text", "Hi."),
		}},
		{"dialog": []any{
			turn("speaker", "sys", "text", "Be kind."),
			turn("speaker", "hum", "text", "Hey?"),
			turn("speaker", "bot", "text", "Hey."),
		}},
	})
	res := runChain(t, &format.Config{Conv: &format.ConvConfig{}}, ds)
	msgs := messages(t, res.Dataset.Row(0)["messages"])
	want := []chat.Message{
		{Role: chat.RoleSystem, Content: "Be terse."},
		{Role: chat.RoleUser, Content: "Hi?"},
		{Role: chat.RoleAssistant, Content: "Hi."},
	}
	if !slices.Equal(msgs, want) {
		t.Errorf("messages = %v, want %v", msgs, want)
	}
}

func TestConvMultipleColumnsRewriteInPlace(t *testing.T) {
	conv := func(role1, text1, role2, text2 string) []any {
		return []any{turn("from", role1, "value", text1), turn("from", role2, "value", text2)}
	}
	ds := dataset.New([]string{"left", "right"}, []dataset.Record{
		{"left": conv("asker", "l1?", "replier", "l1."), "right": conv("q", "r1?", "a", "r1.")},
		{"left": conv("asker", "l2?", "replier", "l2."), "right": conv("q", "r2?", "a", "r2.")},
		{"left": conv("asker", "l3?", "replier", "l3."), "right": conv("q", "r3?", "a", "r3.")},
	})
	res := runChain(t, &format.Config{Conv: &format.ConvConfig{}}, ds)
	if res.Dataset.HasColumn("messages") {
		t.Error("in-place rewrite should not add a messages column")
	}
	if want := []string{"left", "right"}; !slices.Equal(res.MessageColumns, want) {
		t.Errorf("MessageColumns = %v, want %v", res.MessageColumns, want)
	}
	left := messages(t, res.Dataset.Row(2)["left"])
	want := []chat.Message{
		{Role: chat.RoleUser, Content: "l3?"},
		{Role: chat.RoleAssistant, Content: "l3."},
	}
	if !slices.Equal(left, want) {
		t.Errorf("left = %v, want %v", left, want)
	}
	right := messages(t, res.Dataset.Row(0)["right"])
	want = []chat.Message{
		{Role: chat.RoleUser, Content: "r1?"},
		{Role: chat.RoleAssistant, Content: "r1."},
	}
	if !slices.Equal(right, want) {
		t.Errorf("right = %v, want %v", right, want)
	}
}

func TestConvRoleAndContentKeyInference(t *testing.T) {
	wide := func(id1, text1, id2, text2 string) []any {
		return []any{
			turn("id", id1, "who", "asker", "text", text1),
			turn("id", id2, "who", "replier", "text", text2),
		}
	}
	ds := dataset.New([]string{"dialog"}, []dataset.Record{
		{"dialog": wide("i1", "t1?", "i2", "t1.")},
		{"dialog": wide("i3", "t2?", "i4", "t2.")},
		{"dialog": wide("i5", "t3?", "i6", "t3.")},
		{"dialog": wide("i7", "t4?", "i8", "t4.")},
	})
	res := runChain(t, &format.Config{Conv: &format.ConvConfig{}}, ds)
	msgs := messages(t, res.Dataset.Row(0)["messages"])
	want := []chat.Message{
		{Role: chat.RoleUser, Content: "t1?"},
		{Role: chat.RoleAssistant, Content: "t1."},
	}
	if !slices.Equal(msgs, want) {
		t.Errorf("messages = %v, want %v", msgs, want)
	}
}

func TestConvSingleSpeakerLiterals(t *testing.T) {
	sys := dataset.New([]string{"notes"}, []dataset.Record{
		{"notes": []any{turn("kind", "instructions", "body", "Do X.")}},
		{"notes": []any{turn("kind", "instructions", "body", "Do Y.")}},
	})
	res := runChain(t, &format.Config{Conv: &format.ConvConfig{}}, sys)
	msgs := messages(t, res.Dataset.Row(0)["messages"])
	if want := []chat.Message{{Role: chat.RoleSystem, Content: "Do X."}}; !slices.Equal(msgs, want) {
		t.Errorf("messages = %v, want %v", msgs, want)
	}

	usr := dataset.New([]string{"notes"}, []dataset.Record{
		{"notes": []any{turn("kind", "note", "body", "Hi.")}},
		{"notes": []any{turn("kind", "note", "body", "Yo.")}},
	})
	res = runChain(t, &format.Config{Conv: &format.ConvConfig{}}, usr)
	msgs = messages(t, res.Dataset.Row(0)["messages"])
	if want := []chat.Message{{Role: chat.RoleUser, Content: "Hi."}}; !slices.Equal(msgs, want) {
		t.Errorf("messages = %v, want %v", msgs, want)
	}
}

func TestConvAlreadyCanonicalSkipped(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "q"},
		{Role: chat.RoleAssistant, Content: "a"},
	}
	ds := dataset.New([]string{"messages"}, []dataset.Record{{"messages": msgs}})
	res := runChain(t, &format.Config{Conv: &format.ConvConfig{}}, ds)
	if len(res.Applied) != 0 {
		t.Fatalf("Applied = %v, want none", res.Applied)
	}
	if !res.Dataset.Equal(ds) {
		t.Error("canonical column was rewritten")
	}
}

func TestConvHighCardinalityKeysAreInapplicable(t *testing.T) {
	pair := func(a, b, c, d string) []any {
		return []any{turn("u", a, "v", b), turn("u", c, "v", d)}
	}
	ds := dataset.New([]string{"dialog"}, []dataset.Record{
		{"dialog": pair("a1", "b1", "c1", "d1")},
		{"dialog": pair("a2", "b2", "c2", "d2")},
		{"dialog": pair("a3", "b3", "c3", "d3")},
		{"dialog": pair("a4", "b4", "c4", "d4")},
	})
	res := runChain(t, &format.Config{Conv: &format.ConvConfig{}}, ds)
	if len(res.Applied) != 0 {
		t.Fatalf("Applied = %v, want none", res.Applied)
	}
	if !res.Dataset.Equal(ds) {
		t.Error("inapplicable conv changed the dataset")
	}
}

func TestConvUnmappedSpeakerIsAnError(t *testing.T) {
	pair := func(q, a string) []any {
		return []any{turn("from", "asker", "value", q), turn("from", "replier", "value", a)}
	}
	ds := dataset.New([]string{"dialog"}, []dataset.Record{
		{"dialog": pair("q1", "a1")},
		{"dialog": pair("q2", "a2")},
		{"dialog": pair("q3", "a3")},
		{"dialog": []any{turn("from", "other", "value", "x"), turn("from", "replier", "value", "y")}},
	})
	ch, err := format.New(&format.Config{Conv: &format.ConvConfig{}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ch.Run(context.Background(), ds); err == nil {
		t.Fatal("want error for a speaker value outside the inferred mapping")
	}
}
