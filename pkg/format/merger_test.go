package format_test

import (
	"slices"
	"testing"

	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/format"
)

func TestMergerJoinsFieldsIntoRoleColumn(t *testing.T) {
	ds := dataset.New([]string{"context", "question", "answer"}, []dataset.Record{
		{"context": "Go is a language.", "question": "What is Go?", "answer": "A language."},
		{"context": "Go compiles fast.", "question": "Is it fast?", "answer": "Yes."},
	})
	res := runChain(t, &format.Config{
		Merger: &format.MergerConfig{
			User: &format.FieldConfig{Fields: []string{"context", "question"}},
		},
	}, ds)
	if want := []string{"merger"}; !slices.Equal(res.Applied, want) {
		t.Fatalf("Applied = %v, want %v", res.Applied, want)
	}
	if got := res.Dataset.Row(0)["user"]; got != "Go is a language. What is Go?" {
		t.Errorf("user = %q", got)
	}
	if got := res.Dataset.Row(1)["user"]; got != "Go compiles fast. Is it fast?" {
		t.Errorf("user = %q", got)
	}
	for _, col := range []string{"context", "question", "answer"} {
		if !res.Dataset.HasColumn(col) {
			t.Errorf("column %q dropped without remove_other_cols", col)
		}
	}
	if len(res.MessageColumns) != 0 {
		t.Errorf("MessageColumns = %v, want none", res.MessageColumns)
	}
}

func TestMergerSeparatorAndMergedField(t *testing.T) {
	sep := "\n"
	ds := dataset.New([]string{"draft", "edit"}, []dataset.Record{
		{"draft": "Hi there", "edit": "Hello."},
	})
	res := runChain(t, &format.Config{
		Merger: &format.MergerConfig{
			Assistant: &format.FieldConfig{
				Fields:      []string{"draft", "edit"},
				Separator:   &sep,
				MergedField: "reply",
			},
		},
	}, ds)
	if got := res.Dataset.Row(0)["reply"]; got != "Hi there\nHello." {
		t.Errorf("reply = %q", got)
	}
	if res.Dataset.HasColumn("assistant") {
		t.Error("default destination created despite merged_field")
	}
}

func TestMergerSingleFieldIdentity(t *testing.T) {
	ds := dataset.New([]string{"question", "answer"}, []dataset.Record{
		{"question": "What is Go?", "answer": "A language."},
	})
	res := runChain(t, &format.Config{
		Merger: &format.MergerConfig{
			User: &format.FieldConfig{
				Fields:      []string{"question"},
				MergedField: "question",
			},
			RemoveOtherCols: true,
		},
	}, ds)
	if want := []string{"merger"}; !slices.Equal(res.Applied, want) {
		t.Fatalf("Applied = %v, want %v", res.Applied, want)
	}
	if !res.Dataset.Equal(ds) {
		t.Error("merging a column into itself changed the dataset")
	}
}

func TestMergerMissingFieldIsInapplicable(t *testing.T) {
	ds := dataset.New([]string{"context"}, []dataset.Record{{"context": "x"}})
	res := runChain(t, &format.Config{
		Merger: &format.MergerConfig{
			User: &format.FieldConfig{Fields: []string{"context", "missing"}},
		},
	}, ds)
	if len(res.Applied) != 0 {
		t.Fatalf("Applied = %v, want none", res.Applied)
	}
	if !res.Dataset.Equal(ds) {
		t.Error("inapplicable merger changed the dataset")
	}
}

func TestMergerRemoveOtherColsKeepsDestination(t *testing.T) {
	ds := dataset.New([]string{"context", "question", "answer"}, []dataset.Record{
		{"context": "c", "question": "q", "answer": "a"},
	})
	res := runChain(t, &format.Config{
		Merger: &format.MergerConfig{
			User: &format.FieldConfig{
				Fields:      []string{"context", "question"},
				MergedField: "question",
			},
			RemoveOtherCols: true,
		},
	}, ds)
	if cols := res.Dataset.Columns(); !slices.Equal(cols, []string{"question", "answer"}) {
		t.Errorf("Columns = %v, want [question answer]", cols)
	}
	if got := res.Dataset.Row(0)["question"]; got != "c q" {
		t.Errorf("question = %q", got)
	}
}

func TestMergerSkipsNonStringValues(t *testing.T) {
	ds := dataset.New([]string{"n", "s"}, []dataset.Record{
		{"n": 7, "s": "text"},
	})
	res := runChain(t, &format.Config{
		Merger: &format.MergerConfig{
			User: &format.FieldConfig{Fields: []string{"n", "s"}},
		},
	}, ds)
	if got := res.Dataset.Row(0)["user"]; got != "text" {
		t.Errorf("user = %q, want %q", got, "text")
	}
}
