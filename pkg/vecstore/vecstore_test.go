package vecstore_test

import (
	"testing"

	"github.com/qxlabai/datapipe/pkg/vecstore"
)

func TestFlatSearchOrdersByDistance(t *testing.T) {
	idx := vecstore.NewFlat(2)
	err := idx.BatchInsert(
		[]string{"a", "b", "c"},
		[][]float32{{0, 0}, {3, 4}, {1, 0}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 3 {
		t.Fatalf("Len = %d, want 3", idx.Len())
	}
	got, err := idx.Search([]float32{0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %v, want 2", got)
	}
	if got[0].ID != "a" || got[0].Distance != 0 {
		t.Errorf("nearest = %+v, want a at 0", got[0])
	}
	if got[1].ID != "c" || got[1].Distance != 1 {
		t.Errorf("second = %+v, want c at 1", got[1])
	}
}

func TestFlatKeepsDuplicateVectors(t *testing.T) {
	idx := vecstore.NewFlat(0)
	err := idx.BatchInsert(
		[]string{"dup", "dup", "other"},
		[][]float32{{1, 1}, {1, 1}, {5, 5}},
	)
	if err != nil {
		t.Fatal(err)
	}
	got, err := idx.Search([]float32{1, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	// The second-nearest hit for a duplicated vector is its twin.
	if got[1].ID != "dup" || got[1].Distance != 0 {
		t.Errorf("second = %+v, want the duplicate at 0", got[1])
	}
}

func TestFlatTiesKeepInsertionOrder(t *testing.T) {
	idx := vecstore.NewFlat(1)
	if err := idx.BatchInsert([]string{"x", "y"}, [][]float32{{2}, {0}}); err != nil {
		t.Fatal(err)
	}
	got, err := idx.Search([]float32{1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ID != "x" || got[1].ID != "y" {
		t.Errorf("order = %v, want x then y", got)
	}
}

func TestFlatValidatesDimensions(t *testing.T) {
	idx := vecstore.NewFlat(2)
	if err := idx.Insert("a", []float32{1}); err == nil {
		t.Error("dimension mismatch accepted, want error")
	}
	if err := idx.BatchInsert([]string{"a"}, nil); err == nil {
		t.Error("length mismatch accepted, want error")
	}
	if err := idx.Insert("a", []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Search([]float32{1}, 1); err == nil {
		t.Error("query dimension mismatch accepted, want error")
	}
}
