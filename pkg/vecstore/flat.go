package vecstore

import (
	"fmt"
	"sort"
	"sync"
)

// Flat is a brute-force Index using squared L2 distance. Duplicate ids
// keep separate vectors, so a search over a dataset with repeated texts
// still sees every copy.
//
// It is safe for concurrent use.
type Flat struct {
	mu   sync.RWMutex
	dim  int
	ids  []string
	vecs [][]float32
}

var _ Index = (*Flat)(nil)

// NewFlat creates an empty index for vectors of the given dimension.
// A dimension of zero adopts the first inserted vector's.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

func (f *Flat) Insert(id string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(id, vector)
}

func (f *Flat) BatchInsert(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("vecstore: batch insert length mismatch: %d ids, %d vectors", len(ids), len(vectors))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range ids {
		if err := f.insert(id, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flat) insert(id string, vector []float32) error {
	if f.dim == 0 {
		f.dim = len(vector)
	}
	if len(vector) != f.dim || f.dim == 0 {
		return fmt.Errorf("vecstore: vector for %q has dimension %d, want %d", id, len(vector), f.dim)
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, cp)
	return nil
}

func (f *Flat) Search(query []float32, k int) ([]Match, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vecs) == 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("vecstore: query has dimension %d, want %d", len(query), f.dim)
	}
	matches := make([]Match, len(f.vecs))
	for i, vec := range f.vecs {
		matches[i] = Match{ID: f.ids[i], Distance: SquaredL2(query, vec)}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vecs)
}

// SquaredL2 returns the squared Euclidean distance between a and b.
// Both vectors must have the same length.
func SquaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}
