// Package vecstore provides exact nearest-neighbor search over dense
// float32 vectors.
//
// The [Index] interface is deliberately small: the semantic dedup pass
// inserts one vector per dataset row and asks for each row's nearest
// neighbors. The only implementation is [Flat], a brute-force index
// over squared L2 distances, which is exact and fast enough for the
// row counts a single split holds.
package vecstore

// Index is an insert-then-search vector index.
type Index interface {
	// Insert adds a vector under id. Ids may repeat; every inserted
	// vector keeps its own slot.
	Insert(id string, vector []float32) error

	// BatchInsert adds vectors pairwise. ids and vectors must have the
	// same length.
	BatchInsert(ids []string, vectors [][]float32) error

	// Search returns the k nearest vectors by ascending distance. Ties
	// keep insertion order.
	Search(query []float32, k int) ([]Match, error)

	// Len returns the number of stored vectors.
	Len() int
}

// Match is one search hit.
type Match struct {
	// ID identifies the matched vector.
	ID string

	// Distance is the squared L2 distance to the query.
	Distance float32
}
