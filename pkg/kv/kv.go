// Package kv provides the key-value store behind the embedding cache.
// Keys are hierarchical string slices (e.g. ["embeddings", id]) encoded
// with a configurable separator.
//
// The BadgerDB-backed implementation persists across runs; the
// in-memory implementation serves tests.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path represented as a slice of string segments.
// Segments must not contain the configured separator character.
type Key []string

// String returns the key joined with ':' for display and debugging.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a minimal key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not
	// present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// BatchSet atomically stores multiple key-value pairs.
	BatchSet(ctx context.Context, entries []Entry) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator joins key segments in the encoded form.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator is the byte used to join key segments when encoding to
	// storage. Zero means ':'.
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

// encode converts a Key to its byte representation using the separator.
func (o *Options) encode(k Key) []byte {
	s := o.sep()
	n := 0
	for i, seg := range k {
		if i > 0 {
			n++
		}
		n += len(seg)
	}
	buf := make([]byte, n)
	pos := 0
	for i, seg := range k {
		if i > 0 {
			buf[pos] = s
			pos++
		}
		pos += copy(buf[pos:], seg)
	}
	return buf
}
