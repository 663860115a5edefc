package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/qxlabai/datapipe/pkg/kv"
)

// Cache is a write-through cache around another [Embedder]. Vectors
// are stored under a deterministic UUID of model+text, so re-running a
// pipeline never re-embeds unchanged texts and the same store can
// serve several models.
type Cache struct {
	inner Embedder
	store kv.Store
}

var _ Embedder = (*Cache)(nil)

// NewCache wraps inner with the given store.
func NewCache(inner Embedder, store kv.Store) *Cache {
	return &Cache{inner: inner, store: store}
}

// CacheKey returns the store key for one text embedded with model.
func CacheKey(model, text string) kv.Key {
	id := uuid.NewMD5(uuid.NameSpaceDNS, []byte(model+text))
	return kv.Key{"embeddings", id.String()}
}

// Embed returns the embedding for a single text.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for multiple texts, in input order.
// Texts already in the store are served from it; the rest go to the
// wrapped embedder in one batch and are stored on the way out.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	model := c.inner.Model()
	vecs := make(map[string][]float32, len(texts))
	var misses []string
	for _, text := range texts {
		if _, ok := vecs[text]; ok {
			continue
		}
		raw, err := c.store.Get(ctx, CacheKey(model, text))
		if errors.Is(err, kv.ErrNotFound) {
			vecs[text] = nil // placeholder, filled below
			misses = append(misses, text)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("embed: cache get: %w", err)
		}
		var vec []float32
		if err := msgpack.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Errorf("embed: cache decode: %w", err)
		}
		vecs[text] = vec
	}

	if len(misses) > 0 {
		fresh, err := c.inner.EmbedBatch(ctx, misses)
		if err != nil {
			return nil, err
		}
		entries := make([]kv.Entry, len(misses))
		for i, text := range misses {
			raw, err := msgpack.Marshal(fresh[i])
			if err != nil {
				return nil, fmt.Errorf("embed: cache encode: %w", err)
			}
			vecs[text] = fresh[i]
			entries[i] = kv.Entry{Key: CacheKey(model, text), Value: raw}
		}
		if err := c.store.BatchSet(ctx, entries); err != nil {
			return nil, fmt.Errorf("embed: cache put: %w", err)
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vecs[text]
	}
	return out, nil
}

// Dimension returns the wrapped embedder's dimensionality.
func (c *Cache) Dimension() int {
	return c.inner.Dimension()
}

// Model returns the wrapped embedder's model identifier.
func (c *Cache) Model() string {
	return c.inner.Model()
}
