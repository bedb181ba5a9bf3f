// Package docsearch provides similarity search over indexed document chunks.
// It is a read-only façade: passages are immutable once indexed, and every
// result carries exact provenance back into its source document.
package docsearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/cityair/conductor/internal/log"
)

// ErrUnknownChunk indicates a chunk identifier that no longer resolves,
// typically because the document was re-indexed.
var ErrUnknownChunk = errors.New("unknown document chunk")

const (
	// DefaultTopK is used when a search does not specify a result count.
	DefaultTopK = 5
	// MaxTopK bounds a single search.
	MaxTopK = 20
)

// Passage is one retrieved chunk with provenance into its source document.
type Passage struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Text        string  `json:"text"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	Score       float64 `json:"score,omitempty"`
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the chunk index the adapter reads from.
type Store interface {
	SearchChunks(ctx context.Context, embedding pgvector.Vector, topK int) ([]Passage, error)
	GetChunk(ctx context.Context, chunkID uuid.UUID) (Passage, error)
}

// Adapter wraps the chunk index behind the two read operations tools need.
// Safe for concurrent use.
type Adapter struct {
	store    Store
	embedder Embedder
	logger   log.Logger
}

// NewAdapter creates a document search adapter.
func NewAdapter(store Store, embedder Embedder, logger log.Logger) (*Adapter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Adapter{store: store, embedder: embedder, logger: logger}, nil
}

// Search returns up to topK passages ranked by similarity to query. No
// matches is not an error: the result is simply empty. topK outside 1..20
// is clamped.
func (a *Adapter) Search(ctx context.Context, query string, topK int) ([]Passage, error) {
	switch {
	case topK <= 0:
		topK = DefaultTopK
	case topK > MaxTopK:
		topK = MaxTopK
	}

	embedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	passages, err := a.store.SearchChunks(ctx, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	if passages == nil {
		passages = []Passage{}
	}

	a.logger.Debug("document search", "top_k", topK, "results", len(passages))
	return passages, nil
}

// Resolve returns the exact passage for a chunk identifier previously
// returned by Search. A malformed or stale identifier fails with
// ErrUnknownChunk.
func (a *Adapter) Resolve(ctx context.Context, chunkID string) (Passage, error) {
	id, err := uuid.Parse(chunkID)
	if err != nil {
		return Passage{}, fmt.Errorf("chunk %q: %w", chunkID, ErrUnknownChunk)
	}
	return a.store.GetChunk(ctx, id)
}
