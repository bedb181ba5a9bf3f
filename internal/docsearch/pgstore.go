package docsearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const searchChunksSQL = `SELECT id, document_id, content, start_offset, end_offset,
	1 - (embedding <=> $1) AS score
	FROM document_chunks
	ORDER BY embedding <=> $1
	LIMIT $2`

const getChunkSQL = `SELECT id, document_id, content, start_offset, end_offset
	FROM document_chunks
	WHERE id = $1`

// PGStore is the pgvector-backed chunk index.
type PGStore struct {
	db querier
}

// NewPGStore creates a chunk store over a pgx pool or transaction.
func NewPGStore(db querier) (*PGStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &PGStore{db: db}, nil
}

// SearchChunks returns the topK chunks nearest to embedding by cosine
// distance, best first.
func (s *PGStore) SearchChunks(ctx context.Context, embedding pgvector.Vector, topK int) ([]Passage, error) {
	rows, err := s.db.Query(ctx, searchChunksSQL, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var p Passage
		var id uuid.UUID
		if err := rows.Scan(&id, &p.DocumentID, &p.Text, &p.StartOffset, &p.EndOffset, &p.Score); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		p.ChunkID = id.String()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	return out, nil
}

// GetChunk returns the chunk with the given id, or ErrUnknownChunk if it no
// longer exists.
func (s *PGStore) GetChunk(ctx context.Context, chunkID uuid.UUID) (Passage, error) {
	var p Passage
	var id uuid.UUID
	err := s.db.QueryRow(ctx, getChunkSQL, chunkID).
		Scan(&id, &p.DocumentID, &p.Text, &p.StartOffset, &p.EndOffset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Passage{}, fmt.Errorf("chunk %s: %w", chunkID, ErrUnknownChunk)
		}
		return Passage{}, fmt.Errorf("fetching chunk %s: %w", chunkID, err)
	}
	p.ChunkID = id.String()
	return p, nil
}
