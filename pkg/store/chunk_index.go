package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
)

// ChunkIndex is a VectorIndex over the document_chunks table. Scores follow
// the in-memory index: cosine similarity, 0 when dimensions differ or either
// vector is zero, ties broken by insertion order.
type ChunkIndex struct {
	pool *pgxpool.Pool
}

var _ types.VectorIndex = (*ChunkIndex)(nil)

func NewChunkIndex(pg *Postgres) *ChunkIndex {
	return &ChunkIndex{pool: pg.Pool()}
}

func (ci *ChunkIndex) Add(ctx context.Context, chunks ...models.Chunk) error {
	tx, err := ci.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (ci *ChunkIndex) ReplaceDocument(ctx context.Context, documentID int64, chunks []models.Chunk) error {
	tx, err := ci.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx pgx.Tx, chunks []models.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO document_chunks (document_id, document_name, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			c.DocumentID,
			sanitizeUTF8(c.DocumentName),
			c.ChunkIndex,
			sanitizeUTF8(c.Content),
			pgvector.NewVector(c.Embedding),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return results.Close()
}

func (ci *ChunkIndex) RemoveDocument(ctx context.Context, documentID int64) error {
	if _, err := ci.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (ci *ChunkIndex) Query(ctx context.Context, embedding []float32, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 || len(embedding) == 0 {
		return []models.RetrievalResult{}, nil
	}

	rows, err := ci.pool.Query(ctx, `
		SELECT document_id, document_name, content,
			CASE
				WHEN vector_dims(embedding) = vector_dims($1::vector)
					AND vector_norm(embedding) > 0 AND vector_norm($1::vector) > 0
				THEN 1 - (embedding <=> $1::vector)
				ELSE 0
			END AS score
		FROM document_chunks
		ORDER BY score DESC, id ASC
		LIMIT $2`,
		pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := []models.RetrievalResult{}
	for rows.Next() {
		var r models.RetrievalResult
		if err := rows.Scan(&r.DocumentID, &r.DocumentName, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (ci *ChunkIndex) Len(ctx context.Context) (int, error) {
	var n int
	if err := ci.pool.QueryRow(ctx, `SELECT count(*) FROM document_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (ci *ChunkIndex) Clear(ctx context.Context) error {
	if _, err := ci.pool.Exec(ctx, `TRUNCATE document_chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}
