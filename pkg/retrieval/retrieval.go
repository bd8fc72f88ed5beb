// Package retrieval turns documents into indexed chunk embeddings and answers
// similarity queries against them.
package retrieval

import (
	"context"
	"fmt"
	"log"

	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
	"github.com/xhad/xiaowei/pkg/processor"
)

type Config struct {
	ChunkSize int
}

type Service struct {
	processor processor.Processor
	embedder  types.Embedder
	index     types.VectorIndex
}

func New(config Config, embedder types.Embedder, index types.VectorIndex) *Service {
	return &Service{
		processor: processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: config.ChunkSize}),
		embedder:  embedder,
		index:     index,
	}
}

// Ingest chunks and embeds content, then replaces whatever the index held for
// docID. If any chunk fails to embed the index is not touched.
func (s *Service) Ingest(ctx context.Context, docID int64, docName, content string) error {
	texts := processor.Chunk(content, s.processor.ChunkSize())

	chunks := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		embedding, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("%w: embed chunk %d of %q: %v", models.ErrIngestionFailed, i, docName, err)
		}
		chunks = append(chunks, models.Chunk{
			DocumentID:   docID,
			DocumentName: docName,
			ChunkIndex:   i,
			Content:      text,
			Embedding:    embedding,
		})
	}

	if err := s.index.ReplaceDocument(ctx, docID, chunks); err != nil {
		return fmt.Errorf("%w: index %q: %v", models.ErrIngestionFailed, docName, err)
	}

	log.Printf("[Retrieval] Ingested document %d (%s) with %d chunks", docID, docName, len(chunks))
	return nil
}

// Query returns at most topK chunks ranked by similarity to text. An empty
// index answers without calling the embedder.
func (s *Service) Query(ctx context.Context, text string, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return []models.RetrievalResult{}, nil
	}

	n, err := s.index.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("index size: %w", err)
	}
	if n == 0 {
		return []models.RetrievalResult{}, nil
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.index.Query(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return results, nil
}

// Remove drops every chunk belonging to docID.
func (s *Service) Remove(ctx context.Context, docID int64) error {
	if err := s.index.RemoveDocument(ctx, docID); err != nil {
		return fmt.Errorf("remove document %d: %w", docID, err)
	}
	return nil
}

// Rebuild clears the index and re-ingests every stored document. Documents
// that fail are logged and skipped; the count of ingested documents is returned.
func (s *Service) Rebuild(ctx context.Context, docs types.DocumentStore) (int, error) {
	all, err := docs.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	if err := s.index.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear index: %w", err)
	}

	ingested := 0
	for _, doc := range all {
		if err := ctx.Err(); err != nil {
			return ingested, err
		}
		if err := s.Ingest(ctx, doc.ID, doc.Name, doc.Content); err != nil {
			log.Printf("[Retrieval] Skipping document %d during rebuild: %v", doc.ID, err)
			continue
		}
		ingested++
	}

	log.Printf("[Retrieval] Rebuilt index from %d/%d documents", ingested, len(all))
	return ingested, nil
}
