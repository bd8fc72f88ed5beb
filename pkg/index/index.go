// Package index holds document chunk embeddings in memory and answers
// nearest-neighbour queries by cosine similarity.
package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
)

// MemoryIndex is a flat, exhaustively scanned index. It is safe for
// concurrent use: queries share a read lock, mutations take the write lock.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []models.Chunk
}

var _ types.VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add appends chunks as given. Use ReplaceDocument to re-index a document.
func (m *MemoryIndex) Add(_ context.Context, chunks ...models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

// ReplaceDocument drops every chunk of documentID and appends chunks in one step.
func (m *MemoryIndex) ReplaceDocument(_ context.Context, documentID int64, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(documentID)
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *MemoryIndex) RemoveDocument(_ context.Context, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(documentID)
	return nil
}

func (m *MemoryIndex) removeLocked(documentID int64) {
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	// clear the tail so dropped embeddings can be collected
	for i := len(kept); i < len(m.chunks); i++ {
		m.chunks[i] = models.Chunk{}
	}
	m.chunks = kept
}

// Query scores every chunk against embedding and returns the topK best,
// highest score first. Equal scores keep insertion order.
func (m *MemoryIndex) Query(_ context.Context, embedding []float32, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return []models.RetrievalResult{}, nil
	}

	m.mu.RLock()
	results := make([]models.RetrievalResult, 0, len(m.chunks))
	for _, c := range m.chunks {
		results = append(results, models.RetrievalResult{
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			Content:      c.Content,
			Score:        CosineSimilarity(embedding, c.Embedding),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryIndex) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *MemoryIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	return nil
}

// CosineSimilarity returns dot(a,b)/(|a||b|). Vectors of different length,
// and zero vectors, score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
