package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/xiaowei/internal/types"
)

// DefaultDimension matches the width of common hosted embedding models.
const DefaultDimension = 1536

// EmbedderConfig represents the configuration for an Ollama embedder.
type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
}

type embeddingCreator interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder produces semantic embeddings through an Ollama embedding model.
type Embedder struct {
	config EmbedderConfig
	client embeddingCreator

	mu        sync.RWMutex
	dimension int
}

var (
	_ types.Embedder = (*Embedder)(nil)
	_ types.Embedder = (*HashEmbedder)(nil)
)

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config = normalizeEmbedderConfig(config)

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		client: emb,
	}, nil
}

// NewEmbedderWithClient wraps any client exposing CreateEmbedding.
func NewEmbedderWithClient(config EmbedderConfig, client embeddingCreator) *Embedder {
	return &Embedder{
		config: normalizeEmbedderConfig(config),
		client: client,
	}
}

func normalizeEmbedderConfig(config EmbedderConfig) EmbedderConfig {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return config
}

// Embed returns the embedding of text. Failures are returned as is; retrying
// is left to the caller.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	vec := embeddings[0]
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(vec)
	}
	e.mu.Unlock()
	return vec, nil
}

// Dimension is zero until the first successful Embed call.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// HashEmbedder is a deterministic stand-in for environments without an
// embedding model. Vectors depend only on the characters of the text and
// carry no semantic meaning.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Dimension() int { return h.dimension }

// Embed sets component i to sin(sum over characters of code*(i+pos+1)) / 2.
// The sum factors into (i+1)*sum(code) + sum(code*pos).
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	var codeSum, weighted float64
	pos := 0
	for _, r := range text {
		codeSum += float64(r)
		weighted += float64(r) * float64(pos)
		pos++
	}

	vec := make([]float32, h.dimension)
	for i := range vec {
		hash := float64(i+1)*codeSum + weighted
		vec[i] = float32(math.Sin(hash) * 0.5)
	}
	return vec, nil
}
