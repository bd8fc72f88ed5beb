package types

import (
	"context"

	"github.com/xhad/xiaowei/internal/models"
)

// Core interfaces

// Embedder maps text to a fixed-dimension vector. Implementations must be
// deterministic for identical input within one process.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type Message struct {
	Role    models.Role
	Content string
}

// Completion is the text a model returned. Malformed is set when the response
// arrived but had no usable text; callers substitute their own fallback.
type Completion struct {
	Text      string
	Malformed bool
}

// Completer is the language-model completion service. A returned error is a
// transport or service failure, never a shape problem.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (Completion, error)
}

type VectorIndex interface {
	Add(ctx context.Context, chunks ...models.Chunk) error
	ReplaceDocument(ctx context.Context, documentID int64, chunks []models.Chunk) error
	RemoveDocument(ctx context.Context, documentID int64) error
	Query(ctx context.Context, vector []float32, topK int) ([]models.RetrievalResult, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc models.Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

type ConversationStore interface {
	AppendConversation(ctx context.Context, conv models.Conversation) error
	// AppendExchange stores a user message and the assistant reply together;
	// either both records are written or neither is.
	AppendExchange(ctx context.Context, user, assistant models.Conversation) error
	ListConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error)
}

type AvatarStore interface {
	ActiveAvatar(ctx context.Context) (*models.AvatarConfig, error)
	CreateAvatar(ctx context.Context, cfg models.AvatarConfig) (int64, error)
}
