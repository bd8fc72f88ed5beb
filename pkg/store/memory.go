package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
)

// Memory keeps documents, conversations and avatar configs in process. It is
// used when no database is configured and in tests.
type Memory struct {
	mu sync.RWMutex

	nextID        int64
	documents     []models.Document
	conversations []models.Conversation
	avatars       []models.AvatarConfig

	now func() time.Time
}

var (
	_ types.DocumentStore     = (*Memory)(nil)
	_ types.ConversationStore = (*Memory)(nil)
	_ types.AvatarStore       = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) CreateDocument(_ context.Context, doc models.Document) (int64, error) {
	if doc.Name == "" {
		return 0, fmt.Errorf("%w: document name is required", models.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc.ID = m.id()
	doc.Name = sanitizeUTF8(doc.Name)
	doc.Content = sanitizeUTF8(doc.Content)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = m.now()
	}
	m.documents = append(m.documents, doc)
	return doc.ID, nil
}

func (m *Memory) GetDocument(_ context.Context, id int64) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, doc := range m.documents {
		if doc.ID == id {
			found := doc
			return &found, nil
		}
	}
	return nil, fmt.Errorf("document %d: %w", id, models.ErrNotFound)
}

// ListDocuments returns documents newest first.
func (m *Memory) ListDocuments(_ context.Context) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]models.Document, 0, len(m.documents))
	for i := len(m.documents) - 1; i >= 0; i-- {
		docs = append(docs, m.documents[i])
	}
	return docs, nil
}

func (m *Memory) DeleteDocument(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, doc := range m.documents {
		if doc.ID == id {
			m.documents = append(m.documents[:i], m.documents[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("document %d: %w", id, models.ErrNotFound)
}

func (m *Memory) AppendConversation(_ context.Context, conv models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendLocked(conv)
	return nil
}

func (m *Memory) AppendExchange(_ context.Context, user, assistant models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendLocked(user)
	m.appendLocked(assistant)
	return nil
}

func (m *Memory) appendLocked(conv models.Conversation) {
	conv.ID = m.id()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = m.now()
	}
	m.conversations = append(m.conversations, conv)
}

// ListConversations returns up to limit records for userID, newest first.
func (m *Memory) ListConversations(_ context.Context, userID int64, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Conversation
	for i := len(m.conversations) - 1; i >= 0 && len(out) < limit; i-- {
		if m.conversations[i].UserID == userID {
			out = append(out, m.conversations[i])
		}
	}
	return out, nil
}

func (m *Memory) ActiveAvatar(_ context.Context) (*models.AvatarConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.avatars) - 1; i >= 0; i-- {
		if m.avatars[i].IsActive {
			active := m.avatars[i]
			return &active, nil
		}
	}
	return nil, fmt.Errorf("active avatar: %w", models.ErrNotFound)
}

// CreateAvatar stores cfg as the only active avatar.
func (m *Memory) CreateAvatar(_ context.Context, cfg models.AvatarConfig) (int64, error) {
	if cfg.Name == "" || cfg.WakeWord == "" || cfg.OpeningMessage == "" {
		return 0, fmt.Errorf("%w: avatar name, wake word and opening message are required", models.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.avatars {
		m.avatars[i].IsActive = false
	}
	cfg = withAvatarDefaults(cfg)
	cfg.ID = m.id()
	cfg.IsActive = true
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = m.now()
	}
	m.avatars = append(m.avatars, cfg)
	return cfg.ID, nil
}
