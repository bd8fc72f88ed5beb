package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/pkg/store"
)

func TestMemoryDocuments(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	id1, err := m.CreateDocument(ctx, models.Document{Name: "a.txt", Content: "alpha", UploadedBy: 7})
	require.NoError(t, err)
	id2, err := m.CreateDocument(ctx, models.Document{Name: "b.txt", Content: "beta"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	doc, err := m.GetDocument(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "alpha", doc.Content)
	assert.Equal(t, int64(7), doc.UploadedBy)
	assert.False(t, doc.CreatedAt.IsZero())

	docs, err := m.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b.txt", docs[0].Name, "newest first")

	require.NoError(t, m.DeleteDocument(ctx, id1))
	_, err = m.GetDocument(ctx, id1)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, m.DeleteDocument(ctx, id1), models.ErrNotFound)

	_, err = m.CreateDocument(ctx, models.Document{Content: "nameless"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestMemoryConversations(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	for _, c := range []models.Conversation{
		{UserID: 1, Role: models.RoleUser, Content: "one"},
		{UserID: 2, Role: models.RoleUser, Content: "other user"},
		{UserID: 1, Role: models.RoleAssistant, Content: "two"},
		{UserID: 1, Role: models.RoleUser, Content: "three"},
	} {
		require.NoError(t, m.AppendConversation(ctx, c))
	}

	history, err := m.ListConversations(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "three", history[0].Content)
	assert.Equal(t, "two", history[1].Content)

	history, err = m.ListConversations(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	history, err = m.ListConversations(ctx, 99, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryAppendExchange(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	steps := `[]`
	require.NoError(t, m.AppendExchange(ctx,
		models.Conversation{UserID: 7, Role: models.RoleUser, Content: "question"},
		models.Conversation{UserID: 7, Role: models.RoleAssistant, Content: "answer", ReasoningSteps: &steps}))

	history, err := m.ListConversations(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleAssistant, history[0].Role)
	assert.Equal(t, models.RoleUser, history[1].Role)
	assert.Greater(t, history[0].ID, history[1].ID)
}

func TestMemoryAvatars(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.ActiveAvatar(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = m.CreateAvatar(ctx, models.AvatarConfig{Name: "小卫", WakeWord: "小卫小卫", OpeningMessage: "你好"})
	require.NoError(t, err)
	id, err := m.CreateAvatar(ctx, models.AvatarConfig{Name: "Echo", WakeWord: "hey echo", OpeningMessage: "hi", TTSVoice: "nova"})
	require.NoError(t, err)

	active, err := m.ActiveAvatar(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, active.ID)
	assert.Equal(t, "hey echo", active.WakeWord)
	assert.Equal(t, "nova", active.TTSVoice)
	assert.Equal(t, "openai", active.Provider)
	assert.True(t, active.IsActive)

	_, err = m.CreateAvatar(ctx, models.AvatarConfig{Name: "incomplete"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
