package assistant_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/pkg/assistant"
	"github.com/xhad/xiaowei/pkg/index"
	"github.com/xhad/xiaowei/pkg/llm"
	"github.com/xhad/xiaowei/pkg/processor"
	"github.com/xhad/xiaowei/pkg/retrieval"
	"github.com/xhad/xiaowei/pkg/speech"
	"github.com/xhad/xiaowei/pkg/store"
)

type fakeRunner struct {
	calls []string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, _ int64, text string, _ bool) (*models.PipelineResult, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PipelineResult{
		Answer: "answer to " + text,
		Steps:  []models.ReasoningStep{{Type: models.StepFinal, Value: "answer to " + text}},
	}, nil
}

type fakeSpeaker struct {
	voice string
}

func (f *fakeSpeaker) Speak(_ context.Context, _ string, voice string) (string, error) {
	f.voice = voice
	return "/audio/tts/x.mp3", nil
}

func (f *fakeSpeaker) Transcribe(_ context.Context, _ string, _ string) (*speech.Transcription, error) {
	return &speech.Transcription{Text: "你好", Language: "zh"}, nil
}

func (f *fakeSpeaker) SaveRecording(_ context.Context, _ []byte) (string, error) {
	return "/audio/audio/x.webm", nil
}

type fakeImporter struct {
	docs []models.Document
}

func (f *fakeImporter) Scrape(_ context.Context, _ string) ([]models.Document, error) {
	return f.docs, nil
}

type failingKnowledge struct{}

func (failingKnowledge) Ingest(context.Context, int64, string, string) error {
	return errors.New("embedder offline")
}

func (failingKnowledge) Remove(context.Context, int64) error { return nil }

type fixture struct {
	assistant *assistant.Assistant
	runner    *fakeRunner
	memory    *store.Memory
	index     *index.MemoryIndex
	speaker   *fakeSpeaker
}

func newFixture(t *testing.T, deps func(*assistant.Deps)) *fixture {
	t.Helper()
	f := &fixture{
		runner:  &fakeRunner{},
		memory:  store.NewMemory(),
		index:   index.NewMemoryIndex(),
		speaker: &fakeSpeaker{},
	}
	d := assistant.Deps{
		Pipeline:      f.runner,
		Knowledge:     retrieval.New(retrieval.Config{}, llm.NewHashEmbedder(32), f.index),
		Documents:     f.memory,
		Conversations: f.memory,
		Avatars:       f.memory,
		Speech:        f.speaker,
		Importer: &fakeImporter{docs: []models.Document{
			{Name: "Page A", URL: "https://example.com/a", Content: "页面一。", FileType: "text/html"},
			{Name: "Page B", URL: "https://example.com/b", Content: "Page two.", FileType: "text/html"},
		}},
	}
	if deps != nil {
		deps(&d)
	}

	a, err := assistant.New(assistant.Config{}, d)
	require.NoError(t, err)
	f.assistant = a
	return f
}

func TestChatWakeWord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	reply, err := f.assistant.Chat(ctx, 1, "小卫小卫!", true)
	require.NoError(t, err)
	assert.True(t, reply.WakeWord)
	assert.Equal(t, assistant.DefaultOpeningMessage, reply.Answer)
	assert.Empty(t, f.runner.calls)

	reply, err = f.assistant.Chat(ctx, 1, "小卫小卫,今天天气怎么样?", true)
	require.NoError(t, err)
	assert.True(t, reply.WakeWord)
	assert.Equal(t, assistant.DefaultOpeningMessage, reply.Answer)
	assert.Empty(t, f.runner.calls)

	_, err = f.assistant.Chat(ctx, 1, "今天天气怎么样?", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"今天天气怎么样?"}, f.runner.calls)
}

func TestChatPropagatesPipelineError(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.err = models.ErrProcessingFailed

	_, err := f.assistant.Chat(context.Background(), 1, "你好", false)
	assert.ErrorIs(t, err, models.ErrProcessingFailed)
}

func TestCheckWakeWordUsesActiveAvatar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ok, msg := f.assistant.CheckWakeWord(ctx, "嘿,小卫小卫")
	assert.True(t, ok)
	assert.Equal(t, assistant.DefaultOpeningMessage, msg)

	ok, msg = f.assistant.CheckWakeWord(ctx, "hello")
	assert.False(t, ok)
	assert.Empty(t, msg)

	_, err := f.assistant.CreateAvatar(ctx, models.AvatarConfig{
		Name: "Echo", WakeWord: "hey echo", OpeningMessage: "Hi, I'm Echo.", TTSVoice: "nova",
	})
	require.NoError(t, err)

	ok, msg = f.assistant.CheckWakeWord(ctx, "well hey echo")
	assert.True(t, ok)
	assert.Equal(t, "Hi, I'm Echo.", msg)

	ok, _ = f.assistant.CheckWakeWord(ctx, "小卫小卫")
	assert.False(t, ok)
}

func TestUploadDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	content := base64.StdEncoding.EncodeToString([]byte("今天天气很好。我喜欢跑步。"))
	result, err := f.assistant.UploadDocument(ctx, 7, "doc.txt", content, processor.FileTypeText)
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", result.FileName)
	assert.Equal(t, processor.EstimateTokenCount("今天天气很好。我喜欢跑步。"), result.TokenCount)

	doc, err := f.assistant.GetDocument(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.UploadedBy)
	assert.Equal(t, "今天天气很好。我喜欢跑步。", doc.Content)

	n, _ := f.index.Len(ctx)
	assert.Equal(t, 1, n)

	require.NoError(t, f.assistant.DeleteDocument(ctx, result.DocumentID))
	n, _ = f.index.Len(ctx)
	assert.Equal(t, 0, n)
	_, err = f.assistant.GetDocument(ctx, result.DocumentID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUploadDocumentFailures(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	_, err := f.assistant.UploadDocument(ctx, 1, "bad.txt", "%%%", processor.FileTypeText)
	assert.ErrorIs(t, err, models.ErrIngestionFailed)

	_, err = f.assistant.UploadDocument(ctx, 1, "", "", processor.FileTypeText)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	f = newFixture(t, func(d *assistant.Deps) { d.Knowledge = failingKnowledge{} })
	content := base64.StdEncoding.EncodeToString([]byte("hello."))
	_, err = f.assistant.UploadDocument(ctx, 1, "doc.txt", content, processor.FileTypeText)
	assert.ErrorIs(t, err, models.ErrIngestionFailed)

	docs, err := f.assistant.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs, "failed ingestion must not leave the document behind")
}

func TestImportURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	results, err := f.assistant.ImportURL(ctx, 3, "https://example.com/")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Page A", results[0].FileName)

	docs, err := f.assistant.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(3), docs[0].UploadedBy)

	n, _ := f.index.Len(ctx)
	assert.Equal(t, 2, n)

	f = newFixture(t, func(d *assistant.Deps) { d.Importer = nil })
	_, err = f.assistant.ImportURL(ctx, 3, "https://example.com/")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestHistoryDefaultsLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for i := 0; i < 60; i++ {
		require.NoError(t, f.memory.AppendConversation(ctx, models.Conversation{UserID: 1, Role: models.RoleUser, Content: "m"}))
	}

	history, err := f.assistant.History(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, history, 50)

	history, err = f.assistant.History(ctx, 1, 5)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestSpeech(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	url, err := f.assistant.Speak(ctx, "你好")
	require.NoError(t, err)
	assert.Equal(t, "/audio/tts/x.mp3", url)
	assert.Equal(t, assistant.DefaultVoice, f.speaker.voice)

	_, err = f.assistant.CreateAvatar(ctx, models.AvatarConfig{Name: "Echo", WakeWord: "echo", OpeningMessage: "hi", TTSVoice: "shimmer"})
	require.NoError(t, err)
	_, err = f.assistant.Speak(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "shimmer", f.speaker.voice)

	tr, err := f.assistant.Transcribe(ctx, "/audio/audio/x.webm", "")
	require.NoError(t, err)
	assert.Equal(t, "你好", tr.Text)

	f = newFixture(t, func(d *assistant.Deps) { d.Speech = nil })
	_, err = f.assistant.Speak(ctx, "hi")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	_, err = f.assistant.SaveRecording(ctx, []byte("x"))
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestActiveAvatarDefaultsUseConfiguredName(t *testing.T) {
	memory := store.NewMemory()
	a, err := assistant.New(assistant.Config{Name: "Echo"}, assistant.Deps{
		Pipeline:      &fakeRunner{},
		Knowledge:     failingKnowledge{},
		Documents:     memory,
		Conversations: memory,
		Avatars:       memory,
	})
	require.NoError(t, err)

	avatar := a.ActiveAvatar(context.Background())
	assert.Equal(t, "Echo", avatar.Name)
	assert.Equal(t, assistant.DefaultWakeWord, avatar.WakeWord)

	f := newFixture(t, nil)
	assert.Equal(t, assistant.DefaultName, f.assistant.ActiveAvatar(context.Background()).Name)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := assistant.New(assistant.Config{}, assistant.Deps{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
