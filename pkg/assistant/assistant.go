// Package assistant is the application surface of the virtual assistant:
// chat with wake-word handling, knowledge-base management, conversation
// history, avatar configuration and speech.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
	"github.com/xhad/xiaowei/pkg/processor"
	"github.com/xhad/xiaowei/pkg/speech"
)

const (
	DefaultName           = "小卫"
	DefaultWakeWord       = "小卫小卫"
	DefaultOpeningMessage = "你好,我是小卫,有什么可以帮助你的吗?"
	DefaultVoice          = "alloy"
)

type Config struct {
	Name           string
	WakeWord       string
	OpeningMessage string
	Voice          string
	HistoryLimit   int
}

// Runner answers a message through the reasoning pipeline.
type Runner interface {
	Run(ctx context.Context, userID int64, text string, includeKnowledge bool) (*models.PipelineResult, error)
}

// Knowledge maintains the searchable index of document chunks.
type Knowledge interface {
	Ingest(ctx context.Context, docID int64, docName, content string) error
	Remove(ctx context.Context, docID int64) error
}

type Speaker interface {
	Speak(ctx context.Context, text, voice string) (string, error)
	Transcribe(ctx context.Context, audioURL, language string) (*speech.Transcription, error)
	SaveRecording(ctx context.Context, data []byte) (string, error)
}

type Importer interface {
	Scrape(ctx context.Context, url string) ([]models.Document, error)
}

// Deps are the collaborators of an Assistant. Speech and Importer may be nil,
// in which case the matching operations report ErrServiceUnavailable.
type Deps struct {
	Pipeline      Runner
	Knowledge     Knowledge
	Documents     types.DocumentStore
	Conversations types.ConversationStore
	Avatars       types.AvatarStore
	Speech        Speaker
	Importer      Importer
}

type Assistant struct {
	config Config
	deps   Deps
}

// ChatReply is the answer to a chat message. WakeWord is set when the message
// only called the assistant by name and was answered with the opening message.
type ChatReply struct {
	Answer   string                 `json:"answer"`
	Steps    []models.ReasoningStep `json:"steps"`
	WakeWord bool                   `json:"wakeWord"`
}

type UploadResult struct {
	DocumentID int64  `json:"documentId"`
	FileName   string `json:"fileName"`
	TokenCount int    `json:"tokenCount"`
}

func New(config Config, deps Deps) (*Assistant, error) {
	if deps.Pipeline == nil || deps.Knowledge == nil {
		return nil, fmt.Errorf("%w: pipeline and knowledge are required", models.ErrInvalidInput)
	}
	if deps.Documents == nil || deps.Conversations == nil || deps.Avatars == nil {
		return nil, fmt.Errorf("%w: stores are required", models.ErrInvalidInput)
	}
	if config.Name == "" {
		config.Name = DefaultName
	}
	if config.WakeWord == "" {
		config.WakeWord = DefaultWakeWord
	}
	if config.OpeningMessage == "" {
		config.OpeningMessage = DefaultOpeningMessage
	}
	if config.Voice == "" {
		config.Voice = DefaultVoice
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	return &Assistant{config: config, deps: deps}, nil
}

// Chat answers text. A message containing the wake word is greeted with the
// opening message and never reaches the pipeline.
func (a *Assistant) Chat(ctx context.Context, userID int64, text string, includeKnowledge bool) (*ChatReply, error) {
	if ok, opening := a.CheckWakeWord(ctx, text); ok {
		return &ChatReply{Answer: opening, Steps: []models.ReasoningStep{}, WakeWord: true}, nil
	}

	result, err := a.deps.Pipeline.Run(ctx, userID, text, includeKnowledge)
	if err != nil {
		return nil, err
	}
	return &ChatReply{Answer: result.Answer, Steps: result.Steps}, nil
}

// CheckWakeWord reports whether text contains the active wake word, and if so
// the opening message to greet with.
func (a *Assistant) CheckWakeWord(ctx context.Context, text string) (bool, string) {
	avatar := a.ActiveAvatar(ctx)
	if strings.Contains(text, avatar.WakeWord) {
		return true, avatar.OpeningMessage
	}
	return false, ""
}

// ActiveAvatar returns the active avatar configuration, or one built from the
// configured defaults when none is stored.
func (a *Assistant) ActiveAvatar(ctx context.Context) models.AvatarConfig {
	avatar, err := a.deps.Avatars.ActiveAvatar(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Printf("[Assistant] Failed to load avatar config, using defaults: %v", err)
		}
		return models.AvatarConfig{
			Name:           a.config.Name,
			WakeWord:       a.config.WakeWord,
			OpeningMessage: a.config.OpeningMessage,
			TTSVoice:       a.config.Voice,
			Provider:       "openai",
		}
	}

	if avatar.WakeWord == "" {
		avatar.WakeWord = a.config.WakeWord
	}
	if avatar.OpeningMessage == "" {
		avatar.OpeningMessage = a.config.OpeningMessage
	}
	if avatar.TTSVoice == "" {
		avatar.TTSVoice = a.config.Voice
	}
	return *avatar
}

// CreateAvatar stores cfg as the new active avatar.
func (a *Assistant) CreateAvatar(ctx context.Context, cfg models.AvatarConfig) (int64, error) {
	return a.deps.Avatars.CreateAvatar(ctx, cfg)
}

// History returns the user's conversation records, newest first.
func (a *Assistant) History(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = a.config.HistoryLimit
	}
	return a.deps.Conversations.ListConversations(ctx, userID, limit)
}

// UploadDocument parses a base64 upload, stores it and adds it to the index.
// If indexing fails the stored document is removed again.
func (a *Assistant) UploadDocument(ctx context.Context, userID int64, name, content, fileType string) (*UploadResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: file name is required", models.ErrInvalidInput)
	}

	text, err := processor.ParseDocument(content, fileType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIngestionFailed, err)
	}

	return a.addDocument(ctx, models.Document{
		Name:       name,
		Content:    text,
		FileType:   fileType,
		UploadedBy: userID,
	})
}

// ImportURL crawls url and adds every page found as a document.
func (a *Assistant) ImportURL(ctx context.Context, userID int64, url string) ([]UploadResult, error) {
	if a.deps.Importer == nil {
		return nil, fmt.Errorf("%w: web import is not configured", models.ErrServiceUnavailable)
	}

	pages, err := a.deps.Importer.Scrape(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: scrape %s: %v", models.ErrIngestionFailed, url, err)
	}

	results := make([]UploadResult, 0, len(pages))
	for _, page := range pages {
		page.UploadedBy = userID
		result, err := a.addDocument(ctx, page)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func (a *Assistant) addDocument(ctx context.Context, doc models.Document) (*UploadResult, error) {
	doc.TokenCount = processor.EstimateTokenCount(doc.Content)

	id, err := a.deps.Documents.CreateDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIngestionFailed, err)
	}

	if err := a.deps.Knowledge.Ingest(ctx, id, doc.Name, doc.Content); err != nil {
		if delErr := a.deps.Documents.DeleteDocument(ctx, id); delErr != nil {
			log.Printf("[Assistant] Failed to remove document %d after ingestion error: %v", id, delErr)
		}
		if errors.Is(err, models.ErrIngestionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrIngestionFailed, err)
	}

	log.Printf("[Assistant] Added document %d (%s), ~%d tokens", id, doc.Name, doc.TokenCount)
	return &UploadResult{DocumentID: id, FileName: doc.Name, TokenCount: doc.TokenCount}, nil
}

func (a *Assistant) ListDocuments(ctx context.Context) ([]models.Document, error) {
	return a.deps.Documents.ListDocuments(ctx)
}

func (a *Assistant) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	return a.deps.Documents.GetDocument(ctx, id)
}

// DeleteDocument removes the document and its indexed chunks.
func (a *Assistant) DeleteDocument(ctx context.Context, id int64) error {
	if err := a.deps.Documents.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return a.deps.Knowledge.Remove(ctx, id)
}

// Speak synthesizes text in the active avatar's voice.
func (a *Assistant) Speak(ctx context.Context, text string) (string, error) {
	if a.deps.Speech == nil {
		return "", fmt.Errorf("%w: speech provider is not configured", models.ErrServiceUnavailable)
	}
	return a.deps.Speech.Speak(ctx, text, a.ActiveAvatar(ctx).TTSVoice)
}

func (a *Assistant) Transcribe(ctx context.Context, audioURL, language string) (*speech.Transcription, error) {
	if a.deps.Speech == nil {
		return nil, fmt.Errorf("%w: speech provider is not configured", models.ErrServiceUnavailable)
	}
	return a.deps.Speech.Transcribe(ctx, audioURL, language)
}

func (a *Assistant) SaveRecording(ctx context.Context, data []byte) (string, error) {
	if a.deps.Speech == nil {
		return "", fmt.Errorf("%w: speech provider is not configured", models.ErrServiceUnavailable)
	}
	return a.deps.Speech.SaveRecording(ctx, data)
}
