// Package app assembles the assistant from configuration.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/xhad/xiaowei/internal/types"
	"github.com/xhad/xiaowei/pkg/assistant"
	"github.com/xhad/xiaowei/pkg/config"
	"github.com/xhad/xiaowei/pkg/index"
	"github.com/xhad/xiaowei/pkg/llm"
	"github.com/xhad/xiaowei/pkg/pipeline"
	"github.com/xhad/xiaowei/pkg/retrieval"
	"github.com/xhad/xiaowei/pkg/scraper"
	"github.com/xhad/xiaowei/pkg/speech"
	"github.com/xhad/xiaowei/pkg/store"
	"github.com/xhad/xiaowei/server"
)

// App holds the wired components. Close releases the database pool, if any.
type App struct {
	Config    *config.Config
	Assistant *assistant.Assistant
	Retrieval *retrieval.Service
	Pipeline  *pipeline.Pipeline
	Scraper   *scraper.Scraper

	closers []func()
}

type stores struct {
	documents     types.DocumentStore
	conversations types.ConversationStore
	avatars       types.AvatarStore
	index         types.VectorIndex
	durableIndex  bool
}

// Build wires every component described by cfg and rebuilds the retrieval
// index from the stored documents.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs[0])
	}

	a := &App{Config: cfg}

	completer, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	embedder, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	st, err := a.newStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Retrieval = retrieval.New(retrieval.Config{ChunkSize: cfg.Processor.ChunkSize}, embedder, st.index)

	a.Pipeline, err = pipeline.New(pipeline.Config{
		AssistantName: cfg.Assistant.Name,
		RetrievalTopK: cfg.Pipeline.RetrievalTopK,
		SnippetLength: cfg.Pipeline.SnippetLength,
	}, completer, a.Retrieval, st.conversations)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Scraper = scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:          cfg.Scraper.MaxDepth,
		MaxPages:          cfg.Scraper.MaxPages,
		RateLimit:         cfg.Scraper.RateLimit,
		IgnorePatterns:    cfg.Scraper.IgnorePatterns,
		AllowedExtensions: cfg.Scraper.AllowedExtensions,
	})

	deps := assistant.Deps{
		Pipeline:      a.Pipeline,
		Knowledge:     a.Retrieval,
		Documents:     st.documents,
		Conversations: st.conversations,
		Avatars:       st.avatars,
		Importer:      a.Scraper,
	}

	if cfg.Speech.BaseURL != "" {
		client, err := newSpeech(cfg.Speech)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Speech = client
	} else {
		log.Printf("[App] No speech provider configured, TTS and STT are disabled")
	}

	a.Assistant, err = assistant.New(assistant.Config{
		Name:           cfg.Assistant.Name,
		WakeWord:       cfg.Assistant.WakeWord,
		OpeningMessage: cfg.Assistant.OpeningMessage,
		Voice:          cfg.Assistant.Voice,
		HistoryLimit:   cfg.Assistant.HistoryLimit,
	}, deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.rebuild(ctx, st); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// rebuild fills the index from the document store. A durable index that
// already holds chunks is kept as is.
func (a *App) rebuild(ctx context.Context, st *stores) error {
	if st.durableIndex {
		n, err := st.index.Len(ctx)
		if err != nil {
			return fmt.Errorf("failed to read index: %w", err)
		}
		if n > 0 {
			log.Printf("[App] Using %d indexed chunks", n)
			return nil
		}
	}

	n, err := a.Retrieval.Rebuild(ctx, st.documents)
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	log.Printf("[App] Indexed %d stored documents", n)
	return nil
}

func newEmbedder(cfg config.EmbedderConfig) (types.Embedder, error) {
	switch cfg.Type {
	case "ollama":
		emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return emb, nil
	default:
		return llm.NewHashEmbedder(cfg.Dimension), nil
	}
}

func (a *App) newStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.URL == "" {
		log.Printf("[App] No database configured, using in-memory storage")
		mem := store.NewMemory()
		return &stores{
			documents:     mem,
			conversations: mem,
			avatars:       mem,
			index:         index.NewMemoryIndex(),
		}, nil
	}

	pg, err := store.NewPostgres(ctx, store.PostgresConfig{
		ConnString: cfg.Database.URL,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, pg.Close)

	st := &stores{
		documents:     pg,
		conversations: pg,
		avatars:       pg,
		index:         index.NewMemoryIndex(),
	}
	if cfg.Index.Type == "pgvector" {
		st.index = store.NewChunkIndex(pg)
		st.durableIndex = true
	}
	return st, nil
}

func newSpeech(cfg config.SpeechConfig) (*speech.Client, error) {
	audio, err := speech.NewFileAudioStore(cfg.AudioDir, cfg.PublicBase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio storage: %w", err)
	}
	client, err := speech.NewClient(speech.Config{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		TTSModel:          cfg.TTSModel,
		STTModel:          cfg.STTModel,
		RequestsPerSecond: cfg.RateLimit,
	}, audio)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speech client: %w", err)
	}
	return client, nil
}

// Server returns the HTTP server for the assembled assistant.
func (a *App) Server() *server.Server {
	cfg := a.Config
	serverConfig := server.Config{
		Port:           cfg.Server.Port,
		ChatTimeout:    cfg.Pipeline.Timeout,
		DefaultUserID:  cfg.Server.DefaultUserID,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AudioBase:      cfg.Speech.PublicBase,
	}
	if cfg.Speech.BaseURL != "" {
		serverConfig.AudioDir = cfg.Speech.AudioDir
	}
	return server.New(serverConfig, a.Assistant)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
