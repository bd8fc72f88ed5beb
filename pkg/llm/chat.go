package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
}

// generator is the part of llms.Model the engine needs.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// ChatEngine is a completion service backed by a langchaingo model.
type ChatEngine struct {
	config ChatConfig
	llm    generator
}

var _ types.Completer = (*ChatEngine)(nil)

// NewWithConfig creates a new ChatEngine talking to an Ollama server.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := normalizeChatConfig(config)
	if err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// NewWithModel wraps an already constructed model, e.g. another langchaingo provider.
func NewWithModel(config ChatConfig, model generator) (*ChatEngine, error) {
	config, err := normalizeChatConfig(config)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func normalizeChatConfig(config ChatConfig) (ChatConfig, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return config, fmt.Errorf("temperature must be between 0 and 1")
	} else if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return config, nil
}

// Complete sends the role-tagged messages and returns the first choice. A
// response without usable text is reported as Malformed rather than as an error.
func (ce *ChatEngine) Complete(ctx context.Context, messages []types.Message) (types.Completion, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return types.Completion{}, fmt.Errorf("chat error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return types.Completion{Malformed: true}, nil
	}

	text := response.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return types.Completion{Malformed: true}, nil
	}
	return types.Completion{Text: text}, nil
}

func messageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
