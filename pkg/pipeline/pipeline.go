// Package pipeline answers a user message through a fixed chain of model
// calls (semantic analysis, optional retrieval, reasoning, final answer) and
// records the exchange in conversation history.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
)

const (
	DefaultAssistantName = "小卫"
	DefaultRetrievalTopK = 3
	DefaultSnippetLength = 200
)

const (
	semanticSystem  = "You are a semantic analyzer. Extract intent and keywords."
	reasoningSystem = "You are a helpful AI assistant. Think step by step."
	finalSystem     = "You are a helpful AI assistant named %s. Provide clear, friendly answers."

	semanticFallback  = "Intent analysis completed"
	reasoningFallback = "Reasoning completed"
	finalFallback     = "I'm sorry, I couldn't generate an answer."
)

type Config struct {
	AssistantName string
	RetrievalTopK int
	SnippetLength int
}

// Retriever is the knowledge lookup used by the retrieval stage.
type Retriever interface {
	Query(ctx context.Context, text string, topK int) ([]models.RetrievalResult, error)
}

type Pipeline struct {
	config    Config
	completer types.Completer
	retriever Retriever
	history   types.ConversationStore
}

// New builds a pipeline. retriever may be nil, in which case runs that ask
// for knowledge fail.
func New(config Config, completer types.Completer, retriever Retriever, history types.ConversationStore) (*Pipeline, error) {
	if completer == nil || history == nil {
		return nil, fmt.Errorf("%w: completer and history store are required", models.ErrInvalidInput)
	}
	if config.AssistantName == "" {
		config.AssistantName = DefaultAssistantName
	}
	if config.RetrievalTopK <= 0 {
		config.RetrievalTopK = DefaultRetrievalTopK
	}
	if config.SnippetLength <= 0 {
		config.SnippetLength = DefaultSnippetLength
	}

	return &Pipeline{
		config:    config,
		completer: completer,
		retriever: retriever,
		history:   history,
	}, nil
}

// Run executes every stage in order. A malformed model response is replaced
// by the stage's fallback text; any other failure aborts the run and nothing
// is written to history.
func (p *Pipeline) Run(ctx context.Context, userID int64, text string, includeKnowledge bool) (*models.PipelineResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrInvalidInput)
	}

	steps := make([]models.ReasoningStep, 0, 4)

	// 1. Semantic analysis
	intent, err := p.complete(ctx, semanticSystem,
		fmt.Sprintf("Analyze the user's intent and extract keywords from: \"%s\"", text),
		semanticFallback)
	if err != nil {
		return nil, p.fail(ctx, "semantic", err)
	}
	steps = append(steps, models.ReasoningStep{Type: models.StepSemantic, Value: intent})

	// 2. Retrieval
	var knowledge string
	if includeKnowledge {
		if p.retriever == nil {
			return nil, p.fail(ctx, "retrieval", errors.New("no knowledge base configured"))
		}
		results, err := p.retriever.Query(ctx, text, p.config.RetrievalTopK)
		if err != nil {
			return nil, p.fail(ctx, "retrieval", err)
		}
		steps = append(steps, models.ReasoningStep{Type: models.StepRetrieval, Value: p.summarize(results)})
		knowledge = contextBlock(results)
	}

	// 3. Reasoning
	reasoning, err := p.complete(ctx, reasoningSystem,
		fmt.Sprintf("User question: %s%s\n\nProvide a step-by-step reasoning process.", text, knowledge),
		reasoningFallback)
	if err != nil {
		return nil, p.fail(ctx, "reasoning", err)
	}
	steps = append(steps, models.ReasoningStep{Type: models.StepReasoning, Value: reasoning})

	// 4. Final answer
	answer, err := p.complete(ctx, fmt.Sprintf(finalSystem, p.config.AssistantName),
		fmt.Sprintf("Based on the reasoning, provide a clear and concise answer to: %s%s", text, knowledge),
		finalFallback)
	if err != nil {
		return nil, p.fail(ctx, "final", err)
	}
	steps = append(steps, models.ReasoningStep{Type: models.StepFinal, Value: answer})

	result := &models.PipelineResult{Answer: answer, Steps: steps}
	if err := p.record(ctx, userID, text, result); err != nil {
		return nil, p.fail(ctx, "history", err)
	}
	return result, nil
}

func (p *Pipeline) complete(ctx context.Context, system, prompt, fallback string) (string, error) {
	completion, err := p.completer.Complete(ctx, []types.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}
	if completion.Malformed {
		log.Printf("[Pipeline] Malformed model response, using fallback %q", fallback)
		return fallback, nil
	}
	return completion.Text, nil
}

func (p *Pipeline) record(ctx context.Context, userID int64, text string, result *models.PipelineResult) error {
	trace, err := json.Marshal(result.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	steps := string(trace)

	return p.history.AppendExchange(ctx, models.Conversation{
		UserID:  userID,
		Role:    models.RoleUser,
		Content: text,
	}, models.Conversation{
		UserID:         userID,
		Role:           models.RoleAssistant,
		Content:        result.Answer,
		ReasoningSteps: &steps,
	})
}

func (p *Pipeline) fail(ctx context.Context, stage string, err error) error {
	log.Printf("[Pipeline] %s stage failed: %v", stage, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s stage: %v", models.ErrServiceUnavailable, stage, err)
	}
	return fmt.Errorf("%w: %s stage: %v", models.ErrProcessingFailed, stage, err)
}

func (p *Pipeline) summarize(results []models.RetrievalResult) []models.RetrievalSummary {
	summaries := make([]models.RetrievalSummary, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, models.RetrievalSummary{
			File:    r.DocumentName,
			Snippet: truncate(r.Content, p.config.SnippetLength),
			Score:   fmt.Sprintf("%.2f", r.Score),
		})
	}
	return summaries
}

func contextBlock(results []models.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.Content)
	}
	return "\n\nRelevant knowledge:\n" + strings.Join(contents, "\n\n")
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
