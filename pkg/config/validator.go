package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" || !validURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "a valid Ollama base URL is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Embedder config
	switch c.Embedder.Type {
	case "hash":
		if c.Embedder.Dimension < 1 {
			errors = append(errors, ValidationError{
				Field:   "embedder.dimension",
				Message: "dimension must be positive",
			})
		}
	case "ollama":
		if !validURL(c.Embedder.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "a valid Ollama base URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.type",
			Message: fmt.Sprintf("unknown embedder type %q (want hash or ollama)", c.Embedder.Type),
		})
	}

	// Validate Database and Index config
	if c.Database.URL != "" && !validURL(c.Database.URL) {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.VectorDim < 0 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim cannot be negative",
		})
	}

	switch c.Index.Type {
	case "memory":
	case "pgvector":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.type",
				Message: "pgvector index requires database.url",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.type",
			Message: fmt.Sprintf("unknown index type %q (want memory or pgvector)", c.Index.Type),
		})
	}

	// Validate Processor and Pipeline config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Pipeline.RetrievalTopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.retrieval_top_k",
			Message: "retrieval_top_k must be positive",
		})
	}

	if c.Pipeline.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.timeout",
			Message: "timeout cannot be negative",
		})
	}

	// Validate Speech config
	if c.Speech.BaseURL != "" && !validURL(c.Speech.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "speech.base_url",
			Message: "invalid speech API URL",
		})
	}

	if c.Speech.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "speech.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth cannot be negative",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate extensions format
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	return errors
}
