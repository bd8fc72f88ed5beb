package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Processor ProcessorConfig `yaml:"processor"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Assistant AssistantConfig `yaml:"assistant"`
	Speech    SpeechConfig    `yaml:"speech"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Server    ServerConfig    `yaml:"server"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type EmbedderConfig struct {
	Type      string `yaml:"type"` // hash or ollama
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	VectorDim int    `yaml:"vector_dim"`
}

type IndexConfig struct {
	Type string `yaml:"type"` // memory or pgvector
}

type ProcessorConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

type PipelineConfig struct {
	RetrievalTopK int           `yaml:"retrieval_top_k"`
	SnippetLength int           `yaml:"snippet_length"`
	Timeout       time.Duration `yaml:"timeout"`
}

type AssistantConfig struct {
	Name           string `yaml:"name"`
	WakeWord       string `yaml:"wake_word"`
	OpeningMessage string `yaml:"opening_message"`
	Voice          string `yaml:"voice"`
	HistoryLimit   int    `yaml:"history_limit"`
}

type SpeechConfig struct {
	BaseURL    string  `yaml:"base_url"`
	APIKey     string  `yaml:"api_key"`
	TTSModel   string  `yaml:"tts_model"`
	STTModel   string  `yaml:"stt_model"`
	RateLimit  float64 `yaml:"rate_limit"`
	AudioDir   string  `yaml:"audio_dir"`
	PublicBase string  `yaml:"public_base"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxPages          int      `yaml:"max_pages"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	DefaultUserID  int64    `yaml:"default_user_id"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/xiaowei/config.yaml"),
			"/etc/xiaowei/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedder.Type == "" {
		config.Embedder.Type = "hash"
	}
	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = config.LLM.BaseURL
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}
	if config.Embedder.Dimension == 0 {
		config.Embedder.Dimension = 1536
	}

	if config.Index.Type == "" {
		config.Index.Type = "memory"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}

	if config.Pipeline.RetrievalTopK == 0 {
		config.Pipeline.RetrievalTopK = 3
	}
	if config.Pipeline.SnippetLength == 0 {
		config.Pipeline.SnippetLength = 200
	}
	if config.Pipeline.Timeout == 0 {
		config.Pipeline.Timeout = 2 * time.Minute
	}

	if config.Assistant.Name == "" {
		config.Assistant.Name = "小卫"
	}
	if config.Assistant.WakeWord == "" {
		config.Assistant.WakeWord = "小卫小卫"
	}
	if config.Assistant.OpeningMessage == "" {
		config.Assistant.OpeningMessage = "你好,我是小卫,有什么可以帮助你的吗?"
	}
	if config.Assistant.Voice == "" {
		config.Assistant.Voice = "alloy"
	}
	if config.Assistant.HistoryLimit == 0 {
		config.Assistant.HistoryLimit = 50
	}

	if config.Speech.TTSModel == "" {
		config.Speech.TTSModel = "tts-1"
	}
	if config.Speech.STTModel == "" {
		config.Speech.STTModel = "whisper-1"
	}
	if config.Speech.RateLimit == 0 {
		config.Speech.RateLimit = 2.0
	}
	if config.Speech.AudioDir == "" {
		config.Speech.AudioDir = "data/audio"
	}
	if config.Speech.PublicBase == "" {
		config.Speech.PublicBase = "/audio"
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 2
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 50
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm"}
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.DefaultUserID == 0 {
		config.Server.DefaultUserID = 1
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedder.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if speechURL := os.Getenv("SPEECH_API_URL"); speechURL != "" {
		config.Speech.BaseURL = speechURL
	}
	if speechKey := os.Getenv("SPEECH_API_KEY"); speechKey != "" {
		config.Speech.APIKey = speechKey
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}
