package ai

import (
	"errors"

	"github.com/hrygo/saga/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	Embedding EmbeddingConfig
	Reranker  RerankerConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, ollama
	Model      string // all-minilm
	Dimensions int    // 384
	APIKey     string
	BaseURL    string
	// MaxRetries bounds retries of transient backend failures.
	MaxRetries uint64
}

// RerankerConfig represents cross-encoder configuration.
type RerankerConfig struct {
	Enabled bool
	Model   string // cross-encoder/ms-marco-MiniLM-L-6-v2
	APIKey  string
	BaseURL string
}

// LLMConfig represents text generation configuration.
type LLMConfig struct {
	Provider    string // openai, ollama
	Model       string // gpt-3.5-turbo
	APIKey      string
	BaseURL     string
	Temperature float32 // default: 0.7
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.AIEnabled,
	}
	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.AIEmbeddingProvider,
		Model:      p.AIEmbeddingModel,
		Dimensions: p.AIEmbeddingDims,
		MaxRetries: 3,
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = 384
	}
	switch p.AIEmbeddingProvider {
	case "openai":
		cfg.Embedding.APIKey = p.AIOpenAIAPIKey
		cfg.Embedding.BaseURL = p.AIOpenAIBaseURL
	case "ollama":
		cfg.Embedding.BaseURL = p.AIOllamaBaseURL
	}

	cfg.Reranker = RerankerConfig{
		Enabled: p.IsRerankEnabled(),
		Model:   p.AIRerankModel,
		APIKey:  p.AIRerankAPIKey,
		BaseURL: p.AIRerankBaseURL,
	}

	cfg.LLM = LLMConfig{
		Provider:    p.AILLMProvider,
		Model:       p.AILLMModel,
		Temperature: 0.7,
	}
	switch p.AILLMProvider {
	case "openai":
		cfg.LLM.APIKey = p.AIOpenAIAPIKey
		cfg.LLM.BaseURL = p.AIOpenAIBaseURL
	case "ollama":
		cfg.LLM.BaseURL = p.AIOllamaBaseURL
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	if c.Reranker.Enabled && c.Reranker.Model == "" {
		return errors.New("reranker model is required")
	}
	return nil
}
