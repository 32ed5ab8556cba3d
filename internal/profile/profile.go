package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where saga stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the public url of the instance, used for feed links.
	InstanceURL string

	// AI Configuration
	AIEnabled           bool   // SAGA_AI_ENABLED
	AIEmbeddingProvider string // SAGA_AI_EMBEDDING_PROVIDER (default: ollama)
	AIEmbeddingModel    string // SAGA_AI_EMBEDDING_MODEL (default: all-minilm)
	AIEmbeddingDims     int    // SAGA_AI_EMBEDDING_DIMENSIONS (default: 384)
	AILLMProvider       string // SAGA_AI_LLM_PROVIDER (default: openai)
	AILLMModel          string // SAGA_AI_LLM_MODEL (default: gpt-3.5-turbo)
	AIOpenAIAPIKey      string // SAGA_AI_OPENAI_API_KEY
	AIOpenAIBaseURL     string // SAGA_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIOllamaBaseURL     string // SAGA_AI_OLLAMA_BASE_URL (default: http://localhost:11434/v1)
	AIRerankBaseURL     string // SAGA_AI_RERANK_BASE_URL (reranker disabled when empty)
	AIRerankAPIKey      string // SAGA_AI_RERANK_API_KEY
	AIRerankModel       string // SAGA_AI_RERANK_MODEL (default: cross-encoder/ms-marco-MiniLM-L-6-v2)

	// Retrieval defaults
	RetrievalK             int     // SAGA_RETRIEVAL_K (default: 5)
	RetrievalAlpha         float64 // SAGA_RETRIEVAL_ALPHA (default: 0.7)
	RetrievalRecencyPolicy string  // SAGA_RETRIEVAL_RECENCY_POLICY: neutral | exclude (default: neutral)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and a model endpoint is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIOpenAIAPIKey != "" || p.AIOllamaBaseURL != "")
}

// IsRerankEnabled returns true if a cross-encoder endpoint is configured.
func (p *Profile) IsRerankEnabled() bool {
	return p.AIRerankBaseURL != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring malformed integer env", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("ignoring malformed float env", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

// FromEnv loads AI and retrieval configuration from SAGA_* environment variables.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("SAGA_AI_ENABLED") == "true"
	p.AIEmbeddingProvider = getEnvOrDefault("SAGA_AI_EMBEDDING_PROVIDER", "ollama")
	p.AIEmbeddingModel = getEnvOrDefault("SAGA_AI_EMBEDDING_MODEL", "all-minilm")
	p.AIEmbeddingDims = getIntEnvOrDefault("SAGA_AI_EMBEDDING_DIMENSIONS", 384)
	p.AILLMProvider = getEnvOrDefault("SAGA_AI_LLM_PROVIDER", "openai")
	p.AILLMModel = getEnvOrDefault("SAGA_AI_LLM_MODEL", "gpt-3.5-turbo")
	p.AIOpenAIAPIKey = os.Getenv("SAGA_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("SAGA_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AIOllamaBaseURL = getEnvOrDefault("SAGA_AI_OLLAMA_BASE_URL", "http://localhost:11434/v1")
	p.AIRerankBaseURL = os.Getenv("SAGA_AI_RERANK_BASE_URL")
	p.AIRerankAPIKey = os.Getenv("SAGA_AI_RERANK_API_KEY")
	p.AIRerankModel = getEnvOrDefault("SAGA_AI_RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2")

	p.RetrievalK = getIntEnvOrDefault("SAGA_RETRIEVAL_K", 5)
	p.RetrievalAlpha = getFloatEnvOrDefault("SAGA_RETRIEVAL_ALPHA", 0.7)
	p.RetrievalRecencyPolicy = getEnvOrDefault("SAGA_RETRIEVAL_RECENCY_POLICY", "neutral")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "saga")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/saga"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("saga_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.RetrievalK <= 0 {
		p.RetrievalK = 5
	}
	if p.RetrievalAlpha < 0 || p.RetrievalAlpha > 1 {
		return errors.Errorf("retrieval alpha must be within [0, 1], got %v", p.RetrievalAlpha)
	}
	if p.RetrievalRecencyPolicy != "neutral" && p.RetrievalRecencyPolicy != "exclude" {
		return errors.Errorf("unknown recency policy %q", p.RetrievalRecencyPolicy)
	}

	return nil
}
