package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/plugin/ai/timeout"
)

// LLMService is the text generation collaborator.
type LLMService interface {
	// Complete returns the model's reply to a system and user message pair.
	// Failures are reported as GenerationError.
	Complete(ctx context.Context, systemMessage, userMessage string, maxTokens int) (string, error)
}

type llmService struct {
	client      *openai.Client
	model       string
	temperature float32
	breaker     *gobreaker.CircuitBreaker
}

// NewLLMService creates a new LLMService.
func NewLLMService(cfg *LLMConfig) (LLMService, error) {
	var clientConfig openai.ClientConfig

	switch cfg.Provider {
	case "openai":
		clientConfig = openai.DefaultConfig(cfg.APIKey)
	case "ollama":
		clientConfig = openai.DefaultConfig("ollama")
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout.GenerationTimeout}

	// Stop hammering a backend that keeps failing; callers fall back instantly while open.
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &llmService{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		breaker:     breaker,
	}, nil
}

func (s *llmService) Complete(ctx context.Context, systemMessage, userMessage string, maxTokens int) (string, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
				{Role: openai.ChatMessageRoleUser, Content: userMessage},
			},
			MaxTokens:   maxTokens,
			Temperature: s.temperature,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("empty response")
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return nil, fmt.Errorf("empty completion")
		}
		return content, nil
	})
	if err != nil {
		return "", apperrors.Generation("text generation failed", err)
	}
	return result.(string), nil
}
