package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/saga/internal/profile"
	"github.com/hrygo/saga/plugin/ai"
	"github.com/hrygo/saga/plugin/ai/codec"
	"github.com/hrygo/saga/plugin/ai/rank"
	"github.com/hrygo/saga/internal/observability"
	sagamiddleware "github.com/hrygo/saga/server/middleware"
	"github.com/hrygo/saga/server/retrieval"
	apiv1 "github.com/hrygo/saga/server/router/api/v1"
	"github.com/hrygo/saga/server/runner/embedding"
	"github.com/hrygo/saga/server/service/journal"
	"github.com/hrygo/saga/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer   *echo.Echo
	listener     net.Listener
	rateLimiter  *sagamiddleware.RateLimiter
	backfill     *embedding.Runner
	runnerCancel context.CancelFunc
}

// Services bundles the domain services built from a profile.
type Services struct {
	Entries   *journal.EntryService
	Prompts   *journal.PromptService
	Retriever *retrieval.Retriever
	Metrics   *observability.Metrics
}

// NewServices wires the model collaborators configured in profile. With AI
// disabled entries are stored without summaries and prompts come from the fallback set.
func NewServices(profile *profile.Profile, store *store.Store, metrics *observability.Metrics) (*Services, error) {
	var (
		llm       ai.LLMService
		encoder   *codec.Encoder
		retriever *retrieval.Retriever
	)
	if profile.IsAIEnabled() {
		aiConfig := ai.NewConfigFromProfile(profile)
		if err := aiConfig.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid AI configuration")
		}
		embeddingService, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create embedding service")
		}
		llm, err = ai.NewLLMService(&aiConfig.LLM)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create LLM service")
		}
		encoder = codec.NewEncoder(embeddingService)
		retriever = retrieval.NewRetriever(store, encoder,
			retrieval.WithReranker(ai.NewRerankerService(&aiConfig.Reranker)),
			retrieval.WithMetrics(metrics),
		)
	} else {
		slog.Warn("AI is disabled, summaries and retrieval are unavailable")
	}

	return &Services{
		Entries:   journal.NewEntryService(store, llm, encoder),
		Retriever: retriever,
		Metrics:   metrics,
		Prompts: journal.NewPromptService(store, retriever, llm, metrics, journal.RetrievalDefaults{
			K:             profile.RetrievalK,
			Alpha:         profile.RetrievalAlpha,
			RecencyPolicy: rank.ParseRecencyPolicy(profile.RetrievalRecencyPolicy),
			Rerank:        profile.IsRerankEnabled(),
		}),
	}, nil
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	metrics := observability.NewMetrics()
	services, err := NewServices(profile, store, metrics)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Profile:     profile,
		Store:       store,
		rateLimiter: sagamiddleware.NewRateLimiter(10, 20),
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.BodyLimit("1M"))
	s.echoServer = echoServer

	apiv1.NewAPIV1Service(profile, store, services.Entries, services.Prompts, metrics).
		RegisterRoutes(echoServer, s.rateLimiter.Middleware())

	if profile.IsAIEnabled() {
		s.backfill = embedding.NewRunner(store, services.Entries, metrics)
	}
	return s, nil
}

// Handler exposes the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.listener = listener

	runnerCtx, cancel := context.WithCancel(ctx)
	s.runnerCancel = cancel
	if s.backfill != nil {
		go func() {
			if err := s.backfill.Run(runnerCtx); err != nil {
				slog.Error("embedding backfill runner failed", "error", err)
			}
		}()
	}
	go s.evictIdleLimiters(runnerCtx)

	s.echoServer.Listener = listener
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	if s.runnerCancel != nil {
		s.runnerCancel()
	}
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown echo server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("server stopped properly")
}

func (s *Server) evictIdleLimiters(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.rateLimiter.Evict(30 * time.Minute); n > 0 {
				slog.Debug("evicted idle rate limiters", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
