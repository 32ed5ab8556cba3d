package journal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/saga/plugin/ai"
	"github.com/hrygo/saga/plugin/ai/rank"
	"github.com/hrygo/saga/internal/observability"
	"github.com/hrygo/saga/server/retrieval"
	"github.com/hrygo/saga/store"
)

const promptMaxTokens = 100

// RetrievalDefaults apply when a prompt request leaves a retrieval knob unset.
type RetrievalDefaults struct {
	K             int
	Alpha         float64
	RecencyPolicy rank.RecencyPolicy
	Rerank        bool
}

// PromptService generates writing prompts grounded in the writer's past entries.
type PromptService struct {
	store     *store.Store
	retriever *retrieval.Retriever
	llm       ai.LLMService
	metrics   *observability.Metrics
	defaults  RetrievalDefaults
	now       func() time.Time
}

func NewPromptService(store *store.Store, retriever *retrieval.Retriever, llm ai.LLMService, metrics *observability.Metrics, defaults RetrievalDefaults) *PromptService {
	if defaults.K <= 0 {
		defaults.K = retrieval.DefaultK
	}
	return &PromptService{
		store:     store,
		retriever: retriever,
		llm:       llm,
		metrics:   metrics,
		defaults:  defaults,
		now:       time.Now,
	}
}

type GeneratePrompt struct {
	PromptType PromptType
	// Query drives retrieval. Empty means the summary of the most recent eligible entry.
	Query string
	// RecentEntries is caller-supplied context. When set, retrieval is skipped.
	RecentEntries string
	K             int
	Alpha         *float64
	Rerank        *bool
}

type GeneratedPrompt struct {
	Prompt     string
	PromptType PromptType
	// EntryIDs are the retrieved entries the prompt was grounded in, best first.
	EntryIDs []string
	// Fallback is set when the prompt is a canned one because generation failed.
	Fallback bool
	// ContextDegraded is set when retrieval failed and the prompt was generated without context.
	ContextDegraded bool
}

// Generate never fails because of a backend: retrieval failures degrade to no
// context and generation failures degrade to a canned prompt of the same type.
func (s *PromptService) Generate(ctx context.Context, req *GeneratePrompt) (*GeneratedPrompt, error) {
	reqCtx := observability.FromContextOrNew(ctx, "generate_prompt")
	promptType := req.PromptType
	if promptType == "" {
		promptType = PromptTypeGeneric
	}
	result := &GeneratedPrompt{PromptType: promptType, EntryIDs: []string{}}

	var contextEntries []string
	if strings.TrimSpace(req.RecentEntries) != "" {
		contextEntries = []string{strings.TrimSpace(req.RecentEntries)}
	} else {
		results, err := s.retrieve(ctx, req)
		if err != nil {
			reqCtx.Warn("retrieval failed, generating without context", slog.String("error", err.Error()))
			result.ContextDegraded = true
		}
		for _, r := range results {
			contextEntries = append(contextEntries, r.Content)
			result.EntryIDs = append(result.EntryIDs, r.EntryID)
		}
	}

	userMessage := bareUserMessage
	if len(contextEntries) > 0 {
		userMessage = contextualUserMessage + "\n\nRecent Entries:\n" + strings.Join(contextEntries, "\n---\n")
	}

	prompt, err := s.complete(ctx, systemMessage(promptType), userMessage)
	if err != nil {
		reqCtx.Warn("prompt generation failed, using fallback",
			slog.String("prompt_type", string(promptType)),
			slog.String("error", err.Error()))
		s.metrics.RecordGenerationFallback(string(promptType))
		result.Prompt = fallbackPrompt(promptType, s.now().YearDay())
		result.Fallback = true
		return result, nil
	}
	result.Prompt = prompt
	reqCtx.Info("prompt generated",
		slog.String("prompt_type", string(promptType)),
		slog.Int("context_entries", len(contextEntries)),
		slog.Int64(observability.LogFieldDuration, reqCtx.Duration().Milliseconds()))
	return result, nil
}

func (s *PromptService) retrieve(ctx context.Context, req *GeneratePrompt) ([]*retrieval.Result, error) {
	if s.retriever == nil {
		return nil, nil
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		latest, err := s.latestQuery(ctx)
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, nil
		}
		query = latest
	}

	opts := &retrieval.RetrieveOptions{
		Query:         query,
		K:             s.defaults.K,
		Rerank:        s.defaults.Rerank,
		RecencyPolicy: s.defaults.RecencyPolicy,
	}
	alpha := s.defaults.Alpha
	if req.K > 0 {
		opts.K = req.K
	}
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	opts.Alpha = &alpha
	if req.Rerank != nil {
		opts.Rerank = *req.Rerank
	}
	return s.retriever.Retrieve(ctx, opts)
}

// latestQuery returns the summary, or failing that the content, of the newest eligible entry.
func (s *PromptService) latestQuery(ctx context.Context) (string, error) {
	eligible, limit := true, 1
	latest, err := s.store.GetEntry(ctx, &store.FindEntry{Eligible: &eligible, Limit: &limit})
	if err != nil || latest == nil {
		return "", err
	}
	if latest.Summary != "" && latest.Summary != store.SummaryFailedMarker {
		return latest.Summary, nil
	}
	query := PlainText(latest.Content)
	if len(query) > retrieval.MaxQueryLength {
		query = strings.ToValidUTF8(query[:retrieval.MaxQueryLength], "")
	}
	return query, nil
}

func (s *PromptService) complete(ctx context.Context, system, user string) (string, error) {
	if s.llm == nil {
		return "", errNoGenerator
	}
	prompt, err := s.llm.Complete(ctx, system, user, promptMaxTokens)
	if err != nil {
		return "", err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errEmptyPrompt
	}
	return prompt, nil
}
