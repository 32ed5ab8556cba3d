// Package retrieval selects the past entries most relevant to a query.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/plugin/ai"
	"github.com/hrygo/saga/plugin/ai/codec"
	"github.com/hrygo/saga/plugin/ai/rank"
	"github.com/hrygo/saga/plugin/ai/timeout"
	"github.com/hrygo/saga/internal/observability"
	"github.com/hrygo/saga/store"
)

const (
	// DefaultK is the number of entries surfaced when the caller does not say.
	DefaultK = 5
	// MaxQueryLength bounds the query text sent to the embedding model.
	MaxQueryLength = 4000
)

// EntryReader is the part of the store the retriever reads from.
type EntryReader interface {
	ListEntries(ctx context.Context, find *store.FindEntry) ([]*store.Entry, error)
	SearchEntriesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.Entry, error)
}

// Retriever ranks eligible entries against a query by blended semantic and recency score.
// It holds no per-request state and is safe for concurrent use.
type Retriever struct {
	entries  EntryReader
	encoder  *codec.Encoder
	reranker ai.RerankerService
	metrics  *observability.Metrics
	now      func() time.Time
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithReranker enables the optional cross-encoder stage.
func WithReranker(reranker ai.RerankerService) Option {
	return func(r *Retriever) { r.reranker = reranker }
}

// WithMetrics records retrieval metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Retriever) { r.metrics = metrics }
}

// WithClock overrides the "now" used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) { r.now = now }
}

// NewRetriever creates a Retriever.
func NewRetriever(entries EntryReader, encoder *codec.Encoder, opts ...Option) *Retriever {
	r := &Retriever{
		entries: entries,
		encoder: encoder,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetrieveOptions describes one retrieval pass.
type RetrieveOptions struct {
	Query string
	// K is the number of entries to return. Zero means DefaultK.
	K int
	// Alpha weights semantic similarity against recency. Nil means rank.DefaultAlpha.
	Alpha *float64
	// Rerank runs the cross-encoder over the top K when one is configured.
	Rerank bool
	// RecencyPolicy decides the fate of candidates with unparsable dates.
	RecencyPolicy rank.RecencyPolicy
	// Preselect narrows the pool to the N nearest entries server-side when the driver supports it.
	Preselect int
	// Candidates is an explicit pool. Nil loads every eligible entry from the store.
	Candidates []*store.Entry

	RequestID string
	Logger    *slog.Logger
}

// Result is one retrieved entry, in ranked order.
type Result struct {
	EntryID string
	Title   string
	Content string
	Date    string
	Scores  rank.RankedCandidate
}

// Retrieve returns at most K entries ranked by hybrid score, best first.
// An empty eligible pool yields an empty result without touching the embedding model.
// A query encoding failure is returned to the caller; a malformed candidate blob only
// removes that candidate.
func (r *Retriever) Retrieve(ctx context.Context, opts *RetrieveOptions) ([]*Result, error) {
	if opts == nil {
		opts = &RetrieveOptions{}
	}
	if len(opts.Query) > MaxQueryLength {
		return nil, apperrors.InvalidArgument("query too long")
	}
	k := opts.K
	if k <= 0 {
		k = DefaultK
	}
	alpha := rank.DefaultAlpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}
	if alpha < 0 || alpha > 1 {
		return nil, apperrors.InvalidArgument("alpha must be within [0, 1]")
	}
	policy := opts.RecencyPolicy
	if policy == "" {
		policy = rank.RecencyNeutral
	}

	reqCtx := r.requestContext(ctx, opts)
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout.RetrievalTimeout)
		defer cancel()
	}
	defer func() { r.metrics.ObserveRetrieval(reqCtx.Duration()) }()

	pool, queryVector, err := r.loadPool(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		reqCtx.Debug("no eligible candidates")
		return []*Result{}, nil
	}
	if queryVector == nil {
		queryVector, err = r.encoder.Encode(ctx, opts.Query)
		if err != nil {
			reqCtx.Error("failed to encode query", err)
			return nil, errors.Wrap(err, "failed to encode query")
		}
	}

	now := r.now()
	candidates := make([]*store.Entry, 0, len(pool))
	vectors := make([][]float32, 0, len(pool))
	recency := make([]float64, 0, len(pool))
	for _, entry := range pool {
		vector, err := r.encoder.Decode(entry.Embedding)
		if err != nil {
			reqCtx.Warn("skipping candidate with malformed embedding",
				slog.String(observability.LogFieldEntryID, entry.ID),
				slog.String("error", err.Error()))
			r.metrics.RecordSkippedCandidate("decode")
			continue
		}
		score, err := rank.RecencyScore(entry.Date, now)
		if err != nil {
			if policy == rank.RecencyExclude {
				reqCtx.Warn("excluding candidate with invalid date",
					slog.String(observability.LogFieldEntryID, entry.ID),
					slog.String("date", entry.Date))
				r.metrics.RecordSkippedCandidate("timestamp")
				continue
			}
			reqCtx.Warn("invalid candidate date, using neutral recency",
				slog.String(observability.LogFieldEntryID, entry.ID),
				slog.String("date", entry.Date))
			score = rank.NeutralRecency
		}
		candidates = append(candidates, entry)
		vectors = append(vectors, vector)
		recency = append(recency, score)
	}
	if len(candidates) == 0 {
		return []*Result{}, nil
	}

	semantic := rank.ScoreAll(queryVector, vectors)
	hybrid, err := rank.Blend(semantic, recency, alpha)
	if err != nil {
		return nil, errors.Wrap(err, "failed to blend scores")
	}
	top := rank.TopK(hybrid, k)

	if opts.Rerank && r.reranker != nil && r.reranker.IsEnabled() {
		texts := make([]string, len(candidates))
		for i, entry := range candidates {
			texts[i] = entry.Content
		}
		reranked, err := rank.Rerank(ctx, r.reranker, opts.Query, top, texts)
		if err != nil {
			// The cross-encoder is optional; keep the hybrid order.
			reqCtx.Warn("rerank failed, keeping hybrid order", slog.String("error", err.Error()))
		} else {
			top = reranked
		}
	}

	results, err := r.resolve(ctx, opts.Candidates == nil, candidates, top, semantic, recency, hybrid)
	if err != nil {
		return nil, err
	}
	reqCtx.Info("retrieval completed",
		slog.Int("pool", len(pool)),
		slog.Int("scored", len(candidates)),
		slog.Int("returned", len(results)),
		slog.Int64(observability.LogFieldDuration, reqCtx.Duration().Milliseconds()))
	return results, nil
}

// RetrieveContents returns the content of the retrieved entries in ranked order.
func (r *Retriever) RetrieveContents(ctx context.Context, opts *RetrieveOptions) ([]string, error) {
	results, err := r.Retrieve(ctx, opts)
	if err != nil {
		return nil, err
	}
	contents := make([]string, len(results))
	for i, result := range results {
		contents[i] = result.Content
	}
	return contents, nil
}

// loadPool returns the eligible entries carrying an embedding. When the
// preselect path is taken the query vector is returned as well.
func (r *Retriever) loadPool(ctx context.Context, opts *RetrieveOptions) ([]*store.Entry, []float32, error) {
	if opts.Candidates != nil {
		return eligible(opts.Candidates), nil, nil
	}

	eligibleOnly, withEmbedding := true, true
	find := &store.FindEntry{Eligible: &eligibleOnly, HasEmbedding: &withEmbedding}
	if opts.Preselect <= 0 {
		pool, err := r.entries.ListEntries(ctx, find)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to list candidate entries")
		}
		return eligible(pool), nil, nil
	}

	limit := 1
	probe, err := r.entries.ListEntries(ctx, &store.FindEntry{Eligible: &eligibleOnly, HasEmbedding: &withEmbedding, Limit: &limit})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list candidate entries")
	}
	if len(probe) == 0 {
		return nil, nil, nil
	}

	queryVector, err := r.encoder.Encode(ctx, opts.Query)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encode query")
	}
	pool, err := r.entries.SearchEntriesByVector(ctx, &store.VectorSearchOptions{Vector: queryVector, Limit: opts.Preselect})
	if errors.Is(err, store.ErrVectorSearchUnsupported) {
		pool, err = r.entries.ListEntries(ctx, find)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load candidate entries")
	}
	return eligible(pool), queryVector, nil
}

// resolve maps ranked candidates back to their current stored content.
// When the pool came from the store, entries deleted or made ineligible since
// it was read are dropped. An explicit pool is returned as given.
func (r *Retriever) resolve(ctx context.Context, fromStore bool, candidates []*store.Entry, top []int, semantic, recency, hybrid []float64) ([]*Result, error) {
	ids := make([]string, len(top))
	for i, idx := range top {
		ids[i] = candidates[idx].ID
	}
	current := map[string]*store.Entry{}
	if fromStore && len(ids) > 0 {
		list, err := r.entries.ListEntries(ctx, &store.FindEntry{IDList: ids})
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve ranked entries")
		}
		for _, entry := range list {
			current[entry.ID] = entry
		}
	}

	results := make([]*Result, 0, len(top))
	for _, idx := range top {
		entry := candidates[idx]
		if fromStore {
			fresh, ok := current[entry.ID]
			if !ok || !fresh.Eligible {
				continue
			}
			entry = fresh
		}
		results = append(results, &Result{
			EntryID: entry.ID,
			Title:   entry.Title,
			Content: entry.Content,
			Date:    entry.Date,
			Scores: rank.RankedCandidate{
				EntryID:  entry.ID,
				Semantic: semantic[idx],
				Recency:  recency[idx],
				Hybrid:   hybrid[idx],
			},
		})
	}
	return results, nil
}

func (*Retriever) requestContext(ctx context.Context, opts *RetrieveOptions) *observability.RequestContext {
	if reqCtx, ok := observability.FromContext(ctx); ok && opts.RequestID == "" && opts.Logger == nil {
		return reqCtx
	}
	if opts.RequestID != "" {
		return observability.NewRequestContextWithID(opts.Logger, opts.RequestID, "retrieve")
	}
	return observability.NewRequestContext(opts.Logger, "retrieve")
}

func eligible(pool []*store.Entry) []*store.Entry {
	filtered := make([]*store.Entry, 0, len(pool))
	for _, entry := range pool {
		if entry != nil && entry.Eligible && entry.HasEmbedding() {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
