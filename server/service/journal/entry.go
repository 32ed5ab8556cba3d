// Package journal implements the entry lifecycle and writing prompt generation.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/plugin/ai"
	"github.com/hrygo/saga/plugin/ai/codec"
	"github.com/hrygo/saga/plugin/ai/rank"
	"github.com/hrygo/saga/store"
)

const (
	summaryMaxTokens     = 60
	summarySystemMessage = "You condense journal entries into a single sentence."
	summaryUserTemplate  = "Summarise this journal entry in one short sentence, written in the second person and the past tense: %q"
)

// EntryService derives summaries and embeddings as entries are written.
type EntryService struct {
	store   *store.Store
	llm     ai.LLMService
	encoder *codec.Encoder
	now     func() time.Time
}

// NewEntryService creates an EntryService. A nil llm stores the failure marker
// as summary and a nil encoder stores no embeddings; the backfill runner fills both in later.
func NewEntryService(store *store.Store, llm ai.LLMService, encoder *codec.Encoder) *EntryService {
	return &EntryService{
		store:   store,
		llm:     llm,
		encoder: encoder,
		now:     time.Now,
	}
}

type CreateEntry struct {
	Title   string
	Content string
	// Date is an ISO-8601 timestamp. Empty means now.
	Date string
	// Eligible defaults to true.
	Eligible *bool
}

type UpdateEntry struct {
	Title    *string
	Content  *string
	Date     *string
	Eligible *bool
}

func (s *EntryService) Create(ctx context.Context, create *CreateEntry) (*store.Entry, error) {
	if strings.TrimSpace(create.Content) == "" {
		return nil, apperrors.InvalidArgument("content is required")
	}
	date := create.Date
	if date == "" {
		date = s.now().UTC().Format(time.RFC3339)
	} else if _, err := rank.ParseTimestamp(date); err != nil {
		return nil, err
	}
	eligible := true
	if create.Eligible != nil {
		eligible = *create.Eligible
	}

	entry := &store.Entry{
		ID:       uuid.New().String(),
		Title:    create.Title,
		Content:  create.Content,
		Date:     date,
		Eligible: eligible,
	}
	entry.Summary = s.summarize(ctx, entry.ID, entry.Content)
	entry.Embedding, entry.EmbeddingVector = s.embed(ctx, entry.ID, entry.Summary)

	created, err := s.store.CreateEntry(ctx, entry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create entry")
	}
	return created, nil
}

// Update applies the non-nil fields. The summary is regenerated only when the
// content changed, and the embedding only when the summary changed.
func (s *EntryService) Update(ctx context.Context, id string, update *UpdateEntry) (*store.Entry, error) {
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		return nil, apperrors.InvalidArgument("content must not be empty")
	}
	if update.Date != nil {
		if _, err := rank.ParseTimestamp(*update.Date); err != nil {
			return nil, err
		}
	}

	var updated *store.Entry
	err := s.store.WithEntryLock(ctx, id, func(ctx context.Context) error {
		existing, err := s.store.GetEntryByID(ctx, id)
		if err != nil {
			return err
		}

		updatedTs := s.now().Unix()
		patch := &store.UpdateEntry{
			ID:        id,
			UpdatedTs: &updatedTs,
			Title:     update.Title,
			Date:      update.Date,
			Eligible:  update.Eligible,
		}
		if update.Content != nil && *update.Content != existing.Content {
			patch.Content = update.Content
			summary := s.summarize(ctx, id, *update.Content)
			if summary != existing.Summary {
				patch.Summary = &summary
				blob, vector := s.embed(ctx, id, summary)
				if blob == nil {
					blob = []byte{}
				}
				patch.Embedding = &blob
				patch.EmbeddingVector = vector
			}
		}
		if err := s.store.UpdateEntry(ctx, patch); err != nil {
			return err
		}
		updated, err = s.store.GetEntryByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *EntryService) Get(ctx context.Context, id string) (*store.Entry, error) {
	return s.store.GetEntryByID(ctx, id)
}

// List returns entries newest first. filter is an optional CEL expression.
func (s *EntryService) List(ctx context.Context, filter string, limit, offset int) ([]*store.Entry, error) {
	find := &store.FindEntry{Filter: filter}
	if limit > 0 {
		find.Limit = &limit
	}
	if offset > 0 {
		find.Offset = &offset
	}
	return s.store.ListEntries(ctx, find)
}

func (s *EntryService) Delete(ctx context.Context, id string) error {
	return s.store.WithEntryLock(ctx, id, func(ctx context.Context) error {
		return s.store.DeleteEntry(ctx, &store.DeleteEntry{ID: id})
	})
}

// Refresh regenerates a missing or failed summary and a missing embedding.
// It reports whether the entry still needs work afterwards.
func (s *EntryService) Refresh(ctx context.Context, id string) (bool, error) {
	pending := false
	err := s.store.WithEntryLock(ctx, id, func(ctx context.Context) error {
		entry, err := s.store.GetEntryByID(ctx, id)
		if err != nil {
			return err
		}

		patch := &store.UpdateEntry{ID: id}
		summary := entry.Summary
		if summary == "" || summary == store.SummaryFailedMarker {
			summary = s.summarize(ctx, id, entry.Content)
			if summary != entry.Summary {
				patch.Summary = &summary
			}
		}
		if summary != store.SummaryFailedMarker && (!entry.HasEmbedding() || patch.Summary != nil) {
			blob, vector := s.embed(ctx, id, summary)
			if blob == nil {
				// Clears an embedding left over from the previous summary.
				blob = []byte{}
			}
			patch.Embedding = &blob
			patch.EmbeddingVector = vector
		}
		pending = summary == store.SummaryFailedMarker || (patch.Embedding != nil && len(*patch.Embedding) == 0)
		if patch.Summary == nil && patch.Embedding == nil {
			return nil
		}
		return s.store.UpdateEntry(ctx, patch)
	})
	return pending, err
}

// summarize returns the failure marker when no summary can be produced.
func (s *EntryService) summarize(ctx context.Context, id, content string) string {
	if s.llm == nil {
		return store.SummaryFailedMarker
	}
	plain := PlainText(content)
	if plain == "" {
		return store.SummaryFailedMarker
	}
	summary, err := s.llm.Complete(ctx, summarySystemMessage, fmt.Sprintf(summaryUserTemplate, plain), summaryMaxTokens)
	if err != nil {
		slog.Warn("failed to generate summary", slog.String("entry_id", id), slog.String("error", err.Error()))
		return store.SummaryFailedMarker
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return store.SummaryFailedMarker
	}
	return summary
}

// embed encodes the summary. It returns nil when there is nothing to store.
func (s *EntryService) embed(ctx context.Context, id, summary string) ([]byte, []float32) {
	if s.encoder == nil || summary == "" || summary == store.SummaryFailedMarker {
		return nil, nil
	}
	vector, err := s.encoder.Encode(ctx, summary)
	if err != nil {
		slog.Warn("failed to embed summary", slog.String("entry_id", id), slog.String("error", err.Error()))
		return nil, nil
	}
	return codec.ToBlob(vector), vector
}
