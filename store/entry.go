package store

import (
	"context"

	"github.com/pkg/errors"

	apperrors "github.com/hrygo/saga/internal/errors"
)

// SummaryFailedMarker is stored as the summary when generation failed.
// Entries carrying it have no embedding and are picked up by the backfill runner.
const SummaryFailedMarker = "Could not generate summary."

// ErrVectorSearchUnsupported is returned by drivers without a vector index.
var ErrVectorSearchUnsupported = errors.New("vector search is not supported by this driver")

// Entry is a journal entry.
type Entry struct {
	ID      string
	Title   string
	Content string
	// Date is an ISO-8601 timestamp used for recency scoring.
	Date    string
	Summary string
	// Embedding is the encoded summary vector blob, nil when absent.
	Embedding []byte
	Eligible  bool

	CreatedTs int64
	UpdatedTs int64

	// EmbeddingVector mirrors Embedding for drivers with a native vector column.
	// It is write-only and never populated on reads.
	EmbeddingVector []float32
}

// HasEmbedding reports whether the entry carries a stored embedding.
func (e *Entry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// FindEntry is the find condition for entries.
type FindEntry struct {
	ID           *string
	IDList       []string
	Eligible     *bool
	HasEmbedding *bool
	// NeedsBackfill matches entries whose summary is missing or failed, or whose embedding is absent.
	NeedsBackfill bool

	// Filter is a CEL expression evaluated against each row, e.g. `eligible && date >= "2024-01-01"`.
	Filter string

	// OrderByDateAsc sorts oldest first. Default is newest first.
	OrderByDateAsc bool
	Limit          *int
	Offset         *int
}

// UpdateEntry is the update payload; nil fields are left unchanged.
type UpdateEntry struct {
	ID        string
	UpdatedTs *int64
	Title     *string
	Content   *string
	Date      *string
	Summary   *string
	Eligible  *bool
	// Embedding replaces the stored blob. An empty slice clears it.
	Embedding *[]byte
	// EmbeddingVector mirrors Embedding for drivers with a native vector column.
	EmbeddingVector []float32
}

type DeleteEntry struct {
	ID string
}

// VectorSearchOptions narrows the candidate pool server-side.
type VectorSearchOptions struct {
	Vector []float32
	Limit  int
}

func (s *Store) CreateEntry(ctx context.Context, create *Entry) (*Entry, error) {
	return s.driver.CreateEntry(ctx, create)
}

// ListEntries lists entries, applying the CEL filter when one is set.
func (s *Store) ListEntries(ctx context.Context, find *FindEntry) ([]*Entry, error) {
	if find.Filter == "" {
		return s.driver.ListEntries(ctx, find)
	}

	matcher, err := NewEntryFilter(find.Filter)
	if err != nil {
		return nil, err
	}
	// Paging must apply after the filter.
	driverFind := *find
	driverFind.Limit, driverFind.Offset = nil, nil
	list, err := s.driver.ListEntries(ctx, &driverFind)
	if err != nil {
		return nil, err
	}

	filtered := make([]*Entry, 0, len(list))
	for _, entry := range list {
		ok, err := matcher.Match(entry)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, entry)
		}
	}
	if find.Offset != nil {
		if *find.Offset >= len(filtered) {
			return []*Entry{}, nil
		}
		filtered = filtered[*find.Offset:]
	}
	if find.Limit != nil && *find.Limit < len(filtered) {
		filtered = filtered[:*find.Limit]
	}
	return filtered, nil
}

func (s *Store) GetEntry(ctx context.Context, find *FindEntry) (*Entry, error) {
	list, err := s.ListEntries(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// GetEntryByID returns the entry or a NotFound error.
func (s *Store) GetEntryByID(ctx context.Context, id string) (*Entry, error) {
	entry, err := s.GetEntry(ctx, &FindEntry{ID: &id})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperrors.NotFound(id)
	}
	return entry, nil
}

// UpdateEntry fails with a NotFound error when the id is unknown.
func (s *Store) UpdateEntry(ctx context.Context, update *UpdateEntry) error {
	return s.driver.UpdateEntry(ctx, update)
}

// DeleteEntry fails with a NotFound error when the id is unknown.
func (s *Store) DeleteEntry(ctx context.Context, delete *DeleteEntry) error {
	return s.driver.DeleteEntry(ctx, delete)
}

// SearchEntriesByVector returns ErrVectorSearchUnsupported when the driver has no vector index.
func (s *Store) SearchEntriesByVector(ctx context.Context, opts *VectorSearchOptions) ([]*Entry, error) {
	return s.driver.SearchEntriesByVector(ctx, opts)
}
