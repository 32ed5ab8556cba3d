package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/server/service/journal"
	"github.com/hrygo/saga/store"
)

// Entry is the JSON form of a journal entry.
type Entry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Date         string `json:"date"`
	Summary      string `json:"summary"`
	Eligible     bool   `json:"eligible"`
	HasEmbedding bool   `json:"has_embedding"`
	CreatedTs    int64  `json:"created_ts"`
	UpdatedTs    int64  `json:"updated_ts"`
}

type CreateEntryRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Date     string `json:"date"`
	Eligible *bool  `json:"eligible"`
}

type UpdateEntryRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Date     *string `json:"date"`
	Eligible *bool   `json:"eligible"`
}

type EntryResponse struct {
	Message string `json:"message"`
	Entry   *Entry `json:"entry"`
}

type ListEntriesResponse struct {
	Entries []*Entry `json:"entries"`
}

func convertEntryFromStore(entry *store.Entry) *Entry {
	return &Entry{
		ID:           entry.ID,
		Title:        entry.Title,
		Content:      entry.Content,
		Date:         entry.Date,
		Summary:      entry.Summary,
		Eligible:     entry.Eligible,
		HasEmbedding: entry.HasEmbedding(),
		CreatedTs:    entry.CreatedTs,
		UpdatedTs:    entry.UpdatedTs,
	}
}

// CreateEntry stores a new entry with a generated summary.
// POST /journal/
func (s *APIV1Service) CreateEntry(c echo.Context) error {
	var req CreateEntryRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, apperrors.InvalidArgument("malformed request body"))
	}
	entry, err := s.Entries.Create(c.Request().Context(), &journal.CreateEntry{
		Title:    req.Title,
		Content:  req.Content,
		Date:     req.Date,
		Eligible: req.Eligible,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, &EntryResponse{Message: "Entry added with summary", Entry: convertEntryFromStore(entry)})
}

// ListEntries lists entries newest first.
// GET /journal/?filter=<cel>&limit=<n>&offset=<n>
func (s *APIV1Service) ListEntries(c echo.Context) error {
	limit, err := intQueryParam(c, "limit")
	if err != nil {
		return errorResponse(c, err)
	}
	offset, err := intQueryParam(c, "offset")
	if err != nil {
		return errorResponse(c, err)
	}
	entries, err := s.Entries.List(c.Request().Context(), c.QueryParam("filter"), limit, offset)
	if err != nil {
		return errorResponse(c, err)
	}
	response := &ListEntriesResponse{Entries: make([]*Entry, 0, len(entries))}
	for _, entry := range entries {
		response.Entries = append(response.Entries, convertEntryFromStore(entry))
	}
	return c.JSON(http.StatusOK, response)
}

// GetEntry returns one entry.
// GET /journal/:id
func (s *APIV1Service) GetEntry(c echo.Context) error {
	entry, err := s.Entries.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, &EntryResponse{Entry: convertEntryFromStore(entry)})
}

// UpdateEntry patches an entry.
// PUT /journal/:id
func (s *APIV1Service) UpdateEntry(c echo.Context) error {
	var req UpdateEntryRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, apperrors.InvalidArgument("malformed request body"))
	}
	id := c.Param("id")
	entry, err := s.Entries.Update(c.Request().Context(), id, &journal.UpdateEntry{
		Title:    req.Title,
		Content:  req.Content,
		Date:     req.Date,
		Eligible: req.Eligible,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, &EntryResponse{
		Message: "Entry with id " + id + " updated successfully",
		Entry:   convertEntryFromStore(entry),
	})
}

// DeleteEntry removes an entry.
// DELETE /journal/:id
func (s *APIV1Service) DeleteEntry(c echo.Context) error {
	id := c.Param("id")
	if err := s.Entries.Delete(c.Request().Context(), id); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Entry with id " + id + " deleted successfully"})
}

func intQueryParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.InvalidArgument("invalid " + name)
	}
	return v, nil
}
