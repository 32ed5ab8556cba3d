package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/saga/plugin/ai/rank"
	"github.com/hrygo/saga/server/service/journal"
	"github.com/hrygo/saga/store"
)

const maxFeedItems = 50

// GetFeed serves the newest eligible entries as an Atom feed.
// GET /journal/feed.atom
func (s *APIV1Service) GetFeed(c echo.Context) error {
	ctx := c.Request().Context()
	eligible, limit := true, maxFeedItems
	entries, err := s.Store.ListEntries(ctx, &store.FindEntry{Eligible: &eligible, Limit: &limit})
	if err != nil {
		return errorResponse(c, err)
	}

	baseURL := strings.TrimSuffix(s.Profile.InstanceURL, "/")
	if baseURL == "" {
		baseURL = c.Scheme() + "://" + c.Request().Host
	}
	atom, err := generateAtomFeed(baseURL, entries)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}

func generateAtomFeed(baseURL string, entries []*store.Entry) (string, error) {
	feed := &feeds.Feed{
		Title:       "Saga journal",
		Id:          baseURL + "/journal/",
		Link:        &feeds.Link{Href: baseURL + "/journal/"},
		Description: "Recent journal entries",
	}
	for _, entry := range entries {
		created := time.Unix(entry.CreatedTs, 0).UTC()
		if t, err := rank.ParseTimestamp(entry.Date); err == nil {
			created = t
		}
		if created.After(feed.Updated) {
			feed.Updated = created
		}
		title := entry.Title
		if title == "" {
			title = created.Format("January 2, 2006")
		}
		description := entry.Summary
		if description == "" || description == store.SummaryFailedMarker {
			description = firstLine(journal.PlainText(entry.Content))
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          "urn:uuid:" + entry.ID,
			Title:       title,
			Link:        &feeds.Link{Href: baseURL + "/journal/" + entry.ID},
			Description: description,
			Content:     entry.Content,
			Created:     created,
			Updated:     time.Unix(entry.UpdatedTs, 0).UTC(),
		})
	}
	atom, err := feed.ToAtom()
	if err != nil {
		return "", errors.Wrap(err, "failed to render atom feed")
	}
	return atom, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
