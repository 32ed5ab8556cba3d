package rank

import (
	"strings"
	"time"

	apperrors "github.com/hrygo/saga/internal/errors"
)

// NeutralRecency is the score given to undated candidates under RecencyNeutral.
const NeutralRecency = 0.5

// RecencyPolicy decides what happens to a candidate whose date cannot be parsed.
type RecencyPolicy string

const (
	// RecencyNeutral scores the candidate at NeutralRecency.
	RecencyNeutral RecencyPolicy = "neutral"
	// RecencyExclude drops the candidate from the pool.
	RecencyExclude RecencyPolicy = "exclude"
)

// ParseRecencyPolicy maps a config string to a policy, defaulting to neutral.
func ParseRecencyPolicy(s string) RecencyPolicy {
	if RecencyPolicy(strings.ToLower(strings.TrimSpace(s))) == RecencyExclude {
		return RecencyExclude
	}
	return RecencyNeutral
}

// Accepted date layouts. Values without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 entry date.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperrors.InvalidTimestamp(value, nil)
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, apperrors.InvalidTimestamp(value, lastErr)
}

// Recency returns 1 / (1 + days) where days is the number of UTC calendar days
// between t and now. Same-day and future timestamps score 1.
func Recency(t, now time.Time) float64 {
	days := calendarDays(t, now)
	if days < 0 {
		days = 0
	}
	return 1 / (1 + float64(days))
}

func calendarDays(t, now time.Time) int {
	ty, tm, td := t.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	from := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	to := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// RecencyScore parses value and scores it against now.
func RecencyScore(value string, now time.Time) (float64, error) {
	t, err := ParseTimestamp(value)
	if err != nil {
		return 0, err
	}
	return Recency(t, now), nil
}
