package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/saga/internal/errors"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestRecencyMonotonic(t *testing.T) {
	ages := []time.Duration{0, 24 * time.Hour, 72 * time.Hour, 365 * 24 * time.Hour, 20 * 365 * 24 * time.Hour}
	prev := 2.0
	for _, age := range ages {
		score := Recency(now.Add(-age), now)
		assert.Less(t, score, prev, "age %s", age)
		assert.Greater(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
		prev = score
	}
}

func TestRecencyValues(t *testing.T) {
	assert.Equal(t, 1.0, Recency(now, now))
	assert.Equal(t, 1.0, Recency(now.Add(-11*time.Hour), now))
	assert.InDelta(t, 0.5, Recency(now.Add(-24*time.Hour), now), 1e-12)
	assert.InDelta(t, 0.25, Recency(now.Add(-72*time.Hour), now), 1e-12)
	// Future dates clamp to age zero.
	assert.Equal(t, 1.0, Recency(now.Add(48*time.Hour), now))
}

func TestRecencySameDay(t *testing.T) {
	lateEvening := time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC)
	for _, value := range []string{"2024-06-15", "2024-06-15T07:30:00Z", "2024-06-15T00:00:00"} {
		score, err := RecencyScore(value, lateEvening)
		require.NoError(t, err)
		assert.Equal(t, 1.0, score, value)
	}

	score, err := RecencyScore("2024-06-14T23:59:59Z", lateEvening)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-12)
}

func TestRecencyScoreFormats(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"2024-06-14T12:00:00Z", 0.5},
		{"2024-06-14T14:00:00+02:00", 0.5},
		{"2024-06-14T12:00:00.123456", 0.5},
		{"2024-06-14 12:00:00", 0.5},
		{"2024-06-13", 1.0 / 3},
		// Offsets are normalised to UTC before counting days.
		{"2024-06-15T01:00:00+03:00", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			score, err := RecencyScore(tt.value, now)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestRecencyScoreInvalid(t *testing.T) {
	for _, value := range []string{"", "yesterday", "2024-13-01", "15/06/2024"} {
		_, err := RecencyScore(value, now)
		require.Error(t, err, value)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTimestamp), value)
	}
}

func TestParseRecencyPolicy(t *testing.T) {
	assert.Equal(t, RecencyExclude, ParseRecencyPolicy("exclude"))
	assert.Equal(t, RecencyExclude, ParseRecencyPolicy(" EXCLUDE "))
	assert.Equal(t, RecencyNeutral, ParseRecencyPolicy("neutral"))
	assert.Equal(t, RecencyNeutral, ParseRecencyPolicy(""))
}
