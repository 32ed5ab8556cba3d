package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/saga/internal/errors"
)

func TestEntryFilter(t *testing.T) {
	entry := &Entry{
		ID:        "e1",
		Title:     "Morning run",
		Content:   "Ran by the river.",
		Summary:   "You ran by the river.",
		Date:      "2024-05-02T07:00:00Z",
		Eligible:  true,
		Embedding: []byte{1},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`eligible`, true},
		{`!has_embedding`, false},
		{`title.contains("run")`, true},
		{`date >= "2024-05-01" && date < "2024-06-01"`, true},
		{`summary.startsWith("You") && id == "e2"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			filter, err := NewEntryFilter(tt.expr)
			require.NoError(t, err)
			got, err := filter.Match(entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntryFilterRejectsInvalid(t *testing.T) {
	_, err := NewEntryFilter(`title`)
	assert.Error(t, err, "non-boolean expression")

	_, err = NewEntryFilter(`unknown_field == 1`)
	assert.Error(t, err)
}

func TestEntryFilterEvaluationError(t *testing.T) {
	filter, err := NewEntryFilter(`int(title) > 0`)
	require.NoError(t, err)

	_, err = filter.Match(&Entry{ID: "e1", Title: "Morning run"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

func TestShouldApplyMigration(t *testing.T) {
	assert.True(t, shouldApplyMigration("0.3.1", "", "0.3.1"))
	assert.True(t, shouldApplyMigration("0.3.1", "0.3.0", "0.3.1"))
	assert.False(t, shouldApplyMigration("0.3.1", "0.3.1", "0.3.1"))
	assert.False(t, shouldApplyMigration("0.3.2", "0.3.0", "0.3.1"))
}

func TestValidateMigrationFileName(t *testing.T) {
	assert.NoError(t, validateMigrationFileName("00__entry_date_index.sql"))
	assert.Error(t, validateMigrationFileName("entry_date_index.sql"))
	assert.Error(t, validateMigrationFileName("xx__entry.sql"))
}
