package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/saga/internal/errors"
)

func TestRerankerService_Disabled(t *testing.T) {
	svc := NewRerankerService(&RerankerConfig{Enabled: false})
	assert.False(t, svc.IsEnabled())

	results, err := svc.Rerank(context.Background(), "q", []string{"doc1", "doc2", "doc3"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestRerankerService_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req struct {
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
			TopN      int      `json:"top_n"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "garden", req.Query)
		assert.Len(t, req.Documents, 3)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 0, "relevance_score": 0.1},
				{"index": 2, "relevance_score": 0.9},
				{"index": 1, "relevance_score": 0.5},
				{"index": 7, "relevance_score": 1.0},
			},
		})
	}))
	defer srv.Close()

	svc := NewRerankerService(&RerankerConfig{Enabled: true, APIKey: "key", BaseURL: srv.URL + "/", Model: "m"})
	results, err := svc.Rerank(context.Background(), "garden", []string{"a", "b", "c"}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3, "out-of-range indices are dropped")
	assert.Equal(t, []int{2, 1, 0}, []int{results[0].Index, results[1].Index, results[2].Index})
}

func TestRerankerService_ErrorIsRerankError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := NewRerankerService(&RerankerConfig{Enabled: true, BaseURL: srv.URL, Model: "m"})
	_, err := svc.Rerank(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRerank))
}
