package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingServer serves /v1/embeddings, failing the first `failures` calls with status.
func newEmbeddingServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		n := calls.Add(1)
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := []map[string]any{}
		// Reverse order to check index mapping.
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "all-minilm"})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestEmbeddingService(t *testing.T, baseURL string, retries uint64) *embeddingService {
	t.Helper()
	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "ollama",
		Model:      "all-minilm",
		Dimensions: 2,
		BaseURL:    baseURL + "/v1",
		MaxRetries: retries,
	})
	require.NoError(t, err)
	s := svc.(*embeddingService)
	s.retryBackoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return s
}

func TestNewEmbeddingService(t *testing.T) {
	_, err := NewEmbeddingService(&EmbeddingConfig{Provider: "openai", APIKey: "k", Dimensions: 384})
	assert.NoError(t, err)
	_, err = NewEmbeddingService(&EmbeddingConfig{Provider: "ollama", Dimensions: 384})
	assert.NoError(t, err)
	_, err = NewEmbeddingService(&EmbeddingConfig{Provider: "unsupported"})
	assert.Error(t, err)
}

func TestEmbeddingService_EmbedBatch(t *testing.T) {
	srv, _ := newEmbeddingServer(t, 0, 0)
	svc := newTestEmbeddingService(t, srv.URL, 0)

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{1, 3}, vectors[1])
	assert.Equal(t, 2, svc.Dimensions())

	vector, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 5}, vector)
}

func TestEmbeddingService_RetriesServerErrors(t *testing.T) {
	srv, calls := newEmbeddingServer(t, 2, http.StatusServiceUnavailable)
	svc := newTestEmbeddingService(t, srv.URL, 3)

	_, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbeddingService_DoesNotRetryClientErrors(t *testing.T) {
	srv, calls := newEmbeddingServer(t, 5, http.StatusBadRequest)
	svc := newTestEmbeddingService(t, srv.URL, 3)

	_, err := svc.Embed(context.Background(), "hello")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbeddingService_EmptyInput(t *testing.T) {
	svc := newTestEmbeddingService(t, "http://127.0.0.1:1", 0)
	_, err := svc.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}
