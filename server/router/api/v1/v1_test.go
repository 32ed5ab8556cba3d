package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/internal/profile"
	"github.com/hrygo/saga/plugin/ai/codec"
	"github.com/hrygo/saga/internal/observability"
	"github.com/hrygo/saga/server/retrieval"
	"github.com/hrygo/saga/server/service/journal"
	"github.com/hrygo/saga/store"
	storetest "github.com/hrygo/saga/store/test"
)

// MockLLMService is a mock for LLMService
type MockLLMService struct {
	mock.Mock
}

func (m *MockLLMService) Complete(ctx context.Context, systemMessage, userMessage string, maxTokens int) (string, error) {
	args := m.Called(ctx, systemMessage, userMessage, maxTokens)
	return args.String(0), args.Error(1)
}

type constantEmbedder struct{}

func (constantEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (constantEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (constantEmbedder) Dimensions() int { return 4 }

type testServer struct {
	echo    *echo.Echo
	llm     *MockLLMService
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	s := storetest.NewTestingStore(ctx, t)
	llm := new(MockLLMService)
	encoder := codec.NewEncoder(constantEmbedder{}, codec.WithCacheTTL(0))
	metrics := observability.NewMetrics()

	entries := journal.NewEntryService(s, llm, encoder)
	retriever := retrieval.NewRetriever(s, encoder, retrieval.WithMetrics(metrics))
	prompts := journal.NewPromptService(s, retriever, llm, metrics, journal.RetrievalDefaults{Alpha: 0.7})

	e := echo.New()
	NewAPIV1Service(&profile.Profile{InstanceURL: "https://saga.example.com/"}, s, entries, prompts, metrics).RegisterRoutes(e)
	return &testServer{echo: e, llm: llm, metrics: metrics}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHome(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Journal API", decode[map[string]string](t, rec)["message"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDPropagates(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc123")
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	assert.Equal(t, "abc123", rec.Header().Get(requestIDHeader))
}

func TestJournalLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, 60).Return("You hiked.", nil)

	rec := ts.do(t, http.MethodPost, "/journal/", `{"title":"Hike","content":"Went up the hill.","date":"2024-04-02"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[EntryResponse](t, rec)
	assert.Equal(t, "Entry added with summary", created.Message)
	assert.Equal(t, "You hiked.", created.Entry.Summary)
	assert.True(t, created.Entry.HasEmbedding)
	assert.True(t, created.Entry.Eligible)
	id := created.Entry.ID

	rec = ts.do(t, http.MethodGet, "/journal", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListEntriesResponse](t, rec).Entries, 1)

	rec = ts.do(t, http.MethodGet, "/journal/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hike", decode[EntryResponse](t, rec).Entry.Title)

	rec = ts.do(t, http.MethodPut, "/journal/"+id, `{"title":"Hill walk"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[EntryResponse](t, rec)
	assert.Equal(t, "Hill walk", updated.Entry.Title)
	assert.Equal(t, "Went up the hill.", updated.Entry.Content)

	rec = ts.do(t, http.MethodDelete, "/journal/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Entry with id "+id+" deleted successfully", decode[map[string]string](t, rec)["message"])

	rec = ts.do(t, http.MethodDelete, "/journal/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["detail"], "entry not found")
}

func TestJournalValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/journal/", `{"content":"x","date":"not a date"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/journal/", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/journal/", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/journal/?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/journal/?filter=title%20%2B", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/journal/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/generate-prompt", `{"promptType":"daily","alpha":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGeneratePrompt(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, 60).Return("You cooked.", nil)
	ts.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, 100).Return("What did dinner taste like?", nil).Once()
	ts.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, 100).Return("", errors.New("quota")).Once()

	rec := ts.do(t, http.MethodPost, "/journal/", `{"content":"Cooked dinner."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[EntryResponse](t, rec).Entry.ID

	rec = ts.do(t, http.MethodPost, "/generate-prompt", `{"promptType":"daily"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	response := decode[GeneratePromptResponse](t, rec)
	assert.Equal(t, "What did dinner taste like?", response.Prompt)
	assert.Equal(t, "daily", response.PromptType)
	assert.Equal(t, []string{id}, response.EntryIDs)
	assert.False(t, response.Fallback)

	rec = ts.do(t, http.MethodPost, "/generate-prompt", `{"promptType":"freeform"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	response = decode[GeneratePromptResponse](t, rec)
	assert.True(t, response.Fallback)
	assert.Equal(t, "generic", response.PromptType)
	assert.NotEmpty(t, response.Prompt)
}

func TestGetFeed(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("You wrote.", nil)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/journal/", `{"title":"Public day","content":"shared"}`).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/journal/", `{"title":"Private day","content":"hidden","eligible":false}`).Code)

	rec := ts.do(t, http.MethodGet, "/journal/feed.atom", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/atom+xml")
	body := rec.Body.String()
	assert.Contains(t, body, "<feed")
	assert.Contains(t, body, "Public day")
	assert.Contains(t, body, "https://saga.example.com/journal/")
	assert.NotContains(t, body, "Private day")
}

func TestMetricsAndHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/", "")

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `saga_http_requests_total{method="GET",route="/",status="200"} 1`)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NotFound("x"), http.StatusNotFound},
		{apperrors.InvalidArgument("bad"), http.StatusBadRequest},
		{apperrors.InvalidTimestamp("x", nil), http.StatusBadRequest},
		{apperrors.Encoding("down", nil), http.StatusServiceUnavailable},
		{apperrors.Generation("down", nil), http.StatusInternalServerError},
		{apperrors.Decoding("corrupt"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err), tt.err.Error())
	}
}

func TestGenerateAtomFeedFallbacks(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix()
	atom, err := generateAtomFeed("https://x", []*store.Entry{{ID: "1", Content: "# Heading\n\nbody", Date: "garbage", CreatedTs: ts, UpdatedTs: ts}})
	require.NoError(t, err)
	assert.Contains(t, atom, "January 2, 2024")
	assert.Contains(t, atom, "Heading")
}
