package journal

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/hrygo/saga/plugin/ai/codec"
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

const testDims = 8

// letterEmbedder counts letters a..h; enough to give distinct texts distinct directions.
type letterEmbedder struct {
	calls atomic.Int32
	err   error
}

func letterVector(text string) []float32 {
	v := make([]float32, testDims)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r < 'a'+testDims {
			v[r-'a']++
		}
	}
	return v
}

func (e *letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return letterVector(text), nil
}

func (e *letterEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (*letterEmbedder) Dimensions() int { return testDims }

type testEnv struct {
	store    *store.Store
	llm      *MockLLMService
	embedder *letterEmbedder
	encoder  *codec.Encoder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	embedder := &letterEmbedder{}
	return &testEnv{
		store:    storetest.NewTestingStore(context.Background(), t),
		llm:      new(MockLLMService),
		embedder: embedder,
		encoder:  codec.NewEncoder(embedder, codec.WithCacheTTL(0)),
	}
}
