package codec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/saga/internal/errors"
)

// MockEmbeddingService is a mock implementation of ai.EmbeddingService.
type MockEmbeddingService struct {
	mock.Mock
}

func (m *MockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if v := args.Get(0); v != nil {
		return v.([][]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmbeddingService) Dimensions() int {
	return 3
}

func TestEncoderEncode(t *testing.T) {
	svc := new(MockEmbeddingService)
	svc.On("Embed", mock.Anything, "hello").Return([]float32{0.1, 0.2, 0.3}, nil).Once()

	enc := NewEncoder(svc)
	assert.Equal(t, 3, enc.Dimensions())

	first, err := enc.Encode(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, first)

	// Served from cache, and mutating a result does not poison it.
	first[0] = 42
	second, err := enc.Encode(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, second)
	svc.AssertExpectations(t)
}

func TestEncoderWithoutCache(t *testing.T) {
	svc := new(MockEmbeddingService)
	svc.On("Embed", mock.Anything, "hello").Return([]float32{1, 0, 0}, nil).Twice()

	enc := NewEncoder(svc, WithCacheTTL(0))
	for i := 0; i < 2; i++ {
		_, err := enc.Encode(context.Background(), "hello")
		require.NoError(t, err)
	}
	svc.AssertExpectations(t)
}

func TestEncoderBackendFailureIsEncodingError(t *testing.T) {
	svc := new(MockEmbeddingService)
	svc.On("Embed", mock.Anything, "q").Return(nil, errors.New("connection refused"))

	_, err := NewEncoder(svc).Encode(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEncoding))
}

func TestEncoderRejectsWrongDimensions(t *testing.T) {
	svc := new(MockEmbeddingService)
	svc.On("Embed", mock.Anything, "q").Return([]float32{1, 2}, nil)

	_, err := NewEncoder(svc).Encode(context.Background(), "q")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEncoding))
}

func TestEncoderDecode(t *testing.T) {
	enc := NewEncoder(new(MockEmbeddingService))
	v, err := enc.Decode(ToBlob([]float32{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)

	_, err = enc.Decode(ToBlob([]float32{1, 2}))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDecoding))
}

type slowEmbeddingService struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowEmbeddingService) Embed(context.Context, string) ([]float32, error) {
	n := s.inFlight.Add(1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.inFlight.Add(-1)
	return []float32{1, 1, 1}, nil
}

func (s *slowEmbeddingService) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (*slowEmbeddingService) Dimensions() int { return 3 }

func TestEncoderBoundsConcurrency(t *testing.T) {
	svc := &slowEmbeddingService{}
	enc := NewEncoder(svc, WithConcurrency(2), WithCacheTTL(0))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := enc.Encode(context.Background(), "text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, svc.peak.Load(), int32(2))
}

func TestEncoderCancelled(t *testing.T) {
	enc := NewEncoder(&slowEmbeddingService{}, WithConcurrency(1), WithCacheTTL(0))
	require.NoError(t, enc.sem.Acquire(context.Background(), 1))
	defer enc.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := enc.Encode(ctx, "text")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEncoding))
}
