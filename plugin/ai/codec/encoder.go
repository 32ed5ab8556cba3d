// Package codec turns text into embedding vectors and vectors into storage blobs.
package codec

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/plugin/ai"
)

// Encoder converts text to fixed-length vectors through the embedding model.
// Concurrent calls share a bounded number of in-flight model requests.
type Encoder struct {
	service    ai.EmbeddingService
	dimensions int
	sem        *semaphore.Weighted
	cache      *cache.Cache
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithConcurrency bounds in-flight model requests.
func WithConcurrency(n int) EncoderOption {
	return func(e *Encoder) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithCacheTTL caches vectors by text. A zero ttl disables the cache.
func WithCacheTTL(ttl time.Duration) EncoderOption {
	return func(e *Encoder) {
		if ttl <= 0 {
			e.cache = nil
			return
		}
		e.cache = cache.New(ttl, 2*ttl)
	}
}

// NewEncoder creates an Encoder producing vectors of the service's dimensionality.
func NewEncoder(service ai.EmbeddingService, opts ...EncoderOption) *Encoder {
	dims := service.Dimensions()
	if dims <= 0 {
		dims = DefaultDimensions
	}
	e := &Encoder{
		service:    service,
		dimensions: dims,
		sem:        semaphore.NewWeighted(int64(runtime.NumCPU())),
		cache:      cache.New(10*time.Minute, 20*time.Minute),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimensions returns the fixed component count of every vector.
func (e *Encoder) Dimensions() int {
	return e.dimensions
}

// Encode returns the embedding of text. Backend failures and vectors of the
// wrong length are EncodingErrors; no zero-vector fallback is ever returned.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(text); ok {
			return clone(cached.([]float32)), nil
		}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Encoding("encode cancelled", err)
	}
	vector, err := e.service.Embed(ctx, text)
	e.sem.Release(1)
	if err != nil {
		return nil, apperrors.Encoding("embedding backend failed", err)
	}
	if len(vector) != e.dimensions {
		return nil, apperrors.Encoding(fmt.Sprintf("embedding has %d components, want %d", len(vector), e.dimensions), nil)
	}

	if e.cache != nil {
		e.cache.SetDefault(text, clone(vector))
	}
	return vector, nil
}

// Decode unpacks a stored blob at the encoder's dimensionality.
func (e *Encoder) Decode(blob []byte) ([]float32, error) {
	return FromBlob(blob, e.dimensions)
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
