// Package timeout defines centralized timeout constants for model calls.
package timeout

import "time"

const (
	// EmbeddingTimeout bounds a single embedding request, retries included.
	EmbeddingTimeout = 30 * time.Second

	// GenerationTimeout bounds a single text generation request.
	GenerationTimeout = 30 * time.Second

	// RerankTimeout bounds a cross-encoder request.
	RerankTimeout = 15 * time.Second

	// RetrievalTimeout bounds a whole retrieval pass including the query encode.
	RetrievalTimeout = 45 * time.Second
)
