package search

import (
	"context"
	"time"

	"github.com/vistry-ai/vistry/internal/domain"
)

// provider generates one multimodal embedding per request.
type provider interface {
	Embed(ctx context.Context, req domain.EmbedRequest) ([]float32, error)
}

// searcher runs k-NN queries over the vector index.
type searcher interface {
	SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
}

// urlSigner issues time-limited GET URLs for stored objects.
type urlSigner interface {
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
