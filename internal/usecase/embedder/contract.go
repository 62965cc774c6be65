package embedder

import (
	"context"

	"github.com/vistry-ai/vistry/internal/domain"
)

// objectStore is the consumer interface for batch embedding (ISP).
type objectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// provider generates one multimodal embedding per request.
type provider interface {
	Embed(ctx context.Context, req domain.EmbedRequest) ([]float32, error)
}
