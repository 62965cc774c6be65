package indexer

import (
	"context"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/repository/index"
)

// objectStore is the consumer interface for reading embeddings objects (ISP).
type objectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// repository submits documents to the vector index.
type repository interface {
	BulkUpsert(ctx context.Context, docs []domain.ProductDocument) (*index.BulkResult, error)
}
