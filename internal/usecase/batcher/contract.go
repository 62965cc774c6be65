package batcher

import "context"

// objectStore is the consumer interface for batch splitting (ISP).
type objectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}
