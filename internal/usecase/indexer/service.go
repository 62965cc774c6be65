package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

// Service loads an embeddings object and submits its documents to the vector
// index as one bulk call. Documents that fail inside the bulk call are logged
// individually; the event delivery is idempotent because document keys are
// derived from the image path.
type Service struct {
	store  objectStore
	repo   repository
	logger *zap.Logger
}

// New creates an indexer service.
func New(store objectStore, repo repository, logger *zap.Logger) *Service {
	return &Service{store: store, repo: repo, logger: logger}
}

// Run processes one embeddings object.
func (s *Service) Run(ctx context.Context, ev domain.ObjectEvent) error {
	data, err := s.store.Get(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return fmt.Errorf("fetch embeddings %s/%s: %w", ev.Bucket, ev.Key, err)
	}

	var docs []domain.ProductDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse embeddings %s/%s: %w", ev.Bucket, ev.Key, err)
	}

	if len(docs) == 0 {
		s.logger.Info("embeddings object is empty, nothing to index",
			zap.String("bucket", ev.Bucket),
			zap.String("key", ev.Key),
		)
		return nil
	}

	result, err := s.repo.BulkUpsert(ctx, docs)
	if err != nil {
		return fmt.Errorf("bulk index %s: %w", ev.Key, err)
	}

	metrics.DocumentsIndexedTotal.WithLabelValues("success").Add(float64(result.Succeeded))
	metrics.DocumentsIndexedTotal.WithLabelValues("failed").Add(float64(len(result.Failed)))

	for _, item := range result.Failed {
		s.logger.Error("document rejected by index",
			zap.String("key", ev.Key),
			zap.String("doc_id", item.ID),
			zap.Error(item.Err),
		)
	}

	s.logger.Info("embeddings indexed",
		zap.String("key", ev.Key),
		zap.Int("indexed", result.Succeeded),
		zap.Int("failed", len(result.Failed)),
	)

	if len(result.Failed) > 0 {
		return fmt.Errorf("bulk index %s: %d of %d documents failed", ev.Key, len(result.Failed), len(docs))
	}
	return nil
}
