package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

// Service splits a catalog export into fixed-size batch objects. Each upload
// of a catalog file produces ceil(n/batchSize) batch objects in the same
// bucket under the batch prefix, preserving record order.
type Service struct {
	store       objectStore
	batchPrefix string
	batchSize   int
	logger      *zap.Logger
}

// New creates a batcher service.
func New(store objectStore, batchPrefix string, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = domain.DefaultBatchSize
	}
	return &Service{
		store:       store,
		batchPrefix: batchPrefix,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Run processes one uploaded catalog object. Individual batch write failures
// are logged and do not stop the remaining batches; the aggregate error is
// returned so the invocation is recorded as failed.
func (s *Service) Run(ctx context.Context, ev domain.ObjectEvent) error {
	data, err := s.store.Get(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return fmt.Errorf("fetch catalog %s/%s: %w", ev.Bucket, ev.Key, err)
	}

	var records []domain.InputRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse catalog %s/%s: %w", ev.Bucket, ev.Key, err)
	}

	if len(records) == 0 {
		s.logger.Info("catalog is empty, no batches written",
			zap.String("bucket", ev.Bucket),
			zap.String("key", ev.Key),
		)
		return nil
	}

	var errs []error
	written := 0
	for n, chunk := range s.partition(records) {
		key := fmt.Sprintf("%sbatch_%d.json", s.batchPrefix, n+1)

		body, err := json.Marshal(chunk)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", key, err))
			continue
		}
		if err := s.store.Put(ctx, ev.Bucket, key, body, "application/json"); err != nil {
			s.logger.Error("batch write failed",
				zap.String("bucket", ev.Bucket),
				zap.String("key", key),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}

		metrics.BatchesCreatedTotal.Inc()
		written++
	}

	s.logger.Info("catalog split into batches",
		zap.String("bucket", ev.Bucket),
		zap.String("key", ev.Key),
		zap.Int("records", len(records)),
		zap.Int("batches_written", written),
		zap.Int("batches_failed", len(errs)),
	)

	return errors.Join(errs...)
}

// partition slices records into chunks of at most batchSize, in order.
func (s *Service) partition(records []domain.InputRecord) [][]domain.InputRecord {
	chunks := make([][]domain.InputRecord, 0, (len(records)+s.batchSize-1)/s.batchSize)
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
