package embedder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

// Service turns a batch of catalog records into embedded documents. Each
// record is processed independently: a failure is recorded and skipped, it
// never aborts the batch. The output object is written under the same key as
// the input batch, into the embeddings bucket, even when every record failed.
type Service struct {
	store            objectStore
	provider         provider
	embeddingsBucket string
	vectorDim        int
	logger           *zap.Logger
}

// New creates an embedder service.
func New(store objectStore, p provider, embeddingsBucket string, vectorDim int, logger *zap.Logger) *Service {
	if vectorDim <= 0 {
		vectorDim = domain.DefaultVectorDim
	}
	return &Service{
		store:            store,
		provider:         p,
		embeddingsBucket: embeddingsBucket,
		vectorDim:        vectorDim,
		logger:           logger,
	}
}

// Run processes one batch object. The embeddings object is always written,
// so downstream stages can tell "batch processed, nothing embeddable" apart
// from "batch never processed".
func (s *Service) Run(ctx context.Context, ev domain.ObjectEvent) error {
	data, err := s.store.Get(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return fmt.Errorf("fetch batch %s/%s: %w", ev.Bucket, ev.Key, err)
	}

	var records []domain.InputRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse batch %s/%s: %w", ev.Bucket, ev.Key, err)
	}

	documents := make([]domain.ProductDocument, 0, len(records))
	failures := make([]domain.FailedEmbedding, 0)

	for _, record := range records {
		doc, err := s.embedRecord(ctx, ev.Bucket, record)
		if err != nil {
			metrics.RecordsEmbeddedTotal.WithLabelValues("failed").Inc()
			failures = append(failures, domain.FailedEmbedding{
				ImagePath: record.ImagePath,
				Error:     err.Error(),
			})
			continue
		}
		metrics.RecordsEmbeddedTotal.WithLabelValues("success").Inc()
		documents = append(documents, doc)
	}

	if len(failures) > 0 {
		detail, _ := json.Marshal(failures)
		s.logger.Warn("some records failed to embed",
			zap.String("batch", ev.Key),
			zap.Int("failed", len(failures)),
			zap.ByteString("failures", detail),
		)
	}

	body, err := json.Marshal(documents)
	if err != nil {
		return fmt.Errorf("marshal embeddings for %s: %w", ev.Key, err)
	}
	if err := s.store.Put(ctx, s.embeddingsBucket, ev.Key, body, "application/json"); err != nil {
		return fmt.Errorf("write embeddings %s/%s: %w", s.embeddingsBucket, ev.Key, err)
	}

	s.logger.Info("batch embedded",
		zap.String("batch", ev.Key),
		zap.Int("records", len(records)),
		zap.Int("embedded", len(documents)),
		zap.Int("failed", len(failures)),
	)
	return nil
}

// embedRecord fetches the record's image, embeds image+title together and
// validates the vector length against the index schema.
func (s *Service) embedRecord(ctx context.Context, bucket string, record domain.InputRecord) (domain.ProductDocument, error) {
	image, err := s.store.Get(ctx, bucket, record.ImagePath)
	if err != nil {
		return domain.ProductDocument{}, fmt.Errorf("fetch image: %w", err)
	}

	vector, err := s.provider.Embed(ctx, domain.EmbedRequest{
		InputImage: base64.StdEncoding.EncodeToString(image),
		InputText:  record.ProductTitle,
	})
	if err != nil {
		return domain.ProductDocument{}, fmt.Errorf("embed: %w", err)
	}
	if len(vector) != s.vectorDim {
		return domain.ProductDocument{}, fmt.Errorf("vector length %d, schema expects %d: %w",
			len(vector), s.vectorDim, domain.ErrVectorDimMismatch)
	}

	return domain.ProductDocument{
		ImagePath:   record.ImagePath,
		ImageURL:    record.ImageURL,
		Brand:       record.Brand,
		Class:       record.ClassLabel,
		Description: record.ProductTitle,
		Vector:      vector,
	}, nil
}
