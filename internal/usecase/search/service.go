package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

// Service answers text and image similarity queries. The query is embedded
// with the same provider and request shape the ingestion pipeline uses, so
// query vectors and document vectors live in the same space. Image paths in
// the results are replaced with presigned URLs before they leave the service.
type Service struct {
	provider provider
	repo     searcher
	signer   urlSigner

	imageBucket string
	signedTTL   time.Duration
	k           int
	resultSize  int
	logger      *zap.Logger
}

// Config holds search tuning parameters. K is the neighbor count of the
// vector query; ResultSize caps how many hits are returned to the caller.
type Config struct {
	ImageBucket string
	SignedTTL   time.Duration
	K           int
	ResultSize  int
}

// New creates a search service.
func New(p provider, repo searcher, signer urlSigner, cfg Config, logger *zap.Logger) *Service {
	if cfg.K <= 0 {
		cfg.K = 5
	}
	if cfg.ResultSize <= 0 {
		cfg.ResultSize = cfg.K
	}
	if cfg.SignedTTL <= 0 {
		cfg.SignedTTL = time.Hour
	}
	return &Service{
		provider:    p,
		repo:        repo,
		signer:      signer,
		imageBucket: cfg.ImageBucket,
		signedTTL:   cfg.SignedTTL,
		k:           cfg.K,
		resultSize:  cfg.ResultSize,
		logger:      logger,
	}
}

// SearchText finds the products most similar to a text query.
func (s *Service) SearchText(ctx context.Context, text string) ([]domain.Hit, error) {
	if text == "" {
		metrics.SearchesTotal.WithLabelValues("text", "invalid").Inc()
		return nil, domain.ErrMissingTextInput
	}
	return s.search(ctx, "text", domain.EmbedRequest{InputText: text})
}

// SearchImage finds the products most similar to a base64-encoded image,
// optionally refined by accompanying text.
func (s *Service) SearchImage(ctx context.Context, imageBase64, text string) ([]domain.Hit, error) {
	if imageBase64 == "" {
		metrics.SearchesTotal.WithLabelValues("image", "invalid").Inc()
		return nil, domain.ErrMissingImageInput
	}
	return s.search(ctx, "image", domain.EmbedRequest{InputImage: imageBase64, InputText: text})
}

func (s *Service) search(ctx context.Context, kind string, req domain.EmbedRequest) ([]domain.Hit, error) {
	vector, err := s.provider.Embed(ctx, req)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(kind, "failed").Inc()
		return nil, fmt.Errorf("embed %s query: %w", kind, err)
	}

	hits, err := s.repo.SearchKNN(ctx, vector, s.k)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(kind, "failed").Inc()
		return nil, fmt.Errorf("knn %s query: %w", kind, err)
	}
	if len(hits) > s.resultSize {
		hits = hits[:s.resultSize]
	}

	// Ranking order comes from the engine and is preserved as-is.
	for i := range hits {
		signed, err := s.signer.SignedURL(ctx, s.imageBucket, hits[i].Source.ImagePath, s.signedTTL)
		if err != nil {
			metrics.SearchesTotal.WithLabelValues(kind, "failed").Inc()
			return nil, fmt.Errorf("presign %s: %w", hits[i].Source.ImagePath, err)
		}
		hits[i].Source.ImagePath = signed
	}

	metrics.SearchesTotal.WithLabelValues(kind, "success").Inc()
	s.logger.Debug("search served",
		zap.String("kind", kind),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}
