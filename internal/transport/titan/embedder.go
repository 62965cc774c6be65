package titan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

const providerName = "titan"

// Embedder invokes a Titan-style multimodal embedding endpoint over HTTP.
// One request carries base64 image data and/or text and returns a single
// fixed-length vector.
type Embedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// Config holds the embedding endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewEmbedder creates a multimodal embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     client,
		logger:     logger,
	}
}

type invokeRequest struct {
	InputImage      string           `json:"inputImage,omitempty"`
	InputText       string           `json:"inputText,omitempty"`
	EmbeddingConfig *embeddingConfig `json:"embeddingConfig,omitempty"`
}

type embeddingConfig struct {
	OutputEmbeddingLength int `json:"outputEmbeddingLength"`
}

type invokeResponse struct {
	Embedding []float32 `json:"embedding"`
	Message   string    `json:"message"`
}

// Embed implements domain.Embedder. The request body mirrors the model's
// native contract: inputImage and inputText keys are omitted when empty, so
// a text-only query never carries an image field.
func (e *Embedder) Embed(ctx context.Context, req domain.EmbedRequest) ([]float32, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := invokeRequest{
		InputImage: req.InputImage,
		InputText:  req.InputText,
	}
	if e.dimensions > 0 {
		payload.EmbeddingConfig = &embeddingConfig{OutputEmbeddingLength: e.dimensions}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.invokeURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "transport").Inc()
		return nil, fmt.Errorf("invoke model: %v: %w", err, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "api_error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding API error %d: %s: %w",
			resp.StatusCode, string(detail), domain.ErrEmbeddingProviderError)
	}

	var result invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "decode").Inc()
		return nil, fmt.Errorf("decode response: %v: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(result.Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "empty_response").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(duration.Seconds())

	return result.Embedding, nil
}

// HealthCheck probes the endpoint with a trivial text embedding.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.Embed(ctx, domain.EmbedRequest{InputText: "ping"}); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}

func (e *Embedder) invokeURL() string {
	return e.baseURL + "/model/" + url.PathEscape(e.model) + "/invoke"
}
