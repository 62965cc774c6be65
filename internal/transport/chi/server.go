package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	logpkg "github.com/vistry-ai/vistry/internal/logger"
	healthuc "github.com/vistry-ai/vistry/internal/usecase/health"
)

// searchService is the consumer interface for the search endpoints (ISP).
type searchService interface {
	SearchText(ctx context.Context, text string) ([]domain.Hit, error)
	SearchImage(ctx context.Context, imageBase64, text string) ([]domain.Hit, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search API over HTTP. Search requests run under a
// wall-clock budget shorter than the server's write timeout, so a hung
// backend call yields a JSON timeout response instead of a dropped
// connection.
type Server struct {
	search        searchService
	health        *healthuc.Service
	searchTimeout time.Duration
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search searchService, health *healthuc.Service, searchTimeout time.Duration, logger *zap.Logger) *Server {
	if searchTimeout <= 0 {
		searchTimeout = 10 * time.Second
	}
	s := &Server{
		search:        search,
		health:        health,
		searchTimeout: searchTimeout,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		timeoutHandler,
		sentinelHandler(domain.ErrMissingTextInput, http.StatusBadRequest),
		sentinelHandler(domain.ErrMissingImageInput, http.StatusBadRequest),
		sentinelHandler(domain.ErrEmptyEmbedRequest, http.StatusBadRequest),
		sentinelHandler(domain.ErrImageInputNotSupported, http.StatusNotImplemented),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway),
	}
	return s
}

// Routes mounts all endpoints on a router.
func (s *Server) Routes(r chi.Router) {
	r.Use(corsMiddleware)

	r.Post("/search/text", s.SearchText)
	r.Post("/search/image", s.SearchImage)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type searchTextRequest struct {
	TextInput string `json:"textInput"`
}

type searchImageRequest struct {
	ImageInput string `json:"imageInput"`
	TextInput  string `json:"textInput"`
}

type searchResponse struct {
	Hits []domain.Hit `json:"hits"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SearchText handles POST /search/text.
func (s *Server) SearchText(w http.ResponseWriter, r *http.Request) {
	var req searchTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.searchTimeout)
	defer cancel()

	hits, err := s.search.SearchText(ctx, req.TextInput)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeHits(w, hits)
}

// SearchImage handles POST /search/image.
func (s *Server) SearchImage(w http.ResponseWriter, r *http.Request) {
	var req searchImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.searchTimeout)
	defer cancel()

	hits, err := s.search.SearchImage(ctx, req.ImageInput, req.TextInput)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeHits(w, hits)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// corsMiddleware answers preflight requests and marks every response as
// cross-origin readable. The API is consumed by browser frontends on other
// origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeHits(w http.ResponseWriter, hits []domain.Hit) {
	if hits == nil {
		hits = []domain.Hit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Hits: hits})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMissingTextInput,
		domain.ErrMissingImageInput,
		domain.ErrEmptyEmbedRequest,
		domain.ErrImageInputNotSupported,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, msg)
		return true
	}
}

// timeoutHandler maps an exhausted request budget to a deliberate JSON
// timeout response.
func timeoutHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	writeError(w, http.StatusGatewayTimeout, "search timed out")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
