package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/config"
	dbRedis "github.com/vistry-ai/vistry/internal/db/redis"
	"github.com/vistry-ai/vistry/internal/domain"
	logpkg "github.com/vistry-ai/vistry/internal/logger"
	"github.com/vistry-ai/vistry/internal/metrics"
	"github.com/vistry-ai/vistry/internal/pipeline"
	indexrepo "github.com/vistry-ai/vistry/internal/repository/index"
	"github.com/vistry-ai/vistry/internal/storage"
	chiTransport "github.com/vistry-ai/vistry/internal/transport/chi"
	openaiEmb "github.com/vistry-ai/vistry/internal/transport/openai"
	titanEmb "github.com/vistry-ai/vistry/internal/transport/titan"
	batcheruc "github.com/vistry-ai/vistry/internal/usecase/batcher"
	embedderuc "github.com/vistry-ai/vistry/internal/usecase/embedder"
	healthuc "github.com/vistry-ai/vistry/internal/usecase/health"
	indexeruc "github.com/vistry-ai/vistry/internal/usecase/indexer"
	searchuc "github.com/vistry-ai/vistry/internal/usecase/search"
	"github.com/vistry-ai/vistry/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vistry",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	objects, err := storage.New(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Region:    cfg.Storage.Region,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create object store", zap.Error(err))
	}
	for _, bucket := range []string{cfg.Storage.IngestBucket, cfg.Storage.EmbeddingsBucket} {
		if err := objects.EnsureBucket(ctx, bucket); err != nil {
			logger.Fatal("Failed to ensure bucket", zap.String("bucket", bucket), zap.Error(err))
		}
	}
	logger.Info("Connected to object storage", zap.String("endpoint", cfg.Storage.Endpoint))

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	embedder, embedderHealth := buildEmbedder(cfg.Embedding, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	repo := indexrepo.New(store, indexrepo.Config{
		Name:            cfg.Index.Name,
		KeyPrefix:       cfg.Index.KeyPrefix,
		VectorDim:       cfg.Embedding.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if err := repo.Ensure(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}
	logger.Info("Vector index ready", zap.String("index", cfg.Index.Name))

	// Pipeline stages
	batcherSvc := batcheruc.New(objects, cfg.Storage.BatchPrefix, cfg.Pipeline.BatchSize, logger)
	embedderSvc := embedderuc.New(objects, embedder, cfg.Storage.EmbeddingsBucket, cfg.Embedding.Dimensions, logger)
	indexerSvc := indexeruc.New(objects, repo, logger)

	stageTimeout := time.Duration(cfg.Pipeline.StageTimeoutSec) * time.Second
	batcherRunner := pipeline.NewRunner(pipeline.StageBatcher, batcherSvc, cfg.Pipeline.BatcherConcurrency, stageTimeout, logger)
	embedderRunner := pipeline.NewRunner(pipeline.StageEmbedder, embedderSvc, cfg.Pipeline.EmbedderConcurrency, stageTimeout, logger)
	indexerRunner := pipeline.NewRunner(pipeline.StageIndexer, indexerSvc, cfg.Pipeline.IndexerConcurrency, stageTimeout, logger)

	events := make(chan domain.ObjectEvent, 64)
	batcherCh := make(chan domain.ObjectEvent, 16)
	embedderCh := make(chan domain.ObjectEvent, 16)
	indexerCh := make(chan domain.ObjectEvent, 16)

	dispatcher := pipeline.NewDispatcher(pipeline.Config{
		IngestBucket:     cfg.Storage.IngestBucket,
		EmbeddingsBucket: cfg.Storage.EmbeddingsBucket,
		IngestPrefix:     cfg.Storage.IngestPrefix,
		BatchPrefix:      cfg.Storage.BatchPrefix,
	}, batcherCh, embedderCh, indexerCh, logger)

	pipelineCtx, stopPipeline := context.WithCancel(ctx)
	go objects.Listen(pipelineCtx, cfg.Storage.IngestBucket, "", ".json", events)
	go objects.Listen(pipelineCtx, cfg.Storage.EmbeddingsBucket, "", ".json", events)
	go dispatcher.Consume(pipelineCtx, events)
	go batcherRunner.Consume(pipelineCtx, batcherCh)
	go embedderRunner.Consume(pipelineCtx, embedderCh)
	go indexerRunner.Consume(pipelineCtx, indexerCh)
	logger.Info("Pipeline started",
		zap.String("ingest_bucket", cfg.Storage.IngestBucket),
		zap.String("embeddings_bucket", cfg.Storage.EmbeddingsBucket),
	)

	// Search path
	searchSvc := searchuc.New(embedder, repo, objects, searchuc.Config{
		ImageBucket: cfg.Storage.IngestBucket,
		SignedTTL:   time.Duration(cfg.Storage.SignedURLTTLSec) * time.Second,
		K:           cfg.Search.KNNK,
		ResultSize:  cfg.Search.ResultSize,
	}, logger)

	healthSvc := healthuc.New(5 * time.Second)
	healthSvc.Register("database", store.Ping)
	healthSvc.Register("embedder", embedderHealth)

	server := chiTransport.NewServer(searchSvc, healthSvc,
		time.Duration(cfg.Search.TimeoutSec)*time.Second, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Stop event intake, then drain in-flight stage invocations.
	stopPipeline()
	batcherRunner.Wait()
	embedderRunner.Wait()
	indexerRunner.Wait()

	logger.Info("Server stopped gracefully")
}

// buildEmbedder selects the embedding provider. The multimodal provider is
// the default; the OpenAI-compatible one serves text-only deployments and
// local development.
func buildEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Embedder, healthuc.CheckFunc) {
	switch cfg.Provider {
	case "openai":
		e := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Logger:     logger,
		})
		return e, e.HealthCheck
	default:
		e := titanEmb.NewEmbedder(&titanEmb.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Logger:     logger,
		})
		return e, e.HealthCheck
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
