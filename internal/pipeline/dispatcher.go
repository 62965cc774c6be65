package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
)

// Stage names, used for routing and metric labels.
const (
	StageBatcher  = "batcher"
	StageEmbedder = "embedder"
	StageIndexer  = "indexer"
)

// Config describes the bucket and prefix layout the dispatcher routes by.
type Config struct {
	IngestBucket     string
	EmbeddingsBucket string
	IngestPrefix     string
	BatchPrefix      string
}

// Dispatcher routes object-created events to stage channels by bucket and
// key shape. Catalog uploads go to the batcher, batch objects to the
// embedder, embeddings objects to the indexer. Anything else (images, stray
// objects) is dropped.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger

	batcher  chan<- domain.ObjectEvent
	embedder chan<- domain.ObjectEvent
	indexer  chan<- domain.ObjectEvent
}

// NewDispatcher creates a dispatcher feeding the three stage channels.
func NewDispatcher(
	cfg Config,
	batcher, embedder, indexer chan<- domain.ObjectEvent,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		logger:   logger,
		batcher:  batcher,
		embedder: embedder,
		indexer:  indexer,
	}
}

// Consume routes events until the channel closes or ctx is cancelled.
func (d *Dispatcher) Consume(ctx context.Context, events <-chan domain.ObjectEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			target, stage := d.route(ev)
			if target == nil {
				d.logger.Debug("event dropped",
					zap.String("bucket", ev.Bucket),
					zap.String("key", ev.Key),
				)
				continue
			}
			select {
			case target <- ev:
				d.logger.Debug("event routed",
					zap.String("stage", stage),
					zap.String("bucket", ev.Bucket),
					zap.String("key", ev.Key),
				)
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher) route(ev domain.ObjectEvent) (chan<- domain.ObjectEvent, string) {
	if !strings.HasSuffix(ev.Key, ".json") {
		return nil, ""
	}

	switch ev.Bucket {
	case d.cfg.IngestBucket:
		if strings.HasPrefix(ev.Key, d.cfg.IngestPrefix) {
			return d.batcher, StageBatcher
		}
		if strings.HasPrefix(ev.Key, d.cfg.BatchPrefix) {
			return d.embedder, StageEmbedder
		}
	case d.cfg.EmbeddingsBucket:
		return d.indexer, StageIndexer
	}
	return nil, ""
}
