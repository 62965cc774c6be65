package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

func testDispatcherConfig() Config {
	return Config{
		IngestBucket:     "catalog",
		EmbeddingsBucket: "embeddings",
		IngestPrefix:     "ingest/",
		BatchPrefix:      "batch/",
	}
}

func runDispatch(t *testing.T, ev domain.ObjectEvent) (string, bool) {
	t.Helper()

	batcher := make(chan domain.ObjectEvent, 1)
	embedder := make(chan domain.ObjectEvent, 1)
	indexer := make(chan domain.ObjectEvent, 1)
	in := make(chan domain.ObjectEvent, 1)

	d := NewDispatcher(testDispatcherConfig(), batcher, embedder, indexer, zap.NewNop())

	in <- ev
	close(in)
	d.Consume(context.Background(), in)

	select {
	case <-batcher:
		return StageBatcher, true
	case <-embedder:
		return StageEmbedder, true
	case <-indexer:
		return StageIndexer, true
	default:
		return "", false
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name      string
		ev        domain.ObjectEvent
		wantStage string
		routed    bool
	}{
		{
			name:      "catalog upload goes to batcher",
			ev:        domain.ObjectEvent{Bucket: "catalog", Key: "ingest/products.json"},
			wantStage: StageBatcher,
			routed:    true,
		},
		{
			name:      "batch object goes to embedder",
			ev:        domain.ObjectEvent{Bucket: "catalog", Key: "batch/batch_3.json"},
			wantStage: StageEmbedder,
			routed:    true,
		},
		{
			name:      "embeddings object goes to indexer",
			ev:        domain.ObjectEvent{Bucket: "embeddings", Key: "batch/batch_3.json"},
			wantStage: StageIndexer,
			routed:    true,
		},
		{
			name:   "image upload is dropped",
			ev:     domain.ObjectEvent{Bucket: "catalog", Key: "images/a.jpg"},
			routed: false,
		},
		{
			name:   "json outside known prefixes is dropped",
			ev:     domain.ObjectEvent{Bucket: "catalog", Key: "manifest.json"},
			routed: false,
		},
		{
			name:   "unknown bucket is dropped",
			ev:     domain.ObjectEvent{Bucket: "other", Key: "ingest/products.json"},
			routed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, routed := runDispatch(t, tt.ev)
			if routed != tt.routed {
				t.Fatalf("routed = %v, expected %v", routed, tt.routed)
			}
			if routed && stage != tt.wantStage {
				t.Errorf("stage = %s, expected %s", stage, tt.wantStage)
			}
		})
	}
}

type countingStage struct {
	events chan domain.ObjectEvent
	block  chan struct{}
}

func (s *countingStage) Run(_ context.Context, ev domain.ObjectEvent) error {
	s.events <- ev
	<-s.block
	return nil
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	stage := &countingStage{
		events: make(chan domain.ObjectEvent, 16),
		block:  make(chan struct{}),
	}
	runner := NewRunner("batcher", stage, 2, time.Minute, zap.NewNop())

	in := make(chan domain.ObjectEvent, 4)
	for i := 0; i < 4; i++ {
		in <- domain.ObjectEvent{Bucket: "catalog", Key: "ingest/products.json"}
	}
	close(in)

	done := make(chan struct{})
	go func() {
		runner.Consume(context.Background(), in)
		runner.Wait()
		close(done)
	}()

	// With a cap of 2, exactly two invocations start before any finish.
	<-stage.events
	<-stage.events
	select {
	case <-stage.events:
		t.Fatal("third invocation started beyond the concurrency cap")
	case <-time.After(50 * time.Millisecond):
	}

	close(stage.block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not drain")
	}

	// The remaining invocations ran after capacity freed up.
	remaining := 0
	for {
		select {
		case <-stage.events:
			remaining++
		default:
			if remaining != 2 {
				t.Errorf("remaining invocations = %d, expected 2", remaining)
			}
			return
		}
	}
}

type recordingStage struct {
	deadlines chan bool
}

func (s *recordingStage) Run(ctx context.Context, _ domain.ObjectEvent) error {
	_, ok := ctx.Deadline()
	s.deadlines <- ok
	return nil
}

func TestRunner_InvocationHasDeadline(t *testing.T) {
	stage := &recordingStage{deadlines: make(chan bool, 1)}
	runner := NewRunner("embedder", stage, 1, time.Minute, zap.NewNop())

	in := make(chan domain.ObjectEvent, 1)
	in <- domain.ObjectEvent{Bucket: "catalog", Key: "batch/batch_1.json"}
	close(in)

	runner.Consume(context.Background(), in)
	runner.Wait()

	select {
	case ok := <-stage.deadlines:
		if !ok {
			t.Error("invocation context must carry a deadline")
		}
	default:
		t.Fatal("stage was never invoked")
	}
}
