package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
	"github.com/vistry-ai/vistry/internal/metrics"
)

// Stage is one pipeline step, invoked once per object event.
type Stage interface {
	Run(ctx context.Context, ev domain.ObjectEvent) error
}

// Runner consumes events for one stage with bounded concurrency. Each
// invocation gets its own timeout-bound context, detached from the consume
// loop, so a shutdown stops intake but lets in-flight invocations finish.
type Runner struct {
	name    string
	stage   Stage
	timeout time.Duration
	sem     chan struct{}
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewRunner creates a stage runner.
func NewRunner(name string, stage Stage, concurrency int, timeout time.Duration, logger *zap.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{
		name:    name,
		stage:   stage,
		timeout: timeout,
		sem:     make(chan struct{}, concurrency),
		logger:  logger,
	}
}

// Consume processes events until the channel closes or ctx is cancelled.
func (r *Runner) Consume(ctx context.Context, events <-chan domain.ObjectEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			r.wg.Add(1)
			go r.invoke(ev)
		}
	}
}

// Wait blocks until all in-flight invocations finish.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) invoke(ev domain.ObjectEvent) {
	defer r.wg.Done()
	defer func() { <-r.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	err := r.stage.Run(ctx, ev)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failed"
		r.logger.Error("stage invocation failed",
			zap.String("stage", r.name),
			zap.String("bucket", ev.Bucket),
			zap.String("key", ev.Key),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		r.logger.Info("stage invocation complete",
			zap.String("stage", r.name),
			zap.String("bucket", ev.Bucket),
			zap.String("key", ev.Key),
			zap.Duration("duration", duration),
		)
	}
	metrics.StageDuration.WithLabelValues(r.name, status).Observe(duration.Seconds())
}
