package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

// CrawlFunc executes one crawl run to completion and returns its report.
// In production it builds a Controller around the shared collaborators; tests
// substitute lighter functions.
type CrawlFunc func(ctx context.Context, cfg crawler.RunConfig) (crawler.RunReport, error)

// Worker drains the run queue, executing one run at a time.
type Worker struct {
	queue    *Queue
	registry *Registry
	crawl    CrawlFunc
	logger   *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(queue *Queue, registry *Registry, crawl CrawlFunc, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, registry: registry, crawl: crawl, logger: logger}
}

// Run processes queued runs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		w.handle(ctx, req)
	}
}

func (w *Worker) handle(ctx context.Context, req Request) {
	id := req.Config.RunID
	logger := w.logger.With(zap.String("run_id", id))

	// A run canceled while still queued is already terminal; skip it.
	if run, err := w.registry.Get(id); err != nil || run.Status != StatusQueued {
		if err != nil {
			logger.Warn("dequeued unknown run", zap.Error(err))
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := w.registry.MarkRunning(id, cancel); err != nil {
		logger.Warn("mark running failed", zap.Error(err))
		return
	}

	report, err := w.crawl(runCtx, req.Config)
	status, errText := terminalState(runCtx, report, err)
	if err := w.registry.Finish(id, status, errText, &report); err != nil {
		logger.Warn("record run result failed", zap.Error(err))
		return
	}
	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.String("stop_reason", string(report.StopReason)),
		zap.Int("pages_visited", report.PagesVisited))
}

func terminalState(ctx context.Context, report crawler.RunReport, err error) (RunStatus, string) {
	switch {
	case err == nil && report.StopReason == crawler.ReasonCanceled:
		return StatusCanceled, ""
	case err == nil:
		return StatusSucceeded, ""
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return StatusCanceled, err.Error()
	default:
		return StatusFailed, err.Error()
	}
}

// Pool fans queue work out to a fixed set of workers.
type Pool struct {
	queue   *Queue
	workers []*Worker
}

// NewPool creates a worker pool of the given size.
func NewPool(queue *Queue, registry *Registry, size int, crawl CrawlFunc, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(queue, registry, crawl, logger)
	}
	return &Pool{queue: queue, workers: workers}
}

// Run starts all workers and blocks until the context finishes.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (p *Pool) Enqueue(ctx context.Context, req Request) error {
	if err := p.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
