// Package worker implements the research pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rivalscope/research/internal/aggregate"
	"github.com/rivalscope/research/internal/metrics"
	"github.com/rivalscope/research/internal/research"
)

// Config controls Worker behavior.
type Config struct {
	// Topic receives one event per finished job.
	Topic string
	// BlobPrefix prefixes archived corpus object paths.
	BlobPrefix string
}

// Event is the terminal notification published per finished job.
type Event struct {
	EventID      string    `json:"event_id,omitempty"`
	CompetitorID string    `json:"competitor_id"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Worker consumes queue items and runs the research pipeline: acquire
// content, extract intel, persist the outcome. The submission boundary
// already marked the row processing; every dequeued job reaches a
// terminal status even when a stage fails.
type Worker struct {
	queue      research.Queue
	jobs       research.JobStore
	blobs      research.BlobStore
	publisher  research.Publisher
	aggregator *aggregate.Aggregator
	extractor  research.Extractor
	ids        research.IDGenerator
	clock      research.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. blobs and publisher may be nil; archiving and
// event publishing are then skipped.
func New(
	queue research.Queue,
	jobs research.JobStore,
	blobs research.BlobStore,
	publisher research.Publisher,
	aggregator *aggregate.Aggregator,
	extractor research.Extractor,
	ids research.IDGenerator,
	clock research.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.Topic == "" {
		cfg.Topic = "research-events"
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "corpus"
	}
	return &Worker{
		queue:      queue,
		jobs:       jobs,
		blobs:      blobs,
		publisher:  publisher,
		aggregator: aggregator,
		extractor:  extractor,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("competitor_id", item.CompetitorID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item research.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("competitor_id", item.CompetitorID))

	job, err := w.jobs.GetJob(ctx, item.CompetitorID)
	switch {
	case errors.Is(err, research.ErrNotFound):
		logger.Warn("job record missing, dropping")
		return
	case err != nil:
		// A transient lookup failure is not evidence the job is gone.
		// Run it; the guarded terminal writes protect a row that was
		// reaped or resubmitted in the meantime.
		logger.Warn("job lookup failed, continuing", zap.Error(err))
	case job.Status != research.StatusProcessing:
		logger.Warn("job no longer processing, dropping", zap.String("status", string(job.Status)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("research panicked", zap.Any("panic", r))
			w.fail(ctx, item, fmt.Sprintf("internal error: %v", r), nil, logger)
		}
	}()

	jobStart := w.clock.Now()
	start := jobStart
	acquired, err := w.aggregator.Run(ctx, item.Website)
	metrics.ObserveStage("aggregate", time.Since(start))
	if err != nil {
		w.fail(ctx, item, err.Error(), nil, logger)
		return
	}
	for _, page := range acquired.Meta.Pages {
		metrics.ObservePage(string(page.Category), string(page.Outcome))
	}
	metrics.ObserveCorpus(acquired.Meta.TotalBytes)

	orgName := item.DisplayName
	if orgName == "" {
		orgName = item.Website
	}

	start = w.clock.Now()
	intel, err := w.extractor.Extract(ctx, acquired.Corpus, orgName)
	metrics.ObserveStage("extract", time.Since(start))
	if err != nil {
		w.fail(ctx, item, err.Error(), &acquired.Meta, logger)
		return
	}

	meta := acquired.Meta
	finished := w.clock.Now()
	w.archiveCorpus(ctx, item, acquired.Corpus, &meta, finished, logger)

	outcome := research.JobOutcome{
		Intel:      intel,
		Brand:      acquired.Brand,
		Meta:       meta,
		FinishedAt: finished,
	}
	// Terminal writes survive a shutdown that cancels the job context.
	storeCtx := context.WithoutCancel(ctx)
	if err := w.jobs.SetCompleted(storeCtx, item.CompetitorID, outcome); err != nil {
		logger.Error("persist completed job failed", zap.Error(err))
		if err := w.jobs.SetCompleted(storeCtx, item.CompetitorID, outcome); err != nil {
			logger.Error("persist completed job retry failed", zap.Error(err))
			// The record cannot hold the results, so the run fails; the
			// error write is best effort too and the stale sweeper is
			// the backstop.
			w.fail(ctx, item, "failed to persist research results", &meta, logger)
			return
		}
	}
	metrics.ObserveJob(string(research.StatusCompleted))
	w.publish(storeCtx, Event{
		CompetitorID: item.CompetitorID,
		Status:       string(research.StatusCompleted),
		FinishedAt:   finished,
	}, logger)
	logger.Info("research completed",
		zap.String("organization", intel.Overview.OrganizationName),
		zap.Int("pages", len(meta.Pages)),
		zap.Duration("duration", finished.Sub(jobStart)))
}

// fail records the terminal error status; the write is retried once
// because losing it would wedge the competitor in processing until the
// stale sweeper catches it.
func (w *Worker) fail(ctx context.Context, item research.QueueItem, errText string, meta *research.RawContentMeta, logger *zap.Logger) {
	finished := w.clock.Now()
	storeCtx := context.WithoutCancel(ctx)
	if err := w.jobs.SetError(storeCtx, item.CompetitorID, errText, meta, finished); err != nil {
		logger.Error("persist failed job failed", zap.Error(err))
		if err := w.jobs.SetError(storeCtx, item.CompetitorID, errText, meta, finished); err != nil {
			logger.Error("persist failed job retry failed", zap.Error(err))
		}
	}
	metrics.ObserveJob(string(research.StatusError))
	w.publish(storeCtx, Event{
		CompetitorID: item.CompetitorID,
		Status:       string(research.StatusError),
		Error:        errText,
		FinishedAt:   finished,
	}, logger)
	logger.Warn("research failed", zap.String("error", errText))
}

// archiveCorpus uploads the raw corpus for audit. Failure is logged and
// ignored; the job result does not depend on the archive.
func (w *Worker) archiveCorpus(ctx context.Context, item research.QueueItem, corpus string, meta *research.RawContentMeta, finished time.Time, logger *zap.Logger) {
	if w.blobs == nil {
		return
	}
	path := fmt.Sprintf("%s/%s/%d.md", w.cfg.BlobPrefix, item.CompetitorID, finished.Unix())
	uri, err := w.blobs.PutObject(ctx, path, "text/markdown; charset=utf-8", []byte(corpus))
	if err != nil {
		logger.Warn("corpus archive failed", zap.Error(err))
		return
	}
	meta.CorpusURI = uri
}

// publish emits the terminal event, best effort.
func (w *Worker) publish(ctx context.Context, event Event, logger *zap.Logger) {
	if w.publisher == nil {
		return
	}
	if w.ids != nil {
		if id, err := w.ids.NewID(); err == nil {
			event.EventID = id
		}
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		logger.Warn("publish research event failed", zap.Error(err))
	}
}
