// Package scheduler decides when each source is fetched and records a
// task per fetch attempt.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"rsshub/internal/ingest"
	"rsshub/internal/model"
	"rsshub/internal/storage"
)

// ErrSourceNotFound is returned by FetchNow for an unknown source ID.
var ErrSourceNotFound = errors.New("source not found")

// Scheduler drives the periodic sweep and on-demand fetches. Fetches
// of the same source are coalesced through a single-flight group, so
// a manual trigger racing the sweep cannot double-count articles or
// admit duplicate links.
type Scheduler struct {
	store    storage.Storage
	pipeline *ingest.Pipeline
	log      *slog.Logger
	tick     time.Duration
	workers  int
	flight   singleflight.Group
}

// New creates a Scheduler with a 60-minute sweep interval and 10
// batch-fetch workers.
func New(store storage.Storage, pipeline *ingest.Pipeline, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		pipeline: pipeline,
		log:      log,
		tick:     60 * time.Minute,
		workers:  10,
	}
}

// SetTickInterval overrides the default sweep interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetWorkers overrides the batch-fetch worker limit.
func (s *Scheduler) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// Run starts the sweep loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep fetches every active source that is due. A single source's
// failure never aborts the sweep.
func (s *Scheduler) sweep(ctx context.Context) {
	sources, err := s.store.ListActiveSources(ctx)
	if err != nil {
		s.log.Error("list active sources", "error", err)
		return
	}

	now := time.Now()
	for i := range sources {
		if ctx.Err() != nil {
			return
		}
		src := sources[i]
		if !due(&src, now) {
			continue
		}
		if _, err := s.fetchSource(ctx, src.ID); err != nil {
			s.log.Error("sweep fetch", "source_id", src.ID, "name", src.Name, "error", err)
		}
	}
}

// FetchNow fetches one source immediately, bypassing the due test,
// and returns how many articles were added. A FetchTask is recorded
// and reaches a terminal state before this returns.
func (s *Scheduler) FetchNow(ctx context.Context, sourceID int64) (int, error) {
	return s.fetchSource(ctx, sourceID)
}

// FetchAllNow fetches every active source concurrently through a
// bounded worker pool, bypassing the due test. Per-source failures
// are isolated and logged.
func (s *Scheduler) FetchAllNow(ctx context.Context) error {
	sources, err := s.store.ListActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("list active sources: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range sources {
		src := sources[i]
		g.Go(func() error {
			if _, err := s.fetchSource(ctx, src.ID); err != nil {
				s.log.Error("batch fetch", "source_id", src.ID, "name", src.Name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchSource runs one fetch attempt inside the per-source single
// flight: concurrent triggers for the same source share one flight,
// one task record, and one result.
func (s *Scheduler) fetchSource(ctx context.Context, sourceID int64) (int, error) {
	added, err, _ := s.flight.Do(fmt.Sprintf("source-%d", sourceID), func() (any, error) {
		return s.runFetch(ctx, sourceID)
	})
	if err != nil {
		return 0, err
	}
	return added.(int), nil
}

// runFetch owns the FetchTask lifecycle: the task is persisted as
// running before the blocking network work, and written to exactly
// one terminal state afterwards.
func (s *Scheduler) runFetch(ctx context.Context, sourceID int64) (int, error) {
	task := &model.FetchTask{
		SourceID:  sourceID,
		Status:    model.TaskRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.InsertFetchTask(ctx, task); err != nil {
		return 0, fmt.Errorf("insert fetch task: %w", err)
	}

	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = ErrSourceNotFound
		}
		s.failTask(ctx, task, err)
		return 0, err
	}

	articles, err := s.pipeline.IngestSource(ctx, src, 0)
	if err != nil {
		s.failTask(ctx, task, err)
		return 0, err
	}

	now := time.Now()
	task.Status = model.TaskCompleted
	task.ArticlesAdded = len(articles)
	task.EndedAt = &now
	if err := s.store.UpdateFetchTask(ctx, task); err != nil {
		s.log.Error("update fetch task", "task_id", task.ID, "error", err)
	}

	src.LastFetchAt = &now
	if err := s.store.UpdateSource(ctx, src); err != nil {
		s.log.Error("update last fetch time", "source_id", src.ID, "error", err)
	}

	return len(articles), nil
}

func (s *Scheduler) failTask(ctx context.Context, task *model.FetchTask, cause error) {
	now := time.Now()
	task.Status = model.TaskFailed
	task.ErrorMessage = cause.Error()
	task.EndedAt = &now
	if err := s.store.UpdateFetchTask(ctx, task); err != nil {
		s.log.Error("update fetch task", "task_id", task.ID, "error", err)
	}
}

// due reports whether a source should be fetched by the periodic
// sweep: never fetched, or at least FrequencyMinutes since last time.
func due(src *model.Source, now time.Time) bool {
	if src.LastFetchAt == nil {
		return true
	}
	return now.Sub(*src.LastFetchAt) >= time.Duration(src.FrequencyMinutes)*time.Minute
}
