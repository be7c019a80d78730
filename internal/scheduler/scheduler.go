// Package scheduler implements C13: a fixed worker pool dispatching
// per-work download tasks under per-provider semaphores, grounded on
// internal/engine/executor.go's queueWorker loop and
// internal/queue/scheduler.go's per-host counting-map, generalized here to
// per-provider.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

// TaskFunc executes one download task under the given WorkContext and
// returns an error only for unexpected failures (not for ordinary
// no-candidate-succeeded outcomes, which the pipeline already resolves into
// a work status).
type TaskFunc func(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) error

// Stats exposes the scheduler's live counters.
type Stats struct {
	Pending   int64
	Completed int64
	Succeeded int64
	Failed    int64
}

// providerSemaphore is a counting semaphore bounded by a provider's
// configured concurrency limit; one instance per provider key, per §5's
// shared-resource table.
type providerSemaphore struct {
	ch chan struct{}
}

func newProviderSemaphore(limit int) *providerSemaphore {
	if limit <= 0 {
		limit = 1
	}
	return &providerSemaphore{ch: make(chan struct{}, limit)}
}

func (s *providerSemaphore) acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *providerSemaphore) release() { <-s.ch }

// Scheduler is the fixed worker pool. Workers are general-purpose; the
// per-provider semaphore is what actually bounds provider concurrency, so
// WorkerCount only needs to be >= the sum of provider limits to avoid
// starvation, matching the fixed-pool-size convention used elsewhere in
// this codebase.
type Scheduler struct {
	workerCount int
	defaultProviderLimit int
	providerLimits       map[string]int

	mu         sync.Mutex
	semaphores map[string]*providerSemaphore

	tasks   chan taskEnvelope
	wg      sync.WaitGroup
	log     *slog.Logger

	shuttingDown atomic.Bool
	stats        Stats

	run TaskFunc
}

type taskEnvelope struct {
	task model.DownloadTask
	wc   *workctx.WorkContext
}

// New constructs a Scheduler with workerCount goroutines and per-provider
// concurrency limits (falling back to defaultProviderLimit).
func New(workerCount, defaultProviderLimit int, providerLimits map[string]int, run TaskFunc, log *slog.Logger) *Scheduler {
	if workerCount <= 0 {
		workerCount = 4
	}
	if defaultProviderLimit <= 0 {
		defaultProviderLimit = workerCount
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		workerCount:          workerCount,
		defaultProviderLimit: defaultProviderLimit,
		providerLimits:       providerLimits,
		semaphores:           map[string]*providerSemaphore{},
		tasks:                make(chan taskEnvelope, workerCount*4),
		log:                  log,
		run:                  run,
	}
	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return s
}

func (s *Scheduler) semaphoreFor(providerKey string) *providerSemaphore {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.semaphores[providerKey]
	if !ok {
		limit := s.defaultProviderLimit
		if l, ok := s.providerLimits[providerKey]; ok {
			limit = l
		}
		sem = newProviderSemaphore(limit)
		s.semaphores[providerKey] = sem
	}
	return sem
}

// ErrShuttingDown is returned by Submit after RequestShutdown.
type shutdownError struct{}

func (shutdownError) Error() string { return "scheduler: shutting down, submission rejected" }

var ErrShuttingDown error = shutdownError{}

// Submit enqueues a task for execution. Fast-fails once shutdown has been
// requested, per §4.4/§5's cancellation contract.
func (s *Scheduler) Submit(ctx context.Context, task model.DownloadTask, wc *workctx.WorkContext) error {
	if s.shuttingDown.Load() {
		return ErrShuttingDown
	}
	atomic.AddInt64(&s.stats.Pending, 1)
	select {
	case s.tasks <- taskEnvelope{task: task, wc: wc}:
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&s.stats.Pending, -1)
		return ctx.Err()
	}
}

func (s *Scheduler) worker(index int) {
	defer s.wg.Done()
	for env := range s.tasks {
		s.runOne(env, index)
	}
}

func (s *Scheduler) runOne(env taskEnvelope, workerIndex int) {
	atomic.AddInt64(&s.stats.Pending, -1)
	sem := s.semaphoreFor(env.task.ProviderKey)
	ctx := context.Background()
	if err := sem.acquire(ctx); err != nil {
		atomic.AddInt64(&s.stats.Failed, 1)
		return
	}
	defer sem.release()

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("scheduler: worker panic", "worker", workerIndex, "task_work_id", env.task.WorkID, "panic", r)
				atomic.AddInt64(&s.stats.Failed, 1)
			}
		}()
		err := s.run(ctx, env.wc, env.task)
		atomic.AddInt64(&s.stats.Completed, 1)
		if err != nil {
			s.log.Error("scheduler: task failed", "worker", workerIndex, "task_work_id", env.task.WorkID, "error", err)
			atomic.AddInt64(&s.stats.Failed, 1)
		} else {
			atomic.AddInt64(&s.stats.Succeeded, 1)
		}
	}()
}

// RequestShutdown rejects further submissions; in-flight tasks run to
// completion.
func (s *Scheduler) RequestShutdown() {
	s.shuttingDown.Store(true)
}

// Shutdown requests shutdown, closes the task channel, and waits (bounded
// by the caller's context) for all workers to drain.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.RequestShutdown()
	close(s.tasks)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// StatsSnapshot returns the current counters.
func (s *Scheduler) StatsSnapshot() Stats {
	return Stats{
		Pending:   atomic.LoadInt64(&s.stats.Pending),
		Completed: atomic.LoadInt64(&s.stats.Completed),
		Succeeded: atomic.LoadInt64(&s.stats.Succeeded),
		Failed:    atomic.LoadInt64(&s.stats.Failed),
	}
}
