// Package retry implements C12: a background daemon that polls the
// deferred queue and re-invokes downloads whose reset time has passed.
// Grounded on original_source's main's background retry loop and the
// goroutine-plus-channel daemon shape used by internal/engine's executor
// ticker loops.
package retry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chronodownloader/internal/deferred"
	"chronodownloader/internal/model"
	"chronodownloader/internal/providers"
	"chronodownloader/internal/quota"
	"chronodownloader/internal/workctx"
)

var constructed int32

// Scheduler is the singleton background retry daemon; only one instance may
// be constructed per process, enforced at construction time per §9.
type Scheduler struct {
	Queue         *deferred.Queue
	Quota         *quota.Manager
	Registry      *providers.Registry
	CheckInterval time.Duration
	Log           *slog.Logger

	mu      sync.Mutex
	running bool
	paused  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs the retry Scheduler. Calling this twice in one process is
// a programming error.
func New(q *deferred.Queue, qm *quota.Manager, reg *providers.Registry, checkInterval time.Duration, log *slog.Logger) *Scheduler {
	if !atomic.CompareAndSwapInt32(&constructed, 0, 1) {
		panic("retry.Scheduler constructed more than once per process")
	}
	if checkInterval <= 0 {
		checkInterval = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{Queue: q, Quota: qm, Registry: reg, CheckInterval: checkInterval, Log: log}
}

// Start begins the poll loop in a background goroutine. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx)
}

// Pause temporarily suspends polling without stopping the goroutine.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume un-pauses polling.
func (s *Scheduler) Resume() { s.paused.Store(false) }

// Stop signals the loop to exit and waits up to timeout for it to join.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		if !s.sleepChunked(ctx, s.CheckInterval) {
			return
		}
		if s.paused.Load() {
			continue
		}
		s.drain(ctx)
	}
}

// sleepChunked sleeps in <=10s chunks so Stop is responsive even with a long
// check interval, per §4.5 step 1.
func (s *Scheduler) sleepChunked(ctx context.Context, total time.Duration) bool {
	const chunk = 10 * time.Second
	remaining := total
	for remaining > 0 {
		d := chunk
		if remaining < d {
			d = remaining
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		remaining -= d
	}
	return true
}

func (s *Scheduler) drain(ctx context.Context) {
	ready, err := s.Queue.GetReady()
	if err != nil {
		s.Log.Error("retry: failed to list ready deferred items", "error", err)
		return
	}
	for _, item := range ready {
		s.retryOne(ctx, item)
	}
}

func (s *Scheduler) retryOne(ctx context.Context, item model.DeferredItem) {
	allowed, wait := s.Quota.CanDownload(item.ProviderKey)
	if !allowed {
		_ = s.Queue.RefreshResetTime(item.ID, time.Now().Add(wait))
		return
	}

	provider, ok := s.Registry.Get(item.ProviderKey)
	if !ok {
		_ = s.Queue.MarkFailed(item.ID, "provider not registered: "+item.ProviderKey)
		return
	}

	var result model.SearchResult
	_ = deferred.RawPayload(item, &result)
	if result.ProviderKey == "" {
		result = model.SearchResult{
			ProviderKey:     item.ProviderKey,
			ProviderDisplay: item.ProviderDisplay,
			Title:           item.Title,
			SourceID:        item.SourceID,
			ItemURL:         item.ItemURL,
		}
	}

	wc := workctx.New("", item.EntryID, item.ProviderKey, "")
	ok2, derr := provider.Download(ctx, wc, result, item.WorkDirPath)
	if qd, isQD := providers.AsQuotaDeferred(derr); isQD {
		_ = s.Queue.MarkRetrying(item.ID, &qd.ResetTime)
		return
	}
	if derr != nil || !ok2 {
		_ = s.Queue.MarkRetrying(item.ID, nil)
		return
	}
	s.Quota.RecordDownload(item.ProviderKey)
	_ = s.Queue.MarkCompleted(item.ID)
}
