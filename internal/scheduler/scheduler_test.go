package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

func TestSchedulerRunsSubmittedTasks(t *testing.T) {
	var completed int32
	s := New(2, 2, nil, func(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) error {
		atomic.AddInt32(&completed, 1)
		return nil
	}, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Submit(context.Background(), model.DownloadTask{WorkID: "w", ProviderKey: "p"}, workctx.New("w", "e", "p", "s")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Shutdown(ctx)

	require.EqualValues(t, 5, atomic.LoadInt32(&completed))
	stats := s.StatsSnapshot()
	require.EqualValues(t, 5, stats.Succeeded)
	require.EqualValues(t, 0, stats.Failed)
}

func TestSchedulerRecordsFailures(t *testing.T) {
	s := New(1, 1, nil, func(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) error {
		return context.DeadlineExceeded
	}, nil)

	require.NoError(t, s.Submit(context.Background(), model.DownloadTask{ProviderKey: "p"}, workctx.New("w", "e", "p", "s")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Shutdown(ctx)

	stats := s.StatsSnapshot()
	require.EqualValues(t, 1, stats.Failed)
}

func TestSchedulerRejectsSubmitAfterShutdownRequested(t *testing.T) {
	s := New(1, 1, nil, func(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) error {
		return nil
	}, nil)
	s.RequestShutdown()

	err := s.Submit(context.Background(), model.DownloadTask{}, workctx.New("w", "e", "p", "s"))
	require.ErrorIs(t, err, ErrShuttingDown)

	close(s.tasks)
}

func TestProviderSemaphoreBoundsConcurrency(t *testing.T) {
	sem := newProviderSemaphore(1)
	require.NoError(t, sem.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sem.acquire(ctx)
	require.Error(t, err) // second acquire blocks until release or ctx deadline

	sem.release()
}
