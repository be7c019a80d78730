package deferred

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/model"
	"chronodownloader/internal/statestore"
)

func newTestQueue(t *testing.T, maxRetries int) *Queue {
	t.Helper()
	dir := t.TempDir()
	store := statestore.New(filepath.Join(dir, "state.json"), "", "")
	_, err := store.Load()
	require.NoError(t, err)
	return New(store, maxRetries)
}

func TestAddDedupesNonTerminalPair(t *testing.T) {
	q := newTestQueue(t, 3)
	id1, err := q.Add(model.DeferredItem{EntryID: "E1", ProviderKey: "annas_archive", ResetTime: time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)})
	require.NoError(t, err)
	id2, err := q.Add(model.DeferredItem{EntryID: "E1", ProviderKey: "annas_archive", ResetTime: time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	ready, err := q.GetReady()
	require.NoError(t, err)
	require.Len(t, ready, 0) // reset time is in the future
}

func TestGetReadyReturnsPastDueItems(t *testing.T) {
	q := newTestQueue(t, 3)
	_, err := q.Add(model.DeferredItem{EntryID: "E1", ProviderKey: "annas_archive", ResetTime: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)})
	require.NoError(t, err)

	ready, err := q.GetReady()
	require.NoError(t, err)
	require.Len(t, ready, 1)
}

func TestMarkRetryingCapsAtMaxRetries(t *testing.T) {
	q := newTestQueue(t, 2)
	id, err := q.Add(model.DeferredItem{EntryID: "E1", ProviderKey: "annas_archive"})
	require.NoError(t, err)

	require.NoError(t, q.MarkRetrying(id, nil))
	require.NoError(t, q.MarkRetrying(id, nil))

	var status model.DeferredStatus
	err = q.Store.Mutate(func(doc *model.UnifiedState) {
		if it := find(doc, id); it != nil {
			status = it.Status
		}
	})
	require.NoError(t, err)
	require.Equal(t, model.DeferredFailed, status)
}

func TestMarkCompletedTransitionsStatus(t *testing.T) {
	q := newTestQueue(t, 3)
	id, err := q.Add(model.DeferredItem{EntryID: "E1", ProviderKey: "annas_archive"})
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(id))

	ready, err := q.GetReady()
	require.NoError(t, err)
	require.Len(t, ready, 0)
}
