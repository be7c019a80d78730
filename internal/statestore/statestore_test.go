package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/model"
)

func TestLoadCreatesFreshDocumentWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "state.json"), "", "")
	doc, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, doc.Quotas)
	require.Equal(t, stateVersion, doc.Version)
}

func TestMutateIsAtomicAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := New(path, "", "")
	_, err := s.Load()
	require.NoError(t, err)

	err = s.Mutate(func(doc *model.UnifiedState) {
		doc.Quotas["annas_archive"] = &model.ProviderQuota{ProviderKey: "annas_archive", DownloadsUsed: 1}
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk model.UnifiedState
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, 1, onDisk.Quotas["annas_archive"].DownloadsUsed)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file must not survive a successful save")
}

func TestLoadMigratesLegacySplitFiles(t *testing.T) {
	dir := t.TempDir()
	legacyQuotas := filepath.Join(dir, "quotas.json")
	legacyQueue := filepath.Join(dir, "deferred_queue.json")

	require.NoError(t, os.WriteFile(legacyQuotas, []byte(`{"annas_archive":{"provider_key":"annas_archive","downloads_used":2}}`), 0o644))
	require.NoError(t, os.WriteFile(legacyQueue, []byte(`[{"id":"abc","entry_id":"E1","provider_key":"annas_archive","status":"pending"}]`), 0o644))

	s := New(filepath.Join(dir, "state.json"), legacyQuotas, legacyQueue)
	doc, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, 2, doc.Quotas["annas_archive"].DownloadsUsed)
	require.Len(t, doc.DeferredItem, 1)
	require.Equal(t, "abc", doc.DeferredItem[0].ID)
}

func TestSecondLoadDoesNotReReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := New(path, "", "")
	_, err := s.Load()
	require.NoError(t, err)

	// mutate the on-disk file behind the store's back
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"9.9"}`), 0o644))

	doc, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, stateVersion, doc.Version)
}
