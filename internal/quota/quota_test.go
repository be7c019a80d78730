package quota

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/config"
	"chronodownloader/internal/statestore"
)

func writeJSON(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func newTestManager(t *testing.T, dailyLimit int, resetHours float64) *Manager {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, writeJSON(cfgPath, map[string]interface{}{
		"provider_settings": map[string]interface{}{
			"annas_archive": map[string]interface{}{
				"quota": map[string]interface{}{
					"enabled":     true,
					"daily_limit": dailyLimit,
					"reset_hours": resetHours,
				},
			},
		},
	}))
	cfg := config.NewStore(cfgPath)
	store := statestore.New(filepath.Join(dir, "state.json"), "", "")
	_, err := store.Load()
	require.NoError(t, err)
	return New(cfg, store)
}

func TestCanDownloadWithinLimit(t *testing.T) {
	m := newTestManager(t, 2, 24)
	allowed, _ := m.CanDownload("annas_archive")
	require.True(t, allowed)
	m.RecordDownload("annas_archive")
	allowed, _ = m.CanDownload("annas_archive")
	require.True(t, allowed)
}

func TestCanDownloadExhausted(t *testing.T) {
	m := newTestManager(t, 1, 24)
	allowed, _ := m.CanDownload("annas_archive")
	require.True(t, allowed)
	m.RecordDownload("annas_archive")
	allowed, wait := m.CanDownload("annas_archive")
	require.False(t, allowed)
	require.Greater(t, wait, time.Duration(0))
}

func TestQuotaResetsAfterWindow(t *testing.T) {
	m := newTestManager(t, 1, 0.0000001) // effectively instant reset window
	m.RecordDownload("annas_archive")
	time.Sleep(5 * time.Millisecond)
	allowed, _ := m.CanDownload("annas_archive")
	require.True(t, allowed)
}

func TestAllStatusesReportsKnownProviders(t *testing.T) {
	m := newTestManager(t, 3, 24)
	m.RecordDownload("annas_archive")
	statuses := m.AllStatuses()
	require.Len(t, statuses, 1)
	require.Equal(t, "annas_archive", statuses[0].ProviderKey)
	require.Equal(t, 1, statuses[0].DownloadsUsed)
}
