package csvio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/model"
)

func writeInputCSV(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadInputTableParsesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	writeInputCSV(t, path, "entry_id,short_title,main_author,direct_link,retrievable,link,download_provider,download_timestamp\nE0001,The Great Work,Jane Doe,,,,,\n")

	table, err := LoadInputTable(path)
	require.NoError(t, err)
	rows := table.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, "E0001", rows[0].EntryID)
	require.False(t, rows[0].Completed())
}

func TestLoadInputTableSynthesizesMissingEntryID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	writeInputCSV(t, path, "entry_id,short_title,main_author,direct_link,retrievable,link,download_provider,download_timestamp\n,Title One,Author,,,,,\n")

	table, err := LoadInputTable(path)
	require.NoError(t, err)
	rows := table.Rows()
	require.Equal(t, "E0001", rows[0].EntryID)
}

func TestUpdateSuccessPersistsAndMarksCompleted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	writeInputCSV(t, path, "entry_id,short_title,main_author,direct_link,retrievable,link,download_provider,download_timestamp\nE0001,Title,Author,,,,,\n")

	table, err := LoadInputTable(path)
	require.NoError(t, err)
	require.NoError(t, table.UpdateSuccess("E0001", "abc123", "internet_archive", time.Now()))

	reloaded, err := LoadInputTable(path)
	require.NoError(t, err)
	rows := reloaded.Rows()
	require.True(t, rows[0].Completed())
	require.Equal(t, "internet_archive", rows[0].DownloadProvider)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestToWorkInputRejectsEmptyRow(t *testing.T) {
	row := InputRow{EntryID: "E1"}
	_, ok := row.ToWorkInput()
	require.False(t, ok)
}

func TestToWorkInputAcceptsDirectLinkOnly(t *testing.T) {
	row := InputRow{EntryID: "E1", DirectLink: "https://example.org/manifest.json"}
	input, ok := row.ToWorkInput()
	require.True(t, ok)
	require.Equal(t, "https://example.org/manifest.json", input.DirectManifestURL)
}

func TestIndexWriterAppendsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.csv")
	w, err := NewIndexWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(model.IndexRow{WorkID: "work-1", EntryID: "E1", Title: "Title"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "work-1")
}
