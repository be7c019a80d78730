package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/config"
	"chronodownloader/internal/deferred"
	"chronodownloader/internal/model"
	"chronodownloader/internal/providers"
	"chronodownloader/internal/quota"
	"chronodownloader/internal/statestore"
	"chronodownloader/internal/workctx"
	"chronodownloader/internal/workmanager"
)

// fakeProvider is a minimal in-memory Provider used to exercise the pipeline
// without any network I/O.
type fakeProvider struct {
	key        string
	display    string
	results    []model.SearchResult
	failFirst  bool
	calls      int
	quotaOnce  bool
}

func (f *fakeProvider) Key() string     { return f.key }
func (f *fakeProvider) Display() string { return f.display }

func (f *fakeProvider) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	return f.results, nil
}

func (f *fakeProvider) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	f.calls++
	if f.quotaOnce && f.calls == 1 {
		return false, &providers.QuotaDeferred{ProviderKey: f.key}
	}
	if f.failFirst && f.calls == 1 {
		return false, nil
	}
	return true, nil
}

func newTestPipeline(t *testing.T, reg *providers.Registry) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	cs := config.NewStore(filepath.Join(dir, "config.json"))
	store := statestore.New(filepath.Join(dir, "state.json"), "", "")
	_, err := store.Load()
	require.NoError(t, err)
	qm := quota.New(cs, store)
	dq := deferred.New(store, 5)
	acc := budget.New(budget.Limits{}, budget.Skip)
	wm := workmanager.New(cs)
	return New(cs, reg, wm, qm, dq, acc, nil), dir
}

func TestSearchAndSelectPicksBestCandidate(t *testing.T) {
	fp := &fakeProvider{key: "internet_archive", display: "Internet Archive", results: []model.SearchResult{
		{ProviderKey: "internet_archive", Title: "The Great Work", Creators: []string{"Jane Doe"}, SourceID: "abc"},
	}}
	reg := providers.NewRegistry()
	reg.Register(fp)

	pl, dir := newTestPipeline(t, reg)
	doc := pl.Config.Get()
	doc.Providers["internet_archive"] = true
	doc.Selection.MinTitleScore = 50
	doc.Selection.ProviderHierarchy = []string{"internet_archive"}

	task, err := pl.SearchAndSelect(context.Background(), model.WorkInput{EntryID: "E1", Title: "The Great Work", Creator: "Jane Doe"}, dir)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, "internet_archive", task.ProviderKey)
}

func TestExecuteDownloadFallsBackToSecondCandidate(t *testing.T) {
	primary := &fakeProvider{key: "primary", display: "Primary", failFirst: true}
	secondary := &fakeProvider{key: "secondary", display: "Secondary"}
	reg := providers.NewRegistry()
	reg.Register(primary)
	reg.Register(secondary)

	pl, dir := newTestPipeline(t, reg)
	doc := pl.Config.Get()
	doc.Providers["primary"] = true
	doc.Providers["secondary"] = true
	doc.Selection.MinTitleScore = 0
	doc.Selection.ProviderHierarchy = []string{"primary", "secondary"}

	task := &model.DownloadTask{
		WorkID:      "w1",
		EntryID:     "E1",
		Title:       "Work",
		WorkDirPath: filepath.Join(dir, "work1"),
		ProviderKey: "primary",
		SelectedResult: model.SearchResult{ProviderKey: "primary", SourceID: "p1"},
		AllCandidates: []model.SearchResult{
			{ProviderKey: "primary", SourceID: "p1"},
			{ProviderKey: "secondary", SourceID: "s1"},
		},
	}
	require.NoError(t, pl.WorkMgr.WriteRecord(task.WorkDirPath, &model.WorkRecord{
		Input: model.WorkRecordInput{Title: "Work", EntryID: "E1"}, Status: model.StatusPending,
	}))

	wc := workctx.New("w1", "E1", "primary", "work")
	err := pl.ExecuteDownload(context.Background(), wc, *task)
	require.NoError(t, err)

	rec, err := pl.WorkMgr.ReadRecord(task.WorkDirPath)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, rec.Status)
	require.Equal(t, "Secondary", rec.Download.Provider)
}

func TestExecuteDownloadEnqueuesDeferredOnQuota(t *testing.T) {
	prov := &fakeProvider{key: "quota_limited", display: "Quota Limited", quotaOnce: true}
	reg := providers.NewRegistry()
	reg.Register(prov)

	pl, dir := newTestPipeline(t, reg)
	doc := pl.Config.Get()
	doc.Providers["quota_limited"] = true

	task := &model.DownloadTask{
		WorkID:      "w2",
		EntryID:     "E2",
		Title:       "Work",
		WorkDirPath: filepath.Join(dir, "work2"),
		ProviderKey: "quota_limited",
		SelectedResult: model.SearchResult{ProviderKey: "quota_limited", SourceID: "q1"},
	}
	require.NoError(t, pl.WorkMgr.WriteRecord(task.WorkDirPath, &model.WorkRecord{
		Input: model.WorkRecordInput{Title: "Work", EntryID: "E2"}, Status: model.StatusPending,
	}))

	wc := workctx.New("w2", "E2", "quota_limited", "work")
	err := pl.ExecuteDownload(context.Background(), wc, *task)
	require.NoError(t, err)

	rec, err := pl.WorkMgr.ReadRecord(task.WorkDirPath)
	require.NoError(t, err)
	require.Equal(t, model.StatusDeferred, rec.Status)
}
