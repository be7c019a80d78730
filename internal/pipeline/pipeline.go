// Package pipeline implements C14: the two-phase orchestrator. Phase 1
// (search_and_select) runs in the caller's goroutine so provider search
// responses retain strict priority for selection; phase 2
// (execute_download) runs inside a scheduler worker and may be invoked
// directly by the façade in sequential mode.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/config"
	"chronodownloader/internal/deferred"
	"chronodownloader/internal/model"
	"chronodownloader/internal/providers"
	"chronodownloader/internal/quota"
	"chronodownloader/internal/selector"
	"chronodownloader/internal/workctx"
	"chronodownloader/internal/workmanager"
)

// Pipeline wires together the selector, work manager, provider registry,
// quota manager, deferred queue, and budget accountant into the two-phase
// flow described in §4.4.
type Pipeline struct {
	Config     *config.Store
	Registry   *providers.Registry
	WorkMgr    *workmanager.Manager
	Quota      *quota.Manager
	Deferred   *deferred.Queue
	Budget     *budget.Accountant
	Log        *slog.Logger
}

// New constructs a Pipeline.
func New(cfg *config.Store, reg *providers.Registry, wm *workmanager.Manager, qm *quota.Manager, dq *deferred.Queue, acc *budget.Accountant, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{Config: cfg, Registry: reg, WorkMgr: wm, Quota: qm, Deferred: dq, Budget: acc, Log: log}
}

// SearchAndSelect is phase 1, §4.4 step-by-step.
func (p *Pipeline) SearchAndSelect(ctx context.Context, input model.WorkInput, baseDir string) (*model.DownloadTask, error) {
	doc := p.Config.Get()
	workDir := p.WorkMgr.WorkDir(baseDir, input.EntryID, input.Title)

	if skip, reason := p.WorkMgr.ShouldSkip(workDir); skip {
		p.Log.Info(reason, "entry_id", input.EntryID, "title", input.Title)
		return nil, nil
	}

	var candidates []model.SearchResult
	if input.DirectManifestURL != "" {
		candidates = []model.SearchResult{providers.CandidateFromManifestURL(input.Title, input.Creator, input.DirectManifestURL)}
	} else {
		candidates = p.collectCandidates(ctx, doc, input)
	}

	best, ranked := selector.SelectBest(input.Title, input.Creator, candidates, doc)

	allCandidates := make([]model.SearchResult, len(ranked))
	for i, r := range ranked {
		allCandidates[i] = r.Candidate
	}

	snapshot, _ := json.Marshal(doc.Selection)
	workID := workmanager.WorkID(input.Title, input.Creator)

	rec := &model.WorkRecord{
		Input:                   model.WorkRecordInput{Title: input.Title, Creator: input.Creator, EntryID: input.EntryID},
		CreatedAt:               time.Now().UTC().Format(time.RFC3339),
		Status:                  model.StatusPending,
		SelectionConfigSnapshot: snapshot,
		Candidates:              allCandidates,
	}

	if best == nil {
		rec.Status = model.StatusNoMatch
		_ = p.WorkMgr.WriteRecord(workDir, rec)
		return nil, nil
	}

	rec.Selected = &model.Selected{ProviderKey: best.ProviderKey, SourceID: best.SourceID, Title: best.Title}
	if err := p.WorkMgr.WriteRecord(workDir, rec); err != nil {
		return nil, err
	}

	priority := map[string]int{}
	for i, key := range doc.Selection.ProviderHierarchy {
		priority[key] = i
	}

	return &model.DownloadTask{
		WorkID:                  workID,
		EntryID:                 input.EntryID,
		Title:                   input.Title,
		Creator:                 input.Creator,
		WorkDirPath:             workDir,
		WorkStem:                workmanager.WorkDirName(input.EntryID, input.Title),
		SelectedResult:          *best,
		ProviderKey:             best.ProviderKey,
		ProviderDisplay:         best.ProviderDisplay,
		AllCandidates:           allCandidates,
		ProviderPriority:        priority,
		SelectionConfigSnapshot: snapshot,
		BaseOutputDir:           baseDir,
		WorkRecordPath:          p.WorkMgr.RecordPath(workDir),
	}, nil
}

func (p *Pipeline) collectCandidates(ctx context.Context, doc *config.Document, input model.WorkInput) []model.SearchResult {
	var all []model.SearchResult
	for _, key := range orderedProviders(doc) {
		if !doc.ProviderEnabled(key) {
			continue
		}
		prov, ok := p.Registry.Get(key)
		if !ok {
			continue
		}
		ps := doc.ProviderSetting(key)
		results, err := prov.Search(ctx, nil, input.Title, input.Creator, ps.MaxResults)
		if err != nil {
			p.Log.Warn("provider search failed", "provider", key, "error", err)
			continue
		}
		max := doc.Selection.MaxCandidatesPerProvider
		if max > 0 && len(results) > max {
			results = results[:max]
		}
		all = append(all, results...)

		if doc.Selection.Strategy == "sequential_first_hit" && len(results) > 0 {
			scored := make([]model.SearchResult, len(results))
			copy(scored, results)
			selector.AttachScores(input.Title, input.Creator, scored, doc.Selection.CreatorWeight)
			min := selector.EffectiveMinScore(doc, key)
			for _, c := range scored {
				if selector.PassesThreshold(c, min) {
					return all
				}
			}
		}
	}
	return all
}

func orderedProviders(doc *config.Document) []string {
	seen := map[string]bool{}
	var out []string
	for _, key := range doc.Selection.ProviderHierarchy {
		if !seen[key] {
			out = append(out, key)
			seen[key] = true
		}
	}
	for key := range doc.Providers {
		if !seen[key] {
			out = append(out, key)
			seen[key] = true
		}
	}
	return out
}

// ExecuteDownload is phase 2, §4.4. It runs inside a scheduler worker (or
// synchronously in sequential façade mode).
func (p *Pipeline) ExecuteDownload(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) error {
	doc := p.Config.Get()

	ok, usedProvider, usedSource, deferredErr := p.tryDownload(ctx, wc, task, task.ProviderKey, task.SelectedResult)
	if deferredErr != nil {
		return p.handleDeferred(task, deferredErr)
	}
	if !ok {
		ok, usedProvider, usedSource = p.fallback(ctx, wc, task)
	}

	if ok {
		if doc.Selection.DownloadStrategy == "all" {
			p.downloadRemaining(ctx, wc, task, usedProvider, usedSource)
		}
		return p.WorkMgr.UpdateStatus(task.WorkDirPath, model.StatusCompleted, &model.Download{Provider: usedProvider, SourceID: usedSource})
	}

	return p.WorkMgr.UpdateStatus(task.WorkDirPath, model.StatusFailed, nil)
}

func (p *Pipeline) tryDownload(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask, providerKey string, result model.SearchResult) (bool, string, string, error) {
	prov, ok := p.Registry.Get(providerKey)
	if !ok {
		return false, "", "", nil
	}
	pwc := wc.WithProvider(providerKey)
	ok2, err := prov.Download(ctx, pwc, result, task.WorkDirPath)
	if qd, isQD := providers.AsQuotaDeferred(err); isQD {
		return false, providerKey, result.SourceID, qd
	}
	if err != nil || !ok2 {
		return false, "", "", nil
	}
	if p.Quota != nil {
		p.Quota.RecordDownload(providerKey)
	}
	return true, prov.Display(), result.SourceID, nil
}

func (p *Pipeline) handleDeferred(task model.DownloadTask, qd *providers.QuotaDeferred) error {
	raw, _ := json.Marshal(task.SelectedResult)
	_, err := p.Deferred.Add(model.DeferredItem{
		Title:           task.Title,
		Creator:         task.Creator,
		EntryID:         task.EntryID,
		ProviderKey:     qd.ProviderKey,
		ProviderDisplay: task.ProviderDisplay,
		SourceID:        task.SelectedResult.SourceID,
		WorkDirPath:     task.WorkDirPath,
		BaseOutputDir:   task.BaseOutputDir,
		ItemURL:         task.SelectedResult.ItemURL,
		ResetTime:       qd.ResetTime.UTC().Format(time.RFC3339),
		RawProviderData: raw,
	})
	if err != nil {
		p.Log.Error("failed to enqueue deferred item", "error", err)
	}
	return p.WorkMgr.UpdateStatus(task.WorkDirPath, model.StatusDeferred, nil)
}

// fallback iterates the remaining ranked candidates in order, skipping only
// the exact failed (provider_key, source_id) pair rather than the whole
// failed provider.
func (p *Pipeline) fallback(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) (bool, string, string) {
	for _, c := range task.AllCandidates {
		if c.ProviderKey == task.ProviderKey && c.SourceID == task.SelectedResult.SourceID {
			continue
		}
		ok, display, sourceID, qd := p.tryDownload(ctx, wc, task, c.ProviderKey, c)
		if qd != nil {
			continue // skip this candidate only, keep trying others
		}
		if ok {
			return true, display, sourceID
		}
	}
	return false, "", ""
}

func (p *Pipeline) downloadRemaining(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask, usedProvider, usedSource string) {
	doc := p.Config.Get()
	for _, c := range task.AllCandidates {
		if c.ProviderKey == task.ProviderKey && c.SourceID == task.SelectedResult.SourceID {
			continue
		}
		min := selector.EffectiveMinScore(doc, c.ProviderKey)
		if !selector.PassesThreshold(c, min) {
			continue
		}
		if _, _, _, qd := p.tryDownload(ctx, wc, task, c.ProviderKey, c); qd != nil {
			p.Log.Warn("secondary candidate deferred, skipping (primary-only enqueue policy)", "provider", c.ProviderKey)
		}
	}
}

// WorkStem returns the per-file naming prefix for a task: its work stem
// joined under the work directory's objects/ folder.
func WorkStem(task model.DownloadTask) string {
	return filepath.Join(task.WorkDirPath, "objects", task.WorkStem)
}
