// Package facade implements C15: the run-level orchestration entry point.
// It reads the input work table, classifies rows by resume policy, and
// drives the pipeline either sequentially or through the scheduler's worker
// pool, updating the input CSV as outcomes land. Each selected work gets one
// index.csv row, appended with status pending when its download task is
// created; that row is not updated with the final outcome. Grounded on
// internal/core's run-loop shape (batch iterate, per-item error isolation,
// final summary).
package facade

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/config"
	"chronodownloader/internal/csvio"
	"chronodownloader/internal/model"
	"chronodownloader/internal/pipeline"
	"chronodownloader/internal/scheduler"
	"chronodownloader/internal/workctx"
	"chronodownloader/internal/workmanager"
)

// Summary is the final run report.
type Summary struct {
	Total            int
	Skipped          int
	Completed        int
	Failed           int
	Deferred         int
	NoMatch          int
	BudgetExhausted  bool
}

// Runner drives one batch run over an input table.
type Runner struct {
	Config    *config.Store
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
	Budget    *budget.Accountant
	Input     *csvio.InputTable
	Index     *csvio.IndexWriter
	BaseDir   string
	Log       *slog.Logger
}

// New constructs a Runner.
func New(cfg *config.Store, pl *pipeline.Pipeline, sch *scheduler.Scheduler, acc *budget.Accountant, input *csvio.InputTable, index *csvio.IndexWriter, baseDir string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{Config: cfg, Pipeline: pl, Scheduler: sch, Budget: acc, Input: input, Index: index, BaseDir: baseDir, Log: log}
}

// Run processes every eligible row in the input table. mode selects
// "sequential" (each row's phase-1+phase-2 run inline, one at a time) or
// "parallel" (phase 1 runs inline per row for strict priority, phase 2 is
// submitted to the scheduler's worker pool), per §4.7.
func (r *Runner) Run(ctx context.Context, mode string) Summary {
	var sum Summary
	rows := r.Input.Rows()
	sum.Total = len(rows)

	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if r.Budget != nil && r.Budget.Exhausted() {
			sum.BudgetExhausted = true
			r.Log.Warn("budget exhausted, halting further row processing")
			break
		}
		if row.Completed() {
			sum.Skipped++
			continue
		}

		input, ok := row.ToWorkInput()
		if !ok {
			sum.Skipped++
			continue
		}

		task, err := r.Pipeline.SearchAndSelect(ctx, input, r.BaseDir)
		if err != nil {
			r.Log.Error("search_and_select failed", "entry_id", input.EntryID, "error", err)
			sum.Failed++
			_ = r.Input.UpdateFailure(input.EntryID)
			continue
		}
		if task == nil {
			sum.NoMatch++
			continue
		}

		r.recordIndex(*task)

		if mode == "parallel" && r.Scheduler != nil {
			wc := workctx.New(task.WorkID, task.EntryID, task.ProviderKey, workmanager.WorkDirName(task.EntryID, task.Title))
			if err := r.Scheduler.Submit(ctx, *task, wc); err != nil {
				r.Log.Error("scheduler submit failed", "entry_id", input.EntryID, "error", err)
				sum.Failed++
				_ = r.Input.UpdateFailure(input.EntryID)
				continue
			}
			// Outcome for this row is finalized asynchronously; the pipeline's
			// ExecuteDownload wrapper (wired by the caller) is responsible for
			// calling r.recordOutcome once the task completes.
			continue
		}

		r.runInlineAndRecord(ctx, *task, &sum)
	}

	return sum
}

func (r *Runner) runInlineAndRecord(ctx context.Context, task model.DownloadTask, sum *Summary) {
	wc := workctx.New(task.WorkID, task.EntryID, task.ProviderKey, workmanager.WorkDirName(task.EntryID, task.Title))
	err := r.Pipeline.ExecuteDownload(ctx, wc, task)
	r.recordOutcome(task, err, sum)
}

// recordOutcome updates the input CSV with the final per-row disposition.
// It is also called by TaskFunc, the scheduler wrapper used in parallel mode.
func (r *Runner) recordOutcome(task model.DownloadTask, execErr error, sum *Summary) {
	rec, err := r.readWorkRecord(task)
	if err != nil {
		if sum != nil {
			sum.Failed++
		}
		_ = r.Input.UpdateFailure(task.EntryID)
		return
	}

	switch rec.Status {
	case model.StatusCompleted, model.StatusPartial:
		if sum != nil {
			sum.Completed++
		}
		provider := task.ProviderDisplay
		link := task.SelectedResult.ItemURL
		if rec.Download != nil {
			provider = rec.Download.Provider
			link = ""
			for _, c := range task.AllCandidates {
				if c.SourceID == rec.Download.SourceID {
					link = c.ItemURL
					break
				}
			}
		}
		_ = r.Input.UpdateSuccess(task.EntryID, link, provider, time.Now())
	case model.StatusDeferred:
		if sum != nil {
			sum.Deferred++
		}
		_ = r.Input.UpdateDeferred(task.EntryID)
	default:
		if sum != nil {
			sum.Failed++
		}
		_ = r.Input.UpdateFailure(task.EntryID)
	}
}

func (r *Runner) readWorkRecord(task model.DownloadTask) (*model.WorkRecord, error) {
	mgr := workmanager.New(r.Config)
	return mgr.ReadRecord(task.WorkDirPath)
}

func (r *Runner) recordIndex(task model.DownloadTask) {
	if r.Index == nil {
		return
	}
	row := model.IndexRow{
		WorkID:              task.WorkID,
		EntryID:             task.EntryID,
		WorkDir:             task.WorkDirPath,
		Title:               task.Title,
		Creator:             task.Creator,
		SelectedProvider:    task.ProviderDisplay,
		SelectedProviderKey: task.ProviderKey,
		SelectedSourceID:    task.SelectedResult.SourceID,
		SelectedDir:         filepath.Join(task.WorkDirPath, "objects"),
		WorkJSON:            task.WorkRecordPath,
		Status:              string(model.StatusPending),
		ItemURL:             task.SelectedResult.ItemURL,
	}
	if err := r.Index.Append(row); err != nil {
		r.Log.Warn("failed to append index row", "entry_id", task.EntryID, "error", err)
	}
}

// TaskFunc adapts ExecuteDownload plus outcome recording into the
// scheduler.TaskFunc signature, letting parallel-mode submissions update the
// input CSV once their worker completes.
func (r *Runner) TaskFunc() func(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) error {
	return func(ctx context.Context, wc *workctx.WorkContext, task model.DownloadTask) error {
		err := r.Pipeline.ExecuteDownload(ctx, wc, task)
		r.recordOutcome(task, err, nil)
		return err
	}
}
