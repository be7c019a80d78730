// Command chronodl is the CLI entrypoint wiring every collaborator package
// into the run/resume/quota-status subcommands. Collaborators are all
// constructed once at startup, mirroring a single App struct, and handed
// to a cobra root command instead of a GUI event loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/config"
	"chronodownloader/internal/csvio"
	"chronodownloader/internal/deferred"
	"chronodownloader/internal/facade"
	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/logger"
	"chronodownloader/internal/model"
	"chronodownloader/internal/netpolicy"
	"chronodownloader/internal/pipeline"
	"chronodownloader/internal/providers"
	"chronodownloader/internal/quota"
	"chronodownloader/internal/retry"
	"chronodownloader/internal/scheduler"
	"chronodownloader/internal/statestore"
	"chronodownloader/internal/workmanager"
)

var (
	configPath string
	inputCSV   string
	outputDir  string
	parallel   bool
)

func main() {
	root := &cobra.Command{
		Use:   "chronodl",
		Short: "ChronoDownloader: digitized-works download orchestration engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	root.PersistentFlags().StringVar(&inputCSV, "input", "", "path to input work table CSV")
	root.PersistentFlags().StringVar(&outputDir, "output", "", "base output directory")
	root.PersistentFlags().BoolVar(&parallel, "parallel", false, "run downloads through the worker pool instead of sequentially")

	root.AddCommand(runCmd(), resumeCmd(), quotaStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Store
	log      *slog.Logger
	store    *statestore.Store
	quota    *quota.Manager
	deferred *deferred.Queue
	budget   *budget.Accountant
	registry *providers.Registry
	wm       *workmanager.Manager
	pl       *pipeline.Pipeline
	retry    *retry.Scheduler
	sched    *scheduler.Scheduler
}

func buildApp(ctx context.Context) (*app, error) {
	cfg := config.NewStore(configPath)
	doc := cfg.Get()

	logDir := filepath.Join(os.TempDir(), "chronodownloader", "logs")
	log, err := logger.New(logDir, os.Stderr)
	if err != nil {
		return nil, err
	}

	netPolicy := netpolicy.New(netpolicy.ProviderPolicy{
		MinInterval:      200 * time.Millisecond,
		JitterMax:        100 * time.Millisecond,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	})

	client := httpclient.New(netPolicy, nil, cfg)

	store := statestore.New(doc.Deferred.StateFile, "quotas.json", "deferred_queue.json")
	if _, err := store.Load(); err != nil {
		log.Warn("state store load failed, starting fresh", "error", err)
	}

	quotaMgr := quota.New(cfg, store)
	deferredQueue := deferred.New(store, doc.Deferred.MaxRetries)
	if err := deferredQueue.CleanupOld(); err != nil {
		log.Warn("deferred queue cleanup failed", "error", err)
	}
	acct := budget.New(gbLimits(doc.DownloadLimits), budget.OnExceed(doc.DownloadLimits.OnExceed))

	registry := providers.Build(cfg, client, quotaMgr, acct)
	client.Hosts = registry

	wm := workmanager.New(cfg)
	pl := pipeline.New(cfg, registry, wm, quotaMgr, deferredQueue, acct, log)

	var retrySched *retry.Scheduler
	if doc.Deferred.BackgroundEnabled {
		retrySched = retry.New(deferredQueue, quotaMgr, registry, time.Duration(doc.Deferred.CheckIntervalMinutes)*time.Minute, log)
		retrySched.Start(ctx)
	}

	return &app{
		cfg: cfg, log: log, store: store, quota: quotaMgr, deferred: deferredQueue,
		budget: acct, registry: registry, wm: wm, pl: pl, retry: retrySched,
	}, nil
}

func gbLimits(dl config.DownloadLimits) budget.Limits {
	toBytes := func(b config.LimitBlock) map[model.ContentClass]int64 {
		return map[model.ContentClass]int64{
			model.ClassImages:   int64(b.ImagesGB * 1e9),
			model.ClassPDFs:     int64(b.PDFsGB * 1e9),
			model.ClassMetadata: int64(b.MetadataGB * 1e9),
		}
	}
	return budget.Limits{Total: toBytes(dl.Total), PerWork: toBytes(dl.PerWork)}
}

func (a *app) shutdown(timeout time.Duration) {
	if a.retry != nil {
		a.retry.Stop(timeout)
	}
	if a.sched != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.sched.Shutdown(ctx)
	}
	_ = a.store.Save()
}

func withCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

func runWithMode(mode string) error {
	ctx, cancel := withCancelContext()
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}

	csvPath := inputCSV
	if csvPath == "" {
		csvPath = a.cfg.Get().General.DefaultCSVPath
	}
	baseDir := outputDir
	if baseDir == "" {
		baseDir = a.cfg.Get().General.DefaultOutputDir
	}

	input, err := csvio.LoadInputTable(csvPath)
	if err != nil {
		return fmt.Errorf("loading input table: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}
	index, err := csvio.NewIndexWriter(filepath.Join(baseDir, "index.csv"))
	if err != nil {
		return fmt.Errorf("opening index.csv: %w", err)
	}

	runner := facade.New(a.cfg, a.pl, nil, a.budget, input, index, baseDir, a.log)

	if parallel {
		workers := a.cfg.Get().Download.MaxParallelDownloads
		a.sched = scheduler.New(workers, workers, a.cfg.Get().Download.ProviderConcurrency, runner.TaskFunc(), a.log)
		runner.Scheduler = a.sched
	}

	bar := progressbar.Default(int64(len(input.Rows())), "processing works")
	defer bar.Close()

	sum := runner.Run(ctx, mode)
	a.shutdown(30 * time.Second)

	printSummary(sum)
	if ctx.Err() != nil {
		return context.Canceled
	}
	return nil
}

func printSummary(sum facade.Summary) {
	fmt.Printf("total=%d skipped=%d completed=%d failed=%d deferred=%d no_match=%d\n",
		sum.Total, sum.Skipped, sum.Completed, sum.Failed, sum.Deferred, sum.NoMatch)
	if sum.BudgetExhausted {
		fmt.Println(color.YellowString("run halted early: download budget exhausted"))
	}
}

func modeFlag() string {
	if parallel {
		return "parallel"
	}
	return "sequential"
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every unretrieved row of the input work table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithMode(modeFlag())
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a prior run, honoring the configured resume_mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithMode(modeFlag())
		},
	}
}

func quotaStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota-status",
		Short: "Print current per-provider quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withCancelContext()
			defer cancel()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown(5 * time.Second)

			pendingDeferred := 0
			_ = a.store.Mutate(func(doc *model.UnifiedState) {
				for _, it := range doc.DeferredItem {
					if it.Status == model.DeferredPending || it.Status == model.DeferredRetrying {
						pendingDeferred++
					}
				}
			})
			fmt.Printf("deferred items pending: %d\n", pendingDeferred)

			statuses := a.quota.AllStatuses()
			if len(statuses) == 0 {
				fmt.Println("no provider quota usage recorded yet")
				return nil
			}
			for _, s := range statuses {
				line := fmt.Sprintf("%-20s used=%d/%d next_reset=%s", s.ProviderKey, s.DownloadsUsed, s.DailyLimit, s.NextReset.Format(time.RFC3339))
				if s.Exhausted {
					line = color.RedString(line + " EXHAUSTED")
				} else {
					line = color.GreenString(line)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
