package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/polarmet/wrfpipe/internal/batch"
	"github.com/polarmet/wrfpipe/internal/config"
	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/namelist"
	"github.com/polarmet/wrfpipe/internal/notify"
	"github.com/polarmet/wrfpipe/internal/observer"
	"github.com/polarmet/wrfpipe/internal/params"
	"github.com/polarmet/wrfpipe/internal/pipeline"
	"github.com/polarmet/wrfpipe/internal/runstore"
	"github.com/polarmet/wrfpipe/internal/verify"
	"github.com/polarmet/wrfpipe/internal/workspace"
	"github.com/polarmet/wrfpipe/tui"
	"github.com/polarmet/wrfpipe/web/api"
)

var (
	runOverwrite   bool
	runKeepScratch bool
	renderStage    string
	checkExitCode  int
	listCase       string
	listStatus     string
	servePort      int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run CASE_FILE",
		Short: "Run the full preprocessing pipeline for a case",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().BoolVar(&runOverwrite, "overwrite", false, "discard an existing scratch directory for this run")
	runCmd.Flags().BoolVar(&runKeepScratch, "keep-scratch", false, "retain the scratch directory after a clean run")
	rootCmd.AddCommand(runCmd)

	// derive command
	deriveCmd := &cobra.Command{
		Use:   "derive CASE_FILE",
		Short: "Show the derived parameters for a case",
		Args:  cobra.ExactArgs(1),
		RunE:  runDerive,
	}
	rootCmd.AddCommand(deriveCmd)

	// render command
	renderCmd := &cobra.Command{
		Use:   "render CASE_FILE TEMPLATE",
		Short: "Render a namelist template for a case to stdout",
		Args:  cobra.ExactArgs(2),
		RunE:  runRender,
	}
	renderCmd.Flags().StringVar(&renderStage, "stage", "real", "stage whose bindings to render with")
	rootCmd.AddCommand(renderCmd)

	// check command
	checkCmd := &cobra.Command{
		Use:   "check KIND LOGFILE",
		Short: "Verify a stage log against the known markers",
		Args:  cobra.ExactArgs(2),
		RunE:  runCheck,
	}
	checkCmd.Flags().IntVar(&checkExitCode, "exit-code", 0, "exit status the stage process reported")
	rootCmd.AddCommand(checkCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&listCase, "case", "", "filter by case")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	rootCmd.AddCommand(listCmd)

	// logs command
	logsCmd := &cobra.Command{
		Use:   "logs RUN_ID",
		Short: "Show a run's stage verdicts",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	rootCmd.AddCommand(logsCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on")
	rootCmd.AddCommand(serveCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule [SCHEDULE_FILE]",
		Short: "Run batches of cases on a cron schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSchedule,
	}
	rootCmd.AddCommand(scheduleCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0755); err != nil {
		return nil, err
	}
	return runstore.New(cfg.General.DatabasePath)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

func sendCompletion(cfg *config.Config, result *domain.PipelineResult, runErr error) {
	n := notify.ForResult(result, runErr)
	if err := buildNotifier(cfg).Send(n); err != nil {
		fmt.Fprintf(os.Stderr, "notification failed: %v\n", err)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runCfg, err := config.LoadCase(args[0], cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executeRun(ctx, cfg, runCfg, store, os.Stdout)
	if result != nil {
		sendCompletion(cfg, result, err)
	}
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) && len(stageErr.Tail) > 0 {
			fmt.Fprintln(os.Stderr, "--- log tail ---")
			fmt.Fprintln(os.Stderr, stageErr.TailString())
		}
		return err
	}

	fmt.Printf("Run %s completed; outputs in %s\n", result.RunID, result.OutputDir)
	return nil
}

// executeRun prepares the workspace, stages inputs and drives the full
// stage sequence for one case
func executeRun(ctx context.Context, cfg *config.Config, runCfg *domain.RunConfig, store *runstore.Store, progress io.Writer) (*domain.PipelineResult, error) {
	runID := uuid.NewString()

	scratch := workspace.ScratchPath(runCfg.ScratchRoot, runCfg.Case, runCfg.DateStamp(), runID)
	output := workspace.OutputPath(runCfg.OutputRoot, runCfg.Case, runCfg.DateStamp())

	ws, err := workspace.Prepare(scratch, output, runOverwrite)
	if err != nil {
		return nil, err
	}

	paths := cfg.Paths()
	if err := ws.StageInputs(pipeline.RunInputs(runCfg, paths)); err != nil {
		return nil, err
	}
	if runCfg.DataRoot != "" {
		if err := pipeline.LinkGribFiles(ws, "fnl_*"); err != nil {
			return nil, err
		}
	}

	rules := verify.DefaultRuleset()
	if err := rules.LoadMarkers(cfg.Verify.MarkersFile); err != nil {
		return nil, err
	}

	obs := observer.New(15 * time.Minute)
	runner := &pipeline.Runner{
		Config:      runCfg,
		Workspace:   ws,
		Invoker:     &pipeline.ExecInvoker{},
		Rules:       rules,
		RunID:       runID,
		Store:       store,
		Metrics:     obs,
		Outputs:     []string{"wrfinput_d*", "wrfbdy_d*", "wrfout_d*"},
		KeepScratch: runKeepScratch || cfg.General.KeepScratch,
		MPICommand:  cfg.MPI.Command,
		Progress:    progress,
	}

	stages := pipeline.BuiltinStages(paths, cfg.MPISettings())
	result, err := runner.Run(ctx, stages)
	if result != nil && len(result.Stages) > 0 {
		m := obs.GetMetrics()
		fmt.Fprintf(progress, "stages: %d completed, %d skipped, %d failed; avg stage time %s\n",
			m.TotalCompleted, m.TotalSkipped, m.TotalFailed, m.AvgDuration.Round(time.Second))
	}
	return result, err
}

func runDerive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runCfg, err := config.LoadCase(args[0], cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tDX (m)\tE_WE\tE_SN\tWAVENUM_X\tWAVENUM_Y")
	for i, d := range runCfg.Domains {
		derived, err := params.Derive(runCfg, i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "d%02d\t%g\t%d\t%d\t%d\t%d\n",
			i+1, d.SpacingM, d.ExtentWE, d.ExtentSN, derived.WavenumberX, derived.WavenumberY)
	}
	w.Flush()

	bio := "off"
	if runCfg.BioSeason() {
		bio = "on"
	}
	fmt.Printf("\nDate stamp: %s  Max domains: %d  Biogenic emissions: %s\n",
		runCfg.DateStamp(), runCfg.MaxDom(), bio)
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runCfg, err := config.LoadCase(args[0], cfg)
	if err != nil {
		return err
	}

	stages := pipeline.BuiltinStages(cfg.Paths(), cfg.MPISettings())
	var bindings namelist.Bindings
	for _, s := range stages {
		if s.Name == renderStage {
			bindings, err = s.Steps[len(s.Steps)-1].Bindings(runCfg)
			if err != nil {
				return err
			}
			break
		}
	}
	if bindings == nil {
		return fmt.Errorf("unknown stage %q", renderStage)
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	out, unused, err := namelist.Render(string(data), bindings)
	if err != nil {
		return err
	}
	for _, name := range unused {
		fmt.Fprintf(os.Stderr, "warning: binding %s not referenced\n", name)
	}

	fmt.Print(out)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rules := verify.DefaultRuleset()
	if err := rules.LoadMarkers(cfg.Verify.MarkersFile); err != nil {
		return err
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	verdict := rules.Check(string(data), verify.StageKind(args[0]), checkExitCode)
	fmt.Println(verdict.Reason())

	if !verdict.OK || verdict.ExitMismatch {
		os.Exit(1)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{
		Case:   listCase,
		Status: domain.RunStatus(listStatus),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCASE\tDATE\tSTATUS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%.8s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Case, r.DateStamp, r.Status, humanize.Time(r.CreatedAt))
	}
	w.Flush()
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := resolveRunID(store, args[0])
	if err != nil {
		return err
	}

	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	results, err := store.StageResults(runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s  case %s  status %s\n\n", run.ID, run.Case, run.Status)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tSTATUS\tDURATION\tREASON")
	for _, res := range results {
		name := res.Stage
		if res.Step != "" {
			name += "/" + res.Step
		}
		status := string(res.Outcome.Status)
		if res.Outcome.Indeterminate {
			status += " (indeterminate)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, status, res.Duration.Round(time.Second), res.Outcome.Reason)
	}
	w.Flush()
	return nil
}

// resolveRunID accepts a full run ID or an unambiguous prefix
func resolveRunID(store *runstore.Store, prefix string) (string, error) {
	runs, err := store.ListRuns(runstore.ListOptions{})
	if err != nil {
		return "", err
	}

	var matches []string
	for _, r := range runs {
		if r.ID == prefix {
			return r.ID, nil
		}
		if len(prefix) >= 4 && len(r.ID) >= len(prefix) && r.ID[:len(prefix)] == prefix {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no run matching %q", prefix)
	default:
		return "", fmt.Errorf("run prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	p := tea.NewProgram(tui.NewModel(store), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watchLogs(ctx, store, server); err != nil {
		fmt.Fprintf(os.Stderr, "log streaming disabled: %v\n", err)
	}

	fmt.Printf("Starting web dashboard at http://%s\n", addr)
	return server.Run(ctx)
}

// watchLogs streams log growth of running pipelines to websocket
// clients and raises a stall event when a running stage's log has gone
// quiet
func watchLogs(ctx context.Context, store *runstore.Store, server *api.Server) error {
	var mu sync.Mutex
	byScratch := make(map[string]string)

	watcher, err := observer.NewLogWatcher(func(scratchDir string, files []string) {
		mu.Lock()
		runID := byScratch[scratchDir]
		mu.Unlock()
		if runID == "" {
			return
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				continue
			}
			lines := verify.Tail(string(data), verify.TailWindow)
			server.StreamLogLines(runID, filepath.Base(f), lines)
		}
	})
	if err != nil {
		return err
	}
	watcher.Start(ctx)

	obs := observer.New(15 * time.Minute)

	go func() {
		defer watcher.Stop()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runs, err := store.ListRuns(runstore.ListOptions{Status: domain.RunRunning})
				if err != nil {
					continue
				}

				mu.Lock()
				active := make(map[string]struct{}, len(runs))
				for _, r := range runs {
					active[r.ScratchDir] = struct{}{}
					byScratch[r.ScratchDir] = r.ID
					watcher.AddRun(r.ScratchDir)

					if log := newestLog(r.ScratchDir); log != "" && obs.IsStalled(log) {
						server.Broadcast(api.SSEEvent{Type: "stalled", Data: map[string]string{
							"run_id": r.ID,
							"log":    filepath.Base(log),
						}})
					}
				}
				for dir := range byScratch {
					if _, ok := active[dir]; !ok {
						watcher.RemoveRun(dir)
						delete(byScratch, dir)
					}
				}
				mu.Unlock()
			}
		}
	}()
	return nil
}

// newestLog returns the most recently written stage log in a scratch
// directory
func newestLog(scratchDir string) string {
	var newest string
	var newestMod time.Time
	for _, pat := range []string{"*.log", "rsl.out.*"} {
		matches, _ := filepath.Glob(filepath.Join(scratchDir, pat))
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if info.ModTime().After(newestMod) {
				newest = m
				newestMod = info.ModTime()
			}
		}
	}
	return newest
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var batches []batch.BatchConfig
	if len(args) == 1 {
		schedCfg, err := batch.LoadScheduleConfig(args[0])
		if err != nil {
			return err
		}
		batches = schedCfg.Batches
	} else if cfg.Batch.Schedule != "" {
		batches = []batch.BatchConfig{{
			Name:  "default",
			Cron:  cfg.Batch.Schedule,
			Cases: cfg.Batch.Cases,
		}}
	}
	if len(batches) == 0 {
		return fmt.Errorf("no batches defined (pass a schedule file or set [batch] in the config)")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sched, err := batch.NewScheduler(batches)
	if err != nil {
		return err
	}

	for _, b := range batches {
		fmt.Printf("Batch %s: next run %s (%d cases)\n",
			b.Name, humanize.Time(sched.NextRun(b.Name)), len(b.Cases))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	sched.Start(func(b batch.BatchConfig) error {
		for _, caseFile := range b.Cases {
			runCfg, err := config.LoadCase(caseFile, cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "batch %s: %v\n", b.Name, err)
				continue
			}
			result, err := executeRun(ctx, cfg, runCfg, store, os.Stdout)
			if b.NotifyOnComplete && result != nil {
				sendCompletion(cfg, result, err)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "batch %s: case %s: %v\n", b.Name, runCfg.Case, err)
			}
		}
		return nil
	})
	return nil
}
