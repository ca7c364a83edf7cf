//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/pipeline"
	"github.com/polarmet/wrfpipe/internal/runstore"
	"github.com/polarmet/wrfpipe/internal/verify"
	"github.com/polarmet/wrfpipe/internal/workspace"
)

func testRunConfig(t *testing.T, tools toolDirs) *domain.RunConfig {
	t.Helper()
	root := t.TempDir()
	cfg := &domain.RunConfig{
		Case:        "arctic2020",
		Start:       time.Date(2020, 7, 10, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2020, 7, 11, 0, 0, 0, 0, time.UTC),
		Domains:     []domain.DomainSpec{{SpacingM: 100_000, ExtentWE: 50, ExtentSN: 40}},
		ScratchRoot: filepath.Join(root, "scratch"),
		OutputRoot:  filepath.Join(root, "output"),
		DataRoot:    tools.DataRoot,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func testPaths(t *testing.T, tools toolDirs) pipeline.Paths {
	t.Helper()
	return pipeline.Paths{
		WPS:       tools.WPS,
		WRF:       tools.WRF,
		ChemUtils: tools.Chem,
		Templates: TemplatesDir(t),
		Vtable:    "Vtable.GFS",
	}
}

func prepare(t *testing.T, cfg *domain.RunConfig, paths pipeline.Paths, runID string) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Prepare(
		workspace.ScratchPath(cfg.ScratchRoot, cfg.Case, cfg.DateStamp(), runID),
		workspace.OutputPath(cfg.OutputRoot, cfg.Case, cfg.DateStamp()),
		false,
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.StageInputs(pipeline.RunInputs(cfg, paths)); err != nil {
		t.Fatal(err)
	}
	if err := pipeline.LinkGribFiles(ws, "fnl_*"); err != nil {
		t.Fatal(err)
	}
	return ws
}

// TestPipeline_FullRun drives the whole stage chain with fake tools and
// the repository's shipped templates, through the real invoker and the
// real run store.
func TestPipeline_FullRun(t *testing.T) {
	tools := fakeTools(t)
	cfg := testRunConfig(t, tools)
	paths := testPaths(t, tools)

	// A site-local enrichment script rewriting the met_em files between
	// metgrid and real; it prints no completion sentence
	enrichDir := t.TempDir()
	writeScript(t, enrichDir, "add_chloroa_wps",
		`test "$1" = "." || exit 1
test "$2" = "2020-07-10" || exit 1
test "$3" = "2020-07-11" || exit 1
test -e met_em.d01.2020-07-10_00:00:00.nc || exit 1
echo "Open met_em.d01.2020-07-10_00:00:00.nc"`)
	paths.EnrichScripts = []string{filepath.Join(enrichDir, "add_chloroa_wps")}

	ws := prepare(t, cfg, paths, "it-run-1")

	store, err := runstore.New(TempDBPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	runner := &pipeline.Runner{
		Config:    cfg,
		Workspace: ws,
		Invoker:   &pipeline.ExecInvoker{},
		Rules:     verify.DefaultRuleset(),
		RunID:     "it-run-1",
		Store:     store,
		Outputs:   []string{"wrfinput_d01", "wrfbdy_d01", "wrfout_d01*"},
	}

	result, err := runner.Run(context.Background(), pipeline.BuiltinStages(paths, pipeline.MPI{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != domain.RunCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}

	// Seven built-in stages plus the enrichment script; real runs twice
	// and megan is in season in July
	if len(result.Stages) != 9 {
		t.Errorf("stage results = %d, want 9", len(result.Stages))
	}

	for _, want := range []string{"wrfinput_d01", "wrfbdy_d01", "wrfout_d01_2020-07-10_00:00:00", "namelist.input"} {
		if _, err := os.Stat(filepath.Join(ws.OutputDir, want)); err != nil {
			t.Errorf("output %s missing: %v", want, err)
		}
	}
	if _, err := os.Stat(ws.ScratchDir); !os.IsNotExist(err) {
		t.Errorf("scratch %s should be removed after a clean run", ws.ScratchDir)
	}

	run, err := store.GetRun("it-run-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("stored status = %s, want completed", run.Status)
	}
	stages, err := store.StageResults("it-run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 9 {
		t.Errorf("stored stage results = %d, want 9", len(stages))
	}
}

// TestPipeline_FailureHaltsAndKeepsScratch replaces ungrib with a
// failing script and checks the run halts with the log tail preserved.
func TestPipeline_FailureHaltsAndKeepsScratch(t *testing.T) {
	tools := fakeTools(t)
	writeScript(t, tools.WPS, "ungrib.exe",
		`echo "FATAL: could not open GRIBFILE.AAA"
exit 1`)

	cfg := testRunConfig(t, tools)
	paths := testPaths(t, tools)
	ws := prepare(t, cfg, paths, "it-run-2")

	store, err := runstore.New(TempDBPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	runner := &pipeline.Runner{
		Config:    cfg,
		Workspace: ws,
		Invoker:   &pipeline.ExecInvoker{},
		Rules:     verify.DefaultRuleset(),
		RunID:     "it-run-2",
		Store:     store,
	}

	result, err := runner.Run(context.Background(), pipeline.BuiltinStages(paths, pipeline.MPI{}))
	if err == nil {
		t.Fatal("expected a stage error")
	}

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error type %T", err)
	}
	if stageErr.Stage != "ungrib" {
		t.Errorf("failed stage = %s, want ungrib", stageErr.Stage)
	}
	if !strings.Contains(stageErr.TailString(), "FATAL") {
		t.Errorf("tail missing failure marker: %q", stageErr.TailString())
	}
	if result.Status != domain.RunFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}

	// Scratch survives for post-mortem inspection
	if _, err := os.Stat(ws.ScratchDir); err != nil {
		t.Errorf("scratch should be retained on failure: %v", err)
	}

	run, err := store.GetRun("it-run-2")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != domain.RunFailed {
		t.Errorf("stored status = %s, want failed", run.Status)
	}
}
