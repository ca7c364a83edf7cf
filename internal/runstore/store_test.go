package runstore

import (
	"testing"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
)

func testConfig() *domain.RunConfig {
	return &domain.RunConfig{
		Case:    "arctic2020",
		Comment: "spring transition case",
		Start:   time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2020, 3, 17, 0, 0, 0, 0, time.UTC),
		Domains: []domain.DomainSpec{
			{SpacingM: 100_000, ExtentWE: 50, ExtentSN: 40},
		},
		OutputRoot:  "/out",
		ScratchRoot: "/scratch",
	}
}

func TestStore_CreateAndGetRun(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := testConfig()
	if err := store.CreateRun("run-1", cfg, "/scratch/arctic2020_2020031500_run-1", "/out/arctic2020/2020031500"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}

	if got.Case != "arctic2020" {
		t.Errorf("Case = %q", got.Case)
	}
	if got.Comment != cfg.Comment {
		t.Errorf("Comment = %q, want %q", got.Comment, cfg.Comment)
	}
	if got.DateStamp != "2020031500" {
		t.Errorf("DateStamp = %q", got.DateStamp)
	}
	if got.MaxDom != 1 {
		t.Errorf("MaxDom = %d, want 1", got.MaxDom)
	}
	if got.Status != domain.RunRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
}

func TestStore_UpdateRunStatus(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.CreateRun("run-1", testConfig(), "/s", "/o"); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateRunStatus("run-1", domain.RunCompleted); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetRun("run-1")
	if got.Status != domain.RunCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := testConfig()
	for _, id := range []string{"run-1", "run-2"} {
		if err := store.CreateRun(id, cfg, "/s/"+id, "/o"); err != nil {
			t.Fatal(err)
		}
	}
	other := testConfig()
	other.Case = "alpine2021"
	if err := store.CreateRun("run-3", other, "/s/run-3", "/o"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateRunStatus("run-2", domain.RunFailed); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListRuns(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all runs count = %d, want 3", len(all))
	}

	arctic, err := store.ListRuns(ListOptions{Case: "arctic2020"})
	if err != nil {
		t.Fatal(err)
	}
	if len(arctic) != 2 {
		t.Errorf("arctic2020 runs count = %d, want 2", len(arctic))
	}

	failed, err := store.ListRuns(ListOptions{Status: domain.RunFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != "run-2" {
		t.Errorf("failed runs = %v, want run-2 only", failed)
	}

	limited, err := store.ListRuns(ListOptions{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited runs count = %d, want 1", len(limited))
	}
}

func TestStore_StageResults(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.CreateRun("run-1", testConfig(), "/s", "/o"); err != nil {
		t.Fatal(err)
	}

	results := []domain.StageResult{
		{
			Stage:     "geogrid",
			Outcome:   domain.Success(`found completion marker "Successful completion of program geogrid.exe"`),
			LogPath:   "/s/geogrid.log",
			StartedAt: time.Now(),
			Duration:  42 * time.Second,
		},
		{
			Stage:     "real",
			Step:      "init",
			Outcome:   domain.Success("found completion marker"),
			StartedAt: time.Now(),
		},
		{
			Stage:     "megan_bio_emiss",
			Outcome:   domain.Skipped("biogenic emissions off for March starts"),
			StartedAt: time.Now(),
		},
		{
			Stage:     "wrf",
			Outcome:   domain.Indeterminate("no recognized completion or failure marker in log tail"),
			ExitCode:  1,
			StartedAt: time.Now(),
		},
	}
	for _, res := range results {
		if err := store.RecordStageResult("run-1", res); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.StageResults("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("stage results count = %d, want 4", len(got))
	}

	// Execution order is preserved
	if got[0].Stage != "geogrid" || got[3].Stage != "wrf" {
		t.Errorf("order = %s ... %s", got[0].Stage, got[3].Stage)
	}
	if got[0].Duration != 42*time.Second {
		t.Errorf("Duration = %v, want 42s", got[0].Duration)
	}
	if got[1].Step != "init" {
		t.Errorf("Step = %q, want init", got[1].Step)
	}
	if got[2].Outcome.Status != domain.OutcomeSkipped {
		t.Errorf("skipped outcome = %q", got[2].Outcome.Status)
	}
	if !got[3].Outcome.Indeterminate {
		t.Error("indeterminate flag lost")
	}
	if got[3].ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", got[3].ExitCode)
	}
}
