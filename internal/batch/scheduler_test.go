package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestBatchConfig_Validate(t *testing.T) {
	cfg := BatchConfig{
		Name:  "overnight",
		Cron:  "0 22 * * *",
		Cases: []string{"/cases/arctic.toml"},
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}

	cfg.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Empty name should error")
	}

	cfg.Name = "overnight"
	cfg.Cases = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Batch without case files should error")
	}
}

func TestLoadScheduleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.toml")
	content := `
[[batch]]
name = "overnight"
cron = "0 22 * * *"
cases = ["/cases/arctic.toml", "/cases/alpine.toml"]
notify_on_complete = true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadScheduleConfig(path)
	if err != nil {
		t.Fatalf("LoadScheduleConfig() error = %v", err)
	}
	if len(cfg.Batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(cfg.Batches))
	}
	if len(cfg.Batches[0].Cases) != 2 {
		t.Errorf("cases = %v", cfg.Batches[0].Cases)
	}
	if !cfg.Batches[0].NotifyOnComplete {
		t.Error("notify_on_complete not loaded")
	}
}

func TestBatchScheduler_NextRun(t *testing.T) {
	cfg := BatchConfig{
		Name:  "test",
		Cron:  "0 22 * * *", // 10 PM daily
		Cases: []string{"/cases/a.toml"},
	}

	sched, err := NewScheduler([]BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}

	// Should be in the future
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}
}

func TestBatchScheduler_ShouldRun(t *testing.T) {
	cfg := BatchConfig{
		Name:  "test",
		Cron:  "* * * * *", // Every minute
		Cases: []string{"/cases/a.toml"},
	}

	sched, err := NewScheduler([]BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	// Mark as last run a while ago
	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)

	if !sched.ShouldRun("test") {
		t.Error("Should run after cron interval passed")
	}
}

func TestBatchScheduler_RunningBatchIsNotRestacked(t *testing.T) {
	cfg := BatchConfig{
		Name:  "test",
		Cron:  "* * * * *",
		Cases: []string{"/cases/a.toml"},
	}

	sched, err := NewScheduler([]BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}
	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)
	sched.MarkRunning("test")

	if sched.ShouldRun("test") {
		t.Error("A batch already running must not be started again")
	}

	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("A just-completed batch is not due again immediately")
	}
}
