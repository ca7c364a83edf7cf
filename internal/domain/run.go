package domain

import (
	"fmt"
	"time"
)

// DomainSpec describes one model domain's grid geometry
type DomainSpec struct {
	// SpacingM is the grid spacing in meters (dx == dy)
	SpacingM float64
	// ExtentWE is the west-east grid extent in cells
	ExtentWE int
	// ExtentSN is the south-north grid extent in cells
	ExtentSN int
}

// RunConfig is the immutable description of one pipeline run.
// It is created once from user-supplied values and read-only afterwards.
type RunConfig struct {
	Case    string
	Comment string

	Start time.Time
	End   time.Time

	Domains []DomainSpec

	// Root paths; the per-run workspace is derived from these
	OutputRoot  string
	ScratchRoot string
	DataRoot    string
}

// Validate checks the config for values the pipeline cannot run with
func (c *RunConfig) Validate() error {
	if c.Case == "" {
		return fmt.Errorf("case name is required")
	}
	if c.Start.IsZero() || c.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if !c.End.After(c.Start) {
		return fmt.Errorf("end date %s is not after start date %s",
			c.End.Format(time.RFC3339), c.Start.Format(time.RFC3339))
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("at least one domain is required")
	}
	if c.ScratchRoot == "" || c.OutputRoot == "" {
		return fmt.Errorf("scratch_root and output_root are required")
	}
	return nil
}

// MaxDom returns the number of nested domains
func (c *RunConfig) MaxDom() int {
	return len(c.Domains)
}

// DateStamp returns the run's start date with hour precision, used in
// workspace paths and output naming (e.g. "2020031500")
func (c *RunConfig) DateStamp() string {
	return c.Start.Format("2006010215")
}

// BioSeason reports whether biogenic emissions are active for this run.
// The policy is seasonal: May through November inclusive is the growing
// season; December through April the biogenic branch is switched off.
func (c *RunConfig) BioSeason() bool {
	m := int(c.Start.Month())
	return m >= 5 && m <= 11
}

// StageResult records the verdict for one stage invocation
type StageResult struct {
	Stage string
	// Step distinguishes ordered sub-steps of a stage run more than once
	// (e.g. the two real passes); empty for single-invocation stages
	Step      string
	Outcome   Outcome
	LogPath   string
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}

// PipelineResult summarizes a whole pipeline run
type PipelineResult struct {
	RunID      string
	Case       string
	Status     RunStatus
	Stages     []StageResult
	ScratchDir string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// FailedStage returns the first failing stage result, or nil
func (r *PipelineResult) FailedStage() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Outcome.Status == OutcomeFailure {
			return &r.Stages[i]
		}
	}
	return nil
}
