// Package pipeline sequences the fixed, ordered list of preprocessing
// stages: each stage renders its configuration, invokes one external
// executable in the run's scratch directory, and is verified against its
// log output before the next stage may begin.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/namelist"
	"github.com/polarmet/wrfpipe/internal/verify"
)

// Template pairs a template source file with the conventional filename
// the stage executable expects inside the scratch directory
type Template struct {
	Src string
	// Dst is relative to scratch (e.g. "namelist.wps")
	Dst string
}

// Step is one invocation of a stage's executable. Most stages have a
// single step; the real stage has two ordered steps that differ only in
// their bound values.
type Step struct {
	// Name distinguishes sub-steps of a multi-pass stage; empty for
	// single-step stages
	Name string
	// Bindings assembles the placeholder values for this step from the
	// run configuration (and derived parameters)
	Bindings func(cfg *domain.RunConfig) (namelist.Bindings, error)
}

// Stage is one ordered step of the pipeline
type Stage struct {
	Name string
	Kind verify.StageKind

	// Exe is the executable path; relative paths resolve inside scratch
	Exe  string
	Args []string

	// ArgsFn assembles run-dependent arguments from the run
	// configuration; when set it replaces Args
	ArgsFn func(cfg *domain.RunConfig) []string

	// MPIProcs > 0 runs the executable under mpirun
	MPIProcs int

	// Templates are rendered (per step) into scratch before invocation
	Templates []Template

	// StdinFile, when set, names a rendered file (relative to scratch)
	// fed to the executable on standard input; the chemistry
	// preprocessors take their control file that way
	StdinFile string

	// LogFile, when set, names the file (relative to scratch) that the
	// executable writes its diagnostics to; the verifier reads it
	// instead of the captured stdout/stderr (mpirun tools write
	// rsl.out.0000 style logs)
	LogFile string

	// Precondition may exclude the stage for this run; a skipped stage
	// is recorded as such, not treated as failure. Nil means always run.
	Precondition func(cfg *domain.RunConfig) (bool, string)

	// Steps holds the ordered invocations; at least one
	Steps []Step
}

// StageError is the fatal error halting the sequencer: a stage verified
// as failed, or could not be prepared
type StageError struct {
	Stage   string
	Step    string
	Outcome domain.Outcome
	LogPath string
	// Tail holds the final log lines for the operator
	Tail []string
}

func (e *StageError) Error() string {
	name := e.Stage
	if e.Step != "" {
		name = fmt.Sprintf("%s (%s)", e.Stage, e.Step)
	}
	msg := fmt.Sprintf("stage %s failed: %s", name, e.Outcome.Reason)
	if e.LogPath != "" {
		msg += fmt.Sprintf(" (full log: %s)", e.LogPath)
	}
	return msg
}

// TailString renders the log tail for display
func (e *StageError) TailString() string {
	return strings.Join(e.Tail, "\n")
}
