package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/namelist"
	"github.com/polarmet/wrfpipe/internal/verify"
	"github.com/polarmet/wrfpipe/internal/workspace"
)

// RunRecorder persists run and stage progress. Implemented by the run
// store; nil disables persistence.
type RunRecorder interface {
	CreateRun(runID string, cfg *domain.RunConfig, scratchDir, outputDir string) error
	UpdateRunStatus(runID string, status domain.RunStatus) error
	RecordStageResult(runID string, res domain.StageResult) error
}

// StageObserver receives every finished stage result for aggregate
// metrics, alongside the store
type StageObserver interface {
	RecordStage(res domain.StageResult)
}

// Runner executes the ordered stage list for one run. Execution is
// strictly sequential: no stage begins before the previous stage's
// verdict is in.
type Runner struct {
	Config    *domain.RunConfig
	Workspace *workspace.Workspace
	Invoker   Invoker
	Rules     *verify.Ruleset
	RunID     string

	// Store receives progress records; nil disables persistence
	Store RunRecorder

	// Metrics receives finished stage results; nil disables
	Metrics StageObserver

	// Outputs declares the artifacts Finalize copies to the durable
	// output directory (paths or patterns relative to scratch)
	Outputs []string

	// KeepScratch retains the scratch directory after a clean run
	KeepScratch bool

	// MPICommand overrides the MPI launcher; defaults to "mpirun"
	MPICommand string

	// Progress receives human-readable progress lines; nil discards
	Progress io.Writer
}

// Run iterates the stage list in order. It halts on the first failure,
// returning the partial result and a *StageError; scratch contents are
// left in place for post-mortem inspection and nothing is retried.
func (r *Runner) Run(ctx context.Context, stages []Stage) (*domain.PipelineResult, error) {
	result := &domain.PipelineResult{
		RunID:      r.RunID,
		Case:       r.Config.Case,
		Status:     domain.RunRunning,
		ScratchDir: r.Workspace.ScratchDir,
		OutputDir:  r.Workspace.OutputDir,
		StartedAt:  time.Now(),
	}

	if r.Store != nil {
		if err := r.Store.CreateRun(r.RunID, r.Config, r.Workspace.ScratchDir, r.Workspace.OutputDir); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}

	for _, stage := range stages {
		if stage.Precondition != nil {
			if ok, reason := stage.Precondition(r.Config); !ok {
				res := domain.StageResult{
					Stage:     stage.Name,
					Outcome:   domain.Skipped(reason),
					StartedAt: time.Now(),
				}
				r.record(result, res)
				r.printf("stage %-16s skipped: %s\n", stage.Name, reason)
				continue
			}
		}

		for _, step := range stage.Steps {
			res, err := r.runStep(ctx, stage, step)
			r.record(result, res)

			if !res.Outcome.OK() {
				result.Status = domain.RunFailed
				result.FinishedAt = time.Now()
				r.setRunStatus(domain.RunFailed)

				tail := r.logTail(res.LogPath)
				if err == nil {
					err = &StageError{
						Stage:   stage.Name,
						Step:    step.Name,
						Outcome: res.Outcome,
						LogPath: res.LogPath,
						Tail:    tail,
					}
				}
				return result, err
			}
			r.printf("stage %-16s %s\n", stepLabel(stage, step), res.Outcome.Reason)
		}
	}

	if errs := r.finalize(); len(errs) > 0 {
		result.Status = domain.RunFailed
		result.FinishedAt = time.Now()
		r.setRunStatus(domain.RunFailed)
		return result, errors.Join(errs...)
	}

	result.Status = domain.RunCompleted
	result.FinishedAt = time.Now()
	r.setRunStatus(domain.RunCompleted)
	return result, nil
}

// runStep renders the stage's templates with this step's bindings and
// invokes the executable. The returned result always carries an outcome;
// the error is non-nil only for fatal pre-invocation problems.
func (r *Runner) runStep(ctx context.Context, stage Stage, step Step) (domain.StageResult, error) {
	res := domain.StageResult{
		Stage:     stage.Name,
		Step:      step.Name,
		StartedAt: time.Now(),
	}

	bindings, err := step.Bindings(r.Config)
	if err != nil {
		res.Outcome = domain.Failure(fmt.Sprintf("assembling bindings: %v", err))
		return res, fmt.Errorf("stage %s: %w", stage.Name, err)
	}

	for _, tpl := range stage.Templates {
		dst := filepath.Join(r.Workspace.ScratchDir, tpl.Dst)
		unused, err := namelist.RenderFile(tpl.Src, dst, bindings)
		if err != nil {
			// Template/bindings mismatch is fatal before any
			// executable runs
			res.Outcome = domain.Failure(fmt.Sprintf("rendering %s: %v", tpl.Dst, err))
			return res, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		for _, name := range unused {
			r.printf("stage %-16s warning: binding %s not referenced by %s\n", stage.Name, name, tpl.Dst)
		}
	}

	args := stage.Args
	if stage.ArgsFn != nil {
		args = stage.ArgsFn(r.Config)
	}
	inv := Invocation{
		Exe:     stage.Exe,
		Args:    args,
		Dir:     r.Workspace.ScratchDir,
		LogPath: filepath.Join(r.Workspace.ScratchDir, logName(stage, step)),
	}
	if stage.StdinFile != "" {
		inv.StdinPath = filepath.Join(r.Workspace.ScratchDir, stage.StdinFile)
	}
	if !filepath.IsAbs(inv.Exe) {
		inv.Exe = "./" + inv.Exe
	}
	if stage.MPIProcs > 0 {
		launcher := r.MPICommand
		if launcher == "" {
			launcher = "mpirun"
		}
		inv.Args = append([]string{"-n", strconv.Itoa(stage.MPIProcs), inv.Exe}, inv.Args...)
		inv.Exe = launcher
	}

	invRes, err := r.Invoker.Invoke(ctx, inv)
	if err != nil {
		res.Outcome = domain.Failure(fmt.Sprintf("invoking %s: %v", stage.Exe, err))
		res.LogPath = inv.LogPath
		res.Duration = time.Since(res.StartedAt)
		return res, nil
	}

	res.ExitCode = invRes.ExitCode
	res.LogPath = invRes.LogPath
	if stage.LogFile != "" {
		res.LogPath = filepath.Join(r.Workspace.ScratchDir, stage.LogFile)
	}
	res.Duration = time.Since(res.StartedAt)

	logText, readErr := os.ReadFile(res.LogPath)
	if readErr != nil {
		res.Outcome = domain.Indeterminate(fmt.Sprintf("log unreadable: %v", readErr))
		return res, nil
	}

	verdict := r.Rules.Check(string(logText), stage.Kind, invRes.ExitCode)
	res.Outcome = outcomeFromVerdict(verdict)
	return res, nil
}

// outcomeFromVerdict maps the verifier's verdict onto the pipeline
// outcome. Either direction of exit-status disagreement, a success
// sentence with a non-zero exit or a failure marker with a zero exit,
// is recorded as indeterminate so the operator reads the log; both
// still halt the run.
func outcomeFromVerdict(v verify.Verdict) domain.Outcome {
	switch {
	case v.ExitMismatch:
		return domain.Indeterminate(v.Reason())
	case v.OK:
		return domain.Success(v.Reason())
	case v.Indeterminate:
		return domain.Indeterminate(v.Reason())
	default:
		return domain.Failure(v.Reason())
	}
}

// finalize transfers declared outputs plus the per-stage logs and
// rendered configurations for reproducibility
func (r *Runner) finalize() []error {
	outputs := append([]string{}, r.Outputs...)
	// Logs and rendered namelists travel with the outputs when present;
	// unlike declared outputs their absence is not an error
	for _, pat := range []string{"*.log", "namelist.*", "rsl.out.*", "rsl.error.*"} {
		if m, _ := filepath.Glob(filepath.Join(r.Workspace.ScratchDir, pat)); len(m) > 0 {
			outputs = append(outputs, pat)
		}
	}

	errs := r.Workspace.Finalize(outputs, !r.KeepScratch)
	for _, err := range errs {
		r.printf("output transfer: %v\n", err)
	}
	return errs
}

func (r *Runner) record(result *domain.PipelineResult, res domain.StageResult) {
	result.Stages = append(result.Stages, res)
	if r.Store != nil {
		if err := r.Store.RecordStageResult(r.RunID, res); err != nil {
			r.printf("warning: recording stage result: %v\n", err)
		}
	}
	if r.Metrics != nil {
		r.Metrics.RecordStage(res)
	}
}

func (r *Runner) setRunStatus(status domain.RunStatus) {
	if r.Store != nil {
		if err := r.Store.UpdateRunStatus(r.RunID, status); err != nil {
			r.printf("warning: updating run status: %v\n", err)
		}
	}
}

func (r *Runner) printf(format string, args ...interface{}) {
	if r.Progress != nil {
		fmt.Fprintf(r.Progress, format, args...)
	}
}

// logTail reads the final lines of a stage log for the failure report
func (r *Runner) logTail(logPath string) []string {
	if logPath == "" {
		return nil
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil
	}
	return verify.Tail(string(data), verify.TailWindow)
}

func stepLabel(stage Stage, step Step) string {
	if step.Name == "" {
		return stage.Name
	}
	return stage.Name + "/" + step.Name
}

// logName is the conventional per-invocation log filename in scratch
func logName(stage Stage, step Step) string {
	if step.Name == "" {
		return stage.Name + ".log"
	}
	return stage.Name + "_" + step.Name + ".log"
}
