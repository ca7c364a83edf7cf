// Package workspace owns the per-run directory layout: a transient
// scratch directory where the external executables run, and a durable
// output directory that receives the declared artifacts at finalize.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Workspace is the filesystem context for one pipeline run
type Workspace struct {
	// ScratchDir is transient per-run working storage, removed (or
	// retained for debugging) after the run
	ScratchDir string
	// OutputDir is durable and append-only from this run's perspective
	OutputDir string
}

// CollisionError reports a scratch directory that already holds files
// from an earlier run. Stale state must never be silently merged into a
// new run.
type CollisionError struct {
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("scratch directory %s already exists and is not empty (use overwrite to discard it)", e.Path)
}

// MissingInputError reports a declared required input that is absent
type MissingInputError struct {
	Source string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("required input not found: %s", e.Source)
}

// TransferError reports one output artifact that failed to reach the
// durable output directory. Finalize reports these per-file so the
// operator can tell exactly which expected output did not materialize.
type TransferError struct {
	Source string
	Dest   string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transferring %s to %s: %v", e.Source, e.Dest, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ScratchPath returns the deterministic scratch directory for a run.
// The run ID keeps concurrent runs of distinct cases/dates apart; two
// runs sharing case, date stamp and run ID must not execute concurrently
// (documented caller responsibility, not enforced by locking).
func ScratchPath(scratchRoot, caseName, dateStamp, runID string) string {
	return filepath.Join(scratchRoot, fmt.Sprintf("%s_%s_%s", caseName, dateStamp, runID))
}

// OutputPath returns the deterministic durable output directory for a
// (case, date), so repeated runs are discoverable and comparable
func OutputPath(outputRoot, caseName, dateStamp string) string {
	return filepath.Join(outputRoot, caseName, dateStamp)
}

// Prepare creates a fresh scratch directory and ensures the output
// directory exists. A non-empty scratch directory at the deterministic
// path fails with CollisionError unless overwrite was requested, in
// which case prior contents are removed first. The output directory is
// created if absent and never truncated.
func Prepare(scratchDir, outputDir string, overwrite bool) (*Workspace, error) {
	entries, err := os.ReadDir(scratchDir)
	switch {
	case err == nil && len(entries) > 0:
		if !overwrite {
			return nil, &CollisionError{Path: scratchDir}
		}
		if err := os.RemoveAll(scratchDir); err != nil {
			return nil, fmt.Errorf("removing stale scratch: %w", err)
		}
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("inspecting scratch: %w", err)
	}

	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	return &Workspace{ScratchDir: scratchDir, OutputDir: outputDir}, nil
}

// Input declares one required artifact to stage into scratch.
// Pattern sources stage every match; a pattern with no match is a
// missing input just like an absent file.
type Input struct {
	// Source is an absolute path or glob pattern
	Source string
	// Link stages a symlink instead of a copy (executables and large
	// static data files)
	Link bool
}

// StageInputs copies or links the declared inputs into scratch
func (w *Workspace) StageInputs(inputs []Input) error {
	for _, in := range inputs {
		matches, err := filepath.Glob(in.Source)
		if err != nil {
			return fmt.Errorf("bad input pattern %s: %w", in.Source, err)
		}
		if len(matches) == 0 {
			return &MissingInputError{Source: in.Source}
		}

		for _, src := range matches {
			dst := filepath.Join(w.ScratchDir, filepath.Base(src))
			if in.Link {
				// Replace any leftover link from an overwritten run
				os.Remove(dst)
				if err := os.Symlink(src, dst); err != nil {
					return fmt.Errorf("linking %s: %w", src, err)
				}
				continue
			}
			if err := copyFile(src, dst); err != nil {
				return fmt.Errorf("staging %s: %w", src, err)
			}
		}
	}
	return nil
}

// Finalize copies the declared output artifacts (paths or glob patterns,
// relative to scratch) into the output directory. Copy failures are
// returned per-file. When removeScratch is true and every transfer
// succeeded, scratch is deleted; on any failure scratch is retained for
// post-mortem inspection.
func (w *Workspace) Finalize(outputs []string, removeScratch bool) []error {
	var errs []error

	for _, out := range outputs {
		pattern := filepath.Join(w.ScratchDir, out)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			errs = append(errs, &TransferError{Source: pattern, Dest: w.OutputDir, Err: err})
			continue
		}
		if len(matches) == 0 {
			errs = append(errs, &TransferError{
				Source: pattern,
				Dest:   w.OutputDir,
				Err:    fmt.Errorf("no such output produced"),
			})
			continue
		}
		for _, src := range matches {
			dst := filepath.Join(w.OutputDir, filepath.Base(src))
			if err := copyFile(src, dst); err != nil {
				errs = append(errs, &TransferError{Source: src, Dest: dst, Err: err})
			}
		}
	}

	if removeScratch && len(errs) == 0 {
		if err := os.RemoveAll(w.ScratchDir); err != nil {
			errs = append(errs, fmt.Errorf("removing scratch: %w", err))
		}
	}

	return errs
}

// copyFile copies src to dst, following symlinks, preserving the mode
// bits of the source
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
