package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Invocation describes one external executable run. The environment is
// an explicit, enumerated interface to the executable, not an implicit
// channel for orchestrator state.
type Invocation struct {
	// Exe is the command to run: "./x.exe" for an executable staged in
	// scratch, or a bare name resolved on PATH (the MPI launcher)
	Exe  string
	Args []string
	// Dir is the working directory (the run's scratch directory);
	// relative Exe paths resolve against it
	Dir string
	// Env is the full environment for the subprocess; nil means a
	// minimal PATH/HOME environment
	Env []string
	// StdinPath, when set, is fed to the executable's standard input
	// (the chemistry preprocessors read their .inp control file that way)
	StdinPath string
	// LogPath receives the combined stdout/stderr
	LogPath string
}

// InvokeResult reports how the subprocess terminated. A non-zero exit is
// not an error here: the verifier weighs it against the log content.
type InvokeResult struct {
	ExitCode int
	LogPath  string
}

// Invoker runs stage executables. The orchestrator blocks until the
// subprocess terminates and its log is fully available.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (InvokeResult, error)
}

// ExecInvoker runs executables as local subprocesses
type ExecInvoker struct{}

// MinimalEnv returns the narrow default environment passed to stage
// executables
func MinimalEnv() []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
}

// Invoke runs the executable, blocking until it exits. The returned
// error is reserved for failures to launch or to capture output; an
// unsuccessful exit status is reported through InvokeResult.
func (e *ExecInvoker) Invoke(ctx context.Context, inv Invocation) (InvokeResult, error) {
	logFile, err := os.Create(inv.LogPath)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, inv.Exe, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if inv.StdinPath != "" {
		stdin, err := os.Open(inv.StdinPath)
		if err != nil {
			return InvokeResult{}, fmt.Errorf("opening stdin file: %w", err)
		}
		defer stdin.Close()
		cmd.Stdin = stdin
	}
	if inv.Env != nil {
		cmd.Env = inv.Env
	} else {
		cmd.Env = MinimalEnv()
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return InvokeResult{ExitCode: exitErr.ExitCode(), LogPath: inv.LogPath}, nil
		}
		return InvokeResult{}, fmt.Errorf("starting %s: %w", inv.Exe, err)
	}

	return InvokeResult{ExitCode: 0, LogPath: inv.LogPath}, nil
}
