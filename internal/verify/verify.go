// Package verify decides stage success or failure from the text logs of
// the external executables. These tools have no machine-readable status
// channel and are known to exit zero on some failure paths, so the log
// tail is the primary signal and the process exit status only a secondary
// one. This is a best-effort heuristic, not a contract.
package verify

import (
	"fmt"
	"strings"
)

// StageKind selects which marker rules apply to a log
type StageKind string

const (
	KindGeogrid StageKind = "geogrid"
	KindUngrib  StageKind = "ungrib"
	KindMetgrid StageKind = "metgrid"
	KindReal    StageKind = "real"
	KindMegan   StageKind = "megan"
	KindMozbc   StageKind = "mozbc"
	KindWRF     StageKind = "wrf"
	// KindEnrich covers the site-local met_em enrichment scripts, which
	// print no completion sentence
	KindEnrich StageKind = "enrich"
)

// TailWindow is how many final log lines are scanned. The external tools
// append diagnostics incrementally and the decisive message is always
// near the end.
const TailWindow = 30

// Rules holds the recognized markers for one stage kind
type Rules struct {
	// Failure markers: any occurrence in the tail is a failure
	Failure []string
	// Success markers: at least one must appear for a success verdict.
	// An empty list means the kind prints no completion sentence; for
	// such kinds the process exit status decides, with failure markers
	// still taking precedence.
	Success []string
}

// Verdict is the verifier's decision for one log
type Verdict struct {
	// OK is true only when a recognized success marker was found and no
	// failure marker was
	OK bool
	// Marker is the matched marker text, empty when nothing matched
	Marker string
	// Indeterminate is true when no recognized marker of either kind was
	// found; silence is never interpreted as success
	Indeterminate bool
	// ExitMismatch is set when the process exit status disagrees with
	// the log verdict (zero exit + failure marker, or non-zero exit +
	// success marker); flagged for operator attention
	ExitMismatch bool
}

// Reason renders the verdict as an operator-facing explanation
func (v Verdict) Reason() string {
	switch {
	case v.ExitMismatch && v.OK:
		return fmt.Sprintf("log reports success (%q) but process exited non-zero", v.Marker)
	case v.ExitMismatch:
		return fmt.Sprintf("process exited zero but log contains failure marker %q", v.Marker)
	case v.Indeterminate:
		return "no recognized completion or failure marker in log tail"
	case v.OK && v.Marker == "":
		return "exited zero with no failure marker in log tail"
	case v.OK:
		return fmt.Sprintf("found completion marker %q", v.Marker)
	case v.Marker == "":
		return "process exited non-zero"
	default:
		return fmt.Sprintf("found failure marker %q", v.Marker)
	}
}

// Ruleset maps stage kinds to their marker rules. New markers can be
// registered (or loaded from a markers file) without touching any
// sequencer logic.
type Ruleset struct {
	rules map[StageKind]Rules
}

// commonFailure markers show up across all the Fortran tools
var commonFailure = []string{
	"FATAL",
	"ERROR",
	"Segmentation fault",
	"forrtl: severe",
	"BAD TERMINATION",
}

// DefaultRuleset returns the built-in markers for the standard pipeline
func DefaultRuleset() *Ruleset {
	rs := &Ruleset{rules: make(map[StageKind]Rules)}

	rs.Register(KindGeogrid, Rules{
		Failure: commonFailure,
		Success: []string{"Successful completion of program geogrid.exe"},
	})
	rs.Register(KindUngrib, Rules{
		Failure: commonFailure,
		Success: []string{"Successful completion of program ungrib.exe"},
	})
	rs.Register(KindMetgrid, Rules{
		Failure: commonFailure,
		Success: []string{"Successful completion of program metgrid.exe"},
	})
	rs.Register(KindReal, Rules{
		Failure: commonFailure,
		Success: []string{"SUCCESS COMPLETE REAL_EM INIT"},
	})
	rs.Register(KindMegan, Rules{
		Failure: commonFailure,
		Success: []string{"bio_emiss completed successfully"},
	})
	rs.Register(KindMozbc, Rules{
		Failure: commonFailure,
		Success: []string{"bc_wrfchem completed successfully"},
	})
	rs.Register(KindWRF, Rules{
		// A CFL violation means the solver blew up even when it keeps
		// writing output afterwards
		Failure: append([]string{"cfl", "CFL"}, commonFailure...),
		Success: []string{"SUCCESS COMPLETE WRF"},
	})
	rs.Register(KindEnrich, Rules{
		// The enrichment scripts only print per-file diagnostics; an
		// uncaught interpreter error is the one recognizable failure
		Failure: append([]string{"Traceback"}, commonFailure...),
	})

	return rs
}

// Register adds or extends the rules for a kind
func (rs *Ruleset) Register(kind StageKind, r Rules) {
	existing := rs.rules[kind]
	existing.Failure = append(existing.Failure, r.Failure...)
	existing.Success = append(existing.Success, r.Success...)
	rs.rules[kind] = existing
}

// Rules returns the rules registered for a kind
func (rs *Ruleset) Rules(kind StageKind) (Rules, bool) {
	r, ok := rs.rules[kind]
	return r, ok
}

// Check scans the final TailWindow lines of logText for the kind's
// markers. exitCode is the process exit status, used only to detect a
// disagreement with the log verdict.
func (rs *Ruleset) Check(logText string, kind StageKind, exitCode int) Verdict {
	rules, ok := rs.rules[kind]
	if !ok {
		// Unknown kind: nothing recognizable, so indeterminate
		return Verdict{Indeterminate: true}
	}

	tail := Tail(logText, TailWindow)

	for _, line := range tail {
		for _, marker := range rules.Failure {
			if strings.Contains(line, marker) {
				return Verdict{Marker: marker, ExitMismatch: exitCode == 0}
			}
		}
	}

	// Kinds with no completion sentence fall back to the exit status
	if len(rules.Success) == 0 {
		return Verdict{OK: exitCode == 0}
	}

	for _, line := range tail {
		for _, marker := range rules.Success {
			if strings.Contains(line, marker) {
				return Verdict{OK: true, Marker: marker, ExitMismatch: exitCode != 0}
			}
		}
	}

	return Verdict{Indeterminate: true}
}

// Tail returns the last n non-empty lines of text
func Tail(text string, n int) []string {
	all := strings.Split(text, "\n")
	var lines []string
	for _, l := range all {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
