// Package observer watches running pipelines from the outside: stage
// log activity for live streaming, stall detection for runs whose
// executables have gone quiet, and completion metrics.
package observer

import (
	"os"
	"sync"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
)

// Observer tracks stage completions and detects stalled stages
type Observer struct {
	stallThreshold time.Duration

	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	Stage    string
	Status   domain.OutcomeStatus
	Duration time.Duration
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalCompleted int
	TotalFailed    int
	TotalSkipped   int
	AvgDuration    time.Duration
}

// New creates a new Observer. stallThreshold is how long a stage log may
// stay unchanged before the stage counts as stalled.
func New(stallThreshold time.Duration) *Observer {
	return &Observer{
		stallThreshold: stallThreshold,
	}
}

// IsStalled reports whether a stage looks stuck: its log file has not
// grown within the stall threshold. The MPI executables write steadily
// while healthy; a silent log means a hung collective or a dead rank.
func (o *Observer) IsStalled(logPath string) bool {
	info, err := os.Stat(logPath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > o.stallThreshold
}

// RecordStage records a finished stage
func (o *Observer) RecordStage(res domain.StageResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.completions = append(o.completions, completion{
		Stage:    res.Stage,
		Status:   res.Outcome.Status,
		Duration: res.Duration,
	})
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration
	var timed int

	for _, c := range o.completions {
		switch c.Status {
		case domain.OutcomeSuccess:
			metrics.TotalCompleted++
			totalDuration += c.Duration
			timed++
		case domain.OutcomeFailure:
			metrics.TotalFailed++
		case domain.OutcomeSkipped:
			metrics.TotalSkipped++
		}
	}

	if timed > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(timed)
	}

	return metrics
}
