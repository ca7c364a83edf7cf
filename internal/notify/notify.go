// Package notify reports run completion and failure to the operator.
// Pipeline runs take hours; nobody watches the terminal the whole time.
package notify

import (
	"fmt"

	"github.com/polarmet/wrfpipe/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	Case    string // Optional case name
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// ForResult builds the completion notification for a finished run
func ForResult(result *domain.PipelineResult, runErr error) Notification {
	n := Notification{
		RunID: result.RunID,
		Case:  result.Case,
	}

	if result.Status == domain.RunCompleted {
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("Run %s completed", result.Case)
		n.Message = fmt.Sprintf("%d stages finished, outputs in %s", len(result.Stages), result.OutputDir)
		return n
	}

	n.Type = NotifyError
	n.Title = fmt.Sprintf("Run %s failed", result.Case)
	if failed := result.FailedStage(); failed != nil {
		n.Message = fmt.Sprintf("stage %s: %s", failed.Stage, failed.Outcome.Reason)
	} else if runErr != nil {
		n.Message = runErr.Error()
	}
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
