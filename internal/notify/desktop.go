package notify

import (
	"fmt"
	"os/exec"
	"runtime"
)

// DesktopNotifier raises a local desktop notification when a run
// finishes. The preprocessing chain takes hours; the operator is rarely
// watching the terminal when the verdict lands.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send raises the notification for the current platform
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil // Unsupported
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := fmt.Sprintf("display notification %q with title %q", n.Message, n.Title)
	if n.Type == NotifyError {
		script += ` sound name "Basso"`
	}
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	cmd := exec.Command("notify-send", "-u", Urgency(n.Type), "-a", "wrfpipe", n.Title, n.Message)
	return cmd.Run()
}

// Urgency maps a notification type onto the notify-send urgency level.
// A failed run needs the operator to resubmit, so it is raised as
// critical and stays on screen until dismissed.
func Urgency(t NotificationType) string {
	switch t {
	case NotifyError:
		return "critical"
	case NotifyWarning:
		return "normal"
	default:
		return "low"
	}
}
