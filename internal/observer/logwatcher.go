package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LogChangeCallback is called when stage log files change.
// scratchDir is the run scratch directory where changes occurred.
type LogChangeCallback func(scratchDir string, changedFiles []string)

// LogWatcher monitors run scratch directories for stage log activity.
// The web UI and TUI use it to stream log growth without polling.
type LogWatcher struct {
	watcher  *fsnotify.Watcher
	callback LogChangeCallback
	debounce time.Duration

	// Track watched scratch directories
	scratchDirs map[string]struct{}

	// Debounce state, tracked per run
	pendingByRun map[string]map[string]struct{}
	timer        *time.Timer
	mu           sync.Mutex

	cancel context.CancelFunc
}

// NewLogWatcher creates a new watcher for run scratch directories
func NewLogWatcher(callback LogChangeCallback) (*LogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	lw := &LogWatcher{
		watcher:      watcher,
		callback:     callback,
		debounce:     500 * time.Millisecond, // The Fortran tools flush in bursts
		scratchDirs:  make(map[string]struct{}),
		pendingByRun: make(map[string]map[string]struct{}),
	}

	return lw, nil
}

// AddRun starts watching a run's scratch directory
func (lw *LogWatcher) AddRun(scratchDir string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, exists := lw.scratchDirs[scratchDir]; exists {
		return nil // Already watching
	}

	if _, err := os.Stat(scratchDir); os.IsNotExist(err) {
		return nil // Run not prepared yet, nothing to watch
	}

	if err := lw.watcher.Add(scratchDir); err != nil {
		return err
	}

	lw.scratchDirs[scratchDir] = struct{}{}
	return nil
}

// RemoveRun stops watching a run
func (lw *LogWatcher) RemoveRun(scratchDir string) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, exists := lw.scratchDirs[scratchDir]; !exists {
		return
	}

	lw.watcher.Remove(scratchDir)
	delete(lw.scratchDirs, scratchDir)
	delete(lw.pendingByRun, scratchDir)
}

// Start begins watching for file changes
func (lw *LogWatcher) Start(ctx context.Context) {
	ctx, lw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-lw.watcher.Events:
				if !ok {
					return
				}
				lw.handleEvent(event)
			case _, ok := <-lw.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching past transient errors
			}
		}
	}()
}

// Stop stops watching for file changes
func (lw *LogWatcher) Stop() {
	if lw.cancel != nil {
		lw.cancel()
	}
	lw.watcher.Close()
}

// isLogFile matches the files the stage executables write diagnostics
// to: captured stage logs and the per-rank rsl files
func isLogFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".log") ||
		strings.HasPrefix(base, "rsl.out.") ||
		strings.HasPrefix(base, "rsl.error.")
}

func (lw *LogWatcher) handleEvent(event fsnotify.Event) {
	if !isLogFile(event.Name) {
		return
	}

	// Only care about writes and creates
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Find which run this file belongs to
	scratchDir := lw.findRun(event.Name)
	if scratchDir == "" {
		return // Not in a watched scratch directory
	}

	// Add to pending files for this run
	if lw.pendingByRun[scratchDir] == nil {
		lw.pendingByRun[scratchDir] = make(map[string]struct{})
	}
	lw.pendingByRun[scratchDir][event.Name] = struct{}{}

	// Reset or start debounce timer
	if lw.timer != nil {
		lw.timer.Stop()
	}
	lw.timer = time.AfterFunc(lw.debounce, lw.flush)
}

// findRun returns the scratch directory that contains the given file
func (lw *LogWatcher) findRun(filePath string) string {
	for dir := range lw.scratchDirs {
		if strings.HasPrefix(filePath, dir) {
			return dir
		}
	}
	return ""
}

func (lw *LogWatcher) flush() {
	lw.mu.Lock()
	// Copy pending state and clear
	pending := lw.pendingByRun
	lw.pendingByRun = make(map[string]map[string]struct{})
	lw.mu.Unlock()

	if lw.callback == nil {
		return
	}

	// Call callback for each run with changes
	for scratchDir, fileMap := range pending {
		files := make([]string, 0, len(fileMap))
		for f := range fileMap {
			files = append(files, f)
		}
		if len(files) > 0 {
			lw.callback(scratchDir, files)
		}
	}
}

// SetDebounce sets the debounce duration for batching file changes
func (lw *LogWatcher) SetDebounce(d time.Duration) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.debounce = d
}
