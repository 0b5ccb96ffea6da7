package engine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ControlWatcher lets an operator steer a running mission through
// signal files under the working directory's .canopy/signals folder.
// Creating an "abort" file cancels the mission; "pause" holds new
// admissions until the file is removed.
type ControlWatcher struct {
	canopyDir string

	mu          sync.RWMutex
	abortSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewControlWatcher creates a control watcher rooted at dir. A missing
// fsnotify watcher is not fatal; signal files are also polled on read.
func NewControlWatcher(dir string) (*ControlWatcher, error) {
	canopyDir := filepath.Join(dir, ".canopy")
	signalsDir := filepath.Join(canopyDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	cw := &ControlWatcher{
		canopyDir: canopyDir,
		done:      make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Polling fallback via ShouldAbort/ShouldPause.
		return cw, nil
	}
	cw.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		cw.watcher = nil
		return cw, nil
	}

	go cw.watchSignals()
	return cw, nil
}

// watchSignals monitors the signals directory for abort files.
func (cw *ControlWatcher) watchSignals() {
	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == "abort" &&
				(event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
				cw.mu.Lock()
				cw.abortSignal = true
				cw.mu.Unlock()
			}
		case <-cw.watcher.Errors:
			// Ignore errors, keep watching.
		}
	}
}

// ShouldAbort returns true if an abort signal has been received.
func (cw *ControlWatcher) ShouldAbort() bool {
	// Also check the file directly in case the watcher missed it.
	abortPath := filepath.Join(cw.canopyDir, "signals", "abort")
	if _, err := os.Stat(abortPath); err == nil {
		cw.mu.Lock()
		cw.abortSignal = true
		cw.mu.Unlock()
	}

	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.abortSignal
}

// ShouldPause returns true while a pause signal file exists. Pause is
// stateless: removing the file resumes admission.
func (cw *ControlWatcher) ShouldPause() bool {
	pausePath := filepath.Join(cw.canopyDir, "signals", "pause")
	_, err := os.Stat(pausePath)
	return err == nil
}

// SendAbort creates an abort signal file.
func (cw *ControlWatcher) SendAbort() error {
	path := filepath.Join(cw.canopyDir, "signals", "abort")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates a pause signal file.
func (cw *ControlWatcher) SendPause() error {
	path := filepath.Join(cw.canopyDir, "signals", "pause")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets signal state.
func (cw *ControlWatcher) ClearSignals() {
	cw.mu.Lock()
	cw.abortSignal = false
	cw.mu.Unlock()

	os.Remove(filepath.Join(cw.canopyDir, "signals", "abort"))
	os.Remove(filepath.Join(cw.canopyDir, "signals", "pause"))
}

// Close shuts down the control watcher.
func (cw *ControlWatcher) Close() {
	close(cw.done)
	if cw.watcher != nil {
		cw.watcher.Close()
	}
}
