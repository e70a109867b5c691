package tts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"
)

// ReclaimError records one resource the shutdown sweep could not release.
type ReclaimError struct {
	Resource string
	Err      error
}

func (e *ReclaimError) Error() string {
	return fmt.Sprintf("reclaim %s: %v", e.Resource, e.Err)
}

func (e *ReclaimError) Unwrap() error {
	return e.Err
}

// ReclaimReport summarizes one sweep.
type ReclaimReport struct {
	Processes int
	Files     int
	Err       error
}

// Failures lists the individual ReclaimErrors of the sweep.
func (r ReclaimReport) Failures() []error {
	return multierr.Errors(r.Err)
}

// ResourceTracker is the registry of every live subprocess and temp file
// the speaker created. Each entry is released exactly once, either by its
// owner or by ReclaimAll.
type ResourceTracker struct {
	mu        sync.Mutex
	processes map[*TrackedProcess]struct{}
	files     map[string]struct{}

	grace   time.Duration
	logger  *log.Logger
	metrics *Metrics
}

// NewResourceTracker creates an empty tracker. grace bounds how long a
// reclaimed process gets to exit after SIGTERM.
func NewResourceTracker(grace time.Duration, logger *log.Logger, metrics *Metrics) *ResourceTracker {
	if logger == nil {
		logger = log.Default()
	}
	return &ResourceTracker{
		processes: make(map[*TrackedProcess]struct{}),
		files:     make(map[string]struct{}),
		grace:     grace,
		logger:    logger,
		metrics:   metrics,
	}
}

// Spawn starts cmd and registers it.
func (t *ResourceTracker) Spawn(cmd *exec.Cmd, name string, kind ProcessKind) (*TrackedProcess, error) {
	p, err := startProcess(cmd, name, kind)
	if err != nil {
		return nil, err
	}
	t.TrackProcess(p)
	return p, nil
}

// TrackProcess registers p. Tracking the same process twice is a no-op.
func (t *ResourceTracker) TrackProcess(p *TrackedProcess) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processes[p] = struct{}{}
}

// UntrackProcess removes p and reports whether it was present.
func (t *ResourceTracker) UntrackProcess(p *TrackedProcess) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.processes[p]; !ok {
		return false
	}
	delete(t.processes, p)
	return true
}

// TrackFile registers a temp file path.
func (t *ResourceTracker) TrackFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path] = struct{}{}
}

// ReleaseFile deletes path if it is still tracked. A file already removed
// by a sweep, or one that vanished on its own, is not an error.
func (t *ResourceTracker) ReleaseFile(path string) error {
	t.mu.Lock()
	_, ok := t.files[path]
	delete(t.files, path)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// CreateTempFile writes data to a new tracked temp file named by pattern
// (as in os.CreateTemp) and returns its path.
func (t *ResourceTracker) CreateTempFile(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	t.TrackFile(path)

	_, werr := f.Write(data)
	cerr := f.Close()
	if err := multierr.Combine(werr, cerr); err != nil {
		if rerr := t.ReleaseFile(path); rerr != nil {
			t.logger.Warn("Failed to remove temp file", "path", path, "error", rerr)
		}
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return path, nil
}

// ProcessCount returns the number of tracked processes.
func (t *ResourceTracker) ProcessCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processes)
}

// FileCount returns the number of tracked temp files.
func (t *ResourceTracker) FileCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// ReclaimAll terminates every tracked process and deletes every tracked
// file. The sets are swapped out under the lock, so a concurrent sweep
// sees nothing left to do. Failures are logged and reported, never fatal.
func (t *ResourceTracker) ReclaimAll() ReclaimReport {
	t.mu.Lock()
	processes, files := t.processes, t.files
	t.processes = make(map[*TrackedProcess]struct{})
	t.files = make(map[string]struct{})
	t.mu.Unlock()

	report := ReclaimReport{Processes: len(processes), Files: len(files)}

	for p := range processes {
		err := terminateProcess(p, t.grace, t.logger)
		t.metrics.observeReclaim("process", err)
		if err != nil {
			report.Err = multierr.Append(report.Err, &ReclaimError{Resource: p.String(), Err: err})
		}
	}

	for path := range files {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		t.metrics.observeReclaim("file", err)
		if err != nil {
			report.Err = multierr.Append(report.Err, &ReclaimError{Resource: path, Err: err})
		}
	}

	for _, err := range report.Failures() {
		t.logger.Warn("Error during cleanup", "error", err)
	}
	if report.Processes > 0 || report.Files > 0 {
		t.logger.Debug("Reclaimed resources",
			"processes", report.Processes,
			"files", report.Files,
			"failures", len(report.Failures()))
	}

	return report
}
