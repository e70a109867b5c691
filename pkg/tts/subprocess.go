package tts

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
)

// ProcessKind classifies a spawned process.
type ProcessKind int

const (
	// KindEngine is the long-lived piper process.
	KindEngine ProcessKind = iota
	// KindFallbackTTS is an alternative TTS command such as espeak.
	KindFallbackTTS
	// KindPlayer is an audio player such as aplay.
	KindPlayer
)

// String returns the string representation of the kind
func (k ProcessKind) String() string {
	switch k {
	case KindEngine:
		return "engine"
	case KindFallbackTTS:
		return "fallback-tts"
	case KindPlayer:
		return "player"
	default:
		return "unknown"
	}
}

// TrackedProcess is a started subprocess whose exit is observed by a single
// waiter goroutine. Done is closed once the process has been reaped.
type TrackedProcess struct {
	Name    string
	Kind    ProcessKind
	Started time.Time

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// startProcess starts cmd and spawns its waiter.
func startProcess(cmd *exec.Cmd, name string, kind ProcessKind) (*TrackedProcess, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &TrackedProcess{
		Name:    name,
		Kind:    kind,
		Started: time.Now(),
		cmd:     cmd,
		done:    make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Pid returns the operating system process id.
func (p *TrackedProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed when the process has exited and been reaped.
func (p *TrackedProcess) Done() <-chan struct{} {
	return p.done
}

// Exited polls the process without blocking.
func (p *TrackedProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status once the process is done, or -1 while it
// is still running or when it was killed by a signal.
func (p *TrackedProcess) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Err returns the wait error once the process is done.
func (p *TrackedProcess) Err() error {
	if !p.Exited() {
		return nil
	}
	return p.waitErr
}

func (p *TrackedProcess) String() string {
	return fmt.Sprintf("%s %s (pid %d)", p.Kind, p.Name, p.Pid())
}

// terminateProcess asks the process to exit, waits up to grace, then kills
// it and waits for the reaper. An already-exited process is not an error.
func terminateProcess(p *TrackedProcess, grace time.Duration, logger *log.Logger) error {
	if p.Exited() {
		return nil
	}

	if err := sendTerminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		// Fall through to the kill below.
		logger.Debug("Failed to send terminate signal", "process", p.Name, "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	return killProcess(p)
}

// killProcess force-kills the process and waits for it to be reaped.
func killProcess(p *TrackedProcess) error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", p, err)
	}
	<-p.done
	return nil
}
