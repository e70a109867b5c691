package tts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/grace-ai/grace-tts/pkg/tts/engines"
	"golang.org/x/time/rate"
)

// EngineState represents the supervisor's view of the engine process.
type EngineState int

const (
	// EngineStopped means no engine process exists.
	EngineStopped EngineState = iota
	// EngineStarting means a process is being spawned.
	EngineStarting
	// EngineRunning means a process was started and has not been reaped.
	EngineRunning
	// EngineDying means the process is being terminated.
	EngineDying
)

// String returns a string representation of the engine state.
func (s EngineState) String() string {
	switch s {
	case EngineStopped:
		return "stopped"
	case EngineStarting:
		return "starting"
	case EngineRunning:
		return "running"
	case EngineDying:
		return "dying"
	default:
		return "unknown"
	}
}

// drainWindow bounds the stale-output drain before each utterance.
const drainWindow = 10 * time.Millisecond

// engineHandle is the running piper process and our ends of its pipes.
type engineHandle struct {
	proc    *TrackedProcess
	stdin   *os.File
	stdout  *os.File
	model   string
	created time.Time
}

func (h *engineHandle) alive() bool {
	return !h.proc.Exited()
}

// Supervisor owns the single long-lived engine process: it starts it on
// demand, health-checks it before each use, restarts it after it dies and
// terminates it on shutdown.
type Supervisor struct {
	mu     sync.Mutex
	state  EngineState
	handle *engineHandle

	cfg      PiperConfig
	timeouts TimeoutConfig
	models   ModelResolver
	paths    PathResolver
	tracker  *ResourceTracker
	restarts *rate.Limiter
	logger   *log.Logger
	metrics  *Metrics
}

// SupervisorOptions groups the supervisor's collaborators.
type SupervisorOptions struct {
	Piper    PiperConfig
	Timeouts TimeoutConfig
	Restart  RestartConfig
	Models   ModelResolver
	Paths    PathResolver
	Tracker  *ResourceTracker
	Logger   *log.Logger
	Metrics  *Metrics
}

// NewSupervisor creates a supervisor in the Stopped state.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	s := &Supervisor{
		state:    EngineStopped,
		cfg:      opts.Piper,
		timeouts: opts.Timeouts,
		models:   opts.Models,
		paths:    opts.Paths,
		tracker:  opts.Tracker,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.paths == nil {
		s.paths = SystemPath
	}
	if opts.Restart.Interval > 0 && opts.Restart.Burst > 0 {
		s.restarts = rate.NewLimiter(rate.Every(opts.Restart.Interval), opts.Restart.Burst)
	}
	return s
}

// EnsureRunning starts the engine unless a live one already exists.
func (s *Supervisor) EnsureRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureRunningLocked()
}

func (s *Supervisor) ensureRunningLocked() error {
	if s.state == EngineRunning && s.handle != nil && s.handle.alive() {
		return nil
	}

	if s.handle != nil {
		s.logger.Warn("Piper process not available, restarting",
			"pid", s.handle.proc.Pid(),
			"error", s.handle.proc.Err())
		s.terminateLocked()
	}

	s.state = EngineStarting

	model, ok := s.models.ResolveModel()
	if !ok {
		s.state = EngineStopped
		return fmt.Errorf("cannot start piper: %w", ErrModelNotFound)
	}

	bin, err := s.paths.LookPath(s.cfg.Binary)
	if err != nil {
		s.state = EngineStopped
		return fmt.Errorf("%w: %s: %v", ErrExecutableNotFound, s.cfg.Binary, err)
	}

	if s.restarts != nil && !s.restarts.Allow() {
		s.state = EngineStopped
		return fmt.Errorf("%w: %w", ErrEngineSpawnFailed, ErrRestartLimited)
	}

	h, err := s.spawn(bin, model)
	s.metrics.observeEngineStart(err)
	if err != nil {
		s.state = EngineStopped
		return fmt.Errorf("%w: %w", ErrEngineSpawnFailed, err)
	}

	s.handle = h
	s.state = EngineRunning
	s.logger.Info("Piper started", "pid", h.proc.Pid(), "model", engines.VoiceName(model))
	return nil
}

// spawn starts piper with its stdin and stdout connected to fresh pipes.
// The child's ends are closed here once the process has them.
func (s *Supervisor) spawn(bin, model string) (*engineHandle, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	cmd := exec.Command(bin, engines.PiperArgs(engines.PiperOptions{
		ModelPath:       model,
		LengthScale:     s.cfg.LengthScale,
		SentenceSilence: s.cfg.SentenceSilence,
	})...)
	cmd.Stdin = inR
	cmd.Stdout = outW

	proc, err := s.tracker.Spawn(cmd, "piper", KindEngine)
	_ = inR.Close()
	_ = outW.Close()
	if err != nil {
		_ = inW.Close()
		_ = outR.Close()
		return nil, &engines.PiperError{Type: "process", Message: "failed to start piper process", Cause: err}
	}

	return &engineHandle{
		proc:    proc,
		stdin:   inW,
		stdout:  outR,
		model:   model,
		created: time.Now(),
	}, nil
}

// Send health-checks the engine, restarting it if needed, discards any
// output left over from a previous utterance and writes text as one line.
// It returns the engine's output pipe for the caller to read.
func (s *Supervisor) Send(text string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRunningLocked(); err != nil {
		return nil, err
	}
	h := s.handle

	drainStale(h.stdout, s.logger)

	if err := h.stdin.SetWriteDeadline(time.Now().Add(s.timeouts.WriteTimeout)); err != nil {
		s.logger.Debug("Write deadline unsupported", "error", err)
	}
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		// A partial line would be prefixed to the next utterance.
		s.terminateLocked()
		if errors.Is(err, os.ErrDeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeoutExceeded, err)
		}
		return nil, fmt.Errorf("write to piper: %w", err)
	}
	return h.stdout, nil
}

// drainStale discards bytes already sitting in the output pipe.
func drainStale(r *os.File, logger *log.Logger) {
	if err := r.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
		return
	}
	n, _ := io.Copy(io.Discard, r)
	if n > 0 {
		logger.Debug("Discarded stale engine output", "bytes", n)
	}
}

// Terminate stops the engine. It is a no-op when nothing is running.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked()
}

func (s *Supervisor) terminateLocked() {
	h := s.handle
	if h == nil {
		s.state = EngineStopped
		return
	}

	s.state = EngineDying
	_ = h.stdin.Close()
	if err := terminateProcess(h.proc, s.timeouts.GracePeriod, s.logger); err != nil {
		s.logger.Warn("Error cleaning up piper process", "error", err)
	}
	s.tracker.UntrackProcess(h.proc)
	_ = h.stdout.Close()

	s.handle = nil
	s.state = EngineStopped
	s.logger.Debug("Piper stopped", "pid", h.proc.Pid(), "uptime", time.Since(h.created))
}

// Interrupt terminates the engine after a failed or cut read so the next utterance
// starts from a clean process.
func (s *Supervisor) Interrupt(out *os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil && s.handle.stdout == out {
		s.terminateLocked()
	}
}

// EngineInfo is a point-in-time view of the engine.
type EngineInfo struct {
	State   EngineState
	Alive   bool
	Pid     int
	Model   string
	Started time.Time
}

// Info reports the engine state without starting anything.
func (s *Supervisor) Info() EngineInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := EngineInfo{State: s.state}
	if s.handle != nil {
		info.Alive = s.handle.alive()
		info.Pid = s.handle.proc.Pid()
		info.Model = s.handle.model
		info.Started = s.handle.created
	}
	return info
}
