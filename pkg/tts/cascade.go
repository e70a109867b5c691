package tts

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/grace-ai/grace-tts/pkg/tts/engines"
)

// AttemptResult is the outcome of one cascade step.
type AttemptResult struct {
	Name      string
	Succeeded bool
	Err       error
	Duration  time.Duration
}

// CascadeResult is the outcome of a whole cascade run.
type CascadeResult struct {
	Winner   string
	Attempts []AttemptResult
	Err      error
}

// Succeeded reports whether some step exited 0.
func (r CascadeResult) Succeeded() bool {
	return r.Winner != ""
}

// cascadeSpec describes how a cascade spills its payload to disk.
type cascadeSpec struct {
	label       string
	kind        ProcessKind
	pattern     string
	placeholder string
}

var (
	playbackSpec = cascadeSpec{
		label:       "playback",
		kind:        KindPlayer,
		pattern:     "grace-tts-*.raw",
		placeholder: engines.PlaceholderAudioFile,
	}
	textFallbackSpec = cascadeSpec{
		label:       "text-fallback",
		kind:        KindFallbackTTS,
		pattern:     "grace-tts-*.txt",
		placeholder: engines.PlaceholderTextFile,
	}
)

// Cascade tries an ordered list of commands until one exits 0. Steps run
// strictly one after another; each is bounded by the attempt timeout.
type Cascade struct {
	spec       cascadeSpec
	commands   []engines.Command
	sampleRate int

	paths    PathResolver
	tracker  *ResourceTracker
	timeouts TimeoutConfig
	logger   *log.Logger
	metrics  *Metrics
}

func newCascade(spec cascadeSpec, commands []engines.Command, s *Speaker) *Cascade {
	return &Cascade{
		spec:       spec,
		commands:   commands,
		sampleRate: s.cfg.SampleRate,
		paths:      s.paths,
		tracker:    s.tracker,
		timeouts:   s.cfg.Timeouts,
		logger:     s.logger,
		metrics:    s.metrics,
	}
}

// Available lists the names of the commands whose binary is installed.
func (c *Cascade) Available() []string {
	return commandNames(availableCommands(c.paths, c.commands))
}

// Run spills payload to a tracked temp file and tries each available
// command against it. text sizes the per-attempt timeout. The temp file is
// released exactly once before Run returns.
func (c *Cascade) Run(text string, payload []byte) CascadeResult {
	available := availableCommands(c.paths, c.commands)
	if len(available) == 0 {
		return CascadeResult{Err: fmt.Errorf("no %s commands available: %w", c.spec.label, ErrExecutableNotFound)}
	}

	path, err := c.tracker.CreateTempFile(c.spec.pattern, payload)
	if err != nil {
		return CascadeResult{Err: err}
	}
	defer func() {
		if err := c.tracker.ReleaseFile(path); err != nil {
			c.logger.Warn("Failed to remove temp file", "path", path, "error", err)
		}
	}()

	vars := map[string]string{
		c.spec.placeholder:           path,
		engines.PlaceholderSampleRate: strconv.Itoa(c.sampleRate),
	}
	timeout := c.timeouts.AttemptTimeout(text)

	var result CascadeResult
	for _, cmd := range available {
		attempt := c.attempt(cmd, vars, timeout)
		result.Attempts = append(result.Attempts, attempt)
		c.metrics.observeAttempt(c.spec.label, cmd.Name, attempt.Err)

		if attempt.Succeeded {
			result.Winner = cmd.Name
			result.Err = nil
			return result
		}
		c.logger.Warn("Command failed", "cascade", c.spec.label, "command", cmd.Name, "error", attempt.Err)
		result.Err = attempt.Err
	}
	return result
}

// attempt runs one command and waits for it, killing it on timeout. The
// process is untracked as soon as it has been waited on.
func (c *Cascade) attempt(cmd resolvedCommand, vars map[string]string, timeout time.Duration) AttemptResult {
	res := AttemptResult{Name: cmd.Name}
	start := time.Now()

	args, err := cmd.Expand(vars)
	if err != nil {
		res.Err = err
		return res
	}

	proc, err := c.tracker.Spawn(exec.Command(cmd.Path, args[1:]...), cmd.Name, c.spec.kind)
	if err != nil {
		res.Err = err
		return res
	}

	timedOut := waitBounded(proc, timeout, c.logger)
	c.tracker.UntrackProcess(proc)
	res.Duration = time.Since(start)

	switch {
	case timedOut:
		res.Err = fmt.Errorf("%s: %w after %v", cmd.Name, ErrTimeoutExceeded, timeout)
	case proc.ExitCode() != 0:
		res.Err = fmt.Errorf("%s exited with code %d: %w", cmd.Name, proc.ExitCode(), exitError(proc))
	default:
		res.Succeeded = true
	}

	LogSubprocessExecution(c.logger, cmd.Path, args[1:], res.Duration, res.Err)
	return res
}

func exitError(p *TrackedProcess) error {
	if err := p.Err(); err != nil {
		return err
	}
	return errors.New("non-zero exit")
}
