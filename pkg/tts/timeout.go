package tts

import (
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// TimeoutConfig holds every bound the speaker puts on a blocking wait
type TimeoutConfig struct {
	// Time to wait after SIGTERM before sending SIGKILL to the engine
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`

	// Same, for processes reclaimed by the shutdown sweep
	ReclaimGrace time.Duration `yaml:"reclaim_grace" mapstructure:"reclaim_grace"`

	// Absolute limit on reading one utterance from the engine
	ReadDeadline time.Duration `yaml:"read_deadline" mapstructure:"read_deadline"`

	// How long the caller waits for the reader before using partial audio
	ReadWait time.Duration `yaml:"read_wait" mapstructure:"read_wait"`

	// Silence on the engine output that ends an utterance, 0 disables
	IdleGap time.Duration `yaml:"idle_gap" mapstructure:"idle_gap"`

	// Limit on writing one utterance to the engine
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// Per-attempt bounds for players and fallback engines
	AttemptMin     time.Duration `yaml:"attempt_min" mapstructure:"attempt_min"`
	AttemptMax     time.Duration `yaml:"attempt_max" mapstructure:"attempt_max"`
	AttemptPerChar time.Duration `yaml:"attempt_per_char" mapstructure:"attempt_per_char"`
}

// DefaultTimeoutConfig returns the default timeout settings
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		GracePeriod:    2 * time.Second,
		ReclaimGrace:   1 * time.Second,
		ReadDeadline:   30 * time.Second,
		ReadWait:       10 * time.Second,
		IdleGap:        0,
		WriteTimeout:   5 * time.Second,
		AttemptMin:     5 * time.Second,
		AttemptMax:     30 * time.Second,
		AttemptPerChar: 100 * time.Millisecond,
	}
}

// MarshalYAML writes durations in their human form ("2s") so the file can
// be read back by viper.
func (c TimeoutConfig) MarshalYAML() (interface{}, error) {
	return map[string]string{
		"grace_period":     c.GracePeriod.String(),
		"reclaim_grace":    c.ReclaimGrace.String(),
		"read_deadline":    c.ReadDeadline.String(),
		"read_wait":        c.ReadWait.String(),
		"idle_gap":         c.IdleGap.String(),
		"write_timeout":    c.WriteTimeout.String(),
		"attempt_min":      c.AttemptMin.String(),
		"attempt_max":      c.AttemptMax.String(),
		"attempt_per_char": c.AttemptPerChar.String(),
	}, nil
}

// withDefaults fills zero fields. IdleGap stays zero since zero disables it.
func (c TimeoutConfig) withDefaults() TimeoutConfig {
	d := DefaultTimeoutConfig()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.GracePeriod, d.GracePeriod)
	fill(&c.ReclaimGrace, d.ReclaimGrace)
	fill(&c.ReadDeadline, d.ReadDeadline)
	fill(&c.ReadWait, d.ReadWait)
	fill(&c.WriteTimeout, d.WriteTimeout)
	fill(&c.AttemptMin, d.AttemptMin)
	fill(&c.AttemptMax, d.AttemptMax)
	fill(&c.AttemptPerChar, d.AttemptPerChar)
	if c.IdleGap < 0 {
		c.IdleGap = 0
	}
	return c
}

// AttemptTimeout bounds one player or fallback run for text:
// clamp(AttemptMin, AttemptMax, AttemptPerChar × characters).
func (c TimeoutConfig) AttemptTimeout(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * c.AttemptPerChar
	if d < c.AttemptMin {
		d = c.AttemptMin
	}
	if d > c.AttemptMax {
		d = c.AttemptMax
	}
	return d
}

// waitBounded waits for p to exit. On timeout the process is killed and
// reaped before returning true.
func waitBounded(p *TrackedProcess, timeout time.Duration, logger *log.Logger) (timedOut bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return false
	case <-timer.C:
	}

	logger.Warn("Command timed out",
		"command", p.Name,
		"pid", p.Pid(),
		"timeout", timeout)

	if err := killProcess(p); err != nil {
		logger.Error("Failed to kill process", "process", p.Name, "error", err)
	}
	return true
}
