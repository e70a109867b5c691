package tts

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"
)

// Outcomes recorded for each utterance.
const (
	OutcomePiper    = "piper"
	OutcomeFallback = "fallback"
	OutcomeMuted    = "muted"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

// Speaker is the best-effort text-to-speech service. It speaks through the
// piper engine when it can and falls back to alternative TTS commands when
// it cannot. Calls are serialized; Stop releases every process and temp
// file the speaker created.
type Speaker struct {
	cfg  *Config
	mute atomic.Bool

	logger  *log.Logger
	metrics *Metrics
	paths   PathResolver
	models  ModelResolver

	tracker    *ResourceTracker
	supervisor *Supervisor
	pipeline   *Pipeline
	players    *Cascade
	fallbacks  *Cascade

	// admit lets one utterance through at a time.
	admit *semaphore.Weighted

	errMu   sync.Mutex
	lastErr error
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithLogger sets the logger. The default is log.Default().
func WithLogger(logger *log.Logger) Option {
	return func(s *Speaker) { s.logger = logger }
}

// WithPathResolver sets how executables are located.
func WithPathResolver(paths PathResolver) Option {
	return func(s *Speaker) { s.paths = paths }
}

// WithModelResolver sets how the voice model is located.
func WithModelResolver(models ModelResolver) Option {
	return func(s *Speaker) { s.models = models }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// NewSpeaker creates a speaker. Nothing is spawned until the first
// Synthesize or Start.
func NewSpeaker(cfg *Config, opts ...Option) (*Speaker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s := &Speaker{
		cfg:    &c,
		logger: log.Default(),
		paths:  SystemPath,
		admit:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mute.Store(c.Mute)

	if s.models == nil {
		finder := NewModelFinder(c.Piper)
		if err := os.MkdirAll(finder.Dir, 0o755); err != nil {
			s.logger.Warn("Failed to create models directory", "path", finder.Dir, "error", err)
		}
		s.models = finder
	}

	s.tracker = NewResourceTracker(c.Timeouts.ReclaimGrace, s.logger, s.metrics)
	s.supervisor = NewSupervisor(SupervisorOptions{
		Piper:    c.Piper,
		Timeouts: c.Timeouts,
		Restart:  c.Restart,
		Models:   s.models,
		Paths:    s.paths,
		Tracker:  s.tracker,
		Logger:   s.logger,
		Metrics:  s.metrics,
	})
	s.pipeline = NewPipeline(s.supervisor, c.Timeouts, c.BufferCap, s.logger)
	s.players = newCascade(playbackSpec, c.Players, s)
	s.fallbacks = newCascade(textFallbackSpec, c.FallbackEngines, s)

	if _, ok := s.models.ResolveModel(); !ok {
		s.logger.Warn("No piper voice model found, fallback TTS will be used")
	}

	return s, nil
}

// Start launches the engine ahead of the first utterance.
func (s *Speaker) Start() error {
	if err := s.supervisor.EnsureRunning(); err != nil {
		s.recordError(err)
		return err
	}
	return nil
}

// SetMute turns audio output off or on.
func (s *Speaker) SetMute(mute bool) {
	if s.mute.Swap(mute) != mute {
		s.logger.Info("Mute changed", "mute", mute)
	}
}

// Muted reports whether audio output is off.
func (s *Speaker) Muted() bool {
	return s.mute.Load()
}

// LastError returns the most recent failure, if any.
func (s *Speaker) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

func (s *Speaker) recordError(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Synthesize speaks text and reports whether any path produced speech.
// Empty text and a muted speaker succeed without doing anything. ctx only
// bounds the wait for a turn; once admitted, an utterance runs to
// completion under its own timeouts.
func (s *Speaker) Synthesize(ctx context.Context, text string) bool {
	text = normalizeText(text)
	if text == "" {
		s.metrics.observeUtterance(OutcomeEmpty, 0)
		return true
	}
	if s.Muted() {
		s.logger.Debug("TTS is muted, skipping")
		s.metrics.observeUtterance(OutcomeMuted, 0)
		return true
	}

	if err := s.admit.Acquire(ctx, 1); err != nil {
		s.recordError(fmt.Errorf("waiting for turn: %w", err))
		return false
	}
	defer s.admit.Release(1)

	rec := StartSynthesis(s.logger, text)
	outcome, audioBytes, err := s.speak(rec.Logger(), text)
	rec.AudioBytes = audioBytes
	rec.EndSynthesis(outcome, err)
	s.metrics.observeUtterance(outcome, rec.SynthesisDuration)

	return err == nil
}

// SynthesizeAsync runs Synthesize on its own goroutine. The returned channel
// yields exactly one value.
func (s *Speaker) SynthesizeAsync(ctx context.Context, text string) <-chan bool {
	done := make(chan bool, 1)
	go func() {
		done <- s.Synthesize(ctx, text)
	}()
	return done
}

// speak runs the engine path and falls back to alternative TTS on any
// failure along it.
func (s *Speaker) speak(logger *log.Logger, text string) (string, int, error) {
	audio, err := s.pipeline.Synthesize(text)
	if err != nil {
		s.recordError(err)
		logger.Warn("Piper TTS failed, trying fallback", "error", err)
		return s.speakFallback(logger, text, 0)
	}
	s.metrics.observeAudio(len(audio))

	res := s.players.Run(text, audio)
	if res.Succeeded() {
		logger.Debug("Audio played", "player", res.Winner, "bytes", len(audio))
		return OutcomePiper, len(audio), nil
	}

	err = fmt.Errorf("%w: %w", ErrPlaybackFailed, res.Err)
	s.recordError(err)
	logger.Warn("Audio playback failed, trying fallback", "error", err)
	return s.speakFallback(logger, text, len(audio))
}

func (s *Speaker) speakFallback(logger *log.Logger, text string, audioBytes int) (string, int, error) {
	res := s.fallbacks.Run(text, []byte(text))
	if res.Succeeded() {
		logger.Info("Fallback TTS succeeded", "engine", res.Winner)
		return OutcomeFallback, audioBytes, nil
	}

	err := fmt.Errorf("%w: %w", ErrFallbackExhausted, res.Err)
	s.recordError(err)
	return OutcomeFailed, audioBytes, err
}

// Stop terminates the engine and reclaims every tracked process and temp
// file. It is safe to call more than once and from any goroutine.
func (s *Speaker) Stop() {
	s.supervisor.Terminate()
	report := s.tracker.ReclaimAll()
	if report.Processes > 0 || report.Files > 0 {
		s.logger.Info("Audio output cleaned up",
			"processes", report.Processes,
			"files", report.Files)
	}
}

// Name implements LifecycleComponent.
func (s *Speaker) Name() string {
	return "speaker"
}

// Shutdown implements LifecycleComponent. It waits for an in-flight
// utterance until ctx is done, then stops regardless.
func (s *Speaker) Shutdown(ctx context.Context) error {
	if err := s.admit.Acquire(ctx, 1); err == nil {
		defer s.admit.Release(1)
	}
	s.Stop()
	return nil
}

// ForceStop implements LifecycleComponent.
func (s *Speaker) ForceStop() error {
	s.Stop()
	return nil
}

// normalizeText composes text to NFC and folds all whitespace runs, line
// breaks included, into single spaces so one call is one engine line.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}
