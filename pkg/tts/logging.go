package tts

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// SynthesisRecord tracks one utterance from admission to completion.
type SynthesisRecord struct {
	ID                string
	Engine            string
	TextLength        int
	SynthesisStart    time.Time
	SynthesisDuration time.Duration
	AudioBytes        int
	Outcome           string
	ErrorMessage      string

	logger *log.Logger
}

// StartSynthesis starts tracking one utterance.
func StartSynthesis(logger *log.Logger, text string) *SynthesisRecord {
	r := &SynthesisRecord{
		ID:             uuid.NewString(),
		Engine:         "piper",
		TextLength:     len(text),
		SynthesisStart: time.Now(),
	}
	r.logger = logger.With("utterance", r.ID[:8])

	r.logger.Debug("Synthesis started",
		"textLength", r.TextLength,
		"timestamp", r.SynthesisStart.Format(time.RFC3339))

	return r
}

// Logger returns a logger tagged with the utterance id.
func (r *SynthesisRecord) Logger() *log.Logger {
	return r.logger
}

// EndSynthesis completes tracking and logs the outcome.
func (r *SynthesisRecord) EndSynthesis(outcome string, err error) {
	r.SynthesisDuration = time.Since(r.SynthesisStart)
	r.Outcome = outcome

	if err != nil {
		r.ErrorMessage = err.Error()
		r.logger.Error("Synthesis failed",
			"engine", r.Engine,
			"duration", r.SynthesisDuration,
			"error", r.ErrorMessage)
		return
	}

	r.logger.Debug("Synthesis completed",
		"engine", r.Engine,
		"outcome", r.Outcome,
		"textLength", r.TextLength,
		"audio", humanize.Bytes(uint64(r.AudioBytes)),
		"duration", r.SynthesisDuration,
		"throughput", calculateBytesPerSecond(r.AudioBytes, r.SynthesisDuration))
}

// calculateBytesPerSecond calculates synthesis throughput
func calculateBytesPerSecond(bytes int, duration time.Duration) string {
	if duration == 0 || bytes == 0 {
		return "N/A"
	}
	bps := float64(bytes) / duration.Seconds()
	return fmt.Sprintf("%s/s", humanize.Bytes(uint64(bps)))
}

// LogSubprocessExecution logs a finished player or fallback run
func LogSubprocessExecution(logger *log.Logger, command string, args []string, duration time.Duration, err error) {
	if err != nil {
		logger.Debug("Subprocess failed",
			"command", command,
			"args", args,
			"duration", duration,
			"error", err)
		return
	}
	logger.Debug("Subprocess executed",
		"command", command,
		"args", args,
		"duration", duration)
}
