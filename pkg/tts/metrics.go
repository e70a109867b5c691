package tts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the speaker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	utterances    *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	engineStarts  *prometheus.CounterVec
	reclaimed     *prometheus.CounterVec
	synthesisTime prometheus.Histogram
	audioBytes    prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		utterances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grace_tts_utterances_total",
				Help: "Utterances by outcome (piper, fallback, muted, failed)",
			},
			[]string{"outcome"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grace_tts_cascade_attempts_total",
				Help: "Player and fallback engine attempts",
			},
			[]string{"cascade", "name", "status"},
		),
		engineStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grace_tts_engine_starts_total",
				Help: "Piper process start attempts",
			},
			[]string{"status"},
		),
		reclaimed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grace_tts_reclaimed_total",
				Help: "Resources released by the cleanup sweep",
			},
			[]string{"resource", "status"},
		),
		synthesisTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grace_tts_synthesis_duration_seconds",
				Help:    "Time from admission to the end of playback",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		audioBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grace_tts_audio_bytes",
				Help:    "Raw audio bytes captured per utterance",
				Buckets: prometheus.ExponentialBuckets(4096, 4, 8),
			},
		),
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) observeUtterance(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.utterances.WithLabelValues(outcome).Inc()
	m.synthesisTime.Observe(d.Seconds())
}

func (m *Metrics) observeAttempt(cascade, name string, err error) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(cascade, name, statusLabel(err)).Inc()
}

func (m *Metrics) observeEngineStart(err error) {
	if m == nil {
		return
	}
	m.engineStarts.WithLabelValues(statusLabel(err)).Inc()
}

func (m *Metrics) observeReclaim(resource string, err error) {
	if m == nil {
		return
	}
	m.reclaimed.WithLabelValues(resource, statusLabel(err)).Inc()
}

func (m *Metrics) observeAudio(n int) {
	if m == nil {
		return
	}
	m.audioBytes.Observe(float64(n))
}
