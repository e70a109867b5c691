package tts

import "errors"

// Sentinel errors. Each one is recorded as the speaker's last error and
// turned into a fallback step; only ErrFallbackExhausted makes a call fail.
var (
	// ErrModelNotFound means no voice model could be located.
	ErrModelNotFound = errors.New("voice model not found")

	// ErrExecutableNotFound means a required binary is not on PATH.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrEngineSpawnFailed means the engine process could not be started.
	ErrEngineSpawnFailed = errors.New("failed to start engine")

	// ErrEngineNotRunning means the engine died or was never started.
	ErrEngineNotRunning = errors.New("engine not running")

	// ErrNoAudioProduced means the engine returned an empty buffer.
	ErrNoAudioProduced = errors.New("no audio produced")

	// ErrPlaybackFailed means every available player failed.
	ErrPlaybackFailed = errors.New("audio playback failed")

	// ErrFallbackExhausted means every text fallback failed or none exist.
	ErrFallbackExhausted = errors.New("all TTS fallbacks failed")

	// ErrTimeoutExceeded is a soft error: a bounded wait ran out.
	ErrTimeoutExceeded = errors.New("timeout exceeded")

	// ErrRestartLimited means the engine is crash-looping and restarts are
	// being throttled.
	ErrRestartLimited = errors.New("engine restart rate exceeded")

	// ErrBufferFull means the audio buffer reached its cap.
	ErrBufferFull = errors.New("audio buffer full")
)
