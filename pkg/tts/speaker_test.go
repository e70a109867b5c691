package tts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeEmptyText(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "piper", piperEcho)

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	for _, text := range []string{"", "   ", "\n\t"} {
		assert.True(t, s.Synthesize(context.Background(), text))
	}
	assert.Zero(t, s.tracker.ProcessCount())
	assert.Equal(t, EngineStopped, s.supervisor.Info().State)
}

func TestSynthesizeMuted(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "piper", piperEcho)

	cfg := testConfig(t)
	cfg.Mute = true
	s := newTestSpeaker(t, cfg, bin, fakeModel(t))

	assert.True(t, s.Synthesize(context.Background(), "hello"))
	assert.Zero(t, s.tracker.ProcessCount())
	assert.Zero(t, s.tracker.FileCount())
	assert.Equal(t, EngineStopped, s.supervisor.Info().State)

	s.SetMute(false)
	assert.False(t, s.Muted())
}

func TestSynthesizePiperPath(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	out := filepath.Join(t.TempDir(), "played")
	fakeBin(t, bin, "piper", piperEcho)
	recordingBin(t, bin, "aplay", out, 0)

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	assert.True(t, s.Synthesize(context.Background(), "hello\nworld"))
	assert.Equal(t, "PCM:hello world", readFile(t, out))
	assert.NoFileExists(t, readFile(t, out+".path"))

	// Only the engine remains tracked.
	assert.Equal(t, 1, s.tracker.ProcessCount())
	assert.Zero(t, s.tracker.FileCount())
	assert.NoError(t, s.LastError())
}

func TestSynthesizeEngineMissingUsesFallback(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	out := filepath.Join(t.TempDir(), "spoken")
	recordingBin(t, bin, "espeak", out, 0)

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	assert.True(t, s.Synthesize(context.Background(), "hello"))
	assert.Equal(t, "hello", readFile(t, out))
	assert.NoFileExists(t, readFile(t, out+".path"))
	assert.Zero(t, s.tracker.ProcessCount())
	assert.Zero(t, s.tracker.FileCount())
	assert.True(t, errors.Is(s.LastError(), ErrExecutableNotFound), "got %v", s.LastError())
}

func TestSynthesizeModelMissingUsesFallback(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	out := filepath.Join(t.TempDir(), "spoken")
	fakeBin(t, bin, "piper", piperEcho)
	recordingBin(t, bin, "festival", out, 0)

	s := newTestSpeaker(t, testConfig(t), bin, "")

	assert.True(t, s.Synthesize(context.Background(), "hello"))
	assert.Equal(t, "hello", readFile(t, out))
	assert.Zero(t, s.tracker.ProcessCount())
	assert.True(t, errors.Is(s.LastError(), ErrModelNotFound))
}

func TestSynthesizePlaybackFailureUsesFallback(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	out := filepath.Join(t.TempDir(), "spoken")
	fakeBin(t, bin, "piper", piperEcho)
	fakeBin(t, bin, "aplay", "exit 1")
	fakeBin(t, bin, "paplay", "exit 1")
	recordingBin(t, bin, "espeak", out, 0)

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	assert.True(t, s.Synthesize(context.Background(), "hello"))
	assert.Equal(t, "hello", readFile(t, out))
	assert.True(t, errors.Is(s.LastError(), ErrPlaybackFailed), "got %v", s.LastError())
	assert.Equal(t, 1, s.tracker.ProcessCount())
	assert.Zero(t, s.tracker.FileCount())
}

func TestSynthesizeNoAudioUsesFallback(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	out := filepath.Join(t.TempDir(), "spoken")
	fakeBin(t, bin, "piper", piperSilent)
	recordingBin(t, bin, "espeak", out, 0)

	cfg := testConfig(t)
	cfg.Timeouts.ReadWait = 300 * time.Millisecond
	s := newTestSpeaker(t, cfg, bin, fakeModel(t))

	assert.True(t, s.Synthesize(context.Background(), "hello"))
	assert.Equal(t, "hello", readFile(t, out))
	assert.True(t, errors.Is(s.LastError(), ErrNoAudioProduced), "got %v", s.LastError())
}

func TestSynthesizeEverythingFails(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "espeak", "exit 1")

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	assert.False(t, s.Synthesize(context.Background(), "hello"))
	assert.True(t, errors.Is(s.LastError(), ErrFallbackExhausted), "got %v", s.LastError())
	assert.Zero(t, s.tracker.ProcessCount())
	assert.Zero(t, s.tracker.FileCount())
}

func TestSynthesizeNoFallbacksInstalled(t *testing.T) {
	s := newTestSpeaker(t, testConfig(t), t.TempDir(), "")

	assert.False(t, s.Synthesize(context.Background(), "hello"))
	err := s.LastError()
	assert.True(t, errors.Is(err, ErrFallbackExhausted), "got %v", err)
	assert.True(t, errors.Is(err, ErrExecutableNotFound), "got %v", err)
}

func TestSynthesizeTruncatesAtCap(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	out := filepath.Join(t.TempDir(), "size")

	// 11 MiB of output per line.
	fakeBin(t, bin, "piper", `while IFS= read -r line; do head -c 11534336 /dev/zero; done`)
	fakeBin(t, bin, "aplay", fmt.Sprintf(`for a in "$@"; do f="$a"; done
wc -c < "$f" > '%s'`, out))

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	assert.True(t, s.Synthesize(context.Background(), "hello"))
	size, err := strconv.Atoi(readFile(t, out))
	require.NoError(t, err)
	assert.Equal(t, DefaultBufferCap, size)
}

func TestSynthesizeRestartsDeadEngine(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	out := filepath.Join(t.TempDir(), "played")
	fakeBin(t, bin, "piper", piperOnce)
	recordingBin(t, bin, "aplay", out, 0)

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	require.True(t, s.Synthesize(context.Background(), "one"))
	assert.Equal(t, "PCM:one", readFile(t, out))
	first := s.Status().EnginePid

	require.Eventually(t, func() bool { return !s.Status().EngineRunning }, 2*time.Second, 10*time.Millisecond)

	require.True(t, s.Synthesize(context.Background(), "two"))
	assert.Equal(t, "PCM:two", readFile(t, out))
	assert.NotEqual(t, first, s.Status().EnginePid)
}

func TestSynthesizeSerializes(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "piper", piperEcho)
	// Fails if another playback is running at the same time.
	lock := filepath.Join(t.TempDir(), "lock")
	fakeBin(t, bin, "aplay", fmt.Sprintf(`mkdir '%[1]s' || exit 9
sleep 0.1
rmdir '%[1]s'`, lock))

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	results := make([]<-chan bool, 4)
	for i := range results {
		results[i] = s.SynthesizeAsync(context.Background(), fmt.Sprintf("line %d", i))
	}
	for _, ch := range results {
		assert.True(t, <-ch)
	}
	assert.NoError(t, s.LastError())
}

func TestSynthesizeContextCancelledWhileQueued(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "piper", piperEcho)
	fakeBin(t, bin, "aplay", "sleep 0.5")

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))

	busy := s.SynthesizeAsync(context.Background(), "first")
	require.Eventually(t, func() bool { return s.tracker.FileCount() > 0 }, 3*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, s.Synthesize(ctx, "second"))
	assert.True(t, errors.Is(s.LastError(), context.Canceled))
	assert.True(t, <-busy)
}

func TestStopTwice(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "piper", piperEcho)
	fakeBin(t, bin, "aplay", "exit 0")

	s := newTestSpeaker(t, testConfig(t), bin, fakeModel(t))
	require.True(t, s.Synthesize(context.Background(), "hello"))
	require.True(t, s.Status().EngineRunning)

	s.Stop()
	assert.Zero(t, s.tracker.ProcessCount())
	assert.Zero(t, s.tracker.FileCount())
	assert.False(t, s.Status().EngineRunning)

	s.Stop()
	assert.Zero(t, s.tracker.ProcessCount())
	assert.Zero(t, s.tracker.FileCount())
}

func TestStatusSnapshot(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "piper", piperEcho)
	fakeBin(t, bin, "paplay", "exit 0")
	fakeBin(t, bin, "espeak", "exit 0")

	s := newTestSpeaker(t, testConfig(t), bin, "")

	st := s.Status()
	assert.False(t, st.EngineRunning)
	assert.Equal(t, "stopped", st.EngineState)
	assert.False(t, st.ModelFound)
	assert.Equal(t, ModelNotFound, st.ModelPath)
	assert.Equal(t, []string{"paplay"}, st.AvailablePlayers)
	assert.Equal(t, []string{"espeak"}, st.AvailableFallbacks)
	assert.Empty(t, st.LastError)
	assert.Contains(t, st.Render(), "paplay")

	require.Error(t, s.Start())
	assert.Contains(t, s.Status().LastError, ErrModelNotFound.Error())
}

func TestSpeakerMetrics(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "espeak", "exit 0")

	m := NewMetrics(prometheus.NewRegistry())
	s := newTestSpeaker(t, testConfig(t), bin, "", WithMetrics(m))

	require.True(t, s.Synthesize(context.Background(), "hello"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.utterances.WithLabelValues(OutcomeFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("text-fallback", "espeak", "success")))
}

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"hello":             "hello",
		"  two\nlines  ":    "two lines",
		"a\r\n\r\nb":        "a b",
		"cafe\u0301":        "caf\u00e9",
		"\t\n":              "",
		"tabs\tand  spaces": "tabs and spaces",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeText(in), "input %q", in)
	}
}
