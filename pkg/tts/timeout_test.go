package tts

import (
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptTimeout(t *testing.T) {
	cfg := DefaultTimeoutConfig()

	tests := []struct {
		name   string
		length int
		want   time.Duration
	}{
		{name: "short text uses the floor", length: 10, want: 5 * time.Second},
		{name: "scales with length", length: 100, want: 10 * time.Second},
		{name: "long text uses the ceiling", length: 1000, want: 30 * time.Second},
		{name: "empty text", length: 0, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.AttemptTimeout(strings.Repeat("a", tt.length)))
		})
	}
}

func TestAttemptTimeoutCountsCharacters(t *testing.T) {
	cfg := DefaultTimeoutConfig()
	// 100 two-byte runes are 100 characters, not 200.
	assert.Equal(t, 10*time.Second, cfg.AttemptTimeout(strings.Repeat("é", 100)))
}

func TestTimeoutConfigDefaults(t *testing.T) {
	cfg := TimeoutConfig{IdleGap: -time.Second}.withDefaults()
	assert.Equal(t, DefaultTimeoutConfig(), cfg)

	cfg = TimeoutConfig{ReadWait: time.Second, IdleGap: 50 * time.Millisecond}.withDefaults()
	assert.Equal(t, time.Second, cfg.ReadWait)
	assert.Equal(t, 50*time.Millisecond, cfg.IdleGap)
}

func TestWaitBoundedKillsOnTimeout(t *testing.T) {
	requireShell(t)
	tr := NewResourceTracker(time.Second, testLogger(), nil)

	p, err := tr.Spawn(exec.Command("sh", "-c", "exec sleep 30"), "sleeper", KindPlayer)
	require.NoError(t, err)

	timeout := 150 * time.Millisecond
	start := time.Now()
	timedOut := waitBounded(p, timeout, testLogger())
	tr.UntrackProcess(p)
	elapsed := time.Since(start)

	assert.True(t, timedOut)
	assert.True(t, p.Exited())
	assert.Zero(t, tr.ProcessCount())
	assert.Less(t, elapsed, timeout+time.Second)
	assert.NotEqual(t, 0, p.ExitCode())
}

func TestWaitBoundedNormalExit(t *testing.T) {
	requireShell(t)
	tr := NewResourceTracker(time.Second, testLogger(), nil)

	p, err := tr.Spawn(exec.Command("sh", "-c", "exit 3"), "three", KindPlayer)
	require.NoError(t, err)

	assert.False(t, waitBounded(p, 5*time.Second, testLogger()))
	assert.Equal(t, 3, p.ExitCode())
	assert.Error(t, p.Err())
}

func TestTerminateProcessAlreadyExited(t *testing.T) {
	requireShell(t)
	tr := NewResourceTracker(time.Second, testLogger(), nil)

	p, err := tr.Spawn(exec.Command("sh", "-c", "exit 0"), "done", KindPlayer)
	require.NoError(t, err)
	<-p.Done()

	assert.NoError(t, terminateProcess(p, 100*time.Millisecond, testLogger()))
}
