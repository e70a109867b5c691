package tts

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerFileReleasedExactlyOnce(t *testing.T) {
	tr := NewResourceTracker(100*time.Millisecond, testLogger(), nil)

	path, err := tr.CreateTempFile("tracker-*.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.FileCount())
	assert.FileExists(t, path)

	require.NoError(t, tr.ReleaseFile(path))
	assert.NoFileExists(t, path)
	assert.Zero(t, tr.FileCount())

	// Second release is a no-op.
	assert.NoError(t, tr.ReleaseFile(path))
}

func TestTrackerReleaseAfterSweepIsNoop(t *testing.T) {
	tr := NewResourceTracker(100*time.Millisecond, testLogger(), nil)

	path, err := tr.CreateTempFile("tracker-*.raw", []byte{1, 2, 3})
	require.NoError(t, err)

	report := tr.ReclaimAll()
	assert.Equal(t, 1, report.Files)
	assert.NoError(t, report.Err)
	assert.NoFileExists(t, path)

	// Recreate a file at the same path; the owner's late release must not
	// delete it since the entry already went to the sweep.
	require.NoError(t, os.WriteFile(path, []byte("new"), 0o600))
	t.Cleanup(func() { _ = os.Remove(path) })
	assert.NoError(t, tr.ReleaseFile(path))
	assert.FileExists(t, path)
}

func TestTrackerVanishedFileIsNotAFailure(t *testing.T) {
	tr := NewResourceTracker(100*time.Millisecond, testLogger(), nil)

	path := filepath.Join(t.TempDir(), "gone.txt")
	tr.TrackFile(path)
	tr.TrackFile(path)
	assert.Equal(t, 1, tr.FileCount())

	report := tr.ReclaimAll()
	assert.NoError(t, report.Err)
	assert.Empty(t, report.Failures())
}

func TestTrackerProcessIdempotent(t *testing.T) {
	requireShell(t)
	tr := NewResourceTracker(100*time.Millisecond, testLogger(), nil)

	p, err := tr.Spawn(exec.Command("sh", "-c", "exit 0"), "true", KindPlayer)
	require.NoError(t, err)
	tr.TrackProcess(p)
	assert.Equal(t, 1, tr.ProcessCount())

	<-p.Done()
	assert.Equal(t, 0, p.ExitCode())
	assert.True(t, tr.UntrackProcess(p))
	assert.False(t, tr.UntrackProcess(p))
	assert.Zero(t, tr.ProcessCount())
}

func TestTrackerReclaimTerminatesProcesses(t *testing.T) {
	requireShell(t)
	grace := 200 * time.Millisecond
	tr := NewResourceTracker(grace, testLogger(), nil)

	polite, err := tr.Spawn(exec.Command("sh", "-c", "exec sleep 30"), "polite", KindPlayer)
	require.NoError(t, err)

	// Ignores SIGTERM, so only the kill after the grace period stops it.
	stubborn, err := tr.Spawn(exec.Command("sh", "-c", "trap '' TERM; exec sleep 30"), "stubborn", KindFallbackTTS)
	require.NoError(t, err)

	path, err := tr.CreateTempFile("tracker-*.txt", []byte("x"))
	require.NoError(t, err)

	start := time.Now()
	report := tr.ReclaimAll()
	elapsed := time.Since(start)

	assert.NoError(t, report.Err)
	assert.Equal(t, 2, report.Processes)
	assert.Equal(t, 1, report.Files)
	assert.True(t, polite.Exited())
	assert.True(t, stubborn.Exited())
	assert.NoFileExists(t, path)
	assert.Zero(t, tr.ProcessCount())
	assert.Zero(t, tr.FileCount())
	assert.Less(t, elapsed, 5*grace)
}

func TestTrackerConcurrentReclaim(t *testing.T) {
	requireShell(t)
	tr := NewResourceTracker(200*time.Millisecond, testLogger(), nil)

	for i := 0; i < 3; i++ {
		_, err := tr.Spawn(exec.Command("sh", "-c", "exec sleep 30"), "sleeper", KindPlayer)
		require.NoError(t, err)
		_, err = tr.CreateTempFile("tracker-*.txt", []byte("x"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	reports := make([]ReclaimReport, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i] = tr.ReclaimAll()
		}(i)
	}
	wg.Wait()

	var procs, files int
	for _, r := range reports {
		assert.NoError(t, r.Err)
		procs += r.Processes
		files += r.Files
	}
	assert.Equal(t, 3, procs)
	assert.Equal(t, 3, files)
}

func TestTrackerReclaimCollectsFailures(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can remove files from read-only directories")
	}
	tr := NewResourceTracker(100*time.Millisecond, testLogger(), nil)

	dir := t.TempDir()
	locked := filepath.Join(dir, "locked.txt")
	require.NoError(t, os.WriteFile(locked, []byte("x"), 0o600))
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	ok, err := tr.CreateTempFile("tracker-*.txt", []byte("x"))
	require.NoError(t, err)
	tr.TrackFile(locked)

	report := tr.ReclaimAll()
	require.Len(t, report.Failures(), 1)

	var rerr *ReclaimError
	require.True(t, errors.As(report.Failures()[0], &rerr))
	assert.Equal(t, locked, rerr.Resource)

	// The sweep still finished the rest.
	assert.NoFileExists(t, ok)
	assert.Zero(t, tr.FileCount())
}
