package tts

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

// requireShell skips tests that rely on POSIX shell scripts as fake binaries.
func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// fakeBin writes an executable shell script named name into dir.
func fakeBin(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// dirResolver resolves executables only inside dir.
func dirResolver(dir string) PathResolver {
	return PathResolverFunc(func(name string) (string, error) {
		path := filepath.Join(dir, filepath.Base(name))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	})
}

// staticModel resolves to a fixed path, or to nothing when path is empty.
type staticModel string

func (m staticModel) ResolveModel() (string, bool) {
	return string(m), m != ""
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// testConfig returns a config with short timeouts suitable for tests.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Piper.ModelsDir = t.TempDir()
	cfg.Timeouts = TimeoutConfig{
		GracePeriod:    300 * time.Millisecond,
		ReclaimGrace:   300 * time.Millisecond,
		ReadDeadline:   5 * time.Second,
		ReadWait:       3 * time.Second,
		IdleGap:        150 * time.Millisecond,
		WriteTimeout:   time.Second,
		AttemptMin:     3 * time.Second,
		AttemptMax:     5 * time.Second,
		AttemptPerChar: 100 * time.Millisecond,
	}
	return cfg
}

// fakeModel creates an empty voice model file.
func fakeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "en_US-test-medium.onnx")
	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0o600))
	return path
}

// Fake engine bodies.
const (
	// echoes every line back prefixed, as one chunk of "audio"
	piperEcho = `while IFS= read -r line; do printf 'PCM:%s' "$line"; done`

	// reads lines but never writes audio
	piperSilent = `while IFS= read -r line; do :; done`

	// answers a single line and exits
	piperOnce = `IFS= read -r line; printf 'PCM:%s' "$line"`
)

// recordingBin is a fake player or fallback engine that copies the file
// named by its last argument to out, records that path in out.path and
// exits with code.
func recordingBin(t *testing.T, dir, name, out string, code int) string {
	t.Helper()
	body := fmt.Sprintf(`for a in "$@"; do f="$a"; done
printf '%%s' "$f" > '%[1]s.path'
cat "$f" > '%[1]s'
exit %[2]d`, out, code)
	return fakeBin(t, dir, name, body)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

// newTestSpeaker builds a speaker whose executables come from binDir.
func newTestSpeaker(t *testing.T, cfg *Config, binDir string, model string, opts ...Option) *Speaker {
	t.Helper()
	opts = append([]Option{
		WithLogger(testLogger()),
		WithPathResolver(dirResolver(binDir)),
		WithModelResolver(staticModel(model)),
	}, opts...)
	s, err := NewSpeaker(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}
