package tts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDependencies(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "piper", piperEcho)
	fakeBin(t, bin, "festival", "exit 0")
	fakeBin(t, bin, "paplay", "exit 0")

	results := CheckDependencies(DefaultConfig(), dirResolver(bin), staticModel(fakeModel(t)))

	installed := map[string]bool{}
	for _, st := range results {
		installed[st.Name] = st.Installed
	}
	assert.Equal(t, map[string]bool{
		"piper":       true,
		"voice model": true,
		"espeak":      false,
		"festival":    true,
		"aplay":       false,
		"play":        false,
		"paplay":      true,
	}, installed)

	report := PrintReport(results)
	assert.Contains(t, report, "festival")
	assert.Contains(t, report, "Not installed (optional)")
}

func TestCheckDependenciesRejectsBadModel(t *testing.T) {
	dir := t.TempDir()
	notModel := filepath.Join(dir, "voice.bin")
	require.NoError(t, os.WriteFile(notModel, []byte("x"), 0o600))

	results := CheckDependencies(DefaultConfig(), dirResolver(t.TempDir()), staticModel(notModel))

	var model DependencyStatus
	for _, st := range results {
		if st.Name == "voice model" {
			model = st
		}
	}
	assert.False(t, model.Installed)
	assert.Equal(t, notModel, model.Path)
	assert.Contains(t, model.Instructions, ".onnx")
}

func TestAvailableCommands(t *testing.T) {
	requireShell(t)
	bin := t.TempDir()
	fakeBin(t, bin, "play", "exit 0")

	cfg := DefaultConfig()
	got := availableCommands(dirResolver(bin), cfg.Players)
	require.Len(t, got, 1)
	assert.Equal(t, "play", got[0].Name)
	assert.Equal(t, filepath.Join(bin, "play"), got[0].Path)
	assert.Equal(t, []string{"play"}, commandNames(got))
}
