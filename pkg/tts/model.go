package tts

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/grace-ai/grace-tts/pkg/tts/engines"
	gap "github.com/muesli/go-app-paths"
)

// ModelResolver locates the voice model to load.
type ModelResolver interface {
	ResolveModel() (string, bool)
}

// preferredVoices are looked for in the models directory, in order.
var preferredVoices = []string{
	"cori-high.onnx",
	"en_US-cori-high.onnx",
	"en_US-amy-medium.onnx",
	"en_US-lessac-medium.onnx",
}

// SystemVoices are well-known system-wide voice model paths.
var SystemVoices = []string{
	"/usr/share/piper/voices/en_US-cori-high.onnx",
	"/usr/share/piper/voices/en_US-amy-medium.onnx",
	"/usr/share/piper/voices/en_US-lessac-medium.onnx",
	"/usr/local/share/piper/voices/en_US-cori-high.onnx",
}

// DefaultModelsDir returns the per-user directory for voice models.
func DefaultModelsDir() string {
	scope := gap.NewScope(gap.User, "grace-tts")
	dir, err := scope.DataPath("models")
	if err != nil || dir == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "grace-tts", "models")
	}
	return dir
}

// ModelFinder searches for a voice model: the configured path, preferred
// voices in the models directory, system voices, then any model in the
// models directory. The first hit is cached until the file disappears.
type ModelFinder struct {
	Configured string
	Dir        string
	System     []string

	mu     sync.Mutex
	cached string
}

// NewModelFinder creates a finder for cfg. An empty ModelsDir means
// DefaultModelsDir.
func NewModelFinder(cfg PiperConfig) *ModelFinder {
	dir := cfg.ModelsDir
	if dir == "" {
		dir = DefaultModelsDir()
	}
	return &ModelFinder{
		Configured: cfg.ModelPath,
		Dir:        dir,
		System:     SystemVoices,
	}
}

// ResolveModel returns the model path and whether one was found.
func (f *ModelFinder) ResolveModel() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != "" && isFile(f.cached) {
		return f.cached, true
	}
	f.cached = ""

	for _, candidate := range f.candidates() {
		if isFile(candidate) {
			f.cached = candidate
			return candidate, true
		}
	}
	return "", false
}

// Candidates lists every path considered, in search order.
func (f *ModelFinder) Candidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidates()
}

func (f *ModelFinder) candidates() []string {
	var out []string
	if f.Configured != "" {
		out = append(out, f.Configured)
	}
	if f.Dir != "" {
		for _, name := range preferredVoices {
			out = append(out, filepath.Join(f.Dir, name))
		}
	}
	out = append(out, f.System...)
	if f.Dir != "" {
		matches, _ := filepath.Glob(filepath.Join(f.Dir, "*"+engines.ModelExt))
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
