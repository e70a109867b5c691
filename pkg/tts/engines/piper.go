package engines

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Audio format constants for Piper
const (
	// PiperSampleRate is the default sample rate for Piper TTS
	PiperSampleRate = 22050
	// PiperBitsPerSample is the bit depth for PCM audio
	PiperBitsPerSample = 16
	// PiperChannels is the number of audio channels (mono)
	PiperChannels = 1
	// PiperBinary is the executable name looked up on PATH
	PiperBinary = "piper"
	// DefaultLengthScale is the normal speaking pace
	DefaultLengthScale = 1.0
	// DefaultSentenceSilence is the pause in seconds between sentences
	DefaultSentenceSilence = 0.2
	// ModelExt is the file extension of ONNX voice models
	ModelExt = ".onnx"
)

// PiperError represents Piper-specific errors
type PiperError struct {
	Type    string
	Message string
	Cause   error
}

func (e *PiperError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("piper %s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("piper %s: %s", e.Type, e.Message)
}

func (e *PiperError) Unwrap() error {
	return e.Cause
}

// PiperOptions holds the values that vary in the streaming command line.
type PiperOptions struct {
	ModelPath       string
	LengthScale     float64
	SentenceSilence float64
}

// PiperArgs returns the argument list for a long-lived piper process that
// reads one utterance per input line and writes raw 16-bit PCM to stdout.
func PiperArgs(opts PiperOptions) []string {
	lengthScale := opts.LengthScale
	if lengthScale <= 0 {
		lengthScale = DefaultLengthScale
	}
	silence := opts.SentenceSilence
	if silence < 0 {
		silence = DefaultSentenceSilence
	}

	return []string{
		"--model", opts.ModelPath,
		"--output_raw",
		"--length_scale", formatFloat(lengthScale),
		"--sentence_silence", formatFloat(silence),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ValidateModel checks that path names a readable ONNX voice model.
func ValidateModel(path string) error {
	if path == "" {
		return &PiperError{
			Type:    "model",
			Message: "no voice model configured",
		}
	}

	if !strings.HasSuffix(path, ModelExt) {
		return &PiperError{
			Type:    "model",
			Message: "model file must be an ONNX file (.onnx extension)",
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &PiperError{
			Type:    "model",
			Message: fmt.Sprintf("model file not found: %s", path),
			Cause:   err,
		}
	}
	if info.IsDir() {
		return &PiperError{
			Type:    "model",
			Message: fmt.Sprintf("model path is a directory: %s", path),
		}
	}

	return nil
}

// VoiceName extracts the voice name from a model path.
func VoiceName(modelPath string) string {
	return filepath.Base(strings.TrimSuffix(modelPath, ModelExt))
}
