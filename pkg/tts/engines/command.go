package engines

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Placeholders substituted into command templates.
const (
	PlaceholderTextFile   = "{text_file}"
	PlaceholderAudioFile  = "{audio_file}"
	PlaceholderSampleRate = "{sample_rate}"
)

// ErrEmptyCommand is returned when a template has no words.
var ErrEmptyCommand = errors.New("empty command template")

// Command is a named command-line template for an external binary.
type Command struct {
	Name    string `yaml:"name" mapstructure:"name" json:"name"`
	Command string `yaml:"command" mapstructure:"command" json:"command"`
}

// DefaultFallbackEngines returns the alternative TTS commands in the order
// they are tried when piper cannot speak.
func DefaultFallbackEngines() []Command {
	return []Command{
		{Name: "espeak", Command: "espeak -f " + PlaceholderTextFile},
		{Name: "festival", Command: "festival --tts " + PlaceholderTextFile},
	}
}

// DefaultPlayers returns the raw PCM players in the order they are tried.
func DefaultPlayers() []Command {
	return []Command{
		{Name: "aplay", Command: "aplay -r " + PlaceholderSampleRate + " -f S16_LE -c 1 " + PlaceholderAudioFile},
		{Name: "play", Command: "play -r " + PlaceholderSampleRate + " -b 16 -c 1 -e signed -t raw " + PlaceholderAudioFile},
		{Name: "paplay", Command: "paplay --raw --rate " + PlaceholderSampleRate + " --format s16le --channels 1 " + PlaceholderAudioFile},
	}
}

// Words splits the template into shell words without substitution.
func (c Command) Words() ([]string, error) {
	parser := shellwords.NewParser()
	words, err := parser.Parse(c.Command)
	if err != nil {
		return nil, fmt.Errorf("parse %s command: %w", c.Name, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrEmptyCommand)
	}
	return words, nil
}

// Binary returns the executable named by the template.
func (c Command) Binary() (string, error) {
	words, err := c.Words()
	if err != nil {
		return "", err
	}
	return words[0], nil
}

// Expand splits the template and substitutes placeholders word by word, so
// a substituted path containing spaces stays a single argument.
func (c Command) Expand(vars map[string]string) ([]string, error) {
	words, err := c.Words()
	if err != nil {
		return nil, err
	}

	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	r := strings.NewReplacer(pairs...)

	for i, w := range words {
		words[i] = r.Replace(w)
	}
	return words, nil
}

// Validate checks that the command has a name and a parseable template.
func (c Command) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("command %q: missing name", c.Command)
	}
	_, err := c.Words()
	return err
}
