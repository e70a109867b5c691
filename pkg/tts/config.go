package tts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/grace-ai/grace-tts/pkg/tts/engines"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultBufferCap is the ceiling on raw audio captured for one utterance.
const DefaultBufferCap = 10 * 1024 * 1024

// Config represents the speaker configuration
type Config struct {
	// Skip all audio work and report success
	Mute bool `yaml:"mute" mapstructure:"mute"`

	// Sample rate handed to players
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`

	// Engine settings
	Piper PiperConfig `yaml:"piper" mapstructure:"piper"`

	// Alternative TTS commands, tried in order
	FallbackEngines []engines.Command `yaml:"fallback_engines" mapstructure:"fallback_engines"`

	// Raw PCM players, tried in order
	Players []engines.Command `yaml:"players" mapstructure:"players"`

	// Bounds on every blocking wait
	Timeouts TimeoutConfig `yaml:"timeouts" mapstructure:"timeouts"`

	// Maximum audio bytes captured per utterance
	BufferCap int `yaml:"buffer_cap" mapstructure:"buffer_cap"`

	// Engine restart throttling
	Restart RestartConfig `yaml:"restart" mapstructure:"restart"`
}

// PiperConfig holds Piper-specific configuration
type PiperConfig struct {
	// Executable name or path
	Binary string `yaml:"binary" mapstructure:"binary"`

	// Path to the ONNX model file; searched for when empty
	ModelPath string `yaml:"model_path" mapstructure:"model_path"`

	// Directory searched for voice models
	ModelsDir string `yaml:"models_dir" mapstructure:"models_dir"`

	// Speaking pace, 1 is normal
	LengthScale float64 `yaml:"length_scale" mapstructure:"length_scale"`

	// Pause between sentences in seconds
	SentenceSilence float64 `yaml:"sentence_silence" mapstructure:"sentence_silence"`
}

// RestartConfig throttles engine restarts: one token per Interval, up to
// Burst restarts in a row.
type RestartConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Burst    int           `yaml:"burst" mapstructure:"burst"`
}

// MarshalYAML writes the interval in its human form.
func (c RestartConfig) MarshalYAML() (interface{}, error) {
	return map[string]interface{}{
		"interval": c.Interval.String(),
		"burst":    c.Burst,
	}, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Mute:       false,
		SampleRate: engines.PiperSampleRate,
		Piper: PiperConfig{
			Binary:          engines.PiperBinary,
			ModelPath:       "",
			ModelsDir:       "",
			LengthScale:     engines.DefaultLengthScale,
			SentenceSilence: engines.DefaultSentenceSilence,
		},
		FallbackEngines: engines.DefaultFallbackEngines(),
		Players:         engines.DefaultPlayers(),
		Timeouts:        DefaultTimeoutConfig(),
		BufferCap:       DefaultBufferCap,
		Restart: RestartConfig{
			Interval: 2 * time.Second,
			Burst:    5,
		},
	}
}

// LoadConfig decodes the settings held by v on top of the defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()
	// Command lists replace the defaults instead of merging into them.
	if v.IsSet("players") {
		config.Players = nil
	}
	if v.IsSet("fallback_engines") {
		config.FallbackEngines = nil
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigFile reads a single YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadConfig(v)
}

// normalize expands paths and fills zero values with defaults.
func (c *Config) normalize() {
	d := DefaultConfig()

	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Piper.Binary == "" {
		c.Piper.Binary = d.Piper.Binary
	}
	if c.Piper.LengthScale <= 0 {
		c.Piper.LengthScale = d.Piper.LengthScale
	}
	if c.Piper.SentenceSilence < 0 {
		c.Piper.SentenceSilence = d.Piper.SentenceSilence
	}
	if c.BufferCap <= 0 {
		c.BufferCap = d.BufferCap
	}
	if c.Restart.Interval <= 0 {
		c.Restart.Interval = d.Restart.Interval
	}
	if c.Restart.Burst <= 0 {
		c.Restart.Burst = d.Restart.Burst
	}
	c.Timeouts = c.Timeouts.withDefaults()

	c.Piper.ModelPath = expandPath(c.Piper.ModelPath)
	c.Piper.ModelsDir = expandPath(c.Piper.ModelsDir)
	c.Piper.Binary = expandPath(c.Piper.Binary)
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		log.Debug("Failed to expand path", "path", path, "error", err)
		return path
	}
	return expanded
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	var errs []error

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.BufferCap <= 0 {
		errs = append(errs, fmt.Errorf("buffer_cap must be positive, got %d", c.BufferCap))
	}
	if c.Timeouts.AttemptMin > c.Timeouts.AttemptMax {
		errs = append(errs, fmt.Errorf("timeouts.attempt_min (%s) exceeds attempt_max (%s)",
			c.Timeouts.AttemptMin, c.Timeouts.AttemptMax))
	}
	for _, cmd := range c.FallbackEngines {
		if err := cmd.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("fallback_engines: %w", err))
		}
	}
	for _, cmd := range c.Players {
		if err := cmd.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("players: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SaveConfig saves the configuration to file
func SaveConfig(config *Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("Saved configuration", "path", path)
	return nil
}

// GenerateExampleConfig generates an example configuration file
func GenerateExampleConfig() string {
	data, _ := yaml.Marshal(DefaultConfig())

	header := `# grace-tts configuration
#
# Commands are split like a shell would and may use these placeholders:
#   {text_file}    text to speak (fallback_engines)
#   {audio_file}   raw 16-bit mono PCM (players)
#   {sample_rate}  sample_rate below
#
# Entries are tried in order; the first one that exits 0 wins.

`

	return header + string(data)
}
