// Package main provides the entry point for the grace-tts CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/grace-ai/grace-tts/pkg/tts"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	mute        bool
	modelPath   string
	sampleRate  int
	metricsAddr string

	rootCmd = &cobra.Command{
		Use:   "grace-tts",
		Short: "Best-effort local text-to-speech",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text through %s, falling back to espeak or festival when it can't.", keyword("piper")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("config") {
				return nil
			}
			return readConfigFlag()
		},
	}

	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Background(lipgloss.Color("235")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render
)

// readConfigFlag switches to the file named by --config.
func readConfigFlag() error {
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
	return nil
}

// loadConfig merges the config file, environment and flags.
func loadConfig() (*tts.Config, error) {
	cfg, err := tts.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("unable to load config: %w", err)
	}
	return cfg, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.BoolVarP(&mute, "mute", "m", false, "skip all audio output")
	flags.StringVar(&modelPath, "model", "", "path to a piper .onnx voice model")
	flags.IntVar(&sampleRate, "sample-rate", 0, "sample rate handed to players (default 22050)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")

	// Config bindings
	_ = viper.BindPFlag("mute", flags.Lookup("mute"))
	_ = viper.BindPFlag("piper.model_path", flags.Lookup("model"))
	_ = viper.BindPFlag("sample_rate", flags.Lookup("sample-rate"))

	rootCmd.AddCommand(speakCmd, statusCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "grace-tts")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "grace-tts")}, dirs...)
	}

	if c := os.Getenv("GRACE_TTS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("grace-tts")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("grace_tts")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "grace-tts.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}
