package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/grace-ai/grace-tts/pkg/tts"
	"github.com/spf13/cobra"
)

var (
	statusJSON  bool
	statusStart bool
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show engine, voice model and dependency status",
	Example: paragraph("grace-tts status\ngrace-tts status --start --json"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		speaker, err := tts.NewSpeaker(cfg, tts.WithLogger(log.Default()))
		if err != nil {
			return fmt.Errorf("unable to create speaker: %w", err)
		}
		defer speaker.Stop()

		if statusStart {
			// The failure shows up as last_error below.
			_ = speaker.Start()
		}

		st := speaker.Status()
		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st) //nolint:wrapcheck
		}

		fmt.Println(st.Render())
		fmt.Println(tts.PrintReport(tts.CheckDependencies(cfg, tts.SystemPath, tts.NewModelFinder(cfg.Piper))))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
	statusCmd.Flags().BoolVar(&statusStart, "start", false, "start the engine before reporting")
}
