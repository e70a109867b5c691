package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generate man pages",
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err //nolint:wrapcheck
		}

		page = page.WithSection("Files", "grace-tts.yml in the user config directory, or the file given with --config.\n"+
			"Voice models (*.onnx) are searched for in the user data directory under grace-tts/models.")
		page = page.WithSection("Environment", "GRACE_TTS_LOG_LEVEL, GRACE_TTS_LOG_FILE and GRACE_TTS_DEBUG control logging.\n"+
			"Any config key may be set as GRACE_TTS_<KEY>, e.g. GRACE_TTS_MUTE=true.")
		fmt.Println(page.Build(roff.NewDocument()))
		return nil
	},
}
