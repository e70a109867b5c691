package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/grace-ai/grace-tts/pkg/tts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPathOnly bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Edit the grace-tts config file",
	Long: paragraph(fmt.Sprintf("\n%s the grace-tts config file in $EDITOR, writing the defaults there first when it is missing. "+
		"The file is loaded again once the editor exits, so mistakes show up right away.", keyword("Open"))),
	Example: paragraph("grace-tts config\ngrace-tts config --path\ngrace-tts config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE:    runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configPathOnly, "path", false, "print the config file location instead of editing it")
}

func runConfig(*cobra.Command, []string) error {
	if err := ensureConfigFile(); err != nil {
		return err
	}
	if configPathOnly {
		fmt.Println(configFile)
		return nil
	}

	if err := editFile(configFile); err != nil {
		return err
	}
	if _, err := tts.LoadConfigFile(configFile); err != nil {
		return fmt.Errorf("%s was saved but does not load: %w", configFile, err)
	}
	fmt.Println("Config saved:", configFile)
	return nil
}

// editFile opens path in the user's editor and waits for it to exit.
func editFile(path string) error {
	c, err := editor.Cmd("grace-tts", path)
	if err != nil {
		return fmt.Errorf("unable to find an editor: %w", err)
	}
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor exited with an error: %w", err)
	}
	return nil
}

// ensureConfigFile settles configFile and writes the example config there
// unless a file already exists.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no config file location known, pass --config")
	}

	switch ext := filepath.Ext(configFile); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("%q is not a supported config file type, use .yaml or .yml", ext)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	f, err := os.OpenFile(configFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to create config file: %w", err)
	}
	if _, err := f.WriteString(tts.GenerateExampleConfig()); err != nil {
		_ = f.Close()
		return fmt.Errorf("unable to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}
