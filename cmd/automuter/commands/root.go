package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/cmd/automuter/internal/config"
	"github.com/haivivi/automuter/pkg/cli"
)

var (
	// Global flags
	verbose    bool
	configPath string
	outputFmt  string
	userID     string

	// globalConfig is loaded before any command that needs it runs.
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "automuter",
	Short: "Speaker verification service for the auto-mute extension",
	Long: `automuter - streaming speaker verification for automatic muting.

The serve command accepts audio chunks over a WebSocket and answers each
with a MUTE/UNMUTE decision against the user's enrolled speakers. The
remaining commands manage enrolled speakers and build enrollment material.

Configuration is read from config.yaml in the OS config directory:
  macOS:   ~/Library/Application Support/automuter/
  Linux:   ~/.config/automuter/
  Windows: %AppData%/automuter/
or from --config. A .env file in the working directory or the config
directory is loaded first; HF_AUTH_TOKEN sets the embedding gateway token.

Examples:
  # Run the server
  automuter serve --listen :8000

  # Enroll a speaker from a video range
  automuter enroll alice https://youtu.be/xyz --start 1:05 --end 1:40

  # Mine more clips of alice from a corpus
  automuter mine alice --seed samples/alice.wav --corpus raw/`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&configPath, "config", "", "config file (default: <config dir>/automuter/config.yaml)")
	pf.StringVarP(&outputFmt, "output", "o", "yaml", "output format (yaml, json)")
	pf.StringVarP(&userID, "user", "u", "default", "user whose speakers are managed")
}

func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if _, err := cli.ParseFormat(outputFmt); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config not available: %w", err)
	}
	globalConfig = cfg
	slog.Debug("config loaded", "path", cfg.Path)
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	if globalConfig == nil {
		return config.Default()
	}
	return globalConfig
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func output(v any) error {
	format, err := cli.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{Format: format, Writer: os.Stdout})
}
