package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/cmd/automuter/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	// version must work without a readable config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, build.String())
		if IsVerbose() {
			fmt.Fprintf(w, "  go:     %s\n", runtime.Version())
			cfg := GetConfig()
			if cfg.Path != "" {
				fmt.Fprintf(w, "  config: %s\n", cfg.Path)
			} else {
				fmt.Fprintf(w, "  config: (defaults)\n")
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
