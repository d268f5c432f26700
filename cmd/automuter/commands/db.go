package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/pkg/cli"
)

var flagYes bool

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Initialize or wipe a user's speaker store",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the speaker store schema for --user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		g, err := a.store()
		if err != nil {
			return err
		}
		if err := g.Store().Init(context.Background(), userID); err != nil {
			return err
		}
		cli.PrintSuccess("initialized speaker store for %s in %s", userID, a.cfg.DataDir)
		return nil
	},
}

var dbWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every speaker and source of --user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagYes {
			return fmt.Errorf("refusing to wipe %s without --yes", userID)
		}
		a := newApp()
		defer a.close()
		g, err := a.store()
		if err != nil {
			return err
		}
		if err := g.Wipe(context.Background(), userID); err != nil {
			return err
		}
		cli.PrintSuccess("wiped speaker store for %s", userID)
		return nil
	},
}

func init() {
	dbWipeCmd.Flags().BoolVar(&flagYes, "yes", false, "confirm the wipe")
	dbCmd.AddCommand(dbInitCmd, dbWipeCmd)
	rootCmd.AddCommand(dbCmd)
}
