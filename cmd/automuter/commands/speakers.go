package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/automuter/pkg/cli"
	"github.com/haivivi/automuter/pkg/speakerstore"
)

var flagTimestamp string

var speakersCmd = &cobra.Command{
	Use:   "speakers",
	Short: "Manage enrolled speakers",
}

var speakersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled speakers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		g, err := a.store()
		if err != nil {
			return err
		}
		speakers, err := g.Store().Speakers(context.Background(), userID)
		if err != nil {
			return err
		}
		if speakers == nil {
			speakers = []speakerstore.Speaker{}
		}
		return output(speakers)
	},
}

type speakerView struct {
	speakerstore.Speaker `yaml:",inline"`
	Sources              []sourceView `json:"sources"`
}

type sourceView struct {
	speakerstore.Source `yaml:",inline"`
	Dimension           int `json:"dimension"`
}

var speakersShowCmd = &cobra.Command{
	Use:   "show <speaker>",
	Short: "Show a speaker and its sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		g, err := a.store()
		if err != nil {
			return err
		}
		ctx := context.Background()
		spk, err := g.Store().Speaker(ctx, userID, args[0])
		if err != nil {
			return err
		}
		srcs, err := g.Store().Sources(ctx, userID, args[0])
		if err != nil {
			return err
		}
		view := speakerView{Speaker: *spk, Sources: []sourceView{}}
		for _, s := range srcs {
			view.Sources = append(view.Sources, sourceView{Source: s, Dimension: len(s.Embedding) / 4})
		}
		return output(view)
	},
}

var speakersDeleteCmd = &cobra.Command{
	Use:   "delete <speaker>",
	Short: "Delete a speaker and all of its sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		g, err := a.store()
		if err != nil {
			return err
		}
		if err := g.RemoveSpeaker(context.Background(), userID, args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("removed speaker %q", args[0])
		return nil
	},
}

var speakersDeleteSourceCmd = &cobra.Command{
	Use:   "delete-source <speaker> <url>",
	Short: "Delete sources of a speaker by URL (and --timestamp)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		g, err := a.store()
		if err != nil {
			return err
		}
		n, err := g.RemoveSource(context.Background(), userID, args[0], args[1], flagTimestamp)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no source %s for speaker %q", args[1], args[0])
		}
		cli.PrintSuccess("removed %d source(s) of %q", n, args[0])
		return nil
	},
}

func init() {
	speakersDeleteSourceCmd.Flags().StringVar(&flagTimestamp, "timestamp", "", `only the source with this range ("start-end")`)

	speakersCmd.AddCommand(speakersListCmd, speakersShowCmd, speakersDeleteCmd, speakersDeleteSourceCmd)
	rootCmd.AddCommand(speakersCmd)
}
