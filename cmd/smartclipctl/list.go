package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"smartclip/internal/ipc"
)

var (
	listLimit  int
	listOffset int
	listRange  string
)

func init() {
	for _, c := range []*cobra.Command{listCommand, searchCommand} {
		fset := c.Flags()
		fset.IntVarP(&listLimit, "limit", "n", 0, "maximum clips to show (default from daemon config)")
		fset.IntVar(&listOffset, "offset", 0, "skip this many clips")
		fset.StringVarP(&listRange, "range", "r", "all", "date range: all, today or week")
	}
	Command.AddCommand(listCommand, searchCommand)
}

func runList(cmd *cobra.Command, query string) error {
	return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
		clips, err := client.ListClips(ctx, ipc.ListClipsRequest{
			Limit:  listLimit,
			Offset: listOffset,
			Query:  query,
			Range:  listRange,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, clips)
		}
		return printClips(cmd.OutOrStdout(), clips, time.Now())
	})
}

var listCommand = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clipboard history, pinned first, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runList(cmd, "")
	},
}

var searchCommand = &cobra.Command{
	Use:   "search <query>",
	Short: "Search text clips",
	Example: `
  # Case-insensitive substring
  smartclipctl search invoice

  # Fuzzy: letters in order, gaps allowed
  smartclipctl search '~invce'

  # Regular expression
  smartclipctl search '/^https?://'

  # Only today's matches
  smartclipctl search --range today token
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, args[0])
	},
}
