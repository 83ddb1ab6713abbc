package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"smartclip/internal/ipc"
	"smartclip/internal/store"
)

func init() {
	Command.AddCommand(getCommand, deleteCommand, pinCommand, copyCommand, clearCommand)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid clip id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var getCommand = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a clip's content to stdout",
	Long: `Print a clip's content to stdout. Text is written as is; images are
written as PNG bytes, so redirect them to a file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			c, err := client.GetClip(ctx, ids[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, c)
			}
			w := cmd.OutOrStdout()
			if c.Kind == "image" {
				_, err = w.Write(c.Image)
				return err
			}
			_, err = io.WriteString(w, c.Text)
			return err
		})
	},
}

var deleteCommand = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Remove clips from history, pinned or not",
	Example: `
  # Delete a single clip
  smartclipctl delete 42

  # Delete every match of a search
  smartclipctl search 'BEGIN PRIVATE KEY' | awk '{ print $1 }' | xargs smartclipctl delete
  `,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			deleted := 0
			for _, id := range ids {
				ok, err := client.DeleteClip(ctx, id)
				if err != nil {
					return err
				}
				if ok {
					deleted++
				}
			}
			if jsonOutput {
				return printJSON(cmd, map[string]int{"deleted": deleted})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d clip(s)\n", deleted)
			return nil
		})
	},
}

var pinCommand = &cobra.Command{
	Use:   "pin <id>",
	Short: "Toggle a clip's pin; pinned clips survive clear",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			pinned, err := client.TogglePin(ctx, ids[0])
			if err != nil {
				return notFoundHint(err, ids[0])
			}
			if jsonOutput {
				return printJSON(cmd, map[string]bool{"pinned": pinned})
			}
			if pinned {
				fmt.Fprintf(cmd.OutOrStdout(), "Pinned %d\n", ids[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Unpinned %d\n", ids[0])
			}
			return nil
		})
	},
}

var copyCommand = &cobra.Command{
	Use:   "copy <id>",
	Short: "Put a clip back on the system clipboard",
	Long: `Put a clip back on the system clipboard. The daemon does not record
this write as a new capture and the clip keeps its place in history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			c, err := client.CopyClip(ctx, ids[0])
			if err != nil {
				return notFoundHint(err, ids[0])
			}
			if jsonOutput {
				return printJSON(cmd, c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %d: %s\n", c.ID, preview(*c))
			return nil
		})
	},
}

var clearCommand = &cobra.Command{
	Use:   "clear",
	Short: "Delete every unpinned clip and empty the paste queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			n, err := client.ClearUnpinned(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, map[string]int64{"deleted": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d clip(s)\n", n)
			return nil
		})
	},
}

func notFoundHint(err error, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clip %d not found (it may have expired)", id)
	}
	return err
}
