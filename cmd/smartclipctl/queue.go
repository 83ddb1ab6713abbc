package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"smartclip/internal/ipc"
	"smartclip/internal/queue"
	"smartclip/internal/store"
)

func init() {
	queueCommand.AddCommand(queueAddCommand, queueListCommand, queueNextCommand, queueClearCommand)
	Command.AddCommand(queueCommand)
}

var queueCommand = &cobra.Command{
	Use:   "queue",
	Short: "Manage the paste queue",
	Long: `The paste queue holds clips to paste in order. "queue next" copies the
front clip to the clipboard and removes it from the queue.`,
}

var queueAddCommand = &cobra.Command{
	Use:     "toggle <id>",
	Aliases: []string{"add"},
	Short:   "Add a clip to the back of the queue, or remove it if queued",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			resp, err := client.QueueToggle(ctx, ids[0])
			if err != nil {
				return notFoundHint(err, ids[0])
			}
			if jsonOutput {
				return printJSON(cmd, resp)
			}
			if resp.Queued {
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d (position %d)\n", ids[0], len(resp.Items))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d from the queue\n", ids[0])
			}
			return nil
		})
	},
}

var queueListCommand = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show queued clip ids, front first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			items, err := client.QueueList(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			for i, id := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%d\n", i+1, id)
			}
			return nil
		})
	},
}

var queueNextCommand = &cobra.Command{
	Use:   "next",
	Short: "Copy the front clip to the clipboard and dequeue it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			c, err := client.PasteNext(ctx)
			switch {
			case errors.Is(err, queue.ErrEmpty):
				return errors.New("queue is empty")
			case errors.Is(err, store.ErrNotFound):
				return errors.New("front clip no longer exists; it was dropped from the queue")
			case err != nil:
				return err
			}
			if jsonOutput {
				return printJSON(cmd, c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %d: %s\n", c.ID, preview(*c))
			return nil
		})
	},
}

var queueClearCommand = &cobra.Command{
	Use:   "clear",
	Short: "Empty the paste queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			if err := client.QueueClear(ctx); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
			}
			return nil
		})
	},
}
