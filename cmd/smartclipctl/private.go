package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"smartclip/internal/ipc"
)

func init() {
	Command.AddCommand(privateCommand)
}

var privateCommand = &cobra.Command{
	Use:       "private [on|off]",
	Short:     "Show or set private mode; nothing is captured while it is on",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			var private bool
			if len(args) == 0 {
				status, err := client.Status(ctx)
				if err != nil {
					return err
				}
				private = status.PrivateMode
			} else {
				var err error
				private, err = client.SetPrivate(ctx, args[0] == "on")
				if err != nil {
					return err
				}
			}
			if jsonOutput {
				return printJSON(cmd, map[string]bool{"private_mode": private})
			}
			state := "off"
			if private {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Private mode %s\n", state)
			return nil
		})
	},
}
