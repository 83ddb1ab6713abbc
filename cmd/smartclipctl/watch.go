package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"smartclip/internal/ipc"
)

func init() {
	Command.AddCommand(watchCommand)
}

var watchCommand = &cobra.Command{
	Use:   "watch",
	Short: "Print history and private mode changes as they happen",
	Long: `Print history and private mode changes as they happen, one line per
event, until interrupted or the daemon shuts down.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Subscribe(cmd.Context()); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}

		out := cmd.OutOrStdout()
		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case <-client.Done():
				return nil
			case ev := <-client.Events():
				if jsonOutput {
					if err := printJSON(cmd, ev); err != nil {
						return err
					}
					continue
				}
				line := fmt.Sprintf("%s\t%s", ev.Timestamp.Local().Format(time.TimeOnly), ev.Type)
				if ev.Reason != "" {
					line += "\t" + ev.Reason
				}
				if ev.ClipID != 0 {
					line += fmt.Sprintf("\tclip=%d", ev.ClipID)
				}
				if ev.Type == ipc.EventPrivateModeChanged {
					line += fmt.Sprintf("\tprivate=%t", ev.PrivateMode)
				}
				fmt.Fprintln(out, line)
				if ev.Type == ipc.EventDaemonShutdown {
					return nil
				}
			}
		}
	},
}
