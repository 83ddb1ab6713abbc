package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smartclip/internal/ipc"
)

func init() {
	Command.AddCommand(statusCommand)
}

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and capture counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, client *ipc.IPCClient) error {
			s, err := client.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, s)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Version\t%s\n", s.Version)
			fmt.Fprintf(tw, "Uptime\t%s\n", s.Uptime.Round(time.Second))
			fmt.Fprintf(tw, "Capturing\t%t\n", s.Capturing)
			fmt.Fprintf(tw, "Private mode\t%t\n", s.PrivateMode)
			fmt.Fprintf(tw, "Clips\t%d\n", s.ClipCount)
			fmt.Fprintf(tw, "Queue\t%d\n", s.QueueLength)
			if !s.LastCapture.IsZero() {
				fmt.Fprintf(tw, "Last capture\t%s\n", age(s.LastCapture, time.Now()))
			}
			fmt.Fprintf(tw, "Accepted\t%d\n", s.Capture.Accepted)
			fmt.Fprintf(tw, "Duplicates\t%d\n", s.Capture.Duplicates)
			fmt.Fprintf(tw, "Self-writes\t%d\n", s.Capture.SelfWrites)
			fmt.Fprintf(tw, "Too large\t%d\n", s.Capture.TooLarge)
			fmt.Fprintf(tw, "Read errors\t%d\n", s.Capture.ReadErrors)
			fmt.Fprintf(tw, "Store errors\t%d\n", s.Capture.StoreErrors)
			fmt.Fprintf(tw, "Expired OTPs\t%d\n", s.ExpiredTotal)
			fmt.Fprintf(tw, "Clients\t%d\n", s.Clients)
			return tw.Flush()
		})
	},
}
