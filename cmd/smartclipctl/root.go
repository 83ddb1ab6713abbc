package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"smartclip/internal/config"
	"smartclip/internal/ipc"
)

var (
	socketPath string
	configPath string
	jsonOutput bool
	timeout    time.Duration
)

func init() {
	pfset := Command.PersistentFlags()
	pfset.StringVarP(&socketPath, "socket", "s", "", "daemon socket (default from config)")
	pfset.StringVarP(&configPath, "config", "c", "", "configuration file used to find the socket")
	pfset.BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	pfset.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
}

// Command is the root command for smartclipctl.
var Command = &cobra.Command{
	Use:           "smartclipctl",
	Short:         "Control the smartclip clipboard history daemon",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// resolveSocket picks the socket from the flag, then the configuration
// (which honours SMARTCLIP_SOCKET_PATH), then the platform default.
func resolveSocket() string {
	if socketPath != "" {
		return socketPath
	}
	cfg, err := config.Load(configPath)
	if err != nil || cfg.IPC.SocketPath == "" {
		return config.DefaultSocketPath()
	}
	return cfg.IPC.SocketPath
}

// connect dials the daemon. The caller closes the client.
func connect() (*ipc.IPCClient, error) {
	cfg := ipc.DefaultClientConfig(resolveSocket())
	cfg.ClientName = "smartclipctl"
	cfg.ClientVersion = Version
	cfg.RequestTimeout = timeout

	client := ipc.NewClient(cfg)
	if err := client.Connect(); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			return nil, fmt.Errorf("%w (start it with: smartclipd start)", err)
		}
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return client, nil
}

// withClient runs fn with a connected client and a request deadline.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *ipc.IPCClient) error) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return fn(ctx, client)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
