// smartclipctl - control the smartclip daemon
//
// smartclipctl talks to smartclipd over its local socket. Every command is
// a thin wrapper around one IPC request.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	Command.Version = Version
	if err := Command.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
