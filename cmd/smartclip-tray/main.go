// smartclip-tray - Windows notification area icon for smartclip
//
// The tray shows daemon status, toggles private mode, and opens the history
// panel from its menu or from the global hotkey (Alt+V, falling back to
// Ctrl+Shift+V when another application owns it).
package main

import (
	"flag"
	"fmt"
	"os"

	"smartclip/internal/config"
	"smartclip/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "smartclip-tray: %v\n", err)
		os.Exit(1)
	}

	log := logging.Default().WithComponent("tray")
	if err := runTray(cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "smartclip-tray: %v\n", err)
		os.Exit(1)
	}
}
