// smartclip-gui - clipboard history panel
//
// The panel connects to smartclipd, shows the history with search and date
// filters, and writes the chosen clip back to the clipboard. By default it
// closes after a clip is copied, so it can be bound to a hotkey.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gioui.org/app"
	"gioui.org/io/system"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"smartclip/cmd/smartclip-gui/internal/backend"
	"smartclip/cmd/smartclip-gui/internal/theme"
	"smartclip/cmd/smartclip-gui/internal/ui"
	"smartclip/internal/config"
	"smartclip/internal/ipc"
	"smartclip/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	socket := flag.String("socket", "", "daemon socket (default from config)")
	configPath := flag.String("config", "", "configuration file")
	stayOpen := flag.Bool("stay-open", false, "keep the panel open after copying a clip")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if *socket == "" {
		*socket = cfg.IPC.SocketPath
	}

	log := logging.Default().WithComponent("gui")

	clientCfg := ipc.DefaultClientConfig(*socket)
	clientCfg.ClientName = "smartclip-gui"
	clientCfg.ClientVersion = Version
	client := ipc.NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "smartclip-gui: %v\nStart the daemon with: smartclipd start\n", err)
		os.Exit(1)
	}

	go func() {
		w := new(app.Window)
		w.Option(app.Title("smartclip"))
		w.Option(app.Size(unit.Dp(560), unit.Dp(640)))

		err := run(w, client, !*stayOpen, log)
		client.Close()
		if err != nil {
			log.Error("panel exited", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
}

func run(w *app.Window, client *ipc.IPCClient, closeOnCopy bool, log *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be := backend.New(client, w.Invalidate, log)
	if closeOnCopy {
		be.OnCopied(func() { w.Perform(system.ActionClose) })
	}
	go func() {
		if err := be.Run(ctx); err != nil {
			log.Error("panel backend stopped", "error", err)
		}
		w.Invalidate()
	}()

	t := theme.NewTheme(material.NewTheme())
	panel := ui.NewPanel(t, be)

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			panel.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}
