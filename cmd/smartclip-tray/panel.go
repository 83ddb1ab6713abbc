package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// panelLauncher starts the history panel as a child process and closes it
// again on the next toggle.
type panelLauncher struct {
	path string
	args []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// newPanelLauncher looks for smartclip-gui next to the running executable,
// then on PATH.
func newPanelLauncher(args ...string) *panelLauncher {
	name := "smartclip-gui"
	if exe, err := os.Executable(); err == nil {
		for _, candidate := range []string{name, name + ".exe"} {
			p := filepath.Join(filepath.Dir(exe), candidate)
			if _, err := os.Stat(p); err == nil {
				return &panelLauncher{path: p, args: args}
			}
		}
	}
	return &panelLauncher{path: name, args: args}
}

// Toggle opens the panel if it is closed and closes it if it is open.
func (p *panelLauncher) Toggle() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		cmd := p.cmd
		p.cmd = nil
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("close panel: %w", err)
		}
		return nil
	}

	cmd := exec.Command(p.path, p.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open panel: %w", err)
	}
	p.cmd = cmd

	// Forget the process once it exits by itself, e.g. after a copy.
	go func() {
		cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
	}()
	return nil
}

// Open reports whether the panel process is running.
func (p *panelLauncher) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Close ends the panel if it is open.
func (p *panelLauncher) Close() {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.mu.Unlock()
	if cmd != nil {
		cmd.Process.Kill()
	}
}
