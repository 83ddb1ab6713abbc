//go:build !linux

package main

// addDesktopSinks is a no-op; IPC subscribers are the only fan-out here.
func (d *Daemon) addDesktopSinks() {}
