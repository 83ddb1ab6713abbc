//go:build !windows

package main

import "syscall"

// detachedProcAttr starts the background daemon in its own session so it
// outlives the launching terminal.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
