//go:build !windows

package ipc

import (
	"errors"
	"net"
	"os"
	"syscall"
	"time"
)

func dial(path string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("unix", path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	return conn, nil
}
