//go:build windows

package ipc

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/windows"
)

var procDisconnectNamedPipe = windows.NewLazySystemDLL("kernel32.dll").NewProc("DisconnectNamedPipe")

const (
	pipePrefix     = `\\.\pipe\`
	pipeBufferSize = 64 * 1024
)

// PipeName maps a configured socket path to a named pipe path. Values that
// already name a pipe are used as is.
func PipeName(path string) string {
	if strings.HasPrefix(path, pipePrefix) {
		return path
	}
	base := path
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".sock")
	if base == "" {
		base = "smartclip"
	}
	return pipePrefix + base
}

// overlappedIO runs one overlapped operation and waits for it.
func overlappedIO(h windows.Handle, op func(*windows.Overlapped) error) (uint32, error) {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(ev)

	ov := windows.Overlapped{HEvent: ev}
	err = op(&ov)
	if err != nil && !errors.Is(err, windows.ERROR_IO_PENDING) {
		return 0, err
	}
	var n uint32
	if err := windows.GetOverlappedResult(h, &ov, &n, true); err != nil {
		return n, err
	}
	return n, nil
}

// pipeConn is a net.Conn over an overlapped pipe handle. Reads and writes may
// run concurrently. Deadlines are not supported.
type pipeConn struct {
	handle   windows.Handle
	name     string
	server   bool
	closed   atomic.Bool
	closeMux sync.Mutex
}

func (c *pipeConn) Read(b []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	n, err := overlappedIO(c.handle, func(ov *windows.Overlapped) error {
		return windows.ReadFile(c.handle, b, nil, ov)
	})
	switch {
	case errors.Is(err, windows.ERROR_BROKEN_PIPE), errors.Is(err, windows.ERROR_PIPE_NOT_CONNECTED):
		return int(n), io.EOF
	case errors.Is(err, windows.ERROR_OPERATION_ABORTED):
		return int(n), net.ErrClosed
	}
	return int(n), err
}

func (c *pipeConn) Write(b []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	n, err := overlappedIO(c.handle, func(ov *windows.Overlapped) error {
		return windows.WriteFile(c.handle, b, nil, ov)
	})
	return int(n), err
}

func (c *pipeConn) Close() error {
	c.closeMux.Lock()
	defer c.closeMux.Unlock()
	if c.closed.Swap(true) {
		return nil
	}
	windows.CancelIoEx(c.handle, nil)
	if c.server {
		windows.FlushFileBuffers(c.handle)
		procDisconnectNamedPipe.Call(uintptr(c.handle))
	}
	return windows.CloseHandle(c.handle)
}

func (c *pipeConn) LocalAddr() net.Addr                { return pipeAddr(c.name) }
func (c *pipeConn) RemoteAddr() net.Addr               { return pipeAddr(c.name) }
func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// pipeListener creates one pipe instance per Accept.
type pipeListener struct {
	name   string
	first  bool
	closed atomic.Bool

	mu      sync.Mutex
	ready   windows.Handle // instance created ahead of Accept
	pending windows.Handle // instance waiting in ConnectNamedPipe
}

func newPipeListener(name string) *pipeListener {
	return &pipeListener{name: name, first: true, ready: windows.InvalidHandle, pending: windows.InvalidHandle}
}

// claim creates the first pipe instance so the name is owned before the
// first Accept.
func (l *pipeListener) claim() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, err := l.createInstance()
	if err != nil {
		return err
	}
	l.ready = h
	return nil
}

func (l *pipeListener) createInstance() (windows.Handle, error) {
	name, err := windows.UTF16PtrFromString(l.name)
	if err != nil {
		return windows.InvalidHandle, err
	}
	flags := uint32(windows.PIPE_ACCESS_DUPLEX | windows.FILE_FLAG_OVERLAPPED)
	if l.first {
		// Fails if another process already owns the name.
		flags |= windows.FILE_FLAG_FIRST_PIPE_INSTANCE
	}
	h, err := windows.CreateNamedPipe(name, flags,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT|windows.PIPE_REJECT_REMOTE_CLIENTS,
		windows.PIPE_UNLIMITED_INSTANCES, pipeBufferSize, pipeBufferSize, 0, nil)
	if err != nil {
		return windows.InvalidHandle, err
	}
	l.first = false
	return h, nil
}

func (l *pipeListener) Accept() (net.Conn, error) {
	if l.closed.Load() {
		return nil, net.ErrClosed
	}

	l.mu.Lock()
	h, err := l.ready, error(nil)
	l.ready = windows.InvalidHandle
	if h == windows.InvalidHandle {
		h, err = l.createInstance()
	}
	if err == nil {
		l.pending = h
	}
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	_, err = overlappedIO(h, func(ov *windows.Overlapped) error {
		return windows.ConnectNamedPipe(h, ov)
	})

	l.mu.Lock()
	l.pending = windows.InvalidHandle
	l.mu.Unlock()

	if err != nil && !errors.Is(err, windows.ERROR_PIPE_CONNECTED) {
		windows.CloseHandle(h)
		if l.closed.Load() {
			return nil, net.ErrClosed
		}
		return nil, err
	}
	return &pipeConn{handle: h, name: l.name, server: true}, nil
}

func (l *pipeListener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != windows.InvalidHandle {
		windows.CancelIoEx(l.pending, nil)
	}
	if l.ready != windows.InvalidHandle {
		windows.CloseHandle(l.ready)
		l.ready = windows.InvalidHandle
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr(l.name) }

// dialPipe connects to a pipe, retrying while every instance is busy.
func dialPipe(path string, timeout time.Duration) (net.Conn, error) {
	name := PipeName(path)
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		h, err := windows.CreateFile(p,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			0, nil, windows.OPEN_EXISTING, windows.FILE_FLAG_OVERLAPPED, 0)
		if err == nil {
			return &pipeConn{handle: h, name: name}, nil
		}
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
			return nil, ErrDaemonNotRunning
		}
		if !errors.Is(err, windows.ERROR_PIPE_BUSY) || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}
