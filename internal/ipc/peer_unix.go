//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var errPeerUnknown = errors.New("peer credentials not available on this platform")

// authorizePeer accepts a peer running under the daemon's uid. Where the
// platform cannot report peer credentials the socket file mode is the only
// access control.
func authorizePeer(conn net.Conn) (*PeerCredentials, error) {
	cred, err := GetPeerCredentials(conn)
	if errors.Is(err, errPeerUnknown) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peer credentials: %w", err)
	}
	if uid := os.Getuid(); cred.UID != uid {
		return cred, fmt.Errorf("peer uid %d is not the daemon uid %d", cred.UID, uid)
	}
	return cred, nil
}

// withSocketFD runs fn on the descriptor of a Unix socket connection.
func withSocketFD(conn net.Conn, fn func(fd int) error) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("not a unix connection: %T", conn)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return err
	}
	var fnErr error
	if err := raw.Control(func(fd uintptr) { fnErr = fn(int(fd)) }); err != nil {
		return err
	}
	return fnErr
}
