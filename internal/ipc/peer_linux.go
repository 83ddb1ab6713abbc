//go:build linux

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// GetPeerCredentials reads SO_PEERCRED.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	var cred *PeerCredentials
	err := withSocketFD(conn, func(fd int) error {
		u, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err != nil {
			return err
		}
		cred = &PeerCredentials{PID: int(u.Pid), UID: int(u.Uid), GID: int(u.Gid)}
		return nil
	})
	return cred, err
}
