//go:build darwin

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// GetPeerCredentials reads LOCAL_PEERCRED, plus LOCAL_PEERPID for the pid,
// which Xucred does not carry.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	var cred *PeerCredentials
	err := withSocketFD(conn, func(fd int) error {
		x, err := unix.GetsockoptXucred(fd, unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
		if err != nil {
			return err
		}
		cred = &PeerCredentials{UID: int(x.Uid)}
		if x.Ngroups > 0 {
			cred.GID = int(x.Groups[0])
		}
		if pid, err := unix.GetsockoptInt(fd, unix.SOL_LOCAL, unix.LOCAL_PEERPID); err == nil {
			cred.PID = pid
		}
		return nil
	})
	return cred, err
}
