//go:build !windows && !linux && !darwin

package ipc

import "net"

// GetPeerCredentials is not implemented here.
func GetPeerCredentials(net.Conn) (*PeerCredentials, error) {
	return nil, errPeerUnknown
}
