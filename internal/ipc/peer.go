package ipc

// PeerCredentials identifies the process on the other end of a connection.
// Fields the platform cannot report are zero.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}
