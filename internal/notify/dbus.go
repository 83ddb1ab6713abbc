package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// D-Bus names used for history change signals on the session bus.
const (
	BusName       = "org.smartclip.Daemon"
	HistoryPath   = dbus.ObjectPath("/org/smartclip/History")
	HistoryIface  = "org.smartclip.History"
	ChangedSignal = HistoryIface + ".Changed"
)

// emitter is the part of *dbus.Conn the sink needs.
type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// DBusSink broadcasts events as org.smartclip.History.Changed(reason, id,
// at_unix_nano) so desktop widgets can refresh without the IPC socket.
type DBusSink struct {
	conn    *dbus.Conn
	emit    emitter
	onError func(error)
}

// NewDBusSink connects to the session bus and claims BusName. onError
// receives emit failures; it may be nil.
func NewDBusSink(onError func(error)) (*DBusSink, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("bus name %s already taken", BusName)
	}

	return &DBusSink{conn: conn, emit: conn, onError: onError}, nil
}

// Notify implements Sink.
func (s *DBusSink) Notify(e Event) {
	err := s.emit.Emit(HistoryPath, ChangedSignal, string(e.Reason), e.ClipID, e.At.UnixNano())
	if err != nil && s.onError != nil {
		s.onError(fmt.Errorf("emit %s: %w", ChangedSignal, err))
	}
}

// Close releases the bus name. The shared session connection stays open.
func (s *DBusSink) Close() error {
	if s.conn == nil {
		return nil
	}
	_, err := s.conn.ReleaseName(BusName)
	return err
}
