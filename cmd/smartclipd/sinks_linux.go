//go:build linux

package main

import "smartclip/internal/notify"

// addDesktopSinks publishes history changes on the session bus. A missing
// bus (headless sessions, CI) is not an error.
func (d *Daemon) addDesktopSinks() {
	log := d.log.WithComponent("dbus")
	sink, err := notify.NewDBusSink(func(err error) {
		log.Debug("dbus signal failed", "error", err)
	})
	if err != nil {
		log.Info("dbus notifications disabled", "reason", err)
		return
	}
	remove := d.hub.Add(sink)
	d.closers = append(d.closers, func() error {
		remove()
		return sink.Close()
	})
	log.Debug("dbus notifications enabled", "bus_name", notify.BusName)
}
