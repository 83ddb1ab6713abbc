//go:build !windows

package platform

// Registration is a live global hotkey. Global hotkeys are only
// implemented on Windows.
type Registration struct {
	hotkey  Hotkey
	pressed chan struct{}
}

// RegisterHotkey validates both combinations and returns ErrUnsupported.
func RegisterHotkey(primary, fallback string) (*Registration, error) {
	if _, err := parseCandidates(primary, fallback); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

// Hotkey returns the registered combination.
func (r *Registration) Hotkey() Hotkey { return r.hotkey }

// Pressed delivers key presses.
func (r *Registration) Pressed() <-chan struct{} { return r.pressed }

// Unregister releases the hotkey.
func (r *Registration) Unregister() error { return nil }
