//go:build !windows

package platform

// ClipboardHistoryEnabled is only meaningful on Windows.
func ClipboardHistoryEnabled() (bool, error) { return false, ErrUnsupported }

// DisableClipboardHistory is only meaningful on Windows.
func DisableClipboardHistory() error { return ErrUnsupported }

// EnableClipboardHistory is only meaningful on Windows.
func EnableClipboardHistory() error { return ErrUnsupported }
