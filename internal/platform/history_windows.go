//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const (
	clipboardKeyPath   = `Software\Microsoft\Clipboard`
	clipboardValueName = "EnableClipboardHistory"
)

// ClipboardHistoryEnabled reports whether the built-in Windows clipboard
// history (Win+V) is on. A missing value means the system default, which
// is enabled.
func ClipboardHistoryEnabled() (bool, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, clipboardKeyPath, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("open clipboard key: %w", err)
	}
	defer k.Close()

	v, _, err := k.GetIntegerValue(clipboardValueName)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("read %s: %w", clipboardValueName, err)
	}
	return v != 0, nil
}

// DisableClipboardHistory turns the built-in history off for the current
// user so it does not duplicate smartclip's own.
func DisableClipboardHistory() error {
	return setClipboardHistory(0)
}

// EnableClipboardHistory restores the built-in history.
func EnableClipboardHistory() error {
	return setClipboardHistory(1)
}

func setClipboardHistory(v uint32) error {
	k, _, err := registry.CreateKey(registry.CURRENT_USER, clipboardKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open clipboard key: %w", err)
	}
	defer k.Close()

	if err := k.SetDWordValue(clipboardValueName, v); err != nil {
		return fmt.Errorf("write %s: %w", clipboardValueName, err)
	}
	return nil
}
