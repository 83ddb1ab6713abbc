package platform

import (
	"errors"
	"fmt"
	"strings"
)

// Modifier flags. The values match the Win32 MOD_* constants so a parsed
// Hotkey can be handed to RegisterHotKey unchanged.
const (
	ModAlt      uint32 = 0x0001
	ModControl  uint32 = 0x0002
	ModShift    uint32 = 0x0004
	ModWin      uint32 = 0x0008
	ModNoRepeat uint32 = 0x4000
)

// ErrHotkeyTaken is returned when neither the primary nor the fallback
// combination could be registered.
var ErrHotkeyTaken = errors.New("platform: hotkey already registered by another application")

// Hotkey is a parsed key combination such as "Ctrl+Shift+V".
type Hotkey struct {
	Modifiers uint32
	Key       uint32 // virtual-key code
	Spec      string
}

func (h Hotkey) String() string { return h.Spec }

var modifierNames = map[string]uint32{
	"alt":     ModAlt,
	"ctrl":    ModControl,
	"control": ModControl,
	"shift":   ModShift,
	"win":     ModWin,
	"super":   ModWin,
	"cmd":     ModWin,
}

var namedKeys = map[string]uint32{
	"space":  0x20,
	"enter":  0x0D,
	"return": 0x0D,
	"tab":    0x09,
	"esc":    0x1B,
	"escape": 0x1B,
	"insert": 0x2D,
	"delete": 0x2E,
	"home":   0x24,
	"end":    0x23,
	"pgup":   0x21,
	"pgdn":   0x22,
}

// ParseHotkey parses a "+"-separated combination. At least one modifier
// and exactly one key are required; letters, digits, F1-F24 and a few
// named keys are accepted. Matching is case-insensitive.
func ParseHotkey(spec string) (Hotkey, error) {
	parts := strings.Split(spec, "+")
	if len(parts) < 2 {
		return Hotkey{}, fmt.Errorf("parse hotkey %q: need a modifier and a key", spec)
	}

	var hk Hotkey
	for i, raw := range parts {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			return Hotkey{}, fmt.Errorf("parse hotkey %q: empty component", spec)
		}
		if i < len(parts)-1 {
			mod, ok := modifierNames[name]
			if !ok {
				return Hotkey{}, fmt.Errorf("parse hotkey %q: unknown modifier %q", spec, raw)
			}
			if hk.Modifiers&mod != 0 {
				return Hotkey{}, fmt.Errorf("parse hotkey %q: duplicate modifier %q", spec, raw)
			}
			hk.Modifiers |= mod
			continue
		}
		vk, err := keyCode(name)
		if err != nil {
			return Hotkey{}, fmt.Errorf("parse hotkey %q: %w", spec, err)
		}
		hk.Key = vk
	}
	hk.Spec = spec
	return hk, nil
}

func keyCode(name string) (uint32, error) {
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return uint32(c - 'a' + 'A'), nil
		case c >= '0' && c <= '9':
			return uint32(c), nil
		}
	}
	if vk, ok := namedKeys[name]; ok {
		return vk, nil
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("f%d", n) {
		return 0x70 + uint32(n-1), nil
	}
	return 0, fmt.Errorf("unknown key %q", name)
}

// parseCandidates parses primary and, when set and different, fallback.
func parseCandidates(primary, fallback string) ([]Hotkey, error) {
	first, err := ParseHotkey(primary)
	if err != nil {
		return nil, err
	}
	candidates := []Hotkey{first}
	if fallback == "" || strings.EqualFold(fallback, primary) {
		return candidates, nil
	}
	second, err := ParseHotkey(fallback)
	if err != nil {
		return nil, err
	}
	return append(candidates, second), nil
}
