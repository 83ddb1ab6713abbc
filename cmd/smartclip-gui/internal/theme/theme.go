// Package theme holds the panel's colours and sizes.
package theme

import (
	"image/color"
	"runtime"

	"gioui.org/unit"
	"gioui.org/widget/material"
)

// Palette is the panel's colour set. Both variants are dark.
type Palette struct {
	Background color.NRGBA
	Surface    color.NRGBA
	Selected   color.NRGBA
	Primary    color.NRGBA
	Text       color.NRGBA
	TextMuted  color.NRGBA
	Border     color.NRGBA
	Pinned     color.NRGBA
	OTP        color.NRGBA
	Error      color.NRGBA
}

// Config holds sizes.
type Config struct {
	CornerRadius unit.Dp
	Spacing      unit.Dp
	Padding      unit.Dp
	RowHeight    unit.Dp
	FontTitle    unit.Sp
	FontBody     unit.Sp
	FontCaption  unit.Sp
}

// Theme is a material theme plus the panel's own palette and sizes.
type Theme struct {
	*material.Theme
	Palette Palette
	Config  Config
}

// rgb turns 0xRRGGBB into an opaque colour.
func rgb(v uint32) color.NRGBA {
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// Fluent-style colours, used everywhere but macOS.
var fluent = Palette{
	Background: rgb(0x202020),
	Surface:    rgb(0x2c2c2c),
	Selected:   rgb(0x383838),
	Primary:    rgb(0x0078d4),
	Text:       rgb(0xffffff),
	TextMuted:  rgb(0xa0a0a0),
	Border:     rgb(0x404040),
	Pinned:     rgb(0xffb900),
	OTP:        rgb(0x6bbc0f),
	Error:      rgb(0xe81123),
}

var fluentSizes = Config{
	CornerRadius: 4, Spacing: 8, Padding: 12, RowHeight: 48,
	FontTitle: 18, FontBody: 14, FontCaption: 12,
}

// macOS dark appearance system colours.
var aqua = Palette{
	Background: rgb(0x1e1e1e),
	Surface:    rgb(0x262626),
	Selected:   rgb(0x343436),
	Primary:    rgb(0x0a84ff),
	Text:       rgb(0xf5f5f7),
	TextMuted:  rgb(0x86868b),
	Border:     rgb(0x3a3a3c),
	Pinned:     rgb(0xff9f0a),
	OTP:        rgb(0x30d158),
	Error:      rgb(0xff453a),
}

var aquaSizes = Config{
	CornerRadius: 10, Spacing: 10, Padding: 16, RowHeight: 52,
	FontTitle: 20, FontBody: 13, FontCaption: 11,
}

// NewTheme picks the variant for this OS and pushes its colours into the
// material theme so stock widgets match.
func NewTheme(base *material.Theme) *Theme {
	t := &Theme{Theme: base, Palette: fluent, Config: fluentSizes}
	if runtime.GOOS == "darwin" {
		t.Palette, t.Config = aqua, aquaSizes
	}

	base.Palette.Bg = t.Palette.Background
	base.Palette.Fg = t.Palette.Text
	base.Palette.ContrastBg = t.Palette.Primary
	base.Palette.ContrastFg = t.Palette.Text
	base.TextSize = t.Config.FontBody
	return t
}
