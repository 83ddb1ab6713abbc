// Package ui lays out the history panel.
package ui

import (
	"fmt"
	"image"
	"strings"
	"time"

	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"smartclip/cmd/smartclip-gui/internal/backend"
	"smartclip/cmd/smartclip-gui/internal/theme"
)

type (
	C = layout.Context
	D = layout.Dimensions
)

// Actions is what the panel asks of the backend.
type Actions interface {
	Snapshot() backend.Snapshot
	SetFilter(query, rng string)
	Copy(id int64)
	TogglePin(id int64)
	Delete(id int64)
	ClearUnpinned()
	SetPrivate(on bool)
	ToggleQueued(id int64)
	PasteNext()
	ClearQueue()
}

type row struct {
	copy  widget.Clickable
	pin   widget.Clickable
	queue widget.Clickable
	del   widget.Clickable
}

type thumb struct {
	src image.Image
	op  paint.ImageOp
}

// Panel is the history window: search box, date filter, private toggle,
// clip list and paste queue controls.
type Panel struct {
	theme   *theme.Theme
	actions Actions
	now     func() time.Time

	search     widget.Editor
	dateRange  widget.Enum
	private    widget.Bool
	clearBtn   widget.Clickable
	nextBtn    widget.Clickable
	clearQueue widget.Clickable
	list       widget.List

	rows   map[int64]*row
	thumbs map[int64]thumb
}

// NewPanel creates a panel driven by actions.
func NewPanel(t *theme.Theme, actions Actions) *Panel {
	p := &Panel{
		theme:   t,
		actions: actions,
		now:     time.Now,
		rows:    make(map[int64]*row),
		thumbs:  make(map[int64]thumb),
	}
	p.search.SingleLine = true
	p.search.Submit = true
	p.dateRange.Value = "all"
	p.list.Axis = layout.Vertical
	return p
}

// update handles input from the previous frame.
func (p *Panel) update(gtx C, snap backend.Snapshot) {
	filterChanged := false
	for {
		ev, ok := p.search.Update(gtx)
		if !ok {
			break
		}
		switch ev.(type) {
		case widget.ChangeEvent:
			filterChanged = true
		case widget.SubmitEvent:
			if len(snap.Items) > 0 {
				p.actions.Copy(snap.Items[0].ID)
			}
		}
	}
	if p.dateRange.Update(gtx) {
		filterChanged = true
	}
	if filterChanged {
		p.actions.SetFilter(p.search.Text(), p.dateRange.Value)
	}

	if p.private.Update(gtx) {
		p.actions.SetPrivate(p.private.Value)
	} else {
		p.private.Value = snap.Private
	}

	if p.clearBtn.Clicked(gtx) {
		p.actions.ClearUnpinned()
	}
	if p.nextBtn.Clicked(gtx) {
		p.actions.PasteNext()
	}
	if p.clearQueue.Clicked(gtx) {
		p.actions.ClearQueue()
	}

	live := make(map[int64]*row, len(snap.Items))
	for _, it := range snap.Items {
		r := p.rows[it.ID]
		if r == nil {
			r = new(row)
		}
		live[it.ID] = r

		if r.copy.Clicked(gtx) {
			p.actions.Copy(it.ID)
		}
		if r.pin.Clicked(gtx) {
			p.actions.TogglePin(it.ID)
		}
		if r.queue.Clicked(gtx) {
			p.actions.ToggleQueued(it.ID)
		}
		if r.del.Clicked(gtx) {
			p.actions.Delete(it.ID)
		}
	}
	p.rows = live
}

// Layout draws the panel.
func (p *Panel) Layout(gtx C) D {
	snap := p.actions.Snapshot()
	p.update(gtx, snap)

	paint.Fill(gtx.Ops, p.theme.Palette.Background)

	return layout.UniformInset(p.theme.Config.Padding).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(p.layoutHeader),
			layout.Rigid(layout.Spacer{Height: p.theme.Config.Spacing}.Layout),
			layout.Rigid(p.layoutSearch),
			layout.Rigid(layout.Spacer{Height: p.theme.Config.Spacing}.Layout),
			layout.Rigid(p.layoutFilters),
			layout.Rigid(layout.Spacer{Height: p.theme.Config.Spacing}.Layout),
			layout.Flexed(1, func(gtx C) D { return p.layoutList(gtx, snap) }),
			layout.Rigid(layout.Spacer{Height: p.theme.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D { return p.layoutFooter(gtx, snap) }),
		)
	})
}

func (p *Panel) layoutHeader(gtx C) D {
	return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
		layout.Flexed(1, func(gtx C) D {
			title := material.H6(p.theme.Theme, "Clipboard history")
			title.TextSize = p.theme.Config.FontTitle
			title.Color = p.theme.Palette.Text
			return title.Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			l := material.Caption(p.theme.Theme, "Private")
			l.Color = p.theme.Palette.TextMuted
			return l.Layout(gtx)
		}),
		layout.Rigid(layout.Spacer{Width: unit.Dp(6)}.Layout),
		layout.Rigid(material.Switch(p.theme.Theme, &p.private, "Private mode").Layout),
	)
}

func (p *Panel) layoutSearch(gtx C) D {
	return p.surface(gtx, func(gtx C) D {
		return layout.UniformInset(unit.Dp(8)).Layout(gtx, func(gtx C) D {
			ed := material.Editor(p.theme.Theme, &p.search, "Search  (~fuzzy, /regex/)")
			ed.HintColor = p.theme.Palette.TextMuted
			return ed.Layout(gtx)
		})
	})
}

func (p *Panel) layoutFilters(gtx C) D {
	radio := func(key, label string) layout.FlexChild {
		return layout.Rigid(func(gtx C) D {
			rb := material.RadioButton(p.theme.Theme, &p.dateRange, key, label)
			rb.Color = p.theme.Palette.Text
			rb.IconColor = p.theme.Palette.Primary
			return rb.Layout(gtx)
		})
	}
	return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
		radio("all", "All"),
		radio("today", "Today"),
		radio("week", "This week"),
		layout.Flexed(1, func(gtx C) D { return D{Size: image.Pt(gtx.Constraints.Min.X, 0)} }),
		layout.Rigid(func(gtx C) D {
			btn := material.Button(p.theme.Theme, &p.clearBtn, "Clear unpinned")
			btn.Background = p.theme.Palette.Surface
			btn.TextSize = p.theme.Config.FontCaption
			return btn.Layout(gtx)
		}),
	)
}

func (p *Panel) layoutList(gtx C, snap backend.Snapshot) D {
	if len(snap.Items) == 0 {
		return layout.Center.Layout(gtx, func(gtx C) D {
			msg := "Nothing copied yet"
			if p.search.Text() != "" || p.dateRange.Value != "all" {
				msg = "No matches"
			}
			if snap.Private {
				msg = "Private mode is on; nothing is being recorded"
			}
			l := material.Body1(p.theme.Theme, msg)
			l.Color = p.theme.Palette.TextMuted
			return l.Layout(gtx)
		})
	}

	queued := make(map[int64]int, len(snap.Queue))
	for i, id := range snap.Queue {
		queued[id] = i + 1
	}

	return material.List(p.theme.Theme, &p.list).Layout(gtx, len(snap.Items), func(gtx C, i int) D {
		return layout.Inset{Bottom: unit.Dp(4)}.Layout(gtx, func(gtx C) D {
			return p.layoutRow(gtx, snap.Items[i], queued[snap.Items[i].ID])
		})
	})
}

func (p *Panel) layoutRow(gtx C, it backend.Item, position int) D {
	r := p.rows[it.ID]
	if r == nil {
		r = new(row)
		p.rows[it.ID] = r
	}

	return p.surface(gtx, func(gtx C) D {
		return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
			layout.Flexed(1, func(gtx C) D {
				return material.Clickable(gtx, &r.copy, func(gtx C) D {
					return layout.UniformInset(unit.Dp(8)).Layout(gtx, func(gtx C) D {
						return p.layoutContent(gtx, it)
					})
				})
			}),
			layout.Rigid(p.iconButton(&r.queue, queueLabel(position), position > 0)),
			layout.Rigid(p.iconButton(&r.pin, pinLabel(it.Pinned), it.Pinned)),
			layout.Rigid(p.iconButton(&r.del, "Delete", false)),
		)
	})
}

func (p *Panel) layoutContent(gtx C, it backend.Item) D {
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx C) D {
			if it.Thumbnail != nil {
				return p.layoutThumb(gtx, it)
			}
			text := oneLine(it.Text)
			if it.Kind == "image" {
				text = fmt.Sprintf("Image, %d KB", (it.Size+1023)/1024)
			}
			l := material.Body1(p.theme.Theme, text)
			l.MaxLines = 2
			l.Color = p.theme.Palette.Text
			return l.Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			l := material.Caption(p.theme.Theme, p.caption(it))
			l.Color = p.theme.Palette.TextMuted
			if it.IsOTP {
				l.Color = p.theme.Palette.OTP
			}
			return l.Layout(gtx)
		}),
	)
}

func (p *Panel) layoutThumb(gtx C, it backend.Item) D {
	t, ok := p.thumbs[it.ID]
	if !ok || t.src != it.Thumbnail {
		t = thumb{src: it.Thumbnail, op: paint.NewImageOp(it.Thumbnail)}
		p.thumbs[it.ID] = t
	}
	gtx.Constraints.Max.Y = gtx.Dp(96)
	return widget.Image{Src: t.op, Fit: widget.ScaleDown, Position: layout.W}.Layout(gtx)
}

func (p *Panel) iconButton(c *widget.Clickable, label string, active bool) layout.Widget {
	return func(gtx C) D {
		return layout.Inset{Right: unit.Dp(4)}.Layout(gtx, func(gtx C) D {
			btn := material.Button(p.theme.Theme, c, label)
			btn.TextSize = p.theme.Config.FontCaption
			btn.Inset = layout.UniformInset(unit.Dp(6))
			btn.Background = p.theme.Palette.Selected
			if active {
				btn.Background = p.theme.Palette.Pinned
				btn.Color = p.theme.Palette.Background
			}
			return btn.Layout(gtx)
		})
	}
}

func (p *Panel) layoutFooter(gtx C, snap backend.Snapshot) D {
	return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
		layout.Flexed(1, func(gtx C) D {
			msg, col := snap.Message, p.theme.Palette.TextMuted
			if snap.Err != "" {
				msg, col = snap.Err, p.theme.Palette.Error
			}
			if msg == "" {
				msg = fmt.Sprintf("%d clips", snap.Clips)
			}
			l := material.Caption(p.theme.Theme, msg)
			l.Color = col
			return l.Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			if len(snap.Queue) == 0 {
				return D{}
			}
			return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
				layout.Rigid(func(gtx C) D {
					btn := material.Button(p.theme.Theme, &p.nextBtn, fmt.Sprintf("Paste next (%d)", len(snap.Queue)))
					btn.TextSize = p.theme.Config.FontCaption
					return btn.Layout(gtx)
				}),
				layout.Rigid(layout.Spacer{Width: unit.Dp(6)}.Layout),
				layout.Rigid(func(gtx C) D {
					btn := material.Button(p.theme.Theme, &p.clearQueue, "Clear queue")
					btn.TextSize = p.theme.Config.FontCaption
					btn.Background = p.theme.Palette.Surface
					return btn.Layout(gtx)
				}),
			)
		}),
	)
}

// surface draws w on a rounded surface rectangle.
func (p *Panel) surface(gtx C, w layout.Widget) D {
	return layout.Background{}.Layout(gtx,
		func(gtx C) D {
			size := gtx.Constraints.Min
			rr := gtx.Dp(p.theme.Config.CornerRadius)
			paint.FillShape(gtx.Ops, p.theme.Palette.Surface, clip.UniformRRect(image.Rectangle{Max: size}, rr).Op(gtx.Ops))
			return D{Size: size}
		},
		w,
	)
}

func (p *Panel) caption(it backend.Item) string {
	parts := []string{relative(p.now().Sub(it.CreatedAt))}
	if it.Pinned {
		parts = append(parts, "pinned")
	}
	if it.IsOTP {
		parts = append(parts, "one-time code, expires soon")
	}
	return strings.Join(parts, " · ")
}

func pinLabel(pinned bool) string {
	if pinned {
		return "Unpin"
	}
	return "Pin"
}

func queueLabel(position int) string {
	if position > 0 {
		return fmt.Sprintf("#%d", position)
	}
	return "Queue"
}

// oneLine collapses whitespace so multi-line clips fit a row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func relative(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d d ago", int(d.Hours()/24))
	}
}
