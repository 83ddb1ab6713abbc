package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"smartclip/internal/ipc"
)

const previewRunes = 80

// preview renders a clip on one line: whitespace collapsed, long text cut.
func preview(c ipc.ClipInfo) string {
	if c.Kind == "image" {
		return fmt.Sprintf("[image %s]", byteSize(c.Size))
	}
	out := strings.Join(strings.Fields(c.Text), " ")
	if utf8.RuneCountInString(out) > previewRunes {
		out = string([]rune(out)[:previewRunes-1]) + "…"
	}
	return out
}

func flags(c ipc.ClipInfo) string {
	var f []string
	if c.Pinned {
		f = append(f, "pinned")
	}
	if c.IsOTP {
		f = append(f, "otp")
	}
	if c.Queued > 0 {
		f = append(f, fmt.Sprintf("q%d", c.Queued))
	}
	return strings.Join(f, ",")
}

func byteSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// age formats how long ago t was, coarsely.
func age(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func printClips(w io.Writer, clips []ipc.ClipInfo, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range clips {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, age(c.CreatedAt, now), flags(c), preview(c))
	}
	return tw.Flush()
}
