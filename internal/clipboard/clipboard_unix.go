//go:build linux || freebsd || openbsd || netbsd

package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// runFunc executes an external tool, feeding stdin when non-nil.
type runFunc func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
		// xclip forks to keep serving the selection; do not wait on its output.
		return nil, cmd.Run()
	}
	return cmd.Output()
}

// tool describes one clipboard helper and how to drive it.
type tool struct {
	name      string
	readText  []string
	listTypes []string
	readImage []string
	writeText []string
	writePNG  []string
}

var (
	wlTools = []tool{{
		name:      "wl-paste",
		readText:  []string{"wl-paste", "--no-newline", "--type", "text/plain;charset=utf-8"},
		listTypes: []string{"wl-paste", "--list-types"},
		readImage: []string{"wl-paste", "--type", "image/png"},
		writeText: []string{"wl-copy", "--type", "text/plain;charset=utf-8"},
		writePNG:  []string{"wl-copy", "--type", "image/png"},
	}}

	x11Tools = []tool{
		{
			name:      "xclip",
			readText:  []string{"xclip", "-selection", "clipboard", "-o", "-t", "UTF8_STRING"},
			listTypes: []string{"xclip", "-selection", "clipboard", "-o", "-t", "TARGETS"},
			readImage: []string{"xclip", "-selection", "clipboard", "-o", "-t", "image/png"},
			writeText: []string{"xclip", "-selection", "clipboard", "-i"},
			writePNG:  []string{"xclip", "-selection", "clipboard", "-i", "-t", "image/png"},
		},
		{
			name:      "xsel",
			readText:  []string{"xsel", "--clipboard", "--output"},
			writeText: []string{"xsel", "--clipboard", "--input"},
		},
	}
)

// unixClipboard shells out to wl-clipboard on Wayland and xclip or xsel on X11.
type unixClipboard struct {
	tools []tool
	run   runFunc
}

func newPlatformClipboard() Clipboard {
	tools := x11Tools
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		tools = append(append([]tool{}, wlTools...), x11Tools...)
	}
	return &unixClipboard{tools: tools, run: execRun}
}

// missing reports whether err means the helper is not installed, in which
// case the next helper is tried.
func missing(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// noContent are the stderr phrases a helper prints when the selection is
// empty or lacks the requested type. xsel exits zero with no output instead.
var noContent = []string{
	"no selection",      // wl-paste
	"nothing is copied", // wl-paste
	"no suitable type",  // wl-paste
	"not available",     // xclip: "target UTF8_STRING not available"
}

// empty reports whether the helper ran but found no content of the
// requested type. Other non-zero exits, such as an unreachable display,
// are failures.
func empty(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	msg := strings.ToLower(string(exitErr.Stderr))
	for _, s := range noContent {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// toolError names the helper and appends its stderr, if any.
func toolError(name string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (u *unixClipboard) ReadText(ctx context.Context) (string, error) {
	var lastErr error = ErrUnsupported
	for _, t := range u.tools {
		if t.readText == nil {
			continue
		}
		out, err := u.run(ctx, nil, t.readText[0], t.readText[1:]...)
		switch {
		case err == nil:
			return string(out), nil
		case missing(err):
			lastErr = err
			continue
		case empty(err):
			return "", nil
		default:
			return "", toolError(t.name, err)
		}
	}
	return "", fmt.Errorf("read clipboard text: %w", lastErr)
}

func (u *unixClipboard) ReadImage(ctx context.Context) ([]byte, error) {
	var lastErr error = ErrUnsupported
	for _, t := range u.tools {
		if t.readImage == nil {
			continue
		}
		types, err := u.run(ctx, nil, t.listTypes[0], t.listTypes[1:]...)
		switch {
		case missing(err):
			lastErr = err
			continue
		case empty(err):
			return nil, nil
		case err != nil:
			return nil, toolError(t.name, err)
		}
		if !strings.Contains(string(types), "image/png") {
			return nil, nil
		}

		out, err := u.run(ctx, nil, t.readImage[0], t.readImage[1:]...)
		switch {
		case err == nil:
			return out, nil
		case empty(err):
			return nil, nil
		default:
			return nil, toolError(t.name, err)
		}
	}
	return nil, fmt.Errorf("read clipboard image: %w", lastErr)
}

func (u *unixClipboard) WriteText(ctx context.Context, text string) error {
	return u.write(ctx, []byte(text), func(t tool) []string { return t.writeText })
}

func (u *unixClipboard) WriteImage(ctx context.Context, png []byte) error {
	return u.write(ctx, png, func(t tool) []string { return t.writePNG })
}

func (u *unixClipboard) write(ctx context.Context, data []byte, argv func(tool) []string) error {
	var lastErr error = ErrUnsupported
	for _, t := range u.tools {
		args := argv(t)
		if args == nil {
			continue
		}
		_, err := u.run(ctx, data, args[0], args[1:]...)
		if err == nil {
			return nil
		}
		if !missing(err) {
			return toolError(args[0], err)
		}
		lastErr = err
	}
	return fmt.Errorf("write clipboard: %w", lastErr)
}
