//go:build darwin

package clipboard

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// darwinClipboard uses pbpaste and pbcopy, which only speak text.
type darwinClipboard struct{}

func newPlatformClipboard() Clipboard {
	return darwinClipboard{}
}

func (darwinClipboard) ReadText(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "pbpaste").Output()
	if err != nil {
		return "", fmt.Errorf("pbpaste: %w", err)
	}
	return string(out), nil
}

func (darwinClipboard) ReadImage(ctx context.Context) ([]byte, error) {
	return nil, nil
}

func (darwinClipboard) WriteText(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, "pbcopy")
	cmd.Stdin = bytes.NewReader([]byte(text))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pbcopy: %w", err)
	}
	return nil
}

func (darwinClipboard) WriteImage(ctx context.Context, png []byte) error {
	return ErrUnsupported
}
