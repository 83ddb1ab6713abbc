//go:build !windows && !darwin && !linux && !freebsd && !openbsd && !netbsd

package clipboard

import "context"

type unsupportedClipboard struct{}

func newPlatformClipboard() Clipboard {
	return unsupportedClipboard{}
}

func (unsupportedClipboard) ReadText(ctx context.Context) (string, error) {
	return "", ErrUnsupported
}

func (unsupportedClipboard) ReadImage(ctx context.Context) ([]byte, error) {
	return nil, ErrUnsupported
}

func (unsupportedClipboard) WriteText(ctx context.Context, text string) error {
	return ErrUnsupported
}

func (unsupportedClipboard) WriteImage(ctx context.Context, png []byte) error {
	return ErrUnsupported
}
