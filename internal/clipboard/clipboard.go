// Package clipboard provides platform access to the system clipboard.
//
// Text is exchanged as UTF-8 strings and images as PNG bytes regardless of
// the native representation.
package clipboard

import (
	"context"
	"errors"
	"sync"
)

// ErrUnsupported is returned for operations the platform cannot perform.
var ErrUnsupported = errors.New("clipboard operation not supported on this platform")

// Clipboard is the platform-specific interface for clipboard access.
type Clipboard interface {
	// ReadText returns the current text content, or "" when there is none.
	ReadText(ctx context.Context) (string, error)

	// ReadImage returns the current image as PNG bytes, or nil when there is none.
	ReadImage(ctx context.Context) ([]byte, error)

	// WriteText replaces the clipboard content with text.
	WriteText(ctx context.Context, text string) error

	// WriteImage replaces the clipboard content with a PNG image.
	WriteImage(ctx context.Context, png []byte) error
}

// New returns the clipboard accessor for the running platform.
func New() Clipboard {
	return newPlatformClipboard()
}

// Memory is an in-process clipboard. A write replaces both payloads, like a
// real clipboard does.
type Memory struct {
	mu    sync.Mutex
	text  string
	image []byte
	err   error
	reads int
}

// NewMemory returns an empty in-process clipboard.
func NewMemory() *Memory {
	return &Memory{}
}

// Set places both payloads at once, as an application offering text and
// image formats would.
func (m *Memory) Set(text string, image []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.image = image
}

// FailReads makes every read return err until called again with nil.
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Reads returns how many read calls were made.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *Memory) ReadText(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *Memory) ReadImage(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	return m.image, nil
}

func (m *Memory) WriteText(ctx context.Context, text string) error {
	m.Set(text, nil)
	return nil
}

func (m *Memory) WriteImage(ctx context.Context, png []byte) error {
	m.Set("", png)
	return nil
}
