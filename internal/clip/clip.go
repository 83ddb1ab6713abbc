// Package clip defines the clipboard history data model for smartclip.
//
// A Clip carries exactly one payload: either UTF-8 text or PNG-encoded image
// bytes. The payload is modelled as the Content sum type so that a clip with
// both or neither payload cannot be constructed by well-typed code.
package clip

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies which payload variant a clip carries.
type Kind uint8

const (
	// KindText is a plain text clip.
	KindText Kind = iota + 1
	// KindImage is a PNG image clip.
	KindImage
)

// String returns the persisted name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// ParseKind parses a persisted kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text":
		return KindText, nil
	case "image":
		return KindImage, nil
	default:
		return 0, fmt.Errorf("unknown clip kind: %q", s)
	}
}

// ErrEmptyContent is returned by Validate for a missing or empty payload.
var ErrEmptyContent = errors.New("clip content is empty")

// Content is the payload of a clip. The only implementations are Text and
// Image.
type Content interface {
	// Kind reports the payload variant.
	Kind() Kind
	// Bytes returns the exact byte representation that is fingerprinted.
	Bytes() []byte

	sealed()
}

// Text is a text payload.
type Text string

// Kind implements Content.
func (Text) Kind() Kind { return KindText }

// Bytes implements Content. Go strings are UTF-8, so this is the UTF-8 encoding.
func (t Text) Bytes() []byte { return []byte(t) }

func (Text) sealed() {}

// Image is a PNG-encoded image payload.
type Image []byte

// Kind implements Content.
func (Image) Kind() Kind { return KindImage }

// Bytes implements Content.
func (i Image) Bytes() []byte { return i }

func (Image) sealed() {}

// Validate reports whether c is a storable payload: non-nil and non-empty.
func Validate(c Content) error {
	switch v := c.(type) {
	case nil:
		return ErrEmptyContent
	case Text:
		if len(v) == 0 {
			return ErrEmptyContent
		}
	case Image:
		if len(v) == 0 {
			return ErrEmptyContent
		}
	default:
		return fmt.Errorf("unsupported content type %T", c)
	}
	return nil
}

// FromColumns rebuilds a Content from the nullable text and image columns of
// a persisted row. Exactly one of them must be set.
func FromColumns(text *string, image []byte) (Content, error) {
	switch {
	case text != nil && image != nil:
		return nil, errors.New("clip has both text and image payloads")
	case text != nil:
		return Text(*text), nil
	case image != nil:
		return Image(image), nil
	default:
		return nil, ErrEmptyContent
	}
}

// Clip is a captured clipboard snapshot.
type Clip struct {
	ID          int64       `json:"id"`
	Content     Content     `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	Pinned      bool        `json:"pinned"`
	IsOTP       bool        `json:"is_otp"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// Kind returns the payload kind, or 0 when the clip has no content.
func (c *Clip) Kind() Kind {
	if c.Content == nil {
		return 0
	}
	return c.Content.Kind()
}

// Text returns the text payload and true for text clips.
func (c *Clip) Text() (string, bool) {
	t, ok := c.Content.(Text)
	return string(t), ok
}

// Image returns the PNG payload and true for image clips.
func (c *Clip) Image() ([]byte, bool) {
	img, ok := c.Content.(Image)
	return []byte(img), ok
}

// Age returns how long ago the clip was last captured.
func (c *Clip) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// Preview returns a single-line text preview of at most n runes. Image clips
// render as a size marker.
func (c *Clip) Preview(n int) string {
	switch v := c.Content.(type) {
	case Text:
		return truncate(collapseSpace(string(v)), n)
	case Image:
		return fmt.Sprintf("[image %d bytes]", len(v))
	default:
		return ""
	}
}
