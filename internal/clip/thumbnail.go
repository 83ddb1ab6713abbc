package clip

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// DefaultThumbnailHeight is the list thumbnail height in pixels.
const DefaultThumbnailHeight = 96

// MaxThumbnailPixels bounds the images Thumbnail will decode. It covers an
// 8K screenshot.
const MaxThumbnailPixels = 40 << 20

// ErrImageTooLarge is returned by Thumbnail for images over MaxThumbnailPixels.
var ErrImageTooLarge = errors.New("image too large to thumbnail")

// Thumbnail decodes a PNG payload and scales it to the given height,
// preserving the aspect ratio. Images already at or below the height are
// returned unchanged.
func Thumbnail(pngData []byte, height int) ([]byte, error) {
	if height <= 0 {
		height = DefaultThumbnailHeight
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decode png header: %w", err)
	}
	if cfg.Height <= height {
		return pngData, nil
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxThumbnailPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	width := cfg.Width * height / cfg.Height
	if width < 1 {
		width = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// WithThumbnail returns a copy of c whose image payload is replaced by its
// thumbnail. Text clips and undecodable images are returned as is.
func WithThumbnail(c Clip, height int) Clip {
	img, ok := c.Image()
	if !ok {
		return c
	}
	thumb, err := Thumbnail(img, height)
	if err != nil {
		return c
	}
	c.Content = Image(thumb)
	return c
}
