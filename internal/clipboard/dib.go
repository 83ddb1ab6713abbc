package clipboard

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Device independent bitmap layout, as placed on the Windows clipboard
// under CF_DIB: a BITMAPINFOHEADER followed by optional masks and pixels.
const (
	bitmapInfoHeaderSize = 40
	biRGB                = 0
	biBitfields          = 3
)

var errUnsupportedDIB = errors.New("unsupported bitmap format")

// dibToPNG converts a 24 or 32 bit uncompressed DIB to PNG.
func dibToPNG(dib []byte) ([]byte, error) {
	if len(dib) < bitmapInfoHeaderSize {
		return nil, fmt.Errorf("bitmap header truncated: %d bytes", len(dib))
	}
	le := binary.LittleEndian
	headerSize := int(le.Uint32(dib[0:]))
	width := int(int32(le.Uint32(dib[4:])))
	height := int(int32(le.Uint32(dib[8:])))
	bitCount := int(le.Uint16(dib[14:]))
	compression := le.Uint32(dib[16:])

	if headerSize < bitmapInfoHeaderSize || headerSize > len(dib) {
		return nil, fmt.Errorf("bad bitmap header size %d", headerSize)
	}
	if bitCount != 24 && bitCount != 32 {
		return nil, fmt.Errorf("%w: %d bits per pixel", errUnsupportedDIB, bitCount)
	}
	if compression != biRGB && !(compression == biBitfields && bitCount == 32) {
		return nil, fmt.Errorf("%w: compression %d", errUnsupportedDIB, compression)
	}

	topDown := height < 0
	if topDown {
		height = -height
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bad bitmap dimensions %dx%d", width, height)
	}

	offset := headerSize
	if compression == biBitfields && headerSize == bitmapInfoHeaderSize {
		offset += 12
	}
	stride := ((width*bitCount + 31) / 32) * 4
	if len(dib) < offset+stride*height {
		return nil, fmt.Errorf("bitmap pixels truncated")
	}
	pixels := dib[offset:]

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	bpp := bitCount / 8
	anyAlpha := false
	for y := 0; y < height; y++ {
		srcY := height - 1 - y
		if topDown {
			srcY = y
		}
		row := pixels[srcY*stride:]
		for x := 0; x < width; x++ {
			p := row[x*bpp:]
			i := img.PixOffset(x, y)
			img.Pix[i+0] = p[2]
			img.Pix[i+1] = p[1]
			img.Pix[i+2] = p[0]
			img.Pix[i+3] = 0xff
			if bpp == 4 {
				img.Pix[i+3] = p[3]
				if p[3] != 0 {
					anyAlpha = true
				}
			}
		}
	}
	// Most producers leave the alpha byte zeroed for opaque bitmaps.
	if bpp == 4 && !anyAlpha {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// pngToDIB converts a PNG into a bottom-up 32 bit DIB.
func pngToDIB(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)

	width, height := img.Rect.Dx(), img.Rect.Dy()
	stride := width * 4
	out := make([]byte, bitmapInfoHeaderSize+stride*height)

	le := binary.LittleEndian
	le.PutUint32(out[0:], bitmapInfoHeaderSize)
	le.PutUint32(out[4:], uint32(int32(width)))
	le.PutUint32(out[8:], uint32(int32(height)))
	le.PutUint16(out[12:], 1)
	le.PutUint16(out[14:], 32)
	le.PutUint32(out[16:], biRGB)
	le.PutUint32(out[20:], uint32(stride*height))

	pixels := out[bitmapInfoHeaderSize:]
	for y := 0; y < height; y++ {
		row := pixels[(height-1-y)*stride:]
		for x := 0; x < width; x++ {
			i := img.PixOffset(x, y)
			row[x*4+0] = img.Pix[i+2]
			row[x*4+1] = img.Pix[i+1]
			row[x*4+2] = img.Pix[i+0]
			row[x*4+3] = img.Pix[i+3]
		}
	}
	return out, nil
}
