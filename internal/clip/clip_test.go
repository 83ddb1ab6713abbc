package clip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Content
// =============================================================================

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Text("hello")))
	assert.NoError(t, Validate(Image{0x89, 'P', 'N', 'G'}))

	assert.ErrorIs(t, Validate(nil), ErrEmptyContent)
	assert.ErrorIs(t, Validate(Text("")), ErrEmptyContent)
	assert.ErrorIs(t, Validate(Image(nil)), ErrEmptyContent)
}

func TestFromColumns(t *testing.T) {
	text := "abc"

	c, err := FromColumns(&text, nil)
	require.NoError(t, err)
	assert.Equal(t, Text("abc"), c)

	c, err = FromColumns(nil, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, Image{1, 2}, c)

	_, err = FromColumns(&text, []byte{1})
	assert.Error(t, err, "both payloads must be rejected")

	_, err = FromColumns(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestKindRoundTripNames(t *testing.T) {
	for _, k := range []Kind{KindText, KindImage} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("file")
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	c := Clip{Content: Text("  line one\n\tline two  ")}
	assert.Equal(t, "line one line two", c.Preview(80))
	assert.Equal(t, "line…", c.Preview(4))

	img := Clip{Content: Image(make([]byte, 10))}
	assert.Equal(t, "[image 10 bytes]", img.Preview(80))
}

// =============================================================================
// Fingerprint
// =============================================================================

func TestFingerprintDeterministic(t *testing.T) {
	a := FingerprintOf(Text("copy me"))
	b := FingerprintOf(Text("copy me"))
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())

	assert.NotEqual(t, a, FingerprintOf(Text("copy me ")))
}

func TestFingerprintTextAndImageShareByteSpace(t *testing.T) {
	// The digest covers bytes only, so identical bytes give identical keys.
	assert.Equal(t, FingerprintOf(Text("abc")), FingerprintOf(Image("abc")))
}

func TestParseFingerprint(t *testing.T) {
	f := FingerprintOf(Text("x"))

	parsed, err := ParseFingerprint(f.String())
	require.NoError(t, err)
	assert.Equal(t, f, parsed)
	assert.Len(t, f.Short(), 12)

	_, err = ParseFingerprint("zz")
	assert.Error(t, err)
	_, err = ParseFingerprint("abcd")
	assert.Error(t, err)
}

// =============================================================================
// OTP
// =============================================================================

func TestIsLikelyOTP(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"123456", true},
		{"1234", true},
		{"12345678", true},
		{"  482913\n", true},
		{"\t0000 ", true},
		{"123", false},
		{"123456789", false},
		{"12 34", false},
		{"12a456", false},
		{"", false},
		{"   ", false},
		{"+1234567", false},
		{"١٢٣٤", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLikelyOTP(tt.input))
		})
	}
}

func TestClassifyOTPIgnoresImages(t *testing.T) {
	assert.True(t, ClassifyOTP(Text("987654")))
	assert.False(t, ClassifyOTP(Image("987654")))
}

// =============================================================================
// Search
// =============================================================================

func TestParseQueryModes(t *testing.T) {
	tests := []struct {
		raw  string
		mode SearchMode
	}{
		{"", SearchNone},
		{"hello", SearchSubstring},
		{"~", SearchSubstring},
		{"~hlo", SearchFuzzy},
		{"//", SearchSubstring},
		{"/a.c/", SearchRegex},
		{"/(unclosed/", SearchSubstring},
		{"/abc", SearchSubstring},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.mode, ParseQuery(tt.raw).Mode)
		})
	}
}

func TestQueryMatchText(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		want  bool
	}{
		{"substring case-insensitive", "WORLD", "hello world", true},
		{"substring miss", "planet", "hello world", false},
		{"fuzzy in order", "~hwd", "Hello World", true},
		{"fuzzy out of order", "~dwh", "hello world", false},
		{"regex", "/^h.*d$/", "Hello World", true},
		{"regex miss", "/^world/", "hello world", false},
		{"bad regex falls back to raw substring", "/(x/", "see /(x/ here", true},
		{"bad regex does not match inner text", "/(x/", "(x", false},
		{"empty matches", "", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQuery(tt.query).MatchText(tt.text))
		})
	}
}

func TestQueryExcludesImages(t *testing.T) {
	img := &Clip{Content: Image("png")}
	assert.True(t, ParseQuery("").Match(img))
	assert.False(t, ParseQuery("png").Match(img))
}

func TestDateRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.True(t, RangeToday.Contains(now.Add(-23*time.Hour), now))
	assert.False(t, RangeToday.Contains(now.Add(-25*time.Hour), now))
	assert.True(t, RangeWeek.Contains(now.Add(-6*24*time.Hour), now))
	assert.False(t, RangeWeek.Contains(now.Add(-8*24*time.Hour), now))
	assert.True(t, RangeAll.Contains(now.Add(-365*24*time.Hour), now))

	r, err := ParseDateRange("")
	require.NoError(t, err)
	assert.Equal(t, RangeAll, r)
	_, err = ParseDateRange("month")
	assert.Error(t, err)
}

func TestFilterKeepsOrder(t *testing.T) {
	now := time.Now()
	clips := []Clip{
		{ID: 3, Content: Text("alpha beta"), CreatedAt: now},
		{ID: 2, Content: Image("x"), CreatedAt: now},
		{ID: 1, Content: Text("beta"), CreatedAt: now.Add(-48 * time.Hour)},
		{ID: 0, Content: Text("gamma beta"), CreatedAt: now.Add(-time.Minute)},
	}

	got := Filter(clips, ParseQuery("beta"), RangeToday, now)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(0), got[1].ID)
}

// =============================================================================
// Thumbnails
// =============================================================================

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnailScalesToHeight(t *testing.T) {
	src := testPNG(t, 200, 400)

	thumb, err := Thumbnail(src, 96)
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 96, cfg.Height)
	assert.Equal(t, 48, cfg.Width)
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	src := testPNG(t, 10, 10)

	thumb, err := Thumbnail(src, 96)
	require.NoError(t, err)
	assert.Equal(t, src, thumb)
}

// withDimensions rewrites the IHDR size of an encoded PNG, leaving the pixel
// data as is.
func withDimensions(t *testing.T, src []byte, w, h uint32) []byte {
	t.Helper()
	out := bytes.Clone(src)
	// 8-byte signature, then length, "IHDR", width, height.
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestThumbnailRejectsHugeDimensions(t *testing.T) {
	src := withDimensions(t, testPNG(t, 1, 1), 100_000, 100_000)

	cfg, err := png.DecodeConfig(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 100_000, cfg.Width)

	_, err = Thumbnail(src, 96)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	c := Clip{ID: 3, Content: Image(src)}
	assert.Equal(t, c, WithThumbnail(c, 96))
}

func TestWithThumbnailLeavesBrokenImages(t *testing.T) {
	c := Clip{ID: 1, Content: Image("not a png")}
	assert.Equal(t, c, WithThumbnail(c, 96))

	txt := Clip{ID: 2, Content: Text("hi")}
	assert.Equal(t, txt, WithThumbnail(txt, 96))
}
