//go:build linux || freebsd || openbsd || netbsd

package clipboard

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name  string
	args  string
	stdin string
}

// fakeRunner answers per tool name; unknown tools are reported missing.
type fakeRunner struct {
	calls   []call
	outputs map[string][]byte
	errs    map[string]error
}

func (f *fakeRunner) run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	joined := strings.Join(args, " ")
	f.calls = append(f.calls, call{name: name, args: joined, stdin: string(stdin)})
	key := name + " " + joined
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if out, ok := f.outputs[key]; ok {
		return out, nil
	}
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if out, ok := f.outputs[name]; ok {
		return out, nil
	}
	return nil, exec.ErrNotFound
}

func TestReadTextFallsBackToXsel(t *testing.T) {
	f := &fakeRunner{outputs: map[string][]byte{"xsel": []byte("from xsel")}}
	u := &unixClipboard{tools: x11Tools, run: f.run}

	text, err := u.ReadText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from xsel", text)
	require.Len(t, f.calls, 2)
	assert.Equal(t, "xclip", f.calls[0].name)
}

func exitWith(stderr string) error {
	return &exec.ExitError{Stderr: []byte(stderr)}
}

func TestReadTextEmptySelection(t *testing.T) {
	for _, tc := range []struct {
		tools  []tool
		name   string
		stderr string
	}{
		{x11Tools, "xclip", "Error: target UTF8_STRING not available\n"},
		{wlTools, "wl-paste", "Nothing is copied\n"},
		{wlTools, "wl-paste", "No selection\n"},
	} {
		f := &fakeRunner{errs: map[string]error{tc.name: exitWith(tc.stderr)}}
		u := &unixClipboard{tools: tc.tools, run: f.run}

		text, err := u.ReadText(context.Background())
		require.NoError(t, err, tc.stderr)
		assert.Empty(t, text)
	}
}

func TestReadFailureIsNotEmpty(t *testing.T) {
	f := &fakeRunner{errs: map[string]error{"xclip": exitWith("Error: Can't open display: (null)\n")}}
	u := &unixClipboard{tools: x11Tools, run: f.run}

	_, err := u.ReadText(context.Background())
	require.Error(t, err)
	var exitErr *exec.ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.Contains(t, err.Error(), "Can't open display")
	require.Len(t, f.calls, 1, "a broken display does not fall through to xsel")

	_, err = u.ReadImage(context.Background())
	assert.ErrorAs(t, err, &exitErr)

	f.errs["xclip"] = &exec.ExitError{}
	_, err = u.ReadText(context.Background())
	assert.Error(t, err, "a bare non-zero exit is a failure")
}

func TestReadImageMissingType(t *testing.T) {
	f := &fakeRunner{
		outputs: map[string][]byte{"wl-paste --list-types": []byte("image/png\n")},
		errs:    map[string]error{"wl-paste --type image/png": exitWith("wl-paste: No suitable type of content copied\n")},
	}
	u := &unixClipboard{tools: wlTools, run: f.run}

	img, err := u.ReadImage(context.Background())
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestReadTextNoTools(t *testing.T) {
	u := &unixClipboard{tools: x11Tools, run: (&fakeRunner{}).run}

	_, err := u.ReadText(context.Background())
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestReadImageChecksTargets(t *testing.T) {
	f := &fakeRunner{outputs: map[string][]byte{
		"xclip -selection clipboard -o -t TARGETS":   []byte("TARGETS\nUTF8_STRING\n"),
		"xclip -selection clipboard -o -t image/png": []byte("png"),
	}}
	u := &unixClipboard{tools: x11Tools, run: f.run}

	img, err := u.ReadImage(context.Background())
	require.NoError(t, err)
	assert.Nil(t, img, "no image target offered")

	f.outputs["xclip -selection clipboard -o -t TARGETS"] = []byte("TARGETS\nimage/png\n")
	img, err = u.ReadImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), img)
}

func TestWritePrefersWayland(t *testing.T) {
	f := &fakeRunner{outputs: map[string][]byte{"wl-copy": nil}}
	tools := append(append([]tool{}, wlTools...), x11Tools...)
	u := &unixClipboard{tools: tools, run: f.run}

	require.NoError(t, u.WriteText(context.Background(), "hello"))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "wl-copy", f.calls[0].name)
	assert.Equal(t, "hello", f.calls[0].stdin)
}

func TestWriteImageSkipsXsel(t *testing.T) {
	f := &fakeRunner{}
	u := &unixClipboard{tools: x11Tools, run: f.run}

	err := u.WriteImage(context.Background(), []byte("png"))
	assert.ErrorIs(t, err, exec.ErrNotFound)
	require.Len(t, f.calls, 1, "xsel cannot write images")
}

func TestWriteReportsToolFailure(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeRunner{errs: map[string]error{"xclip": boom}}
	u := &unixClipboard{tools: x11Tools, run: f.run}

	err := u.WriteText(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}
