//go:build windows

package clipboard

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procEmptyClipboard             = user32.NewProc("EmptyClipboard")
	procGetClipboardData           = user32.NewProc("GetClipboardData")
	procSetClipboardData           = user32.NewProc("SetClipboardData")
	procIsClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	procRegisterClipboardFormatW   = user32.NewProc("RegisterClipboardFormatW")

	procGlobalAlloc  = kernel32.NewProc("GlobalAlloc")
	procGlobalFree   = kernel32.NewProc("GlobalFree")
	procGlobalLock   = kernel32.NewProc("GlobalLock")
	procGlobalUnlock = kernel32.NewProc("GlobalUnlock")
	procGlobalSize   = kernel32.NewProc("GlobalSize")
)

const (
	cfUnicodeText = 13
	cfDIB         = 8
	cfDIBV5       = 17

	gmemMoveable = 0x0002

	openAttempts = 5
	openBackoff  = 10 * time.Millisecond
)

// windowsClipboard implements Clipboard with the user32 clipboard API.
type windowsClipboard struct {
	pngFormat uintptr
}

func newPlatformClipboard() Clipboard {
	name, _ := windows.UTF16PtrFromString("PNG")
	format, _, _ := procRegisterClipboardFormatW.Call(uintptr(unsafe.Pointer(name)))
	return &windowsClipboard{pngFormat: format}
}

// withClipboard opens the clipboard on a locked OS thread, retrying while
// another process holds it.
func withClipboard(ctx context.Context, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var lastErr error
	for i := 0; i < openAttempts; i++ {
		r, _, err := procOpenClipboard.Call(0)
		if r != 0 {
			defer procCloseClipboard.Call()
			return fn()
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(openBackoff):
		}
	}
	return fmt.Errorf("open clipboard: %w", lastErr)
}

func formatAvailable(format uintptr) bool {
	if format == 0 {
		return false
	}
	r, _, _ := procIsClipboardFormatAvailable.Call(format)
	return r != 0
}

// globalBytes copies the contents of a global memory handle.
func globalBytes(h uintptr) ([]byte, error) {
	size, _, _ := procGlobalSize.Call(h)
	ptr, _, err := procGlobalLock.Call(h)
	if ptr == 0 {
		return nil, fmt.Errorf("lock clipboard data: %w", err)
	}
	defer procGlobalUnlock.Call(h)

	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size))
	return out, nil
}

func (w *windowsClipboard) ReadText(ctx context.Context) (string, error) {
	var text string
	err := withClipboard(ctx, func() error {
		if !formatAvailable(cfUnicodeText) {
			return nil
		}
		h, _, err := procGetClipboardData.Call(cfUnicodeText)
		if h == 0 {
			return fmt.Errorf("get clipboard text: %w", err)
		}
		ptr, _, err := procGlobalLock.Call(h)
		if ptr == 0 {
			return fmt.Errorf("lock clipboard text: %w", err)
		}
		defer procGlobalUnlock.Call(h)
		text = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(ptr)))
		return nil
	})
	return text, err
}

func (w *windowsClipboard) ReadImage(ctx context.Context) ([]byte, error) {
	var data []byte
	err := withClipboard(ctx, func() error {
		switch {
		case formatAvailable(w.pngFormat):
			h, _, err := procGetClipboardData.Call(w.pngFormat)
			if h == 0 {
				return fmt.Errorf("get clipboard png: %w", err)
			}
			b, err := globalBytes(h)
			if err != nil {
				return err
			}
			data = b
		case formatAvailable(cfDIBV5), formatAvailable(cfDIB):
			// Windows synthesises CF_DIB from CF_DIBV5 and CF_BITMAP.
			h, _, err := procGetClipboardData.Call(cfDIB)
			if h == 0 {
				return fmt.Errorf("get clipboard bitmap: %w", err)
			}
			dib, err := globalBytes(h)
			if err != nil {
				return err
			}
			if data, err = dibToPNG(dib); err != nil {
				return fmt.Errorf("convert bitmap: %w", err)
			}
		}
		return nil
	})
	return data, err
}

func (w *windowsClipboard) WriteText(ctx context.Context, text string) error {
	u16, err := windows.UTF16FromString(text)
	if err != nil {
		return fmt.Errorf("encode text: %w", err)
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&u16[0])), len(u16)*2)
	return withClipboard(ctx, func() error {
		if r, _, err := procEmptyClipboard.Call(); r == 0 {
			return fmt.Errorf("empty clipboard: %w", err)
		}
		return setData(cfUnicodeText, buf)
	})
}

func (w *windowsClipboard) WriteImage(ctx context.Context, png []byte) error {
	dib, err := pngToDIB(png)
	if err != nil {
		return err
	}
	return withClipboard(ctx, func() error {
		if r, _, err := procEmptyClipboard.Call(); r == 0 {
			return fmt.Errorf("empty clipboard: %w", err)
		}
		if w.pngFormat != 0 {
			if err := setData(w.pngFormat, png); err != nil {
				return err
			}
		}
		return setData(cfDIB, dib)
	})
}

// setData copies data into a movable global block and hands it to the
// clipboard, which takes ownership on success.
func setData(format uintptr, data []byte) error {
	h, _, err := procGlobalAlloc.Call(gmemMoveable, uintptr(len(data)))
	if h == 0 {
		return fmt.Errorf("alloc clipboard data: %w", err)
	}
	ptr, _, err := procGlobalLock.Call(h)
	if ptr == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("lock clipboard data: %w", err)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(data)), data)
	procGlobalUnlock.Call(h)

	if r, _, err := procSetClipboardData.Call(format, h); r == 0 {
		procGlobalFree.Call(h)
		return fmt.Errorf("set clipboard data: %w", err)
	}
	return nil
}
