//go:build windows

package platform

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procRegisterHotKey     = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32.NewProc("UnregisterHotKey")
	procGetMessageW        = user32.NewProc("GetMessageW")
	procPeekMessageW       = user32.NewProc("PeekMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
)

const (
	wmQuit   = 0x0012
	wmUser   = 0x0400
	wmHotkey = 0x0312

	pmNoRemove = 0x0000

	hotkeyID = 0x5C1
)

type msg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       struct{ x, y int32 }
	lPrivate uint32
}

// Registration is a live global hotkey. Hotkeys belong to the thread that
// registered them, so each Registration owns a locked OS thread running a
// message loop until Unregister.
type Registration struct {
	hotkey   Hotkey
	pressed  chan struct{}
	threadID uint32
	done     chan struct{}
	once     sync.Once
}

// RegisterHotkey registers primary, or fallback when primary is already
// taken by another application.
func RegisterHotkey(primary, fallback string) (*Registration, error) {
	candidates, err := parseCandidates(primary, fallback)
	if err != nil {
		return nil, err
	}

	r := &Registration{
		pressed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	ready := make(chan error, 1)
	go r.run(candidates, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registration) run(candidates []Hotkey, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	var lastErr error
	registered := false
	for _, hk := range candidates {
		ok, _, callErr := procRegisterHotKey.Call(0, hotkeyID, uintptr(hk.Modifiers|ModNoRepeat), uintptr(hk.Key))
		if ok != 0 {
			r.hotkey = hk
			registered = true
			break
		}
		lastErr = callErr
	}
	if !registered {
		ready <- fmt.Errorf("%w: %v", ErrHotkeyTaken, lastErr)
		return
	}
	defer procUnregisterHotKey.Call(0, hotkeyID)

	// Create the thread queue before Unregister can post to it.
	var m msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, wmUser, wmUser, pmNoRemove)
	r.threadID = windows.GetCurrentThreadId()
	ready <- nil

	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			return
		}
		if m.message == wmHotkey && m.wParam == hotkeyID {
			select {
			case r.pressed <- struct{}{}:
			default:
			}
		}
	}
}

// Hotkey returns the combination that was actually registered.
func (r *Registration) Hotkey() Hotkey { return r.hotkey }

// Pressed delivers one value per key press. Presses arriving while a
// previous one is unread are coalesced. The channel is closed by Unregister.
func (r *Registration) Pressed() <-chan struct{} { return r.pressed }

// Unregister releases the hotkey and stops the message loop. It is safe to
// call more than once.
func (r *Registration) Unregister() error {
	var err error
	r.once.Do(func() {
		ok, _, callErr := procPostThreadMessageW.Call(uintptr(r.threadID), wmQuit, 0, 0)
		if ok == 0 {
			err = fmt.Errorf("stop hotkey thread: %w", callErr)
			return
		}
		<-r.done
		close(r.pressed)
	})
	return err
}
