//go:build windows

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"smartclip/internal/config"
	"smartclip/internal/ipc"
	"smartclip/internal/logging"
	"smartclip/internal/platform"
)

var (
	user32  = windows.NewLazySystemDLL("user32.dll")
	shell32 = windows.NewLazySystemDLL("shell32.dll")

	procCreatePopupMenu  = user32.NewProc("CreatePopupMenu")
	procAppendMenuW      = user32.NewProc("AppendMenuW")
	procTrackPopupMenu   = user32.NewProc("TrackPopupMenu")
	procDestroyMenu      = user32.NewProc("DestroyMenu")
	procGetCursorPos     = user32.NewProc("GetCursorPos")
	procSetForegroundWin = user32.NewProc("SetForegroundWindow")
	procRegisterClassExW = user32.NewProc("RegisterClassExW")
	procCreateWindowExW  = user32.NewProc("CreateWindowExW")
	procDefWindowProcW   = user32.NewProc("DefWindowProcW")
	procDestroyWindow    = user32.NewProc("DestroyWindow")
	procGetMessageW      = user32.NewProc("GetMessageW")
	procTranslateMessage = user32.NewProc("TranslateMessage")
	procDispatchMessageW = user32.NewProc("DispatchMessageW")
	procPostQuitMessage  = user32.NewProc("PostQuitMessage")
	procPostMessageW     = user32.NewProc("PostMessageW")
	procLoadIconW        = user32.NewProc("LoadIconW")
	procLoadImageW       = user32.NewProc("LoadImageW")
	procShellNotifyIconW = shell32.NewProc("Shell_NotifyIconW")
	procGetModuleHandleW = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetModuleHandleW")
)

const (
	wmDestroy   = 0x0002
	wmCommand   = 0x0111
	wmApp       = 0x8000
	wmTrayIcon  = wmApp + 1
	wmRefresh   = wmApp + 2
	wmLButtonUp = 0x0202
	wmRButtonUp = 0x0205

	nimAdd    = 0x00000000
	nimModify = 0x00000001
	nimDelete = 0x00000002

	nifMessage = 0x00000001
	nifIcon    = 0x00000002
	nifTip     = 0x00000004

	mfString    = 0x00000000
	mfGrayed    = 0x00000001
	mfChecked   = 0x00000008
	mfSeparator = 0x00000800

	tpmRightButton = 0x0002
	tpmBottomAlign = 0x0020

	idiApplication = 32512
	imageIcon      = 1
	lrLoadFromFile = 0x00000010
	lrDefaultSize  = 0x00000040
)

const (
	idOpenPanel = iota + 1
	idPrivate
	idPasteNext
	idClearUnpinned
	idExit
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type notifyIconData struct {
	Size            uint32
	Wnd             windows.HWND
	ID              uint32
	Flags           uint32
	CallbackMessage uint32
	Icon            windows.Handle
	Tip             [128]uint16
	State           uint32
	StateMask       uint32
	Info            [256]uint16
	Version         uint32
	InfoTitle       [64]uint16
	InfoFlags       uint32
	GUIDItem        windows.GUID
	BalloonIcon     windows.Handle
}

type msg struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// tray is the state shared between the window procedure and the background
// goroutines. The window procedure only ever runs on the locked UI thread.
type tray struct {
	log    *logging.Logger
	client *ipc.IPCClient
	panel  *panelLauncher
	hotkey *platform.Registration

	hwnd windows.HWND
	nid  notifyIconData

	mu      sync.Mutex
	tip     string
	private bool
	online  bool
}

// The window procedure is a plain callback, so it reaches the tray through
// this variable.
var app *tray

func runTray(cfg *config.Config, log *logging.Logger) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	clientCfg := ipc.DefaultClientConfig(cfg.IPC.SocketPath)
	clientCfg.ClientName = "smartclip-tray"
	clientCfg.ClientVersion = Version
	clientCfg.RequestTimeout = 5 * time.Second

	t := &tray{
		log:    log,
		client: ipc.NewClient(clientCfg),
		panel:  newPanelLauncher(),
		tip:    "smartclip",
	}
	app = t
	defer t.client.Close()
	defer t.panel.Close()

	if err := t.createWindow(); err != nil {
		return err
	}

	reg, err := platform.RegisterHotkey(cfg.Hotkey.Primary, cfg.Hotkey.Fallback)
	switch {
	case err == nil:
		t.hotkey = reg
		defer reg.Unregister()
		log.Info("hotkey registered", "hotkey", reg.Hotkey().String())
		go t.hotkeyLoop(reg)
	case errors.Is(err, platform.ErrHotkeyTaken):
		log.Warn("hotkey unavailable, use the tray icon instead", "primary", cfg.Hotkey.Primary, "fallback", cfg.Hotkey.Fallback)
	default:
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go t.updateLoop(ctx)

	var m msg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
	return nil
}

func (t *tray) createWindow() error {
	className, _ := windows.UTF16PtrFromString("SmartclipTrayClass")
	hInstance, _, _ := procGetModuleHandleW.Call(0)

	wc := wndClassEx{
		WndProc:   windows.NewCallback(wndProc),
		Instance:  windows.Handle(hInstance),
		ClassName: className,
	}
	wc.Size = uint32(unsafe.Sizeof(wc))
	if ret, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); ret == 0 {
		return err
	}

	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(className)),
		0, 0, 0, 0, 0,
		0, 0, hInstance, 0,
	)
	if hwnd == 0 {
		return err
	}
	t.hwnd = windows.HWND(hwnd)

	t.nid = notifyIconData{
		Wnd:             t.hwnd,
		ID:              1,
		Flags:           nifMessage | nifIcon | nifTip,
		CallbackMessage: wmTrayIcon,
		Icon:            loadIcon(),
	}
	t.nid.Size = uint32(unsafe.Sizeof(t.nid))
	t.setTip(t.tip)
	procShellNotifyIconW.Call(nimAdd, uintptr(unsafe.Pointer(&t.nid)))
	return nil
}

// loadIcon uses smartclip.ico next to the executable when present.
func loadIcon() windows.Handle {
	if exe, err := os.Executable(); err == nil {
		path, _ := windows.UTF16PtrFromString(filepath.Join(filepath.Dir(exe), "smartclip.ico"))
		h, _, _ := procLoadImageW.Call(0, uintptr(unsafe.Pointer(path)), imageIcon, 0, 0, lrLoadFromFile|lrDefaultSize)
		if h != 0 {
			return windows.Handle(h)
		}
	}
	h, _, _ := procLoadIconW.Call(0, idiApplication)
	return windows.Handle(h)
}

func (t *tray) setTip(s string) {
	tip, _ := windows.UTF16FromString(s)
	n := copy(t.nid.Tip[:len(t.nid.Tip)-1], tip)
	t.nid.Tip[n] = 0
}

func (t *tray) hotkeyLoop(reg *platform.Registration) {
	for range reg.Pressed() {
		t.togglePanel()
	}
}

func (t *tray) togglePanel() {
	if err := t.panel.Toggle(); err != nil {
		t.log.Error("panel toggle failed", "error", err)
	}
}

// updateLoop polls the daemon and asks the UI thread to refresh the tooltip.
func (t *tray) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		t.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *tray) poll(ctx context.Context) {
	var (
		st  *ipc.StatusResponse
		err error
	)
	if err = t.client.Connect(); err == nil {
		st, err = t.client.Status(ctx)
	}

	t.mu.Lock()
	t.tip = statusTip(st, err)
	t.online = err == nil
	if st != nil {
		t.private = st.PrivateMode
	}
	t.mu.Unlock()
	procPostMessageW.Call(uintptr(t.hwnd), wmRefresh, 0, 0)
}

// run executes a daemon call off the UI thread and refreshes the status
// afterwards.
func (t *tray) run(op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.client.Connect(); err != nil {
			t.log.Warn("daemon not reachable", "op", op, "error", err)
			return
		}
		if err := fn(ctx); err != nil {
			t.log.Warn("tray action failed", "op", op, "error", err)
		}
		t.poll(ctx)
	}()
}

func (t *tray) showMenu() {
	t.mu.Lock()
	tip, private, online := t.tip, t.private, t.online
	t.mu.Unlock()

	hMenu, _, _ := procCreatePopupMenu.Call()
	if hMenu == 0 {
		return
	}
	defer procDestroyMenu.Call(hMenu)

	appendItem := func(flags uintptr, id int, label string) {
		p, _ := windows.UTF16PtrFromString(label)
		procAppendMenuW.Call(hMenu, flags, uintptr(id), uintptr(unsafe.Pointer(p)))
	}
	daemonFlags := uintptr(mfString)
	if !online {
		daemonFlags |= mfGrayed
	}
	privateFlags := daemonFlags
	if private {
		privateFlags |= mfChecked
	}

	appendItem(mfString|mfGrayed, 0, tip)
	procAppendMenuW.Call(hMenu, mfSeparator, 0, 0)
	label := "Open history"
	if t.hotkey != nil {
		label += "\t" + t.hotkey.Hotkey().String()
	}
	appendItem(mfString, idOpenPanel, label)
	appendItem(privateFlags, idPrivate, "Private mode")
	appendItem(daemonFlags, idPasteNext, "Paste next")
	appendItem(daemonFlags, idClearUnpinned, "Clear unpinned")
	procAppendMenuW.Call(hMenu, mfSeparator, 0, 0)
	appendItem(mfString, idExit, "Exit")

	var pt struct{ X, Y int32 }
	procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	procSetForegroundWin.Call(uintptr(t.hwnd))
	procTrackPopupMenu.Call(hMenu, tpmRightButton|tpmBottomAlign,
		uintptr(pt.X), uintptr(pt.Y), 0, uintptr(t.hwnd), 0)
}

func (t *tray) command(id int) {
	switch id {
	case idOpenPanel:
		t.togglePanel()
	case idPrivate:
		t.mu.Lock()
		want := !t.private
		t.mu.Unlock()
		t.run("private", func(ctx context.Context) error {
			_, err := t.client.SetPrivate(ctx, want)
			return err
		})
	case idPasteNext:
		t.run("paste next", func(ctx context.Context) error {
			_, err := t.client.PasteNext(ctx)
			return err
		})
	case idClearUnpinned:
		t.run("clear", func(ctx context.Context) error {
			_, err := t.client.ClearUnpinned(ctx)
			return err
		})
	case idExit:
		procShellNotifyIconW.Call(nimDelete, uintptr(unsafe.Pointer(&t.nid)))
		procDestroyWindow.Call(uintptr(t.hwnd))
	}
}

func wndProc(hwnd windows.HWND, message uint32, wParam, lParam uintptr) uintptr {
	switch message {
	case wmTrayIcon:
		switch lParam & 0xFFFF {
		case wmLButtonUp:
			app.togglePanel()
		case wmRButtonUp:
			app.showMenu()
		}
		return 0
	case wmRefresh:
		app.mu.Lock()
		app.setTip(app.tip)
		app.mu.Unlock()
		procShellNotifyIconW.Call(nimModify, uintptr(unsafe.Pointer(&app.nid)))
		return 0
	case wmCommand:
		app.command(int(wParam & 0xFFFF))
		return 0
	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0
	}
	ret, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(message), wParam, lParam)
	return ret
}
