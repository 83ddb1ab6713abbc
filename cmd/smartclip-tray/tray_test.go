package main

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"smartclip/internal/ipc"
)

func TestStatusTip(t *testing.T) {
	tests := []struct {
		s    *ipc.StatusResponse
		err  error
		want string
	}{
		{nil, errors.New("down"), "smartclip: daemon not running"},
		{&ipc.StatusResponse{Capturing: true, ClipCount: 3}, nil, "smartclip: 3 clips"},
		{&ipc.StatusResponse{Capturing: true, PrivateMode: true, ClipCount: 3}, nil, "smartclip: private mode (3 clips)"},
		{&ipc.StatusResponse{}, nil, "smartclip: paused"},
	}
	for _, tt := range tests {
		if got := statusTip(tt.s, tt.err); got != tt.want {
			t.Errorf("statusTip = %q, want %q", got, tt.want)
		}
	}
}

func TestPanelLauncherToggles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep(1)")
	}
	p := &panelLauncher{path: "sleep", args: []string{"30"}}

	if err := p.Toggle(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !p.Open() {
		t.Fatal("panel should be open")
	}
	if err := p.Toggle(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if p.Open() {
		t.Fatal("panel should be closed")
	}
}

func TestPanelLauncherForgetsExitedPanel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses true(1)")
	}
	p := &panelLauncher{path: "true"}
	if err := p.Toggle(); err != nil {
		t.Fatalf("open: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for p.Open() {
		if time.Now().After(deadline) {
			t.Fatal("exited panel still tracked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
