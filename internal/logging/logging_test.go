package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("level %v did not survive: %v, %v", level, parsed, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected info level, got %v", cfg.Level)
	}
	if cfg.Component != "smartclip" {
		t.Errorf("expected component smartclip, got %s", cfg.Component)
	}
	if !strings.Contains(cfg.FilePath, "smartclip") {
		t.Errorf("log path should live under smartclip: %s", cfg.FilePath)
	}
}

func newBufferLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelDebug, Format: format, Writer: &buf, Component: "test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, &buf
}

func TestLoggerWithComponent(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)

	l.WithComponent("capture").Info("tick", "outcome", "accepted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["component"] != "capture" {
		t.Errorf("component = %v, want capture", entry["component"])
	}
	if entry["outcome"] != "accepted" {
		t.Errorf("outcome missing: %v", entry)
	}
}

func TestLevelStringBetweenLevels(t *testing.T) {
	if got := LevelString(LevelInfo + 2); got != "warn" {
		t.Errorf("LevelString(info+2) = %q, want warn", got)
	}
	if got := LevelString(LevelError + 1); got != "error" {
		t.Errorf("LevelString(error+1) = %q, want error", got)
	}
}

func TestCloseIsShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartclip.log")
	l, err := New(&Config{Level: LevelInfo, Output: "file", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	child := l.WithComponent("ipc")
	child.Info("before close")

	if err := child.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "before close") {
		t.Errorf("entry not written: %s", data)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key    string
		redact bool
	}{
		{"text", true},
		{"Preview", true},
		{"payload", true},
		{"content", true},
		{"image", true},
		{"password", true},
		{"auth_token", true},
		{"context", false},
		{"text_len", false},
		{"fingerprint", false},
		{"private_mode", false},
		{"hotkey", false},
		{"id", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := shouldRedact(tt.key); got != tt.redact {
				t.Errorf("shouldRedact(%q) = %v, want %v", tt.key, got, tt.redact)
			}
		})
	}
}

func TestPayloadNeverLogged(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)
	l.Info("captured", "text", "hunter2", "id", 7)

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("payload leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Errorf("expected redaction marker: %s", buf.String())
	}
}

func TestSetLevelAppliesToDerivedLoggers(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)
	child := l.WithComponent("expiry")

	l.SetLevel(LevelWarn)
	child.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged above warn level: %s", buf.String())
	}

	l.SetLevel(LevelDebug)
	child.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug not logged after lowering level")
	}
	if l.GetLevel() != LevelDebug {
		t.Errorf("GetLevel = %v", l.GetLevel())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestFileRotator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "smartclip.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := r.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "line\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestFileRotatorRotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartclip.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 5})
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 3; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	files, err := r.LogFiles()
	if err != nil {
		t.Fatalf("LogFiles failed: %v", err)
	}
	if len(files) < 2 {
		t.Errorf("expected rotated files, got %v", files)
	}
}

func TestFileRotatorRotatesByDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartclip.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 100})
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}

	day := time.Date(2026, 5, 1, 23, 59, 0, 0, time.Local)
	r.now = func() time.Time { return day }
	r.opened = day
	r.Write([]byte("before midnight\n"))

	day = day.Add(2 * time.Minute)
	r.Write([]byte("after midnight\n"))
	r.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "after midnight\n" {
		t.Errorf("current file should only hold the new day: %q", data)
	}
}

func TestGuardRecoversPanics(t *testing.T) {
	dir := t.TempDir()
	SetDefaultCrashHandler(NewCrashHandler(dir, "test", "unit", Discard()))
	defer SetDefaultCrashHandler(nil)

	err := Guard("tick", func() error {
		var m map[string]int
		m["boom"]++
		return nil
	})

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Operation != "tick" {
		t.Errorf("operation = %q", pe.Operation)
	}

	reports, err := DefaultCrashHandler().CrashReports()
	if err != nil {
		t.Fatalf("CrashReports failed: %v", err)
	}
	if len(reports) != 1 || reports[0].Operation != "tick" {
		t.Errorf("unexpected reports: %+v", reports)
	}
}

func TestGuardPassesErrors(t *testing.T) {
	want := errors.New("plain")
	if err := Guard("op", func() error { return want }); err != want {
		t.Errorf("Guard changed the error: %v", err)
	}
	if err := Guard("op", func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCrashHandlerCleanupOld(t *testing.T) {
	dir := t.TempDir()
	h := NewCrashHandler(dir, "", "unit", Discard())
	h.HandlePanic("op", "x")

	old := time.Now().Add(-48 * time.Hour)
	files, _ := filepath.Glob(filepath.Join(dir, "crash-*.json"))
	for _, f := range files {
		os.Chtimes(f, old, old)
	}

	if err := h.CleanupOldCrashReports(24 * time.Hour); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	reports, _ := h.CrashReports()
	if len(reports) != 0 {
		t.Errorf("expected old reports removed, got %d", len(reports))
	}
}
