package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version,omitempty"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	Component    string    `json:"component,omitempty"`
	Operation    string    `json:"operation,omitempty"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
}

// PanicError is returned by Guard when fn panicked.
type PanicError struct {
	Operation string
	Value     any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// CrashHandler writes crash dumps for recovered panics.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	version   string
	component string
	logger    *Logger
}

// NewCrashHandler creates a handler writing dumps to dir. An empty dir
// disables dumps; panics are still logged.
func NewCrashHandler(dir, version, component string, logger *Logger) *CrashHandler {
	if logger == nil {
		logger = Default()
	}
	if dir != "" {
		os.MkdirAll(dir, 0700)
	}
	return &CrashHandler{
		dir:       dir,
		version:   version,
		component: component,
		logger:    logger,
	}
}

var (
	crashMu      sync.Mutex
	crashHandler *CrashHandler
)

// DefaultCrashHandler returns the process-wide crash handler.
func DefaultCrashHandler() *CrashHandler {
	crashMu.Lock()
	defer crashMu.Unlock()
	if crashHandler == nil {
		crashHandler = NewCrashHandler("", "", "smartclip", nil)
	}
	return crashHandler
}

// SetDefaultCrashHandler replaces the process-wide crash handler.
func SetDefaultCrashHandler(h *CrashHandler) {
	crashMu.Lock()
	crashHandler = h
	crashMu.Unlock()
}

// Guard runs fn and converts a panic into a *PanicError after reporting it
// to the default crash handler. Long-running loops use it so a single bad
// iteration cannot stop them.
func Guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			DefaultCrashHandler().HandlePanic(op, r)
			err = &PanicError{Operation: op, Value: r}
		}
	}()
	return fn()
}

// HandlePanic logs the panic and writes a crash dump.
func (h *CrashHandler) HandlePanic(op string, value any) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		Component:    h.component,
		Operation:    op,
		PanicValue:   fmt.Sprint(value),
		StackTrace:   string(debug.Stack()),
	}

	path, err := h.writeDump(report)
	h.logger.Error("recovered panic",
		"operation", op,
		"panic", report.PanicValue,
		"dump", path,
		"dump_error", err,
	)
	return report
}

func (h *CrashHandler) writeDump(report CrashReport) (string, error) {
	if h.dir == "" {
		return "", nil
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000"))
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports reads every dump in the crash directory.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	if h.dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOldCrashReports removes dumps older than maxAge.
func (h *CrashHandler) CleanupOldCrashReports(maxAge time.Duration) error {
	if h.dir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
