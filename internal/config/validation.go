package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalidConfig matches any validation failure with errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every rejected field so a user can fix a file
// in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the rejected field names in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i := range e {
		fields[i] = e[i].Field
	}
	return fields
}

type checker struct {
	errs ValidationErrors
}

func (c *checker) fail(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) between(field string, v, lo, hi int) {
	if v < lo || v > hi {
		c.fail(field, "value must be between %d and %d", lo, hi)
	}
}

func (c *checker) atLeast(field string, v, lo int, what string) {
	if v < lo {
		c.fail(field, "%s must be at least %d", what, lo)
	}
}

func (c *checker) oneOf(field, v string, allowed ...string) {
	if !slices.Contains(allowed, v) {
		c.fail(field, "invalid value %q (valid: %s)", v, strings.Join(allowed, ", "))
	}
}

var (
	octalMode = regexp.MustCompile(`^0[0-7]{3}$`)

	// Modifier+letter/digit, or optional modifiers + F1-F24.
	hotkeyPattern = regexp.MustCompile(`^((?i:ctrl|control|alt|shift|win|super)\+)+[A-Za-z0-9]$|^((?i:ctrl|control|alt|shift|win|super)\+)*(?i:f([1-9]|1[0-9]|2[0-4]))$`)
)

// ValidateConfig checks every section and returns ValidationErrors, or nil.
func ValidateConfig(cfg *Config) error {
	var c checker

	if cfg.Version < 1 || cfg.Version > Version {
		c.fail("version", "unsupported version %d (current: %d)", cfg.Version, Version)
	}

	c.between("capture.poll_interval_ms", cfg.Capture.PollIntervalMs, 50, 60_000)
	c.between("capture.max_image_bytes", cfg.Capture.MaxImageBytes, 1, MaxImageBytesLimit)

	c.atLeast("expiry.sweep_interval_sec", cfg.Expiry.SweepIntervalSec, 1, "sweep interval (seconds)")
	c.atLeast("expiry.otp_max_age_sec", cfg.Expiry.OTPMaxAgeSec, 1, "OTP max age (seconds)")

	if cfg.Storage.Path == "" {
		c.fail("storage.path", "required field is missing")
	}
	c.oneOf("storage.driver", cfg.Storage.Driver, "sqlite3", "sqlite")
	c.atLeast("storage.busy_timeout_ms", cfg.Storage.BusyTimeoutMs, 0, "busy timeout")

	c.between("history.page_size", cfg.History.PageSize, 1, 1000)
	c.between("history.thumbnail_height", cfg.History.ThumbnailHeight, 16, 1024)

	log := &cfg.Logging
	c.oneOf("logging.level", log.Level, "debug", "info", "warn", "error")
	c.oneOf("logging.format", log.Format, "text", "json")
	c.oneOf("logging.output", log.Output, "stdout", "stderr", "file", "both")
	if (log.Output == "file" || log.Output == "both") && log.FilePath == "" {
		c.fail("logging.file_path", "file path is required when output writes to a file")
	}
	c.atLeast("logging.max_size_mb", log.MaxSizeMB, 1, "max size (MB)")
	c.atLeast("logging.max_backups", log.MaxBackups, 0, "max backups")
	c.atLeast("logging.max_age_days", log.MaxAgeDays, 0, "max age (days)")

	if ipc := &cfg.IPC; ipc.Enabled {
		if ipc.SocketPath == "" {
			c.fail("ipc.socket_path", "socket path is required when IPC is enabled")
		}
		if ipc.Permissions != "" && !octalMode.MatchString(ipc.Permissions) {
			c.fail("ipc.permissions", "invalid permissions %q (expected octal like 0600)", ipc.Permissions)
		}
		c.atLeast("ipc.max_connections", ipc.MaxConnections, 1, "max connections")
		c.atLeast("ipc.timeout_sec", ipc.TimeoutSec, 1, "timeout (seconds)")
	}

	if addr := cfg.Debug.Listen; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			c.fail("debug.listen", "invalid listen address %q: %v", addr, err)
		}
	}

	switch hk := cfg.Hotkey; {
	case hk.Primary == "":
		c.fail("hotkey.primary", "required field is missing")
	case !hotkeyPattern.MatchString(hk.Primary):
		c.fail("hotkey.primary", "invalid hotkey %q (expected e.g. Alt+V)", hk.Primary)
	}
	if fb := cfg.Hotkey.Fallback; fb != "" && !hotkeyPattern.MatchString(fb) {
		c.fail("hotkey.fallback", "invalid hotkey %q (expected e.g. Ctrl+Shift+V)", fb)
	}

	if len(c.errs) > 0 {
		return c.errs
	}
	return nil
}
