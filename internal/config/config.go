// Package config handles configuration loading, validation, and management for smartclip.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"smartclip/internal/logging"
	"smartclip/internal/security"
)

// Version is the current configuration schema version.
const Version = 1

// MaxImageBytesLimit caps capture.max_image_bytes so that a full image,
// base64-encoded, still fits in one IPC message.
const MaxImageBytesLimit = 64 << 20

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Capture configuration for clipboard polling.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`

	// Expiry configuration for OTP sweeps.
	Expiry ExpiryConfig `toml:"expiry" json:"expiry" yaml:"expiry"`

	// Storage configuration for the history database.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// History configuration for listings.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// IPC configuration for inter-process communication.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Debug HTTP endpoint configuration.
	Debug DebugConfig `toml:"debug" json:"debug" yaml:"debug"`

	// Hotkey configuration for the panel.
	Hotkey HotkeyConfig `toml:"hotkey" json:"hotkey" yaml:"hotkey"`

	// Windows-specific configuration.
	Windows WindowsConfig `toml:"windows" json:"windows" yaml:"windows"`
}

// CaptureConfig holds clipboard capture configuration.
type CaptureConfig struct {
	// PollIntervalMs is the clipboard polling interval in milliseconds.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// StartPrivate starts the daemon with capture paused.
	StartPrivate bool `toml:"start_private" json:"start_private" yaml:"start_private"`

	// MaxImageBytes is the largest PNG payload that is captured.
	// Larger images are skipped.
	MaxImageBytes int `toml:"max_image_bytes" json:"max_image_bytes" yaml:"max_image_bytes"`
}

// ExpiryConfig holds OTP expiry configuration.
type ExpiryConfig struct {
	// SweepIntervalSec is the interval between expiry sweeps.
	SweepIntervalSec int `toml:"sweep_interval_sec" json:"sweep_interval_sec" yaml:"sweep_interval_sec"`

	// OTPMaxAgeSec is how long a one-time code stays in history.
	OTPMaxAgeSec int `toml:"otp_max_age_sec" json:"otp_max_age_sec" yaml:"otp_max_age_sec"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// Driver is the database/sql driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `toml:"driver" json:"driver" yaml:"driver"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// HistoryConfig holds listing configuration.
type HistoryConfig struct {
	// PageSize is the default number of clips returned by a listing.
	PageSize int `toml:"page_size" json:"page_size" yaml:"page_size"`

	// ThumbnailHeight is the pixel height of image thumbnails.
	ThumbnailHeight int `toml:"thumbnail_height" json:"thumbnail_height" yaml:"thumbnail_height"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IPCConfig holds inter-process communication configuration.
type IPCConfig struct {
	// Enabled determines whether IPC server is enabled.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the path to the Unix socket (or named pipe on Windows).
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// Permissions is the Unix socket permissions (e.g., "0600").
	Permissions string `toml:"permissions" json:"permissions" yaml:"permissions"`

	// MaxConnections is the maximum concurrent connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the connection timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// DebugConfig holds the health and metrics endpoint configuration.
type DebugConfig struct {
	// Listen is the TCP address for /healthz, /readyz and /metrics.
	// Empty disables the endpoint.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// HotkeyConfig holds the global hotkey that opens the panel.
type HotkeyConfig struct {
	Primary  string `toml:"primary" json:"primary" yaml:"primary"`
	Fallback string `toml:"fallback" json:"fallback" yaml:"fallback"`
}

// WindowsConfig holds Windows-only settings.
type WindowsConfig struct {
	// DisableNativeHistory turns off the built-in Win+V clipboard history.
	DisableNativeHistory bool `toml:"disable_native_history" json:"disable_native_history" yaml:"disable_native_history"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Capture: CaptureConfig{
			PollIntervalMs: 500,
			StartPrivate:   false,
			MaxImageBytes:  32 * 1024 * 1024, // 32MB
		},
		Expiry: ExpiryConfig{
			SweepIntervalSec: 10,
			OTPMaxAgeSec:     60,
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dir, "clips.db"),
			Driver:        "sqlite3",
			BusyTimeoutMs: 5000,
		},
		History: HistoryConfig{
			PageSize:        50,
			ThumbnailHeight: 96,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     DefaultSocketPath(),
			Permissions:    "0600",
			MaxConnections: 16,
			TimeoutSec:     30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(PlatformLogDir(), "smartclipd.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Hotkey: HotkeyConfig{
			Primary:  "Alt+V",
			Fallback: "Ctrl+Shift+V",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the base smartclip directory.
// Uses platform-specific paths or the SMARTCLIP_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("SMARTCLIP_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	if c.IPC.Enabled && !isPipePath(c.IPC.SocketPath) {
		dirs = append(dirs, filepath.Dir(c.IPC.SocketPath))
	}

	// The data directory belongs to smartclip and is tightened if needed;
	// directories the user pointed elsewhere are only created.
	if err := security.EnsurePrivateDir(DataDir()); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, security.PermPrivateDir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with SMARTCLIP_ and use underscores.
// Malformed numeric or boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	// Storage overrides
	if v := os.Getenv("SMARTCLIP_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("SMARTCLIP_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}

	// Logging overrides
	if v := os.Getenv("SMARTCLIP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SMARTCLIP_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// IPC overrides
	if v := os.Getenv("SMARTCLIP_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}

	// Capture overrides
	if v := os.Getenv("SMARTCLIP_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Capture.PollIntervalMs = ms
		}
	}
	if v := os.Getenv("SMARTCLIP_PRIVATE"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Capture.StartPrivate = on
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// PollInterval returns the capture polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Capture.PollIntervalMs) * time.Millisecond
}

// SweepInterval returns the expiry sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Expiry.SweepIntervalSec) * time.Second
}

// OTPMaxAge returns how long OTP clips are retained.
func (c *Config) OTPMaxAge() time.Duration {
	return time.Duration(c.Expiry.OTPMaxAgeSec) * time.Second
}

// BusyTimeout returns the SQLite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMs) * time.Millisecond
}

// IPCTimeout returns the IPC connection timeout.
func (c *Config) IPCTimeout() time.Duration {
	return time.Duration(c.IPC.TimeoutSec) * time.Second
}

// SocketMode parses the configured socket permissions, defaulting to 0600.
func (c *Config) SocketMode() os.FileMode {
	mode, err := strconv.ParseUint(c.IPC.Permissions, 8, 32)
	if err != nil || c.IPC.Permissions == "" {
		return 0600
	}
	return os.FileMode(mode)
}

// LoggerConfig converts the logging section for logging.New.
func (l LoggingConfig) LoggerConfig(component string) (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     l.Output,
		FilePath:   l.FilePath,
		MaxSize:    int64(l.MaxSizeMB),
		MaxAge:     l.MaxAgeDays,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
		Component:  component,
	}, nil
}
