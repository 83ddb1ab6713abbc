package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func withDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SMARTCLIP_DATA_DIR", dir)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	dir := withDataDir(t)
	cfg := DefaultConfig()

	if cfg.PollInterval() != 500*time.Millisecond {
		t.Errorf("expected poll interval 500ms, got %v", cfg.PollInterval())
	}
	if cfg.SweepInterval() != 10*time.Second {
		t.Errorf("expected sweep interval 10s, got %v", cfg.SweepInterval())
	}
	if cfg.OTPMaxAge() != time.Minute {
		t.Errorf("expected OTP max age 60s, got %v", cfg.OTPMaxAge())
	}
	if cfg.Storage.Path != filepath.Join(dir, "clips.db") {
		t.Errorf("unexpected storage path: %s", cfg.Storage.Path)
	}
	if cfg.Storage.Driver != "sqlite3" {
		t.Errorf("expected sqlite3 driver, got %s", cfg.Storage.Driver)
	}
	if cfg.History.PageSize != 50 || cfg.History.ThumbnailHeight != 96 {
		t.Errorf("unexpected history defaults: %+v", cfg.History)
	}
	if cfg.Hotkey.Primary != "Alt+V" || cfg.Hotkey.Fallback != "Ctrl+Shift+V" {
		t.Errorf("unexpected hotkeys: %+v", cfg.Hotkey)
	}
	if cfg.SocketMode() != 0600 {
		t.Errorf("expected socket mode 0600, got %o", cfg.SocketMode())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	dir := withDataDir(t)
	path := ConfigPath()
	if path != filepath.Join(dir, "config.toml") {
		t.Errorf("unexpected config path %s", path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	withDataDir(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.PollIntervalMs != 500 {
		t.Errorf("expected defaults, got poll interval %d", cfg.Capture.PollIntervalMs)
	}
}

func TestLoadTOML(t *testing.T) {
	withDataDir(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
# poll faster
[capture]
poll_interval_ms = 250
start_private = true

[expiry]
otp_max_age_sec = 30

[storage]
path = "/custom/clips.db"
driver = "sqlite"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.PollIntervalMs != 250 || !cfg.Capture.StartPrivate {
		t.Errorf("capture section not applied: %+v", cfg.Capture)
	}
	if cfg.Expiry.OTPMaxAgeSec != 30 {
		t.Errorf("expected otp_max_age_sec 30, got %d", cfg.Expiry.OTPMaxAgeSec)
	}
	// Unset keys keep their defaults.
	if cfg.Expiry.SweepIntervalSec != 10 {
		t.Errorf("expected default sweep interval, got %d", cfg.Expiry.SweepIntervalSec)
	}
	if cfg.Storage.Path != "/custom/clips.db" || cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage section not applied: %+v", cfg.Storage)
	}
}

func TestLoadYAML(t *testing.T) {
	withDataDir(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "history:\n  page_size: 20\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.History.PageSize != 20 {
		t.Errorf("expected page size 20, got %d", cfg.History.PageSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadJSONChecksSchema(t *testing.T) {
	withDataDir(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`{"expiry": {"otp_max_age_sec": 120}}`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(good)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Expiry.OTPMaxAgeSec != 120 {
		t.Errorf("expected 120, got %d", cfg.Expiry.OTPMaxAgeSec)
	}

	cases := map[string]string{
		"unknown key":  `{"captur": {}}`,
		"out of range": `{"capture": {"poll_interval_ms": 1}}`,
		"bad driver":   `{"storage": {"driver": "postgres"}}`,
		"wrong type":   `{"ipc": {"enabled": "yes"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".json")
			if err := os.WriteFile(path, []byte(body), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected schema error")
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[capture\npoll_interval_ms = "), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestEnvOverrides(t *testing.T) {
	withDataDir(t)
	t.Setenv("SMARTCLIP_STORAGE_PATH", "/env/clips.db")
	t.Setenv("SMARTCLIP_STORAGE_DRIVER", "sqlite")
	t.Setenv("SMARTCLIP_LOG_LEVEL", "warn")
	t.Setenv("SMARTCLIP_SOCKET_PATH", "/env/d.sock")
	t.Setenv("SMARTCLIP_POLL_INTERVAL_MS", "1000")
	t.Setenv("SMARTCLIP_PRIVATE", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "/env/clips.db" || cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/env/d.sock" {
		t.Errorf("expected socket override, got %s", cfg.IPC.SocketPath)
	}
	if cfg.Capture.PollIntervalMs != 1000 || !cfg.Capture.StartPrivate {
		t.Errorf("capture overrides not applied: %+v", cfg.Capture)
	}
}

func TestEnvOverrideIgnoresMalformedNumbers(t *testing.T) {
	withDataDir(t)
	t.Setenv("SMARTCLIP_POLL_INTERVAL_MS", "fast")
	t.Setenv("SMARTCLIP_PRIVATE", "maybe")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if cfg.Capture.PollIntervalMs != 500 || cfg.Capture.StartPrivate {
		t.Errorf("malformed overrides should be ignored: %+v", cfg.Capture)
	}
}

func TestValidate(t *testing.T) {
	withDataDir(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"poll too fast", func(c *Config) { c.Capture.PollIntervalMs = 10 }, "capture.poll_interval_ms"},
		{"image cap", func(c *Config) { c.Capture.MaxImageBytes = MaxImageBytesLimit + 1 }, "capture.max_image_bytes"},
		{"zero sweep", func(c *Config) { c.Expiry.SweepIntervalSec = 0 }, "expiry.sweep_interval_sec"},
		{"zero otp age", func(c *Config) { c.Expiry.OTPMaxAgeSec = 0 }, "expiry.otp_max_age_sec"},
		{"missing db path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "pg" }, "storage.driver"},
		{"page size", func(c *Config) { c.History.PageSize = 0 }, "history.page_size"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"log file", func(c *Config) { c.Logging.Output = "both"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"permissions", func(c *Config) { c.IPC.Permissions = "rw" }, "ipc.permissions"},
		{"socket", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
		{"debug listen", func(c *Config) { c.Debug.Listen = "7465" }, "debug.listen"},
		{"hotkey", func(c *Config) { c.Hotkey.Primary = "Alt+" }, "hotkey.primary"},
		{"version", func(c *Config) { c.Version = 99 }, "version"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, f := range verrs.Fields() {
				if f == tc.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tc.field, verrs.Fields())
			}
		})
	}
}

func TestValidateDisabledIPCSkipsSocket(t *testing.T) {
	withDataDir(t)
	cfg := DefaultConfig()
	cfg.IPC.Enabled = false
	cfg.IPC.SocketPath = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled IPC should not require a socket: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	withDataDir(t)
	tmp := t.TempDir()

	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(tmp, "data", "clips.db")
	cfg.Logging.FilePath = filepath.Join(tmp, "logs", "smartclipd.log")
	cfg.IPC.SocketPath = filepath.Join(tmp, "run", "d.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, sub := range []string{"data", "logs", "run"} {
		info, err := os.Stat(filepath.Join(tmp, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", sub)
		}
	}
}

func TestEnsureDirectoriesTightensDataDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := withDataDir(t)
	if err := os.Chmod(dir, 0755); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.IPC.Enabled = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("data dir mode = %04o, want 0700", info.Mode().Perm())
	}
}

func TestClone(t *testing.T) {
	withDataDir(t)
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Capture.PollIntervalMs = 1
	if cfg.Capture.PollIntervalMs == 1 {
		t.Error("clone shares state with original")
	}
}

func TestSaveAndLoadOrCreate(t *testing.T) {
	withDataDir(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected config to be created")
	}
	if cfg.History.PageSize != 50 {
		t.Errorf("unexpected page size %d", cfg.History.PageSize)
	}

	again, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("second call should load the existing file")
	}
	if again.Hotkey.Primary != "Alt+V" {
		t.Errorf("saved config lost hotkey: %+v", again.Hotkey)
	}
}

func TestLoggerConfig(t *testing.T) {
	withDataDir(t)
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	lc, err := cfg.Logging.LoggerConfig("smartclipd")
	if err != nil {
		t.Fatalf("LoggerConfig failed: %v", err)
	}
	if lc.Component != "smartclipd" || lc.MaxSize != 10 {
		t.Errorf("unexpected logger config: %+v", lc)
	}

	cfg.Logging.Format = "xml"
	if _, err := cfg.Logging.LoggerConfig("x"); err == nil {
		t.Error("expected format error")
	}
}

func TestLoaderReloadsOnWrite(t *testing.T) {
	withDataDir(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[capture]\npoll_interval_ms = 500\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan [2]int, 1)
	loader.OnChange(func(old, new *Config) {
		select {
		case changed <- [2]int{old.Capture.PollIntervalMs, new.Capture.PollIntervalMs}:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer loader.Close()

	if err := os.WriteFile(path, []byte("[capture]\npoll_interval_ms = 200\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if got != [2]int{500, 200} {
			t.Errorf("unexpected change %v", got)
		}
	case err := <-loader.Errors():
		t.Fatalf("loader error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	if loader.Config().Capture.PollIntervalMs != 200 {
		t.Errorf("loader did not swap config")
	}
}

func TestLoaderKeepsConfigOnInvalidReload(t *testing.T) {
	withDataDir(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[history]\npage_size = 25\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	called := false
	loader.OnChange(func(_, _ *Config) { called = true })

	if err := os.WriteFile(path, []byte("[history]\npage_size = 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := loader.Reload(); err == nil {
		t.Fatal("expected reload to fail validation")
	}
	if called {
		t.Error("callbacks must not run for an invalid config")
	}
	if loader.Config().History.PageSize != 25 {
		t.Errorf("previous config should stay active")
	}
}
