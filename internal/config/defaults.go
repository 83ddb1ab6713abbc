package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const appName = "smartclip"

// envOr returns $key joined with rest, or def when key is unset.
func envOr(key, def string, rest ...string) string {
	if v := os.Getenv(key); v != "" {
		return filepath.Join(append([]string{v}, rest...)...)
	}
	return def
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func inHome(parts ...string) string {
	return filepath.Join(append([]string{homeDir()}, parts...)...)
}

// PlatformDataDir is where the database and configuration live:
// Application Support on macOS, the XDG data dir on Linux and the roaming
// AppData dir on Windows.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return inHome("Library", "Application Support", appName)
	case "linux":
		return envOr("XDG_DATA_HOME", inHome(".local", "share", appName), appName)
	case "windows":
		return envOr("APPDATA", inHome("AppData", "Roaming", appName), appName)
	default:
		return inHome("." + appName)
	}
}

// PlatformLogDir is where log files go.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return inHome("Library", "Logs", appName)
	case "linux":
		return envOr("XDG_STATE_HOME", inHome(".local", "state", appName), appName)
	case "windows":
		return envOr("LOCALAPPDATA", inHome("AppData", "Local", appName, "logs"), appName, "logs")
	default:
		return filepath.Join(PlatformDataDir(), "logs")
	}
}

// PlatformRuntimeDir holds the daemon socket. Windows uses a named pipe
// and has none.
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "darwin":
		return PlatformDataDir()
	case "windows":
		return ""
	default:
		return envOr("XDG_RUNTIME_DIR", filepath.Join(os.TempDir(), appName+"-"+strconv.Itoa(max(os.Getuid(), 0))), appName)
	}
}

// DefaultSocketPath returns the daemon endpoint for this platform.
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\` + appName
	}
	return filepath.Join(PlatformRuntimeDir(), "smartclipd.sock")
}

func isPipePath(path string) bool {
	return strings.HasPrefix(path, `\\.\pipe\`)
}
