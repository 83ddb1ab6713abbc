//go:build !windows

package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartclip/internal/clipboard"
	"smartclip/internal/config"
	"smartclip/internal/ipc"
	"smartclip/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	// Unix socket paths are length-limited; keep it short.
	dir, err := os.MkdirTemp("", "scd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("SMARTCLIP_DATA_DIR", dir)

	cfg := config.DefaultConfig()
	cfg.Capture.PollIntervalMs = 50
	cfg.Storage.Path = filepath.Join(dir, "clips.db")
	cfg.Storage.Driver = "sqlite"
	cfg.IPC.SocketPath = filepath.Join(dir, "d.sock")
	cfg.Logging.Output = "stderr"
	cfg.Logging.FilePath = filepath.Join(dir, "d.log")
	cfg.Debug.Listen = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, *clipboard.Memory) {
	t.Helper()
	cb := clipboard.NewMemory()
	d := NewDaemon(cfg, logging.Discard(), "test")
	d.clipboard = cb
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { d.Stop() })
	return d, cb
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDaemonCapturesAndServes(t *testing.T) {
	cfg := testConfig(t)
	_, cb := startDaemon(t, cfg)

	client := ipc.NewClient(ipc.DefaultClientConfig(cfg.IPC.SocketPath))
	require.NoError(t, client.Connect())
	defer client.Close()

	cb.Set("hello from the clipboard", nil)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		clips, err := client.ListClips(ctx, ipc.ListClipsRequest{})
		return err == nil && len(clips) == 1 && clips[0].Text == "hello from the clipboard"
	}, 5*time.Second, 20*time.Millisecond)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", status.Version)
	assert.True(t, status.Capturing)
	assert.Equal(t, int64(1), status.ClipCount)
}

func TestDaemonDebugEndpoints(t *testing.T) {
	cfg := testConfig(t)
	d, cb := startDaemon(t, cfg)
	base := "http://" + d.DebugAddr()

	code, _ := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		code, _ := get(t, base+"/readyz")
		return code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cb.Set("counted", nil)
	require.Eventually(t, func() bool {
		_, body := get(t, base+"/metrics")
		return strings.Contains(body, `smartclip_capture_ticks_total{outcome="accepted"} 1`) &&
			strings.Contains(body, "smartclip_history_clips 1")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Debug.Listen = ""
	d, _ := startDaemon(t, cfg)

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())

	_, err := os.Stat(cfg.IPC.SocketPath)
	assert.True(t, os.IsNotExist(err), "socket should be removed on stop")
}

func TestDaemonStartFailsOnBadStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "postgres"

	d := NewDaemon(cfg, logging.Discard(), "test")
	d.clipboard = clipboard.NewMemory()
	require.Error(t, d.Start(context.Background()))
}

func TestDaemonAppliesReload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Debug.Listen = ""
	d, _ := startDaemon(t, cfg)

	updated := cfg.Clone()
	updated.Expiry.OTPMaxAgeSec = 120
	updated.Logging.Level = "debug"
	d.Apply(cfg, updated)

	assert.Equal(t, 120*time.Second, d.expiry.MaxAge())
	assert.Equal(t, logging.LevelDebug, d.log.GetLevel())
}
