package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"smartclip/internal/capture"
	"smartclip/internal/clipboard"
	"smartclip/internal/config"
	"smartclip/internal/expiry"
	"smartclip/internal/health"
	"smartclip/internal/ipc"
	"smartclip/internal/logging"
	"smartclip/internal/metrics"
	"smartclip/internal/notify"
	"smartclip/internal/platform"
	"smartclip/internal/service"
	"smartclip/internal/store"
)

// Daemon owns every long-running component of smartclipd.
type Daemon struct {
	cfg     *config.Config
	log     *logging.Logger
	version string

	// clipboard is the OS clipboard unless a test replaces it.
	clipboard clipboard.Clipboard

	store   *store.Store
	loop    *capture.Loop
	expiry  *expiry.Scheduler
	hub     *notify.Hub
	svc     *service.Service
	server  *ipc.Server
	metrics *metrics.SmartclipMetrics
	health  *health.Checker

	debugLn  net.Listener
	debugSrv *http.Server

	closers []func() error

	mu      sync.Mutex
	started bool
}

// NewDaemon creates a stopped daemon for cfg.
func NewDaemon(cfg *config.Config, log *logging.Logger, version string) *Daemon {
	return &Daemon{
		cfg:       cfg,
		log:       log,
		version:   version,
		clipboard: clipboard.New(),
	}
}

// Start opens the store and starts capture, expiry, the IPC server and the
// debug endpoint. Any failure here is a startup failure; components that did
// start are stopped again.
func (d *Daemon) Start(ctx context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("daemon already started")
	}
	defer func() {
		if err != nil {
			d.shutdown()
		}
	}()

	cfg := d.cfg
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path,
		store.WithDriver(cfg.Storage.Driver),
		store.WithBusyTimeout(cfg.BusyTimeout()),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = st
	d.closers = append(d.closers, st.Close)
	d.log.Info("store opened", "path", cfg.Storage.Path, "driver", cfg.Storage.Driver)

	d.hub = notify.NewHub()
	d.metrics = metrics.NewSmartclipMetrics(metrics.NewRegistry("smartclip"))

	d.loop = capture.New(d.clipboard, st, capture.Config{
		Interval:      cfg.PollInterval(),
		MaxImageBytes: cfg.Capture.MaxImageBytes,
		StartPrivate:  cfg.Capture.StartPrivate,
	},
		capture.WithLogger(d.log),
		capture.WithPublisher(d.hub),
		capture.WithObserver(func(out capture.Outcome, took time.Duration) {
			d.metrics.ObserveTick(out.String(), took)
		}),
	)

	d.expiry = expiry.New(st, d.hub, cfg.SweepInterval(), cfg.OTPMaxAge(), d.log)

	d.svc = service.New(st, d.loop, d.hub, service.Config{
		Version:         d.version,
		PageSize:        cfg.History.PageSize,
		ThumbnailHeight: cfg.History.ThumbnailHeight,
	},
		service.WithLogger(d.log),
		service.WithExpiry(d.expiry),
	)

	d.trackMetrics()
	d.addDesktopSinks()
	d.applyPlatform()

	if cfg.IPC.Enabled {
		if err := d.startIPC(); err != nil {
			return err
		}
	}

	d.health = d.newChecker()
	if cfg.Debug.Listen != "" {
		if err := d.startDebug(); err != nil {
			return err
		}
	}

	if err := d.loop.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	d.expiry.Start(ctx)

	d.health.SetReady(true)
	d.started = true
	d.log.Info("smartclipd started", "version", d.version, "private_mode", d.loop.Private())
	return nil
}

func (d *Daemon) trackMetrics() {
	d.metrics.TrackHistory(func() int64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := d.store.Count(ctx)
		if err != nil {
			return -1
		}
		return n
	})
	d.metrics.TrackQueue(d.svc.Queue().Len)
	d.metrics.TrackPrivateMode(d.loop.Private)
	d.metrics.TrackExpiry(d.expiry.Stats)
}

func (d *Daemon) startIPC() error {
	handler := ipc.NewDaemonHandler(d.svc, d.log)

	srvCfg := ipc.DefaultServerConfig(d.cfg.IPC.SocketPath)
	srvCfg.Version = d.version
	srvCfg.Permissions = d.cfg.SocketMode()
	srvCfg.MaxConnections = d.cfg.IPC.MaxConnections
	srvCfg.ReadTimeout = d.cfg.IPCTimeout()
	srvCfg.Logger = d.log

	server, err := ipc.NewServer(srvCfg, ipc.HandlerFunc(func(ctx context.Context, client *ipc.Client, msg *ipc.Message) (*ipc.Message, error) {
		resp, err := handler.HandleMessage(ctx, client, msg)
		d.metrics.ObserveRequest(err != nil || (resp != nil && resp.Header.Type == ipc.MsgError))
		return resp, err
	}))
	if err != nil {
		return fmt.Errorf("create ipc server: %w", err)
	}
	handler.AttachServer(server)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	d.server = server
	d.closers = append(d.closers, server.Stop)

	remove := d.hub.Add(server)
	d.closers = append(d.closers, func() error { remove(); return nil })
	d.metrics.TrackClients(server.ClientCount)
	return nil
}

func (d *Daemon) newChecker() *health.Checker {
	c := health.NewChecker()
	c.RegisterFunc("store", true, health.StoreCheck(d.store.Ping))

	// A few missed polls are tolerated before the loop counts as stalled.
	silence := 5*d.cfg.PollInterval() + time.Second
	c.RegisterFunc("capture", true, health.LoopCheck(
		d.loop.Running,
		func() time.Time { return d.loop.Stats().LastTick },
		silence,
	))
	return c
}

func (d *Daemon) startDebug() error {
	ln, err := net.Listen("tcp", d.cfg.Debug.Listen)
	if err != nil {
		return fmt.Errorf("listen debug endpoint: %w", err)
	}
	d.debugLn = ln
	d.debugSrv = &http.Server{
		Handler:           health.NewRouter(d.health, d.metrics.Registry().HTTPHandler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := d.debugSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("debug endpoint failed", "error", err)
		}
	}()
	d.closers = append(d.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return d.debugSrv.Shutdown(ctx)
	})
	d.log.Info("debug endpoint listening", "address", ln.Addr().String())
	return nil
}

// applyPlatform turns off the native Windows clipboard history when asked
// to, so the two histories do not compete.
func (d *Daemon) applyPlatform() {
	if !d.cfg.Windows.DisableNativeHistory {
		return
	}
	enabled, err := platform.ClipboardHistoryEnabled()
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		d.log.Debug("windows.disable_native_history ignored on this system")
		return
	case err != nil:
		d.log.Warn("read native clipboard history setting", "error", err)
		return
	case !enabled:
		return
	}
	if err := platform.DisableClipboardHistory(); err != nil {
		d.log.Warn("disable native clipboard history", "error", err)
		return
	}
	d.log.Info("native clipboard history disabled")
}

// DebugAddr returns the bound debug address, or "" when disabled.
func (d *Daemon) DebugAddr() string {
	if d.debugLn == nil {
		return ""
	}
	return d.debugLn.Addr().String()
}

// Service exposes the history facade.
func (d *Daemon) Service() *service.Service { return d.svc }

// ClientCount returns the number of connected IPC clients.
func (d *Daemon) ClientCount() int {
	if d.server == nil {
		return 0
	}
	return d.server.ClientCount()
}

// Apply reacts to a reloaded configuration. Only settings that can change
// without reopening the store or rebinding sockets are applied.
func (d *Daemon) Apply(old, cfg *config.Config) {
	if old.Capture.PollIntervalMs != cfg.Capture.PollIntervalMs {
		d.loop.SetInterval(cfg.PollInterval())
		d.log.Info("poll interval changed", "interval", cfg.PollInterval())
	}
	if old.Expiry != cfg.Expiry {
		d.expiry.Configure(cfg.SweepInterval(), cfg.OTPMaxAge())
		d.log.Info("expiry settings changed",
			"sweep_interval", cfg.SweepInterval(), "otp_max_age", cfg.OTPMaxAge())
	}
	if old.Logging.Level != cfg.Logging.Level {
		if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			d.log.SetLevel(level)
			d.log.Info("log level changed", "level", logging.LevelString(level))
		}
	}
	if old.Storage != cfg.Storage || old.IPC != cfg.IPC || old.Debug != cfg.Debug {
		d.log.Warn("storage, ipc and debug settings take effect after restart")
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

// Stop shuts everything down in reverse start order. An in-flight tick or
// sweep completes first.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false
	return d.shutdown()
}

func (d *Daemon) shutdown() error {
	if d.health != nil {
		d.health.SetReady(false)
	}
	if d.loop != nil {
		d.loop.Stop()
	}
	if d.expiry != nil {
		d.expiry.Stop()
	}

	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
