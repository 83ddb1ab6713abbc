// smartclipd - clipboard history daemon
//
// smartclipd polls the system clipboard, keeps a deduplicated history in
// SQLite, expires one-time passcodes, and serves the history to
// smartclipctl, the panel and the tray over a local socket.
//
//	smartclipd run          Run in the foreground
//	smartclipd start        Run in the background
//	smartclipd stop         Stop the background daemon
//	smartclipd config       Show or initialise the configuration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"smartclip/internal/config"
	"smartclip/internal/logging"
	"smartclip/internal/security"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		cmdRun(args)
	case "start":
		cmdStart(args)
	case "stop":
		cmdStop()
	case "config":
		cmdConfig(args)
	case "version":
		fmt.Printf("smartclipd %s\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`smartclipd - clipboard history daemon

USAGE:
    smartclipd [command] [options]

COMMANDS:
    run                 Run in the foreground (default)
    start               Start in the background
    stop                Stop the background daemon
    config [init]       Show the effective configuration, or write defaults
    version             Show version
    help                Show this help message

OPTIONS (run, start, config):
    -config <path>      Configuration file (TOML, JSON or YAML)
    -debug              Log at debug level to stderr (run only)

ENVIRONMENT:
    SMARTCLIP_DATA_DIR, SMARTCLIP_STORAGE_PATH, SMARTCLIP_STORAGE_DRIVER,
    SMARTCLIP_LOG_LEVEL, SMARTCLIP_LOG_PATH, SMARTCLIP_SOCKET_PATH,
    SMARTCLIP_POLL_INTERVAL_MS, SMARTCLIP_PRIVATE`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "smartclipd: "+format+"\n", args...)
	os.Exit(1)
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "configuration file (default "+config.ConfigPath()+")")
}

func resolvePath(p string) string {
	if p == "" {
		return config.ConfigPath()
	}
	return p
}

func pidPath() string {
	return filepath.Join(config.DataDir(), "smartclipd.pid")
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := configFlag(fs)
	debug := fs.Bool("debug", false, "log at debug level to stderr")
	fs.Parse(args)

	if err := runDaemon(resolvePath(*configPath), *debug); err != nil {
		fatal("%v", err)
	}
}

// debugOverrides forces verbose console logging for -debug.
func debugOverrides(cfg *config.Config) {
	cfg.Logging.Level = "debug"
	cfg.Logging.Output = "stderr"
}

func runDaemon(path string, debug bool) error {
	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		debugOverrides(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	logCfg, err := cfg.Logging.LoggerConfig("smartclipd")
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)
	logging.SetDefaultCrashHandler(logging.NewCrashHandler(
		filepath.Join(config.DataDir(), "crashes"), Version, "smartclipd", log))

	if created {
		log.Info("wrote default configuration", "path", path)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	lock, err := security.AcquireInstanceLock(pidPath())
	if errors.Is(err, security.ErrLocked) {
		return fmt.Errorf("smartclipd is already running: %w", err)
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	daemon := NewDaemon(cfg, log, Version)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := daemon.Start(ctx); err != nil {
		return err
	}

	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		log.Warn("config hot reload disabled", "error", err)
	} else {
		loader.OnChange(func(old, updated *config.Config) {
			if debug {
				old, updated = old.Clone(), updated.Clone()
				debugOverrides(old)
				debugOverrides(updated)
			}
			daemon.Apply(old, updated)
		})
		if err := loader.Watch(); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
		defer loader.Close()
	}

	if cfg.IPC.Enabled {
		fmt.Printf("smartclipd %s listening on %s\n", Version, cfg.IPC.SocketPath)
	}
	if addr := daemon.DebugAddr(); addr != "" {
		fmt.Printf("Health and metrics on http://%s\n", addr)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			log.Info("shutting down", "signal", sig.String())
			cancel()
			return daemon.Stop()

		case err := <-loader.Errors():
			log.Warn("config reload failed; keeping previous settings", "error", err)

		case <-ticker.C:
			log.Debug("daemon alive", "clients", daemon.ClientCount())
		}
	}
}

func cmdStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	if pid, ok := runningPID(); ok {
		fatal("already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		fatal("locate executable: %v", err)
	}
	runArgs := []string{"run"}
	if *configPath != "" {
		runArgs = append(runArgs, "-config", *configPath)
	}

	cmd := exec.Command(exe, runArgs...)
	cmd.SysProcAttr = detachedProcAttr()
	if err := cmd.Start(); err != nil {
		fatal("start daemon: %v", err)
	}
	fmt.Printf("smartclipd started (pid %d)\n", cmd.Process.Pid)
	cmd.Process.Release()
}

func cmdStop() {
	pid, ok := runningPID()
	if !ok {
		fatal("not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		fatal("find process %d: %v", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Windows cannot deliver SIGTERM.
		if err := proc.Kill(); err != nil {
			fatal("stop process %d: %v", pid, err)
		}
		os.Remove(pidPath())
	}
	fmt.Printf("smartclipd stopped (pid %d)\n", pid)
}

// runningPID reads the pid file. A stale file is not treated as running.
func runningPID() (int, bool) {
	pid, ok := security.ReadPID(pidPath())
	if !ok || !processAlive(pid) {
		return 0, false
	}
	return pid, true
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)
	path := resolvePath(*configPath)

	if fs.Arg(0) == "init" {
		if _, err := os.Stat(path); err == nil {
			fatal("%s already exists", path)
		}
		if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Wrote %s\n", path)
		return
	}

	cfg, err := config.Load(path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintf(os.Stderr, "%s is invalid:\n", path)
			for _, e := range verrs {
				fmt.Fprintf(os.Stderr, "  %s\n", e.Error())
			}
			os.Exit(1)
		}
		fatal("%v", err)
	}

	fmt.Printf("Config file:     %s\n", path)
	fmt.Printf("Data directory:  %s\n", config.DataDir())
	fmt.Printf("Database:        %s (%s)\n", cfg.Storage.Path, cfg.Storage.Driver)
	fmt.Printf("Poll interval:   %s\n", cfg.PollInterval())
	fmt.Printf("OTP max age:     %s (sweep every %s)\n", cfg.OTPMaxAge(), cfg.SweepInterval())
	if cfg.IPC.Enabled {
		fmt.Printf("Socket:          %s (%s)\n", cfg.IPC.SocketPath, cfg.IPC.Permissions)
	} else {
		fmt.Println("Socket:          disabled")
	}
	if cfg.Debug.Listen != "" {
		fmt.Printf("Debug endpoint:  %s\n", cfg.Debug.Listen)
	}
	fmt.Printf("Log:             %s %s -> %s\n", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	fmt.Printf("Hotkey:          %s (fallback %s)\n", cfg.Hotkey.Primary, cfg.Hotkey.Fallback)
}
