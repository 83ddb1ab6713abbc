package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"smartclip/internal/security"
)

// DebounceDelay is how long the loader waits after the last file event
// before reloading. Editors often write a file in several steps.
const DebounceDelay = 100 * time.Millisecond

// codec decodes into and encodes a Config in one file format.
type codec struct {
	name   string
	decode func(data []byte, cfg *Config) error
	encode func(cfg *Config) ([]byte, error)
}

var (
	tomlCodec = codec{
		name: "TOML",
		decode: func(data []byte, cfg *Config) error {
			_, err := toml.Decode(string(data), cfg)
			return err
		},
		encode: func(cfg *Config) ([]byte, error) {
			var buf bytes.Buffer
			buf.WriteString("# smartclip configuration\n\n")
			err := toml.NewEncoder(&buf).Encode(cfg)
			return buf.Bytes(), err
		},
	}
	jsonCodec = codec{
		name: "JSON",
		decode: func(data []byte, cfg *Config) error {
			if err := ValidateJSONSchema(data); err != nil {
				return err
			}
			return json.Unmarshal(data, cfg)
		},
		encode: func(cfg *Config) ([]byte, error) {
			return json.MarshalIndent(cfg, "", "  ")
		},
	}
	yamlCodec = codec{
		name: "YAML",
		decode: func(data []byte, cfg *Config) error {
			return yaml.Unmarshal(data, cfg)
		},
		encode: func(cfg *Config) ([]byte, error) {
			return yaml.Marshal(cfg)
		},
	}
)

// codecFor picks the format from the file extension. Unknown extensions are
// treated as TOML, the format smartclipd writes by default.
func codecFor(path string) codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return jsonCodec
	case ".yaml", ".yml":
		return yamlCodec
	default:
		return tomlCodec
	}
}

// loadConfigFromFile decodes path over the defaults. A missing file yields
// the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := codecFor(path)
	if err := c.decode(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s config %s: %w", c.name, path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg atomically with owner-only permissions, in the
// format given by the extension.
func SaveConfig(cfg *Config, path string) error {
	data, err := codecFor(path).encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := security.WritePrivateFile(path, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadOrCreate loads path, first writing the defaults there when the file
// does not exist. The boolean reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	created := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := SaveConfig(DefaultConfig(), path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		created = true
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, created, nil
}

// Loader owns the active configuration of a running daemon and swaps it when
// the file changes on disk.
type Loader struct {
	path string

	mu       sync.RWMutex
	current  *Config
	onChange []func(old, new *Config)

	// reloadMu serialises Reload between the watcher and direct callers.
	reloadMu sync.Mutex

	watcher *fsnotify.Watcher
	errs    chan error
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewLoader creates a loader for path, or ConfigPath when empty.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	return &Loader{
		path: path,
		errs: make(chan error, 1),
		stop: make(chan struct{}),
	}
}

// Path returns the configuration file.
func (l *Loader) Path() string { return l.path }

// Load reads the file, applies environment overrides and validates.
func (l *Loader) Load() (*Config, error) {
	cfg, err := readAndValidate(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func readAndValidate(path string) (*Config, error) {
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the active configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to run after every reload that changes a setting.
func (l *Loader) OnChange(fn func(old, new *Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	l.mu.Unlock()
}

// Errors delivers reload and watcher failures. Only the latest unread error
// is kept.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Reload re-reads the file. An invalid file leaves the active configuration
// in place and returns the error; an unchanged file runs no callbacks.
func (l *Loader) Reload() error {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	select {
	case <-l.stop:
		return nil
	default:
	}

	next, err := readAndValidate(l.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	l.mu.Lock()
	prev := l.current
	l.current = next
	callbacks := append([]func(old, new *Config){}, l.onChange...)
	l.mu.Unlock()

	if prev != nil && *prev == *next {
		return nil
	}
	for _, fn := range callbacks {
		fn(prev, next)
	}
	return nil
}

// Watch starts reloading on file changes. The directory is watched because
// editors usually replace the file rather than write it in place.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = w
	l.done = make(chan struct{})
	go l.watch()
	return nil
}

func (l *Loader) watch() {
	defer close(l.done)

	name := filepath.Base(l.path)
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-l.stop:
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(DebounceDelay)
			}

		case <-debounce.C:
			if err := l.Reload(); err != nil {
				l.report(err)
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

func (l *Loader) report(err error) {
	select {
	case <-l.errs:
	default:
	}
	select {
	case l.errs <- err:
	default:
	}
}

// Close stops watching. It is safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		if l.watcher != nil {
			err = l.watcher.Close()
			<-l.done
		}
	})
	return err
}
