package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DebounceDelay is how long the loader waits after the last write before
// reloading.
const DebounceDelay = 100 * time.Millisecond

// codec reads and writes one file format.
type codec struct {
	name   string
	decode func([]byte, *Config) error
	encode func(*Config) ([]byte, error)
}

var (
	tomlCodec = codec{
		name: "TOML",
		decode: func(b []byte, c *Config) error {
			_, err := toml.Decode(string(b), c)
			return err
		},
		encode: encodeTOML,
	}
	jsonCodec = codec{
		name:   "JSON",
		decode: func(b []byte, c *Config) error { return json.Unmarshal(b, c) },
		encode: func(c *Config) ([]byte, error) { return json.MarshalIndent(c, "", "  ") },
	}
	yamlCodec = codec{
		name:   "YAML",
		decode: func(b []byte, c *Config) error { return yaml.Unmarshal(b, c) },
		encode: func(c *Config) ([]byte, error) { return yaml.Marshal(c) },
	}

	codecsByExt = map[string]codec{
		".toml": tomlCodec,
		".json": jsonCodec,
		".yaml": yamlCodec,
		".yml":  yamlCodec,
	}
)

// loadConfigFromFile decodes path over the defaults. A missing file
// yields the defaults; an unknown extension tries every format.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if c, ok := codecsByExt[filepath.Ext(path)]; ok {
		cfg := DefaultConfig()
		if err := c.decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		return cfg, nil
	}

	for _, c := range []codec{tomlCodec, jsonCodec, yamlCodec} {
		cfg := DefaultConfig()
		if c.decode(data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("parse config %s: not TOML, JSON or YAML", path)
}

// readValidated loads path, applies the environment and validates.
func readValidated(path string) (*Config, error) {
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

// SaveConfig writes cfg to path in the format given by its extension,
// TOML by default.
func SaveConfig(cfg *Config, path string) error {
	c, ok := codecsByExt[filepath.Ext(path)]
	if !ok {
		c = tomlCodec
	}
	data, err := c.encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func encodeTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# cogtask configuration\n# Version %d\n\n", cfg.Version)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadOrCreate loads the configuration at path, writing the defaults there
// first when the file does not exist. The bool reports creation.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, nil
	}
	cfg, err := readValidated(path)
	return cfg, false, err
}

// Loader keeps the current configuration of one file and reloads it when
// the file changes. A reload that fails keeps the previous configuration.
type Loader struct {
	path  string
	delay time.Duration

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)

	fsw  *fsnotify.Watcher
	errs chan error
	stop chan struct{}
	done chan struct{}
}

// NewLoader returns a loader for path. Call Load before Config.
func NewLoader(path string) *Loader {
	return &Loader{
		path:  path,
		delay: DebounceDelay,
		errs:  make(chan error, 1),
		stop:  make(chan struct{}),
	}
}

// Load reads and validates the file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := readValidated(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the last good configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to run after every successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Errors receives reload and watch failures. Only the latest unread
// error is kept.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Watch starts reloading on change. The directory is watched since
// editors often replace the file by rename.
func (l *Loader) Watch() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(l.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.fsw = fsw
	l.done = make(chan struct{})
	go l.loop()
	return nil
}

func (l *Loader) loop() {
	defer close(l.done)

	timer := time.NewTimer(l.delay)
	timer.Stop()
	defer timer.Stop()

	name := filepath.Base(l.path)
	for {
		select {
		case <-l.stop:
			return

		case ev, ok := <-l.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(l.delay)
			}

		case err, ok := <-l.fsw.Errors:
			if !ok {
				return
			}
			l.report(err)

		case <-timer.C:
			l.reload()
		}
	}
}

func (l *Loader) reload() {
	cfg, err := readValidated(l.path)
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.current = cfg
	fns := append(([]func(*Config))(nil), l.onChange...)
	l.mu.Unlock()

	for _, fn := range fns {
		fn(cfg)
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

// Close stops watching. It is safe to call without Watch.
func (l *Loader) Close() error {
	select {
	case <-l.stop:
		return nil
	default:
		close(l.stop)
	}
	if l.fsw == nil {
		return nil
	}
	err := l.fsw.Close()
	<-l.done
	return err
}
