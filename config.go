package quarry

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/quarrydb/quarry/dialect"
	"github.com/quarrydb/quarry/dialect/sql"
)

// Duration decodes "250ms" style strings from YAML documents.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("quarry: parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// ConnectionConfig declares one named connection.
type ConnectionConfig struct {
	// Dialect is the dialect name, doubling as the database/sql driver name.
	Dialect string `yaml:"dialect"`
	// DSN is the driver-specific data source name.
	DSN string `yaml:"dsn"`
	// LogQueries wraps the driver with debug statement logging.
	LogQueries bool `yaml:"log_queries"`
	// SlowQueryThreshold overrides the slow-statement threshold.
	SlowQueryThreshold Duration `yaml:"slow_query_threshold"`
}

// Config is the engine's connection registry file.
type Config struct {
	// Default names the connection Open("") resolves to.
	Default     string                      `yaml:"default"`
	Connections map[string]ConnectionConfig `yaml:"connections"`
}

// ParseConfig decodes and validates a configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("quarry: parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quarry: read config: %w", err)
	}
	return ParseConfig(data)
}

func (c *Config) validate() error {
	if len(c.Connections) == 0 {
		return fmt.Errorf("quarry: config declares no connections")
	}
	if c.Default != "" {
		if _, ok := c.Connections[c.Default]; !ok {
			return fmt.Errorf("quarry: default connection %q is not declared", c.Default)
		}
	}
	for name, cc := range c.Connections {
		if cc.Dialect == "" {
			return fmt.Errorf("quarry: connection %q declares no dialect", name)
		}
		if cc.DSN == "" {
			return fmt.Errorf("quarry: connection %q declares no dsn", name)
		}
	}
	return nil
}

// Registry opens and caches the connections a Config declares. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	cfg     *Config
	conns   map[string]*Conn
	drivers map[string]*sql.StatsDriver
	watcher *fsnotify.Watcher
}

// NewRegistry returns a registry over the given configuration.
func NewRegistry(cfg *Config) *Registry {
	return &Registry{
		cfg:     cfg,
		conns:   make(map[string]*Conn),
		drivers: make(map[string]*sql.StatsDriver),
	}
}

// Open returns the named connection, opening it on first use. An empty
// name resolves to the configured default. Every connection is wrapped
// with statistics collection; log_queries additionally wraps it with
// debug statement logging.
func (r *Registry) Open(name string) (*Conn, error) {
	r.mu.RLock()
	if name == "" {
		name = r.cfg.Default
	}
	if conn, ok := r.conns[name]; ok {
		r.mu.RUnlock()
		return conn, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[name]; ok {
		return conn, nil
	}
	cc, ok := r.cfg.Connections[name]
	if !ok {
		return nil, fmt.Errorf("quarry: connection %q is not declared", name)
	}
	drv, err := sql.Open(cc.Dialect, cc.DSN)
	if err != nil {
		return nil, err
	}
	g, err := sql.GrammarFor(cc.Dialect)
	if err != nil {
		drv.Close()
		return nil, err
	}
	opts := []sql.StatsOption{sql.WithSlowQueryLog(g)}
	if cc.SlowQueryThreshold > 0 {
		opts = append(opts, sql.WithSlowThreshold(time.Duration(cc.SlowQueryThreshold)))
	}
	stats := sql.NewStatsDriver(drv, opts...)
	var wrapped dialect.Driver = stats
	if cc.LogQueries {
		wrapped = dialect.Debug(wrapped)
	}
	conn, err := NewConn(wrapped)
	if err != nil {
		drv.Close()
		return nil, err
	}
	r.conns[name] = conn
	r.drivers[name] = stats
	return conn, nil
}

// Stats returns the query statistics of an opened connection, or nil when
// the connection was never opened.
func (r *Registry) Stats(name string) *sql.QueryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.cfg.Default
	}
	d, ok := r.drivers[name]
	if !ok {
		return nil
	}
	return d.QueryStats()
}

// Watch reloads the configuration whenever the file at path changes.
// Connections opened before a reload keep running; reopened names pick up
// the new settings. A reload of an unparsable file is skipped and logged.
func (r *Registry) Watch(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					slog.Warn("config reload skipped", "path", path, "error", err)
					continue
				}
				r.mu.Lock()
				r.cfg = cfg
				r.mu.Unlock()
				slog.Info("config reloaded", "path", path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watch error", "error", err)
			}
		}
	}()
	return nil
}

// Close closes every opened connection and stops a running watch. The
// first error is returned; closing continues past it.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			first = err
		}
		r.watcher = nil
	}
	for name, conn := range r.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.conns, name)
		delete(r.drivers, name)
	}
	return first
}
