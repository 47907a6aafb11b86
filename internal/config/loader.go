package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a windscout configuration from the given YAML
// file path, then fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./windscout.yaml, ~/.windscout/config.yaml.
// When none exists it returns the built-in defaults rather than an
// error, so the binary runs out of the box.
func LoadDefault() (*Config, error) {
	candidates := []string{"windscout.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".windscout", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

// localUnitNames are the units with built-in implementations.
var localUnitNames = []string{"survey", "layout", "simulation", "report", "windrose"}

// applyDefaults fills unset fields with working values. An empty config
// file yields a runnable single-process setup: file store under ./data,
// every unit local.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == "" {
		cfg.Server.ReadTimeout = "15s"
	}
	if cfg.Server.WriteTimeout == "" {
		cfg.Server.WriteTimeout = "120s"
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "data"
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = os.Getenv("WINDSCOUT_DB_DSN")
	}

	if cfg.Routing.DefaultCapability == "" {
		cfg.Routing.DefaultCapability = "qa"
	}
	if cfg.Routing.MinConfidence == 0 {
		cfg.Routing.MinConfidence = 50
	}

	if cfg.Invoker.MaxAttempts == 0 {
		cfg.Invoker.MaxAttempts = 3
	}
	if cfg.Invoker.PerAttemptTimeout == "" {
		cfg.Invoker.PerAttemptTimeout = "30s"
	}
	if cfg.Invoker.BaseDelay == "" {
		cfg.Invoker.BaseDelay = "500ms"
	}

	if cfg.Units == nil {
		cfg.Units = make(map[string]Unit, len(localUnitNames))
	}
	for _, name := range localUnitNames {
		if _, ok := cfg.Units[name]; !ok {
			cfg.Units[name] = Unit{Kind: "local"}
		}
	}
	for name, u := range cfg.Units {
		if u.Kind == "" {
			if u.URL != "" {
				u.Kind = "http"
			} else {
				u.Kind = "local"
			}
			cfg.Units[name] = u
		}
	}

	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 2
	}
	if cfg.Queue.PollInterval == "" {
		cfg.Queue.PollInterval = "2s"
	}
}

// Duration parses a config duration string, returning the fallback for
// an empty value.
func Duration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
