// Package config loads engine and CLI settings from a file and JANUS_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wbrown/janus-chase/datalog/chase"
	"github.com/wbrown/janus-chase/datalog/storage"
)

// EnvPrefix prefixes every environment variable, e.g. JANUS_STORE_KIND
const EnvPrefix = "janus"

// Config holds the settings of a chase run
type Config struct {
	Strategy       string        `mapstructure:"strategy"`
	Applicability  string        `mapstructure:"applicability"`
	Workers        int           `mapstructure:"workers"`
	MaxRounds      int           `mapstructure:"max_rounds"`
	VariablePrefix string        `mapstructure:"variable_prefix"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheSize      int           `mapstructure:"cache_size"`
	Native         bool          `mapstructure:"native"`

	Store StoreConfig `mapstructure:"store"`
	Log   LogConfig   `mapstructure:"log"`

	Verbose bool `mapstructure:"verbose"`
}

// StoreConfig selects the fact store
type StoreConfig struct {
	Kind string `mapstructure:"kind"`
	Path string `mapstructure:"path"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Strategy:       chase.BreadthFirstStrategy.String(),
		Applicability:  chase.Restricted.String(),
		Workers:        1,
		VariablePrefix: chase.DefaultVariablePrefix,
		Store:          StoreConfig{Kind: string(storage.KindMemory)},
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (YAML, TOML or JSON; empty for none) over the defaults,
// then applies JANUS_* environment overrides
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("applicability", d.Applicability)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("max_rounds", d.MaxRounds)
	v.SetDefault("variable_prefix", d.VariablePrefix)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("cache_size", d.CacheSize)
	v.SetDefault("native", d.Native)
	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("verbose", d.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Validate checks the enumerated settings
func (c Config) Validate() error {
	if _, err := chase.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if _, err := chase.ParseApplicability(c.Applicability); err != nil {
		return err
	}
	switch storage.Kind(strings.ToLower(c.Store.Kind)) {
	case storage.KindMemory, storage.KindBadger, storage.KindSQLite, "":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.Workers < 0 || c.MaxRounds < 0 {
		return fmt.Errorf("workers and max_rounds must not be negative")
	}
	return nil
}

// ChaseOptions converts the settings into chase options. Solver, handler,
// logger and metrics are left for the caller.
func (c Config) ChaseOptions() (chase.Options, error) {
	strategy, err := chase.ParseStrategy(c.Strategy)
	if err != nil {
		return chase.Options{}, err
	}
	applicability, err := chase.ParseApplicability(c.Applicability)
	if err != nil {
		return chase.Options{}, err
	}
	return chase.Options{
		Strategy:       strategy,
		Applicability:  applicability,
		Workers:        c.Workers,
		MaxRounds:      c.MaxRounds,
		VariablePrefix: c.VariablePrefix,
	}, nil
}

// OpenStore opens the configured store
func (c Config) OpenStore() (storage.Store, error) {
	return storage.Open(storage.Kind(c.Store.Kind), c.Store.Path)
}
