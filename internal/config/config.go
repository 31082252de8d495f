// Package config loads railyard configuration: built-in defaults, an
// optional CUE file validated against the embedded schema, then RAILYARD_*
// environment overrides, in that order.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAILYARD_"

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	Database  string          `json:"database" env:"DATABASE"`
	Engine    EngineConfig    `json:"engine" envPrefix:"ENGINE_"`
	Directory DirectoryConfig `json:"directory" envPrefix:"DIRECTORY_"`
	Railcar   RailcarConfig   `json:"railcar" envPrefix:"RAILCAR_"`
	Scheduler SchedulerConfig `json:"scheduler" envPrefix:"SCHEDULER_"`
	Log       LogConfig       `json:"log" envPrefix:"LOG_"`
}

// EngineConfig configures chain execution.
type EngineConfig struct {
	MaxHops int `json:"max_hops" env:"MAX_HOPS"`
}

// DirectoryConfig configures the directory module.
type DirectoryConfig struct {
	Address         string `json:"address" env:"ADDRESS"`
	Admin           string `json:"admin" env:"ADMIN"`
	RegistrationFee uint64 `json:"registration_fee" env:"REGISTRATION_FEE"`
	NamingFee       uint64 `json:"naming_fee" env:"NAMING_FEE"`
}

// RailcarConfig configures the railcar registry.
type RailcarConfig struct {
	Address     string `json:"address" env:"ADDRESS"`
	Admin       string `json:"admin" env:"ADMIN"`
	CreationFee uint64 `json:"creation_fee" env:"CREATION_FEE"`
}

// SchedulerConfig configures queue loops.
type SchedulerConfig struct {
	// Interval is the dispatch interval of queues that do not set one.
	Interval Duration `json:"interval" env:"INTERVAL"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" env:"LEVEL"`
	Format string `json:"format" env:"FORMAT"`
}

// Default returns the configuration used when nothing is set. It matches
// the defaults in the schema.
func Default() Config {
	return Config{
		Database: "railyard.db",
		Engine:   EngineConfig{MaxHops: 1000},
		Directory: DirectoryConfig{
			Address: "directory",
		},
		Railcar: RailcarConfig{
			Address: "railcars",
		},
		Scheduler: SchedulerConfig{
			Interval: Duration(time.Minute),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (if non-empty), then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		cfg, err = Parse(data, path)
		if err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse validates CUE source against the schema and fills in defaults.
// filename is only used in error positions.
func Parse(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", filename, err)
	}
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validate %s: %w", filename, err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return Config{}, fmt.Errorf("export %s: %w", filename, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from RAILYARD_* variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks invariants the environment can break after the schema has
// been applied.
func (c Config) Validate() error {
	if c.Engine.MaxHops <= 0 {
		return fmt.Errorf("engine.max_hops must be positive, got %d", c.Engine.MaxHops)
	}
	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler.interval must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the process logger described by c. verbose forces debug.
func (c LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Level)
	switch {
	case verbose:
		level = slog.LevelDebug
	case err != nil:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
