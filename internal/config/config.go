package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the ambient, environment-driven knobs a Store/driver owns
// at construction time. It is not a general-purpose application config —
// see the package doc comment.
type Config struct {
	// Driver selects the default Driver implementation: "memory" or "sqlite".
	Driver string

	// SQLitePath is the file path used by the sqlite driver.
	SQLitePath string

	// DefaultLimit is applied to a Query when it specifies no Limit.
	DefaultLimit int

	// LogLevel and LogFormat configure internal/logging.NewLogger.
	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when no environment overrides exist.
func Default() Config {
	return Config{
		Driver:       "memory",
		SQLitePath:   "loam.db",
		DefaultLimit: 1000,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// Load reads LOAM_* environment variables over top of Default(), validates
// the result, and returns it.
func Load() (Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if err := k.Load(env.Provider("LOAM_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LOAM_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading environment: %w", err)
	}

	if v := k.String("driver"); v != "" {
		cfg.Driver = v
	}
	if v := k.String("sqlite_path"); v != "" {
		cfg.SQLitePath = v
	}
	if v := k.String("default_limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: LOAM_DEFAULT_LIMIT: %w", err)
		}
		cfg.DefaultLimit = n
	}
	if v := k.String("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := k.String("log_format"); v != "" {
		cfg.LogFormat = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	switch c.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unsupported driver %q (supported: memory, sqlite)", c.Driver)
	}
	if c.Driver == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("config: sqlite_path is required when driver=sqlite")
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("config: default_limit must be positive, got %d", c.DefaultLimit)
	}
	return nil
}
