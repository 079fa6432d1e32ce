package loam

import "fmt"

// DriverConfig selects and configures a Driver implementation. It mirrors
// internal/config.Config's driver fields so callers can go straight from
// environment configuration to a live Driver.
type DriverConfig struct {
	// Kind selects the implementation: "memory" (default) or "sqlite".
	Kind string

	// SQLitePath is the database file path, used only when Kind == "sqlite".
	SQLitePath string
}

// DriverFactory constructs a Driver for a given DriverConfig.Kind. The
// memdriver and sqlitedriver packages register "memory" and "sqlite" when
// imported; a caller can add further kinds with RegisterDriver.
type DriverFactory func(cfg DriverConfig) (Driver, error)

// defaultFactories is populated by memdriver/sqlitedriver's init()
// functions via RegisterDriver, keeping loam's core package free of a
// direct import on either (which would otherwise make both mandatory
// dependencies of every program that only wants one).
var defaultFactories = map[string]DriverFactory{}

// RegisterDriver makes a Driver implementation available to NewDriver
// under kind. Driver packages call this from an init() function; it
// panics on a duplicate registration since that indicates two packages
// compiled into the same binary claim the same kind.
func RegisterDriver(kind string, factory DriverFactory) {
	if _, exists := defaultFactories[kind]; exists {
		panic(fmt.Sprintf("loam: driver kind %q already registered", kind))
	}
	defaultFactories[kind] = factory
}

// NewDriver builds a Driver per cfg.Kind. The memory driver is used when
// Kind is empty. Callers must blank-import (or otherwise link) the
// memdriver/sqlitedriver package implementing the requested kind.
func NewDriver(cfg DriverConfig) (Driver, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = "memory"
	}
	factory, ok := defaultFactories[kind]
	if !ok {
		return nil, fmt.Errorf("loam: unknown driver kind %q (is its package imported?)", kind)
	}
	return factory(cfg)
}
