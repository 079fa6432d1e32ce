// Package logging provides the structured logger used across loam.
//
// Logging is built on go.uber.org/zap. A loam.Store takes a *Logger
// through loam.WithLogger (never the global zap logger) so tests can swap
// in NewTestLogger and assert on what was actually logged.
package logging
