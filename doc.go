// Package loam implements the per-workspace document store at the heart
// of a peer-to-peer, eventually-consistent content-addressed sync system.
// Workspaces hold signed documents authored by keypair-identified actors;
// the store accepts locally authored or remotely ingested documents,
// enforces a last-write-wins merge discipline per (path, author) slot,
// and exposes a filter/sort/limit query engine over the result.
//
// The store never performs cryptographic validation itself — that is the
// job of a Validator, a capability callers supply at construction time.
// Persistence is likewise pluggable: a Store holds a Driver, and this
// package ships two (memdriver.Driver and sqlitedriver.Driver), both
// satisfying the same contract so tests and production code share one
// merge/query engine.
package loam
