// Package metrics defines the prometheus instruments loam's Store records
// against a caller-supplied registry (never the global default registry,
// so multiple Stores in one process don't collide on metric names).
package metrics
