// Package config loads loam's ambient configuration from environment
// variables (LOAM_*) via knadh/koanf. There is deliberately no file-based
// loader here: configuration-file loading is a caller/daemon concern, not
// this storage module's (see spec.md §1 and SPEC_FULL.md §1 EXPANSION).
package config
