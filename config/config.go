// Package config holds the fixed, compiled-in tuning constants for the
// storage core: page size, buffer pool size, LRU-K's K, and the
// deadlock-detector interval. There is no external config file to parse —
// every knob here is a literal default, overridable by the embedder at
// process startup.
package config

import "time"

// Config is passed by reference into the buffer pool, replacer, and lock
// manager at construction time. It is not a process-wide singleton.
type Config struct {
	// PageSize is the fixed size, in bytes, of every page the disk manager
	// reads and writes.
	PageSize int

	// BufferPoolSize is the number of frames the buffer pool manages.
	BufferPoolSize int

	// ReplacerK is the K in LRU-K: the number of most-recent accesses
	// tracked per frame before backward k-distance becomes finite.
	ReplacerK int

	// DeadlockDetectionInterval is how often the lock manager's background
	// thread scans the wait-for graph for cycles.
	DeadlockDetectionInterval time.Duration
}

// DefaultConfig returns the constants this engine was tuned against in
// development: 4 KiB pages, a 128-frame pool, LRU-2, and a 50ms detector
// interval.
func DefaultConfig() *Config {
	return &Config{
		PageSize:                  4096,
		BufferPoolSize:            128,
		ReplacerK:                 2,
		DeadlockDetectionInterval: 50 * time.Millisecond,
	}
}
