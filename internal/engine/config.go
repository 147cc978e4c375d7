package engine

import (
	"github.com/roach88/warden/internal/canon"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxEventDepth  = 32
	DefaultTickIntervalMs = 100
)

// Config is set once at construction and effectively immutable for the
// engine's lifetime; accessors hand out copies.
//
// TickIntervalMs = 0 disables the automatic tick timer: the caller
// drives ticks explicitly, which is the deterministic-simulation
// testing mode. Such engines are exempt from the single-production-
// engine guard.
type Config struct {
	ID                string `yaml:"id" env:"WARDEN_ENGINE_ID"`
	MaxEventDepth     int    `yaml:"maxEventDepth" env:"WARDEN_MAX_EVENT_DEPTH"`
	LogLevel          string `yaml:"logLevel" env:"WARDEN_LOG_LEVEL"`
	DeterministicSeed int64  `yaml:"deterministicSeed" env:"WARDEN_DETERMINISTIC_SEED"`
	TickIntervalMs    int64  `yaml:"tickIntervalMs" env:"WARDEN_TICK_INTERVAL_MS"`
	AuditCapacity     int    `yaml:"auditCapacity" env:"WARDEN_AUDIT_CAPACITY"`
	HistoryCapacity   int    `yaml:"historyCapacity" env:"WARDEN_HISTORY_CAPACITY"`
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = "warden"
	}
	if c.MaxEventDepth <= 0 {
		c.MaxEventDepth = DefaultMaxEventDepth
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	// TickIntervalMs keeps an explicit zero: it selects manual ticking.
	return c
}

// Production reports whether the engine runs an automatic tick timer.
func (c Config) Production() bool {
	return c.TickIntervalMs > 0
}

// Digest returns the config's canonical digest, used for equality and
// change detection in snapshots. Not a security mechanism.
func (c Config) Digest() string {
	return canon.MustDigest(canon.DomainConfig, map[string]any{
		"id":                 c.ID,
		"max_event_depth":    c.MaxEventDepth,
		"log_level":          c.LogLevel,
		"deterministic_seed": c.DeterministicSeed,
		"tick_interval_ms":   c.TickIntervalMs,
		"audit_capacity":     c.AuditCapacity,
		"history_capacity":   c.HistoryCapacity,
	})
}
