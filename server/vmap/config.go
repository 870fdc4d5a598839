package vmap

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/pelletier/go-toml"
)

// Config holds the tunables listed in §6's Configuration capability, loaded
// from a TOML file with LoadConfig.
type Config struct {
	UpdateIntervalMS    int64   `toml:"update_interval_ms"`
	BalanceIntervalTicks int64  `toml:"balance_interval_ticks"`
	NumThreads          int     `toml:"num_threads"`
	DynamicThreads      bool    `toml:"dynamic_threads"`
	MaxThreads          int     `toml:"max_threads"`
	LoadHigh            float64 `toml:"load_high"`
	LoadLow             float64 `toml:"load_low"`
	FreezeDetectMS      int64   `toml:"freeze_detect_ms"`
	MaxStuckMS          int64   `toml:"max_stuck_ms"`
	MaxBreaks           uint32  `toml:"max_breaks"`
	TrySkipFirst        bool    `toml:"try_skip_first"`
	SkipContinents      bool    `toml:"skip_continents"`
	GridCleanIntervalMS int64   `toml:"grid_clean_interval_ms"`
	QueueCapacity       int     `toml:"queue_capacity"`
	TPSWarnBelowHz      float64 `toml:"tps_warn_below_hz"`
}

// DefaultConfig returns the documented defaults for every key in §6.
func DefaultConfig() Config {
	return Config{
		UpdateIntervalMS:     100,
		BalanceIntervalTicks: 100,
		NumThreads:           2,
		DynamicThreads:       true,
		MaxThreads:           8,
		LoadHigh:             0.8,
		LoadLow:              0.2,
		FreezeDetectMS:       2000,
		MaxStuckMS:           10000,
		MaxBreaks:            3,
		TrySkipFirst:         true,
		SkipContinents:       false,
		GridCleanIntervalMS:  5 * 60 * 1000,
		QueueCapacity:        4096,
		TPSWarnBelowHz:       8,
	}
}

// LoadConfig reads a TOML document at path, applying DefaultConfig for any
// key the file omits. If the file does not exist, the defaults are written
// out and returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
			return cfg, writeErr
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("vmap: read config: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("vmap: parse config: %w", err)
	}
	return cfg, nil
}

func writeDefaultConfig(path string, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("vmap: marshal default config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("vmap: write default config: %w", err)
	}
	return nil
}

// BalanceIntervalMS returns the configured balance window expressed in
// milliseconds, derived from BalanceIntervalTicks * UpdateIntervalMS as
// required by §6 ("a multiple of update interval").
func (c Config) BalanceIntervalMS() int64 {
	return c.BalanceIntervalTicks * c.UpdateIntervalMS
}

// AtomicInstanceIDAllocator is a monotonic InstanceIDAllocator starting at 1
// (0 is reserved to mean "no instance"), safe for concurrent use by callers
// constructing instances for distinct map ids at the same time.
type AtomicInstanceIDAllocator struct {
	counter atomic.Uint32
}

// NewAtomicInstanceIDAllocator constructs an allocator starting from 1.
func NewAtomicInstanceIDAllocator() *AtomicInstanceIDAllocator {
	return &AtomicInstanceIDAllocator{}
}

// Next implements InstanceIDAllocator.
func (a *AtomicInstanceIDAllocator) Next() uint32 {
	return a.counter.Add(1)
}
