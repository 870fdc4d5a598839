package vmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vmap.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults when no file exists, got %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults to be written to disk: %v", err)
	}
}

func TestLoadConfigHonoursOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vmap.toml")
	doc := "num_threads = 6\ndynamic_threads = false\nmax_threads = 10\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NumThreads != 6 || cfg.DynamicThreads || cfg.MaxThreads != 10 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	// Keys absent from the file keep the documented default.
	if cfg.FreezeDetectMS != DefaultConfig().FreezeDetectMS {
		t.Fatalf("expected unset key to retain default, got %d", cfg.FreezeDetectMS)
	}
}

func TestBalanceIntervalMSMultipliesTicksByUpdateInterval(t *testing.T) {
	cfg := Config{UpdateIntervalMS: 100, BalanceIntervalTicks: 100}
	if got := cfg.BalanceIntervalMS(); got != 10000 {
		t.Fatalf("BalanceIntervalMS = %d, want 10000", got)
	}
}
