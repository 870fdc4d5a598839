package server

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mangosd-go/vmserver/server/vmap"
)

// Config contains options for starting the scheduling core.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set
	// to slog.Default().
	Log *slog.Logger
	// MapCatalogPath is the path to the YAML static map catalogue (names,
	// kinds, minimum levels, difficulty overrides).
	MapCatalogPath string
	// InstanceSaveDir, if non-empty, is the directory backing the LevelDB
	// instance save store used to reuse a player's existing dungeon
	// instance on CreateMap. If empty, no instance reuse is persisted and
	// every CreateMap call for a dungeon allocates a fresh instance.
	InstanceSaveDir string
	// Scheduling holds the worker pool, load balancer and crash/freeze
	// tunables documented in vmap.Config.
	Scheduling vmap.Config
}

// New creates and starts a Server using the fields of conf.
func (conf Config) New() (*Server, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.MapCatalogPath == "" {
		conf.MapCatalogPath = "maps.yaml"
	}
	if conf.Scheduling == (vmap.Config{}) {
		conf.Scheduling = vmap.DefaultConfig()
	}
	return newServer(conf)
}

// UserConfig is the user-facing TOML configuration for a vmserver process.
// It holds settings in the shape an operator edits by hand; call
// UserConfig.Config to obtain a Config suitable for Config.New.
type UserConfig struct {
	Data struct {
		// MapCatalog is the path to the YAML static map catalogue.
		MapCatalog string
		// InstanceSaves controls whether dungeon instance reuse is
		// persisted. If true, InstanceSaveFolder backs a LevelDB store;
		// if false, every dungeon entry allocates a fresh instance.
		InstanceSaves bool
		// InstanceSaveFolder is the folder the instance save LevelDB store
		// resides in, when InstanceSaves is enabled.
		InstanceSaveFolder string
	}
	Scheduling struct {
		// UpdateIntervalMS is the tick period in milliseconds.
		UpdateIntervalMS int64
		// BalanceIntervalTicks is how many ticks make up one load-balance
		// decision window.
		BalanceIntervalTicks int64
		// NumThreads is the static worker thread count used when
		// DynamicThreads is false, and the starting point when it's true.
		NumThreads int
		// DynamicThreads enables the adaptive load balancer.
		DynamicThreads bool
		// MaxThreads bounds the worker pool size the load balancer may grow
		// to.
		MaxThreads int
		// LoadHigh and LoadLow are the load-ratio thresholds that grow and
		// shrink the preferred thread count.
		LoadHigh, LoadLow float64
		// FreezeDetectMS is the watchdog poll interval.
		FreezeDetectMS int64
		// MaxStuckMS is how long the tick/world counters may go without
		// advancing before the watchdog escalates.
		MaxStuckMS int64
		// MaxBreaks is the break count above which a crashing map is no
		// longer quarantined but instead the process re-raises.
		MaxBreaks uint32
		// TrySkipFirst controls whether a map's first crash only
		// quarantines the worker without marking the map broken.
		TrySkipFirst bool
		// SkipContinents controls whether a crashing world map is
		// quarantined like any other map instead of always re-raising.
		SkipContinents bool
		// GridCleanIntervalMS is the idle time after which the sweep
		// unloads an empty dungeon or raid instance. Battleground maps use
		// a fixed 30 s threshold instead.
		GridCleanIntervalMS int64
		// QueueCapacity bounds the activation queue.
		QueueCapacity int
		// TPSWarnBelowHz is the tick-rate threshold below which the tick
		// driver logs a warning.
		TPSWarnBelowHz float64
	}
}

// Config converts a UserConfig to a Config suitable for Config.New.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	sched := vmap.DefaultConfig()
	if uc.Scheduling.UpdateIntervalMS > 0 {
		sched.UpdateIntervalMS = uc.Scheduling.UpdateIntervalMS
	}
	if uc.Scheduling.BalanceIntervalTicks > 0 {
		sched.BalanceIntervalTicks = uc.Scheduling.BalanceIntervalTicks
	}
	if uc.Scheduling.NumThreads > 0 {
		sched.NumThreads = uc.Scheduling.NumThreads
	}
	sched.DynamicThreads = uc.Scheduling.DynamicThreads
	if uc.Scheduling.MaxThreads > 0 {
		sched.MaxThreads = uc.Scheduling.MaxThreads
	}
	if uc.Scheduling.LoadHigh > 0 {
		sched.LoadHigh = uc.Scheduling.LoadHigh
	}
	if uc.Scheduling.LoadLow > 0 {
		sched.LoadLow = uc.Scheduling.LoadLow
	}
	if uc.Scheduling.FreezeDetectMS > 0 {
		sched.FreezeDetectMS = uc.Scheduling.FreezeDetectMS
	}
	if uc.Scheduling.MaxStuckMS > 0 {
		sched.MaxStuckMS = uc.Scheduling.MaxStuckMS
	}
	if uc.Scheduling.MaxBreaks > 0 {
		sched.MaxBreaks = uc.Scheduling.MaxBreaks
	}
	sched.TrySkipFirst = uc.Scheduling.TrySkipFirst
	sched.SkipContinents = uc.Scheduling.SkipContinents
	if uc.Scheduling.GridCleanIntervalMS > 0 {
		sched.GridCleanIntervalMS = uc.Scheduling.GridCleanIntervalMS
	}
	if uc.Scheduling.QueueCapacity > 0 {
		sched.QueueCapacity = uc.Scheduling.QueueCapacity
	}
	if uc.Scheduling.TPSWarnBelowHz > 0 {
		sched.TPSWarnBelowHz = uc.Scheduling.TPSWarnBelowHz
	}

	conf := Config{
		Log:            log,
		MapCatalogPath: uc.Data.MapCatalog,
		Scheduling:     sched,
	}
	if uc.Data.InstanceSaves {
		folder := strings.TrimSpace(uc.Data.InstanceSaveFolder)
		if folder == "" {
			folder = "instances"
		}
		if err := os.MkdirAll(folder, 0o777); err != nil {
			return conf, fmt.Errorf("create instance save folder: %w", err)
		}
		conf.InstanceSaveDir = folder
	}
	return conf, nil
}

// DefaultConfig returns a UserConfig with the default values filled out.
func DefaultConfig() UserConfig {
	var c UserConfig
	c.Data.MapCatalog = "maps.yaml"
	c.Data.InstanceSaves = true
	c.Data.InstanceSaveFolder = "instances"

	def := vmap.DefaultConfig()
	c.Scheduling.UpdateIntervalMS = def.UpdateIntervalMS
	c.Scheduling.BalanceIntervalTicks = def.BalanceIntervalTicks
	c.Scheduling.NumThreads = def.NumThreads
	c.Scheduling.DynamicThreads = def.DynamicThreads
	c.Scheduling.MaxThreads = def.MaxThreads
	c.Scheduling.LoadHigh = def.LoadHigh
	c.Scheduling.LoadLow = def.LoadLow
	c.Scheduling.FreezeDetectMS = def.FreezeDetectMS
	c.Scheduling.MaxStuckMS = def.MaxStuckMS
	c.Scheduling.MaxBreaks = def.MaxBreaks
	c.Scheduling.TrySkipFirst = def.TrySkipFirst
	c.Scheduling.SkipContinents = def.SkipContinents
	c.Scheduling.GridCleanIntervalMS = def.GridCleanIntervalMS
	c.Scheduling.QueueCapacity = def.QueueCapacity
	c.Scheduling.TPSWarnBelowHz = def.TPSWarnBelowHz
	return c
}
