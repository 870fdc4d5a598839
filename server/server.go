package server

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mangosd-go/vmserver/server/vmap"
)

// Server wires the scheduling core's components together: the map registry,
// the worker pool, the load balancer, the tick driver and the freeze/crash
// watchdogs. It is the single object an embedder (cmd/vmserverd, or an
// external "world thread" driving game logic) needs to hold.
type Server struct {
	conf Config
	log  *slog.Logger

	clock vmap.Clock
	stats *vmap.Statistics

	catalog     *vmap.FileMapCatalog
	grid        *vmap.FileGridCatalog
	ids         *vmap.AtomicInstanceIDAllocator
	saves       *vmap.LevelDBInstanceSaveStore
	registry    *vmap.Registry
	queue       *vmap.ActivationQueue
	pool        *vmap.WorkerPool
	balancer    *vmap.LoadBalancer
	tick        *vmap.TickDriver
	freeze      *vmap.FreezeDetector
	crashes     *vmap.CrashHandler
	worldTicker uint64 // external world-loop progress counter, bumped by BumpWorldLoop

	startTime time.Time

	mu     sync.Mutex
	closed bool
}

// newServer wires and starts a Server from conf. The worker pool, freeze
// detector and crash handler are started immediately; Tick must be called
// periodically (by an external driver, typically a fixed-rate ticker in
// cmd/vmserverd) to actually advance maps.
func newServer(conf Config) (*Server, error) {
	log := conf.Log
	if log == nil {
		log = slog.Default()
	}

	catalog, err := vmap.NewFileMapCatalog(conf.MapCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load map catalogue: %w", err)
	}
	grid := vmap.NewFileGridCatalog()

	var saves *vmap.LevelDBInstanceSaveStore
	if conf.InstanceSaveDir != "" {
		saves, err = vmap.OpenLevelDBInstanceSaveStore(conf.InstanceSaveDir)
		if err != nil {
			return nil, fmt.Errorf("open instance save store: %w", err)
		}
	}

	stats := vmap.NewStatistics()
	clock := vmap.NewSystemClock()
	ids := vmap.NewAtomicInstanceIDAllocator()

	queue := vmap.NewActivationQueue(conf.Scheduling.QueueCapacity, log)
	pool := vmap.NewWorkerPool(queue, stats, log)

	registry := vmap.NewRegistry(vmap.RegistryDeps{
		Catalog:             catalog,
		Difficulties:        catalog,
		Saves:               saveStoreOrNil(saves),
		IDs:                 ids,
		Clock:               clock,
		Stats:               stats,
		Pool:                pool,
		GridCleanIntervalMS: conf.Scheduling.GridCleanIntervalMS,
		Log:                 log,
	})

	balancer := vmap.NewLoadBalancer(vmap.BalancerConfig{
		MaxThreads:        conf.Scheduling.MaxThreads,
		High:              conf.Scheduling.LoadHigh,
		Low:               conf.Scheduling.LoadLow,
		Dynamic:           conf.Scheduling.DynamicThreads,
		ConfiguredThreads: conf.Scheduling.NumThreads,
		BalanceIntervalMS: conf.Scheduling.BalanceIntervalMS(),
	}, log)

	srv := &Server{
		conf:      conf,
		log:       log,
		clock:     clock,
		stats:     stats,
		catalog:   catalog,
		grid:      grid,
		ids:       ids,
		saves:     saves,
		registry:  registry,
		queue:     queue,
		pool:      pool,
		balancer:  balancer,
		startTime: time.Now(),
	}

	srv.tick = vmap.NewTickDriver(registry, pool, balancer, clock, conf.Scheduling.FreezeDetectMS, log)
	srv.tick.SetTPSWarnThreshold(conf.Scheduling.TPSWarnBelowHz)

	srv.freeze = vmap.NewFreezeDetector(
		time.Duration(conf.Scheduling.FreezeDetectMS)*time.Millisecond,
		time.Duration(conf.Scheduling.MaxStuckMS)*time.Millisecond,
		srv.tick.LoopCounter,
		srv.loopCounterWorld,
		log,
	)
	pool.SetFreezeHook(srv.freeze.FreezeHook())
	pool.SetSampleHook(balancer.RecordMapSample)
	pool.SetCrashHandler(srv.onWorkerCrash)

	crashes := vmap.NewCrashHandler(pool, stats, conf.Scheduling.MaxBreaks, conf.Scheduling.TrySkipFirst, conf.Scheduling.SkipContinents, log)
	srv.crashes = crashes

	initial := conf.Scheduling.NumThreads
	if conf.Scheduling.DynamicThreads {
		initial = balancer.PreferredThreads()
	}
	pool.Activate(initial)
	crashes.Start()
	srv.freeze.Start()

	return srv, nil
}

// onWorkerCrash is the in-process half of crash isolation (§4.7): a worker
// goroutine recovered a panic from Map.Update and calls this instead of the
// OS-signal path, since ordinary Go code can run the same steps directly
// without any async-signal-safety constraint. It mirrors
// vmap.CrashHandler.handle's steps 3-6.
func (srv *Server) onWorkerCrash(id vmap.WorkerID, m vmap.Map) {
	mapID := m.ID()
	stat := srv.stats.Get(mapID)
	srv.log.Error("worker pool: map update panicked", "map", mapID.String(), "break_count", stat.BreakCount)

	if m.Kind() == vmap.KindWorld && !srv.conf.Scheduling.SkipContinents {
		panic(fmt.Sprintf("vmserver: world map %s crashed and skip_continents is disabled", mapID.String()))
	}
	if stat.BreakCount > srv.conf.Scheduling.MaxBreaks {
		panic(fmt.Sprintf("vmserver: map %s exceeded max_breaks (%d)", mapID.String(), srv.conf.Scheduling.MaxBreaks))
	}

	if !srv.conf.Scheduling.TrySkipFirst || stat.BreakCount > 0 {
		m.SetBroken()
	}
	srv.stats.IncrementBreak(mapID)
	srv.pool.KillWorker(id, true)
}

func saveStoreOrNil(s *vmap.LevelDBInstanceSaveStore) vmap.InstanceSaveStore {
	if s == nil {
		return nil
	}
	return s
}

func (srv *Server) loopCounterWorld() uint64 {
	return atomic.LoadUint64(&srv.worldTicker)
}

// BumpWorldLoop records one iteration of the external world thread, feeding
// the freeze detector's "either counter advanced" check.
func (srv *Server) BumpWorldLoop() {
	atomic.AddUint64(&srv.worldTicker, 1)
}

// Tick drives one round of the scheduling core: enqueue-update-barrier for
// every live map, then a load balance decision, then the idle sweep.
func (srv *Server) Tick(diffMS int64) {
	srv.tick.Tick(diffMS)
}

// CreateMap resolves or creates the Map an actor should enter for mapID,
// following the world/dungeon/battleground creation rules in full.
func (srv *Server) CreateMap(mapID uint32, actor vmap.Actor) (vmap.Map, error) {
	return srv.registry.CreateMap(mapID, actor)
}

// CanPlayerEnter reports whether player may enter mapID right now.
func (srv *Server) CanPlayerEnter(mapID uint32, player *vmap.Player) (bool, vmap.AbortReason) {
	return srv.registry.CanPlayerEnter(mapID, player)
}

// NumInstances returns the number of live dungeon and raid instances.
func (srv *Server) NumInstances() uint32 { return srv.registry.NumInstances() }

// NumPlayersInInstances returns the total player count across dungeon and
// raid instances.
func (srv *Server) NumPlayersInInstances() uint32 { return srv.registry.NumPlayersInInstances() }

// LoopCount returns the tick driver's completed-round counter.
func (srv *Server) LoopCount() uint64 { return srv.tick.LoopCounter() }

// PreferredThreads returns the load balancer's current target thread count.
func (srv *Server) PreferredThreads() int { return srv.balancer.PreferredThreads() }

// CurrentThreads returns the worker pool's active thread count.
func (srv *Server) CurrentThreads() int { return srv.pool.CurrentThreads() }

// Load returns the load balancer's most recently computed load ratio.
func (srv *Server) Load() float64 { return srv.balancer.Load() }

// Sweep forces an immediate idle-instance sweep, outside of the regular tick
// cadence, for the admin console's "sweep" command.
func (srv *Server) Sweep() []vmap.ID {
	ids := srv.registry.Sweep(srv.clock.NowMS())
	for _, id := range ids {
		srv.balancer.Forget(id)
	}
	return ids
}

// Reactivate tears down and restarts the worker pool with n threads; it does
// nothing if the pool is active and already runs n threads.
func (srv *Server) Reactivate(n int) {
	srv.pool.Reactivate(n)
}

// KillWorker forcibly terminates a single worker goroutine, the same
// operation the crash handler performs after a fatal signal.
func (srv *Server) KillWorker(id vmap.WorkerID) {
	srv.pool.KillWorker(id, true)
}

// ReloadThresholds applies updated load-balancer and tick-rate-warning
// tunables to the running Server, without restarting the worker pool or
// touching any in-flight map. It is the hook cmd/vmserverd's SIGHUP handler
// uses once it detects the on-disk configuration changed.
func (srv *Server) ReloadThresholds(sched vmap.Config) {
	srv.balancer.SetThresholds(sched.LoadHigh, sched.LoadLow, sched.MaxThreads)
	srv.tick.SetTPSWarnThreshold(sched.TPSWarnBelowHz)
}

// StartTime returns when the Server finished initialisation.
func (srv *Server) StartTime() time.Time { return srv.startTime }

// MapCatalog exposes the static map catalogue loaded at startup.
func (srv *Server) MapCatalog() *vmap.FileMapCatalog { return srv.catalog }

// GridCatalog exposes the grid-paging existence catalogue consulted by the
// (out of scope) terrain loader; the Server only owns and wires it.
func (srv *Server) GridCatalog() *vmap.FileGridCatalog { return srv.grid }

// Close tears the Server down in reverse order of initialisation: crash
// handler and freeze detector first, then the worker pool and every live
// map, then the instance save store.
func (srv *Server) Close() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.closed {
		return nil
	}
	srv.closed = true

	srv.crashes.Stop()
	srv.freeze.Stop()
	srv.registry.UnloadAll()
	srv.pool.Deactivate()

	if srv.saves != nil {
		if err := srv.saves.Close(); err != nil {
			return fmt.Errorf("close instance save store: %w", err)
		}
	}
	return nil
}
