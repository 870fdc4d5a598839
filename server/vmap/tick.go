package vmap

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"
)

// TickDriver runs the per-tick cycle described in §4.4: sample the load
// balancer, reactivate an activated pool if its preferred thread count
// changed, schedule one update per live map (or run them inline when the
// pool is in fallback mode), wait on the barrier, feed the load balance
// decision, then sweep idle maps. The tick interval itself is kept by the
// caller. It exposes a monotonically increasing loop counter for the freeze
// detector (§4.6).
type TickDriver struct {
	log      *slog.Logger
	registry *Registry
	pool     *WorkerPool
	balancer *LoadBalancer
	clock    Clock

	freezeDetectMS int64

	loopCounter uint64

	avgTickMS      int64
	tpsWarnBelowHz float64
}

// NewTickDriver constructs a driver bound to the given collaborators.
// freezeDetectMS is the max_delay_ms passed to the pool's barrier each tick.
func NewTickDriver(registry *Registry, pool *WorkerPool, balancer *LoadBalancer, clock Clock, freezeDetectMS int64, log *slog.Logger) *TickDriver {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TickDriver{
		log:            log,
		registry:       registry,
		pool:           pool,
		balancer:       balancer,
		clock:          clock,
		freezeDetectMS: freezeDetectMS,
	}
}

// LoopCounter returns the monotonically increasing per-tick counter read by
// the freeze detector to notice whether the tick driver is still making
// progress.
func (d *TickDriver) LoopCounter() uint64 {
	return atomic.LoadUint64(&d.loopCounter)
}

// SetTPSWarnThreshold configures the effective-ticks-per-second floor below
// which Tick logs a WARN, mirroring the world loop's own TPS tracking.
func (d *TickDriver) SetTPSWarnThreshold(hz float64) {
	d.tpsWarnBelowHz = hz
}

// Tick runs exactly one cycle of §4.4 for a tick of diffMS milliseconds.
func (d *TickDriver) Tick(diffMS int64) {
	start := time.Now()
	now := d.clock.NowMS()

	d.balancer.SampleBegin(now)

	preferred := d.balancer.PreferredThreads()
	if d.pool.Activated() && preferred != d.pool.CurrentThreads() {
		d.pool.Reactivate(preferred)
	}

	maps := d.registry.Snapshot()
	d.orderByHeat(maps)

	if d.pool.Activated() {
		for _, m := range maps {
			if err := d.pool.ScheduleUpdate(m, diffMS, now); err != nil {
				d.log.Warn("tick: failed to schedule map update", "map", m.ID().String(), "err", err)
			}
		}
	} else {
		for _, m := range maps {
			d.runInline(m, diffMS)
		}
	}

	if d.pool.Activated() {
		remaining := d.pool.QueueWait(d.freezeDetectMS)
		if remaining > 0 {
			d.log.Warn("tick: stragglers remained after barrier", "pending", remaining)
		}
	}

	d.balancer.SampleEnd(d.clock.NowMS())
	d.balancer.Tick(diffMS, d.pool.CurrentThreads())

	for _, id := range d.registry.Sweep(d.clock.NowMS()) {
		d.balancer.Forget(id)
	}

	atomic.AddUint64(&d.loopCounter, 1)
	d.recordTickDuration(time.Since(start))
}

// runInline calls map.Update directly, the fallback path used when the pool
// is not activated (§4.2 "Fallback mode"). A panic is still recovered so a
// misbehaving map cannot take down the tick driver's own goroutine. The
// balancer's per-map saturation counter is still fed in this mode, same as
// the pooled path's sample hook.
func (d *TickDriver) runInline(m Map, diffMS int64) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("inline map update panicked", "map", m.ID().String(), "panic", r)
			m.SetBroken()
			return
		}
		elapsed := time.Since(start).Milliseconds()
		d.balancer.RecordMapSample(m.ID(), elapsed >= diffMS)
	}()
	m.Update(diffMS)
}

// orderByHeat moves maps flagged hot by the load balancer to the front of
// the slice, so they are the first requests enqueued this tick and thus the
// least likely to become the barrier's straggler (§4.5).
func (d *TickDriver) orderByHeat(maps []Map) {
	sort.SliceStable(maps, func(i, j int) bool {
		hi := d.balancer.Hot(maps[i].ID())
		hj := d.balancer.Hot(maps[j].ID())
		return hi && !hj
	})
}

// recordTickDuration updates a rolling average tick duration and logs a
// WARN when it implies an effective tick rate under tpsWarnBelowHz,
// mirroring the world loop's own TPS tracking and threshold warning.
func (d *TickDriver) recordTickDuration(elapsed time.Duration) {
	ms := elapsed.Milliseconds()
	if d.avgTickMS == 0 {
		d.avgTickMS = ms
	} else {
		d.avgTickMS = d.avgTickMS - d.avgTickMS/8 + ms/8
	}
	if d.tpsWarnBelowHz <= 0 || d.avgTickMS <= 0 {
		return
	}
	effectiveHz := 1000.0 / float64(d.avgTickMS)
	if effectiveHz < d.tpsWarnBelowHz {
		d.log.Warn("tick driver running below configured rate", "effective_hz", effectiveHz, "avg_tick_ms", d.avgTickMS)
	}
}
