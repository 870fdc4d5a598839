package vmap

import (
	"log/slog"
	"sync"
)

// mapLoadState tracks the per-map saturation/penalty counter described in
// §4.5: a map flagged "hot" after three consecutive over-budget samples is
// prioritised for early enqueue on the next tick.
type mapLoadState struct {
	overBudget  int
	underBudget int
	hot         bool
}

// LoadBalancer implements §4.5: a coarse pool-wide thread-count decision
// taken every balanceTimer interval, plus a finer per-map hot/penalty
// tracker consulted by the tick driver when ordering a tick's enqueues.
type LoadBalancer struct {
	log *slog.Logger

	maxThreads int
	high       float64
	low        float64
	dynamic    bool
	configured int

	balanceTimer *IntervalTimer

	mu            sync.Mutex
	workAcc       int64
	sleepAcc      int64
	sampleCount   int64
	lastStamp     int64
	haveStamp     bool
	preferred     int
	lastLoad      float64

	loadMu sync.Mutex
	loads  map[ID]*mapLoadState
}

// BalancerConfig bundles the tunables consumed by LoadBalancer.
type BalancerConfig struct {
	MaxThreads        int
	High              float64
	Low               float64
	Dynamic           bool
	ConfiguredThreads int
	BalanceIntervalMS int64
}

// NewLoadBalancer constructs a balancer with preferred_threads seeded from
// cfg.ConfiguredThreads.
func NewLoadBalancer(cfg BalancerConfig, log *slog.Logger) *LoadBalancer {
	if log == nil {
		log = slog.Default()
	}
	preferred := cfg.ConfiguredThreads
	if preferred < 1 {
		preferred = 1
	}
	if cfg.MaxThreads < 1 {
		cfg.MaxThreads = preferred
	}
	return &LoadBalancer{
		log:          log,
		maxThreads:   cfg.MaxThreads,
		high:         cfg.High,
		low:          cfg.Low,
		dynamic:      cfg.Dynamic,
		configured:   cfg.ConfiguredThreads,
		balanceTimer: NewIntervalTimer(cfg.BalanceIntervalMS),
		preferred:    preferred,
		loads:        make(map[ID]*mapLoadState),
	}
}

// SampleBegin implements §4.5 sample_begin: accrues sleep time elapsed
// since the previous SampleEnd and starts the work-time stamp.
func (b *LoadBalancer) SampleBegin(nowMS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.haveStamp {
		b.sleepAcc += nowMS - b.lastStamp
	}
	b.sampleCount++
	b.lastStamp = nowMS
	b.haveStamp = true
}

// SampleEnd implements §4.5 sample_end: accrues work time elapsed since the
// matching SampleBegin.
func (b *LoadBalancer) SampleEnd(nowMS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.haveStamp {
		b.workAcc += nowMS - b.lastStamp
	}
	b.lastStamp = nowMS
}

// Tick advances the balance timer by diffMS and, once it has passed,
// recomputes the load ratio and the preferred thread count. currentThreads
// is the pool's present thread count, used both as the "otherwise" target
// and to report the decision.
func (b *LoadBalancer) Tick(diffMS int64, currentThreads int) {
	b.balanceTimer.Update(diffMS)
	if !b.balanceTimer.Passed() {
		return
	}
	b.balanceTimer.SetCurrent(0)
	b.decide(currentThreads)
}

func (b *LoadBalancer) decide(currentThreads int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dynamic {
		b.preferred = b.configured
		if b.preferred < 1 {
			b.preferred = 1
		}
		b.workAcc, b.sleepAcc, b.sampleCount = 0, 0, 0
		return
	}

	if b.sampleCount == 0 {
		return
	}
	meanWork := float64(b.workAcc) / float64(b.sampleCount)
	meanTotal := float64(b.workAcc+b.sleepAcc) / float64(b.sampleCount)
	load := 0.0
	if meanTotal > 0 {
		load = meanWork / meanTotal
	}
	b.lastLoad = load

	switch {
	case load >= b.high && b.preferred < b.maxThreads:
		b.preferred++
		b.log.Info("load balancer raising preferred threads", "load", load, "preferred", b.preferred)
	case load <= b.low && b.preferred > 1:
		b.preferred--
		b.log.Info("load balancer lowering preferred threads", "load", load, "preferred", b.preferred)
	default:
		b.preferred = currentThreads
	}
	if b.preferred > b.maxThreads {
		b.preferred = b.maxThreads
	}
	if b.preferred < 1 {
		b.preferred = 1
	}

	b.workAcc, b.sleepAcc, b.sampleCount = 0, 0, 0
}

// PreferredThreads returns the most recently decided thread count. In
// dynamic mode a decision keeps it within [1, MaxThreads]; in static mode it
// is the configured count, at least 1.
func (b *LoadBalancer) PreferredThreads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.preferred
}

// Load returns the most recently computed load ratio in [0, 1].
func (b *LoadBalancer) Load() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastLoad
}

// SetThresholds updates the load-ratio thresholds and the worker pool cap
// used by future decide calls, without touching the accumulated sample
// window. It is the hook a SIGHUP config reload uses to adjust balancing
// tunables on a running process.
func (b *LoadBalancer) SetThresholds(high, low float64, maxThreads int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if high > 0 {
		b.high = high
	}
	if low > 0 {
		b.low = low
	}
	if maxThreads > 0 {
		b.maxThreads = maxThreads
	}
}

// RecordMapSample updates the per-map saturation counter described in §4.5:
// overBudget is true when the map's update consumed its entire allotted
// share of the tick.
func (b *LoadBalancer) RecordMapSample(id ID, overBudget bool) {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()
	s, ok := b.loads[id]
	if !ok {
		s = &mapLoadState{}
		b.loads[id] = s
	}
	if overBudget {
		s.overBudget++
		s.underBudget = 0
		if s.overBudget >= 3 {
			s.hot = true
		}
	} else {
		s.underBudget++
		s.overBudget = 0
		if s.underBudget >= 3 {
			s.hot = false
		}
	}
}

// Hot reports whether id is currently flagged hot, prioritising it for
// early enqueue on the next tick.
func (b *LoadBalancer) Hot(id ID) bool {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()
	s, ok := b.loads[id]
	return ok && s.hot
}

// Forget removes a map's saturation state, called by the tick driver when
// the registry's sweep destroys the map.
func (b *LoadBalancer) Forget(id ID) {
	b.loadMu.Lock()
	delete(b.loads, id)
	b.loadMu.Unlock()
}
