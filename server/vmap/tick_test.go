package vmap

import (
	"testing"
)

func newTestTickDriver(t *testing.T, threads int) (*TickDriver, *Registry, *WorkerPool) {
	t.Helper()
	r := newTestRegistry(t, map[uint32]MapEntry{0: {MapID: 0, Kind: KindWorld}}, nil)
	q := NewActivationQueue(64, testLogger())
	pool := NewWorkerPool(q, newStatistics(), testLogger())
	pool.Activate(threads)
	t.Cleanup(pool.Deactivate)

	balancer := NewLoadBalancer(BalancerConfig{
		MaxThreads:        8,
		Dynamic:           false,
		ConfiguredThreads: threads,
		BalanceIntervalMS: 100000,
	}, testLogger())

	d := NewTickDriver(r, pool, balancer, NewSystemClock(), 2000, testLogger())
	return d, r, pool
}

func TestTickDriverUpdatesEveryLiveMapExactlyOnce(t *testing.T) {
	d, r, _ := newTestTickDriver(t, 2)

	created, err := r.CreateMap(0, nil)
	if err != nil {
		t.Fatalf("create_map: %v", err)
	}
	start := created.(*WorldMap).lastActivityMS

	for tick := 1; tick <= 3; tick++ {
		d.Tick(100)
	}

	m, ok := r.Find(0, 0)
	if !ok {
		t.Fatalf("world map missing after ticks")
	}
	wm, ok := m.(*WorldMap)
	if !ok {
		t.Fatalf("expected *WorldMap, got %T", m)
	}
	// Each Update advances the map's activity clock by its diff, so three
	// ticks of 100ms with one Update each add exactly 300ms.
	if got := wm.lastActivityMS - start; got != 300 {
		t.Fatalf("world map advanced %dms over 3 ticks of 100ms, want 300 (one Update per tick)", got)
	}
	if m.Broken() {
		t.Fatalf("world map should not be broken after ordinary ticks")
	}
}

func TestTickDriverFallbackModeRunsInline(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{533: {MapID: 533, Kind: KindDungeon}}, nil)
	q := NewActivationQueue(64, testLogger())
	pool := NewWorkerPool(q, newStatistics(), testLogger())
	pool.Activate(0) // fallback mode: no workers
	t.Cleanup(pool.Deactivate)

	balancer := NewLoadBalancer(BalancerConfig{MaxThreads: 1, Dynamic: false, ConfiguredThreads: 0, BalanceIntervalMS: 100000}, testLogger())
	d := NewTickDriver(r, pool, balancer, NewSystemClock(), 2000, testLogger())

	m, err := r.CreateInstance(533, &Player{})
	if err != nil || m == nil {
		t.Fatalf("create_instance: m=%v err=%v", m, err)
	}

	d.Tick(100)

	if pool.Activated() {
		t.Fatalf("pool should remain inactive in fallback mode")
	}
	if got := d.LoopCounter(); got != 1 {
		t.Fatalf("loop counter = %d, want 1", got)
	}
}

func TestTickDriverOrdersHotMapsFirst(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{
		1: {MapID: 1, Kind: KindWorld},
		2: {MapID: 2, Kind: KindWorld},
	}, nil)
	q := NewActivationQueue(64, testLogger())
	pool := NewWorkerPool(q, newStatistics(), testLogger())
	pool.Activate(0) // fallback mode keeps ordering observable without worker scheduling jitter
	t.Cleanup(pool.Deactivate)

	balancer := NewLoadBalancer(BalancerConfig{MaxThreads: 1, Dynamic: false, ConfiguredThreads: 0, BalanceIntervalMS: 100000}, testLogger())
	d := NewTickDriver(r, pool, balancer, NewSystemClock(), 2000, testLogger())

	if _, err := r.CreateMap(1, nil); err != nil {
		t.Fatalf("create_map(1): %v", err)
	}
	if _, err := r.CreateMap(2, nil); err != nil {
		t.Fatalf("create_map(2): %v", err)
	}

	hot := ID{MapID: 2}
	for i := 0; i < 3; i++ {
		balancer.RecordMapSample(hot, true)
	}
	if !balancer.Hot(hot) {
		t.Fatalf("map 2 should be flagged hot")
	}

	maps := r.Snapshot()
	d.orderByHeat(maps)
	if maps[0].ID() != hot {
		t.Fatalf("orderByHeat did not move the hot map to the front: got %v first", maps[0].ID())
	}
}

func TestTickDriverLoopCounterAdvances(t *testing.T) {
	d, _, _ := newTestTickDriver(t, 1)
	for i := 0; i < 5; i++ {
		d.Tick(100)
	}
	if got := d.LoopCounter(); got != 5 {
		t.Fatalf("loop counter = %d, want 5", got)
	}
}
