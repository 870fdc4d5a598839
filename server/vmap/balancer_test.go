package vmap

import "testing"

func TestLoadBalancerRaisesPreferredOnHighLoad(t *testing.T) {
	b := NewLoadBalancer(BalancerConfig{
		MaxThreads:        8,
		High:              0.8,
		Low:               0.2,
		Dynamic:           true,
		ConfiguredThreads: 2,
		BalanceIntervalMS: 1000,
	}, testLogger())

	// Simulate a fully work-bound window: sample_begin/sample_end pairs
	// with no sleep time in between.
	now := int64(0)
	for i := 0; i < 10; i++ {
		b.SampleBegin(now)
		now += 100
		b.SampleEnd(now)
	}
	b.Tick(1000, 2)

	if got := b.PreferredThreads(); got != 3 {
		t.Fatalf("preferred threads = %d, want 3 (raised by one)", got)
	}
	if load := b.Load(); load < 0.99 {
		t.Fatalf("load = %v, want ~1.0 for fully work-bound window", load)
	}
}

func TestLoadBalancerLowersPreferredOnLowLoad(t *testing.T) {
	b := NewLoadBalancer(BalancerConfig{
		MaxThreads:        8,
		High:              0.8,
		Low:               0.2,
		Dynamic:           true,
		ConfiguredThreads: 3,
		BalanceIntervalMS: 1000,
	}, testLogger())

	now := int64(0)
	for i := 0; i < 10; i++ {
		b.SampleBegin(now)
		now += 5
		b.SampleEnd(now)
		now += 95
	}
	b.Tick(1000, 3)

	if got := b.PreferredThreads(); got != 2 {
		t.Fatalf("preferred threads = %d, want 2 (lowered by one)", got)
	}
}

func TestLoadBalancerNeverExceedsMaxThreads(t *testing.T) {
	b := NewLoadBalancer(BalancerConfig{
		MaxThreads:        2,
		High:              0.5,
		Low:               0.1,
		Dynamic:           true,
		ConfiguredThreads: 2,
		BalanceIntervalMS: 1000,
	}, testLogger())

	now := int64(0)
	for round := 0; round < 5; round++ {
		for i := 0; i < 10; i++ {
			b.SampleBegin(now)
			now += 100
			b.SampleEnd(now)
		}
		b.Tick(1000, b.PreferredThreads())
	}

	if got := b.PreferredThreads(); got > 2 {
		t.Fatalf("preferred threads = %d, exceeds MaxThreads=2", got)
	}
}

func TestLoadBalancerStaticModeIgnoresSamples(t *testing.T) {
	b := NewLoadBalancer(BalancerConfig{
		MaxThreads:        8,
		Dynamic:           false,
		ConfiguredThreads: 4,
		BalanceIntervalMS: 1000,
	}, testLogger())

	now := int64(0)
	for i := 0; i < 10; i++ {
		b.SampleBegin(now)
		now += 100
		b.SampleEnd(now)
	}
	b.Tick(1000, 4)

	if got := b.PreferredThreads(); got != 4 {
		t.Fatalf("static mode preferred threads = %d, want configured 4", got)
	}
}

func TestLoadBalancerHotMapFlaggedAfterThreeSamples(t *testing.T) {
	b := NewLoadBalancer(BalancerConfig{MaxThreads: 1, ConfiguredThreads: 1, BalanceIntervalMS: 1000}, testLogger())
	id := ID{MapID: 1}

	if b.Hot(id) {
		t.Fatalf("map should not start hot")
	}
	for i := 0; i < 3; i++ {
		b.RecordMapSample(id, true)
	}
	if !b.Hot(id) {
		t.Fatalf("map should be hot after 3 consecutive over-budget samples")
	}
	for i := 0; i < 3; i++ {
		b.RecordMapSample(id, false)
	}
	if b.Hot(id) {
		t.Fatalf("map should clear hot flag after 3 consecutive under-budget samples")
	}
}
