package vmap

import (
	"sync"

	"github.com/brentp/intintmap"
)

// Statistic holds the running counters tracked for a single map. It is
// updated by the worker around each Update call and read by the freeze
// detector and the admin console's status command.
type Statistic struct {
	BreakCount    uint32
	LastUpdateMS  int64
	AvgDurationMS int64
}

// statisticBox packs a Statistic into two int64 words (break+avg in one,
// last update in the other). One box is allocated per map.
type statisticBox struct {
	breakAndAvg int64 // high 32 bits: break count, low 32 bits: avg duration ms
	lastUpdate  int64
}

// Statistics is a registry of per-map Statistic values keyed by a hash of
// ID. A brentp/intintmap records which hashes have an entry; the boxes
// themselves live in a Go map keyed by the same hash. It is guarded by
// its own mutex, deliberately separate from the registry lock (5 "Statistic
// lock"): the freeze detector and admin console must never contend with map
// creation/destruction.
type Statistics struct {
	mu    sync.Mutex
	keys  *intintmap.Map
	boxes map[int64]*statisticBox
}

func newStatistics() *Statistics {
	return &Statistics{
		keys:  intintmap.New(256, 0.65),
		boxes: make(map[int64]*statisticBox),
	}
}

// NewStatistics constructs an empty per-map statistic registry, threaded
// through NewRegistry, NewWorkerPool and NewCrashHandler so they all share
// one table.
func NewStatistics() *Statistics { return newStatistics() }

// Get returns a snapshot of the Statistic recorded for id.
func (s *Statistics) Get(id ID) Statistic { return s.get(id) }

// IncrementBreak increments the break counter for id and returns the new
// value, mirroring the signal pathway's own CrashHandler.handle step 6 for
// the in-process panic-recovery path.
func (s *Statistics) IncrementBreak(id ID) uint32 { return s.incrementBreak(id) }

func (s *Statistics) box(id ID) *statisticBox {
	h := id.hash()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys.Get(h); !ok {
		s.keys.Put(h, 1)
		s.boxes[h] = &statisticBox{}
	}
	return s.boxes[h]
}

// begin records that an update for id has started.
func (s *Statistics) begin(id ID) {
	_ = s.box(id)
}

// end records that an update for id completed after durationMS, finishing
// at nowMS.
func (s *Statistics) end(id ID, nowMS, durationMS int64) {
	b := s.box(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	b.lastUpdate = nowMS
	avg := int32(b.breakAndAvg & 0xffffffff)
	if avg == 0 {
		avg = int32(durationMS)
	} else {
		avg = avg - avg/4 + int32(durationMS)/4
	}
	breakCount := int32(b.breakAndAvg >> 32)
	b.breakAndAvg = int64(breakCount)<<32 | int64(uint32(avg))
}

// incrementBreak increments the break counter for id and returns the new
// value.
func (s *Statistics) incrementBreak(id ID) uint32 {
	b := s.box(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	breakCount := uint32(b.breakAndAvg>>32) + 1
	avg := uint32(b.breakAndAvg & 0xffffffff)
	b.breakAndAvg = int64(breakCount)<<32 | int64(avg)
	return breakCount
}

// get returns a snapshot of the Statistic for id, or the zero value if no
// update has ever been recorded for it.
func (s *Statistics) get(id ID) Statistic {
	h := id.hash()
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boxes[h]
	if !ok {
		return Statistic{}
	}
	return Statistic{
		BreakCount:    uint32(b.breakAndAvg >> 32),
		AvgDurationMS: int64(uint32(b.breakAndAvg & 0xffffffff)),
		LastUpdateMS:  b.lastUpdate,
	}
}

// forget removes the statistic entry for id, called during sweep when a map
// is unloaded.
func (s *Statistics) forget(id ID) {
	h := id.hash()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boxes, h)
	// intintmap exposes no delete; a stale key with a forgotten box is
	// harmless since box() will recreate an entry if the ID is reused.
}
