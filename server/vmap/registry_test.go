package vmap

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeCatalog struct {
	entries map[uint32]MapEntry
}

func (c *fakeCatalog) Lookup(mapID uint32) (MapEntry, bool) {
	e, ok := c.entries[mapID]
	return e, ok
}

type fakeDifficultyCatalog struct{}

func (fakeDifficultyCatalog) MapDifficulty(uint32, Difficulty) (Difficulty, bool) {
	return DifficultyNormal, true
}
func (fakeDifficultyCatalog) BattlegroundDifficulty(uint32) Difficulty {
	return DifficultyRegular
}

type fakeSaveStore struct {
	mu      sync.Mutex
	records map[string]InstanceSaveRecord
	// gate, when non-nil, holds every Lookup until it is closed.
	gate chan struct{}
}

func newFakeSaveStore() *fakeSaveStore {
	return &fakeSaveStore{records: make(map[string]InstanceSaveRecord)}
}

func (s *fakeSaveStore) Lookup(ownerKey string, mapID uint32) (InstanceSaveRecord, bool) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[ownerKey]
	if !ok || rec.MapID != mapID {
		return InstanceSaveRecord{}, false
	}
	return rec, true
}

func (s *fakeSaveStore) put(rec InstanceSaveRecord) {
	s.mu.Lock()
	s.records[rec.OwnerKey] = rec
	s.mu.Unlock()
}

func newTestRegistry(t *testing.T, entries map[uint32]MapEntry, saves *fakeSaveStore) *Registry {
	t.Helper()
	if saves == nil {
		saves = newFakeSaveStore()
	}
	return NewRegistry(RegistryDeps{
		Catalog:             &fakeCatalog{entries: entries},
		Difficulties:        fakeDifficultyCatalog{},
		Saves:               saves,
		IDs:                 NewAtomicInstanceIDAllocator(),
		Clock:               NewSystemClock(),
		Stats:               newStatistics(),
		GridCleanIntervalMS: 1000,
		Log:                 testLogger(),
	})
}

func TestRegistryCreateMapWorldIsSingleton(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{0: {MapID: 0, Kind: KindWorld}}, nil)

	m1, err := r.CreateMap(0, nil)
	if err != nil || m1 == nil {
		t.Fatalf("create_map world: m=%v err=%v", m1, err)
	}
	m2, err := r.CreateMap(0, nil)
	if err != nil || m2 == nil {
		t.Fatalf("second create_map world: m=%v err=%v", m2, err)
	}
	if m1 != m2 {
		t.Fatalf("expected the same WorldMap instance to be returned both times")
	}
}

func TestRegistryTransportNeverVisible(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{5: {MapID: 5, Kind: KindTransport}}, nil)

	m, err := r.CreateMap(5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatalf("expected transport map creation to be refused, got %v", m)
	}
	if _, ok := r.Find(5, 0); ok {
		t.Fatalf("transport map must never become registry-visible")
	}
}

func TestRegistryCreateInstanceNonPlayerActorRefused(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{533: {MapID: 533, Kind: KindDungeon}}, nil)

	grp := &Group{ID: uuid.New(), Pref: DifficultyHeroic}
	m, err := r.CreateMap(533, grp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatalf("expected instanceable map request by non-player actor to be refused, got %v", m)
	}
}

func TestRegistryCreateInstanceAllocatesFreshInstance(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{533: {MapID: 533, Kind: KindDungeon}}, nil)

	p := &Player{ID: uuid.New(), Pref: DifficultyNormal}
	m, err := r.CreateInstance(533, p)
	if err != nil || m == nil {
		t.Fatalf("create_instance: m=%v err=%v", m, err)
	}
	if m.ID().MapID != 533 || m.ID().InstanceID == 0 {
		t.Fatalf("unexpected instance id: %+v", m.ID())
	}

	found, ok := r.Find(533, m.ID().InstanceID)
	if !ok || found != m {
		t.Fatalf("find did not return the created instance")
	}
}

func TestRegistryCreateInstanceReusesPersistedSave(t *testing.T) {
	saves := newFakeSaveStore()
	owner := uuid.New()
	saves.put(InstanceSaveRecord{OwnerKey: owner.String(), MapID: 533, InstanceID: 77, Difficulty: DifficultyHeroic})

	r := newTestRegistry(t, map[uint32]MapEntry{533: {MapID: 533, Kind: KindDungeon}}, saves)

	p := &Player{ID: owner, Pref: DifficultyNormal}
	m, err := r.CreateInstance(533, p)
	if err != nil || m == nil {
		t.Fatalf("create_instance: m=%v err=%v", m, err)
	}
	if m.ID().InstanceID != 77 {
		t.Fatalf("expected reused instance id 77, got %d", m.ID().InstanceID)
	}
	if m.Difficulty() != DifficultyHeroic {
		t.Fatalf("expected the save's recorded difficulty to be honoured, got %v", m.Difficulty())
	}
}

func TestRegistryCreateInstanceConcurrentRequestsCoalesce(t *testing.T) {
	saves := newFakeSaveStore()
	saves.gate = make(chan struct{})
	r := newTestRegistry(t, map[uint32]MapEntry{533: {MapID: 533, Kind: KindDungeon}}, saves)
	owner := uuid.New()

	const n = 20
	results := make([]Map, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			p := &Player{ID: owner, Pref: DifficultyNormal}
			m, err := r.CreateInstance(533, p)
			if err != nil {
				t.Errorf("create_instance goroutine %d: %v", i, err)
				return
			}
			results[i] = m
		}(i)
	}
	// Hold the first caller inside its save lookup until every goroutine
	// has had time to join the same in-flight creation.
	time.Sleep(50 * time.Millisecond)
	close(saves.gate)
	wg.Wait()

	first := results[0]
	for i, m := range results {
		if m != first {
			t.Fatalf("result %d did not coalesce onto the same instance", i)
		}
	}
	if got := r.NumInstances(); got != 1 {
		t.Fatalf("expected exactly one instance created, registry reports %d", got)
	}
}

func TestRegistryCreateBgMapThenCreateInstanceFindsIt(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{30: {MapID: 30, Kind: KindBattleGround, MinLevel: 60}}, nil)

	bg := &BattleGround{ID: 1001}
	created, err := r.CreateBgMap(30, bg)
	if err != nil || created == nil {
		t.Fatalf("create_bg_map: m=%v err=%v", created, err)
	}

	p := &Player{ID: uuid.New(), InBattleGround: 1001}
	found, err := r.CreateInstance(30, p)
	if err != nil || found != created {
		t.Fatalf("create_instance for battleground: found=%v err=%v, want %v", found, err, created)
	}
}

func TestRegistryCreateInstanceBattlegroundWithoutMapFails(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{30: {MapID: 30, Kind: KindBattleGround}}, nil)

	p := &Player{ID: uuid.New(), InBattleGround: 9999}
	_, err := r.CreateInstance(30, p)
	if err == nil {
		t.Fatalf("expected an error when no battleground map exists for the player's bg id")
	}
}

func TestRegistryDeleteInstanceRefusesNonInstanceable(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{0: {MapID: 0, Kind: KindWorld}}, nil)
	if _, err := r.CreateMap(0, nil); err != nil {
		t.Fatalf("create_map: %v", err)
	}
	if r.DeleteInstance(0, 0) {
		t.Fatalf("expected delete_instance to refuse a non-instanceable map")
	}
	if _, ok := r.Find(0, 0); !ok {
		t.Fatalf("world map should still be present after refused delete")
	}
}

func TestRegistryDeleteInstanceRemovesMap(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{533: {MapID: 533, Kind: KindDungeon}}, nil)
	p := &Player{ID: uuid.New()}
	m, err := r.CreateInstance(533, p)
	if err != nil || m == nil {
		t.Fatalf("create_instance: m=%v err=%v", m, err)
	}

	if !r.DeleteInstance(533, m.ID().InstanceID) {
		t.Fatalf("expected delete_instance to succeed")
	}
	if _, ok := r.Find(533, m.ID().InstanceID); ok {
		t.Fatalf("expected instance to be gone after delete_instance")
	}
}

func TestRegistryUnloadAllClearsEverything(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{
		0:   {MapID: 0, Kind: KindWorld},
		533: {MapID: 533, Kind: KindDungeon},
	}, nil)

	if _, err := r.CreateMap(0, nil); err != nil {
		t.Fatalf("create_map world: %v", err)
	}
	if _, err := r.CreateInstance(533, &Player{ID: uuid.New()}); err != nil {
		t.Fatalf("create_instance: %v", err)
	}

	r.UnloadAll()

	if _, ok := r.Find(0, 0); ok {
		t.Fatalf("expected world map gone after unload_all")
	}
	if got := r.NumInstances(); got != 0 {
		t.Fatalf("expected 0 instances after unload_all, got %d", got)
	}
}
