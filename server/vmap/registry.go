package vmap

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry is the single source of truth for live Maps, described in §4.3.
// All public operations serialise through a plain (non-recursive) mutex;
// the slow path of CreateInstance avoids holding that mutex across map
// construction by using the explicit lookupOrReserve/insert pair plus a
// singleflight group, per Design Note 9(a).
type Registry struct {
	log *slog.Logger

	catalog      MapCatalog
	difficulties DifficultyCatalog
	saves        InstanceSaveStore
	ids          InstanceIDAllocator
	clock        Clock
	stats        *Statistics
	pool         *WorkerPool

	gridCleanIntervalMS int64

	mu      sync.Mutex
	maps    map[ID]Map
	bgIndex map[uint64]ID

	reservations singleflight.Group
}

// RegistryDeps bundles the collaborator capabilities a Registry needs,
// matching the "External Interfaces" consumed by the core (§6).
type RegistryDeps struct {
	Catalog             MapCatalog
	Difficulties        DifficultyCatalog
	Saves               InstanceSaveStore
	IDs                 InstanceIDAllocator
	Clock               Clock
	Stats               *Statistics
	Pool                *WorkerPool
	GridCleanIntervalMS int64
	Log                 *slog.Logger
}

// NewRegistry constructs an empty registry bound to deps.
func NewRegistry(deps RegistryDeps) *Registry {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Registry{
		log:                 log,
		catalog:             deps.Catalog,
		difficulties:        deps.Difficulties,
		saves:               deps.Saves,
		ids:                 deps.IDs,
		clock:               clock,
		stats:               deps.Stats,
		pool:                deps.Pool,
		gridCleanIntervalMS: deps.GridCleanIntervalMS,
		maps:                make(map[ID]Map),
		bgIndex:             make(map[uint64]ID),
	}
}

// instanceReservation is the outcome of lookupOrReserve: either an existing
// map (Existing != nil) or an id the caller has exclusive licence to
// construct and insert.
type instanceReservation struct {
	Existing Map
	ID       ID
}

// lookupOrReserve is the first half of the two-phase creation pattern
// described in §4.3/§9(a): it takes the registry lock only long enough to
// check for an existing map, never across construction.
func (r *Registry) lookupOrReserve(id ID) instanceReservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.maps[id]; ok {
		return instanceReservation{Existing: m}
	}
	return instanceReservation{ID: id}
}

// insert is the second half: commit a freshly constructed map, unless
// another caller raced ahead and inserted first (in which case their map
// wins and the caller's is discarded).
func (r *Registry) insert(id ID, m Map) Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.maps[id]; ok {
		return existing
	}
	r.maps[id] = m
	return m
}

// CreateMap implements §4.3 create_map. It returns (nil, nil) for NotFound
// and InvalidUsage conditions, per §7's "surface as None, not an error"
// policy; err is reserved for conditions the caller must react to
// differently than a plain miss.
func (r *Registry) CreateMap(mapID uint32, actor Actor) (Map, error) {
	entry, ok := r.catalog.Lookup(mapID)
	if !ok {
		r.log.Debug("create_map: unknown map id", "map_id", mapID)
		return nil, nil
	}
	if entry.Kind == KindTransport {
		// Open Question (a): transports are never registry-visible and
		// never created through the public factory.
		r.log.Debug("create_map: refused transport map", "map_id", mapID)
		return nil, nil
	}

	if !entry.Kind.Instanceable() {
		id := ID{MapID: mapID}
		res := r.lookupOrReserve(id)
		if res.Existing != nil {
			return res.Existing, nil
		}
		m := NewWorldMap(id, r.clock.NowMS())
		return r.insert(id, m), nil
	}

	player, ok := actor.(*Player)
	if !ok {
		r.log.Debug("create_map: instanceable map requested by non-player actor", "map_id", mapID)
		return nil, nil
	}
	return r.CreateInstance(mapID, player)
}

// CreateBgMap implements §4.3 create_bg_map: the battleground factory's
// exclusive path for creating BattleGroundMap/arena instances. Any map
// entry that is not battleground/arena kind, or is a transport, is refused.
func (r *Registry) CreateBgMap(mapID uint32, bg *BattleGround) (Map, error) {
	entry, ok := r.catalog.Lookup(mapID)
	if !ok || entry.Kind == KindTransport || !entry.Kind.IsBattleGroundOrArena() {
		r.log.Debug("create_bg_map: refused", "map_id", mapID)
		return nil, nil
	}

	instanceID := r.ids.Next()
	id := ID{MapID: mapID, InstanceID: instanceID}
	difficulty := r.difficulties.BattlegroundDifficulty(entry.MinLevel)
	m := NewBattleGroundMap(id, difficulty, bg.ID, r.clock.NowMS())

	r.mu.Lock()
	r.maps[id] = m
	r.bgIndex[bg.ID] = id
	r.mu.Unlock()

	r.log.Info("battleground map created", "map_id", mapID, "instance_id", instanceID, "bg_id", bg.ID)
	return m, nil
}

// CreateInstance implements §4.3 create_instance. Concurrent calls for the
// same (map_id, owner) are coalesced through a singleflight group so only
// one caller performs the lookup/construct/insert sequence.
func (r *Registry) CreateInstance(mapID uint32, player *Player) (Map, error) {
	entry, ok := r.catalog.Lookup(mapID)
	if !ok {
		r.log.Debug("create_instance: unknown map id", "map_id", mapID)
		return nil, nil
	}
	if entry.Kind == KindTransport || !entry.Kind.Instanceable() {
		r.log.Debug("create_instance: map is not instanceable", "map_id", mapID)
		return nil, nil
	}

	if entry.Kind.IsBattleGroundOrArena() {
		r.mu.Lock()
		id, ok := r.bgIndex[player.InBattleGround]
		var m Map
		if ok {
			m = r.maps[id]
		}
		r.mu.Unlock()
		if !ok || m == nil {
			return nil, ErrNoBattleGroundMap
		}
		return m, nil
	}

	key := fmt.Sprintf("%d|%s", mapID, player.OwnerKey())
	v, err, _ := r.reservations.Do(key, func() (interface{}, error) {
		return r.createDungeonInstance(entry, mapID, player)
	})
	if err != nil {
		return nil, err
	}
	return v.(Map), nil
}

// createDungeonInstance performs the actual lookup-or-create for a dungeon
// or raid instance, run inside the singleflight group so only one goroutine
// executes it per (map_id, owner) at a time.
func (r *Registry) createDungeonInstance(entry MapEntry, mapID uint32, player *Player) (Map, error) {
	if r.saves != nil {
		if rec, ok := r.saves.Lookup(player.OwnerKey(), mapID); ok {
			id := ID{MapID: mapID, InstanceID: rec.InstanceID}
			res := r.lookupOrReserve(id)
			if res.Existing != nil {
				return res.Existing, nil
			}
			m := NewDungeonMap(id, entry.Kind, rec.Difficulty, r.gridCleanIntervalMS, r.clock.NowMS(), true)
			return r.insert(id, m), nil
		}
	}

	difficulty := r.resolveDungeonDifficulty(mapID, player.Difficulty())
	instanceID := r.ids.Next()
	id := ID{MapID: mapID, InstanceID: instanceID}
	m := NewDungeonMap(id, entry.Kind, difficulty, r.gridCleanIntervalMS, r.clock.NowMS(), false)
	return r.insert(id, m), nil
}

// resolveDungeonDifficulty falls back to DifficultyNormal when the
// catalogue has no entry for (mapID, requested), per §4.3.
func (r *Registry) resolveDungeonDifficulty(mapID uint32, requested Difficulty) Difficulty {
	if d, ok := r.difficulties.MapDifficulty(mapID, requested); ok {
		return d
	}
	return DifficultyNormal
}

// Find returns the live map for (mapID, instanceID), if any.
func (r *Registry) Find(mapID, instanceID uint32) (Map, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.maps[ID{MapID: mapID, InstanceID: instanceID}]
	return m, ok
}

// FindFirst returns any live map for mapID, used for shared world maps
// where the caller does not know the instance id (always 0 for those).
func (r *Registry) FindFirst(mapID uint32) (Map, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.maps {
		if id.MapID == mapID {
			return m, true
		}
	}
	return nil, false
}

// DeleteInstance implements §4.3 delete_instance. It refuses to delete
// non-instanceable maps (InvalidUsage, logged at DEBUG, not an error) and
// reports false when no such map exists (NotFound).
func (r *Registry) DeleteInstance(mapID, instanceID uint32) bool {
	id := ID{MapID: mapID, InstanceID: instanceID}

	r.mu.Lock()
	m, ok := r.maps[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if !m.Kind().Instanceable() {
		r.mu.Unlock()
		r.log.Debug("delete_instance: refused for non-instanceable map", "map_id", mapID)
		return false
	}
	delete(r.maps, id)
	for bg, bgMapID := range r.bgIndex {
		if bgMapID == id {
			delete(r.bgIndex, bg)
		}
	}
	r.mu.Unlock()

	m.UnloadAll(true)
	if r.stats != nil {
		r.stats.forget(id)
	}
	r.log.Info("instance deleted", "map_id", mapID, "instance_id", instanceID)
	return true
}

// UnloadAll implements §4.3 unload_all: drains every registry entry via
// UnloadAll(force=true), then deactivates the worker pool.
func (r *Registry) UnloadAll() {
	r.mu.Lock()
	maps := make([]Map, 0, len(r.maps))
	for _, m := range r.maps {
		maps = append(maps, m)
	}
	r.maps = make(map[ID]Map)
	r.bgIndex = make(map[uint64]ID)
	r.mu.Unlock()

	for _, m := range maps {
		m.UnloadAll(true)
	}
	if r.pool != nil {
		r.pool.Deactivate()
	}
	r.log.Info("registry unloaded all maps", "count", len(maps))
}

// Snapshot returns the set of currently live maps, used by the tick driver
// to enumerate one update per live map per tick (§4.4 step 3).
func (r *Registry) Snapshot() []Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Map, 0, len(r.maps))
	for _, m := range r.maps {
		out = append(out, m)
	}
	return out
}

// Sweep implements the sweep phase of §4.3: after the tick barrier, every
// map whose CanUnload(nowMS) reports true is removed from the registry and
// destroyed. It returns the ids of the maps removed, so callers such as the
// tick driver can drop any per-map state (e.g. load-balancer heat) keyed by
// those ids without re-deriving which maps were swept.
func (r *Registry) Sweep(nowMS int64) []ID {
	r.mu.Lock()
	var removed []Map
	for id, m := range r.maps {
		if !m.CanUnload(nowMS) {
			continue
		}
		delete(r.maps, id)
		for bg, bgMapID := range r.bgIndex {
			if bgMapID == id {
				delete(r.bgIndex, bg)
			}
		}
		removed = append(removed, m)
	}
	r.mu.Unlock()

	ids := make([]ID, 0, len(removed))
	for _, m := range removed {
		m.UnloadAll(false)
		if r.stats != nil {
			r.stats.forget(m.ID())
		}
		ids = append(ids, m.ID())
	}
	if len(removed) > 0 {
		r.log.Info("sweep unloaded idle maps", "count", len(removed))
	}
	return ids
}

// NumInstances implements §6 num_instances: the count of live dungeon/raid
// maps.
func (r *Registry) NumInstances() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint32
	for _, m := range r.maps {
		if m.Kind().IsDungeon() {
			n++
		}
	}
	return n
}

// NumPlayersInInstances implements §6 num_players_in_instances.
func (r *Registry) NumPlayersInInstances() uint32 {
	r.mu.Lock()
	dungeons := make([]Map, 0)
	for _, m := range r.maps {
		if m.Kind().IsDungeon() {
			dungeons = append(dungeons, m)
		}
	}
	r.mu.Unlock()

	var n uint32
	for _, m := range dungeons {
		n += uint32(m.PlayerCount())
	}
	return n
}
