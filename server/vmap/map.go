package vmap

import (
	"sync"
	"sync/atomic"
)

// Kind classifies a map entry in the read-only catalogue.
type Kind uint8

const (
	KindWorld Kind = iota
	KindDungeon
	KindRaid
	KindBattleGround
	KindArena
	KindTransport
)

// Instanceable reports whether maps of this kind are ever given a non-zero
// InstanceID.
func (k Kind) Instanceable() bool {
	switch k {
	case KindDungeon, KindRaid, KindBattleGround, KindArena:
		return true
	}
	return false
}

// IsDungeon reports whether k is a dungeon or raid, the two kinds counted by
// NumInstances/NumPlayersInInstances.
func (k Kind) IsDungeon() bool {
	return k == KindDungeon || k == KindRaid
}

// IsBattleGroundOrArena reports whether k is produced exclusively by the
// battleground factory (CreateBgMap), never by the generic player-driven
// CreateInstance path.
func (k Kind) IsBattleGroundOrArena() bool {
	return k == KindBattleGround || k == KindArena
}

// Difficulty is an opaque difficulty setting resolved by the registry's
// difficulty-resolution rules (§4.3) before a dungeon or battleground map is
// constructed.
type Difficulty uint8

const (
	DifficultyNormal Difficulty = iota
	DifficultyHeroic
	DifficultyRegular
)

// InstanceData is the optional per-map encounter/save state attached to a
// Map. It is an injected capability: the scheduling core only calls
// EncounterInProgress, never interprets the data itself.
type InstanceData interface {
	EncounterInProgress() bool
}

// Map is the shared capability set over the three map variants named in
// §3/§9: WorldMap, DungeonMap and BattleGroundMap. The scheduling core never
// type-switches on the concrete variant; all scheduling operations go
// through this interface.
type Map interface {
	ID() ID
	Kind() Kind
	Difficulty() Difficulty
	// Update advances the map's internal state by diffMS. A broken map's
	// Update must be a no-op (§4.7).
	Update(diffMS int64)
	// CanUnload reports whether the map may be swept out of the registry at
	// nowMS.
	CanUnload(nowMS int64) bool
	// UnloadAll releases the map's resources. force is true whenever the
	// call originates from DeleteInstance or the server-wide UnloadAll.
	UnloadAll(force bool)
	// Broken reports whether a worker crash has quarantined this map.
	Broken() bool
	// SetBroken marks the map so that further Update calls are no-ops,
	// invoked only from the crash-isolation pathway (§4.7).
	SetBroken()
	// InstanceData returns the map's attached instance data, or nil if none
	// is attached (continents never have one).
	InstanceData() InstanceData
	// PlayerCount returns the number of players currently present on the
	// map, used by NumPlayersInInstances.
	PlayerCount() int
}

// baseMap implements the fields and behaviour shared by every Map variant:
// identity, broken-flag handling and the idle-unload timer. It is embedded,
// never used standalone, mirroring the shared-attribute block described for
// Map in §3.
type baseMap struct {
	id         ID
	kind       Kind
	difficulty Difficulty

	broken atomic.Bool

	mu             sync.Mutex
	lastActivityMS int64
	unloaded       bool

	instanceData InstanceData

	players   map[uint64]struct{}
	playersMu sync.Mutex
}

func newBaseMap(id ID, kind Kind, difficulty Difficulty, nowMS int64) baseMap {
	return baseMap{
		id:             id,
		kind:           kind,
		difficulty:     difficulty,
		lastActivityMS: nowMS,
		players:        make(map[uint64]struct{}),
	}
}

func (m *baseMap) ID() ID                 { return m.id }
func (m *baseMap) Kind() Kind             { return m.kind }
func (m *baseMap) Difficulty() Difficulty { return m.difficulty }
func (m *baseMap) Broken() bool           { return m.broken.Load() }
func (m *baseMap) SetBroken()             { m.broken.Store(true) }

func (m *baseMap) InstanceData() InstanceData { return m.instanceData }

func (m *baseMap) PlayerCount() int {
	m.playersMu.Lock()
	defer m.playersMu.Unlock()
	return len(m.players)
}

// AddPlayer registers a player as present on the map. Player identity is
// modelled loosely (a uint64 GUID) since player bookkeeping beyond
// population counts is explicitly out of scope (§1).
func (m *baseMap) AddPlayer(guid uint64) {
	m.playersMu.Lock()
	m.players[guid] = struct{}{}
	m.playersMu.Unlock()
}

// RemovePlayer unregisters a player previously added with AddPlayer.
func (m *baseMap) RemovePlayer(guid uint64) {
	m.playersMu.Lock()
	delete(m.players, guid)
	m.playersMu.Unlock()
}

func (m *baseMap) touch(nowMS int64) {
	m.mu.Lock()
	m.lastActivityMS = nowMS
	m.mu.Unlock()
}

// idleFor returns the duration in milliseconds since the map was last
// touched by an Update call or gained a player.
func (m *baseMap) idleFor(nowMS int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nowMS - m.lastActivityMS
}

// WorldMap is a shared, non-instanceable continent. Exactly one WorldMap
// exists per MapID across the lifetime of the registry; continents are
// never unloaded via the idle sweep (§4.3/§9 "Continent").
type WorldMap struct {
	baseMap
}

// NewWorldMap constructs a continent map. WorldMaps are created lazily by
// the registry on first CreateMap call for a non-instanceable MapEntry.
func NewWorldMap(id ID, nowMS int64) *WorldMap {
	return &WorldMap{baseMap: newBaseMap(id, KindWorld, DifficultyNormal, nowMS)}
}

func (m *WorldMap) Update(diffMS int64) {
	if m.Broken() {
		return
	}
	m.touch(m.lastActivityMS + diffMS)
}

// CanUnload always reports false: continents live for the lifetime of the
// server process.
func (m *WorldMap) CanUnload(int64) bool { return false }

func (m *WorldMap) UnloadAll(bool) {}

// DungeonMap is a private instance of a dungeon or raid map, bound to one
// instance id and one persisted save (if any).
type DungeonMap struct {
	baseMap

	gridCleanIntervalMS int64
	hasSave             bool
}

// NewDungeonMap constructs a dungeon/raid instance. hasSave indicates
// whether the instance was created by resuming a persisted
// InstanceSaveRecord. The flag is stored on the map; nothing in this
// package loads InstanceData from disk based on it.
func NewDungeonMap(id ID, kind Kind, difficulty Difficulty, gridCleanIntervalMS, nowMS int64, hasSave bool) *DungeonMap {
	return &DungeonMap{
		baseMap:             newBaseMap(id, kind, difficulty, nowMS),
		gridCleanIntervalMS: gridCleanIntervalMS,
		hasSave:             hasSave,
	}
}

func (m *DungeonMap) Update(diffMS int64) {
	if m.Broken() {
		return
	}
	m.touch(m.lastActivityMS + diffMS)
}

// CanUnload reports true once the instance has had no players and no
// encounter in progress for at least gridCleanIntervalMS.
func (m *DungeonMap) CanUnload(nowMS int64) bool {
	if m.PlayerCount() > 0 {
		return false
	}
	if d := m.InstanceData(); d != nil && d.EncounterInProgress() {
		return false
	}
	return m.idleFor(nowMS) >= m.gridCleanIntervalMS
}

func (m *DungeonMap) UnloadAll(bool) {}

// BattleGroundMap is a private instance created exclusively through the
// battleground factory (never through the generic player-driven
// CreateInstance path, per §4.3).
type BattleGroundMap struct {
	baseMap

	bgID uint64
}

// NewBattleGroundMap constructs a battleground/arena instance bound to an
// external battleground identifier.
func NewBattleGroundMap(id ID, difficulty Difficulty, bgID uint64, nowMS int64) *BattleGroundMap {
	return &BattleGroundMap{
		baseMap: newBaseMap(id, KindBattleGround, difficulty, nowMS),
		bgID:    bgID,
	}
}

// BattleGroundID returns the external battleground identifier this map is
// attached to, used by the registry's CreateInstance lookup.
func (m *BattleGroundMap) BattleGroundID() uint64 { return m.bgID }

func (m *BattleGroundMap) Update(diffMS int64) {
	if m.Broken() {
		return
	}
	m.touch(m.lastActivityMS + diffMS)
}

func (m *BattleGroundMap) CanUnload(nowMS int64) bool {
	return m.PlayerCount() == 0 && m.idleFor(nowMS) >= m.gridCleanIntervalMS()
}

func (m *BattleGroundMap) gridCleanIntervalMS() int64 { return 30_000 }

func (m *BattleGroundMap) UnloadAll(bool) {}
