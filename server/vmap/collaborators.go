package vmap

import "golang.org/x/text/language"

// MapEntry is the static, read-only catalogue metadata for a map id (§3).
// Concrete catalogues are loaded from a YAML document; see catalog.go.
type MapEntry struct {
	MapID    uint32
	Kind     Kind
	MinLevel uint32
	Names    map[language.Tag]string
}

// MapCatalog resolves a map id to its static catalogue entry.
type MapCatalog interface {
	Lookup(mapID uint32) (MapEntry, bool)
}

// DifficultyCatalog resolves the effective difficulty for a dungeon/raid
// request, and the bracket difficulty for a battleground's minimum level
// (§4.3 "Difficulty resolution").
type DifficultyCatalog interface {
	// MapDifficulty reports the catalogue-approved difficulty for
	// (mapID, requested), or false if the map has no entry for it — the
	// caller falls back to DifficultyNormal.
	MapDifficulty(mapID uint32, requested Difficulty) (Difficulty, bool)
	// BattlegroundDifficulty derives a difficulty from a bracket's minimum
	// level, falling back to DifficultyRegular when no bracket matches.
	BattlegroundDifficulty(minLevel uint32) Difficulty
}

// GridCatalog answers whether map/vmap grid data exists for a given cell,
// consulted by CanPlayerEnter-style gating outside this package. Cell
// indices are derived from world coordinates as described in catalog.go.
type GridCatalog interface {
	ExistsMap(mapID uint32, gx, gy int) bool
	ExistsVmap(mapID uint32, gx, gy int) bool
}

// InstanceIDAllocator hands out monotonically increasing, non-zero instance
// ids for newly created instanced maps.
type InstanceIDAllocator interface {
	Next() uint32
}

// InstanceSaveRecord is a durable record of a player's or group's existing
// dungeon instance, consulted (never mutated) by CreateInstance (§3).
type InstanceSaveRecord struct {
	OwnerKey   string
	MapID      uint32
	InstanceID uint32
	Difficulty Difficulty
}

// InstanceSaveStore is the read path CreateInstance uses to decide whether
// an existing save should be reused rather than allocating a fresh
// instance. A concrete implementation persists records in an embedded
// key-value store; see persistence.go.
type InstanceSaveStore interface {
	Lookup(ownerKey string, mapID uint32) (InstanceSaveRecord, bool)
}
