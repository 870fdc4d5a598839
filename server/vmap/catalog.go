package vmap

import (
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

// gridCellSize is the world-unit width of a single grid/vmap cell, matching
// the constant used by the original grid-index computation in §6.
const gridCellSize = 533.333333

// catalogDocument is the on-disk YAML shape loaded by NewFileMapCatalog.
type catalogDocument struct {
	Maps []catalogDocumentEntry `yaml:"maps"`
}

type catalogDocumentEntry struct {
	MapID      uint32            `yaml:"map_id"`
	Kind       string            `yaml:"kind"`
	MinLevel   uint32            `yaml:"min_level"`
	Names      map[string]string `yaml:"names"`
	Difficulty []difficultyEntry `yaml:"difficulties"`
}

type difficultyEntry struct {
	Requested string `yaml:"requested"`
	Effective string `yaml:"effective"`
}

// FileMapCatalog is the concrete, file-backed MapCatalog/DifficultyCatalog
// implementation named in §6: it loads its entries from a YAML document at
// startup and never mutates them afterward.
type FileMapCatalog struct {
	entries      map[uint32]MapEntry
	difficulties map[uint32]map[Difficulty]Difficulty
}

// NewFileMapCatalog reads and parses a YAML catalogue document from path.
func NewFileMapCatalog(path string) (*FileMapCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vmap: read map catalogue: %w", err)
	}
	var doc catalogDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("vmap: parse map catalogue: %w", err)
	}

	c := &FileMapCatalog{
		entries:      make(map[uint32]MapEntry, len(doc.Maps)),
		difficulties: make(map[uint32]map[Difficulty]Difficulty, len(doc.Maps)),
	}
	for _, e := range doc.Maps {
		names := make(map[language.Tag]string, len(e.Names))
		for locale, name := range e.Names {
			tag, err := language.Parse(locale)
			if err != nil {
				continue
			}
			names[tag] = name
		}
		c.entries[e.MapID] = MapEntry{
			MapID:    e.MapID,
			Kind:     parseKind(e.Kind),
			MinLevel: e.MinLevel,
			Names:    names,
		}
		if len(e.Difficulty) > 0 {
			m := make(map[Difficulty]Difficulty, len(e.Difficulty))
			for _, d := range e.Difficulty {
				m[parseDifficulty(d.Requested)] = parseDifficulty(d.Effective)
			}
			c.difficulties[e.MapID] = m
		}
	}
	return c, nil
}

func parseKind(s string) Kind {
	switch s {
	case "world":
		return KindWorld
	case "dungeon":
		return KindDungeon
	case "raid":
		return KindRaid
	case "battleground":
		return KindBattleGround
	case "arena":
		return KindArena
	case "transport":
		return KindTransport
	default:
		return KindWorld
	}
}

func parseDifficulty(s string) Difficulty {
	switch s {
	case "heroic":
		return DifficultyHeroic
	case "regular":
		return DifficultyRegular
	default:
		return DifficultyNormal
	}
}

// Lookup implements MapCatalog.
func (c *FileMapCatalog) Lookup(mapID uint32) (MapEntry, bool) {
	e, ok := c.entries[mapID]
	return e, ok
}

// MapDifficulty implements DifficultyCatalog. It reports false (causing the
// caller to fall back to DifficultyNormal, per §4.3) when the map has no
// catalogue-declared difficulty table, or the requested difficulty is not
// one of its entries.
func (c *FileMapCatalog) MapDifficulty(mapID uint32, requested Difficulty) (Difficulty, bool) {
	table, ok := c.difficulties[mapID]
	if !ok {
		return DifficultyNormal, false
	}
	d, ok := table[requested]
	return d, ok
}

// BattlegroundDifficulty derives a bracket difficulty from minLevel. This
// catalogue declares no brackets, so it always falls back to
// DifficultyRegular per §4.3.
func (c *FileMapCatalog) BattlegroundDifficulty(uint32) Difficulty {
	return DifficultyRegular
}

// FileGridCatalog is a concrete GridCatalog backed by a set of known
// (map_id, gx, gy) cells present on disk, loaded once at startup. Real
// deployments populate it from the same map/vmap directory tree the
// original server reads; this catalogue only tracks which cells exist, not
// their contents, which are out of scope (§1 Non-goals).
type FileGridCatalog struct {
	mapCells  map[gridCell]struct{}
	vmapCells map[gridCell]struct{}
}

type gridCell struct {
	mapID  uint32
	gx, gy int
}

// NewFileGridCatalog constructs an empty grid catalogue; cells are
// registered via RegisterMapCell/RegisterVmapCell during startup scanning.
func NewFileGridCatalog() *FileGridCatalog {
	return &FileGridCatalog{
		mapCells:  make(map[gridCell]struct{}),
		vmapCells: make(map[gridCell]struct{}),
	}
}

// RegisterMapCell records that terrain data exists for the given cell.
func (c *FileGridCatalog) RegisterMapCell(mapID uint32, gx, gy int) {
	c.mapCells[gridCell{mapID, gx, gy}] = struct{}{}
}

// RegisterVmapCell records that vmap (collision) data exists for the given
// cell.
func (c *FileGridCatalog) RegisterVmapCell(mapID uint32, gx, gy int) {
	c.vmapCells[gridCell{mapID, gx, gy}] = struct{}{}
}

// ExistsMap implements GridCatalog.
func (c *FileGridCatalog) ExistsMap(mapID uint32, gx, gy int) bool {
	_, ok := c.mapCells[gridCell{mapID, gx, gy}]
	return ok
}

// ExistsVmap implements GridCatalog.
func (c *FileGridCatalog) ExistsVmap(mapID uint32, gx, gy int) bool {
	_, ok := c.vmapCells[gridCell{mapID, gx, gy}]
	return ok
}

// GridCell computes the (gx, gy) cell index for a world position, per §6:
// (gx, gy) = (63 − floor(x/CELL), 63 − floor(y/CELL)).
func GridCell(pos mgl64.Vec3) (gx, gy int) {
	gx = 63 - int(math.Floor(float64(pos.X())/gridCellSize))
	gy = 63 - int(math.Floor(float64(pos.Y())/gridCellSize))
	return gx, gy
}
