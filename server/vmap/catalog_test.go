package vmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestGridCellMatchesOriginCell(t *testing.T) {
	gx, gy := GridCell(mgl64.Vec3{0, 0, 0})
	if gx != 63 || gy != 63 {
		t.Fatalf("origin cell = (%d, %d), want (63, 63)", gx, gy)
	}
}

func TestGridCellShiftsWithPosition(t *testing.T) {
	gx, gy := GridCell(mgl64.Vec3{gridCellSize * 10, -gridCellSize * 5, 0})
	if gx != 53 {
		t.Fatalf("gx = %d, want 53", gx)
	}
	if gy != 68 {
		t.Fatalf("gy = %d, want 68", gy)
	}
}

func TestFileMapCatalogLoadsAndResolvesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maps.yaml")
	doc := `
maps:
  - map_id: 0
    kind: world
    names:
      en: Eastern Kingdoms
  - map_id: 533
    kind: dungeon
    min_level: 60
    difficulties:
      - requested: normal
        effective: heroic
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}

	cat, err := NewFileMapCatalog(path)
	if err != nil {
		t.Fatalf("NewFileMapCatalog: %v", err)
	}

	entry, ok := cat.Lookup(0)
	if !ok || entry.Kind != KindWorld {
		t.Fatalf("lookup map 0: entry=%+v ok=%v", entry, ok)
	}

	entry, ok = cat.Lookup(533)
	if !ok || entry.Kind != KindDungeon || entry.MinLevel != 60 {
		t.Fatalf("lookup map 533: entry=%+v ok=%v", entry, ok)
	}

	d, ok := cat.MapDifficulty(533, DifficultyNormal)
	if !ok || d != DifficultyHeroic {
		t.Fatalf("map difficulty override: d=%v ok=%v, want heroic/true", d, ok)
	}

	if _, ok := cat.Lookup(9999); ok {
		t.Fatalf("expected no entry for unknown map id")
	}
}
