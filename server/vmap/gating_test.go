package vmap

import (
	"testing"

	"github.com/google/uuid"
)

func TestCanPlayerEnterWorldMapAlwaysAllowed(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{0: {MapID: 0, Kind: KindWorld}}, nil)
	ok, reason := r.CanPlayerEnter(0, &Player{ID: uuid.New()})
	if !ok || reason != AbortNone {
		t.Fatalf("world map entry: ok=%v reason=%v, want true/AbortNone", ok, reason)
	}
}

func TestCanPlayerEnterUnknownMapRejected(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{}, nil)
	ok, reason := r.CanPlayerEnter(999, &Player{ID: uuid.New()})
	if ok {
		t.Fatalf("expected entry to an unknown map to be rejected")
	}
	if reason != AbortDifficulty {
		t.Fatalf("reason = %v, want AbortDifficulty", reason)
	}
}

func TestCanPlayerEnterBattlegroundRequiresExistingMap(t *testing.T) {
	r := newTestRegistry(t, map[uint32]MapEntry{30: {MapID: 30, Kind: KindBattleGround}}, nil)

	noBG := &Player{ID: uuid.New(), InBattleGround: 0}
	if ok, reason := r.CanPlayerEnter(30, noBG); ok || reason != AbortRaidRequired {
		t.Fatalf("expected rejection with AbortRaidRequired, got ok=%v reason=%v", ok, reason)
	}

	if _, err := r.CreateBgMap(30, &BattleGround{ID: 5}); err != nil {
		t.Fatalf("create_bg_map: %v", err)
	}
	withBG := &Player{ID: uuid.New(), InBattleGround: 5}
	if ok, reason := r.CanPlayerEnter(30, withBG); !ok || reason != AbortNone {
		t.Fatalf("expected entry once battleground map exists, got ok=%v reason=%v", ok, reason)
	}
}

func TestCanPlayerEnterEncounterInProgressBlocksReentry(t *testing.T) {
	saves := newFakeSaveStore()
	owner := uuid.New()
	r := newTestRegistry(t, map[uint32]MapEntry{533: {MapID: 533, Kind: KindDungeon}}, saves)

	p := &Player{ID: owner}
	m, err := r.CreateInstance(533, p)
	if err != nil || m == nil {
		t.Fatalf("create_instance: m=%v err=%v", m, err)
	}
	saves.put(InstanceSaveRecord{OwnerKey: owner.String(), MapID: 533, InstanceID: m.ID().InstanceID, Difficulty: DifficultyNormal})

	dm := m.(*DungeonMap)
	dm.instanceData = encounterInProgressData{}

	ok, reason := r.CanPlayerEnter(533, p)
	if ok || reason != AbortZoneInCombat {
		t.Fatalf("expected rejection with AbortZoneInCombat, got ok=%v reason=%v", ok, reason)
	}
}

type encounterInProgressData struct{}

func (encounterInProgressData) EncounterInProgress() bool { return true }
