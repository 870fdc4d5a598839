package vmap

import "errors"

// ErrQueueDeactivated is returned by Enqueue/Dequeue once the queue has
// transitioned to the deactivated terminal state (§4.1). Workers use this as
// the sentinel telling them to exit their loop.
var ErrQueueDeactivated = errors.New("vmap: queue deactivated")

// ErrQueueNotActive is returned by Enqueue when called before Activate, or
// after Reset. After Deactivate, Enqueue returns ErrQueueDeactivated.
var ErrQueueNotActive = errors.New("vmap: queue not active")

// ErrNoBattleGroundMap is returned by CreateInstance when a player's
// battleground/arena actor names an external battleground id that has no
// corresponding map in the registry (§4.3: "must exist; else fail").
var ErrNoBattleGroundMap = errors.New("vmap: no map for battleground id")

// AbortReason is a structured rejection reason returned by CanPlayerEnter
// (§7 "Gating rejection").
type AbortReason uint8

const (
	AbortNone AbortReason = iota
	AbortDifficulty
	AbortZoneInCombat
	AbortRaidRequired
	AbortAchievementRequired
)

func (r AbortReason) String() string {
	switch r {
	case AbortDifficulty:
		return "DIFFICULTY"
	case AbortZoneInCombat:
		return "ZONE_IN_COMBAT"
	case AbortRaidRequired:
		return "RAID_REQUIRED"
	case AbortAchievementRequired:
		return "ACHIEVEMENT_REQUIRED"
	default:
		return "NONE"
	}
}
