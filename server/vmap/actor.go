package vmap

import "github.com/google/uuid"

// Actor is anything that can ask the registry to create or enter a map.
// Only *Player may drive the instanceable-map path (§4.3); any other actor
// requesting an instanceable map is refused.
type Actor interface {
	OwnerKey() string
	Difficulty() Difficulty
}

// Group is a player's party or raid group, consulted for its current
// difficulty setting when present (§4.3 "the player's (or group's) current
// difficulty").
type Group struct {
	ID   uuid.UUID
	Pref Difficulty
}

func (g *Group) OwnerKey() string       { return g.ID.String() }
func (g *Group) Difficulty() Difficulty { return g.Pref }

// Player is the concrete Actor used by CreateMap/CreateInstance/
// CanPlayerEnter. Identity is a google/uuid.
type Player struct {
	ID   uuid.UUID
	Pref Difficulty
	Grp  *Group

	// InBattleGround is the external battleground id the player currently
	// belongs to, or 0 if none. CreateInstance consults this for
	// battleground/arena map entries.
	InBattleGround uint64
}

func (p *Player) OwnerKey() string { return p.ID.String() }

// Difficulty returns the group's difficulty when the player belongs to one,
// otherwise the player's own preference.
func (p *Player) Difficulty() Difficulty {
	if p.Grp != nil {
		return p.Grp.Difficulty()
	}
	return p.Pref
}

// BattleGround is the factory-side actor used by CreateBgMap; it is never
// accepted by CreateMap/CreateInstance.
type BattleGround struct {
	ID uint64
}
