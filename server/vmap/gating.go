package vmap

// CanPlayerEnter implements §6 can_player_enter: pre-entry gating using the
// map catalogue, difficulty availability and an in-progress-encounter
// predicate on any existing instance for the player. It returns true (with
// AbortNone) when entry is permitted, or false with a structured reason a
// caller forwards to inform the player (§7 "Gating rejection").
func (r *Registry) CanPlayerEnter(mapID uint32, player *Player) (bool, AbortReason) {
	entry, ok := r.catalog.Lookup(mapID)
	if !ok || entry.Kind == KindTransport {
		return false, AbortDifficulty
	}

	if !entry.Kind.Instanceable() {
		return true, AbortNone
	}

	if entry.Kind.IsBattleGroundOrArena() {
		r.mu.Lock()
		_, has := r.bgIndex[player.InBattleGround]
		r.mu.Unlock()
		if !has {
			return false, AbortRaidRequired
		}
		return true, AbortNone
	}

	if _, ok := r.difficulties.MapDifficulty(mapID, player.Difficulty()); !ok {
		return false, AbortDifficulty
	}

	if r.saves != nil {
		if rec, ok := r.saves.Lookup(player.OwnerKey(), mapID); ok {
			if m, live := r.Find(mapID, rec.InstanceID); live {
				if data := m.InstanceData(); data != nil && data.EncounterInProgress() {
					return false, AbortZoneInCombat
				}
			}
		}
	}

	return true, AbortNone
}
