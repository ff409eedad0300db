package game

import (
	"github.com/google/uuid"

	"github.com/borderwars/server/internal/cache"
	"github.com/borderwars/server/internal/events"
)

// DeclareWar creates an active war from the aggressor country against the
// target. The declarer must own the aggressor country. Pair uniqueness is
// checked at the moment of creation under the registry lock, never as an
// advisory pre-check.
func (e *Engine) DeclareWar(playerID, aggressorCountryID, targetCountryID, reason string) (WarState, error) {
	now := e.clock()
	if rem := e.cooldowns.Remaining(cache.CooldownWarDeclaration, playerID, e.cfg.WarDeclarationCooldown, now); rem > 0 {
		return WarState{}, cooldownErr("war declaration", rem)
	}
	if targetCountryID == aggressorCountryID {
		return WarState{}, invalidTargetf("country %s cannot declare war on itself", aggressorCountryID)
	}

	e.mu.RLock()
	aggressor := e.countries[aggressorCountryID]
	target := e.countries[targetCountryID]
	e.mu.RUnlock()
	if aggressor == nil {
		return WarState{}, notFoundf("country %s", aggressorCountryID)
	}
	if target == nil {
		return WarState{}, notFoundf("country %s", targetCountryID)
	}

	aggressor.mu.Lock()
	owner := aggressor.OwnerID
	halted := aggressor.halted
	aggressor.mu.Unlock()
	if halted {
		return WarState{}, invalidStatef("country %s is halted", aggressorCountryID)
	}
	if owner != playerID {
		return WarState{}, forbiddenf("player %s does not own country %s", playerID, aggressorCountryID)
	}
	target.mu.Lock()
	targetClaimed := target.OwnerID != ""
	target.mu.Unlock()
	if !targetClaimed {
		return WarState{}, invalidTargetf("country %s is unclaimed", targetCountryID)
	}

	w := &War{
		ID:                 uuid.New().String(),
		AggressorCountryID: aggressorCountryID,
		DefenderCountryID:  targetCountryID,
		DeclaredBy:         playerID,
		Reason:             reason,
		Status:             WarActive,
		DeclaredAt:         now,
	}
	key := pairKey(aggressorCountryID, targetCountryID)

	e.mu.Lock()
	if existing, ok := e.activeWarByPair[key]; ok {
		e.mu.Unlock()
		return WarState{}, conflictf("war %s already active between %s and %s", existing, aggressorCountryID, targetCountryID)
	}
	e.wars[w.ID] = w
	e.activeWarByPair[key] = w.ID
	e.mu.Unlock()

	e.cooldowns.Mark(cache.CooldownWarDeclaration, playerID, now)
	e.adjustActiveWars(aggressor, +1)
	e.adjustActiveWars(target, +1)

	ev := events.New(events.TypeWarDeclared, now, events.WarDeclared{
		WarID:              w.ID,
		AggressorCountryID: aggressorCountryID,
		DefenderCountryID:  targetCountryID,
		DeclaredBy:         playerID,
		Reason:             reason,
	})
	e.sink.Broadcast(aggressorCountryID, ev)
	e.sink.Broadcast(targetCountryID, ev)
	e.sink.BroadcastGlobal(ev)

	state := e.warState(w)
	e.recorder.WarChanged(state)
	e.recorder.CountryChanged(e.countryState(aggressor))
	e.recorder.CountryChanged(e.countryState(target))
	e.log.Info("war declared",
		"warId", w.ID, "aggressor", aggressorCountryID, "defender", targetCountryID, "by", playerID)
	return state, nil
}

// EndWar transitions the war to ended and cancels every active push it owns.
// Only the original declarer may end it. winnerCountryID may be empty; a war
// legitimately ends with no winner, and win/loss counters move only when a
// winner is named.
func (e *Engine) EndWar(warID, playerID, winnerCountryID string) (WarState, error) {
	e.mu.RLock()
	w := e.wars[warID]
	e.mu.RUnlock()
	if w == nil {
		return WarState{}, notFoundf("war %s", warID)
	}

	now := e.clock()
	w.mu.Lock()
	if w.halted {
		w.mu.Unlock()
		return WarState{}, invalidStatef("war %s is halted", warID)
	}
	if w.Status != WarActive {
		w.mu.Unlock()
		return WarState{}, invalidStatef("war %s is %s", warID, w.Status)
	}
	if w.DeclaredBy != playerID {
		w.mu.Unlock()
		return WarState{}, forbiddenf("player %s did not declare war %s", playerID, warID)
	}
	if winnerCountryID != "" && winnerCountryID != w.AggressorCountryID && winnerCountryID != w.DefenderCountryID {
		w.mu.Unlock()
		return WarState{}, invalidTargetf("country %s is not a party to war %s", winnerCountryID, warID)
	}
	w.Status = WarEnded
	w.WinnerCountryID = winnerCountryID
	w.EndedAt = now
	aggressorID, defenderID := w.AggressorCountryID, w.DefenderCountryID
	// Index maintenance happens inside the war lock so a concurrent
	// declaration can never observe an active index entry for an ended war.
	e.mu.Lock()
	delete(e.activeWarByPair, pairKey(aggressorID, defenderID))
	pushIDs := append([]string(nil), e.pushesByWar[warID]...)
	e.mu.Unlock()
	w.mu.Unlock()

	// Cascade-cancel as a batch of independent cancellations. A push that
	// cannot be cancelled is logged and skipped, never blocks the rest.
	cancelled := 0
	for _, pushID := range pushIDs {
		e.mu.RLock()
		p := e.pushes[pushID]
		e.mu.RUnlock()
		if p == nil {
			continue
		}
		if _, err := e.finishPush(p, PushCancelled, now); err != nil {
			if KindOf(err) != KindInvalidState {
				e.log.Warn("cascade cancel failed", "pushId", pushID, "warId", warID, "error", err)
			}
			continue
		}
		cancelled++
	}

	e.mu.RLock()
	aggressor := e.countries[aggressorID]
	defender := e.countries[defenderID]
	e.mu.RUnlock()
	if aggressor != nil {
		e.adjustActiveWars(aggressor, -1)
	}
	if defender != nil {
		e.adjustActiveWars(defender, -1)
	}
	if winnerCountryID != "" {
		loserID := aggressorID
		if winnerCountryID == aggressorID {
			loserID = defenderID
		}
		e.adjustWinLoss(winnerCountryID, loserID)
	}

	ev := events.New(events.TypeWarEnded, now, events.WarEnded{
		WarID:              warID,
		AggressorCountryID: aggressorID,
		DefenderCountryID:  defenderID,
		WinnerCountryID:    winnerCountryID,
		CancelledPushes:    cancelled,
	})
	e.sink.Broadcast(aggressorID, ev)
	e.sink.Broadcast(defenderID, ev)
	e.sink.BroadcastGlobal(ev)

	state := e.warState(w)
	e.recorder.WarChanged(state)
	if aggressor != nil {
		e.recorder.CountryChanged(e.countryState(aggressor))
	}
	if defender != nil {
		e.recorder.CountryChanged(e.countryState(defender))
	}
	e.log.Info("war ended",
		"warId", warID, "winner", winnerCountryID, "cancelledPushes", cancelled)
	return state, nil
}

// adjustActiveWars moves the country's live-war counter, floored at zero, and
// keeps is_at_war consistent with it.
func (e *Engine) adjustActiveWars(c *Country, delta int) {
	c.mu.Lock()
	c.ActiveWars += delta
	if c.ActiveWars < 0 {
		c.ActiveWars = 0
	}
	c.IsAtWar = c.ActiveWars > 0
	c.mu.Unlock()
}

func (e *Engine) adjustWinLoss(winnerID, loserID string) {
	e.mu.RLock()
	winner := e.countries[winnerID]
	loser := e.countries[loserID]
	e.mu.RUnlock()
	if winner != nil {
		winner.mu.Lock()
		winner.WarsWon++
		winner.mu.Unlock()
	}
	if loser != nil {
		loser.mu.Lock()
		loser.WarsLost++
		loser.mu.Unlock()
	}
}
