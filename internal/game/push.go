package game

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/borderwars/server/internal/cache"
	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/geo"
	"github.com/borderwars/server/internal/util"
)

// StopReasonSuccess marks a manual stop as a successful push; any other
// reason cancels it.
const StopReasonSuccess = "success"

// territoryWKTSegments is the resolution of the territory footprint polygon
// attached to completion events.
const territoryWKTSegments = 64

// speedOf is the single speed formula. Every mutation path and every tick
// goes through it; resistance is floored before division so a corrupted
// defender count can never divide by zero.
func (e *Engine) speedOf(strength, resistance, terrain float64) float64 {
	if resistance < e.cfg.MinResistance {
		resistance = e.cfg.MinResistance
	}
	if terrain <= 0 {
		terrain = 1.0
	}
	return util.Clamp(strength/resistance*(1.0/terrain), e.cfg.MinPushSpeed, e.cfg.MaxPushSpeed)
}

// StartPush opens a contested expansion within an active war. The initiator
// must belong to the war's aggressor country, may own at most one active push
// at a time, and pays the push cost up front. The ledger debit happens before
// any conflict lock is taken and is refunded if validation then fails.
func (e *Engine) StartPush(playerID, warID string, pos geo.Position, direction, terrain float64) (PushState, error) {
	now := e.clock()
	if rem := e.cooldowns.Remaining(cache.CooldownPushStart, playerID, e.cfg.PushStartCooldown, now); rem > 0 {
		return PushState{}, cooldownErr("push start", rem)
	}

	e.mu.RLock()
	p := e.players[playerID]
	w := e.wars[warID]
	e.mu.RUnlock()
	if p == nil {
		return PushState{}, notFoundf("player %s", playerID)
	}
	if w == nil {
		return PushState{}, notFoundf("war %s", warID)
	}

	p.mu.Lock()
	countryID := p.CountryID
	playerHalted := p.halted
	p.mu.Unlock()
	if playerHalted {
		return PushState{}, invalidStatef("player %s is halted", playerID)
	}
	if countryID == "" || countryID != w.AggressorCountryID {
		return PushState{}, forbiddenf("player %s does not belong to the aggressor of war %s", playerID, warID)
	}

	if terrain <= 0 {
		terrain = e.defaultTerrain(w.DefenderCountryID)
	}

	if err := e.ledger.Debit(playerID, e.cfg.PushCost); err != nil {
		return PushState{}, err
	}

	push := &BorderPush{
		ID:                 uuid.New().String(),
		WarID:              warID,
		PlayerID:           playerID,
		SourceCountryID:    w.AggressorCountryID,
		TargetCountryID:    w.DefenderCountryID,
		Status:             PushActive,
		PushStrength:       1.0,
		ResistanceStrength: 1.0,
		TerrainModifier:    terrain,
		SupportingSoldiers: 1,
		DefendingSoldiers:  0,
		Origin:             pos,
		Direction:          direction,
		StartedAt:          now,
		LastUpdate:         now,
		supporters:         map[string]bool{playerID: true},
		defenders:          make(map[string]bool),
	}
	push.PushSpeed = e.speedOf(push.PushStrength, push.ResistanceStrength, push.TerrainModifier)

	w.mu.Lock()
	e.mu.Lock()
	var createErr error
	switch {
	case w.Status != WarActive:
		createErr = invalidStatef("war %s is %s", warID, w.Status)
	case e.activePushByOwner[playerID] != "":
		createErr = conflictf("player %s already owns active push %s", playerID, e.activePushByOwner[playerID])
	default:
		e.pushes[push.ID] = push
		e.activePushByOwner[playerID] = push.ID
		e.pushesByWar[warID] = append(e.pushesByWar[warID], push.ID)
	}
	e.mu.Unlock()
	w.mu.Unlock()
	if createErr != nil {
		e.ledger.Credit(playerID, e.cfg.PushCost)
		return PushState{}, createErr
	}
	e.cooldowns.Mark(cache.CooldownPushStart, playerID, now)

	payload := events.PushStarted{
		PushID:          push.ID,
		WarID:           warID,
		PlayerID:        playerID,
		SourceCountryID: push.SourceCountryID,
		TargetCountryID: push.TargetCountryID,
		X:               pos.X,
		Y:               pos.Y,
		Direction:       direction,
		PushSpeed:       push.PushSpeed,
	}
	e.sink.Broadcast(push.SourceCountryID, events.New(events.TypePushStarted, now, payload))
	e.sink.Broadcast(push.TargetCountryID, events.New(events.TypePushIncoming, now, payload))

	state := e.pushState(push)
	e.recorder.PushChanged(state)
	e.log.Info("push started",
		"pushId", push.ID, "warId", warID, "playerId", playerID, "speed", push.PushSpeed)
	return state, nil
}

// JoinPush adds a supporter from the source country and recomputes strength
// and speed. A player supports a given push at most once.
func (e *Engine) JoinPush(pushID, playerID string) (PushState, error) {
	push, err := e.sidedPush(pushID, playerID, true)
	if err != nil {
		return PushState{}, err
	}

	push.mu.Lock()
	if push.halted {
		push.mu.Unlock()
		return PushState{}, invalidStatef("push %s is halted", pushID)
	}
	if push.Status != PushActive {
		push.mu.Unlock()
		return PushState{}, invalidStatef("push %s is %s", pushID, push.Status)
	}
	if push.supporters[playerID] {
		push.mu.Unlock()
		return PushState{}, conflictf("player %s already supports push %s", playerID, pushID)
	}
	push.supporters[playerID] = true
	push.SupportingSoldiers++
	push.PushStrength = 1.0 * math.Sqrt(float64(push.SupportingSoldiers))
	push.PushSpeed = e.speedOf(push.PushStrength, push.ResistanceStrength, push.TerrainModifier)
	state := pushStateLocked(push)
	push.mu.Unlock()

	ev := events.New(events.TypePushSupportAdded, e.clock(), events.PushSupportAdded{
		PushID:             pushID,
		PlayerID:           playerID,
		SupportingSoldiers: state.SupportingSoldiers,
		PushStrength:       state.PushStrength,
		PushSpeed:          state.PushSpeed,
	})
	e.sink.Broadcast(state.SourceCountryID, ev)
	e.sink.Broadcast(state.TargetCountryID, ev)
	e.recorder.PushChanged(state)
	return state, nil
}

// DefendPush adds a defender from the target country and recomputes
// resistance and speed.
func (e *Engine) DefendPush(pushID, playerID string) (PushState, error) {
	push, err := e.sidedPush(pushID, playerID, false)
	if err != nil {
		return PushState{}, err
	}

	push.mu.Lock()
	if push.halted {
		push.mu.Unlock()
		return PushState{}, invalidStatef("push %s is halted", pushID)
	}
	if push.Status != PushActive {
		push.mu.Unlock()
		return PushState{}, invalidStatef("push %s is %s", pushID, push.Status)
	}
	if push.defenders[playerID] {
		push.mu.Unlock()
		return PushState{}, conflictf("player %s already defends push %s", playerID, pushID)
	}
	push.defenders[playerID] = true
	push.DefendingSoldiers++
	push.ResistanceStrength = 1.0 * math.Sqrt(float64(push.DefendingSoldiers))
	push.PushSpeed = e.speedOf(push.PushStrength, push.ResistanceStrength, push.TerrainModifier)
	state := pushStateLocked(push)
	push.mu.Unlock()

	ev := events.New(events.TypePushDefenseAdded, e.clock(), events.PushDefenseAdded{
		PushID:             pushID,
		PlayerID:           playerID,
		DefendingSoldiers:  state.DefendingSoldiers,
		ResistanceStrength: state.ResistanceStrength,
		PushSpeed:          state.PushSpeed,
	})
	e.sink.Broadcast(state.SourceCountryID, ev)
	e.sink.Broadcast(state.TargetCountryID, ev)
	e.recorder.PushChanged(state)
	return state, nil
}

// sidedPush resolves the push and checks the player belongs to the required
// side's country.
func (e *Engine) sidedPush(pushID, playerID string, source bool) (*BorderPush, error) {
	e.mu.RLock()
	push := e.pushes[pushID]
	p := e.players[playerID]
	e.mu.RUnlock()
	if push == nil {
		return nil, notFoundf("push %s", pushID)
	}
	if p == nil {
		return nil, notFoundf("player %s", playerID)
	}
	p.mu.Lock()
	countryID := p.CountryID
	p.mu.Unlock()
	required := push.TargetCountryID
	if source {
		required = push.SourceCountryID
	}
	if countryID != required {
		return nil, forbiddenf("player %s does not belong to country %s", playerID, required)
	}
	return push, nil
}

// PeekProgress computes the candidate distance for an active push without
// mutating anything. Concurrent peeks share the read lock and never block
// the committing tick for longer than the copy itself.
func (e *Engine) PeekProgress(pushID string) (PushState, error) {
	e.mu.RLock()
	push := e.pushes[pushID]
	e.mu.RUnlock()
	if push == nil {
		return PushState{}, notFoundf("push %s", pushID)
	}

	push.mu.RLock()
	state := pushStateLocked(push)
	if push.Status == PushActive {
		elapsed := e.clock().Sub(push.LastUpdate).Seconds()
		if elapsed > 0 {
			state.DistancePushed += push.PushSpeed * elapsed
			state.TerritoryGainedKm2 = geo.TerritoryAreaKm2(state.DistancePushed)
		}
	}
	push.mu.RUnlock()
	return state, nil
}

// CommitProgress advances an active push to now and applies the completion
// policy. Called by the conflict tick; a push whose commit fails is simply
// retried on the next tick.
func (e *Engine) CommitProgress(pushID string) (PushState, error) {
	e.mu.RLock()
	push := e.pushes[pushID]
	e.mu.RUnlock()
	if push == nil {
		return PushState{}, notFoundf("push %s", pushID)
	}

	now := e.clock()
	push.mu.Lock()
	if push.halted {
		push.mu.Unlock()
		return PushState{}, invalidStatef("push %s is halted", pushID)
	}
	if push.Status != PushActive {
		push.mu.Unlock()
		return PushState{}, invalidStatef("push %s is %s", pushID, push.Status)
	}
	commitLocked(push, now)
	completed := push.DistancePushed > e.cfg.PushThresholdMeters
	if completed {
		push.Status = PushSuccessful
		push.EndedAt = now
		e.mu.Lock()
		delete(e.activePushByOwner, push.PlayerID)
		e.mu.Unlock()
	}
	state := pushStateLocked(push)
	push.mu.Unlock()

	if completed {
		e.settleCompleted(state, now)
	} else {
		ev := events.New(events.TypePushProgress, now, events.PushProgress{
			PushID:             state.ID,
			DistancePushed:     state.DistancePushed,
			TerritoryGainedKm2: state.TerritoryGainedKm2,
			PushSpeed:          state.PushSpeed,
			SupportingSoldiers: state.SupportingSoldiers,
			DefendingSoldiers:  state.DefendingSoldiers,
		})
		e.sink.Broadcast(state.SourceCountryID, ev)
		e.sink.Broadcast(state.TargetCountryID, ev)
	}
	e.recorder.PushChanged(state)
	return state, nil
}

// StopPush commits final progress and moves an active push to successful or
// cancelled depending on the reason.
func (e *Engine) StopPush(pushID, reason string) (PushState, error) {
	e.mu.RLock()
	push := e.pushes[pushID]
	e.mu.RUnlock()
	if push == nil {
		return PushState{}, notFoundf("push %s", pushID)
	}
	status := PushCancelled
	if reason == StopReasonSuccess {
		status = PushSuccessful
	}
	now := e.clock()
	state, err := e.finishPush(push, status, now)
	if err != nil {
		return PushState{}, err
	}
	if status == PushSuccessful {
		e.settleCompleted(state, now)
	}
	e.log.Info("push stopped", "pushId", pushID, "reason", reason, "status", string(status))
	return state, nil
}

// ActivePushIDs snapshots the set the conflict tick iterates, in no
// particular order.
func (e *Engine) ActivePushIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.activePushByOwner))
	for _, id := range e.activePushByOwner {
		ids = append(ids, id)
	}
	return ids
}

// Push returns a value copy of the push's committed state.
func (e *Engine) Push(id string) (PushState, error) {
	e.mu.RLock()
	push := e.pushes[id]
	e.mu.RUnlock()
	if push == nil {
		return PushState{}, notFoundf("push %s", id)
	}
	return e.pushState(push), nil
}

// commitLocked folds the elapsed window into committed state. Caller holds
// the push write lock; the push is active.
func commitLocked(p *BorderPush, now time.Time) {
	elapsed := now.Sub(p.LastUpdate).Seconds()
	if elapsed > 0 {
		p.DistancePushed += p.PushSpeed * elapsed
	}
	p.LastUpdate = now
	p.TerritoryGainedKm2 = geo.TerritoryAreaKm2(p.DistancePushed)
}

// finishPush commits final progress and moves the push to a terminal status,
// releasing the one-active-push-per-player slot.
func (e *Engine) finishPush(p *BorderPush, status PushStatus, now time.Time) (PushState, error) {
	p.mu.Lock()
	if p.Status != PushActive {
		p.mu.Unlock()
		return PushState{}, invalidStatef("push %s is %s", p.ID, p.Status)
	}
	if p.halted {
		p.mu.Unlock()
		return PushState{}, invalidStatef("push %s is halted", p.ID)
	}
	commitLocked(p, now)
	p.Status = status
	p.EndedAt = now
	e.mu.Lock()
	delete(e.activePushByOwner, p.PlayerID)
	e.mu.Unlock()
	state := pushStateLocked(p)
	p.mu.Unlock()
	e.recorder.PushChanged(state)
	return state, nil
}

// settleCompleted awards territory to both sides' counters and emits the
// distinct completed/lost notifications.
func (e *Engine) settleCompleted(state PushState, now time.Time) {
	e.mu.RLock()
	source := e.countries[state.SourceCountryID]
	target := e.countries[state.TargetCountryID]
	e.mu.RUnlock()
	if source != nil {
		source.mu.Lock()
		source.TerritoryGainedKm2 += state.TerritoryGainedKm2
		source.mu.Unlock()
	}
	if target != nil {
		target.mu.Lock()
		target.TerritoryLostKm2 += state.TerritoryGainedKm2
		target.mu.Unlock()
	}

	wkt, err := geo.CircleWKT(state.Origin, state.DistancePushed, territoryWKTSegments)
	if err != nil {
		e.log.Warn("failed to build territory polygon", "push", state.ID, "error", err)
	}
	e.sink.Broadcast(state.SourceCountryID, events.New(events.TypePushCompleted, now, events.PushCompleted{
		PushID:             state.ID,
		WarID:              state.WarID,
		SourceCountryID:    state.SourceCountryID,
		TargetCountryID:    state.TargetCountryID,
		DistancePushed:     state.DistancePushed,
		TerritoryGainedKm2: state.TerritoryGainedKm2,
		AreaWKT:            wkt,
	}))
	e.sink.Broadcast(state.TargetCountryID, events.New(events.TypePushLost, now, events.PushLost{
		PushID:           state.ID,
		WarID:            state.WarID,
		SourceCountryID:  state.SourceCountryID,
		TargetCountryID:  state.TargetCountryID,
		TerritoryLostKm2: state.TerritoryGainedKm2,
		AreaWKT:          wkt,
	}))
	if source != nil {
		e.recorder.CountryChanged(e.countryState(source))
	}
	if target != nil {
		e.recorder.CountryChanged(e.countryState(target))
	}
	e.log.Info("push completed",
		"pushId", state.ID, "distance", state.DistancePushed, "territoryKm2", state.TerritoryGainedKm2)
}

// defaultTerrain resolves the terrain modifier when the caller leaves it
// unspecified: the target country's modifier, or 1.0.
func (e *Engine) defaultTerrain(targetCountryID string) float64 {
	e.mu.RLock()
	c := e.countries[targetCountryID]
	e.mu.RUnlock()
	if c == nil {
		return 1.0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TerrainModifier <= 0 {
		return 1.0
	}
	return c.TerrainModifier
}
