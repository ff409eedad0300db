package game

import (
	"sort"
	"time"

	"github.com/borderwars/server/internal/geo"
)

// CountryState is a value copy of a country, including its ledger balance.
// These copies are what crosses the engine boundary: events, storage mirror,
// snapshots.
type CountryState struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	OwnerID                string  `json:"ownerId,omitempty"`
	SoldierCount           int     `json:"soldierCount"`
	MaxSoldiers            int     `json:"maxSoldiers"`
	Resources              int64   `json:"resources"`
	ResourceGenerationRate float64 `json:"resourceGenerationRate"`
	DefenseStrength        float64 `json:"defenseStrength"`
	TerrainModifier        float64 `json:"terrainModifier"`
	IsAtWar                bool    `json:"isAtWar"`
	ActiveWars             int     `json:"activeWars"`
	TerritoryGainedKm2     float64 `json:"territoryGainedKm2"`
	TerritoryLostKm2       float64 `json:"territoryLostKm2"`
	WarsWon                int     `json:"warsWon"`
	WarsLost               int     `json:"warsLost"`
	Halted                 bool    `json:"halted,omitempty"`
}

type PlayerState struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	CountryID    string       `json:"countryId,omitempty"`
	Resources    int64        `json:"resources"`
	Position     geo.Position `json:"position"`
	LastMovement time.Time    `json:"lastMovement"`
	Halted       bool         `json:"halted,omitempty"`
}

type WarState struct {
	ID                 string    `json:"id"`
	AggressorCountryID string    `json:"aggressorCountryId"`
	DefenderCountryID  string    `json:"defenderCountryId"`
	DeclaredBy         string    `json:"declaredBy"`
	Reason             string    `json:"reason,omitempty"`
	Status             WarStatus `json:"status"`
	WinnerCountryID    string    `json:"winnerCountryId,omitempty"`
	DeclaredAt         time.Time `json:"declaredAt"`
	EndedAt            time.Time `json:"endedAt,omitempty"`
	Halted             bool      `json:"halted,omitempty"`
}

type PushState struct {
	ID                 string       `json:"id"`
	WarID              string       `json:"warId"`
	PlayerID           string       `json:"playerId"`
	SourceCountryID    string       `json:"sourceCountryId"`
	TargetCountryID    string       `json:"targetCountryId"`
	Status             PushStatus   `json:"status"`
	PushStrength       float64      `json:"pushStrength"`
	ResistanceStrength float64      `json:"resistanceStrength"`
	TerrainModifier    float64      `json:"terrainModifier"`
	SupportingSoldiers int          `json:"supportingSoldiers"`
	DefendingSoldiers  int          `json:"defendingSoldiers"`
	DistancePushed     float64      `json:"distancePushed"`
	TerritoryGainedKm2 float64      `json:"territoryGainedKm2"`
	PushSpeed          float64      `json:"pushSpeed"`
	Origin             geo.Position `json:"origin"`
	Direction          float64      `json:"direction"`
	StartedAt          time.Time    `json:"startedAt"`
	LastUpdate         time.Time    `json:"lastUpdate"`
	EndedAt            time.Time    `json:"endedAt,omitempty"`
	Supporters         []string     `json:"supporters"`
	Defenders          []string     `json:"defenders"`
	Halted             bool         `json:"halted,omitempty"`
}

// Snapshot is a consistent-enough export of the whole model. Entities are
// copied one at a time under their own locks; cross-entity consistency is
// repaired on restore rather than guaranteed at capture.
type Snapshot struct {
	TakenAt   time.Time      `json:"takenAt"`
	Countries []CountryState `json:"countries"`
	Players   []PlayerState  `json:"players"`
	Wars      []WarState     `json:"wars"`
	Pushes    []PushState    `json:"pushes"`
}

func (e *Engine) countryState(c *Country) CountryState {
	// Balance first: ledger account locks are never acquired while an entity
	// lock is held.
	balance := e.ledger.Balance(c.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountryState{
		ID:                     c.ID,
		Name:                   c.Name,
		OwnerID:                c.OwnerID,
		SoldierCount:           c.SoldierCount,
		MaxSoldiers:            c.MaxSoldiers,
		Resources:              balance,
		ResourceGenerationRate: c.ResourceGenerationRate,
		DefenseStrength:        c.DefenseStrength,
		TerrainModifier:        c.TerrainModifier,
		IsAtWar:                c.IsAtWar,
		ActiveWars:             c.ActiveWars,
		TerritoryGainedKm2:     c.TerritoryGainedKm2,
		TerritoryLostKm2:       c.TerritoryLostKm2,
		WarsWon:                c.WarsWon,
		WarsLost:               c.WarsLost,
		Halted:                 c.halted,
	}
}

func (e *Engine) playerState(p *Player) PlayerState {
	balance := e.ledger.Balance(p.ID)
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlayerState{
		ID:           p.ID,
		Name:         p.Name,
		CountryID:    p.CountryID,
		Resources:    balance,
		Position:     p.Position,
		LastMovement: p.LastMovement,
		Halted:       p.halted,
	}
}

func (e *Engine) warState(w *War) WarState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WarState{
		ID:                 w.ID,
		AggressorCountryID: w.AggressorCountryID,
		DefenderCountryID:  w.DefenderCountryID,
		DeclaredBy:         w.DeclaredBy,
		Reason:             w.Reason,
		Status:             w.Status,
		WinnerCountryID:    w.WinnerCountryID,
		DeclaredAt:         w.DeclaredAt,
		EndedAt:            w.EndedAt,
		Halted:             w.halted,
	}
}

func (e *Engine) pushState(p *BorderPush) PushState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pushStateLocked(p)
}

// pushStateLocked copies push state. Caller holds at least the read lock.
func pushStateLocked(p *BorderPush) PushState {
	return PushState{
		ID:                 p.ID,
		WarID:              p.WarID,
		PlayerID:           p.PlayerID,
		SourceCountryID:    p.SourceCountryID,
		TargetCountryID:    p.TargetCountryID,
		Status:             p.Status,
		PushStrength:       p.PushStrength,
		ResistanceStrength: p.ResistanceStrength,
		TerrainModifier:    p.TerrainModifier,
		SupportingSoldiers: p.SupportingSoldiers,
		DefendingSoldiers:  p.DefendingSoldiers,
		DistancePushed:     p.DistancePushed,
		TerritoryGainedKm2: p.TerritoryGainedKm2,
		PushSpeed:          p.PushSpeed,
		Origin:             p.Origin,
		Direction:          p.Direction,
		StartedAt:          p.StartedAt,
		LastUpdate:         p.LastUpdate,
		EndedAt:            p.EndedAt,
		Supporters:         sortedKeys(p.supporters),
		Defenders:          sortedKeys(p.defenders),
		Halted:             p.halted,
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot exports the whole model, deterministically ordered by ID.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	countries := make([]*Country, 0, len(e.countries))
	for _, c := range e.countries {
		countries = append(countries, c)
	}
	players := make([]*Player, 0, len(e.players))
	for _, p := range e.players {
		players = append(players, p)
	}
	wars := make([]*War, 0, len(e.wars))
	for _, w := range e.wars {
		wars = append(wars, w)
	}
	pushes := make([]*BorderPush, 0, len(e.pushes))
	for _, p := range e.pushes {
		pushes = append(pushes, p)
	}
	e.mu.RUnlock()

	s := Snapshot{TakenAt: e.clock()}
	for _, c := range countries {
		s.Countries = append(s.Countries, e.countryState(c))
	}
	for _, p := range players {
		s.Players = append(s.Players, e.playerState(p))
	}
	for _, w := range wars {
		s.Wars = append(s.Wars, e.warState(w))
	}
	for _, p := range pushes {
		s.Pushes = append(s.Pushes, e.pushState(p))
	}
	sort.Slice(s.Countries, func(i, j int) bool { return s.Countries[i].ID < s.Countries[j].ID })
	sort.Slice(s.Players, func(i, j int) bool { return s.Players[i].ID < s.Players[j].ID })
	sort.Slice(s.Wars, func(i, j int) bool { return s.Wars[i].ID < s.Wars[j].ID })
	sort.Slice(s.Pushes, func(i, j int) bool { return s.Pushes[i].ID < s.Pushes[j].ID })
	return s
}

// Restore replaces the whole model with the snapshot's content, repairing
// invariant violations instead of importing them: an active push whose war is
// missing or not active becomes cancelled, a second active push for the same
// player becomes cancelled, country war counters are recomputed from the
// wars actually restored, and negative balances halt the account.
func (e *Engine) Restore(s Snapshot) error {
	now := e.clock()

	countries := make(map[string]*Country, len(s.Countries))
	for _, cs := range s.Countries {
		countries[cs.ID] = &Country{
			ID:                     cs.ID,
			Name:                   cs.Name,
			OwnerID:                cs.OwnerID,
			SoldierCount:           cs.SoldierCount,
			MaxSoldiers:            cs.MaxSoldiers,
			ResourceGenerationRate: cs.ResourceGenerationRate,
			DefenseStrength:        cs.DefenseStrength,
			TerrainModifier:        cs.TerrainModifier,
			TerritoryGainedKm2:     cs.TerritoryGainedKm2,
			TerritoryLostKm2:       cs.TerritoryLostKm2,
			WarsWon:                cs.WarsWon,
			WarsLost:               cs.WarsLost,
			halted:                 cs.Halted,
		}
		e.ledger.Restore(cs.ID, cs.Resources)
		if cs.Resources < 0 {
			e.log.Error("negative balance in snapshot, account halted", "entityId", cs.ID)
		}
	}

	players := make(map[string]*Player, len(s.Players))
	for _, ps := range s.Players {
		players[ps.ID] = &Player{
			ID:           ps.ID,
			Name:         ps.Name,
			CountryID:    ps.CountryID,
			Position:     ps.Position,
			LastMovement: ps.LastMovement,
			halted:       ps.Halted,
		}
		e.ledger.Restore(ps.ID, ps.Resources)
		if ps.Resources < 0 {
			e.log.Error("negative balance in snapshot, account halted", "entityId", ps.ID)
		}
	}

	wars := make(map[string]*War, len(s.Wars))
	warByPair := make(map[string]string)
	activeWarsPerCountry := make(map[string]int)
	for _, ws := range s.Wars {
		w := &War{
			ID:                 ws.ID,
			AggressorCountryID: ws.AggressorCountryID,
			DefenderCountryID:  ws.DefenderCountryID,
			DeclaredBy:         ws.DeclaredBy,
			Reason:             ws.Reason,
			Status:             ws.Status,
			WinnerCountryID:    ws.WinnerCountryID,
			DeclaredAt:         ws.DeclaredAt,
			EndedAt:            ws.EndedAt,
			halted:             ws.Halted,
		}
		if w.Status == WarActive {
			key := pairKey(w.AggressorCountryID, w.DefenderCountryID)
			if _, dup := warByPair[key]; dup {
				w.Status = WarEnded
				w.EndedAt = now
				e.log.Warn("duplicate active war in snapshot, ended", "warId", w.ID)
			} else {
				warByPair[key] = w.ID
				activeWarsPerCountry[w.AggressorCountryID]++
				activeWarsPerCountry[w.DefenderCountryID]++
			}
		}
		wars[w.ID] = w
	}
	for id, c := range countries {
		c.ActiveWars = activeWarsPerCountry[id]
		c.IsAtWar = c.ActiveWars > 0
	}

	pushes := make(map[string]*BorderPush, len(s.Pushes))
	pushByOwner := make(map[string]string)
	pushesByWar := make(map[string][]string)
	for _, ps := range s.Pushes {
		p := &BorderPush{
			ID:                 ps.ID,
			WarID:              ps.WarID,
			PlayerID:           ps.PlayerID,
			SourceCountryID:    ps.SourceCountryID,
			TargetCountryID:    ps.TargetCountryID,
			Status:             ps.Status,
			PushStrength:       ps.PushStrength,
			ResistanceStrength: ps.ResistanceStrength,
			TerrainModifier:    ps.TerrainModifier,
			SupportingSoldiers: ps.SupportingSoldiers,
			DefendingSoldiers:  ps.DefendingSoldiers,
			DistancePushed:     ps.DistancePushed,
			TerritoryGainedKm2: ps.TerritoryGainedKm2,
			PushSpeed:          ps.PushSpeed,
			Origin:             ps.Origin,
			Direction:          ps.Direction,
			StartedAt:          ps.StartedAt,
			LastUpdate:         ps.LastUpdate,
			EndedAt:            ps.EndedAt,
			supporters:         make(map[string]bool, len(ps.Supporters)),
			defenders:          make(map[string]bool, len(ps.Defenders)),
			halted:             ps.Halted,
		}
		for _, id := range ps.Supporters {
			p.supporters[id] = true
		}
		for _, id := range ps.Defenders {
			p.defenders[id] = true
		}
		p.supporters[p.PlayerID] = true

		if p.Status == PushActive {
			w := wars[p.WarID]
			switch {
			case w == nil || w.Status != WarActive:
				p.Status = PushCancelled
				p.EndedAt = now
				e.log.Warn("active push without active war in snapshot, cancelled", "pushId", p.ID, "warId", p.WarID)
			case pushByOwner[p.PlayerID] != "":
				p.Status = PushCancelled
				p.EndedAt = now
				e.log.Warn("duplicate active push for player in snapshot, cancelled", "pushId", p.ID, "playerId", p.PlayerID)
			default:
				pushByOwner[p.PlayerID] = p.ID
			}
		}
		pushes[p.ID] = p
		pushesByWar[p.WarID] = append(pushesByWar[p.WarID], p.ID)
	}

	e.mu.Lock()
	e.countries = countries
	e.players = players
	e.wars = wars
	e.pushes = pushes
	e.activeWarByPair = warByPair
	e.activePushByOwner = pushByOwner
	e.pushesByWar = pushesByWar
	e.mu.Unlock()
	e.cooldowns.Reset()
	e.log.Info("state restored",
		"countries", len(countries), "players", len(players), "wars", len(wars), "pushes", len(pushes))
	return nil
}
