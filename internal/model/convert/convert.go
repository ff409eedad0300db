// Package convert maps engine state copies to GORM models and back.
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/game"
	"github.com/borderwars/server/internal/geo"
	"github.com/borderwars/server/internal/model"
)

func endedAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CountryToModel converts an engine country state to its mirror row.
func CountryToModel(s game.CountryState) model.Country {
	return model.Country{
		ID:                     s.ID,
		Name:                   s.Name,
		OwnerID:                s.OwnerID,
		SoldierCount:           s.SoldierCount,
		MaxSoldiers:            s.MaxSoldiers,
		Resources:              s.Resources,
		ResourceGenerationRate: s.ResourceGenerationRate,
		DefenseStrength:        s.DefenseStrength,
		TerrainModifier:        s.TerrainModifier,
		IsAtWar:                s.IsAtWar,
		ActiveWars:             s.ActiveWars,
		TerritoryGainedKm2:     s.TerritoryGainedKm2,
		TerritoryLostKm2:       s.TerritoryLostKm2,
		WarsWon:                s.WarsWon,
		WarsLost:               s.WarsLost,
	}
}

// CountryToState converts a mirror row back to engine state.
func CountryToState(c model.Country) game.CountryState {
	return game.CountryState{
		ID:                     c.ID,
		Name:                   c.Name,
		OwnerID:                c.OwnerID,
		SoldierCount:           c.SoldierCount,
		MaxSoldiers:            c.MaxSoldiers,
		Resources:              c.Resources,
		ResourceGenerationRate: c.ResourceGenerationRate,
		DefenseStrength:        c.DefenseStrength,
		TerrainModifier:        c.TerrainModifier,
		IsAtWar:                c.IsAtWar,
		ActiveWars:             c.ActiveWars,
		TerritoryGainedKm2:     c.TerritoryGainedKm2,
		TerritoryLostKm2:       c.TerritoryLostKm2,
		WarsWon:                c.WarsWon,
		WarsLost:               c.WarsLost,
	}
}

// PlayerToModel converts an engine player state to its mirror row.
func PlayerToModel(s game.PlayerState) model.Player {
	return model.Player{
		ID:           s.ID,
		Name:         s.Name,
		CountryID:    s.CountryID,
		Resources:    s.Resources,
		PositionX:    s.Position.X,
		PositionY:    s.Position.Y,
		PositionZ:    s.Position.Z,
		LastMovement: s.LastMovement,
	}
}

// PlayerToState converts a mirror row back to engine state.
func PlayerToState(p model.Player) game.PlayerState {
	return game.PlayerState{
		ID:           p.ID,
		Name:         p.Name,
		CountryID:    p.CountryID,
		Resources:    p.Resources,
		Position:     geo.Position{X: p.PositionX, Y: p.PositionY, Z: p.PositionZ},
		LastMovement: p.LastMovement,
	}
}

// WarToModel converts an engine war state to its mirror row.
func WarToModel(s game.WarState) model.War {
	return model.War{
		ID:                 s.ID,
		AggressorCountryID: s.AggressorCountryID,
		DefenderCountryID:  s.DefenderCountryID,
		DeclaredBy:         s.DeclaredBy,
		Reason:             s.Reason,
		Status:             string(s.Status),
		WinnerCountryID:    s.WinnerCountryID,
		DeclaredAt:         s.DeclaredAt,
		EndedAt:            endedAt(s.EndedAt),
	}
}

// WarToState converts a mirror row back to engine state.
func WarToState(w model.War) game.WarState {
	s := game.WarState{
		ID:                 w.ID,
		AggressorCountryID: w.AggressorCountryID,
		DefenderCountryID:  w.DefenderCountryID,
		DeclaredBy:         w.DeclaredBy,
		Reason:             w.Reason,
		Status:             game.WarStatus(w.Status),
		WinnerCountryID:    w.WinnerCountryID,
		DeclaredAt:         w.DeclaredAt,
	}
	if w.EndedAt != nil {
		s.EndedAt = *w.EndedAt
	}
	return s
}

// PushToModel converts an engine push state to its mirror row. Roster slices
// become JSON columns.
func PushToModel(s game.PushState) (model.BorderPush, error) {
	supporters, err := json.Marshal(s.Supporters)
	if err != nil {
		return model.BorderPush{}, fmt.Errorf("marshalling supporters: %w", err)
	}
	defenders, err := json.Marshal(s.Defenders)
	if err != nil {
		return model.BorderPush{}, fmt.Errorf("marshalling defenders: %w", err)
	}
	return model.BorderPush{
		ID:                 s.ID,
		WarID:              s.WarID,
		PlayerID:           s.PlayerID,
		SourceCountryID:    s.SourceCountryID,
		TargetCountryID:    s.TargetCountryID,
		Status:             string(s.Status),
		PushStrength:       s.PushStrength,
		ResistanceStrength: s.ResistanceStrength,
		TerrainModifier:    s.TerrainModifier,
		SupportingSoldiers: s.SupportingSoldiers,
		DefendingSoldiers:  s.DefendingSoldiers,
		DistancePushed:     s.DistancePushed,
		TerritoryGainedKm2: s.TerritoryGainedKm2,
		PushSpeed:          s.PushSpeed,
		OriginX:            s.Origin.X,
		OriginY:            s.Origin.Y,
		Direction:          s.Direction,
		StartedAt:          s.StartedAt,
		LastUpdate:         s.LastUpdate,
		EndedAt:            endedAt(s.EndedAt),
		Supporters:         supporters,
		Defenders:          defenders,
	}, nil
}

// PushToState converts a mirror row back to engine state.
func PushToState(p model.BorderPush) (game.PushState, error) {
	var supporters, defenders []string
	if len(p.Supporters) > 0 {
		if err := json.Unmarshal(p.Supporters, &supporters); err != nil {
			return game.PushState{}, fmt.Errorf("unmarshalling supporters: %w", err)
		}
	}
	if len(p.Defenders) > 0 {
		if err := json.Unmarshal(p.Defenders, &defenders); err != nil {
			return game.PushState{}, fmt.Errorf("unmarshalling defenders: %w", err)
		}
	}
	s := game.PushState{
		ID:                 p.ID,
		WarID:              p.WarID,
		PlayerID:           p.PlayerID,
		SourceCountryID:    p.SourceCountryID,
		TargetCountryID:    p.TargetCountryID,
		Status:             game.PushStatus(p.Status),
		PushStrength:       p.PushStrength,
		ResistanceStrength: p.ResistanceStrength,
		TerrainModifier:    p.TerrainModifier,
		SupportingSoldiers: p.SupportingSoldiers,
		DefendingSoldiers:  p.DefendingSoldiers,
		DistancePushed:     p.DistancePushed,
		TerritoryGainedKm2: p.TerritoryGainedKm2,
		PushSpeed:          p.PushSpeed,
		Origin:             geo.Position{X: p.OriginX, Y: p.OriginY},
		Direction:          p.Direction,
		StartedAt:          p.StartedAt,
		LastUpdate:         p.LastUpdate,
		Supporters:         supporters,
		Defenders:          defenders,
	}
	if p.EndedAt != nil {
		s.EndedAt = *p.EndedAt
	}
	return s, nil
}

// EventToRow converts a broadcast event to its append-only stream row.
// countryID is empty for global-feed events.
func EventToRow(countryID string, e events.Event) (model.EventRow, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return model.EventRow{}, fmt.Errorf("marshalling event payload: %w", err)
	}
	return model.EventRow{
		Type:      string(e.Type),
		CountryID: countryID,
		Timestamp: e.Timestamp,
		Payload:   payload,
	}, nil
}
