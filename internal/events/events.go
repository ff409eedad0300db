// Package events defines the wire shape of every state-change notification
// the conflict core emits to observers. Payloads carry identifiers and
// derived values only; observers resolve entity details themselves.
package events

import (
	"encoding/json"
	"time"
)

// Type names an event on the wire.
type Type string

const (
	TypeWarDeclared        Type = "war_declared"
	TypeWarEnded           Type = "war_ended"
	TypePushStarted        Type = "push_started"
	TypePushIncoming       Type = "push_incoming"
	TypePushProgress       Type = "push_progress"
	TypePushSupportAdded   Type = "push_support_added"
	TypePushDefenseAdded   Type = "push_defense_added"
	TypePushCompleted      Type = "push_completed"
	TypePushLost           Type = "push_lost"
	TypeResourcesGenerated Type = "resources_generated"
	TypePlayerMoved        Type = "player_moved"
	TypeObserverLeft       Type = "observer_left"
	TypeServerStats        Type = "server_stats"
)

// Event is the envelope delivered to every observer.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// New wraps a payload in an envelope stamped with t.
func New(typ Type, t time.Time, payload any) Event {
	return Event{Type: typ, Timestamp: t, Payload: payload}
}

// Marshal renders the envelope as JSON for transport and storage.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// WarDeclared announces a new active war to both countries and the global
// feed.
type WarDeclared struct {
	WarID              string `json:"warId"`
	AggressorCountryID string `json:"aggressorCountryId"`
	DefenderCountryID  string `json:"defenderCountryId"`
	DeclaredBy         string `json:"declaredBy"`
	Reason             string `json:"reason,omitempty"`
}

// WarEnded announces a war's terminal state. WinnerCountryID is empty when
// the war ended without a winner.
type WarEnded struct {
	WarID              string `json:"warId"`
	AggressorCountryID string `json:"aggressorCountryId"`
	DefenderCountryID  string `json:"defenderCountryId"`
	WinnerCountryID    string `json:"winnerCountryId,omitempty"`
	CancelledPushes    int    `json:"cancelledPushes"`
}

// PushStarted goes to the source country's room; PushIncoming carries the
// same fields to the target country's room.
type PushStarted struct {
	PushID          string  `json:"pushId"`
	WarID           string  `json:"warId"`
	PlayerID        string  `json:"playerId"`
	SourceCountryID string  `json:"sourceCountryId"`
	TargetCountryID string  `json:"targetCountryId"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Direction       float64 `json:"direction"`
	PushSpeed       float64 `json:"pushSpeed"`
}

// PushProgress is emitted to both sides after every committed tick that
// leaves the push active.
type PushProgress struct {
	PushID             string  `json:"pushId"`
	DistancePushed     float64 `json:"distancePushed"`
	TerritoryGainedKm2 float64 `json:"territoryGainedKm2"`
	PushSpeed          float64 `json:"pushSpeed"`
	SupportingSoldiers int     `json:"supportingSoldiers"`
	DefendingSoldiers  int     `json:"defendingSoldiers"`
}

// PushSupportAdded and PushDefenseAdded report a soldier joining either side
// and the recomputed speed.
type PushSupportAdded struct {
	PushID             string  `json:"pushId"`
	PlayerID           string  `json:"playerId"`
	SupportingSoldiers int     `json:"supportingSoldiers"`
	PushStrength       float64 `json:"pushStrength"`
	PushSpeed          float64 `json:"pushSpeed"`
}

type PushDefenseAdded struct {
	PushID             string  `json:"pushId"`
	PlayerID           string  `json:"playerId"`
	DefendingSoldiers  int     `json:"defendingSoldiers"`
	ResistanceStrength float64 `json:"resistanceStrength"`
	PushSpeed          float64 `json:"pushSpeed"`
}

// PushCompleted goes to the gaining side, PushLost to the losing side. Both
// carry the circular-approximation footprint as WKT for rendering.
type PushCompleted struct {
	PushID             string  `json:"pushId"`
	WarID              string  `json:"warId"`
	SourceCountryID    string  `json:"sourceCountryId"`
	TargetCountryID    string  `json:"targetCountryId"`
	DistancePushed     float64 `json:"distancePushed"`
	TerritoryGainedKm2 float64 `json:"territoryGainedKm2"`
	AreaWKT            string  `json:"areaWkt,omitempty"`
}

type PushLost struct {
	PushID           string  `json:"pushId"`
	WarID            string  `json:"warId"`
	SourceCountryID  string  `json:"sourceCountryId"`
	TargetCountryID  string  `json:"targetCountryId"`
	TerritoryLostKm2 float64 `json:"territoryLostKm2"`
	AreaWKT          string  `json:"areaWkt,omitempty"`
}

// ResourcesGenerated is scoped to the generating country's room.
type ResourcesGenerated struct {
	CountryID string `json:"countryId"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
}

// PlayerMoved is scoped to the player's country room. Distance is the planar
// meters covered since the previous position, zero on the first move.
type PlayerMoved struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Distance float64 `json:"distance"`
}

// ObserverLeft notifies the remaining members of a room about a departure.
type ObserverLeft struct {
	CountryID string `json:"countryId"`
	Remaining int    `json:"remaining"`
}

// ServerStats is a periodic global-feed aggregate from the monitor loop.
type ServerStats struct {
	ConnectedObservers int `json:"connectedObservers"`
	ActiveRooms        int `json:"activeRooms"`
	ActivePushes       int `json:"activePushes"`
	ActiveWars         int `json:"activeWars"`
	WriteQueueLength   int `json:"writeQueueLength"`
}
