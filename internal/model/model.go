// Package model defines the database mirror of the in-memory conflict state.
// The engine is authoritative; these rows durably reflect committed state
// transitions and the event stream.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every struct representing a table in the schema.
var DatabaseModels = []interface{}{
	&Country{},
	&Player{},
	&War{},
	&BorderPush{},
	&EventRow{},
	&ServerPerformance{},
}

// Country mirrors a country's last committed state.
type Country struct {
	ID        string `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name    string `json:"name" gorm:"size:127"`
	OwnerID string `json:"ownerId" gorm:"size:64;index"`

	SoldierCount int `json:"soldierCount"`
	MaxSoldiers  int `json:"maxSoldiers"`

	Resources              int64   `json:"resources"`
	ResourceGenerationRate float64 `json:"resourceGenerationRate"`
	DefenseStrength        float64 `json:"defenseStrength"`
	TerrainModifier        float64 `json:"terrainModifier"`

	IsAtWar    bool `json:"isAtWar"`
	ActiveWars int  `json:"activeWars"`

	TerritoryGainedKm2 float64 `json:"territoryGainedKm2"`
	TerritoryLostKm2   float64 `json:"territoryLostKm2"`
	WarsWon            int     `json:"warsWon"`
	WarsLost           int     `json:"warsLost"`
}

func (*Country) TableName() string {
	return "countries"
}

// Player mirrors a player's last committed state.
type Player struct {
	ID        string `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name      string `json:"name" gorm:"size:127"`
	CountryID string `json:"countryId" gorm:"size:64;index"`

	Resources    int64     `json:"resources"`
	PositionX    float64   `json:"positionX"`
	PositionY    float64   `json:"positionY"`
	PositionZ    float64   `json:"positionZ"`
	LastMovement time.Time `json:"lastMovement"`
}

func (*Player) TableName() string {
	return "players"
}

// War rows are never deleted; ended wars remain for history.
type War struct {
	ID        string `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time

	AggressorCountryID string `json:"aggressorCountryId" gorm:"size:64;index"`
	DefenderCountryID  string `json:"defenderCountryId" gorm:"size:64;index"`
	DeclaredBy         string `json:"declaredBy" gorm:"size:64;index"`
	Reason             string `json:"reason" gorm:"size:255"`

	Status          string `json:"status" gorm:"size:16;index"`
	WinnerCountryID string `json:"winnerCountryId" gorm:"size:64"`

	DeclaredAt time.Time  `json:"declaredAt"`
	EndedAt    *time.Time `json:"endedAt"`
}

func (*War) TableName() string {
	return "wars"
}

// BorderPush mirrors a push's last committed state, including its supporter
// and defender rosters as JSON.
type BorderPush struct {
	ID        string `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time

	WarID    string `json:"warId" gorm:"size:64;index"`
	PlayerID string `json:"playerId" gorm:"size:64;index"`

	SourceCountryID string `json:"sourceCountryId" gorm:"size:64;index"`
	TargetCountryID string `json:"targetCountryId" gorm:"size:64;index"`

	Status string `json:"status" gorm:"size:16;index"`

	PushStrength       float64 `json:"pushStrength"`
	ResistanceStrength float64 `json:"resistanceStrength"`
	TerrainModifier    float64 `json:"terrainModifier"`
	SupportingSoldiers int     `json:"supportingSoldiers"`
	DefendingSoldiers  int     `json:"defendingSoldiers"`

	DistancePushed     float64 `json:"distancePushed"`
	TerritoryGainedKm2 float64 `json:"territoryGainedKm2"`
	PushSpeed          float64 `json:"pushSpeed"`

	OriginX   float64 `json:"originX"`
	OriginY   float64 `json:"originY"`
	Direction float64 `json:"direction"`

	StartedAt  time.Time  `json:"startedAt"`
	LastUpdate time.Time  `json:"lastUpdate"`
	EndedAt    *time.Time `json:"endedAt"`

	Supporters datatypes.JSON `json:"supporters"`
	Defenders  datatypes.JSON `json:"defenders"`
}

func (*BorderPush) TableName() string {
	return "border_pushes"
}

// EventRow is the append-only event stream. Payloads keep their wire shape as
// JSON.
type EventRow struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	Type      string         `json:"type" gorm:"size:32;index"`
	CountryID string         `json:"countryId" gorm:"size:64;index"`
	Timestamp time.Time      `json:"timestamp" gorm:"index"`
	Payload   datatypes.JSON `json:"payload"`
}

func (*EventRow) TableName() string {
	return "event_rows"
}

// ServerPerformance records one monitor sample.
type ServerPerformance struct {
	ID   uint      `gorm:"primarykey"`
	Time time.Time `json:"time" gorm:"index"`

	ConnectedObservers  int     `json:"connectedObservers"`
	ActiveRooms         int     `json:"activeRooms"`
	ActiveWars          int     `json:"activeWars"`
	ActivePushes        int     `json:"activePushes"`
	WriteQueueLength    int     `json:"writeQueueLength"`
	LastWriteDurationMs float32 `json:"lastWriteDurationMs"`
	ConflictTickMs      float32 `json:"conflictTickMs"`
	EconomyTickMs       float32 `json:"economyTickMs"`
}

func (*ServerPerformance) TableName() string {
	return "server_performances"
}
