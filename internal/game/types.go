// Package game holds the authoritative in-memory conflict model: countries,
// players, wars and border pushes, the resource ledger, and the state
// machines that mutate them.
//
// Locking is per entity. The acquisition order, outermost first, is:
//
//	ledger account -> war -> push -> country -> player -> engine registry
//
// A ledger account lock is never held across a call into conflict code, and
// the engine registry lock is never held while acquiring an entity lock.
// When two countries must be locked together they are taken in ID order.
package game

import (
	"sync"
	"time"

	"github.com/borderwars/server/internal/geo"
)

// WarStatus is the lifecycle state of a War.
type WarStatus string

const (
	WarActive WarStatus = "active"
	WarEnded  WarStatus = "ended"
	// WarCeasefire is modeled for completeness. No current rule transitions
	// into it.
	WarCeasefire WarStatus = "ceasefire"
)

// PushStatus is the lifecycle state of a BorderPush. Everything except
// PushActive is terminal.
type PushStatus string

const (
	PushActive     PushStatus = "active"
	PushSuccessful PushStatus = "successful"
	PushFailed     PushStatus = "failed"
	PushCancelled  PushStatus = "cancelled"
)

// Country is a claimable territorial entity. Resource balances live in the
// Ledger, keyed by the country ID, not on the struct.
type Country struct {
	mu sync.Mutex

	ID      string
	Name    string
	OwnerID string // empty while unclaimed

	SoldierCount int
	MaxSoldiers  int

	ResourceGenerationRate float64
	DefenseStrength        float64
	TerrainModifier        float64

	IsAtWar    bool
	ActiveWars int

	TerritoryGainedKm2 float64
	TerritoryLostKm2   float64
	WarsWon            int
	WarsLost           int

	halted bool
}

// Player carries the ledger-relevant identity plus position. Cooldown
// bookkeeping for wars and pushes lives in the engine's cooldown cache;
// LastMovement is kept here as well since movement is the player's own
// high-frequency field.
type Player struct {
	mu sync.Mutex

	ID        string
	Name      string
	CountryID string // empty while countryless

	Position     geo.Position
	LastMovement time.Time

	halted bool
}

// War is an active conflict relation between two countries. Wars are never
// deleted; ended wars remain for history.
type War struct {
	mu sync.Mutex

	ID                 string
	AggressorCountryID string
	DefenderCountryID  string
	DeclaredBy         string
	Reason             string

	Status          WarStatus
	WinnerCountryID string

	DeclaredAt time.Time
	EndedAt    time.Time

	halted bool
}

// BorderPush is a time-evolving contest within a War. The RWMutex implements
// the peek/commit split: progress reads take the read lock and compute a
// candidate distance without mutating anything, while joins, defends, commits
// and stops serialize on the write lock.
type BorderPush struct {
	mu sync.RWMutex

	ID       string
	WarID    string
	PlayerID string // initiator

	SourceCountryID string
	TargetCountryID string

	Status PushStatus

	PushStrength       float64
	ResistanceStrength float64
	TerrainModifier    float64
	SupportingSoldiers int
	DefendingSoldiers  int

	DistancePushed     float64 // meters, monotonically non-decreasing while active
	TerritoryGainedKm2 float64
	PushSpeed          float64 // m/s, clamped

	Origin    geo.Position
	Direction float64 // heading, degrees

	StartedAt  time.Time
	LastUpdate time.Time
	EndedAt    time.Time

	supporters map[string]bool
	defenders  map[string]bool

	halted bool
}

// CountryParams configures a new country.
type CountryParams struct {
	Name                   string
	MaxSoldiers            int
	ResourceGenerationRate float64
	DefenseStrength        float64
	TerrainModifier        float64
	InitialResources       int64
}

// Config carries every game tunable. Values come from the config file; tests
// construct it directly.
type Config struct {
	PushThresholdMeters    float64
	PushCost               int64
	WarDeclarationCooldown time.Duration
	PushStartCooldown      time.Duration
	MovementCooldown       time.Duration
	MinPushSpeed           float64
	MaxPushSpeed           float64
	MinResistance          float64
}

// DefaultConfig mirrors the config-file defaults.
func DefaultConfig() Config {
	return Config{
		PushThresholdMeters:    10000,
		PushCost:               10,
		WarDeclarationCooldown: 5 * time.Minute,
		PushStartCooldown:      30 * time.Second,
		MovementCooldown:       2 * time.Second,
		MinPushSpeed:           0.1,
		MaxPushSpeed:           5.0,
		MinResistance:          0.1,
	}
}
