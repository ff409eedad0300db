// Package storage defines the persistence-mirror boundary. The engine is the
// authority; a Backend durably reflects committed state transitions and the
// event stream, without transactions or retries leaking back into the core.
package storage

import (
	"time"

	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/game"
)

// Backend is the interface all mirror implementations must satisfy. Save
// calls are upserts keyed by entity ID; RecordEvent appends.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// State mirror
	SaveCountry(game.CountryState) error
	SavePlayer(game.PlayerState) error
	SaveWar(game.WarState) error
	SavePush(game.PushState) error

	// Event stream; countryID is empty for global-feed events
	RecordEvent(countryID string, e events.Event) error

	// Whole-model snapshots
	ExportSnapshot(game.Snapshot) error
	LoadSnapshot() (game.Snapshot, bool, error)
}

// WriteDurationProvider is an optional interface backends implement to
// expose their last write-cycle duration for monitoring.
type WriteDurationProvider interface {
	GetLastWriteDuration() time.Duration
}

// QueueLengthProvider is an optional interface for backends that buffer
// writes.
type QueueLengthProvider interface {
	QueueLength() int
}
