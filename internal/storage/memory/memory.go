// Package memory is the in-process mirror backend: it keeps the latest state
// copies and the event stream in maps and slices, and exports snapshots as
// JSON files. Used for local mode and tests.
package memory

import (
	"sync"

	"github.com/borderwars/server/internal/config"
	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/game"
)

// EventRecord pairs a delivered event with the room it was scoped to.
type EventRecord struct {
	CountryID string       `json:"countryId,omitempty"`
	Event     events.Event `json:"event"`
}

// Backend mirrors conflict state in memory.
type Backend struct {
	cfg config.MemoryConfig

	mu        sync.RWMutex
	countries map[string]game.CountryState
	players   map[string]game.PlayerState
	wars      map[string]game.WarState
	pushes    map[string]game.PushState
	stream    []EventRecord
	snapshot  *game.Snapshot // last exported or loaded snapshot
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:       cfg,
		countries: make(map[string]game.CountryState),
		players:   make(map[string]game.PlayerState),
		wars:      make(map[string]game.WarState),
		pushes:    make(map[string]game.PushState),
	}
}

func (b *Backend) Init() error {
	return nil
}

// Close exports a final snapshot built from the mirrored state.
func (b *Backend) Close() error {
	b.mu.RLock()
	snap := b.buildSnapshot()
	b.mu.RUnlock()
	return b.ExportSnapshot(snap)
}

func (b *Backend) SaveCountry(s game.CountryState) error {
	b.mu.Lock()
	b.countries[s.ID] = s
	b.mu.Unlock()
	return nil
}

func (b *Backend) SavePlayer(s game.PlayerState) error {
	b.mu.Lock()
	b.players[s.ID] = s
	b.mu.Unlock()
	return nil
}

func (b *Backend) SaveWar(s game.WarState) error {
	b.mu.Lock()
	b.wars[s.ID] = s
	b.mu.Unlock()
	return nil
}

func (b *Backend) SavePush(s game.PushState) error {
	b.mu.Lock()
	b.pushes[s.ID] = s
	b.mu.Unlock()
	return nil
}

func (b *Backend) RecordEvent(countryID string, e events.Event) error {
	b.mu.Lock()
	b.stream = append(b.stream, EventRecord{CountryID: countryID, Event: e})
	b.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded stream.
func (b *Backend) Events() []EventRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]EventRecord(nil), b.stream...)
}

// Country returns the mirrored state for the given country, if present.
func (b *Backend) Country(id string) (game.CountryState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.countries[id]
	return s, ok
}

// War returns the mirrored state for the given war, if present.
func (b *Backend) War(id string) (game.WarState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.wars[id]
	return s, ok
}

// Push returns the mirrored state for the given push, if present.
func (b *Backend) Push(id string) (game.PushState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.pushes[id]
	return s, ok
}

// buildSnapshot assembles a snapshot from the mirrored state. Caller holds at
// least the read lock.
func (b *Backend) buildSnapshot() game.Snapshot {
	var snap game.Snapshot
	for _, c := range b.countries {
		snap.Countries = append(snap.Countries, c)
	}
	for _, p := range b.players {
		snap.Players = append(snap.Players, p)
	}
	for _, w := range b.wars {
		snap.Wars = append(snap.Wars, w)
	}
	for _, p := range b.pushes {
		snap.Pushes = append(snap.Pushes, p)
	}
	return snap
}
