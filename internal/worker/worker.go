// Package worker bridges the engine to its collaborators: it mirrors entity
// transitions into the storage backend and routes wire commands from the
// dispatcher into engine operations.
package worker

import (
	"log/slog"
	"time"

	"github.com/borderwars/server/internal/game"
	"github.com/borderwars/server/internal/parser"
	"github.com/borderwars/server/internal/storage"
)

// Dependencies holds all dependencies for the worker manager.
type Dependencies struct {
	Engine        *game.Engine
	ParserService *parser.Parser
	Logger        *slog.Logger
}

// Manager implements game.Recorder against a storage backend and owns the
// dispatcher command handlers.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
}

// NewManager creates a new worker manager.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps, backend: backend}
}

// SetEngine wires the engine after construction. The engine and the manager
// reference each other, so one of them has to be attached late.
func (m *Manager) SetEngine(e *game.Engine) {
	m.deps.Engine = e
}

// CountryChanged mirrors a country transition into storage.
func (m *Manager) CountryChanged(s game.CountryState) {
	if err := m.backend.SaveCountry(s); err != nil {
		m.deps.Logger.Error("failed to mirror country", "countryID", s.ID, "error", err)
	}
}

// PlayerChanged mirrors a player transition into storage.
func (m *Manager) PlayerChanged(s game.PlayerState) {
	if err := m.backend.SavePlayer(s); err != nil {
		m.deps.Logger.Error("failed to mirror player", "playerID", s.ID, "error", err)
	}
}

// WarChanged mirrors a war transition into storage.
func (m *Manager) WarChanged(s game.WarState) {
	if err := m.backend.SaveWar(s); err != nil {
		m.deps.Logger.Error("failed to mirror war", "warID", s.ID, "error", err)
	}
}

// PushChanged mirrors a push transition into storage.
func (m *Manager) PushChanged(s game.PushState) {
	if err := m.backend.SavePush(s); err != nil {
		m.deps.Logger.Error("failed to mirror push", "pushID", s.ID, "error", err)
	}
}

// GetLastDBWriteDuration returns the duration of the backend's last write
// cycle, or 0 when the backend does not track it.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(storage.WriteDurationProvider); ok {
		return p.GetLastWriteDuration()
	}
	return 0
}

// WriteQueueLength returns the number of rows staged in the backend, or 0
// when the backend does not queue.
func (m *Manager) WriteQueueLength() int {
	if p, ok := m.backend.(storage.QueueLengthProvider); ok {
		return p.QueueLength()
	}
	return 0
}
