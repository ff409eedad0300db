package worker

import (
	"log/slog"

	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/game"
	"github.com/borderwars/server/internal/storage"
)

// RecordingSink tees engine events into the storage backend's event stream
// before forwarding them to the live fan-out. An empty country ID marks a
// global event.
type RecordingSink struct {
	next    game.EventSink
	backend storage.Backend
	log     *slog.Logger
}

// NewRecordingSink wraps a sink with event persistence.
func NewRecordingSink(next game.EventSink, backend storage.Backend, log *slog.Logger) *RecordingSink {
	if log == nil {
		log = slog.Default()
	}
	return &RecordingSink{next: next, backend: backend, log: log}
}

func (s *RecordingSink) Broadcast(countryID string, e events.Event) {
	if err := s.backend.RecordEvent(countryID, e); err != nil {
		s.log.Error("failed to record event", "type", e.Type, "countryID", countryID, "error", err)
	}
	s.next.Broadcast(countryID, e)
}

func (s *RecordingSink) BroadcastGlobal(e events.Event) {
	if err := s.backend.RecordEvent("", e); err != nil {
		s.log.Error("failed to record event", "type", e.Type, "error", err)
	}
	s.next.BroadcastGlobal(e)
}
