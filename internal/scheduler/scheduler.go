// Package scheduler drives the periodic game loops. The conflict tick commits
// push progress; the economy tick credits resource generation. Each loop is
// its own goroutine with its own interval.
package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/borderwars/server/internal/game"
)

// Dependencies holds the scheduler's collaborators.
type Dependencies struct {
	Engine *game.Engine
	Logger *slog.Logger

	ConflictInterval time.Duration
	EconomyInterval  time.Duration
}

// Service runs the conflict and economy ticks.
type Service struct {
	deps Dependencies

	lastConflictNs atomic.Int64
	lastEconomyNs  atomic.Int64

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a scheduler. Intervals default to 5s conflict and
// 60s economy when unset.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ConflictInterval <= 0 {
		deps.ConflictInterval = 5 * time.Second
	}
	if deps.EconomyInterval <= 0 {
		deps.EconomyInterval = 60 * time.Second
	}
	return &Service{deps: deps}
}

// Start launches both tick loops. Calling Start on a running service is a
// no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})

	s.wg.Add(2)
	go s.loop(s.stopChan, s.deps.ConflictInterval, s.RunConflictTick)
	go s.loop(s.stopChan, s.deps.EconomyInterval, s.RunEconomyTick)

	s.deps.Logger.Info("scheduler started",
		"conflictInterval", s.deps.ConflictInterval,
		"economyInterval", s.deps.EconomyInterval)
}

// Stop halts both loops and waits for in-flight ticks to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.deps.Logger.Info("scheduler stopped")
}

// IsRunning reports whether the loops are active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *Service) loop(stop <-chan struct{}, interval time.Duration, tick func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// RunConflictTick commits progress on every active push once. One failing
// push never blocks the rest of the sweep.
func (s *Service) RunConflictTick() {
	start := time.Now()
	for _, id := range s.deps.Engine.ActivePushIDs() {
		if _, err := s.deps.Engine.CommitProgress(id); err != nil {
			// A push can finish between the listing and the commit; that
			// is not worth a log line.
			if game.KindOf(err) == game.KindInvalidState {
				continue
			}
			s.deps.Logger.Error("conflict tick failed for push", "pushID", id, "error", err)
		}
	}
	s.lastConflictNs.Store(time.Since(start).Nanoseconds())
}

// RunEconomyTick credits generation for every claimed country once.
func (s *Service) RunEconomyTick() {
	start := time.Now()
	for _, id := range s.deps.Engine.ClaimedCountryIDs() {
		if _, err := s.deps.Engine.GenerateResources(id); err != nil {
			s.deps.Logger.Error("economy tick failed for country", "countryID", id, "error", err)
		}
	}
	s.lastEconomyNs.Store(time.Since(start).Nanoseconds())
}

// LastConflictTickDuration returns how long the most recent conflict sweep
// took.
func (s *Service) LastConflictTickDuration() time.Duration {
	return time.Duration(s.lastConflictNs.Load())
}

// LastEconomyTickDuration returns how long the most recent economy sweep
// took.
func (s *Service) LastEconomyTickDuration() time.Duration {
	return time.Duration(s.lastEconomyNs.Load())
}
