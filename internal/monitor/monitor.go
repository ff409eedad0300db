// Package monitor samples server health on an interval: observer counts from
// the hub, conflict counters from the engine, write backlog from the worker,
// and tick timings from the scheduler. Each sample goes to the global event
// feed, InfluxDB, and the database.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/game"
	"github.com/borderwars/server/internal/influx"
	"github.com/borderwars/server/internal/model"
)

func perfRow(stats events.ServerStats, lastWrite, conflictTick, economyTick time.Duration, now time.Time) model.ServerPerformance {
	return model.ServerPerformance{
		Time:                now,
		ConnectedObservers:  stats.ConnectedObservers,
		ActiveRooms:         stats.ActiveRooms,
		ActiveWars:          stats.ActiveWars,
		ActivePushes:        stats.ActivePushes,
		WriteQueueLength:    stats.WriteQueueLength,
		LastWriteDurationMs: float32(lastWrite.Microseconds()) / 1000.0,
		ConflictTickMs:      float32(conflictTick.Microseconds()) / 1000.0,
		EconomyTickMs:       float32(economyTick.Microseconds()) / 1000.0,
	}
}

// HubStats reports live observer counts.
type HubStats interface {
	Stats() (observers, rooms int)
}

// EngineStats reports active conflict counts.
type EngineStats interface {
	Stats() (activeWars, activePushes int)
}

// WorkerStats reports the storage mirror's backlog and write timing.
type WorkerStats interface {
	GetLastDBWriteDuration() time.Duration
	WriteQueueLength() int
}

// TickStats reports the scheduler's last sweep durations.
type TickStats interface {
	LastConflictTickDuration() time.Duration
	LastEconomyTickDuration() time.Duration
}

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	Hub       HubStats
	Engine    EngineStats
	Worker    WorkerStats
	Scheduler TickStats
	Sink      game.EventSink
	Influx    *influx.Manager
	DB        *gorm.DB
	Logger    *slog.Logger

	ServerName      string
	Interval        time.Duration
	IsDatabaseValid func() bool
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service. The interval defaults to 10s.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	if deps.IsDatabaseValid == nil {
		deps.IsDatabaseValid = func() bool { return false }
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample collects one stats snapshot and distributes it.
func (s *Service) Sample(now time.Time) events.ServerStats {
	stats := events.ServerStats{}
	if s.deps.Hub != nil {
		stats.ConnectedObservers, stats.ActiveRooms = s.deps.Hub.Stats()
	}
	if s.deps.Engine != nil {
		stats.ActiveWars, stats.ActivePushes = s.deps.Engine.Stats()
	}

	var lastWrite, conflictTick, economyTick time.Duration
	if s.deps.Worker != nil {
		lastWrite = s.deps.Worker.GetLastDBWriteDuration()
		stats.WriteQueueLength = s.deps.Worker.WriteQueueLength()
	}
	if s.deps.Scheduler != nil {
		conflictTick = s.deps.Scheduler.LastConflictTickDuration()
		economyTick = s.deps.Scheduler.LastEconomyTickDuration()
	}

	if s.deps.Sink != nil {
		s.deps.Sink.BroadcastGlobal(events.New(events.TypeServerStats, now, stats))
	}

	if s.deps.Influx != nil {
		ctx := context.Background()
		if err := s.deps.Influx.WritePoint(ctx, influx.BucketServerPerformance,
			influx.ServerStatsPoint(s.deps.ServerName, stats, lastWrite, now)); err != nil {
			s.deps.Logger.Error("failed to write server stats point", "error", err)
		}
		if err := s.deps.Influx.WritePoint(ctx, influx.BucketConflictPerformance,
			influx.TickDurationsPoint(s.deps.ServerName, conflictTick, economyTick, now)); err != nil {
			s.deps.Logger.Error("failed to write tick durations point", "error", err)
		}
	}

	if s.deps.DB != nil && s.deps.IsDatabaseValid() {
		row := perfRow(stats, lastWrite, conflictTick, economyTick, now)
		if err := s.deps.DB.Create(&row).Error; err != nil {
			s.deps.Logger.Error("failed to write performance row", "error", err)
		}
	}

	s.deps.Logger.Debug("server stats",
		"observers", stats.ConnectedObservers,
		"rooms", stats.ActiveRooms,
		"activeWars", stats.ActiveWars,
		"activePushes", stats.ActivePushes,
		"writeQueue", stats.WriteQueueLength)

	return stats
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case now := <-ticker.C:
				s.Sample(now)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
