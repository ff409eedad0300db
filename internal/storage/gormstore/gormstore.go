// Package gormstore is the database mirror backend. Save calls stage rows in
// write queues; a background loop drains them in batches so a slow database
// never blocks the engine or the ticks.
package gormstore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm/clause"

	"github.com/borderwars/server/internal/database"
	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/game"
	"github.com/borderwars/server/internal/model"
	"github.com/borderwars/server/internal/model/convert"
	"github.com/borderwars/server/internal/queue"
)

// DefaultFlushInterval is how often staged rows are written when the caller
// does not override it.
const DefaultFlushInterval = 2 * time.Second

// Backend mirrors conflict state through GORM.
type Backend struct {
	db            *database.Manager
	log           zerolog.Logger
	flushInterval time.Duration

	countries *queue.Queue[model.Country]
	players   *queue.Queue[model.Player]
	wars      *queue.Queue[model.War]
	pushes    *queue.Queue[model.BorderPush]
	eventRows *queue.Queue[model.EventRow]

	lastWriteNs atomic.Int64

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// New creates a gorm backend on an already-connected database manager.
func New(db *database.Manager, log zerolog.Logger, flushInterval time.Duration) *Backend {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Backend{
		db:            db,
		log:           log,
		flushInterval: flushInterval,
		countries:     queue.New[model.Country](),
		players:       queue.New[model.Player](),
		wars:          queue.New[model.War](),
		pushes:        queue.New[model.BorderPush](),
		eventRows:     queue.New[model.EventRow](),
	}
}

// Init migrates the schema and starts the flush loop.
func (b *Backend) Init() error {
	if b.db == nil || !b.db.IsValid {
		return fmt.Errorf("database manager not valid")
	}
	if err := b.db.Migrate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isRunning {
		return nil
	}
	b.isRunning = true
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.flushLoop(b.stopChan, b.done)
	return nil
}

// Close stops the flush loop and writes whatever is still staged.
func (b *Backend) Close() error {
	b.mu.Lock()
	if !b.isRunning {
		b.mu.Unlock()
		return nil
	}
	b.isRunning = false
	close(b.stopChan)
	done := b.done
	b.mu.Unlock()

	<-done
	b.flush()
	return nil
}

func (b *Backend) flushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

// flush drains every queue and writes the batches. Upserts are keyed by
// entity ID; the last staged row for an entity wins.
func (b *Backend) flush() {
	start := time.Now()
	wrote := false

	if rows := b.countries.GetAndEmpty(); len(rows) > 0 {
		wrote = true
		upsertRows(b, "countries", compactByID(rows, func(r model.Country) string { return r.ID }))
	}
	if rows := b.players.GetAndEmpty(); len(rows) > 0 {
		wrote = true
		upsertRows(b, "players", compactByID(rows, func(r model.Player) string { return r.ID }))
	}
	if rows := b.wars.GetAndEmpty(); len(rows) > 0 {
		wrote = true
		upsertRows(b, "wars", compactByID(rows, func(r model.War) string { return r.ID }))
	}
	if rows := b.pushes.GetAndEmpty(); len(rows) > 0 {
		wrote = true
		upsertRows(b, "border_pushes", compactByID(rows, func(r model.BorderPush) string { return r.ID }))
	}
	if rows := b.eventRows.GetAndEmpty(); len(rows) > 0 {
		wrote = true
		if err := b.db.DB.Create(&rows).Error; err != nil {
			b.log.Error().Err(err).Int("count", len(rows)).Msg("Failed to write event rows")
		}
	}

	if wrote {
		b.lastWriteNs.Store(time.Since(start).Nanoseconds())
	}
}

// upsertRows writes a deduplicated batch with last-write-wins semantics on the
// primary key, so a flush never conflicts with rows staged earlier in the same
// interval.
func upsertRows[T any](b *Backend, table string, rows []T) {
	if err := b.db.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
		b.log.Error().Err(err).Str("table", table).Int("count", len(rows)).Msg("Failed to upsert rows")
	}
}

// compactByID keeps only the last staged row per entity so a batch never
// upserts the same key twice.
func compactByID[T any](rows []T, id func(T) string) []T {
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[id(r)] = i
	}
	out := make([]T, 0, len(last))
	for i, r := range rows {
		if last[id(r)] == i {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) SaveCountry(s game.CountryState) error {
	b.countries.Push(convert.CountryToModel(s))
	return nil
}

func (b *Backend) SavePlayer(s game.PlayerState) error {
	b.players.Push(convert.PlayerToModel(s))
	return nil
}

func (b *Backend) SaveWar(s game.WarState) error {
	b.wars.Push(convert.WarToModel(s))
	return nil
}

func (b *Backend) SavePush(s game.PushState) error {
	row, err := convert.PushToModel(s)
	if err != nil {
		return err
	}
	b.pushes.Push(row)
	return nil
}

func (b *Backend) RecordEvent(countryID string, e events.Event) error {
	row, err := convert.EventToRow(countryID, e)
	if err != nil {
		return err
	}
	b.eventRows.Push(row)
	return nil
}

// ExportSnapshot stages every entity in the snapshot and flushes
// immediately.
func (b *Backend) ExportSnapshot(snap game.Snapshot) error {
	for _, c := range snap.Countries {
		if err := b.SaveCountry(c); err != nil {
			return err
		}
	}
	for _, p := range snap.Players {
		if err := b.SavePlayer(p); err != nil {
			return err
		}
	}
	for _, w := range snap.Wars {
		if err := b.SaveWar(w); err != nil {
			return err
		}
	}
	for _, p := range snap.Pushes {
		if err := b.SavePush(p); err != nil {
			return err
		}
	}
	b.flush()
	return nil
}

// LoadSnapshot reads the whole mirror back. The second return is false when
// the mirror holds no entities at all.
func (b *Backend) LoadSnapshot() (game.Snapshot, bool, error) {
	var snap game.Snapshot

	var countries []model.Country
	if err := b.db.DB.Find(&countries).Error; err != nil {
		return snap, false, fmt.Errorf("loading countries: %w", err)
	}
	for _, c := range countries {
		snap.Countries = append(snap.Countries, convert.CountryToState(c))
	}

	var players []model.Player
	if err := b.db.DB.Find(&players).Error; err != nil {
		return snap, false, fmt.Errorf("loading players: %w", err)
	}
	for _, p := range players {
		snap.Players = append(snap.Players, convert.PlayerToState(p))
	}

	var wars []model.War
	if err := b.db.DB.Find(&wars).Error; err != nil {
		return snap, false, fmt.Errorf("loading wars: %w", err)
	}
	for _, w := range wars {
		snap.Wars = append(snap.Wars, convert.WarToState(w))
	}

	var pushes []model.BorderPush
	if err := b.db.DB.Find(&pushes).Error; err != nil {
		return snap, false, fmt.Errorf("loading pushes: %w", err)
	}
	for _, p := range pushes {
		state, err := convert.PushToState(p)
		if err != nil {
			return snap, false, err
		}
		snap.Pushes = append(snap.Pushes, state)
	}

	found := len(snap.Countries)+len(snap.Players)+len(snap.Wars)+len(snap.Pushes) > 0
	return snap, found, nil
}

// GetLastWriteDuration returns the duration of the last write cycle.
func (b *Backend) GetLastWriteDuration() time.Duration {
	return time.Duration(b.lastWriteNs.Load())
}

// QueueLength returns the total number of staged rows.
func (b *Backend) QueueLength() int {
	return b.countries.Len() + b.players.Len() + b.wars.Len() + b.pushes.Len() + b.eventRows.Len()
}
