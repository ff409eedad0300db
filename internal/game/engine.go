package game

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/borderwars/server/internal/cache"
	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/geo"
)

// EventSink receives every state-change notification the engine emits.
// Delivery is fire-and-forget from the engine's point of view; a slow
// observer must never block a mutation or a tick.
type EventSink interface {
	Broadcast(countryID string, e events.Event)
	BroadcastGlobal(e events.Event)
}

// Recorder mirrors committed state transitions to the persistence
// collaborator. The engine does not manage transactions or retries against
// storage; it hands over value copies and moves on.
type Recorder interface {
	CountryChanged(CountryState)
	PlayerChanged(PlayerState)
	WarChanged(WarState)
	PushChanged(PushState)
}

// Dependencies are the engine's collaborators. Every field is optional;
// missing ones are replaced with no-ops so tests can construct a bare engine.
type Dependencies struct {
	Sink     EventSink
	Recorder Recorder
	Logger   *slog.Logger
	Clock    func() time.Time
}

type noopSink struct{}

func (noopSink) Broadcast(string, events.Event) {}
func (noopSink) BroadcastGlobal(events.Event)   {}

type noopRecorder struct{}

func (noopRecorder) CountryChanged(CountryState) {}
func (noopRecorder) PlayerChanged(PlayerState)   {}
func (noopRecorder) WarChanged(WarState)         {}
func (noopRecorder) PushChanged(PushState)       {}

// Engine is the authoritative model. Entities are cross-referenced by
// identity and looked up per operation; nothing assumes object graphs survive
// across ticks. The registry mutex guards only the maps and indexes below,
// never entity state.
type Engine struct {
	cfg       Config
	sink      EventSink
	recorder  Recorder
	log       *slog.Logger
	clock     func() time.Time
	cooldowns *cache.CooldownCache
	ledger    *Ledger

	mu                sync.RWMutex
	countries         map[string]*Country
	players           map[string]*Player
	wars              map[string]*War
	pushes            map[string]*BorderPush
	activeWarByPair   map[string]string   // pair key -> war ID
	activePushByOwner map[string]string   // player ID -> push ID
	pushesByWar       map[string][]string // war ID -> push IDs, append-only
}

func NewEngine(cfg Config, deps Dependencies) *Engine {
	if deps.Sink == nil {
		deps.Sink = noopSink{}
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Engine{
		cfg:               cfg,
		sink:              deps.Sink,
		recorder:          deps.Recorder,
		log:               deps.Logger,
		clock:             deps.Clock,
		cooldowns:         cache.NewCooldownCache(),
		ledger:            NewLedger(),
		countries:         make(map[string]*Country),
		players:           make(map[string]*Player),
		wars:              make(map[string]*War),
		pushes:            make(map[string]*BorderPush),
		activeWarByPair:   make(map[string]string),
		activePushByOwner: make(map[string]string),
		pushesByWar:       make(map[string][]string),
	}
}

// Ledger exposes the resource ledger to request-handling collaborators.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// pairKey is the unordered-pair index key for the one-active-war-per-pair
// rule.
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// CreateCountry registers a new unclaimed country and seeds its ledger
// balance.
func (e *Engine) CreateCountry(id string, p CountryParams) (CountryState, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if p.TerrainModifier <= 0 {
		p.TerrainModifier = 1.0
	}
	c := &Country{
		ID:                     id,
		Name:                   p.Name,
		MaxSoldiers:            p.MaxSoldiers,
		ResourceGenerationRate: p.ResourceGenerationRate,
		DefenseStrength:        p.DefenseStrength,
		TerrainModifier:        p.TerrainModifier,
	}
	e.mu.Lock()
	if _, exists := e.countries[id]; exists {
		e.mu.Unlock()
		return CountryState{}, conflictf("country %s already exists", id)
	}
	e.countries[id] = c
	e.mu.Unlock()
	e.ledger.Restore(id, p.InitialResources)
	state := e.countryState(c)
	e.recorder.CountryChanged(state)
	return state, nil
}

// RegisterPlayer registers a countryless player and seeds their balance.
func (e *Engine) RegisterPlayer(id, name string, initialResources int64) (PlayerState, error) {
	if id == "" {
		id = uuid.New().String()
	}
	p := &Player{ID: id, Name: name}
	e.mu.Lock()
	if _, exists := e.players[id]; exists {
		e.mu.Unlock()
		return PlayerState{}, conflictf("player %s already exists", id)
	}
	e.players[id] = p
	e.mu.Unlock()
	e.ledger.Restore(id, initialResources)
	state := e.playerState(p)
	e.recorder.PlayerChanged(state)
	return state, nil
}

// JoinCountry puts a countryless player into the country, claiming it when
// it has no owner yet.
func (e *Engine) JoinCountry(playerID, countryID string) (CountryState, error) {
	e.mu.RLock()
	p := e.players[playerID]
	c := e.countries[countryID]
	e.mu.RUnlock()
	if p == nil {
		return CountryState{}, notFoundf("player %s", playerID)
	}
	if c == nil {
		return CountryState{}, notFoundf("country %s", countryID)
	}

	c.mu.Lock()
	if c.halted {
		c.mu.Unlock()
		return CountryState{}, invalidStatef("country %s is halted", countryID)
	}
	if c.MaxSoldiers > 0 && c.SoldierCount >= c.MaxSoldiers {
		c.mu.Unlock()
		return CountryState{}, conflictf("country %s is at soldier capacity", countryID)
	}
	p.mu.Lock()
	if p.CountryID != "" {
		p.mu.Unlock()
		c.mu.Unlock()
		return CountryState{}, invalidStatef("player %s already belongs to country %s", playerID, p.CountryID)
	}
	p.CountryID = countryID
	p.mu.Unlock()
	c.SoldierCount++
	if c.OwnerID == "" {
		c.OwnerID = playerID
	}
	c.mu.Unlock()

	cs := e.countryState(c)
	e.recorder.CountryChanged(cs)
	e.recorder.PlayerChanged(e.playerState(p))
	return cs, nil
}

// LeaveCountry removes the player from their country. The country becomes
// unclaimed again when its soldier count returns to zero.
func (e *Engine) LeaveCountry(playerID string) (CountryState, error) {
	e.mu.RLock()
	p := e.players[playerID]
	e.mu.RUnlock()
	if p == nil {
		return CountryState{}, notFoundf("player %s", playerID)
	}

	p.mu.Lock()
	countryID := p.CountryID
	p.mu.Unlock()
	if countryID == "" {
		return CountryState{}, invalidStatef("player %s belongs to no country", playerID)
	}
	e.mu.RLock()
	c := e.countries[countryID]
	e.mu.RUnlock()
	if c == nil {
		return CountryState{}, notFoundf("country %s", countryID)
	}

	c.mu.Lock()
	p.mu.Lock()
	p.CountryID = ""
	p.mu.Unlock()
	if c.SoldierCount > 0 {
		c.SoldierCount--
	}
	if c.SoldierCount == 0 {
		c.OwnerID = ""
	}
	c.mu.Unlock()

	cs := e.countryState(c)
	e.recorder.CountryChanged(cs)
	e.recorder.PlayerChanged(e.playerState(p))
	return cs, nil
}

// MovePlayer updates the player's position, gated by the movement cooldown.
func (e *Engine) MovePlayer(playerID string, pos geo.Position) error {
	now := e.clock()
	if rem := e.cooldowns.Remaining(cache.CooldownMovement, playerID, e.cfg.MovementCooldown, now); rem > 0 {
		return cooldownErr("movement", rem)
	}
	e.mu.RLock()
	p := e.players[playerID]
	e.mu.RUnlock()
	if p == nil {
		return notFoundf("player %s", playerID)
	}
	p.mu.Lock()
	if p.halted {
		p.mu.Unlock()
		return invalidStatef("player %s is halted", playerID)
	}
	var moved float64
	if !p.LastMovement.IsZero() {
		moved = geo.Distance(p.Position, pos)
	}
	p.Position = pos
	p.LastMovement = now
	countryID := p.CountryID
	p.mu.Unlock()
	e.cooldowns.Mark(cache.CooldownMovement, playerID, now)

	if countryID != "" {
		e.sink.Broadcast(countryID, events.New(events.TypePlayerMoved, now, events.PlayerMoved{
			PlayerID: playerID, X: pos.X, Y: pos.Y, Z: pos.Z, Distance: moved,
		}))
	}
	e.recorder.PlayerChanged(e.playerState(p))
	return nil
}

// ClaimedCountryIDs lists the countries the economy tick generates for, in a
// stable order.
func (e *Engine) ClaimedCountryIDs() []string {
	e.mu.RLock()
	countries := make([]*Country, 0, len(e.countries))
	for _, c := range e.countries {
		countries = append(countries, c)
	}
	e.mu.RUnlock()

	ids := make([]string, 0, len(countries))
	for _, c := range countries {
		c.mu.Lock()
		claimed := c.OwnerID != ""
		c.mu.Unlock()
		if claimed {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// GenerateResources runs one economy-tick generation for the country and
// notifies its room. The ledger account lock serializes this against any
// concurrent war-cost debit on the same country.
func (e *Engine) GenerateResources(countryID string) (int64, error) {
	e.mu.RLock()
	c := e.countries[countryID]
	e.mu.RUnlock()
	if c == nil {
		return 0, notFoundf("country %s", countryID)
	}
	c.mu.Lock()
	rate := c.ResourceGenerationRate
	halted := c.halted
	c.mu.Unlock()
	if halted {
		return 0, invalidStatef("country %s is halted", countryID)
	}
	amount, balance := e.ledger.Generate(countryID, rate)
	e.sink.Broadcast(countryID, events.New(events.TypeResourcesGenerated, e.clock(), events.ResourcesGenerated{
		CountryID: countryID, Amount: amount, Balance: balance,
	}))
	e.recorder.CountryChanged(e.countryState(c))
	return amount, nil
}

// Stats reports the live conflict counts for the monitor loop.
func (e *Engine) Stats() (activeWars, activePushes int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeWarByPair), len(e.activePushByOwner)
}

// Country returns a value copy of the country's state.
func (e *Engine) Country(id string) (CountryState, error) {
	e.mu.RLock()
	c := e.countries[id]
	e.mu.RUnlock()
	if c == nil {
		return CountryState{}, notFoundf("country %s", id)
	}
	return e.countryState(c), nil
}

// Player returns a value copy of the player's state.
func (e *Engine) Player(id string) (PlayerState, error) {
	e.mu.RLock()
	p := e.players[id]
	e.mu.RUnlock()
	if p == nil {
		return PlayerState{}, notFoundf("player %s", id)
	}
	return e.playerState(p), nil
}

// War returns a value copy of the war's state.
func (e *Engine) War(id string) (WarState, error) {
	e.mu.RLock()
	w := e.wars[id]
	e.mu.RUnlock()
	if w == nil {
		return WarState{}, notFoundf("war %s", id)
	}
	return e.warState(w), nil
}
