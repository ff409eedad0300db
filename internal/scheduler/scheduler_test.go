package scheduler

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borderwars/server/internal/game"
	"github.com/borderwars/server/internal/geo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTickWorld(t *testing.T) (*game.Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}

	cfg := game.DefaultConfig()
	cfg.WarDeclarationCooldown = 0
	cfg.PushStartCooldown = 0
	eng := game.NewEngine(cfg, game.Dependencies{Clock: clock.Now})

	_, err := eng.CreateCountry("country-alpha", game.CountryParams{
		Name: "Alpha", MaxSoldiers: 10, ResourceGenerationRate: 5, TerrainModifier: 1.0,
	})
	require.NoError(t, err)
	_, err = eng.CreateCountry("country-bravo", game.CountryParams{
		Name: "Bravo", MaxSoldiers: 10, ResourceGenerationRate: 3, TerrainModifier: 1.0,
	})
	require.NoError(t, err)

	_, err = eng.RegisterPlayer("player-a", "Alice", 100)
	require.NoError(t, err)
	_, err = eng.RegisterPlayer("player-b", "Bob", 100)
	require.NoError(t, err)
	_, err = eng.JoinCountry("player-a", "country-alpha")
	require.NoError(t, err)
	_, err = eng.JoinCountry("player-b", "country-bravo")
	require.NoError(t, err)

	return eng, clock
}

func TestConflictTickAdvancesPushes(t *testing.T) {
	eng, clock := newTickWorld(t)
	svc := NewService(Dependencies{Engine: eng, Logger: slog.Default()})

	war, err := eng.DeclareWar("player-a", "country-alpha", "country-bravo", "test")
	require.NoError(t, err)
	push, err := eng.StartPush("player-a", war.ID, geo.Position{X: 100, Y: 200}, 90, 1.0)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	svc.RunConflictTick()

	state, err := eng.Push(push.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, state.DistancePushed, 1e-9)
	assert.GreaterOrEqual(t, svc.LastConflictTickDuration(), time.Duration(0))
}

func TestConflictTickEmptySweep(t *testing.T) {
	eng, _ := newTickWorld(t)
	svc := NewService(Dependencies{Engine: eng, Logger: slog.Default()})

	svc.RunConflictTick()
	assert.GreaterOrEqual(t, svc.LastConflictTickDuration(), time.Duration(0))
}

func TestEconomyTickCreditsClaimedCountries(t *testing.T) {
	eng, _ := newTickWorld(t)
	svc := NewService(Dependencies{Engine: eng, Logger: slog.Default()})

	svc.RunEconomyTick()

	assert.Equal(t, int64(5), eng.Ledger().Balance("country-alpha"))
	assert.Equal(t, int64(3), eng.Ledger().Balance("country-bravo"))
	assert.GreaterOrEqual(t, svc.LastEconomyTickDuration(), time.Duration(0))
}

func TestEconomyTickSkipsUnclaimed(t *testing.T) {
	eng, _ := newTickWorld(t)
	_, err := eng.CreateCountry("country-empty", game.CountryParams{
		Name: "Empty", MaxSoldiers: 10, ResourceGenerationRate: 9,
	})
	require.NoError(t, err)

	svc := NewService(Dependencies{Engine: eng, Logger: slog.Default()})
	svc.RunEconomyTick()

	assert.Zero(t, eng.Ledger().Balance("country-empty"))
}

func TestStartStopLifecycle(t *testing.T) {
	eng, _ := newTickWorld(t)
	svc := NewService(Dependencies{
		Engine:           eng,
		Logger:           slog.Default(),
		ConflictInterval: 5 * time.Millisecond,
		EconomyInterval:  5 * time.Millisecond,
	})

	svc.Start()
	assert.True(t, svc.IsRunning())
	svc.Start()

	// Let a few economy ticks land.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Ledger().Balance("country-alpha") >= 10 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, eng.Ledger().Balance("country-alpha"), int64(10))

	svc.Stop()
	assert.False(t, svc.IsRunning())
	svc.Stop()
}

func TestIntervalDefaults(t *testing.T) {
	svc := NewService(Dependencies{Engine: nil})
	assert.Equal(t, 5*time.Second, svc.deps.ConflictInterval)
	assert.Equal(t, 60*time.Second, svc.deps.EconomyInterval)
}
