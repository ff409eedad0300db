package game

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/geo"
)

// pushWorld is a testWorld with a declared war and free push cooldowns.
func pushWorld(t *testing.T, cfg Config) (*testWorld, WarState) {
	t.Helper()
	cfg.PushStartCooldown = 0
	w := newTestWorld(t, cfg)
	war := declareTestWar(t, w)
	return w, war
}

func startTestPush(t *testing.T, w *testWorld, warID string) PushState {
	t.Helper()
	state, err := w.engine.StartPush(ownerA, warID, geo.Position{X: 1000, Y: 2000}, 90, 1.0)
	require.NoError(t, err)
	return state
}

func TestStartPush(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	assert.Equal(t, PushActive, push.Status)
	assert.Equal(t, war.ID, push.WarID)
	assert.Equal(t, alphaID, push.SourceCountryID)
	assert.Equal(t, bravoID, push.TargetCountryID)
	assert.Equal(t, 1.0, push.PushStrength)
	assert.Equal(t, 1.0, push.ResistanceStrength)
	assert.Equal(t, 1, push.SupportingSoldiers)
	assert.Equal(t, 0, push.DefendingSoldiers)
	assert.Equal(t, 1.0, push.PushSpeed, "strength 1 over resistance 1 on neutral terrain")

	// The initiator paid the push cost.
	player, err := w.engine.Player(ownerA)
	require.NoError(t, err)
	assert.Equal(t, playerAt-DefaultConfig().PushCost, player.Resources)

	_, ok := w.sink.lastOfType(alphaID, events.TypePushStarted)
	assert.True(t, ok)
	_, ok = w.sink.lastOfType(bravoID, events.TypePushIncoming)
	assert.True(t, ok, "target side gets the incoming variant")
}

func TestStartPushInsufficientResources(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	_, err := w.engine.RegisterPlayer("poor", "poor", 3)
	require.NoError(t, err)
	_, err = w.engine.JoinCountry("poor", alphaID)
	require.NoError(t, err)

	_, err = w.engine.StartPush("poor", war.ID, geo.Position{}, 0, 1.0)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientResources, KindOf(err))
	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, DefaultConfig().PushCost, domainErr.Required)

	player, err := w.engine.Player("poor")
	require.NoError(t, err)
	assert.Equal(t, int64(3), player.Resources, "failed debit mutates nothing")
}

func TestStartPushOnePerPlayer(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	startTestPush(t, w, war.ID)

	_, err := w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 1.0)
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))

	// The rejected attempt refunded its debit.
	player, err := w.engine.Player(ownerA)
	require.NoError(t, err)
	assert.Equal(t, playerAt-DefaultConfig().PushCost, player.Resources)
}

func TestStartPushCooldown(t *testing.T) {
	cfg := DefaultConfig()
	w := newTestWorld(t, cfg)
	war := declareTestWar(t, w)

	first, err := w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 1.0)
	require.NoError(t, err)
	_, err = w.engine.StopPush(first.ID, "regroup")
	require.NoError(t, err)

	_, err = w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 1.0)
	assert.Equal(t, KindCooldown, KindOf(err))

	w.clock.Advance(cfg.PushStartCooldown + time.Second)
	_, err = w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 1.0)
	assert.NoError(t, err)
}

func TestStartPushWrongSide(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	_, err := w.engine.StartPush(ownerB, war.ID, geo.Position{}, 0, 1.0)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = w.engine.StartPush(drifter, war.ID, geo.Position{}, 0, 1.0)
	assert.Equal(t, KindForbidden, KindOf(err), "countryless player cannot push")
}

func TestStartPushEndedWar(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	_, err := w.engine.EndWar(war.ID, ownerA, "")
	require.NoError(t, err)

	_, err = w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 1.0)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

// The worked example: one supporter and no defenders gives speed 1.0, the
// first defender leaves it unchanged, the second drops it to ~0.707.
func TestSpeedRecomputation(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)
	assert.Equal(t, 1.0, push.PushSpeed)

	// Two more defenders for bravo.
	for _, id := range []string{"def-1", "def-2"} {
		_, err := w.engine.RegisterPlayer(id, id, 0)
		require.NoError(t, err)
		_, err = w.engine.JoinCountry(id, bravoID)
		require.NoError(t, err)
	}

	state, err := w.engine.DefendPush(push.ID, "def-1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.DefendingSoldiers)
	assert.Equal(t, 1.0, state.ResistanceStrength)
	assert.Equal(t, 1.0, state.PushSpeed, "resistance 1 leaves speed unchanged")

	state, err = w.engine.DefendPush(push.ID, "def-2")
	require.NoError(t, err)
	assert.Equal(t, 2, state.DefendingSoldiers)
	assert.InDelta(t, math.Sqrt2, state.ResistanceStrength, 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, state.PushSpeed, 1e-9)
}

func TestJoinPushRecomputesStrength(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	_, err := w.engine.RegisterPlayer("sup-1", "sup-1", 0)
	require.NoError(t, err)
	_, err = w.engine.JoinCountry("sup-1", alphaID)
	require.NoError(t, err)

	state, err := w.engine.JoinPush(push.ID, "sup-1")
	require.NoError(t, err)
	assert.Equal(t, 2, state.SupportingSoldiers)
	assert.InDelta(t, math.Sqrt2, state.PushStrength, 1e-9)
	assert.InDelta(t, math.Sqrt2, state.PushSpeed, 1e-9)

	ev, ok := w.sink.lastOfType(bravoID, events.TypePushSupportAdded)
	require.True(t, ok)
	assert.Equal(t, 2, ev.Payload.(events.PushSupportAdded).SupportingSoldiers)
}

func TestJoinPushDuplicateSupporter(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	// The initiator already counts as a supporter.
	_, err := w.engine.JoinPush(push.ID, ownerA)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestJoinPushWrongCountry(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	_, err := w.engine.JoinPush(push.ID, ownerB)
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = w.engine.DefendPush(push.ID, ownerA)
	assert.Equal(t, KindForbidden, KindOf(err))
}

// Speed stays within the clamp bounds no matter how lopsided the sides get.
func TestSpeedClampBounds(t *testing.T) {
	cfg := DefaultConfig()
	w, war := pushWorld(t, cfg)

	// Easy terrain (0.1): raw speed 1/1*10 = 10, clamped to the ceiling at
	// creation already.
	push, err := w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 0.1)
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxPushSpeed, push.PushSpeed)
	_, err = w.engine.StopPush(push.ID, "retreat")
	require.NoError(t, err)

	// Heavy terrain (20): raw speed 0.05, clamped to the floor.
	push, err = w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, cfg.MinPushSpeed, push.PushSpeed)

	// 99 more supporters and 99 defenders keep the speed inside the bounds
	// the whole way.
	state := push
	for i := 0; i < 99; i++ {
		sup := "sup-" + string(rune('a'+i%26)) + "-" + string(rune('a'+i/26))
		_, err = w.engine.RegisterPlayer(sup, sup, 0)
		require.NoError(t, err)
		_, err = w.engine.JoinCountry(sup, alphaID)
		require.NoError(t, err)
		state, err = w.engine.JoinPush(push.ID, sup)
		require.NoError(t, err)
		assert.LessOrEqual(t, state.PushSpeed, cfg.MaxPushSpeed)
		assert.GreaterOrEqual(t, state.PushSpeed, cfg.MinPushSpeed)

		def := "def-" + string(rune('a'+i%26)) + "-" + string(rune('a'+i/26))
		_, err = w.engine.RegisterPlayer(def, def, 0)
		require.NoError(t, err)
		_, err = w.engine.JoinCountry(def, bravoID)
		require.NoError(t, err)
		state, err = w.engine.DefendPush(push.ID, def)
		require.NoError(t, err)
		assert.LessOrEqual(t, state.PushSpeed, cfg.MaxPushSpeed)
		assert.GreaterOrEqual(t, state.PushSpeed, cfg.MinPushSpeed)
	}
	// sqrt(100)/sqrt(99)/20 ~ 0.05: still floored.
	assert.Equal(t, cfg.MinPushSpeed, state.PushSpeed)
}

func TestSpeedTerrainAndResistanceFloor(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg, Dependencies{})

	assert.Equal(t, 0.5, e.speedOf(1, 1, 2), "terrain divides the speed")
	assert.Equal(t, cfg.MinPushSpeed, e.speedOf(1, 1, 100), "heavy terrain clamps at the floor")
	assert.Equal(t, cfg.MaxPushSpeed, e.speedOf(1, 0, 1), "zero resistance is floored, then clamped")
	assert.Equal(t, 1.0, e.speedOf(1, 1, 0), "non-positive terrain falls back to neutral")
}

// Progress is committed by the tick only; peeks compute a candidate without
// mutating state.
func TestPeekProgressDoesNotMutate(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	w.clock.Advance(30 * time.Second)
	peeked, err := w.engine.PeekProgress(push.ID)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, peeked.DistancePushed, 1e-9, "speed 1 m/s for 30s")

	committed, err := w.engine.Push(push.ID)
	require.NoError(t, err)
	assert.Zero(t, committed.DistancePushed, "peek left committed state untouched")
}

func TestCommitProgressMonotonic(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	previous := 0.0
	for i := 0; i < 5; i++ {
		w.clock.Advance(5 * time.Second)
		state, err := w.engine.CommitProgress(push.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.DistancePushed, previous)
		assert.Equal(t, w.clock.Now(), state.LastUpdate)
		previous = state.DistancePushed
	}
	assert.InDelta(t, 25.0, previous, 1e-9)

	// A zero-elapsed commit changes nothing.
	state, err := w.engine.CommitProgress(push.ID)
	require.NoError(t, err)
	assert.Equal(t, previous, state.DistancePushed)
}

// The worked example: committing 9999 -> 10050 crosses the 10000m threshold,
// the push completes, and pi*(10.05)^2 ~ 317.3 km2 moves between the
// countries' territory counters.
func TestCommitProgressCompletion(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	// Run up to 9999m at speed 1: still active.
	w.clock.Advance(9999 * time.Second)
	state, err := w.engine.CommitProgress(push.ID)
	require.NoError(t, err)
	assert.Equal(t, PushActive, state.Status)
	assert.InDelta(t, 9999.0, state.DistancePushed, 1e-6)
	_, ok := w.sink.lastOfType(bravoID, events.TypePushProgress)
	assert.True(t, ok)

	// The next tick carries it to 10050 and over the threshold.
	w.clock.Advance(51 * time.Second)
	state, err = w.engine.CommitProgress(push.ID)
	require.NoError(t, err)
	assert.Equal(t, PushSuccessful, state.Status)
	assert.InDelta(t, 10050.0, state.DistancePushed, 1e-6)
	assert.InDelta(t, 317.3, state.TerritoryGainedKm2, 0.05)
	assert.Equal(t, w.clock.Now(), state.EndedAt)
	assert.Empty(t, w.engine.ActivePushIDs())

	source, err := w.engine.Country(alphaID)
	require.NoError(t, err)
	assert.InDelta(t, 317.3, source.TerritoryGainedKm2, 0.05)
	target, err := w.engine.Country(bravoID)
	require.NoError(t, err)
	assert.InDelta(t, 317.3, target.TerritoryLostKm2, 0.05)

	done, ok := w.sink.lastOfType(alphaID, events.TypePushCompleted)
	require.True(t, ok)
	assert.NotEmpty(t, done.Payload.(events.PushCompleted).AreaWKT)
	lost, ok := w.sink.lastOfType(bravoID, events.TypePushLost)
	require.True(t, ok)
	assert.InDelta(t, 317.3, lost.Payload.(events.PushLost).TerritoryLostKm2, 0.05)

	// A terminal push refuses further commits.
	_, err = w.engine.CommitProgress(push.ID)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestStopPushCancelled(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)
	w.clock.Advance(10 * time.Second)

	state, err := w.engine.StopPush(push.ID, "retreat")
	require.NoError(t, err)
	assert.Equal(t, PushCancelled, state.Status)
	assert.InDelta(t, 10.0, state.DistancePushed, 1e-9, "final progress is committed before stopping")
	assert.Equal(t, w.clock.Now(), state.EndedAt)
}

func TestStopPushSuccess(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)
	w.clock.Advance(10 * time.Second)

	state, err := w.engine.StopPush(push.ID, StopReasonSuccess)
	require.NoError(t, err)
	assert.Equal(t, PushSuccessful, state.Status)

	source, err := w.engine.Country(alphaID)
	require.NoError(t, err)
	assert.Equal(t, state.TerritoryGainedKm2, source.TerritoryGainedKm2)
}

func TestStopPushTerminal(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)
	_, err := w.engine.StopPush(push.ID, "retreat")
	require.NoError(t, err)

	_, err = w.engine.StopPush(push.ID, "retreat")
	assert.Equal(t, KindInvalidState, KindOf(err))
	_, err = w.engine.JoinPush(push.ID, ownerA)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

// A join arriving between ticks is never lost, and ticks never observe a
// half-updated strength/resistance pair.
func TestPushConcurrentMutations(t *testing.T) {
	w, war := pushWorld(t, DefaultConfig())
	push := startTestPush(t, w, war.ID)

	const joiners = 16
	for i := 0; i < joiners; i++ {
		id := "concurrent-" + string(rune('a'+i))
		_, err := w.engine.RegisterPlayer(id, id, 0)
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = w.engine.JoinCountry(id, alphaID)
		} else {
			_, err = w.engine.JoinCountry(id, bravoID)
		}
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _ = w.engine.CommitProgress(push.ID)
			_, _ = w.engine.PeekProgress(push.ID)
		}
	}()
	for i := 0; i < joiners; i++ {
		id := "concurrent-" + string(rune('a'+i))
		if i%2 == 0 {
			_, err := w.engine.JoinPush(push.ID, id)
			require.NoError(t, err)
		} else {
			_, err := w.engine.DefendPush(push.ID, id)
			require.NoError(t, err)
		}
	}
	<-done

	state, err := w.engine.Push(push.ID)
	require.NoError(t, err)
	assert.Equal(t, 1+joiners/2, state.SupportingSoldiers)
	assert.Equal(t, joiners/2, state.DefendingSoldiers)
	assert.InDelta(t, math.Sqrt(float64(1+joiners/2)), state.PushStrength, 1e-9)
	assert.InDelta(t, math.Sqrt(float64(joiners/2)), state.ResistanceStrength, 1e-9)
}

func TestDefaultTerrainFromTargetCountry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PushStartCooldown = 0
	w := newTestWorld(t, cfg)
	_, err := w.engine.CreateCountry("hills", CountryParams{Name: "Hills", MaxSoldiers: 10, TerrainModifier: 2.0})
	require.NoError(t, err)
	_, err = w.engine.RegisterPlayer("hill-owner", "hill-owner", 0)
	require.NoError(t, err)
	_, err = w.engine.JoinCountry("hill-owner", "hills")
	require.NoError(t, err)

	war, err := w.engine.DeclareWar(ownerA, alphaID, "hills", "")
	require.NoError(t, err)

	// terrain unspecified: the target country's modifier applies.
	push, err := w.engine.StartPush(ownerA, war.ID, geo.Position{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, push.TerrainModifier)
	assert.Equal(t, 0.5, push.PushSpeed)
}

func TestPushNotFound(t *testing.T) {
	w, _ := pushWorld(t, DefaultConfig())
	_, err := w.engine.JoinPush("missing", ownerA)
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = w.engine.CommitProgress("missing")
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = w.engine.StopPush("missing", "x")
	assert.Equal(t, KindNotFound, KindOf(err))
}
