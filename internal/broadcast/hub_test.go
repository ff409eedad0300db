package broadcast

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borderwars/server/internal/events"
	"github.com/borderwars/server/internal/game"
)

// Compile-time interface check.
var _ game.EventSink = (*Hub)(nil)

func testClient(buffer int) *Client {
	return &Client{send: make(chan []byte, buffer)}
}

func drain(t *testing.T, c *Client) []events.Event {
	t.Helper()
	var out []events.Event
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var e events.Event
			require.NoError(t, json.Unmarshal(data, &e))
			out = append(out, e)
		default:
			return out
		}
	}
}

func sampleEvent(typ events.Type) events.Event {
	return events.New(typ, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), nil)
}

func TestRoomRouting(t *testing.T) {
	h := NewHub(slog.Default())
	alpha := testClient(8)
	bravo := testClient(8)
	require.True(t, h.Register(alpha))
	require.True(t, h.Register(bravo))
	h.Subscribe(alpha, "country-alpha")
	h.Subscribe(bravo, "country-bravo")

	h.Broadcast("country-alpha", sampleEvent(events.TypePushStarted))

	got := drain(t, alpha)
	require.Len(t, got, 1)
	assert.Equal(t, events.TypePushStarted, got[0].Type)
	assert.Empty(t, drain(t, bravo))
}

func TestGlobalReachesEveryone(t *testing.T) {
	h := NewHub(slog.Default())
	subscribed := testClient(8)
	lurker := testClient(8)
	require.True(t, h.Register(subscribed))
	require.True(t, h.Register(lurker))
	h.Subscribe(subscribed, "country-alpha")

	h.BroadcastGlobal(sampleEvent(events.TypeWarDeclared))

	require.Len(t, drain(t, subscribed), 1)
	require.Len(t, drain(t, lurker), 1)
}

func TestSlowObserverDropped(t *testing.T) {
	h := NewHub(slog.Default())
	slow := testClient(1)
	fast := testClient(8)
	require.True(t, h.Register(slow))
	require.True(t, h.Register(fast))
	h.Subscribe(slow, "country-alpha")
	h.Subscribe(fast, "country-alpha")

	h.Broadcast("country-alpha", sampleEvent(events.TypePushProgress))
	h.Broadcast("country-alpha", sampleEvent(events.TypePushProgress))

	observers, rooms := h.Stats()
	assert.Equal(t, 1, observers)
	assert.Equal(t, 1, rooms)

	// The survivor heard both progress frames plus the departure notice.
	got := drain(t, fast)
	require.Len(t, got, 3)
	counts := map[events.Type]int{}
	for _, e := range got {
		counts[e.Type]++
	}
	assert.Equal(t, 2, counts[events.TypePushProgress])
	assert.Equal(t, 1, counts[events.TypeObserverLeft])

	// Further broadcasts no longer reach the dropped observer.
	h.Broadcast("country-alpha", sampleEvent(events.TypePushProgress))
	require.Len(t, drain(t, fast), 1)
}

func TestUnsubscribeNotifiesRoom(t *testing.T) {
	h := NewHub(slog.Default())
	leaver := testClient(8)
	stayer := testClient(8)
	require.True(t, h.Register(leaver))
	require.True(t, h.Register(stayer))
	h.Subscribe(leaver, "country-alpha")
	h.Subscribe(stayer, "country-alpha")

	h.Unsubscribe(leaver, "country-alpha")

	got := drain(t, stayer)
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeObserverLeft, got[0].Type)

	payload, err := json.Marshal(got[0].Payload)
	require.NoError(t, err)
	var left events.ObserverLeft
	require.NoError(t, json.Unmarshal(payload, &left))
	assert.Equal(t, "country-alpha", left.CountryID)
	assert.Equal(t, 1, left.Remaining)

	// The leaver keeps its connection and still hears global events.
	require.Empty(t, drain(t, leaver))
	h.BroadcastGlobal(sampleEvent(events.TypeServerStats))
	require.Len(t, drain(t, leaver), 1)
}

func TestUnregisterNotifiesRooms(t *testing.T) {
	h := NewHub(slog.Default())
	leaver := testClient(8)
	stayer := testClient(8)
	require.True(t, h.Register(leaver))
	require.True(t, h.Register(stayer))
	h.Subscribe(leaver, "country-alpha")
	h.Subscribe(stayer, "country-alpha")

	h.Unregister(leaver)

	observers, rooms := h.Stats()
	assert.Equal(t, 1, observers)
	assert.Equal(t, 1, rooms)

	got := drain(t, stayer)
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeObserverLeft, got[0].Type)
}

func TestStatsCountsNonEmptyRooms(t *testing.T) {
	h := NewHub(slog.Default())
	c := testClient(8)
	require.True(t, h.Register(c))
	h.Subscribe(c, "country-alpha")
	h.Subscribe(c, "country-bravo")
	h.Unsubscribe(c, "country-bravo")

	observers, rooms := h.Stats()
	assert.Equal(t, 1, observers)
	assert.Equal(t, 1, rooms)
}

func TestCloseRejectsNewObservers(t *testing.T) {
	h := NewHub(slog.Default())
	c := testClient(8)
	require.True(t, h.Register(c))

	h.Close()

	_, open := <-c.send
	assert.False(t, open)
	assert.False(t, h.Register(testClient(8)))

	observers, rooms := h.Stats()
	assert.Zero(t, observers)
	assert.Zero(t, rooms)
}
