package parser

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borderwars/server/internal/geo"
)

func testParser() *Parser {
	return New(slog.Default())
}

func TestParseDeclareWar(t *testing.T) {
	p := testParser()

	tests := []struct {
		name    string
		data    []string
		want    DeclareWarRequest
		wantErr bool
	}{
		{
			name: "full",
			data: []string{`"player-1"`, `"country-a"`, `"country-b"`, `"border dispute"`},
			want: DeclareWarRequest{PlayerID: "player-1", AggressorCountryID: "country-a", TargetCountryID: "country-b", Reason: "border dispute"},
		},
		{
			name: "no reason",
			data: []string{"player-1", "country-a", "country-b"},
			want: DeclareWarRequest{PlayerID: "player-1", AggressorCountryID: "country-a", TargetCountryID: "country-b"},
		},
		{name: "too few args", data: []string{"player-1", "country-a"}, wantErr: true},
		{name: "empty id", data: []string{"player-1", `""`, "country-b"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseDeclareWar(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEndWar(t *testing.T) {
	p := testParser()

	got, err := p.ParseEndWar([]string{"war-1", "player-1", "country-a"})
	require.NoError(t, err)
	assert.Equal(t, EndWarRequest{WarID: "war-1", PlayerID: "player-1", WinnerCountryID: "country-a"}, got)

	got, err = p.ParseEndWar([]string{"war-1", "player-1"})
	require.NoError(t, err)
	assert.Empty(t, got.WinnerCountryID, "winnerless end is valid")

	_, err = p.ParseEndWar([]string{"war-1"})
	assert.Error(t, err)
}

func TestParseStartPush(t *testing.T) {
	p := testParser()

	tests := []struct {
		name    string
		data    []string
		want    StartPushRequest
		wantErr bool
	}{
		{
			name: "with terrain",
			data: []string{"player-1", "war-1", `"1000.5,2000.25"`, "90", "1.5"},
			want: StartPushRequest{
				PlayerID: "player-1", WarID: "war-1",
				Position:  geo.Position{X: 1000.5, Y: 2000.25},
				Direction: 90, Terrain: 1.5,
			},
		},
		{
			name: "terrain omitted",
			data: []string{"player-1", "war-1", "0,0", "45.5"},
			want: StartPushRequest{PlayerID: "player-1", WarID: "war-1", Direction: 45.5},
		},
		{name: "bad position", data: []string{"player-1", "war-1", "oops", "90"}, wantErr: true},
		{name: "bad direction", data: []string{"player-1", "war-1", "0,0", "north"}, wantErr: true},
		{name: "too few args", data: []string{"player-1", "war-1", "0,0"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseStartPush(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePushAction(t *testing.T) {
	p := testParser()

	got, err := p.ParsePushAction([]string{`"push-1"`, `"player-2"`})
	require.NoError(t, err)
	assert.Equal(t, PushActionRequest{PushID: "push-1", PlayerID: "player-2"}, got)

	_, err = p.ParsePushAction([]string{"push-1"})
	assert.Error(t, err)
}

func TestParseStopPush(t *testing.T) {
	p := testParser()

	got, err := p.ParseStopPush([]string{"push-1", "retreat"})
	require.NoError(t, err)
	assert.Equal(t, StopPushRequest{PushID: "push-1", Reason: "retreat"}, got)

	got, err = p.ParseStopPush([]string{"push-1"})
	require.NoError(t, err)
	assert.Empty(t, got.Reason)

	_, err = p.ParseStopPush(nil)
	assert.Error(t, err)
}

func TestParsePushProgress(t *testing.T) {
	p := testParser()

	got, err := p.ParsePushProgress([]string{`"push-1"`})
	require.NoError(t, err)
	assert.Equal(t, PushProgressRequest{PushID: "push-1"}, got)

	_, err = p.ParsePushProgress([]string{""})
	assert.Error(t, err)

	_, err = p.ParsePushProgress(nil)
	assert.Error(t, err)
}

func TestParseMove(t *testing.T) {
	p := testParser()

	got, err := p.ParseMove([]string{"player-1", "100,200,3"})
	require.NoError(t, err)
	assert.Equal(t, "player-1", got.PlayerID)
	assert.Equal(t, 100.0, got.Position.X)
	assert.Equal(t, 3.0, got.Position.Z)

	// Lon/lat input gets projected to meters.
	got, err = p.ParseMove([]string{"player-1", "10,0", "4326"})
	require.NoError(t, err)
	assert.Greater(t, got.Position.X, 1000.0, "10 degrees east is far from the origin in meters")
	assert.InDelta(t, 0, got.Position.Y, 1e-6)

	_, err = p.ParseMove([]string{"player-1", "nope"})
	assert.Error(t, err)
}

func TestParseCountryActions(t *testing.T) {
	p := testParser()

	join, err := p.ParseJoinCountry([]string{"player-1", "country-a"})
	require.NoError(t, err)
	assert.Equal(t, CountryActionRequest{PlayerID: "player-1", CountryID: "country-a"}, join)

	_, err = p.ParseJoinCountry([]string{"player-1"})
	assert.Error(t, err)

	leave, err := p.ParseLeaveCountry([]string{"player-1"})
	require.NoError(t, err)
	assert.Equal(t, "player-1", leave.PlayerID)

	_, err = p.ParseLeaveCountry([]string{`""`})
	assert.Error(t, err)
}
