package geo

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Position
		wantErr bool
	}{
		{name: "two components", input: "100.5,200.25", want: Position{X: 100.5, Y: 200.25}},
		{name: "three components", input: "1,2,3", want: Position{X: 1, Y: 2, Z: 3}},
		{name: "negative values", input: "-10,-20", want: Position{X: -10, Y: -20}},
		{name: "missing component", input: "42", wantErr: true},
		{name: "garbage x", input: "abc,2", wantErr: true},
		{name: "garbage z", input: "1,2,xyz", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePosition(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCoordinates)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistance(t *testing.T) {
	a := Position{X: 0, Y: 0}
	b := Position{X: 3, Y: 4}
	assert.InDelta(t, 5.0, Distance(a, b), 1e-9)
	assert.Zero(t, Distance(a, a))
}

func TestTerritoryAreaKm2(t *testing.T) {
	// 10050 m pushed: pi * 10.05^2
	assert.InDelta(t, math.Pi*10.05*10.05, TerritoryAreaKm2(10050), 1e-9)
	assert.Zero(t, TerritoryAreaKm2(0))
}

func TestFromLonLat(t *testing.T) {
	// Null island maps to the 3857 origin.
	p := FromLonLat(0, 0)
	assert.InDelta(t, 0, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-6)

	// Positive longitude maps east of the origin.
	east := FromLonLat(10, 0)
	assert.Greater(t, east.X, 0.0)
}

func TestCircleWKT(t *testing.T) {
	wkt, err := CircleWKT(Position{X: 0, Y: 0}, 1000, 16)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wkt, "POLYGON"), "got %q", wkt)
}

func TestCirclePolygonClosed(t *testing.T) {
	poly, err := CirclePolygon(Position{X: 5, Y: 5}, 100, 8)
	require.NoError(t, err)
	ring := poly.ExteriorRing()
	seq := ring.Coordinates()
	require.Greater(t, seq.Length(), 3)
	first := seq.GetXY(0)
	last := seq.GetXY(seq.Length() - 1)
	assert.Equal(t, first, last)
}
