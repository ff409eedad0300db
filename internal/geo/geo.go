package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Positions are always handled in EPSG:3857 (meters), including positions
// that arrive from clients as longitude/latitude. Working in a projected CRS
// keeps the push distance metric a plain euclidean computation.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Position is a point in EPSG:3857 meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ParsePosition parses a string in the format "x,y" or "x,y,z" into a Position.
func ParsePosition(coords string) (Position, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return Position{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(coordsSplit[0], 64)
	if err != nil {
		return Position{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(coordsSplit[1], 64)
	if err != nil {
		return Position{}, ErrInvalidCoordinates
	}
	var z float64
	if len(coordsSplit) > 2 {
		z, err = strconv.ParseFloat(coordsSplit[2], 64)
		if err != nil {
			return Position{}, ErrInvalidCoordinates
		}
	}
	return Position{X: x, Y: y, Z: z}, nil
}

// FromLonLat converts an EPSG:4326 longitude/latitude into a 3857 Position.
func FromLonLat(longitude, latitude float64) Position {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	return Position{X: x, Y: y}
}

// Distance returns the planar distance in meters between two positions.
func Distance(a, b Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// TerritoryAreaKm2 converts a pushed distance (meters) into the circular
// territory approximation in square kilometers.
func TerritoryAreaKm2(distanceMeters float64) float64 {
	r := distanceMeters / 1000.0
	return math.Pi * r * r
}

// CirclePolygon approximates the circular territory gain around center as a
// closed polygon with the given number of segments. Observers render this
// directly; true boundary geometry is left to the geospatial service.
func CirclePolygon(center Position, radiusMeters float64, segments int) (geom.Polygon, error) {
	if segments < 3 {
		segments = 32
	}
	coords := make([]float64, 0, (segments+1)*2)
	for i := 0; i <= segments; i++ {
		angle := 2 * math.Pi * float64(i%segments) / float64(segments)
		coords = append(coords,
			center.X+radiusMeters*math.Cos(angle),
			center.Y+radiusMeters*math.Sin(angle),
		)
	}
	seq := geom.NewSequence(coords, geom.DimXY)
	ring, err := geom.NewLineString(seq)
	if err != nil {
		return geom.Polygon{}, err
	}
	return geom.NewPolygon([]geom.LineString{ring})
}

// CircleWKT renders the circular territory gain as WKT for event payloads.
func CircleWKT(center Position, radiusMeters float64, segments int) (string, error) {
	poly, err := CirclePolygon(center, radiusMeters, segments)
	if err != nil {
		return "", err
	}
	return poly.AsText(), nil
}
