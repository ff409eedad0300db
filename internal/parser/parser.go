// Package parser provides pure []string -> request struct conversion for
// every wire command. It has zero external dependencies beyond a logger: no
// engine calls, no storage, no callbacks.
package parser

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/borderwars/server/internal/geo"
	"github.com/borderwars/server/internal/util"
)

// Parser converts raw wire arguments into typed requests.
type Parser struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// clean strips the quoting the transport applies to every argument.
func clean(data []string) []string {
	out := make([]string, len(data))
	for i, v := range data {
		out[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}
	return out
}

// DeclareWarRequest is parsed from [playerID, aggressorCountryID,
// targetCountryID, reason?].
type DeclareWarRequest struct {
	PlayerID           string
	AggressorCountryID string
	TargetCountryID    string
	Reason             string
}

func (p *Parser) ParseDeclareWar(data []string) (DeclareWarRequest, error) {
	data = clean(data)
	if len(data) < 3 {
		return DeclareWarRequest{}, fmt.Errorf("declare war: expected at least 3 args, got %d", len(data))
	}
	req := DeclareWarRequest{
		PlayerID:           data[0],
		AggressorCountryID: data[1],
		TargetCountryID:    data[2],
	}
	if len(data) > 3 {
		req.Reason = data[3]
	}
	if req.PlayerID == "" || req.AggressorCountryID == "" || req.TargetCountryID == "" {
		return DeclareWarRequest{}, fmt.Errorf("declare war: empty identifier in %v", data[:3])
	}
	return req, nil
}

// EndWarRequest is parsed from [warID, playerID, winnerCountryID?].
type EndWarRequest struct {
	WarID           string
	PlayerID        string
	WinnerCountryID string
}

func (p *Parser) ParseEndWar(data []string) (EndWarRequest, error) {
	data = clean(data)
	if len(data) < 2 {
		return EndWarRequest{}, fmt.Errorf("end war: expected at least 2 args, got %d", len(data))
	}
	req := EndWarRequest{WarID: data[0], PlayerID: data[1]}
	if len(data) > 2 {
		req.WinnerCountryID = data[2]
	}
	if req.WarID == "" || req.PlayerID == "" {
		return EndWarRequest{}, fmt.Errorf("end war: empty identifier in %v", data[:2])
	}
	return req, nil
}

// StartPushRequest is parsed from [playerID, warID, "x,y", direction,
// terrain?]. Terrain 0 lets the engine fall back to the target country's
// modifier.
type StartPushRequest struct {
	PlayerID  string
	WarID     string
	Position  geo.Position
	Direction float64
	Terrain   float64
}

func (p *Parser) ParseStartPush(data []string) (StartPushRequest, error) {
	data = clean(data)
	if len(data) < 4 {
		return StartPushRequest{}, fmt.Errorf("start push: expected at least 4 args, got %d", len(data))
	}
	pos, err := geo.ParsePosition(data[2])
	if err != nil {
		return StartPushRequest{}, fmt.Errorf("start push: %w", err)
	}
	direction, err := strconv.ParseFloat(data[3], 64)
	if err != nil {
		return StartPushRequest{}, fmt.Errorf("start push: invalid direction %q: %w", data[3], err)
	}
	req := StartPushRequest{
		PlayerID:  data[0],
		WarID:     data[1],
		Position:  pos,
		Direction: direction,
	}
	if len(data) > 4 && data[4] != "" {
		req.Terrain, err = strconv.ParseFloat(data[4], 64)
		if err != nil {
			return StartPushRequest{}, fmt.Errorf("start push: invalid terrain %q: %w", data[4], err)
		}
	}
	if req.PlayerID == "" || req.WarID == "" {
		return StartPushRequest{}, fmt.Errorf("start push: empty identifier in %v", data[:2])
	}
	return req, nil
}

// PushActionRequest covers join and defend: [pushID, playerID].
type PushActionRequest struct {
	PushID   string
	PlayerID string
}

func (p *Parser) ParsePushAction(data []string) (PushActionRequest, error) {
	data = clean(data)
	if len(data) < 2 {
		return PushActionRequest{}, fmt.Errorf("push action: expected 2 args, got %d", len(data))
	}
	req := PushActionRequest{PushID: data[0], PlayerID: data[1]}
	if req.PushID == "" || req.PlayerID == "" {
		return PushActionRequest{}, fmt.Errorf("push action: empty identifier in %v", data[:2])
	}
	return req, nil
}

// StopPushRequest is parsed from [pushID, reason?].
type StopPushRequest struct {
	PushID string
	Reason string
}

func (p *Parser) ParseStopPush(data []string) (StopPushRequest, error) {
	data = clean(data)
	if len(data) < 1 || data[0] == "" {
		return StopPushRequest{}, fmt.Errorf("stop push: missing push id")
	}
	req := StopPushRequest{PushID: data[0]}
	if len(data) > 1 {
		req.Reason = data[1]
	}
	return req, nil
}

// PushProgressRequest is parsed from [pushID].
type PushProgressRequest struct {
	PushID string
}

func (p *Parser) ParsePushProgress(data []string) (PushProgressRequest, error) {
	data = clean(data)
	if len(data) < 1 || data[0] == "" {
		return PushProgressRequest{}, fmt.Errorf("push progress: missing push id")
	}
	return PushProgressRequest{PushID: data[0]}, nil
}

// MoveRequest is parsed from [playerID, "x,y[,z]", crs?]. Coordinates arrive
// in EPSG:3857 meters unless crs is "4326", in which case they are
// longitude/latitude and get projected.
type MoveRequest struct {
	PlayerID string
	Position geo.Position
}

func (p *Parser) ParseMove(data []string) (MoveRequest, error) {
	data = clean(data)
	if len(data) < 2 {
		return MoveRequest{}, fmt.Errorf("move: expected at least 2 args, got %d", len(data))
	}
	if data[0] == "" {
		return MoveRequest{}, fmt.Errorf("move: missing player id")
	}
	pos, err := geo.ParsePosition(data[1])
	if err != nil {
		return MoveRequest{}, fmt.Errorf("move: %w", err)
	}
	if len(data) > 2 && data[2] == "4326" {
		projected := geo.FromLonLat(pos.X, pos.Y)
		projected.Z = pos.Z
		pos = projected
	}
	return MoveRequest{PlayerID: data[0], Position: pos}, nil
}

// CountryActionRequest covers joining a country ([playerID, countryID]) and
// leaving one ([playerID]).
type CountryActionRequest struct {
	PlayerID  string
	CountryID string
}

func (p *Parser) ParseJoinCountry(data []string) (CountryActionRequest, error) {
	data = clean(data)
	if len(data) < 2 || data[0] == "" || data[1] == "" {
		return CountryActionRequest{}, fmt.Errorf("join country: expected [playerID, countryID], got %v", data)
	}
	return CountryActionRequest{PlayerID: data[0], CountryID: data[1]}, nil
}

func (p *Parser) ParseLeaveCountry(data []string) (CountryActionRequest, error) {
	data = clean(data)
	if len(data) < 1 || data[0] == "" {
		return CountryActionRequest{}, fmt.Errorf("leave country: missing player id")
	}
	return CountryActionRequest{PlayerID: data[0]}, nil
}
