package worker

import (
	"fmt"

	"github.com/borderwars/server/internal/dispatcher"
)

// RegisterHandlers registers all wire command handlers with the dispatcher.
// Conflict operations run synchronously so the caller gets the engine's
// verdict; movement is high-volume and buffered.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(":WAR:DECLARE:", m.handleDeclareWar, dispatcher.Logged())
	d.Register(":WAR:END:", m.handleEndWar, dispatcher.Logged())

	d.Register(":PUSH:START:", m.handleStartPush, dispatcher.Logged())
	d.Register(":PUSH:JOIN:", m.handleJoinPush, dispatcher.Logged())
	d.Register(":PUSH:DEFEND:", m.handleDefendPush, dispatcher.Logged())
	d.Register(":PUSH:STOP:", m.handleStopPush, dispatcher.Logged())
	d.Register(":PUSH:PROGRESS:", m.handlePushProgress, dispatcher.Logged())

	d.Register(":PLAYER:MOVE:", m.handleMove, dispatcher.Buffered(10000), dispatcher.Logged())
	d.Register(":PLAYER:JOIN:COUNTRY:", m.handleJoinCountry, dispatcher.Logged())
	d.Register(":PLAYER:LEAVE:COUNTRY:", m.handleLeaveCountry, dispatcher.Logged())
}

func (m *Manager) handleDeclareWar(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParseDeclareWar(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to declare war: %w", err)
	}
	return m.deps.Engine.DeclareWar(req.PlayerID, req.AggressorCountryID, req.TargetCountryID, req.Reason)
}

func (m *Manager) handleEndWar(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParseEndWar(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to end war: %w", err)
	}
	return m.deps.Engine.EndWar(req.WarID, req.PlayerID, req.WinnerCountryID)
}

func (m *Manager) handleStartPush(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParseStartPush(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to start push: %w", err)
	}
	return m.deps.Engine.StartPush(req.PlayerID, req.WarID, req.Position, req.Direction, req.Terrain)
}

func (m *Manager) handleJoinPush(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParsePushAction(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to join push: %w", err)
	}
	return m.deps.Engine.JoinPush(req.PushID, req.PlayerID)
}

func (m *Manager) handleDefendPush(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParsePushAction(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to defend push: %w", err)
	}
	return m.deps.Engine.DefendPush(req.PushID, req.PlayerID)
}

func (m *Manager) handleStopPush(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParseStopPush(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to stop push: %w", err)
	}
	return m.deps.Engine.StopPush(req.PushID, req.Reason)
}

// handlePushProgress answers a read-only progress query without committing
// anything; the conflict tick owns commits.
func (m *Manager) handlePushProgress(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParsePushProgress(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to query push progress: %w", err)
	}
	return m.deps.Engine.PeekProgress(req.PushID)
}

func (m *Manager) handleMove(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParseMove(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to move player: %w", err)
	}
	return nil, m.deps.Engine.MovePlayer(req.PlayerID, req.Position)
}

func (m *Manager) handleJoinCountry(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParseJoinCountry(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to join country: %w", err)
	}
	return m.deps.Engine.JoinCountry(req.PlayerID, req.CountryID)
}

func (m *Manager) handleLeaveCountry(e dispatcher.Event) (any, error) {
	req, err := m.deps.ParserService.ParseLeaveCountry(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to leave country: %w", err)
	}
	return m.deps.Engine.LeaveCountry(req.PlayerID)
}
