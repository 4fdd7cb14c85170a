package game

import (
	"fmt"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/protocol"
)

// SetupTurn reports whose placement is next during the setup phase.
func (g *catan) SetupTurn() (*Player, bool) {
	if g.state == nil || g.state.Turn.Phase != PhaseSetup {
		return nil, false
	}
	idx := g.state.Turn.SetupIdx
	if idx >= len(g.setup) {
		return nil, false
	}
	return g.state.Players[g.setup[idx]], true
}

// handlePlaceSetup applies one snake-order placement: a free settlement plus
// a road touching it. Placements run P1 P2 P3 P3 P2 P1, then the main loop
// opens with P1 to roll.
func (g *catan) handlePlaceSetup(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requirePhase(PhaseSetup); err != nil {
		return nil, err
	}

	expected, ok := g.SetupTurn()
	if !ok {
		return nil, ErrWrongPhase
	}
	if expected.ID != p.ID {
		return nil, ErrNotPlayersTurn
	}

	vid := board.VertexID(action.Vertex)
	if err := g.state.Board.CanPlaceSettlement(p.Color, vid, false); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalPlacement, err)
	}

	eid, ok := g.state.Board.EdgeBetween(board.VertexID(action.EdgeA), board.VertexID(action.EdgeB))
	if !ok {
		return nil, fmt.Errorf("%w: no edge %d-%d", ErrIllegalPlacement, action.EdgeA, action.EdgeB)
	}
	edge, err := g.state.Board.Edge(eid)
	if err != nil {
		return nil, err
	}
	if edge.Color != "" {
		return nil, fmt.Errorf("%w: %s", ErrIllegalPlacement, board.ErrOccupied)
	}
	if !edge.Touches(vid) {
		return nil, fmt.Errorf("%w: setup road must touch the new settlement", ErrIllegalPlacement)
	}

	if err := g.state.Board.PlaceSettlement(vid, p.Color, board.OriginAction); err != nil {
		return nil, err
	}
	if err := g.state.Board.PlaceRoad(eid, p.Color, board.OriginAction); err != nil {
		return nil, err
	}

	g.state.Turn.SetupIdx++

	events := []protocol.TurnEvent{{
		Kind:   protocol.EventSetupPlaced,
		Player: p.ID,
		Vertex: action.Vertex,
		EdgeA:  action.EdgeA,
		EdgeB:  action.EdgeB,
	}}

	if g.state.Turn.SetupIdx >= len(g.setup) {
		g.state.Turn = TurnState{ActiveIdx: 0, Phase: PhaseRoll}
		g.state.TurnNumber = 1
		events = append(events, protocol.TurnEvent{Kind: protocol.EventSetupComplete})
	}

	winner := g.commit()
	for i := range events {
		events[i].Version = g.state.Version
	}
	return appendWinner(events, winner), nil
}
