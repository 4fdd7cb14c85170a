package game

import (
	"fmt"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/protocol"
)

// ApplyVision commits one debounced vision delta through the same serialized
// path as player actions. Action-derived occupancy always wins: a
// disagreement never overwrites, it yields a conflict event and leaves the
// state untouched. A delta on an empty slot is applied as a correction only
// if it satisfies the placement invariants.
func (g *catan) ApplyVision(delta VisionDelta) ([]protocol.TurnEvent, error) {
	if g == nil {
		return nil, ErrNilGame
	}
	if !g.started || g.state == nil {
		return nil, ErrNotStarted
	}
	if g.Over() {
		return nil, ErrGameOver
	}

	current, origin := g.state.Board.Occupant(delta.Slot)

	// already in agreement
	if (delta.Clear && current == "") || (!delta.Clear && current == delta.Color) {
		return nil, nil
	}

	if delta.Clear {
		return g.applyVisionClear(delta, current, origin)
	}

	if _, ok := g.state.PlayerByColor(delta.Color); !ok {
		return g.conflictEvent(delta, current, "unknown piece color"), nil
	}

	if current != "" {
		// action-derived occupancy is immutable, but a slot vision itself
		// filled may be revised by equally sustained new agreement
		if origin == board.OriginVision {
			return g.applyVisionRevision(delta, current)
		}
		return g.conflictEvent(delta, current, "slot already occupied"), nil
	}

	// empty slot: vision fills a gap the action log missed, if legal
	var placeErr error
	if delta.Slot.Kind == board.SlotVertex {
		placeErr = g.state.Board.CanPlaceSettlement(delta.Color, delta.Slot.Vertex, false)
		if placeErr == nil {
			placeErr = g.state.Board.PlaceSettlement(delta.Slot.Vertex, delta.Color, board.OriginVision)
		}
	} else {
		placeErr = g.state.Board.CanPlaceRoad(delta.Color, delta.Slot.Edge)
		if placeErr == nil {
			placeErr = g.state.Board.PlaceRoad(delta.Slot.Edge, delta.Color, board.OriginVision)
		}
	}
	if placeErr != nil {
		return g.conflictEvent(delta, current, fmt.Sprintf("placement invalid: %s", placeErr)), nil
	}

	event := protocol.TurnEvent{
		Kind:   protocol.EventCorrection,
		Player: delta.Color,
	}
	fillSlot(&event, delta.Slot, g.state.Board)

	winner := g.commit()
	event.Version = g.state.Version
	return appendWinner([]protocol.TurnEvent{event}, winner), nil
}

// applyVisionRevision swaps the color of a vision-derived slot. The new
// occupant must pass the same placement invariants as a fresh fill; if it
// does not, the earlier reading stays and a conflict is raised.
func (g *catan) applyVisionRevision(delta VisionDelta, current string) ([]protocol.TurnEvent, error) {
	b := g.state.Board

	if delta.Slot.Kind == board.SlotVertex {
		vid := delta.Slot.Vertex
		if err := b.ClearVertex(vid); err != nil {
			return nil, err
		}
		if err := b.CanPlaceSettlement(delta.Color, vid, false); err != nil {
			b.PlaceSettlement(vid, current, board.OriginVision)
			return g.conflictEvent(delta, current, fmt.Sprintf("revision invalid: %s", err)), nil
		}
		if err := b.PlaceSettlement(vid, delta.Color, board.OriginVision); err != nil {
			return nil, err
		}
	} else {
		eid := delta.Slot.Edge
		if err := b.ClearEdge(eid); err != nil {
			return nil, err
		}
		if err := b.CanPlaceRoad(delta.Color, eid); err != nil {
			b.PlaceRoad(eid, current, board.OriginVision)
			return g.conflictEvent(delta, current, fmt.Sprintf("revision invalid: %s", err)), nil
		}
		if err := b.PlaceRoad(eid, delta.Color, board.OriginVision); err != nil {
			return nil, err
		}
	}

	event := protocol.TurnEvent{
		Kind:   protocol.EventCorrection,
		Player: delta.Color,
	}
	fillSlot(&event, delta.Slot, b)

	winner := g.commit()
	event.Version = g.state.Version
	return appendWinner([]protocol.TurnEvent{event}, winner), nil
}

// applyVisionClear empties a slot the camera has persistently seen as bare
// board. Only vision-derived occupancy may be cleared this way.
func (g *catan) applyVisionClear(delta VisionDelta, current string, origin board.Origin) ([]protocol.TurnEvent, error) {
	if origin != board.OriginVision {
		return g.conflictEvent(delta, current, "cannot clear action-derived occupancy"), nil
	}

	var err error
	if delta.Slot.Kind == board.SlotVertex {
		err = g.state.Board.ClearVertex(delta.Slot.Vertex)
	} else {
		err = g.state.Board.ClearEdge(delta.Slot.Edge)
	}
	if err != nil {
		return nil, err
	}

	event := protocol.TurnEvent{
		Kind:   protocol.EventCorrection,
		Player: current,
	}
	fillSlot(&event, delta.Slot, g.state.Board)

	winner := g.commit()
	event.Version = g.state.Version
	return appendWinner([]protocol.TurnEvent{event}, winner), nil
}

// conflictEvent surfaces a vision/state disagreement for operator review
// without touching the state.
func (g *catan) conflictEvent(delta VisionDelta, current, reason string) []protocol.TurnEvent {
	proposed := delta.Color
	if delta.Clear {
		proposed = ""
	}
	conflict := &protocol.Conflict{
		SlotKind:      delta.Slot.Kind.String(),
		Proposed:      proposed,
		Authoritative: current,
		Confidence:    delta.Confidence,
		Reason:        reason,
	}
	event := protocol.TurnEvent{
		Kind:     protocol.EventConflict,
		Conflict: conflict,
		Version:  g.state.Version,
	}
	if delta.Slot.Kind == board.SlotVertex {
		conflict.Vertex = int(delta.Slot.Vertex)
	} else {
		e, err := g.state.Board.Edge(delta.Slot.Edge)
		if err == nil {
			conflict.EdgeA, conflict.EdgeB = int(e.A), int(e.B)
		}
	}
	return []protocol.TurnEvent{event}
}

func fillSlot(event *protocol.TurnEvent, slot board.Slot, b *board.Board) {
	if slot.Kind == board.SlotVertex {
		event.Vertex = int(slot.Vertex)
		event.Building = "settlement"
		return
	}
	event.Building = "road"
	if e, err := b.Edge(slot.Edge); err == nil {
		event.EdgeA, event.EdgeB = int(e.A), int(e.B)
	}
}
