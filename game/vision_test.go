package game

import (
	"testing"

	"github.com/tmarlow/tabletan/board"
	utils "github.com/tmarlow/tabletan/internal"
	"github.com/tmarlow/tabletan/protocol"
)

func vertexSlot(vid board.VertexID) board.Slot {
	return board.Slot{Kind: board.SlotVertex, Vertex: vid}
}

func edgeSlot(eid board.EdgeID) board.Slot {
	return board.Slot{Kind: board.SlotEdge, Edge: eid}
}

// orangeSettlement finds one of p1's setup settlements.
func orangeSettlement(t *testing.T, g *catan) board.VertexID {
	t.Helper()
	for _, v := range g.state.Board.Vertices {
		if v.Building.Kind == board.Settlement && v.Building.Color == "orange" {
			return v.ID
		}
	}
	t.Fatal("no orange settlement on the board")
	return 0
}

// emptyLegalVertex finds an unoccupied vertex where color could settle,
// ignoring road connectivity.
func emptyLegalVertex(t *testing.T, g *catan, color string) board.VertexID {
	t.Helper()
	for _, v := range g.state.Board.Vertices {
		if g.state.Board.CanPlaceSettlement(color, v.ID, false) == nil {
			return v.ID
		}
	}
	t.Fatal("no legal vertex left")
	return 0
}

func TestApplyVisionAgreement(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)
	vid := orangeSettlement(t, g)
	before := g.state.Version

	events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Color: "orange", Confidence: 0.9})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, len(events), 0)
	utils.AssertEqual(t, g.state.Version, before)
}

func TestApplyVisionConflicts(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)

	t.Run("disagreement with action-derived state never overwrites", func(t *testing.T) {
		vid := orangeSettlement(t, g)
		before := g.state.Version

		events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Color: "blue", Confidence: 0.8})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventConflict)
		utils.AssertEqual(t, events[0].Conflict.Proposed, "blue")
		utils.AssertEqual(t, events[0].Conflict.Authoritative, "orange")
		utils.AssertEqual(t, events[0].Conflict.Vertex, int(vid))

		v, err := g.state.Board.Vertex(vid)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, v.Building.Color, "orange")
		utils.AssertEqual(t, g.state.Version, before)
	})

	t.Run("unknown piece color", func(t *testing.T) {
		vid := emptyLegalVertex(t, g, "orange")
		events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Color: "purple", Confidence: 0.9})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventConflict)

		v, _ := g.state.Board.Vertex(vid)
		utils.AssertEqual(t, v.Building.Kind, board.NoBuilding)
	})

	t.Run("illegal fill stays a conflict", func(t *testing.T) {
		// a vertex adjacent to an existing settlement violates the
		// distance rule, so vision may not fill it
		settled, _ := g.state.Board.Vertex(orangeSettlement(t, g))
		adjacent := settled.Neighbours()[0]

		events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(adjacent), Color: "blue", Confidence: 0.9})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventConflict)
	})

	t.Run("clearing action-derived occupancy is refused", func(t *testing.T) {
		vid := orangeSettlement(t, g)
		events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Clear: true, Confidence: 0.9})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventConflict)

		v, _ := g.state.Board.Vertex(vid)
		utils.AssertEqual(t, v.Building.Kind, board.Settlement)
	})
}

func TestApplyVisionCorrections(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)

	t.Run("fills a legal empty vertex", func(t *testing.T) {
		vid := emptyLegalVertex(t, g, "blue")
		before := g.state.Version

		events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Color: "blue", Confidence: 0.95})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventCorrection)
		utils.AssertEqual(t, events[0].Building, "settlement")

		v, err := g.state.Board.Vertex(vid)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, v.Building.Kind, board.Settlement)
		utils.AssertEqual(t, v.Building.Color, "blue")
		utils.AssertEqual(t, v.Building.Origin, board.OriginVision)
		utils.AssertEqual(t, g.state.Version, before+1)
	})

	t.Run("fills a connected empty edge", func(t *testing.T) {
		var eid board.EdgeID = -1
		for _, e := range g.state.Board.Edges {
			if e.Color == "" && g.state.Board.CanPlaceRoad("orange", e.ID) == nil {
				eid = e.ID
				break
			}
		}
		utils.AssertTrue(t, eid >= 0)

		events, err := g.ApplyVision(VisionDelta{Slot: edgeSlot(eid), Color: "orange", Confidence: 0.95})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventCorrection)
		utils.AssertEqual(t, events[0].Building, "road")

		e, err := g.state.Board.Edge(eid)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, e.Color, "orange")
		utils.AssertEqual(t, e.Origin, board.OriginVision)
	})

	t.Run("vision-derived occupancy may be cleared", func(t *testing.T) {
		// the settlement filled by the first subtest
		var vid board.VertexID = -1
		for _, v := range g.state.Board.Vertices {
			if v.Building.Origin == board.OriginVision {
				vid = v.ID
				break
			}
		}
		utils.AssertTrue(t, vid >= 0)

		events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Clear: true, Confidence: 0.95})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventCorrection)

		v, err := g.state.Board.Vertex(vid)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, v.Building.Kind, board.NoBuilding)
	})
}

func TestApplyVisionRevision(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)

	t.Run("a vision-derived settlement may change color", func(t *testing.T) {
		vid := emptyLegalVertex(t, g, "blue")
		events, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Color: "blue", Confidence: 0.9, Batches: 3})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventCorrection)
		before := g.state.Version

		// the camera settles on red for the same slot
		events, err = g.ApplyVision(VisionDelta{Slot: vertexSlot(vid), Color: "red", Confidence: 0.9, Batches: 5})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventCorrection)
		utils.AssertEqual(t, events[0].Player, "red")

		v, err := g.state.Board.Vertex(vid)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, v.Building.Color, "red")
		utils.AssertEqual(t, v.Building.Origin, board.OriginVision)
		utils.AssertEqual(t, g.state.Version, before+1)
	})

	t.Run("a revision must still satisfy placement invariants", func(t *testing.T) {
		// a road only orange's network can carry
		var eid board.EdgeID = -1
		for _, e := range g.state.Board.Edges {
			if e.Color == "" &&
				g.state.Board.CanPlaceRoad("orange", e.ID) == nil &&
				g.state.Board.CanPlaceRoad("blue", e.ID) != nil {
				eid = e.ID
				break
			}
		}
		utils.AssertTrue(t, eid >= 0)

		events, err := g.ApplyVision(VisionDelta{Slot: edgeSlot(eid), Color: "orange", Confidence: 0.9, Batches: 3})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventCorrection)

		events, err = g.ApplyVision(VisionDelta{Slot: edgeSlot(eid), Color: "blue", Confidence: 0.9, Batches: 5})
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, events[0].Kind, protocol.EventConflict)
		utils.AssertEqual(t, events[0].Conflict.Authoritative, "orange")

		e, err := g.state.Board.Edge(eid)
		utils.AssertNoError(t, err)
		utils.AssertEqual(t, e.Color, "orange")
		utils.AssertEqual(t, e.Origin, board.OriginVision)
	})
}

func TestApplyVisionAfterGameOver(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)
	startTurn(t, g)

	g.state.Players[0].DevCards[board.VictoryPointCard] = 8
	mustHandle(t, g, protocol.PlayerAction{Kind: protocol.EndTurn, PlayerID: "p1"})
	utils.AssertTrue(t, g.Over())

	_, err := g.ApplyVision(VisionDelta{Slot: vertexSlot(0), Color: "blue"})
	utils.AssertEqual(t, err, ErrGameOver)
}
