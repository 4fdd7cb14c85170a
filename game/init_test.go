package game

import (
	"math/rand"
	"testing"

	"github.com/tmarlow/tabletan/board"
	utils "github.com/tmarlow/tabletan/internal"
	"github.com/tmarlow/tabletan/protocol"
)

func threePlayers() []protocol.PlayerInfo {
	return []protocol.PlayerInfo{
		{PlayerID: "p1", Name: "Ada", Color: "orange"},
		{PlayerID: "p2", Name: "Grace", Color: "blue"},
		{PlayerID: "p3", Name: "Edsger", Color: "red"},
	}
}

func newTestGame(t *testing.T, rules Rules) *catan {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	b, err := board.NewBoard(board.RandomLayout(rng))
	utils.AssertNoError(t, err)

	g, err := NewCatan(CatanOpts{Board: b, Rules: rules, Rng: rng})
	utils.AssertNoError(t, err)
	utils.AssertNoError(t, g.Start(threePlayers()))
	return g
}

// findSetupSpot picks the first legal settlement vertex for color with an
// empty touching edge.
func findSetupSpot(t *testing.T, g *catan, color string) (board.VertexID, *board.Edge) {
	t.Helper()

	b := g.state.Board
	for _, v := range b.Vertices {
		if b.CanPlaceSettlement(color, v.ID, false) != nil {
			continue
		}
		for _, eid := range v.EdgeIDs() {
			e, err := b.Edge(eid)
			utils.AssertNoError(t, err)
			if e.Color == "" {
				return v.ID, e
			}
		}
	}
	t.Fatal("no legal setup spot left")
	return 0, nil
}

// completeSetup drives the snake rounds to completion with arbitrary legal
// placements and leaves the game in the roll phase.
func completeSetup(t *testing.T, g *catan) {
	t.Helper()

	for {
		p, ok := g.SetupTurn()
		if !ok {
			break
		}
		vid, e := findSetupSpot(t, g, p.Color)
		_, err := g.HandleAction(protocol.PlayerAction{
			Kind:     protocol.PlaceSetup,
			PlayerID: p.ID,
			Vertex:   int(vid),
			EdgeA:    int(e.A),
			EdgeB:    int(e.B),
		})
		utils.AssertNoError(t, err)
	}

	utils.AssertEqual(t, g.state.Turn.Phase, PhaseRoll)
}

// grant moves resources from the bank into a player's hand, preserving the
// conservation invariant while arranging a test.
func grant(t *testing.T, g *catan, playerID string, rc board.ResourceCount) {
	t.Helper()

	p, ok := g.state.PlayerByID(playerID)
	utils.AssertTrue(t, ok)
	for r, n := range rc {
		if g.state.Bank.Resources[r] < n {
			t.Fatalf("bank cannot grant %d %s", n, r)
		}
		g.state.Bank.Resources[r] -= n
		p.Resources[r] += n
	}
}

// setHand returns a player's current hand to the bank and deals rc instead,
// so tests can assert exact counts regardless of earlier payouts.
func setHand(t *testing.T, g *catan, playerID string, rc board.ResourceCount) {
	t.Helper()

	p, ok := g.state.PlayerByID(playerID)
	utils.AssertTrue(t, ok)
	for r, n := range p.Resources {
		g.state.Bank.Resources[r] += n
	}
	p.Resources = board.NewResourceCount(0)
	grant(t, g, playerID, rc)
}

// dicePair splits a total into two legal die values.
func dicePair(total int) (int, int) {
	d1 := total / 2
	return d1, total - d1
}

func mustHandle(t *testing.T, g *catan, action protocol.PlayerAction) []protocol.TurnEvent {
	t.Helper()

	events, err := g.HandleAction(action)
	utils.AssertNoError(t, err)
	return events
}
