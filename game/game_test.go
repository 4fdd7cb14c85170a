package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tmarlow/tabletan/board"
	utils "github.com/tmarlow/tabletan/internal"
	"github.com/tmarlow/tabletan/protocol"
)

func TestStart(t *testing.T) {
	t.Run("seats exactly three players", func(t *testing.T) {
		g, err := NewCatan(CatanOpts{})
		utils.AssertNoError(t, err)

		err = g.Start(threePlayers()[:2])
		assert.ErrorIs(t, err, ErrWrongPlayerCount)

		utils.AssertNoError(t, g.Start(threePlayers()))
	})

	t.Run("fresh game opens in the setup phase", func(t *testing.T) {
		g := newTestGame(t, DefaultRules())

		utils.AssertEqual(t, g.state.Turn.Phase, PhaseSetup)
		utils.AssertEqual(t, g.state.TurnNumber, 1)
		utils.AssertEqual(t, len(g.state.Bank.DevDeck), 25)
		for _, r := range board.Resources {
			utils.AssertEqual(t, g.state.Bank.Resources[r], 19)
		}
	})

	t.Run("rejects duplicate colors", func(t *testing.T) {
		g, err := NewCatan(CatanOpts{})
		utils.AssertNoError(t, err)

		info := threePlayers()
		info[2].Color = info[0].Color
		utils.AssertErrored(t, g.Start(info))
	})

	t.Run("actions before start are rejected", func(t *testing.T) {
		g, err := NewCatan(CatanOpts{})
		utils.AssertNoError(t, err)

		_, err = g.HandleAction(protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1"})
		assert.ErrorIs(t, err, ErrNotStarted)
	})
}

func TestTurnCycle(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)

	// three full turns: the pointer must cycle p1 -> p2 -> p3 -> p1
	order := []string{"p1", "p2", "p3", "p1"}
	for i := 0; i < 3; i++ {
		utils.AssertEqual(t, g.state.ActivePlayer().ID, order[i])

		mustHandle(t, g, protocol.PlayerAction{
			Kind: protocol.Roll, PlayerID: order[i], Die1: 2, Die2: 3,
		})
		mustHandle(t, g, protocol.PlayerAction{Kind: protocol.EndTurn, PlayerID: order[i]})
	}
	utils.AssertEqual(t, g.state.ActivePlayer().ID, order[3])
	utils.AssertEqual(t, g.state.TurnNumber, 4)
}

func TestRoll(t *testing.T) {
	t.Run("only the active player may roll", func(t *testing.T) {
		g := newTestGame(t, DefaultRules())
		completeSetup(t, g)

		_, err := g.HandleAction(protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p2"})
		assert.ErrorIs(t, err, ErrNotPlayersTurn)
	})

	t.Run("cannot roll twice", func(t *testing.T) {
		g := newTestGame(t, DefaultRules())
		completeSetup(t, g)

		mustHandle(t, g, protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1", Die1: 1, Die2: 2})
		_, err := g.HandleAction(protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1", Die1: 1, Die2: 2})
		assert.ErrorIs(t, err, ErrWrongPhase)
	})

	t.Run("rejects impossible dice", func(t *testing.T) {
		g := newTestGame(t, DefaultRules())
		completeSetup(t, g)

		_, err := g.HandleAction(protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1", Die1: 7, Die2: 1})
		assert.ErrorIs(t, err, ErrInvalidAction)
	})

	t.Run("engine rolls when no dice are supplied", func(t *testing.T) {
		g := newTestGame(t, DefaultRules())
		completeSetup(t, g)

		events := mustHandle(t, g, protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1"})
		utils.AssertEqual(t, events[0].Kind, protocol.EventRolled)
		utils.AssertTrue(t, events[0].Die1 >= 1 && events[0].Die1 <= 6)
		utils.AssertTrue(t, events[0].Die2 >= 1 && events[0].Die2 <= 6)
		utils.AssertEqual(t, events[0].Total, events[0].Die1+events[0].Die2)
	})

	t.Run("a seven may carry a robber move", func(t *testing.T) {
		g := newTestGame(t, DefaultRules())
		completeSetup(t, g)

		from := g.state.Board.RobberTile()
		target := (from + 1) % board.TileID(len(g.state.Board.Tiles))
		if target == 0 {
			target++
		}

		_, err := g.HandleAction(protocol.PlayerAction{
			Kind: protocol.Roll, PlayerID: "p1", Die1: 3, Die2: 4, MoveRobber: true, Tile: int(from),
		})
		assert.ErrorIs(t, err, ErrInvalidAction)

		mustHandle(t, g, protocol.PlayerAction{
			Kind: protocol.Roll, PlayerID: "p1", Die1: 3, Die2: 4, Tile: int(target),
		})
		utils.AssertEqual(t, g.state.Board.RobberTile(), target)

		// tile zero is reachable with the explicit flag
		mustHandle(t, g, protocol.PlayerAction{Kind: protocol.EndTurn, PlayerID: "p1"})
		mustHandle(t, g, protocol.PlayerAction{
			Kind: protocol.Roll, PlayerID: "p2", Die1: 3, Die2: 4, MoveRobber: true, Tile: 0,
		})
		utils.AssertEqual(t, g.state.Board.RobberTile(), board.TileID(0))
	})
}

func TestDiscardOnSeven(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)

	// p2 holds 9 cards, p3 holds exactly 7 (no discard owed at 7)
	grant(t, g, "p2", board.ResourceCount{board.Wood: 5, board.Brick: 4})
	grant(t, g, "p3", board.ResourceCount{board.Sheep: 7})

	events := mustHandle(t, g, protocol.PlayerAction{
		Kind: protocol.Roll, PlayerID: "p1", Die1: 3, Die2: 4,
	})

	utils.AssertEqual(t, g.state.Turn.Phase, PhaseDiscard)
	utils.AssertEqual(t, len(events), 2)
	utils.AssertEqual(t, events[1].Kind, protocol.EventDiscardOwed)
	utils.AssertEqual(t, events[1].Owed["p2"], 4) // floor(9/2)
	_, owes := events[1].Owed["p3"]
	utils.AssertTrue(t, !owes)

	t.Run("turn cannot end while discards are owed", func(t *testing.T) {
		_, err := g.HandleAction(protocol.PlayerAction{Kind: protocol.EndTurn, PlayerID: "p1"})
		assert.ErrorIs(t, err, ErrPendingDiscards)
	})

	t.Run("players without debt cannot discard", func(t *testing.T) {
		_, err := g.HandleAction(protocol.PlayerAction{
			Kind: protocol.Discard, PlayerID: "p3",
			Resources: map[string]int{"sheep": 3},
		})
		assert.ErrorIs(t, err, ErrNoDiscardOwed)
	})

	t.Run("the count is enforced, the selection is the player's", func(t *testing.T) {
		_, err := g.HandleAction(protocol.PlayerAction{
			Kind: protocol.Discard, PlayerID: "p2",
			Resources: map[string]int{"wood": 2},
		})
		assert.ErrorIs(t, err, ErrWrongDiscardCount)

		_, err = g.HandleAction(protocol.PlayerAction{
			Kind: protocol.Discard, PlayerID: "p2",
			Resources: map[string]int{"brick": 4},
		})
		assert.ErrorIs(t, err, ErrInsufficientResources)

		mustHandle(t, g, protocol.PlayerAction{
			Kind: protocol.Discard, PlayerID: "p2",
			Resources: map[string]int{"wood": 3, "brick": 1},
		})
	})

	t.Run("hand sizes are within the limit afterwards", func(t *testing.T) {
		utils.AssertEqual(t, g.state.Turn.Phase, PhaseAction)
		for _, p := range g.state.Players {
			utils.AssertTrue(t, p.HandSize() <= 7)
		}
	})
}

// findTileVertices picks two distance-rule-compatible corners of a tile.
func findTileCorners(t *testing.T, b *board.Board, tile *board.Tile) (board.VertexID, board.VertexID) {
	t.Helper()
	return tile.Corners[0], tile.Corners[2]
}

func TestProductionAllOrNothing(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)
	b := g.state.Board

	// a producing tile whose roll we can force
	var tile *board.Tile
	for i := range b.Tiles {
		candidate := &b.Tiles[i]
		if candidate.Terrain == board.Desert || candidate.Robber {
			continue
		}
		c1, c2 := findTileCorners(t, b, candidate)
		if b.Vertices[c1].Building.Kind == board.NoBuilding &&
			b.Vertices[c2].Building.Kind == board.NoBuilding {
			tile = candidate
			break
		}
	}
	utils.AssertNotNil(t, tile)
	res, _ := tile.Terrain.Produces()

	c1, c2 := findTileCorners(t, b, tile)
	utils.AssertNoError(t, b.PlaceSettlement(c1, "orange", board.OriginAction))
	utils.AssertNoError(t, b.PlaceSettlement(c2, "blue", board.OriginAction))

	// drain the bank of that resource, keeping totals conserved
	grant(t, g, "p3", board.ResourceCount{res: g.state.Bank.Resources[res]})
	utils.AssertEqual(t, g.state.Bank.Resources[res], 0)

	before1 := g.state.Players[0].Resources[res]
	before2 := g.state.Players[1].Resources[res]

	d1, d2 := dicePair(tile.Roll)
	events := mustHandle(t, g, protocol.PlayerAction{
		Kind: protocol.Roll, PlayerID: "p1", Die1: d1, Die2: d2,
	})

	// nobody received the short resource, and the bank stayed at zero
	utils.AssertEqual(t, g.state.Players[0].Resources[res], before1)
	utils.AssertEqual(t, g.state.Players[1].Resources[res], before2)
	utils.AssertEqual(t, g.state.Bank.Resources[res], 0)

	var payout protocol.TurnEvent
	for _, e := range events {
		if e.Kind == protocol.EventPayout {
			payout = e
		}
	}
	utils.AssertEqual(t, payout.Payouts["p1"][res.String()], 0)
	utils.AssertEqual(t, payout.Payouts["p2"][res.String()], 0)
}

func TestResourceConservation(t *testing.T) {
	g := newTestGame(t, DefaultRules())

	check := func(label string) {
		t.Helper()
		totals := g.state.ResourceTotals()
		for _, r := range board.Resources {
			if totals[r] != 19 {
				t.Fatalf("%s: %s total drifted to %d", label, r, totals[r])
			}
		}
	}

	check("initial")
	completeSetup(t, g)
	check("after setup")

	mustHandle(t, g, protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1", Die1: 2, Die2: 4})
	check("after roll")

	grant(t, g, "p1", board.ResourceCount{board.Wood: 2, board.Brick: 2, board.Sheep: 2, board.Wheat: 2, board.Ore: 3})
	check("after grant")

	mustHandle(t, g, protocol.PlayerAction{Kind: protocol.BuyDevCard, PlayerID: "p1"})
	check("after dev card purchase")

	// extend the setup road and keep checking
	p1 := g.state.Players[0]
	eid := g.state.Board.RoadsOf(p1.Color)[0]
	e, _ := g.state.Board.Edge(eid)
	far, _ := g.state.Board.Vertex(e.A)
	for _, next := range far.EdgeIDs() {
		ne, _ := g.state.Board.Edge(next)
		if ne.Color == "" {
			if g.state.Board.CanPlaceRoad(p1.Color, next) == nil {
				mustHandle(t, g, protocol.PlayerAction{
					Kind: protocol.BuildRoad, PlayerID: "p1",
					EdgeA: int(ne.A), EdgeB: int(ne.B),
				})
				break
			}
		}
	}
	check("after road build")

	mustHandle(t, g, protocol.PlayerAction{Kind: protocol.EndTurn, PlayerID: "p1"})
	check("after end turn")
}

func TestGameOverRejectsActions(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)

	g.state.Winner = "p1"
	g.state.Turn.Phase = PhaseEnded

	_, err := g.HandleAction(protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1"})
	utils.AssertTrue(t, errors.Is(err, ErrGameOver))

	winner, ok := g.Winner()
	utils.AssertTrue(t, ok)
	utils.AssertEqual(t, winner, "p1")
}

func TestUnknownPlayerAndKind(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	completeSetup(t, g)

	_, err := g.HandleAction(protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "nobody"})
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	_, err = g.HandleAction(protocol.PlayerAction{Kind: protocol.Unknown, PlayerID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestVersionAdvancesPerCommit(t *testing.T) {
	g := newTestGame(t, DefaultRules())

	v0 := g.state.Version
	completeSetup(t, g)
	utils.AssertEqual(t, g.state.Version, v0+6)

	// a rejected action must not advance the version
	before := g.state.Version
	_, err := g.HandleAction(protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p2"})
	utils.AssertErrored(t, err)
	utils.AssertEqual(t, g.state.Version, before)
}
