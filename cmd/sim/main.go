// Command sim plays a full three-seat game against itself: random legal
// builds, a weighted-random discard picker, every event printed. Useful for
// soaking the engine and snapshot path without a camera or table hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/engine"
	"github.com/tmarlow/tabletan/game"
	"github.com/tmarlow/tabletan/protocol"
	"github.com/tmarlow/tabletan/store"
)

var setupOrder = []int{0, 1, 2, 2, 1, 0}

func main() {
	seed := flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	maxTurns := flag.Int("max-turns", 200, "stop after this many turns")
	snapshotPath := flag.String("snapshot", "tabletan-sim.json", "snapshot file")
	flag.Parse()

	log.SetFlags(0)
	log.Printf("seed %d", *seed)

	rng := rand.New(rand.NewSource(*seed))
	b, err := board.NewBoard(board.RandomLayout(rng))
	if err != nil {
		log.Fatal(err.Error())
	}
	g, err := game.NewCatan(game.CatanOpts{Board: b, Rules: game.DefaultRules(), Rng: rng})
	if err != nil {
		log.Fatal(err.Error())
	}

	ge, err := engine.NewGameEngine(engine.GameEngineOpts{
		GameID:    "sim",
		GameCode:  "SIMSIM",
		CreatorID: "p1",
		Game:      g,
		Snapshots: store.NewSnapshotStore(*snapshotPath),
	})
	if err != nil {
		log.Fatal(err.Error())
	}
	defer ge.Shutdown()

	seats := []protocol.PlayerInfo{
		{PlayerID: "p1", Name: "Ada"},
		{PlayerID: "p2", Name: "Grace"},
		{PlayerID: "p3", Name: "Edsger"},
	}
	if err := ge.Start(seats); err != nil {
		log.Fatal(err.Error())
	}

	ctx := context.Background()
	for {
		var (
			action protocol.PlayerAction
			done   bool
			turn   int
		)
		err := ge.Inspect(ctx, func(state *game.GameState) {
			turn = state.TurnNumber
			action, done = pickAction(state, rng)
		})
		if err != nil {
			log.Fatal(err.Error())
		}
		if done || turn > *maxTurns {
			break
		}

		events, err := ge.Send(ctx, action)
		if err != nil {
			log.Fatalf("turn %d: %s refused: %s", turn, action.Kind, err)
		}
		for _, event := range events {
			printEvent(turn, event)
		}
	}

	err = ge.Inspect(ctx, func(state *game.GameState) {
		if state.Winner != "" {
			p, _ := state.PlayerByID(state.Winner)
			fmt.Printf("\n%s (%s) wins on turn %d\n", p.Name, p.Color, state.TurnNumber)
		} else {
			fmt.Printf("\nno winner after %d turns\n", state.TurnNumber)
		}
		for id, vp := range state.Standings() {
			p, _ := state.PlayerByID(id)
			fmt.Printf("  %-8s %d VP\n", p.Name, vp)
		}
	})
	if err != nil {
		log.Fatal(err.Error())
	}
}

// pickAction chooses the next legal move. done is true once the game is
// over.
func pickAction(state *game.GameState, rng *rand.Rand) (protocol.PlayerAction, bool) {
	switch state.Turn.Phase {
	case game.PhaseSetup:
		p := state.Players[setupOrder[state.Turn.SetupIdx]]
		vid, eid := setupSpot(state.Board, p.Color, rng)
		e, _ := state.Board.Edge(eid)
		return protocol.PlayerAction{
			Kind:     protocol.PlaceSetup,
			PlayerID: p.ID,
			Vertex:   int(vid),
			EdgeA:    int(e.A),
			EdgeB:    int(e.B),
		}, false

	case game.PhaseRoll:
		return protocol.PlayerAction{Kind: protocol.Roll, PlayerID: state.ActivePlayer().ID}, false

	case game.PhaseDiscard:
		for id, owed := range state.Turn.PendingDiscards {
			p, _ := state.PlayerByID(id)
			return protocol.PlayerAction{
				Kind:      protocol.Discard,
				PlayerID:  id,
				Resources: pickDiscards(p.Resources, owed, rng),
			}, false
		}
		// unreachable: the phase clears with the last discard
		return protocol.PlayerAction{}, true

	case game.PhaseAction:
		p := state.ActivePlayer()
		if action, ok := pickBuild(state, p, rng); ok {
			return action, false
		}
		return protocol.PlayerAction{Kind: protocol.EndTurn, PlayerID: p.ID}, false

	default:
		return protocol.PlayerAction{}, true
	}
}

// pickBuild tries city, settlement, road, then a dev card buy, each skipped
// at random so games vary.
func pickBuild(state *game.GameState, p *game.Player, rng *rand.Rand) (protocol.PlayerAction, bool) {
	b := state.Board

	if p.Resources.Covers(board.CityCost) && rng.Intn(4) > 0 {
		for _, v := range b.Vertices {
			if b.CanUpgradeCity(p.Color, v.ID) == nil {
				return protocol.PlayerAction{
					Kind:     protocol.BuildCity,
					PlayerID: p.ID,
					Vertex:   int(v.ID),
				}, true
			}
		}
	}

	if p.Resources.Covers(board.SettlementCost) && rng.Intn(4) > 0 {
		for _, v := range b.Vertices {
			if b.CanPlaceSettlement(p.Color, v.ID, true) == nil {
				return protocol.PlayerAction{
					Kind:     protocol.BuildSettlement,
					PlayerID: p.ID,
					Vertex:   int(v.ID),
				}, true
			}
		}
	}

	if p.Resources.Covers(board.RoadCost) && rng.Intn(3) > 0 {
		for _, e := range b.Edges {
			if b.CanPlaceRoad(p.Color, e.ID) == nil {
				return protocol.PlayerAction{
					Kind:     protocol.BuildRoad,
					PlayerID: p.ID,
					EdgeA:    int(e.A),
					EdgeB:    int(e.B),
				}, true
			}
		}
	}

	if p.Resources.Covers(board.DevCardCost) && len(state.Bank.DevDeck) > 0 && rng.Intn(2) == 0 {
		return protocol.PlayerAction{Kind: protocol.BuyDevCard, PlayerID: p.ID}, true
	}

	return protocol.PlayerAction{}, false
}

// setupSpot picks a random legal settlement vertex with a free touching
// edge.
func setupSpot(b *board.Board, color string, rng *rand.Rand) (board.VertexID, board.EdgeID) {
	start := rng.Intn(len(b.Vertices))
	for i := range b.Vertices {
		v := b.Vertices[(start+i)%len(b.Vertices)]
		if b.CanPlaceSettlement(color, v.ID, false) != nil {
			continue
		}
		for _, eid := range v.EdgeIDs() {
			if e, err := b.Edge(eid); err == nil && e.Color == "" {
				return v.ID, eid
			}
		}
	}
	log.Fatal("no legal setup spot left")
	return 0, 0
}

// pickDiscards selects owed cards weighted by how many of each the player
// holds.
func pickDiscards(hand board.ResourceCount, owed int, rng *rand.Rand) map[string]int {
	var pool []board.Resource
	for _, res := range board.Resources {
		for i := 0; i < hand[res]; i++ {
			pool = append(pool, res)
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	picked := map[string]int{}
	for i := 0; i < owed && i < len(pool); i++ {
		picked[pool[i].String()]++
	}
	return picked
}

func printEvent(turn int, event protocol.TurnEvent) {
	switch event.Kind {
	case protocol.EventRolled:
		fmt.Printf("[%3d] %s rolled %d+%d\n", turn, event.Player, event.Die1, event.Die2)
	case protocol.EventBuilt:
		fmt.Printf("[%3d] %s built a %s\n", turn, event.Player, event.Building)
	case protocol.EventWinner:
		fmt.Printf("[%3d] %s wins!\n", turn, event.Player)
	default:
		fmt.Printf("[%3d] %s %s\n", turn, event.Kind, event.Player)
	}
}
