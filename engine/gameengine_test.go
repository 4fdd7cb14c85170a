package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/game"
	utils "github.com/tmarlow/tabletan/internal"
	"github.com/tmarlow/tabletan/protocol"
	"github.com/tmarlow/tabletan/reconcile"
)

func somePlayers() []protocol.PlayerInfo {
	return []protocol.PlayerInfo{
		{PlayerID: "p1", Name: "Ada", Color: "orange"},
		{PlayerID: "p2", Name: "Grace", Color: "blue"},
		{PlayerID: "p3", Name: "Edsger", Color: "red"},
	}
}

type spySnapshotter struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (s *spySnapshotter) Save(state *game.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	return nil
}

func (s *spySnapshotter) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestNewGameEngine(t *testing.T) {
	t.Run("requires a game", func(t *testing.T) {
		_, err := NewGameEngine(GameEngineOpts{GameID: "g1"})
		assert.ErrorIs(t, err, ErrNoGame)
	})

	t.Run("carries its identity", func(t *testing.T) {
		e, err := NewGameEngine(GameEngineOpts{
			GameID:    "g1",
			GameCode:  "ABCDEF",
			CreatorID: "p1",
			Game:      NewSpyGame(),
		})
		utils.AssertNoError(t, err)
		defer e.Shutdown()

		utils.AssertEqual(t, e.ID(), "g1")
		utils.AssertEqual(t, e.Code(), "ABCDEF")
		utils.AssertEqual(t, e.CreatorID(), "p1")
		utils.AssertEqual(t, e.PlayState(), Idle)
	})

	t.Run("a restored game comes up running", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		b, err := board.NewBoard(board.RandomLayout(rng))
		utils.AssertNoError(t, err)
		state, err := game.NewGameState(b, somePlayers(), game.DefaultRules(), rng)
		utils.AssertNoError(t, err)

		g, err := game.NewCatan(game.CatanOpts{Board: b, Restore: state, Rng: rng})
		utils.AssertNoError(t, err)

		e, err := NewGameEngine(GameEngineOpts{GameID: "g2", Game: g})
		utils.AssertNoError(t, err)
		defer e.Shutdown()

		utils.AssertEqual(t, e.PlayState(), InProgress)
		utils.AssertErrored(t, e.Start(somePlayers()))
	})
}

func TestEngineStartAndSend(t *testing.T) {
	spy := NewSpyGame()
	e, err := NewGameEngine(GameEngineOpts{GameID: "g1", Game: spy})
	utils.AssertNoError(t, err)

	utils.AssertNoError(t, e.Start(somePlayers()))
	utils.AssertTrue(t, spy.StartCalled())
	utils.AssertEqual(t, e.PlayState(), InProgress)

	_, err = e.Send(context.Background(), protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1"})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, len(spy.Actions()), 1)
	utils.AssertEqual(t, spy.Actions()[0].Kind, protocol.Roll)

	e.Shutdown()
	_, err = e.Send(context.Background(), protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1"})
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngineSendRespectsContext(t *testing.T) {
	spy := NewSpyGame()
	e, err := NewGameEngine(GameEngineOpts{GameID: "g1", Game: spy})
	utils.AssertNoError(t, err)
	defer e.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	utils.Within(t, time.Second, func() {
		for {
			_, err := e.Send(ctx, protocol.PlayerAction{Kind: protocol.Roll})
			if errors.Is(err, context.DeadlineExceeded) {
				return
			}
		}
	})
}

func TestEngineSubscribers(t *testing.T) {
	spy := NewSpyGame()
	spy.events = []protocol.TurnEvent{{Kind: protocol.EventRolled, Player: "p1"}}

	e, err := NewGameEngine(GameEngineOpts{GameID: "g1", Game: spy})
	utils.AssertNoError(t, err)
	defer e.Shutdown()

	ch, cancel := e.Subscribe()
	defer cancel()

	_, err = e.Send(context.Background(), protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1"})
	utils.AssertNoError(t, err)

	utils.Within(t, time.Second, func() {
		event := <-ch
		if event.Kind != protocol.EventRolled {
			t.Errorf("got event kind %s", event.Kind)
		}
	})

	t.Run("a cancelled subscriber gets a closed channel", func(t *testing.T) {
		ch2, cancel2 := e.Subscribe()
		cancel2()
		utils.Within(t, time.Second, func() {
			for range ch2 {
			}
		})
	})
}

func TestEngineSnapshotWarning(t *testing.T) {
	spy := NewSpyGame()
	spy.events = []protocol.TurnEvent{{Kind: protocol.EventRolled, Player: "p1"}}
	snap := &spySnapshotter{err: errors.New("disk full")}

	e, err := NewGameEngine(GameEngineOpts{GameID: "g1", Game: spy, Snapshots: snap})
	utils.AssertNoError(t, err)
	defer e.Shutdown()

	ch, cancel := e.Subscribe()
	defer cancel()

	_, err = e.Send(context.Background(), protocol.PlayerAction{Kind: protocol.Roll, PlayerID: "p1"})
	utils.AssertNoError(t, err)

	utils.Within(t, time.Second, func() {
		for event := range ch {
			if event.Kind == protocol.EventSnapshotWarning {
				return
			}
		}
	})
}

// engineFixture wires a real game with one calibrated vertex so vision
// corrections can flow end to end.
func engineFixture(t *testing.T, window int) (*gameEngine, *spySnapshotter) {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	layout := board.RandomLayout(rng)
	layout.Cameras = []board.SlotCamera{{Vertex: intPtr(0), X: 100, Y: 100}}
	b, err := board.NewBoard(layout)
	utils.AssertNoError(t, err)

	g, err := game.NewCatan(game.CatanOpts{Board: b, Rules: game.DefaultRules(), Rng: rng})
	utils.AssertNoError(t, err)

	rec, err := reconcile.NewReconciler(b, reconcile.Options{
		DebounceWindow:   window,
		MinConfidence:    0.5,
		MaxMatchDistance: 20,
	})
	utils.AssertNoError(t, err)

	snap := &spySnapshotter{}
	e, err := NewGameEngine(GameEngineOpts{
		GameID:     "g1",
		Game:       g,
		Reconciler: rec,
		Snapshots:  snap,
	})
	utils.AssertNoError(t, err)
	t.Cleanup(e.Shutdown)

	utils.AssertNoError(t, e.Start(somePlayers()))
	return e, snap
}

func intPtr(n int) *int { return &n }

func vertexZero(t *testing.T, e *gameEngine) (color string, origin board.Origin) {
	t.Helper()
	err := e.Inspect(context.Background(), func(state *game.GameState) {
		v, err := state.Board.Vertex(0)
		if err != nil {
			t.Error(err)
			return
		}
		color, origin = v.Building.Color, v.Building.Origin
	})
	utils.AssertNoError(t, err)
	return color, origin
}

func TestEngineReconcileDrain(t *testing.T) {
	e, snap := engineFixture(t, 1)

	batch := protocol.ObservationBatch{
		Observations: []protocol.Observation{{X: 100, Y: 100, Color: "blue", Confidence: 0.9}},
		Captured:     time.Now(),
	}
	utils.AssertTrue(t, e.Observe(batch))

	// nothing is merged until a synchronization point
	color, _ := vertexZero(t, e)
	utils.AssertEqual(t, color, "")

	events, err := e.Send(context.Background(), protocol.PlayerAction{Kind: protocol.Reconcile})
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, len(events), 1)
	utils.AssertEqual(t, events[0].Kind, protocol.EventCorrection)

	color, origin := vertexZero(t, e)
	utils.AssertEqual(t, color, "blue")
	utils.AssertEqual(t, origin, board.OriginVision)
	utils.AssertTrue(t, snap.Saves() > 0)
}

func TestEngineDrainsAtPhaseBoundary(t *testing.T) {
	e, _ := engineFixture(t, 1)

	// queue a correction, then walk the whole setup snake; the final
	// placement flips the phase to roll, which merges the queue
	utils.AssertTrue(t, e.Observe(protocol.ObservationBatch{
		Observations: []protocol.Observation{{X: 100, Y: 100, Color: "blue", Confidence: 0.9}},
		Captured:     time.Now(),
	}))

	placers := []string{"p1", "p2", "p3", "p3", "p2", "p1"}
	colors := map[string]string{"p1": "orange", "p2": "blue", "p3": "red"}
	for i, id := range placers {
		var vid board.VertexID
		var ea, eb int
		err := e.Inspect(context.Background(), func(state *game.GameState) {
			zero, err := state.Board.Vertex(0)
			if err != nil {
				t.Error(err)
				return
			}
			nearZero := map[board.VertexID]bool{0: true}
			for _, n := range zero.Neighbours() {
				nearZero[n] = true
			}

			found := false
			for _, v := range state.Board.Vertices {
				if nearZero[v.ID] {
					continue // keep the vision correction placeable
				}
				if state.Board.CanPlaceSettlement(colors[id], v.ID, false) != nil {
					continue
				}
				for _, eid := range v.EdgeIDs() {
					edge, err := state.Board.Edge(eid)
					if err != nil {
						t.Error(err)
						return
					}
					if edge.Color == "" {
						vid, ea, eb = v.ID, int(edge.A), int(edge.B)
						found = true
						break
					}
				}
				if found {
					break
				}
			}
			if !found {
				t.Error("no setup spot")
			}
		})
		utils.AssertNoError(t, err)

		_, err = e.Send(context.Background(), protocol.PlayerAction{
			Kind:     protocol.PlaceSetup,
			PlayerID: id,
			Vertex:   int(vid),
			EdgeA:    ea,
			EdgeB:    eb,
		})
		utils.AssertNoError(t, err)

		if i < len(placers)-1 {
			// mid-setup, the queue stays untouched
			color, _ := vertexZero(t, e)
			utils.AssertEqual(t, color, "")
		}
	}

	color, origin := vertexZero(t, e)
	utils.AssertEqual(t, color, "blue")
	utils.AssertEqual(t, origin, board.OriginVision)
}
