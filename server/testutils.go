package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/engine"
	"github.com/tmarlow/tabletan/game"
	utils "github.com/tmarlow/tabletan/internal"
	"github.com/tmarlow/tabletan/store"
)

// engineRecorder captures the engines the factory hands out so tests can
// reach inside a game the server created.
type engineRecorder struct {
	mu      sync.Mutex
	engines map[string]engine.GameEngine
}

func (r *engineRecorder) record(ge engine.GameEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[ge.ID()] = ge
}

func (r *engineRecorder) get(gameID string) engine.GameEngine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[gameID]
}

// newTestServer builds a server whose factory produces real games with a
// seeded board, and shuts every created engine down with the test.
func newTestServer(t *testing.T) (*GameServer, *engineRecorder) {
	t.Helper()

	rec := &engineRecorder{engines: map[string]engine.GameEngine{}}
	factory := func(gameID, gameCode, creatorID string) (engine.GameEngine, error) {
		rng := rand.New(rand.NewSource(1))
		b, err := board.NewBoard(board.RandomLayout(rng))
		if err != nil {
			return nil, err
		}
		g, err := game.NewCatan(game.CatanOpts{Board: b, Rules: game.DefaultRules(), Rng: rng})
		if err != nil {
			return nil, err
		}
		ge, err := engine.NewGameEngine(engine.GameEngineOpts{
			GameID:    gameID,
			GameCode:  gameCode,
			CreatorID: creatorID,
			Game:      g,
		})
		if err != nil {
			return nil, err
		}
		t.Cleanup(ge.Shutdown)
		rec.record(ge)
		return ge, nil
	}

	return NewServer(store.NewInMemoryGameStore(), factory), rec
}

func mustMakeJson(t *testing.T, input interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(input)
	utils.AssertNoError(t, err)

	return data
}

func mustReadJson(t *testing.T, body io.Reader, dst interface{}) {
	t.Helper()

	data, err := io.ReadAll(body)
	utils.AssertNoError(t, err)
	utils.AssertNoError(t, json.Unmarshal(data, dst))
}

func newCreateGameRequest(data []byte) *http.Request {
	request, _ := http.NewRequest(http.MethodPost, "/new", bytes.NewBuffer(data))
	return request
}

func newJoinGameRequest(data []byte) *http.Request {
	request, _ := http.NewRequest(http.MethodPost, "/join", bytes.NewBuffer(data))
	return request
}

func newGetGameRequest(gameID string) *http.Request {
	request, _ := http.NewRequest(http.MethodGet, "/game?game_id="+gameID, nil)
	return request
}

// createGame POSTs /new and returns the creator's pending view.
func createGame(t *testing.T, server *GameServer, name string) PendingGameRes {
	t.Helper()

	response := httptest.NewRecorder()
	server.ServeHTTP(response, newCreateGameRequest(mustMakeJson(t, NewGameReq{Name: name})))
	assertStatus(t, response.Code, http.StatusCreated)

	var res PendingGameRes
	mustReadJson(t, response.Body, &res)
	return res
}

// joinGame POSTs /join and returns the joiner's pending view.
func joinGame(t *testing.T, server *GameServer, req JoinGameReq) PendingGameRes {
	t.Helper()

	response := httptest.NewRecorder()
	server.ServeHTTP(response, newJoinGameRequest(mustMakeJson(t, req)))
	assertStatus(t, response.Code, http.StatusOK)

	var res PendingGameRes
	mustReadJson(t, response.Body, &res)
	return res
}

// startedGame creates a game and fills its three seats, which starts it.
// Returned in seat order: creator first.
func startedGame(t *testing.T, server *GameServer) []PendingGameRes {
	t.Helper()

	created := createGame(t, server, "Ada")
	second := joinGame(t, server, JoinGameReq{GameID: created.GameID, Name: "Grace"})
	third := joinGame(t, server, JoinGameReq{GameID: created.GameID, Name: "Edsger"})
	utils.AssertTrue(t, third.Started)

	return []PendingGameRes{created, second, third}
}

// setupSpot finds a legal settlement vertex with a free touching edge for
// color, via the engine's inspection hook.
func setupSpot(t *testing.T, ge engine.GameEngine, color string) (vertex, edgeA, edgeB int) {
	t.Helper()

	found := false
	err := ge.Inspect(context.Background(), func(state *game.GameState) {
		b := state.Board
		for _, v := range b.Vertices {
			if b.CanPlaceSettlement(color, v.ID, false) != nil {
				continue
			}
			for _, eid := range v.EdgeIDs() {
				e, err := b.Edge(eid)
				if err != nil || e.Color != "" {
					continue
				}
				vertex, edgeA, edgeB = int(v.ID), int(e.A), int(e.B)
				found = true
				return
			}
		}
	})
	utils.AssertNoError(t, err)
	utils.AssertTrue(t, found)
	return vertex, edgeA, edgeB
}

func assertStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got status %d, want %d", got, want)
	}
}
