// Package server is the HTTP/WS surface of the table service: create and
// join games, submit actions, feed camera observations, and stream turn
// events to displays and the operator console.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	uuid "github.com/satori/go.uuid"

	"github.com/tmarlow/tabletan/engine"
	"github.com/tmarlow/tabletan/game"
	"github.com/tmarlow/tabletan/protocol"
	"github.com/tmarlow/tabletan/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var codeAlphabet = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ")

var codeRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// NewID returns a fresh player or game ID.
func NewID() string {
	return uuid.NewV4().String()
}

// NewGameCode returns a six-letter code players can type at the table.
func NewGameCode() string {
	code := make([]byte, 6)
	for i := range code {
		code[i] = codeAlphabet[codeRand.Intn(len(codeAlphabet))]
	}
	return string(code)
}

// EngineFactory builds the engine for a newly created game.
type EngineFactory func(gameID, gameCode, creatorID string) (engine.GameEngine, error)

type NewGameReq struct {
	Name string `json:"name"`
}

type JoinGameReq struct {
	GameID   string `json:"game_id,omitempty"`
	GameCode string `json:"game_code,omitempty"`
	Name     string `json:"name"`
}

type PendingGameRes struct {
	GameID   string   `json:"game_id"`
	GameCode string   `json:"game_code"`
	PlayerID string   `json:"player_id"`
	Name     string   `json:"name"`
	Color    string   `json:"color"`
	Admin    bool     `json:"is_admin"`
	Players  []string `json:"players"`
	Started  bool     `json:"started"`
}

type PlayerRes struct {
	PlayerID      string `json:"player_id"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	VictoryPoints int    `json:"victory_points"`
	HandSize      int    `json:"hand_size"`
}

type GameStateRes struct {
	GameID     string      `json:"game_id"`
	Status     string      `json:"status"`
	Phase      string      `json:"phase"`
	TurnNumber int         `json:"turn_number"`
	Version    uint64      `json:"version"`
	ActiveID   string      `json:"active_player_id,omitempty"`
	Winner     string      `json:"winner,omitempty"`
	Players    []PlayerRes `json:"players"`
}

type ActionRes struct {
	Events []protocol.TurnEvent `json:"events"`
}

// GameServer is the game server
type GameServer struct {
	store     store.GameStore
	newEngine EngineFactory
	http.Server
}

// NewServer wires the routes. The handler stack is CORS then request
// logging then the mux.
func NewServer(str store.GameStore, newEngine EngineFactory) *GameServer {
	s := &GameServer{store: str, newEngine: newEngine}

	router := http.NewServeMux()
	router.Handle("/new", http.HandlerFunc(s.HandleNewGame))
	router.Handle("/join", http.HandlerFunc(s.HandleJoinGame))
	router.Handle("/game", http.HandlerFunc(s.HandleGetGame))
	router.Handle("/action", http.HandlerFunc(s.HandleAction))
	router.Handle("/observe", http.HandlerFunc(s.HandleObserve))
	router.Handle("/ws", http.HandlerFunc(s.HandleWS))

	s.Handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(handlers.LoggingHandler(os.Stdout, router))

	return s
}

// ServeHTTP serves http
func (g *GameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.Handler.ServeHTTP(w, r)
}

// HandleNewGame creates a game and seats its creator.
func (g *GameServer) HandleNewGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var data NewGameReq
	err := json.NewDecoder(r.Body).Decode(&data)
	defer r.Body.Close()
	if err != nil {
		writeParseError(err, w)
		return
	}
	if data.Name == "" {
		writeText(w, http.StatusBadRequest, "missing player name")
		return
	}

	gameID := NewID()
	gameCode := NewGameCode()
	playerID := NewID()

	ge, err := g.newEngine(gameID, gameCode, playerID)
	if err != nil {
		log.Println(err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := g.store.AddInactiveGame(ge); err != nil {
		log.Println(err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	info, err := g.store.AddPendingPlayer(gameID, playerID, data.Name)
	if err != nil {
		log.Println(err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, PendingGameRes{
		GameID:   gameID,
		GameCode: gameCode,
		PlayerID: playerID,
		Name:     data.Name,
		Color:    info.Color,
		Admin:    true,
		Players:  []string{data.Name},
	})
}

// HandleJoinGame seats a player; the third seat starts the game.
func (g *GameServer) HandleJoinGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var data JoinGameReq
	err := json.NewDecoder(r.Body).Decode(&data)
	defer r.Body.Close()
	if err != nil {
		writeParseError(err, w)
		return
	}
	if data.Name == "" {
		writeText(w, http.StatusBadRequest, "missing player name")
		return
	}

	var ge engine.GameEngine
	switch {
	case data.GameID != "":
		ge = g.store.FindGame(data.GameID)
	case data.GameCode != "":
		ge = g.store.FindGameByCode(data.GameCode)
	default:
		writeText(w, http.StatusBadRequest, "missing game ID or code")
		return
	}
	if ge == nil {
		writeText(w, http.StatusNotFound, "unknown game")
		return
	}

	playerID := NewID()
	info, err := g.store.AddPendingPlayer(ge.ID(), playerID, data.Name)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, store.ErrUnknownGameID) {
			status = http.StatusNotFound
		}
		writeText(w, status, err.Error())
		return
	}

	pending := g.store.PendingPlayers(ge.ID())
	names := make([]string, 0, len(pending))
	for _, p := range pending {
		names = append(names, p.Name)
	}

	started := false
	if len(pending) == len(game.PlayerColors) {
		if err := ge.Start(pending); err != nil {
			log.Println(err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		started = true
	}

	writeJSON(w, http.StatusOK, PendingGameRes{
		GameID:   ge.ID(),
		GameCode: ge.Code(),
		PlayerID: playerID,
		Name:     data.Name,
		Color:    info.Color,
		Players:  names,
		Started:  started,
	})
}

// HandleGetGame reports a game's current public state.
func (g *GameServer) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		writeText(w, http.StatusBadRequest, "missing game ID")
		return
	}

	ge := g.store.FindGame(gameID)
	if ge == nil {
		writeText(w, http.StatusNotFound, fmt.Sprintf("unknown game ID %q", gameID))
		return
	}

	res := GameStateRes{GameID: gameID, Status: ge.PlayState().String()}
	if ge.PlayState() != engine.Idle {
		err := ge.Inspect(r.Context(), func(state *game.GameState) {
			res.Phase = state.Turn.Phase.String()
			res.TurnNumber = state.TurnNumber
			res.Version = state.Version
			res.Winner = state.Winner
			if state.Turn.Phase != game.PhaseSetup {
				res.ActiveID = state.ActivePlayer().ID
			}
			scores := state.Standings()
			for _, p := range state.Players {
				res.Players = append(res.Players, PlayerRes{
					PlayerID:      p.ID,
					Name:          p.Name,
					Color:         p.Color,
					VictoryPoints: scores[p.ID],
					HandSize:      p.HandSize(),
				})
			}
		})
		if err != nil {
			log.Println(err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, res)
}

// HandleAction submits one player action and returns its events.
func (g *GameServer) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	gameID := r.URL.Query().Get("game_id")
	ge := g.store.FindActiveGame(gameID)
	if ge == nil {
		writeText(w, http.StatusNotFound, fmt.Sprintf("no active game %q", gameID))
		return
	}

	var action protocol.PlayerAction
	err := json.NewDecoder(r.Body).Decode(&action)
	defer r.Body.Close()
	if err != nil {
		writeParseError(err, w)
		return
	}

	events, err := ge.Send(r.Context(), action)
	if err != nil {
		// rule violations are the caller's problem, not the server's
		writeText(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ActionRes{Events: events})
}

// HandleObserve queues one camera observation batch.
func (g *GameServer) HandleObserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	gameID := r.URL.Query().Get("game_id")
	ge := g.store.FindActiveGame(gameID)
	if ge == nil {
		writeText(w, http.StatusNotFound, fmt.Sprintf("no active game %q", gameID))
		return
	}

	var batch protocol.ObservationBatch
	err := json.NewDecoder(r.Body).Decode(&batch)
	defer r.Body.Close()
	if err != nil {
		writeParseError(err, w)
		return
	}

	if !ge.Observe(batch) {
		writeText(w, http.StatusConflict, "game is shutting down")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleWS upgrades to a websocket and streams turn events.
func (g *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		writeText(w, http.StatusBadRequest, "missing game ID")
		return
	}

	ge := g.store.FindGame(gameID)
	if ge == nil {
		writeText(w, http.StatusNotFound, fmt.Sprintf("unknown game ID %q", gameID))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	events, cancel := ge.Subscribe()
	go streamEvents(conn, events, cancel)
}

// streamEvents pumps turn events over one websocket until either side goes
// away.
func streamEvents(conn *websocket.Conn, events <-chan protocol.TurnEvent, cancel func()) {
	defer cancel()
	defer conn.Close()

	// drain reads so close frames are noticed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// Shutdown stops the HTTP server; the engines shut down via the store's
// owner.
func (g *GameServer) Shutdown(ctx context.Context) error {
	return g.Server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Println(err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Add("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

func writeParseError(err error, w http.ResponseWriter) {
	if err == io.EOF {
		writeText(w, http.StatusBadRequest, "missing body")
		return
	}
	writeText(w, http.StatusBadRequest, fmt.Sprintf("could not parse request: %s", err))
}
