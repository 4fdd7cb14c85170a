package engine

import (
	"sync"

	"github.com/tmarlow/tabletan/game"
	"github.com/tmarlow/tabletan/protocol"
)

// SpyGame records calls without any game logic behind them.
type SpyGame struct {
	mu            sync.Mutex
	startCalled   bool
	actions       []protocol.PlayerAction
	visionDeltas  []game.VisionDelta
	events        []protocol.TurnEvent
	handleErr     error
	state         *game.GameState
	over          bool
	versionOnPlay uint64
}

func NewSpyGame() *SpyGame {
	return &SpyGame{state: &game.GameState{}}
}

func (g *SpyGame) Start(info []protocol.PlayerInfo) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.startCalled = true
	return nil
}

func (g *SpyGame) HandleAction(action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions = append(g.actions, action)
	if g.handleErr != nil {
		return nil, g.handleErr
	}
	g.versionOnPlay++
	g.state.Version = g.versionOnPlay
	return g.events, nil
}

func (g *SpyGame) ApplyVision(delta game.VisionDelta) ([]protocol.TurnEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.visionDeltas = append(g.visionDeltas, delta)
	return nil, nil
}

func (g *SpyGame) State() *game.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *SpyGame) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.over
}

func (g *SpyGame) Winner() (string, bool) {
	return "", false
}

func (g *SpyGame) StartCalled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startCalled
}

func (g *SpyGame) Actions() []protocol.PlayerAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]protocol.PlayerAction, len(g.actions))
	copy(out, g.actions)
	return out
}
