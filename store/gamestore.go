package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tmarlow/tabletan/engine"
	"github.com/tmarlow/tabletan/game"
	"github.com/tmarlow/tabletan/protocol"
)

var (
	ErrUnknownGameID      = errors.New("unknown game ID")
	ErrGameAlreadyStarted = errors.New("game has already started")
	ErrTableFull          = errors.New("all three seats are taken")
	ErrDuplicatePlayer    = errors.New("player already seated at this game")
)

// GameStore maps game IDs to running engines and tracks the players waiting
// for a table to fill.
type GameStore interface {
	FindGame(gameID string) engine.GameEngine
	FindActiveGame(gameID string) engine.GameEngine
	FindInactiveGame(gameID string) engine.GameEngine
	FindGameByCode(code string) engine.GameEngine
	PendingPlayers(gameID string) []protocol.PlayerInfo
	AddInactiveGame(ge engine.GameEngine) error
	AddPendingPlayer(gameID, playerID, name string) (protocol.PlayerInfo, error)
}

// InMemoryGameStore maps game id to game engine
type InMemoryGameStore struct {
	mu      sync.RWMutex
	games   map[string]engine.GameEngine
	pending map[string][]protocol.PlayerInfo
}

// NewInMemoryGameStore constructs an InMemoryGameStore
func NewInMemoryGameStore() *InMemoryGameStore {
	return &InMemoryGameStore{
		games:   map[string]engine.GameEngine{},
		pending: map[string][]protocol.PlayerInfo{},
	}
}

func (s *InMemoryGameStore) FindGame(id string) engine.GameEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[id]
}

func (s *InMemoryGameStore) FindActiveGame(id string) engine.GameEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ge, ok := s.games[id]
	if !ok || ge.PlayState() == engine.Idle {
		return nil
	}
	return ge
}

func (s *InMemoryGameStore) FindInactiveGame(id string) engine.GameEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ge, ok := s.games[id]
	if !ok || ge.PlayState() != engine.Idle {
		return nil
	}
	return ge
}

// FindGameByCode resolves the six-letter table code players type in.
func (s *InMemoryGameStore) FindGameByCode(code string) engine.GameEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ge := range s.games {
		if ge.Code() == code {
			return ge
		}
	}
	return nil
}

// PendingPlayers lists the players waiting for the game to start, in join
// order.
func (s *InMemoryGameStore) PendingPlayers(gameID string) []protocol.PlayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := s.pending[gameID]
	out := make([]protocol.PlayerInfo, len(pending))
	copy(out, pending)
	return out
}

func (s *InMemoryGameStore) AddInactiveGame(ge engine.GameEngine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.games[ge.ID()]; exists {
		return fmt.Errorf("game with id %s already exists", ge.ID())
	}
	s.games[ge.ID()] = ge
	return nil
}

// AddPendingPlayer seats a joining player, assigning the next free piece
// color. The returned info carries the assigned color.
func (s *InMemoryGameStore) AddPendingPlayer(gameID, playerID, name string) (protocol.PlayerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ge, ok := s.games[gameID]
	if !ok {
		return protocol.PlayerInfo{}, fmt.Errorf("%w: %q", ErrUnknownGameID, gameID)
	}
	if ge.PlayState() != engine.Idle {
		return protocol.PlayerInfo{}, ErrGameAlreadyStarted
	}

	pending := s.pending[gameID]
	if len(pending) >= len(game.PlayerColors) {
		return protocol.PlayerInfo{}, ErrTableFull
	}
	for _, info := range pending {
		if info.PlayerID == playerID {
			return protocol.PlayerInfo{}, ErrDuplicatePlayer
		}
	}

	info := protocol.PlayerInfo{
		PlayerID: playerID,
		Name:     name,
		Color:    game.PlayerColors[len(pending)],
	}
	s.pending[gameID] = append(pending, info)
	return info, nil
}
