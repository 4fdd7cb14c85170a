package game

import (
	"fmt"
	"math/rand"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/protocol"
)

const (
	numPlayers = 3

	handLimit        = 7
	minLongestRoad   = 5
	minLargestArmy   = 3
	devCardsPerTurn  = 1
	setupPlacements  = 2
	defaultTargetVP  = 10
	freeRoadsPerCard = 2
)

// PlayerColors are the piece colors of the three seats, in turn order.
var PlayerColors = []string{"orange", "blue", "red"}

// Player is one seat's full state. Victory points are never stored here;
// they are recomputed from the aggregate (see scoring.go).
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`

	Resources board.ResourceCount `json:"resources"`
	// DevCards are held, playable cards; NewDevCards were bought this turn
	// and become playable when the turn ends.
	DevCards    map[board.DevCard]int `json:"dev_cards"`
	NewDevCards map[board.DevCard]int `json:"new_dev_cards"`

	PlayedKnights  int  `json:"played_knights"`
	HasLongestRoad bool `json:"has_longest_road"`
	HasLargestArmy bool `json:"has_largest_army"`
	LongestRoadLen int  `json:"longest_road_len"`
}

// HandSize is the number of resource cards the player holds.
func (p *Player) HandSize() int {
	return p.Resources.Total()
}

// HeldDevCards counts playable plus just-bought copies of a card.
func (p *Player) HeldDevCards(card board.DevCard) int {
	return p.DevCards[card] + p.NewDevCards[card]
}

// Bank is the shared pool of resources and the development deck.
type Bank struct {
	Resources board.ResourceCount `json:"resources"`
	DevDeck   []board.DevCard     `json:"dev_deck"`
	Discards  []board.DevCard     `json:"discards"`
}

// TradeOffer is a player-to-player exchange proposal. Nothing moves until
// another player accepts; the proposer can replace it freely.
type TradeOffer struct {
	From  string              `json:"from"`
	Offer board.ResourceCount `json:"offer"`
	Want  board.ResourceCount `json:"want"`
}

// TurnState tracks the active player and the in-turn machinery.
type TurnState struct {
	ActiveIdx int   `json:"active_idx"`
	Phase     Phase `json:"phase"`

	Rolled bool `json:"rolled"`
	Die1   int  `json:"die_1,omitempty"`
	Die2   int  `json:"die_2,omitempty"`

	// PendingDiscards maps player ID to cards still owed after a seven.
	PendingDiscards map[string]int `json:"pending_discards,omitempty"`

	// PendingTrade is the active player's open offer, if any. It dies
	// unaccepted when the turn ends.
	PendingTrade *TradeOffer `json:"pending_trade,omitempty"`

	FreeRoads     int  `json:"free_roads,omitempty"`
	DevCardPlayed bool `json:"dev_card_played,omitempty"`

	// SetupIdx walks the snake order during the setup phase.
	SetupIdx int `json:"setup_idx,omitempty"`
}

// GameState is the aggregate root. All mutation goes through the owning
// Game's HandleAction (or its reconcile path); nothing else writes here.
type GameState struct {
	Players    []*Player      `json:"players"`
	Bank       Bank           `json:"bank"`
	Board      *board.Board   `json:"-"`
	Turn       TurnState      `json:"turn"`
	TurnNumber int            `json:"turn_number"`
	Version    uint64         `json:"version"`
	TargetVP   int            `json:"target_vp"`
	TiePolicy  BonusTiePolicy `json:"tie_policy"`
	Winner     string         `json:"winner,omitempty"`
}

// Rules carries the tunable rule parameters.
type Rules struct {
	TargetVP  int
	BankStart int
	TiePolicy BonusTiePolicy
}

// DefaultRules returns the standard parameters.
func DefaultRules() Rules {
	return Rules{
		TargetVP:  defaultTargetVP,
		BankStart: board.BankStartPerResource,
		TiePolicy: TieNoBonus,
	}
}

func newPlayer(info protocol.PlayerInfo) *Player {
	return &Player{
		ID:          info.PlayerID,
		Name:        info.Name,
		Color:       info.Color,
		Resources:   board.NewResourceCount(0),
		DevCards:    map[board.DevCard]int{},
		NewDevCards: map[board.DevCard]int{},
	}
}

// NewGameState builds an initial state on the given board. Exactly three
// players are seated, one per color in turn order.
func NewGameState(b *board.Board, playerInfo []protocol.PlayerInfo, rules Rules, rng *rand.Rand) (*GameState, error) {
	if len(playerInfo) != numPlayers {
		return nil, ErrWrongPlayerCount
	}

	seen := map[string]bool{}
	players := make([]*Player, 0, numPlayers)
	for i, info := range playerInfo {
		if info.PlayerID == "" {
			return nil, fmt.Errorf("%w: player %d has no ID", ErrInvalidAction, i)
		}
		if info.Color == "" {
			info.Color = PlayerColors[i]
		}
		if seen[info.Color] {
			return nil, fmt.Errorf("%w: duplicate color %s", ErrInvalidAction, info.Color)
		}
		seen[info.Color] = true
		players = append(players, newPlayer(info))
	}

	if rules.TargetVP <= 0 {
		rules.TargetVP = defaultTargetVP
	}
	if rules.BankStart <= 0 {
		rules.BankStart = board.BankStartPerResource
	}

	return &GameState{
		Players: players,
		Bank: Bank{
			Resources: board.NewResourceCount(rules.BankStart),
			DevDeck:   board.NewDevDeck(rng),
		},
		Board:      b,
		Turn:       TurnState{Phase: PhaseSetup},
		TurnNumber: 1,
		TargetVP:   rules.TargetVP,
		TiePolicy:  rules.TiePolicy,
	}, nil
}

// PlayerByID finds a seated player.
func (gs *GameState) PlayerByID(id string) (*Player, bool) {
	for _, p := range gs.Players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// PlayerByColor finds a seated player by piece color.
func (gs *GameState) PlayerByColor(color string) (*Player, bool) {
	for _, p := range gs.Players {
		if p.Color == color {
			return p, true
		}
	}
	return nil, false
}

// ActivePlayer is the player whose turn it is.
func (gs *GameState) ActivePlayer() *Player {
	return gs.Players[gs.Turn.ActiveIdx]
}

// ResourceTotals sums each kind across all hands and the bank. The totals
// are invariant over every committed transition.
func (gs *GameState) ResourceTotals() board.ResourceCount {
	totals := gs.Bank.Resources.Clone()
	for _, p := range gs.Players {
		for _, r := range board.Resources {
			totals[r] += p.Resources[r]
		}
	}
	return totals
}

// snake order for setup placements: 0 1 2 2 1 0
func setupOrder() []int {
	order := make([]int, 0, numPlayers*setupPlacements)
	for i := 0; i < numPlayers; i++ {
		order = append(order, i)
	}
	for i := numPlayers - 1; i >= 0; i-- {
		order = append(order, i)
	}
	return order
}

// pay moves cost from the player's hand to the bank.
func (gs *GameState) pay(p *Player, cost board.ResourceCount) {
	for r, n := range cost {
		p.Resources[r] -= n
		gs.Bank.Resources[r] += n
	}
}
