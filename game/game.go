// Package game implements the authoritative game state and the turn
// lifecycle: dice resolution, resource payout, discards, builds, development
// cards, bank trades and victory scoring. Every mutation is validated
// against the current state before anything is written, so a rejected
// action always leaves the state exactly as it was.
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/protocol"
)

var (
	ErrNilGame               = errors.New("game is nil")
	ErrNotStarted            = errors.New("game has not started")
	ErrGameOver              = errors.New("game is already over")
	ErrWrongPlayerCount      = errors.New("exactly 3 players required")
	ErrUnknownPlayer         = errors.New("unknown player ID")
	ErrNotPlayersTurn        = errors.New("not this player's turn")
	ErrWrongPhase            = errors.New("action not allowed in this phase")
	ErrAlreadyRolled         = errors.New("dice already rolled this turn")
	ErrPendingDiscards       = errors.New("discard obligations outstanding")
	ErrNoDiscardOwed         = errors.New("no discard owed")
	ErrWrongDiscardCount     = errors.New("wrong number of cards discarded")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrIllegalPlacement      = errors.New("illegal placement")
	ErrBankShort             = errors.New("bank cannot supply the resource")
	ErrDeckEmpty             = errors.New("development deck is empty")
	ErrCardNotHeld           = errors.New("development card not held")
	ErrCardUnplayable        = errors.New("development card cannot be played")
	ErrDevCardLimit          = errors.New("already played a development card this turn")
	ErrInvalidTrade          = errors.New("invalid trade")
	ErrNoTradeOffer          = errors.New("no trade offer open")
	ErrInvalidAction         = errors.New("invalid action")
)

// Game is the single serialized entry point for all state mutation.
type Game interface {
	Start(playerInfo []protocol.PlayerInfo) error
	HandleAction(action protocol.PlayerAction) ([]protocol.TurnEvent, error)
	ApplyVision(delta VisionDelta) ([]protocol.TurnEvent, error)
	State() *GameState
	Over() bool
	Winner() (string, bool)
}

// VisionDelta is a debounced, vision-proposed occupancy change funneled
// through the same commit path as player actions.
type VisionDelta struct {
	Slot       board.Slot
	Color      string
	Clear      bool
	Confidence float64
	Batches    int
}

type catan struct {
	state   *GameState
	board   *board.Board
	rng     *rand.Rand
	rules   Rules
	started bool
	setup   []int
}

// CatanOpts configures a new game. A nil Rng gets a time-seeded one; a nil
// Board gets a randomized standard layout.
type CatanOpts struct {
	Board *board.Board
	Rules Rules
	Rng   *rand.Rand
	// Restore resumes from a snapshot instead of dealing a fresh state.
	Restore *GameState
}

// NewCatan constructs a game. Start seats the players and opens the setup
// phase, unless Restore carried an in-progress state.
func NewCatan(opts CatanOpts) (*catan, error) {
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	b := opts.Board
	if b == nil {
		var err error
		b, err = board.NewBoard(board.RandomLayout(rng))
		if err != nil {
			return nil, err
		}
	}

	rules := opts.Rules
	if rules.TargetVP == 0 {
		rules = DefaultRules()
	}

	g := &catan{
		board: b,
		rng:   rng,
		rules: rules,
		setup: setupOrder(),
	}

	if opts.Restore != nil {
		if opts.Restore.Board == nil {
			opts.Restore.Board = b
		}
		g.state = opts.Restore
		g.started = true
	}

	return g, nil
}

func (g *catan) State() *GameState {
	return g.state
}

func (g *catan) Over() bool {
	return g.state != nil && g.state.Turn.Phase == PhaseEnded
}

func (g *catan) Winner() (string, bool) {
	if g.state == nil || g.state.Winner == "" {
		return "", false
	}
	return g.state.Winner, true
}

// Start seats the players and enters the setup phase.
func (g *catan) Start(playerInfo []protocol.PlayerInfo) error {
	if g == nil {
		return ErrNilGame
	}
	if g.started {
		return fmt.Errorf("%w: game already started", ErrInvalidAction)
	}

	state, err := NewGameState(g.board, playerInfo, g.rules, g.rng)
	if err != nil {
		return err
	}
	g.state = state
	g.started = true
	return nil
}

// HandleAction validates and applies one player action. On success the
// state version has advanced and the returned events describe what changed;
// on error the state is untouched.
func (g *catan) HandleAction(action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if g == nil {
		return nil, ErrNilGame
	}
	if !g.started || g.state == nil {
		return nil, ErrNotStarted
	}
	if g.Over() {
		return nil, ErrGameOver
	}

	actor, ok := g.state.PlayerByID(action.PlayerID)
	if !ok {
		return nil, ErrUnknownPlayer
	}

	switch action.Kind {
	case protocol.PlaceSetup:
		return g.handlePlaceSetup(actor, action)
	case protocol.Roll:
		return g.handleRoll(actor, action)
	case protocol.Discard:
		return g.handleDiscard(actor, action)
	case protocol.BuildRoad:
		return g.handleBuildRoad(actor, action)
	case protocol.BuildSettlement:
		return g.handleBuildSettlement(actor, action)
	case protocol.BuildCity:
		return g.handleBuildCity(actor, action)
	case protocol.BuyDevCard:
		return g.handleBuyDevCard(actor)
	case protocol.PlayDevCard:
		return g.handlePlayDevCard(actor, action)
	case protocol.BankTrade:
		return g.handleBankTrade(actor, action)
	case protocol.ProposeTrade:
		return g.handleProposeTrade(actor, action)
	case protocol.AcceptTrade:
		return g.handleAcceptTrade(actor)
	case protocol.EndTurn:
		return g.handleEndTurn(actor)
	}

	return nil, fmt.Errorf("%w: kind %s", ErrInvalidAction, action.Kind)
}

// requireActive rejects actions from anyone but the active player.
func (g *catan) requireActive(p *Player) error {
	if g.state.ActivePlayer().ID != p.ID {
		return ErrNotPlayersTurn
	}
	return nil
}

// requirePhase rejects actions outside the given phase.
func (g *catan) requirePhase(want Phase) error {
	if g.state.Turn.Phase != want {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongPhase, g.state.Turn.Phase, want)
	}
	return nil
}

// commit seals a successful transition: bumps the version, recomputes the
// bonuses, and declares a winner if the target is reached. The winner event,
// if any, is returned for appending.
func (g *catan) commit() *protocol.TurnEvent {
	g.state.Version++
	g.recomputeBonusHolders()

	if g.state.Winner != "" {
		return nil
	}

	// check the active player first; a commit is always triggered by them
	// or by a reconcile pass on their behalf
	n := len(g.state.Players)
	for i := 0; i < n; i++ {
		p := g.state.Players[(g.state.Turn.ActiveIdx+i)%n]
		if g.VictoryPoints(p) >= g.state.TargetVP {
			g.state.Winner = p.ID
			g.state.Turn.Phase = PhaseEnded
			return &protocol.TurnEvent{
				Kind:    protocol.EventWinner,
				Player:  p.ID,
				Total:   g.VictoryPoints(p),
				Version: g.state.Version,
			}
		}
	}
	return nil
}

func appendWinner(events []protocol.TurnEvent, winner *protocol.TurnEvent) []protocol.TurnEvent {
	if winner != nil {
		events = append(events, *winner)
	}
	return events
}

// handleRoll resolves the dice and either pays out production or opens the
// discard phase on a seven. Dice values may come from physical dice via the
// payload; zeroes mean the engine rolls.
func (g *catan) handleRoll(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requirePhase(PhaseRoll); err != nil {
		return nil, err
	}
	if err := g.requireActive(p); err != nil {
		return nil, err
	}
	if g.state.Turn.Rolled {
		return nil, ErrAlreadyRolled
	}

	die1, die2 := action.Die1, action.Die2
	if die1 == 0 && die2 == 0 {
		die1 = g.rng.Intn(6) + 1
		die2 = g.rng.Intn(6) + 1
	}
	if die1 < 1 || die1 > 6 || die2 < 1 || die2 > 6 {
		return nil, fmt.Errorf("%w: dice %d/%d", ErrInvalidAction, die1, die2)
	}
	total := die1 + die2

	// a seven lets the roller push the robber to a new tile in the same
	// payload; MoveRobber covers tile zero, otherwise zero leaves it
	if total == 7 && (action.MoveRobber || action.Tile != 0) {
		tid := board.TileID(action.Tile)
		if tid == g.state.Board.RobberTile() {
			return nil, fmt.Errorf("%w: robber must move", ErrInvalidAction)
		}
		if err := g.state.Board.MoveRobber(tid); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAction, err)
		}
	}

	g.state.Turn.Rolled = true
	g.state.Turn.Die1, g.state.Turn.Die2 = die1, die2

	events := []protocol.TurnEvent{{
		Kind:   protocol.EventRolled,
		Player: p.ID,
		Die1:   die1,
		Die2:   die2,
		Total:  total,
	}}

	if total == 7 {
		owed := g.assessDiscards()
		if len(owed) > 0 {
			g.state.Turn.Phase = PhaseDiscard
			g.state.Turn.PendingDiscards = owed
			events = append(events, protocol.TurnEvent{
				Kind: protocol.EventDiscardOwed,
				Owed: owed,
			})
		} else {
			g.state.Turn.Phase = PhaseAction
		}
	} else {
		payouts := g.produce(total)
		g.state.Turn.Phase = PhaseAction
		events = append(events, protocol.TurnEvent{
			Kind:    protocol.EventPayout,
			Total:   total,
			Payouts: payouts,
		})
	}

	winner := g.commit()
	for i := range events {
		events[i].Version = g.state.Version
	}
	return appendWinner(events, winner), nil
}

// assessDiscards finds every player over the hand limit and how much each
// owes: floor(hand/2).
func (g *catan) assessDiscards() map[string]int {
	owed := map[string]int{}
	for _, p := range g.state.Players {
		if hand := p.HandSize(); hand > handLimit {
			owed[p.ID] = hand / 2
		}
	}
	return owed
}

// produce pays out production for a roll. Demand is summed per resource
// kind first; if the bank cannot cover every claimant of a kind, nobody
// receives that kind this round.
func (g *catan) produce(roll int) map[string]map[string]int {
	claims := g.state.Board.ProductionClaims(roll)

	demand := board.ResourceCount{}
	for _, c := range claims {
		demand[c.Resource] += c.Amount
	}

	short := map[board.Resource]bool{}
	for r, n := range demand {
		if g.state.Bank.Resources[r] < n {
			short[r] = true
		}
	}

	payouts := map[string]map[string]int{}
	for _, c := range claims {
		if short[c.Resource] {
			continue
		}
		p, ok := g.state.PlayerByColor(c.Color)
		if !ok {
			continue
		}
		p.Resources[c.Resource] += c.Amount
		g.state.Bank.Resources[c.Resource] -= c.Amount

		if payouts[p.ID] == nil {
			payouts[p.ID] = map[string]int{}
		}
		payouts[p.ID][c.Resource.String()] += c.Amount
	}
	return payouts
}

// handleDiscard applies one owing player's discard selection. Only the
// count is enforced; which cards to give up is the input layer's choice.
func (g *catan) handleDiscard(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requirePhase(PhaseDiscard); err != nil {
		return nil, err
	}

	owed, ok := g.state.Turn.PendingDiscards[p.ID]
	if !ok {
		return nil, ErrNoDiscardOwed
	}

	selection, total, err := parseResourceSelection(action.Resources)
	if err != nil {
		return nil, err
	}
	if total != owed {
		return nil, fmt.Errorf("%w: gave %d, owe %d", ErrWrongDiscardCount, total, owed)
	}
	if !p.Resources.Covers(selection) {
		return nil, ErrInsufficientResources
	}

	g.state.pay(p, selection)
	delete(g.state.Turn.PendingDiscards, p.ID)

	if len(g.state.Turn.PendingDiscards) == 0 {
		g.state.Turn.PendingDiscards = nil
		g.state.Turn.Phase = PhaseAction
	}

	events := []protocol.TurnEvent{{
		Kind:      protocol.EventDiscarded,
		Player:    p.ID,
		Resources: resourceNames(selection),
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

// handleEndTurn advances the turn pointer. Blocked while discards are owed
// or before the dice have been rolled.
func (g *catan) handleEndTurn(p *Player) ([]protocol.TurnEvent, error) {
	if err := g.requireActive(p); err != nil {
		return nil, err
	}
	if g.state.Turn.Phase == PhaseDiscard || len(g.state.Turn.PendingDiscards) > 0 {
		return nil, ErrPendingDiscards
	}
	if err := g.requirePhase(PhaseAction); err != nil {
		return nil, err
	}

	// just-bought cards become playable next turn
	for card, n := range p.NewDevCards {
		p.DevCards[card] += n
	}
	p.NewDevCards = map[board.DevCard]int{}

	next := (g.state.Turn.ActiveIdx + 1) % len(g.state.Players)
	g.state.Turn = TurnState{
		ActiveIdx: next,
		Phase:     PhaseRoll,
	}
	g.state.TurnNumber++

	events := []protocol.TurnEvent{{
		Kind:   protocol.EventTurnEnded,
		Player: p.ID,
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

// parseResourceSelection converts a name->count payload map, rejecting
// unknown kinds and non-positive counts.
func parseResourceSelection(raw map[string]int) (board.ResourceCount, int, error) {
	selection := board.ResourceCount{}
	total := 0
	for name, n := range raw {
		r, err := board.ParseResource(name)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s", ErrInvalidAction, err)
		}
		if n <= 0 {
			return nil, 0, fmt.Errorf("%w: count %d for %s", ErrInvalidAction, n, name)
		}
		selection[r] += n
		total += n
	}
	return selection, total, nil
}

func resourceNames(rc board.ResourceCount) map[string]int {
	out := map[string]int{}
	for r, n := range rc {
		if n != 0 {
			out[r.String()] = n
		}
	}
	return out
}
