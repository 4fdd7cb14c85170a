package game

import (
	"fmt"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/protocol"
)

// requireAction gates the build/buy/play/trade actions: action phase only,
// active player only.
func (g *catan) requireAction(p *Player) error {
	if err := g.requirePhase(PhaseAction); err != nil {
		return err
	}
	return g.requireActive(p)
}

func (g *catan) handleBuildRoad(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requireAction(p); err != nil {
		return nil, err
	}

	eid, ok := g.state.Board.EdgeBetween(board.VertexID(action.EdgeA), board.VertexID(action.EdgeB))
	if !ok {
		return nil, fmt.Errorf("%w: no edge %d-%d", ErrIllegalPlacement, action.EdgeA, action.EdgeB)
	}

	free := g.state.Turn.FreeRoads > 0
	if !free && !p.Resources.Covers(board.RoadCost) {
		return nil, ErrInsufficientResources
	}
	if err := g.state.Board.CanPlaceRoad(p.Color, eid); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalPlacement, err)
	}

	if free {
		g.state.Turn.FreeRoads--
	} else {
		g.state.pay(p, board.RoadCost)
	}
	if err := g.state.Board.PlaceRoad(eid, p.Color, board.OriginAction); err != nil {
		return nil, err
	}

	events := []protocol.TurnEvent{{
		Kind:     protocol.EventBuilt,
		Player:   p.ID,
		Building: "road",
		EdgeA:    action.EdgeA,
		EdgeB:    action.EdgeB,
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

func (g *catan) handleBuildSettlement(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requireAction(p); err != nil {
		return nil, err
	}

	if !p.Resources.Covers(board.SettlementCost) {
		return nil, ErrInsufficientResources
	}
	vid := board.VertexID(action.Vertex)
	if err := g.state.Board.CanPlaceSettlement(p.Color, vid, true); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalPlacement, err)
	}

	g.state.pay(p, board.SettlementCost)
	if err := g.state.Board.PlaceSettlement(vid, p.Color, board.OriginAction); err != nil {
		return nil, err
	}

	events := []protocol.TurnEvent{{
		Kind:     protocol.EventBuilt,
		Player:   p.ID,
		Building: "settlement",
		Vertex:   action.Vertex,
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

func (g *catan) handleBuildCity(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requireAction(p); err != nil {
		return nil, err
	}

	if !p.Resources.Covers(board.CityCost) {
		return nil, ErrInsufficientResources
	}
	vid := board.VertexID(action.Vertex)
	if err := g.state.Board.CanUpgradeCity(p.Color, vid); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalPlacement, err)
	}

	g.state.pay(p, board.CityCost)
	if err := g.state.Board.UpgradeCity(vid, p.Color); err != nil {
		return nil, err
	}

	events := []protocol.TurnEvent{{
		Kind:     protocol.EventBuilt,
		Player:   p.ID,
		Building: "city",
		Vertex:   action.Vertex,
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

// handleBuyDevCard draws the top card of the deck. The card is revealed to
// its owner only (the event names the card; the engine's caller must route
// it privately) and cannot be played until the next turn.
func (g *catan) handleBuyDevCard(p *Player) ([]protocol.TurnEvent, error) {
	if err := g.requireAction(p); err != nil {
		return nil, err
	}

	if len(g.state.Bank.DevDeck) == 0 {
		return nil, ErrDeckEmpty
	}
	if !p.Resources.Covers(board.DevCardCost) {
		return nil, ErrInsufficientResources
	}

	g.state.pay(p, board.DevCardCost)
	card := g.state.Bank.DevDeck[0]
	g.state.Bank.DevDeck = g.state.Bank.DevDeck[1:]
	p.NewDevCards[card]++

	events := []protocol.TurnEvent{{
		Kind:   protocol.EventDevCardBought,
		Player: p.ID,
		Card:   card.String(),
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

// handlePlayDevCard plays one held development card. At most one non-victory
// card per turn; victory point cards are never played, they simply score.
func (g *catan) handlePlayDevCard(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requireAction(p); err != nil {
		return nil, err
	}

	card, err := board.ParseDevCard(action.Card)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAction, err)
	}
	if card == board.VictoryPointCard {
		return nil, ErrCardUnplayable
	}
	if p.DevCards[card] == 0 {
		// cards bought this turn are not yet playable
		if p.HeldDevCards(card) > 0 {
			return nil, ErrCardUnplayable
		}
		return nil, ErrCardNotHeld
	}
	if g.state.Turn.DevCardPlayed {
		return nil, ErrDevCardLimit
	}

	event := protocol.TurnEvent{
		Kind:   protocol.EventDevCardPlayed,
		Player: p.ID,
		Card:   card.String(),
	}

	// validate the card's effect fully before mutating anything
	switch card {
	case board.Knight:
		tid := board.TileID(action.Tile)
		if tid == g.state.Board.RobberTile() {
			return nil, fmt.Errorf("%w: robber must move", ErrInvalidAction)
		}
		if _, err := g.state.Board.Tile(tid); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAction, err)
		}
		if err := g.state.Board.MoveRobber(tid); err != nil {
			return nil, err
		}
		p.PlayedKnights++

	case board.RoadBuilding:
		g.state.Turn.FreeRoads += freeRoadsPerCard

	case board.YearOfPlenty:
		selection, total, err := parseResourceSelection(action.Resources)
		if err != nil {
			return nil, err
		}
		if total != 2 {
			return nil, fmt.Errorf("%w: year of plenty takes exactly 2 cards", ErrInvalidAction)
		}
		if !g.state.Bank.Resources.Covers(selection) {
			return nil, ErrBankShort
		}
		for r, n := range selection {
			g.state.Bank.Resources[r] -= n
			p.Resources[r] += n
		}
		event.Resources = resourceNames(selection)

	case board.Monopoly:
		res, err := board.ParseResource(action.Get)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAction, err)
		}
		taken := 0
		for _, other := range g.state.Players {
			if other.ID == p.ID {
				continue
			}
			taken += other.Resources[res]
			other.Resources[res] = 0
		}
		p.Resources[res] += taken
		event.Get = res.String()
		event.Total = taken
	}

	p.DevCards[card]--
	g.state.Bank.Discards = append(g.state.Bank.Discards, card)
	g.state.Turn.DevCardPlayed = true

	winner := g.commit()
	event.Version = g.state.Version
	return appendWinner([]protocol.TurnEvent{event}, winner), nil
}

// handleBankTrade exchanges at the player's best ratio for the given kind:
// 4:1 by default, better with a harbor building.
func (g *catan) handleBankTrade(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requireAction(p); err != nil {
		return nil, err
	}

	give, err := board.ParseResource(action.Give)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTrade, err)
	}
	get, err := board.ParseResource(action.Get)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTrade, err)
	}
	if give == get {
		return nil, fmt.Errorf("%w: same resource on both sides", ErrInvalidTrade)
	}

	rate := g.state.Board.TradeRatio(p.Color, give)
	if p.Resources[give] < rate {
		return nil, ErrInsufficientResources
	}
	if g.state.Bank.Resources[get] < 1 {
		return nil, ErrBankShort
	}

	p.Resources[give] -= rate
	g.state.Bank.Resources[give] += rate
	g.state.Bank.Resources[get]--
	p.Resources[get]++

	events := []protocol.TurnEvent{{
		Kind:   protocol.EventTraded,
		Player: p.ID,
		Give:   give.String(),
		Get:    get.String(),
		Rate:   rate,
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

// handleProposeTrade opens (or replaces) the active player's offer to the
// table. Nothing changes hands until someone accepts.
func (g *catan) handleProposeTrade(p *Player, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	if err := g.requireAction(p); err != nil {
		return nil, err
	}

	offer, offerTotal, err := parseResourceSelection(action.Offer)
	if err != nil {
		return nil, err
	}
	want, wantTotal, err := parseResourceSelection(action.Want)
	if err != nil {
		return nil, err
	}
	if offerTotal == 0 || wantTotal == 0 {
		return nil, fmt.Errorf("%w: both sides must carry cards", ErrInvalidTrade)
	}
	if !p.Resources.Covers(offer) {
		return nil, ErrInsufficientResources
	}

	g.state.Turn.PendingTrade = &TradeOffer{From: p.ID, Offer: offer, Want: want}

	events := []protocol.TurnEvent{{
		Kind:   protocol.EventTradeProposed,
		Player: p.ID,
		Offer:  resourceNames(offer),
		Want:   resourceNames(want),
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}

// handleAcceptTrade closes the open offer: the acceptor hands over the asked
// bundle and receives the offered one.
func (g *catan) handleAcceptTrade(p *Player) ([]protocol.TurnEvent, error) {
	if err := g.requirePhase(PhaseAction); err != nil {
		return nil, err
	}

	open := g.state.Turn.PendingTrade
	if open == nil {
		return nil, ErrNoTradeOffer
	}
	if p.ID == open.From {
		return nil, fmt.Errorf("%w: cannot accept your own offer", ErrInvalidTrade)
	}

	proposer, ok := g.state.PlayerByID(open.From)
	if !ok {
		return nil, fmt.Errorf("%w: proposer %q", ErrUnknownPlayer, open.From)
	}
	if !proposer.Resources.Covers(open.Offer) {
		return nil, fmt.Errorf("%w: offer no longer covered", ErrInsufficientResources)
	}
	if !p.Resources.Covers(open.Want) {
		return nil, ErrInsufficientResources
	}

	for r, n := range open.Offer {
		proposer.Resources[r] -= n
		p.Resources[r] += n
	}
	for r, n := range open.Want {
		p.Resources[r] -= n
		proposer.Resources[r] += n
	}
	g.state.Turn.PendingTrade = nil

	events := []protocol.TurnEvent{{
		Kind:   protocol.EventTraded,
		Player: open.From,
		With:   p.ID,
		Offer:  resourceNames(open.Offer),
		Want:   resourceNames(open.Want),
	}}

	winner := g.commit()
	events[0].Version = g.state.Version
	return appendWinner(events, winner), nil
}
