// Package protocol defines the wire types exchanged between the engine and
// its collaborators: player actions coming in, turn events going out, and
// observation batches from the vision front end.
package protocol

import "encoding/json"

// ActionKind discriminates a PlayerAction payload.
type ActionKind int

const (
	Unknown ActionKind = iota
	PlaceSetup
	Roll
	BuildRoad
	BuildSettlement
	BuildCity
	BuyDevCard
	PlayDevCard
	BankTrade
	ProposeTrade
	AcceptTrade
	Discard
	EndTurn
	Reconcile
)

var actionNames = []string{
	"Unknown",
	"PlaceSetup",
	"Roll",
	"BuildRoad",
	"BuildSettlement",
	"BuildCity",
	"BuyDevCard",
	"PlayDevCard",
	"BankTrade",
	"ProposeTrade",
	"AcceptTrade",
	"Discard",
	"EndTurn",
	"Reconcile",
}

func (a ActionKind) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "Unknown"
	}
	return actionNames[a]
}

// ParseActionKind maps an action name to its ActionKind.
func ParseActionKind(name string) ActionKind {
	for i, n := range actionNames {
		if n == name {
			return ActionKind(i)
		}
	}
	return Unknown
}

// UnmarshalJSON accepts the kind as either its number or its name, so
// handwritten payloads and operator tooling can send readable kinds.
func (a *ActionKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*a = ParseActionKind(name)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = ActionKind(n)
	return nil
}

// EventKind discriminates a TurnEvent payload.
type EventKind int

const (
	EventNone EventKind = iota
	EventSetupPlaced
	EventSetupComplete
	EventRolled
	EventPayout
	EventDiscardOwed
	EventDiscarded
	EventBuilt
	EventDevCardBought
	EventDevCardPlayed
	EventTradeProposed
	EventTraded
	EventTurnEnded
	EventCorrection
	EventConflict
	EventWinner
	EventSnapshotWarning
)

var eventNames = []string{
	"None",
	"SetupPlaced",
	"SetupComplete",
	"Rolled",
	"Payout",
	"DiscardOwed",
	"Discarded",
	"Built",
	"DevCardBought",
	"DevCardPlayed",
	"TradeProposed",
	"Traded",
	"TurnEnded",
	"Correction",
	"Conflict",
	"Winner",
	"SnapshotWarning",
}

func (e EventKind) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "None"
	}
	return eventNames[e]
}
