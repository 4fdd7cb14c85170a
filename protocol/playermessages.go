package protocol

import "time"

// PlayerInfo identifies a seated player. Color is the physical piece color
// the camera detects ("orange", "blue", "red").
type PlayerInfo struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

// PlayerAction is the tagged inbound variant. Kind selects which payload
// fields are meaningful; everything else is ignored by the engine.
type PlayerAction struct {
	Kind     ActionKind `json:"kind"`
	PlayerID string     `json:"player_id"`

	// PlaceSetup, BuildSettlement, BuildCity
	Vertex int `json:"vertex,omitempty"`
	// PlaceSetup, BuildRoad: road endpoints
	EdgeA int `json:"edge_a,omitempty"`
	EdgeB int `json:"edge_b,omitempty"`
	// Roll: zero means the engine rolls
	Die1 int `json:"die_1,omitempty"`
	Die2 int `json:"die_2,omitempty"`
	// PlayDevCard
	Card string `json:"card,omitempty"`
	// PlayDevCard (knight), Roll (seven): robber destination. On a roll,
	// MoveRobber makes tile zero addressable; a bare non-zero Tile also
	// moves.
	Tile       int  `json:"tile,omitempty"`
	MoveRobber bool `json:"move_robber,omitempty"`
	// BankTrade, PlayDevCard (monopoly)
	Give string `json:"give,omitempty"`
	Get  string `json:"get,omitempty"`
	// ProposeTrade: resource bundles offered and asked for
	Offer map[string]int `json:"offer,omitempty"`
	Want  map[string]int `json:"want,omitempty"`
	// Discard, PlayDevCard (year of plenty): resource name -> count
	Resources map[string]int `json:"resources,omitempty"`
}

// Conflict reports a disagreement between vision and the authoritative
// state, carried on an EventConflict for operator resolution.
type Conflict struct {
	SlotKind      string  `json:"slot_kind"`
	Vertex        int     `json:"vertex,omitempty"`
	EdgeA         int     `json:"edge_a,omitempty"`
	EdgeB         int     `json:"edge_b,omitempty"`
	Proposed      string  `json:"proposed"`
	Authoritative string  `json:"authoritative"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

// TurnEvent is the outbound notification for displays and hardware.
type TurnEvent struct {
	Kind    EventKind `json:"kind"`
	Player  string    `json:"player,omitempty"`
	// With is the counterparty on player-to-player trades.
	With    string `json:"with,omitempty"`
	Version uint64 `json:"version,omitempty"`

	Die1  int `json:"die_1,omitempty"`
	Die2  int `json:"die_2,omitempty"`
	Total int `json:"total,omitempty"`
	// Payout: player id -> resource name -> amount
	Payouts map[string]map[string]int `json:"payouts,omitempty"`
	// DiscardOwed: player id -> cards owed
	Owed map[string]int `json:"owed,omitempty"`

	Building string `json:"building,omitempty"`
	Vertex   int    `json:"vertex,omitempty"`
	EdgeA    int    `json:"edge_a,omitempty"`
	EdgeB    int    `json:"edge_b,omitempty"`

	Card      string         `json:"card,omitempty"`
	Give      string         `json:"give,omitempty"`
	Get       string         `json:"get,omitempty"`
	Rate      int            `json:"rate,omitempty"`
	Resources map[string]int `json:"resources,omitempty"`
	Offer     map[string]int `json:"offer,omitempty"`
	Want      map[string]int `json:"want,omitempty"`

	Conflict *Conflict `json:"conflict,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Observation is one detected occupant at a camera coordinate. Color is the
// detected piece color, or "board" when the detector saw bare board.
type Observation struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Color      string    `json:"color"`
	Confidence float64   `json:"confidence"`
	FrameTS    time.Time `json:"frame_ts"`
}

// ObservationBatch is one detection pass over the whole board.
type ObservationBatch struct {
	Observations []Observation `json:"observations"`
	Captured     time.Time     `json:"captured"`
}
