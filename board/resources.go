package board

import (
	"fmt"
	"math/rand"
)

// Resource is one of the five tradeable resource kinds.
type Resource int

const (
	Wood Resource = iota
	Brick
	Sheep
	Wheat
	Ore
)

var resourceNames = []string{
	"wood",
	"brick",
	"sheep",
	"wheat",
	"ore",
}

// Resources lists every resource kind in a fixed order.
var Resources = []Resource{Wood, Brick, Sheep, Wheat, Ore}

func (r Resource) String() string {
	if r < 0 || int(r) >= len(resourceNames) {
		return "unknown"
	}
	return resourceNames[r]
}

// ParseResource maps a resource name to its Resource value.
func ParseResource(name string) (Resource, error) {
	for i, n := range resourceNames {
		if n == name {
			return Resource(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource %q", name)
}

// Terrain is a tile's terrain kind. Every terrain except the desert
// produces exactly one resource.
type Terrain int

const (
	Forest Terrain = iota
	Hills
	Pasture
	Fields
	Mountains
	Desert
)

var terrainNames = []string{
	"forest",
	"hills",
	"pasture",
	"fields",
	"mountains",
	"desert",
}

func (t Terrain) String() string {
	if t < 0 || int(t) >= len(terrainNames) {
		return "unknown"
	}
	return terrainNames[t]
}

// ParseTerrain maps a terrain name to its Terrain value.
func ParseTerrain(name string) (Terrain, error) {
	for i, n := range terrainNames {
		if n == name {
			return Terrain(i), nil
		}
	}
	return 0, fmt.Errorf("unknown terrain %q", name)
}

// Produces returns the resource a terrain yields, if any.
func (t Terrain) Produces() (Resource, bool) {
	switch t {
	case Forest:
		return Wood, true
	case Hills:
		return Brick, true
	case Pasture:
		return Sheep, true
	case Fields:
		return Wheat, true
	case Mountains:
		return Ore, true
	}
	return 0, false
}

// DevCard is a development card kind.
type DevCard int

const (
	Knight DevCard = iota
	VictoryPointCard
	RoadBuilding
	YearOfPlenty
	Monopoly
)

var devCardNames = []string{
	"knight",
	"victory_point",
	"road_building",
	"year_of_plenty",
	"monopoly",
}

func (d DevCard) String() string {
	if d < 0 || int(d) >= len(devCardNames) {
		return "unknown"
	}
	return devCardNames[d]
}

// ParseDevCard maps a development card name to its DevCard value.
func ParseDevCard(name string) (DevCard, error) {
	for i, n := range devCardNames {
		if n == name {
			return DevCard(i), nil
		}
	}
	return 0, fmt.Errorf("unknown development card %q", name)
}

// DevCardCounts is the composition of a full development deck.
var DevCardCounts = map[DevCard]int{
	Knight:           14,
	VictoryPointCard: 5,
	RoadBuilding:     2,
	YearOfPlenty:     2,
	Monopoly:         2,
}

// NewDevDeck builds and shuffles a full development deck. The draw order is
// fixed once shuffled; cards are drawn from the front.
func NewDevDeck(rng *rand.Rand) []DevCard {
	deck := []DevCard{}
	for _, card := range []DevCard{Knight, VictoryPointCard, RoadBuilding, YearOfPlenty, Monopoly} {
		for i := 0; i < DevCardCounts[card]; i++ {
			deck = append(deck, card)
		}
	}
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// ResourceCount holds a non-negative number of cards per resource kind.
type ResourceCount map[Resource]int

// NewResourceCount returns a count with every kind set to n.
func NewResourceCount(n int) ResourceCount {
	rc := ResourceCount{}
	for _, r := range Resources {
		rc[r] = n
	}
	return rc
}

// Total is the number of cards across all kinds.
func (rc ResourceCount) Total() int {
	total := 0
	for _, r := range Resources {
		total += rc[r]
	}
	return total
}

// Clone returns an independent copy.
func (rc ResourceCount) Clone() ResourceCount {
	out := ResourceCount{}
	for k, v := range rc {
		out[k] = v
	}
	return out
}

// Covers reports whether rc holds at least the cards in cost.
func (rc ResourceCount) Covers(cost ResourceCount) bool {
	for r, n := range cost {
		if rc[r] < n {
			return false
		}
	}
	return true
}

// Build costs, per the standard rules.
var (
	RoadCost       = ResourceCount{Wood: 1, Brick: 1}
	SettlementCost = ResourceCount{Wood: 1, Brick: 1, Sheep: 1, Wheat: 1}
	CityCost       = ResourceCount{Wheat: 2, Ore: 3}
	DevCardCost    = ResourceCount{Sheep: 1, Wheat: 1, Ore: 1}
)

// BankStartPerResource is the bank's opening stock of each resource kind.
const BankStartPerResource = 19
