// Package board holds the static topology of the hex board and the occupancy
// state layered on top of it. Topology never changes after NewBoard; only the
// occupant fields on vertices and edges (and the robber tile) mutate.
package board

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	ErrNoSuchSlot   = errors.New("no such board slot")
	ErrOccupied     = errors.New("slot is already occupied")
	ErrTooClose     = errors.New("too close to another settlement")
	ErrNotConnected = errors.New("not connected to a road or settlement")
	ErrNoSettlement = errors.New("no settlement to upgrade")
	ErrBadLayout    = errors.New("invalid board layout")
)

type (
	// VertexID indexes a building slot.
	VertexID int
	// EdgeID indexes a road slot.
	EdgeID int
	// TileID indexes a hex tile.
	TileID int
)

// Coord is a calibrated camera-pixel coordinate for a slot.
type Coord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BuildingKind is the occupancy of a vertex.
type BuildingKind int

const (
	NoBuilding BuildingKind = iota
	Settlement
	City
)

var buildingNames = []string{"", "settlement", "city"}

func (b BuildingKind) String() string {
	if b < 0 || int(b) >= len(buildingNames) {
		return "unknown"
	}
	return buildingNames[b]
}

// Origin records how a slot came to be occupied. Action-derived occupancy is
// authoritative over vision-derived occupancy.
type Origin int

const (
	OriginNone Origin = iota
	OriginAction
	OriginVision
)

var originNames = []string{"", "action", "vision"}

func (o Origin) String() string {
	if o < 0 || int(o) >= len(originNames) {
		return "unknown"
	}
	return originNames[o]
}

// Building is a vertex occupant.
type Building struct {
	Kind   BuildingKind
	Color  string
	Origin Origin
}

// Vertex is a building slot shared by up to three tiles.
type Vertex struct {
	ID       VertexID
	X, Y     float64
	Camera   *Coord
	Building Building

	neighbours []VertexID
	edges      []EdgeID
	tiles      []TileID
}

// Edge is a road slot between two vertices. A and B are canonical (A < B).
type Edge struct {
	ID     EdgeID
	A, B   VertexID
	X, Y   float64
	Camera *Coord
	Color  string
	Origin Origin
}

// Tile is a resource hex.
type Tile struct {
	ID      TileID
	Q, R    int
	X, Y    float64
	Terrain Terrain
	Roll    int
	Robber  bool
	Corners []VertexID
}

// Harbor grants a reduced bank-trade ratio to players with a building on one
// of its vertices. A nil Resource means the ratio applies to any kind.
type Harbor struct {
	Ratio    int
	Resource *Resource
	Vertices []VertexID
}

// Board is the full topology plus occupancy.
type Board struct {
	Vertices []Vertex
	Edges    []Edge
	Tiles    []Tile
	Harbors  []Harbor

	edgeIndex map[[2]VertexID]EdgeID
	layout    Layout
}

// TileSpec configures one tile in axial order.
type TileSpec struct {
	Terrain string `json:"terrain"`
	Roll    int    `json:"roll"`
}

// HarborSpec configures one harbor. Resource is empty for a generic harbor.
type HarborSpec struct {
	Ratio    int    `json:"ratio"`
	Resource string `json:"resource,omitempty"`
	Vertices []int  `json:"vertices"`
}

// SlotCamera pins a calibrated camera coordinate to a vertex or an edge
// (identified by its endpoint pair).
type SlotCamera struct {
	Vertex *int    `json:"vertex,omitempty"`
	A      *int    `json:"a,omitempty"`
	B      *int    `json:"b,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Layout is the typed board configuration loaded once at setup.
type Layout struct {
	Tiles   []TileSpec   `json:"tiles"`
	Harbors []HarborSpec `json:"harbors,omitempty"`
	Cameras []SlotCamera `json:"cameras,omitempty"`
}

const sqrt3 = 1.7320508075688772

// The 19 tiles of the standard board in axial coordinates.
var axialTiles = [][2]int{
	{0, -2}, {1, -2}, {2, -2},
	{-1, -1}, {0, -1}, {1, -1}, {2, -1},
	{-2, 0}, {-1, 0}, {0, 0}, {1, 0}, {2, 0},
	{-2, 1}, {-1, 1}, {0, 1}, {1, 1},
	{-2, 2}, {-1, 2}, {0, 2},
}

// Corner offsets of a pointy-top hex, clockwise from the top.
var corners = [6][2]float64{
	{0, -1},
	{sqrt3 / 2, -0.5},
	{sqrt3 / 2, 0.5},
	{0, 1},
	{-sqrt3 / 2, 0.5},
	{-sqrt3 / 2, -0.5},
}

// Shuffled per game: 18 resource tiles plus one desert, and the fixed
// roll-number pool for the non-desert tiles.
var (
	terrainPool = []Terrain{
		Forest, Forest, Forest, Forest,
		Hills, Hills, Hills,
		Pasture, Pasture, Pasture, Pasture,
		Fields, Fields, Fields, Fields,
		Mountains, Mountains, Mountains,
		Desert,
	}
	rollPool = []int{2, 3, 3, 4, 4, 5, 5, 6, 6, 8, 8, 9, 9, 10, 10, 11, 11, 12}
)

func hexCenter(q, r int) (float64, float64) {
	return sqrt3 * (float64(q) + float64(r)/2), 1.5 * float64(r)
}

func coordKey(x, y float64) string {
	return fmt.Sprintf("%.6f,%.6f", x, y)
}

func canonicalEdge(a, b VertexID) [2]VertexID {
	if a < b {
		return [2]VertexID{a, b}
	}
	return [2]VertexID{b, a}
}

// RandomLayout deals terrains and roll numbers onto the 19 tiles. The desert
// gets no roll number and starts with the robber.
func RandomLayout(rng *rand.Rand) Layout {
	terrains := make([]Terrain, len(terrainPool))
	copy(terrains, terrainPool)
	rng.Shuffle(len(terrains), func(i, j int) {
		terrains[i], terrains[j] = terrains[j], terrains[i]
	})

	rolls := make([]int, len(rollPool))
	copy(rolls, rollPool)
	rng.Shuffle(len(rolls), func(i, j int) {
		rolls[i], rolls[j] = rolls[j], rolls[i]
	})

	layout := Layout{}
	rollIdx := 0
	for _, t := range terrains {
		spec := TileSpec{Terrain: t.String()}
		if t != Desert {
			spec.Roll = rolls[rollIdx]
			rollIdx++
		}
		layout.Tiles = append(layout.Tiles, spec)
	}
	return layout
}

// NewBoard builds the fixed topology and applies the layout. The returned
// board has empty occupancy and the robber on the desert.
func NewBoard(layout Layout) (*Board, error) {
	if len(layout.Tiles) != len(axialTiles) {
		return nil, fmt.Errorf("%w: want %d tiles, got %d", ErrBadLayout, len(axialTiles), len(layout.Tiles))
	}

	b := &Board{
		edgeIndex: map[[2]VertexID]EdgeID{},
		layout:    layout,
	}

	vertexByKey := map[string]VertexID{}

	for i, qr := range axialTiles {
		terrain, err := ParseTerrain(layout.Tiles[i].Terrain)
		if err != nil {
			return nil, fmt.Errorf("%w: tile %d: %s", ErrBadLayout, i, err)
		}
		roll := layout.Tiles[i].Roll
		if terrain == Desert && roll != 0 {
			return nil, fmt.Errorf("%w: desert tile %d has roll number %d", ErrBadLayout, i, roll)
		}
		if terrain != Desert && (roll < 2 || roll > 12 || roll == 7) {
			return nil, fmt.Errorf("%w: tile %d has roll number %d", ErrBadLayout, i, roll)
		}

		cx, cy := hexCenter(qr[0], qr[1])
		tile := Tile{
			ID:      TileID(i),
			Q:       qr[0],
			R:       qr[1],
			X:       cx,
			Y:       cy,
			Terrain: terrain,
			Roll:    roll,
			Robber:  terrain == Desert,
		}

		for _, corner := range corners {
			x, y := cx+corner[0], cy+corner[1]
			key := coordKey(x, y)
			vid, ok := vertexByKey[key]
			if !ok {
				vid = VertexID(len(b.Vertices))
				vertexByKey[key] = vid
				b.Vertices = append(b.Vertices, Vertex{ID: vid, X: x, Y: y})
			}
			tile.Corners = append(tile.Corners, vid)
			b.Vertices[vid].tiles = append(b.Vertices[vid].tiles, tile.ID)
		}

		b.Tiles = append(b.Tiles, tile)
	}

	for _, tile := range b.Tiles {
		for i := 0; i < 6; i++ {
			a, bb := tile.Corners[i], tile.Corners[(i+1)%6]
			pair := canonicalEdge(a, bb)
			if _, ok := b.edgeIndex[pair]; ok {
				continue
			}
			eid := EdgeID(len(b.Edges))
			va, vb := &b.Vertices[pair[0]], &b.Vertices[pair[1]]
			b.Edges = append(b.Edges, Edge{
				ID: eid,
				A:  pair[0],
				B:  pair[1],
				X:  (va.X + vb.X) / 2,
				Y:  (va.Y + vb.Y) / 2,
			})
			b.edgeIndex[pair] = eid
			va.edges = append(va.edges, eid)
			vb.edges = append(vb.edges, eid)
			va.neighbours = append(va.neighbours, pair[1])
			vb.neighbours = append(vb.neighbours, pair[0])
		}
	}

	for _, h := range layout.Harbors {
		if h.Ratio < 2 || h.Ratio > 3 {
			return nil, fmt.Errorf("%w: harbor ratio %d", ErrBadLayout, h.Ratio)
		}
		harbor := Harbor{Ratio: h.Ratio}
		if h.Resource != "" {
			res, err := ParseResource(h.Resource)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrBadLayout, err)
			}
			harbor.Resource = &res
		}
		for _, v := range h.Vertices {
			if v < 0 || v >= len(b.Vertices) {
				return nil, fmt.Errorf("%w: harbor vertex %d", ErrBadLayout, v)
			}
			harbor.Vertices = append(harbor.Vertices, VertexID(v))
		}
		b.Harbors = append(b.Harbors, harbor)
	}

	for _, cam := range layout.Cameras {
		coord := Coord{X: cam.X, Y: cam.Y}
		switch {
		case cam.Vertex != nil:
			v := *cam.Vertex
			if v < 0 || v >= len(b.Vertices) {
				return nil, fmt.Errorf("%w: camera vertex %d", ErrBadLayout, v)
			}
			c := coord
			b.Vertices[v].Camera = &c
		case cam.A != nil && cam.B != nil:
			eid, ok := b.EdgeBetween(VertexID(*cam.A), VertexID(*cam.B))
			if !ok {
				return nil, fmt.Errorf("%w: camera edge %d-%d", ErrBadLayout, *cam.A, *cam.B)
			}
			c := coord
			b.Edges[eid].Camera = &c
		default:
			return nil, fmt.Errorf("%w: camera point names neither vertex nor edge", ErrBadLayout)
		}
	}

	return b, nil
}

// Layout returns the configuration the board was built from.
func (b *Board) Layout() Layout {
	return b.layout
}

// Vertex returns the vertex with the given ID.
func (b *Board) Vertex(id VertexID) (*Vertex, error) {
	if id < 0 || int(id) >= len(b.Vertices) {
		return nil, ErrNoSuchSlot
	}
	return &b.Vertices[id], nil
}

// Edge returns the edge with the given ID.
func (b *Board) Edge(id EdgeID) (*Edge, error) {
	if id < 0 || int(id) >= len(b.Edges) {
		return nil, ErrNoSuchSlot
	}
	return &b.Edges[id], nil
}

// Tile returns the tile with the given ID.
func (b *Board) Tile(id TileID) (*Tile, error) {
	if id < 0 || int(id) >= len(b.Tiles) {
		return nil, ErrNoSuchSlot
	}
	return &b.Tiles[id], nil
}

// EdgeBetween finds the edge joining two vertices, if one exists.
func (b *Board) EdgeBetween(a, bb VertexID) (EdgeID, bool) {
	eid, ok := b.edgeIndex[canonicalEdge(a, bb)]
	return eid, ok
}

// Neighbours returns the vertices adjacent to v.
func (v *Vertex) Neighbours() []VertexID {
	return v.neighbours
}

// EdgeIDs returns the edges meeting at v.
func (v *Vertex) EdgeIDs() []EdgeID {
	return v.edges
}

// TileIDs returns the tiles cornered at v.
func (v *Vertex) TileIDs() []TileID {
	return v.tiles
}

// Other returns the edge endpoint that is not v.
func (e *Edge) Other(v VertexID) VertexID {
	if e.A == v {
		return e.B
	}
	return e.A
}

// CanPlaceSettlement validates a settlement placement for color at vid. The
// distance rule always applies; road connectivity applies only when
// requireRoad is set (it is waived during the setup rounds and for vision
// gap-fills on vertices the action log never touched).
func (b *Board) CanPlaceSettlement(color string, vid VertexID, requireRoad bool) error {
	v, err := b.Vertex(vid)
	if err != nil {
		return err
	}
	if v.Building.Kind != NoBuilding {
		return ErrOccupied
	}
	for _, n := range v.neighbours {
		if b.Vertices[n].Building.Kind != NoBuilding {
			return ErrTooClose
		}
	}
	if requireRoad {
		connected := false
		for _, eid := range v.edges {
			if b.Edges[eid].Color == color {
				connected = true
				break
			}
		}
		if !connected {
			return ErrNotConnected
		}
	}
	return nil
}

// CanUpgradeCity validates upgrading color's settlement at vid to a city.
func (b *Board) CanUpgradeCity(color string, vid VertexID) error {
	v, err := b.Vertex(vid)
	if err != nil {
		return err
	}
	if v.Building.Kind != Settlement || v.Building.Color != color {
		return ErrNoSettlement
	}
	return nil
}

// CanPlaceRoad validates a road placement for color at eid. The edge must be
// empty and reachable from one of color's buildings or roads; a road may not
// continue through a vertex occupied by another player.
func (b *Board) CanPlaceRoad(color string, eid EdgeID) error {
	e, err := b.Edge(eid)
	if err != nil {
		return err
	}
	if e.Color != "" {
		return ErrOccupied
	}
	for _, end := range [2]VertexID{e.A, e.B} {
		v := &b.Vertices[end]
		if v.Building.Kind != NoBuilding {
			if v.Building.Color == color {
				return nil
			}
			// opponent building blocks continuation through this vertex
			continue
		}
		for _, other := range v.edges {
			if other != eid && b.Edges[other].Color == color {
				return nil
			}
		}
	}
	return ErrNotConnected
}

// Touches reports whether the edge has vid as an endpoint.
func (e *Edge) Touches(vid VertexID) bool {
	return e.A == vid || e.B == vid
}

// PlaceSettlement occupies a vertex. Callers validate rules first.
func (b *Board) PlaceSettlement(vid VertexID, color string, origin Origin) error {
	v, err := b.Vertex(vid)
	if err != nil {
		return err
	}
	if v.Building.Kind != NoBuilding {
		return ErrOccupied
	}
	v.Building = Building{Kind: Settlement, Color: color, Origin: origin}
	return nil
}

// UpgradeCity replaces a settlement with a city.
func (b *Board) UpgradeCity(vid VertexID, color string) error {
	if err := b.CanUpgradeCity(color, vid); err != nil {
		return err
	}
	b.Vertices[vid].Building.Kind = City
	b.Vertices[vid].Building.Origin = OriginAction
	return nil
}

// PlaceRoad occupies an edge. Callers validate rules first.
func (b *Board) PlaceRoad(eid EdgeID, color string, origin Origin) error {
	e, err := b.Edge(eid)
	if err != nil {
		return err
	}
	if e.Color != "" {
		return ErrOccupied
	}
	e.Color = color
	e.Origin = origin
	return nil
}

// ClearVertex empties a building slot.
func (b *Board) ClearVertex(vid VertexID) error {
	v, err := b.Vertex(vid)
	if err != nil {
		return err
	}
	v.Building = Building{}
	return nil
}

// ClearEdge empties a road slot.
func (b *Board) ClearEdge(eid EdgeID) error {
	e, err := b.Edge(eid)
	if err != nil {
		return err
	}
	e.Color = ""
	e.Origin = OriginNone
	return nil
}

// RobberTile returns the tile currently holding the robber.
func (b *Board) RobberTile() TileID {
	for _, t := range b.Tiles {
		if t.Robber {
			return t.ID
		}
	}
	return -1
}

// MoveRobber moves the robber to the given tile.
func (b *Board) MoveRobber(tid TileID) error {
	if tid < 0 || int(tid) >= len(b.Tiles) {
		return ErrNoSuchSlot
	}
	for i := range b.Tiles {
		b.Tiles[i].Robber = false
	}
	b.Tiles[tid].Robber = true
	return nil
}

// Claim is one building's entitlement from a production roll.
type Claim struct {
	Color    string
	Resource Resource
	Amount   int
	Tile     TileID
	Vertex   VertexID
}

// ProductionClaims enumerates every building's entitlement for a roll.
// The robber's tile never produces.
func (b *Board) ProductionClaims(roll int) []Claim {
	claims := []Claim{}
	for _, tile := range b.Tiles {
		if tile.Robber || tile.Roll != roll {
			continue
		}
		res, ok := tile.Terrain.Produces()
		if !ok {
			continue
		}
		for _, vid := range tile.Corners {
			building := b.Vertices[vid].Building
			if building.Kind == NoBuilding {
				continue
			}
			amount := 1
			if building.Kind == City {
				amount = 2
			}
			claims = append(claims, Claim{
				Color:    building.Color,
				Resource: res,
				Amount:   amount,
				Tile:     tile.ID,
				Vertex:   vid,
			})
		}
	}
	return claims
}

// RoadsOf returns the edges carrying color's roads.
func (b *Board) RoadsOf(color string) []EdgeID {
	out := []EdgeID{}
	for _, e := range b.Edges {
		if e.Color == color {
			out = append(out, e.ID)
		}
	}
	return out
}

// BuildingCount returns color's settlement and city counts.
func (b *Board) BuildingCount(color string) (settlements, cities int) {
	for _, v := range b.Vertices {
		if v.Building.Color != color {
			continue
		}
		switch v.Building.Kind {
		case Settlement:
			settlements++
		case City:
			cities++
		}
	}
	return settlements, cities
}

// TradeRatio is color's best bank-trade ratio when giving res, considering
// harbors it has built on. The default bank rate is 4:1.
func (b *Board) TradeRatio(color string, res Resource) int {
	ratio := 4
	for _, h := range b.Harbors {
		if h.Resource != nil && *h.Resource != res {
			continue
		}
		if h.Ratio >= ratio {
			continue
		}
		for _, vid := range h.Vertices {
			building := b.Vertices[vid].Building
			if building.Kind != NoBuilding && building.Color == color {
				ratio = h.Ratio
				break
			}
		}
	}
	return ratio
}

// SlotKind distinguishes vertex slots from edge slots.
type SlotKind int

const (
	SlotVertex SlotKind = iota
	SlotEdge
)

func (s SlotKind) String() string {
	if s == SlotVertex {
		return "vertex"
	}
	return "edge"
}

// Slot identifies one calibrated board position for the vision layer.
type Slot struct {
	Kind   SlotKind
	Vertex VertexID
	Edge   EdgeID
	Camera Coord
}

// CalibratedSlots lists every slot with a camera coordinate.
func (b *Board) CalibratedSlots() []Slot {
	slots := []Slot{}
	for _, v := range b.Vertices {
		if v.Camera != nil {
			slots = append(slots, Slot{Kind: SlotVertex, Vertex: v.ID, Camera: *v.Camera})
		}
	}
	for _, e := range b.Edges {
		if e.Camera != nil {
			slots = append(slots, Slot{Kind: SlotEdge, Edge: e.ID, Camera: *e.Camera})
		}
	}
	return slots
}

// Occupant returns the color and origin at a slot; empty color means empty.
func (b *Board) Occupant(s Slot) (string, Origin) {
	if s.Kind == SlotVertex {
		v := b.Vertices[s.Vertex]
		return v.Building.Color, v.Building.Origin
	}
	e := b.Edges[s.Edge]
	return e.Color, e.Origin
}

// Distance is the euclidean distance between two camera coordinates.
func Distance(a, b Coord) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
