package game

import (
	"github.com/tmarlow/tabletan/board"
)

// LongestRoadLength is the longest simple road path for color. An opponent
// building on a vertex cuts the path there.
func (gs *GameState) LongestRoadLength(color string) int {
	b := gs.Board
	edges := b.RoadsOf(color)
	if len(edges) == 0 {
		return 0
	}

	adjacency := map[board.VertexID][]board.EdgeID{}
	for _, eid := range edges {
		e, _ := b.Edge(eid)
		adjacency[e.A] = append(adjacency[e.A], eid)
		adjacency[e.B] = append(adjacency[e.B], eid)
	}

	blocked := map[board.VertexID]bool{}
	for _, v := range b.Vertices {
		if v.Building.Kind != board.NoBuilding && v.Building.Color != color {
			blocked[v.ID] = true
		}
	}

	best := 0
	used := map[board.EdgeID]bool{}

	var dfs func(vertex board.VertexID, length int)
	dfs = func(vertex board.VertexID, length int) {
		if length > best {
			best = length
		}
		if length > 0 && blocked[vertex] {
			return
		}
		for _, eid := range adjacency[vertex] {
			if used[eid] {
				continue
			}
			e, _ := b.Edge(eid)
			used[eid] = true
			dfs(e.Other(vertex), length+1)
			used[eid] = false
		}
	}

	for _, eid := range edges {
		e, _ := b.Edge(eid)
		used[eid] = true
		dfs(e.A, 1)
		dfs(e.B, 1)
		used[eid] = false
	}

	return best
}

// RecomputeBonusHolders refreshes the longest-road and largest-army flags,
// applying the configured tie policy. Runs on every commit.
func (gs *GameState) RecomputeBonusHolders() {
	lengths := make([]int, len(gs.Players))
	for i, p := range gs.Players {
		lengths[i] = gs.LongestRoadLength(p.Color)
		p.LongestRoadLen = lengths[i]
	}
	gs.awardBonus(
		lengths,
		minLongestRoad,
		func(p *Player) bool { return p.HasLongestRoad },
		func(p *Player, held bool) { p.HasLongestRoad = held },
	)

	knights := make([]int, len(gs.Players))
	for i, p := range gs.Players {
		knights[i] = p.PlayedKnights
	}
	gs.awardBonus(
		knights,
		minLargestArmy,
		func(p *Player) bool { return p.HasLargestArmy },
		func(p *Player, held bool) { p.HasLargestArmy = held },
	)
}

// awardBonus applies the shared holder logic for both bonuses: a strict
// leader at or above the threshold holds it; on a tie the policy decides
// whether the previous holder keeps it or nobody does.
func (gs *GameState) awardBonus(scores []int, threshold int, holds func(*Player) bool, set func(*Player, bool)) {
	prev := -1
	for i, p := range gs.Players {
		if holds(p) {
			prev = i
		}
		set(p, false)
	}

	max := 0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max < threshold {
		return
	}

	leaders := []int{}
	for i, s := range scores {
		if s == max {
			leaders = append(leaders, i)
		}
	}

	winner := -1
	if len(leaders) == 1 {
		winner = leaders[0]
	} else if gs.TiePolicy == TieHolderKeeps && prev >= 0 {
		for _, l := range leaders {
			if l == prev {
				winner = prev
				break
			}
		}
	}

	if winner >= 0 {
		set(gs.Players[winner], true)
	}
}

// VictoryPoints recomputes a player's score purely from the aggregate:
// settlements, cities, victory point cards and the two bonuses.
func (gs *GameState) VictoryPoints(p *Player) int {
	settlements, cities := gs.Board.BuildingCount(p.Color)
	points := settlements + 2*cities
	points += p.DevCards[board.VictoryPointCard] + p.NewDevCards[board.VictoryPointCard]
	if p.HasLongestRoad {
		points += 2
	}
	if p.HasLargestArmy {
		points += 2
	}
	return points
}

// Standings reports every player's current score, recomputed on the spot.
func (gs *GameState) Standings() map[string]int {
	out := map[string]int{}
	for _, p := range gs.Players {
		out[p.ID] = gs.VictoryPoints(p)
	}
	return out
}

func (g *catan) LongestRoadLength(color string) int {
	return g.state.LongestRoadLength(color)
}

func (g *catan) VictoryPoints(p *Player) int {
	return g.state.VictoryPoints(p)
}

func (g *catan) Standings() map[string]int {
	return g.state.Standings()
}

func (g *catan) recomputeBonusHolders() {
	g.state.RecomputeBonusHolders()
}
