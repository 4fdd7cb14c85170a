package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/game"
)

var (
	ErrSnapshotFailed = errors.New("snapshot write failed")
	ErrStaleSnapshot  = errors.New("snapshot version went backwards")
)

// snapshot is the on-disk form of a game. The board's topology is derived
// from the layout; only the occupancy needs recording.
type snapshot struct {
	SavedAt   time.Time       `json:"saved_at"`
	Layout    board.Layout    `json:"layout"`
	Buildings []buildingEntry `json:"buildings,omitempty"`
	Roads     []roadEntry     `json:"roads,omitempty"`
	Robber    board.TileID    `json:"robber"`
	State     *game.GameState `json:"state"`
}

type buildingEntry struct {
	Vertex board.VertexID     `json:"vertex"`
	Kind   board.BuildingKind `json:"kind"`
	Color  string             `json:"color"`
	Origin board.Origin       `json:"origin"`
}

type roadEntry struct {
	A      board.VertexID `json:"a"`
	B      board.VertexID `json:"b"`
	Color  string         `json:"color"`
	Origin board.Origin   `json:"origin"`
}

// SnapshotStore persists full game states as JSON, one file per store,
// replaced atomically on every save.
type SnapshotStore struct {
	path        string
	lastVersion uint64
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Save writes the state to disk via a temp file and an atomic rename. A
// failed write is retried once; persistent failure is surfaced as
// ErrSnapshotFailed and the caller decides how loudly to warn.
func (s *SnapshotStore) Save(state *game.GameState) error {
	if state.Version < s.lastVersion {
		return fmt.Errorf("%w: have %d, got %d", ErrStaleSnapshot, s.lastVersion, state.Version)
	}

	snap := snapshot{
		SavedAt: time.Now().UTC(),
		State:   state,
	}
	if state.Board != nil {
		snap.Layout = state.Board.Layout()
		snap.Robber = state.Board.RobberTile()
		for _, v := range state.Board.Vertices {
			if v.Building.Kind == board.NoBuilding {
				continue
			}
			snap.Buildings = append(snap.Buildings, buildingEntry{
				Vertex: v.ID,
				Kind:   v.Building.Kind,
				Color:  v.Building.Color,
				Origin: v.Building.Origin,
			})
		}
		for _, e := range state.Board.Edges {
			if e.Color == "" {
				continue
			}
			snap.Roads = append(snap.Roads, roadEntry{
				A:      e.A,
				B:      e.B,
				Color:  e.Color,
				Origin: e.Origin,
			})
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSnapshotFailed, err)
	}

	err = s.writeAtomic(data)
	if err != nil {
		// one immediate retry; transient filesystem hiccups are common on
		// the small boards this runs on
		err = s.writeAtomic(data)
	}
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSnapshotFailed, err)
	}

	s.lastVersion = state.Version
	return nil
}

func (s *SnapshotStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return err
	}

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads the last snapshot and rebuilds the board occupancy. A missing
// file is not an error: it returns a nil state.
func (s *SnapshotStore) Load() (*game.GameState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", s.path, err)
	}
	if snap.State == nil {
		return nil, fmt.Errorf("corrupt snapshot %s: no state", s.path)
	}

	b, err := board.NewBoard(snap.Layout)
	if err != nil {
		return nil, fmt.Errorf("snapshot layout: %w", err)
	}

	for _, entry := range snap.Buildings {
		if err := b.PlaceSettlement(entry.Vertex, entry.Color, entry.Origin); err != nil {
			return nil, fmt.Errorf("snapshot building at vertex %d: %w", entry.Vertex, err)
		}
		if entry.Kind == board.City {
			if err := b.UpgradeCity(entry.Vertex, entry.Color); err != nil {
				return nil, fmt.Errorf("snapshot city at vertex %d: %w", entry.Vertex, err)
			}
		}
	}
	for _, entry := range snap.Roads {
		eid, ok := b.EdgeBetween(entry.A, entry.B)
		if !ok {
			return nil, fmt.Errorf("snapshot road %d-%d: no such edge", entry.A, entry.B)
		}
		if err := b.PlaceRoad(eid, entry.Color, entry.Origin); err != nil {
			return nil, fmt.Errorf("snapshot road %d-%d: %w", entry.A, entry.B, err)
		}
	}
	if err := b.MoveRobber(snap.Robber); err != nil {
		return nil, fmt.Errorf("snapshot robber: %w", err)
	}

	snap.State.Board = b
	s.lastVersion = snap.State.Version
	return snap.State, nil
}
