// Package reconcile turns raw camera observations into debounced board
// deltas. It proposes; it never mutates. The game layer decides whether a
// proposal is applied as a correction or surfaced as a conflict.
package reconcile

import (
	"errors"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/protocol"
)

var ErrNoCalibration = errors.New("reconcile: board has no calibrated slots")

const (
	DefaultDebounceWindow   = 3
	DefaultMinConfidence    = 0.6
	DefaultMaxMatchDistance = 25.0
)

// Options tunes the noise filtering. Zero values fall back to the defaults.
type Options struct {
	// DebounceWindow is the number of consecutive agreeing batches a slot
	// needs before a change is proposed.
	DebounceWindow int

	// MinConfidence is the floor below which a detection cannot extend an
	// agreement streak.
	MinConfidence float64

	// MaxMatchDistance bounds the camera-coordinate distance between a
	// detection and the slot it is matched to. Further detections are noise.
	MaxMatchDistance float64
}

func (o Options) withDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.MaxMatchDistance <= 0 {
		o.MaxMatchDistance = DefaultMaxMatchDistance
	}
	return o
}

// Delta is a debounced proposal for one slot. Clear proposes emptying the
// slot; otherwise Color is the sustained occupant.
type Delta struct {
	Slot       board.Slot
	Color      string
	Clear      bool
	Confidence float64
	Batches    int
}

// Outcome summarizes one observation batch: the deltas that survived the
// debounce and now disagree with the board, plus the noise that did not.
type Outcome struct {
	Deltas []Delta

	// Noise counts detections that matched no calibrated slot.
	Noise int

	// LowConfidence counts detections under the confidence floor.
	LowConfidence int
}

type slotKey struct {
	kind   board.SlotKind
	vertex board.VertexID
	edge   board.EdgeID
}

func keyOf(s board.Slot) slotKey {
	return slotKey{kind: s.Kind, vertex: s.Vertex, edge: s.Edge}
}

// streak tracks consecutive agreeing batches for one slot. An empty color
// is a sustained board-color (clear) reading.
type streak struct {
	color      string
	count      int
	confidence float64
}

// Reconciler matches detections to calibrated slots and debounces them
// across batches. It reads the board's occupancy but never writes it; it is
// not safe for concurrent use and expects to run on the engine's loop.
type Reconciler struct {
	board   *board.Board
	opts    Options
	slots   []board.Slot
	streaks map[slotKey]*streak
}

func NewReconciler(b *board.Board, opts Options) (*Reconciler, error) {
	slots := b.CalibratedSlots()
	if len(slots) == 0 {
		return nil, ErrNoCalibration
	}
	return &Reconciler{
		board:   b,
		opts:    opts.withDefaults(),
		slots:   slots,
		streaks: map[slotKey]*streak{},
	}, nil
}

// match finds the nearest calibrated slot within the distance threshold.
func (r *Reconciler) match(obs protocol.Observation) (board.Slot, bool) {
	var best board.Slot
	bestDist := r.opts.MaxMatchDistance
	found := false
	for _, s := range r.slots {
		d := board.Distance(s.Camera, board.Coord{X: obs.X, Y: obs.Y})
		if d <= bestDist {
			best, bestDist, found = s, d, true
		}
	}
	return best, found
}

// Observe folds one batch into the per-slot streaks and reports which slots
// have cleared the debounce window while disagreeing with the board. A slot
// absent from a batch loses its streak: agreement must be consecutive.
func (r *Reconciler) Observe(batch protocol.ObservationBatch) Outcome {
	out := Outcome{}

	// best detection per slot for this batch
	seen := map[slotKey]protocol.Observation{}
	for _, obs := range batch.Observations {
		slot, ok := r.match(obs)
		if !ok {
			out.Noise++
			continue
		}
		k := keyOf(slot)
		if prev, ok := seen[k]; !ok || obs.Confidence > prev.Confidence {
			seen[k] = obs
		}
	}

	for _, slot := range r.slots {
		k := keyOf(slot)
		obs, ok := seen[k]
		if !ok {
			delete(r.streaks, k)
			continue
		}
		if obs.Color != "" && obs.Confidence < r.opts.MinConfidence {
			out.LowConfidence++
			delete(r.streaks, k)
			continue
		}

		s := r.streaks[k]
		if s == nil || s.color != obs.Color {
			s = &streak{color: obs.Color}
			r.streaks[k] = s
		}
		s.count++
		s.confidence = obs.Confidence

		if s.count < r.opts.DebounceWindow {
			continue
		}

		current, _ := r.board.Occupant(slot)
		if current == s.color {
			continue
		}
		out.Deltas = append(out.Deltas, Delta{
			Slot:       slot,
			Color:      s.color,
			Clear:      s.color == "",
			Confidence: s.confidence,
			Batches:    s.count,
		})
	}

	return out
}

// Reset drops all agreement streaks, e.g. after the camera is re-aimed.
func (r *Reconciler) Reset() {
	r.streaks = map[slotKey]*streak{}
}
