// Package engine owns the single-writer loop around one game. Player
// actions arrive as commands with reply channels, camera batches land on a
// buffered queue that is drained only between actions, committed events fan
// out to subscribers, and every commit is snapshotted.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/tmarlow/tabletan/game"
	"github.com/tmarlow/tabletan/protocol"
	"github.com/tmarlow/tabletan/reconcile"
)

var (
	ErrEngineStopped = errors.New("engine has been shut down")
	ErrNoGame        = errors.New("engine requires a game")
)

// playState represents the lifecycle of the engine
// idle -> players still joining
// inProgress -> game underway
// finished -> a winner was declared
type playState int

const (
	Idle playState = iota
	InProgress
	Finished
)

func (ps playState) String() string {
	switch ps {
	case Idle:
		return "idle"
	case InProgress:
		return "inProgress"
	case Finished:
		return "finished"
	}
	return ""
}

// Snapshotter persists the state after a commit. Save owns its own retry
// policy; an error returned here is surfaced as a warning event.
type Snapshotter interface {
	Save(state *game.GameState) error
}

// GameEngine serializes all access to one game.
type GameEngine interface {
	ID() string
	Code() string
	CreatorID() string
	PlayState() playState
	Start(playerInfo []protocol.PlayerInfo) error
	Send(ctx context.Context, action protocol.PlayerAction) ([]protocol.TurnEvent, error)
	Observe(batch protocol.ObservationBatch) bool
	Subscribe() (<-chan protocol.TurnEvent, func())
	Inspect(ctx context.Context, fn func(*game.GameState)) error
	Shutdown()
}

type command struct {
	action *protocol.PlayerAction
	start  []protocol.PlayerInfo
	// inspect runs on the loop with exclusive access to the state
	inspect func(*game.GameState)
	reply   chan commandReply
}

type commandReply struct {
	events []protocol.TurnEvent
	err    error
}

type subscription struct {
	ch     chan protocol.TurnEvent
	cancel bool
}

type gameEngine struct {
	id        string
	code      string
	creatorID string
	game      game.Game
	rec       *reconcile.Reconciler
	snapshots Snapshotter

	commandCh     chan command
	observationCh chan protocol.ObservationBatch
	subscribeCh   chan subscription

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	playState playState
	lastSaved uint64
}

// GameEngineOpts is the configuration object for a game engine.
type GameEngineOpts struct {
	GameID    string
	GameCode  string
	CreatorID string
	Game      game.Game
	// Reconciler may be nil: observation batches are then discarded.
	Reconciler *reconcile.Reconciler
	// Snapshots may be nil: the game runs in memory only.
	Snapshots Snapshotter
	// ObservationBuffer caps the queued batches between drains.
	ObservationBuffer int
}

// NewGameEngine constructs an engine and starts its loop.
func NewGameEngine(opts GameEngineOpts) (*gameEngine, error) {
	if opts.Game == nil {
		return nil, ErrNoGame
	}
	if opts.ObservationBuffer <= 0 {
		opts.ObservationBuffer = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &gameEngine{
		id:            opts.GameID,
		code:          opts.GameCode,
		creatorID:     opts.CreatorID,
		game:          opts.Game,
		rec:           opts.Reconciler,
		snapshots:     opts.Snapshots,
		commandCh:     make(chan command),
		observationCh: make(chan protocol.ObservationBatch, opts.ObservationBuffer),
		subscribeCh:   make(chan subscription),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	// a game restored from a snapshot arrives already seated and running
	if st := opts.Game.State(); st != nil && len(st.Players) > 0 {
		e.playState = InProgress
		if opts.Game.Over() {
			e.playState = Finished
		}
	}

	go e.run()

	return e, nil
}

func (e *gameEngine) ID() string        { return e.id }
func (e *gameEngine) Code() string      { return e.code }
func (e *gameEngine) CreatorID() string { return e.creatorID }

func (e *gameEngine) PlayState() playState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playState
}

func (e *gameEngine) setPlayState(ps playState) {
	e.mu.Lock()
	e.playState = ps
	e.mu.Unlock()
}

// Start seats the players and begins the setup phase.
func (e *gameEngine) Start(playerInfo []protocol.PlayerInfo) error {
	_, err := e.submit(context.Background(), command{start: playerInfo})
	return err
}

// Send queues one player action and waits for its outcome.
func (e *gameEngine) Send(ctx context.Context, action protocol.PlayerAction) ([]protocol.TurnEvent, error) {
	return e.submit(ctx, command{action: &action})
}

// Inspect runs fn on the loop with exclusive read access to the state.
func (e *gameEngine) Inspect(ctx context.Context, fn func(*game.GameState)) error {
	_, err := e.submit(ctx, command{inspect: fn})
	return err
}

func (e *gameEngine) submit(ctx context.Context, cmd command) ([]protocol.TurnEvent, error) {
	cmd.reply = make(chan commandReply, 1)
	select {
	case e.commandCh <- cmd:
	case <-e.done:
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r.events, r.err
	case <-e.done:
		return nil, ErrEngineStopped
	}
}

// Observe queues a camera batch without blocking. When the buffer is full
// the oldest batch is dropped: fresher frames carry strictly more signal.
func (e *gameEngine) Observe(batch protocol.ObservationBatch) bool {
	for {
		select {
		case e.observationCh <- batch:
			return true
		case <-e.done:
			return false
		default:
		}
		select {
		case <-e.observationCh:
		default:
		}
	}
}

// Subscribe registers a TurnEvent listener. The returned cancel func must
// be called when the listener goes away.
func (e *gameEngine) Subscribe() (<-chan protocol.TurnEvent, func()) {
	ch := make(chan protocol.TurnEvent, 16)
	select {
	case e.subscribeCh <- subscription{ch: ch}:
	case <-e.done:
		close(ch)
		return ch, func() {}
	}
	cancel := func() {
		select {
		case e.subscribeCh <- subscription{ch: ch, cancel: true}:
		case <-e.done:
		}
	}
	return ch, cancel
}

// Shutdown stops the loop and closes all subscriber channels.
func (e *gameEngine) Shutdown() {
	e.cancel()
	<-e.done
}

func (e *gameEngine) run() {
	subscribers := map[chan protocol.TurnEvent]struct{}{}

	defer func() {
		for ch := range subscribers {
			close(ch)
		}
		close(e.done)
	}()

	for {
		select {
		case <-e.ctx.Done():
			return

		case sub := <-e.subscribeCh:
			if sub.cancel {
				if _, ok := subscribers[sub.ch]; ok {
					delete(subscribers, sub.ch)
					close(sub.ch)
				}
				continue
			}
			subscribers[sub.ch] = struct{}{}

		case cmd := <-e.commandCh:
			e.handle(cmd, subscribers)
		}
	}
}

func (e *gameEngine) handle(cmd command, subscribers map[chan protocol.TurnEvent]struct{}) {
	switch {
	case cmd.inspect != nil:
		cmd.inspect(e.game.State())
		cmd.reply <- commandReply{}
		return

	case cmd.start != nil:
		err := e.game.Start(cmd.start)
		if err == nil {
			e.setPlayState(InProgress)
			e.snapshot(subscribers)
		}
		cmd.reply <- commandReply{err: err}
		return
	}

	action := *cmd.action

	// the reconcile pseudo-action only drains the observation queue
	if action.Kind == protocol.Reconcile {
		events := e.drainObservations(subscribers)
		cmd.reply <- commandReply{events: events}
		return
	}

	before := e.phase()
	events, err := e.game.HandleAction(action)
	if err == nil && len(events) > 0 {
		e.fanout(subscribers, events)
		e.snapshot(subscribers)
	}
	cmd.reply <- commandReply{events: events, err: err}

	// camera input is merged only at phase boundaries, never mid-phase,
	// so an in-flight player action's preconditions cannot be invalidated
	if after := e.phase(); after != before {
		e.drainObservations(subscribers)
	}
	if e.game.Over() {
		e.setPlayState(Finished)
	}
}

func (e *gameEngine) phase() game.Phase {
	if state := e.game.State(); state != nil {
		return state.Turn.Phase
	}
	return game.PhaseSetup
}

func (e *gameEngine) drainObservations(subscribers map[chan protocol.TurnEvent]struct{}) []protocol.TurnEvent {
	collected := []protocol.TurnEvent{}
	for {
		select {
		case batch := <-e.observationCh:
			if e.rec == nil {
				continue
			}
			out := e.rec.Observe(batch)
			if out.Noise > 0 {
				log.Printf("engine %s: %d noise detections discarded", e.id, out.Noise)
			}
			for _, delta := range out.Deltas {
				events, err := e.game.ApplyVision(game.VisionDelta{
					Slot:       delta.Slot,
					Color:      delta.Color,
					Clear:      delta.Clear,
					Confidence: delta.Confidence,
					Batches:    delta.Batches,
				})
				if err != nil {
					log.Printf("engine %s: vision delta rejected: %s", e.id, err)
					continue
				}
				if len(events) == 0 {
					continue
				}
				e.fanout(subscribers, events)
				collected = append(collected, events...)
			}
			e.snapshot(subscribers)

		default:
			if e.game.Over() {
				e.setPlayState(Finished)
			}
			return collected
		}
	}
}

// snapshot persists the state if it moved since the last save. A failed
// save (after the store's own retry) becomes a warning event; the game
// continues in memory.
func (e *gameEngine) snapshot(subscribers map[chan protocol.TurnEvent]struct{}) {
	if e.snapshots == nil {
		return
	}
	state := e.game.State()
	if state == nil || state.Version == e.lastSaved {
		return
	}

	if err := e.snapshots.Save(state); err != nil {
		log.Printf("engine %s: snapshot failed at version %d: %s", e.id, state.Version, err)
		e.fanout(subscribers, []protocol.TurnEvent{{
			Kind:    protocol.EventSnapshotWarning,
			Version: state.Version,
			Message: err.Error(),
		}})
		return
	}
	e.lastSaved = state.Version
}

func (e *gameEngine) fanout(subscribers map[chan protocol.TurnEvent]struct{}, events []protocol.TurnEvent) {
	for _, event := range events {
		for ch := range subscribers {
			select {
			case ch <- event:
			default:
				// a stalled listener loses events rather than stalling the loop
			}
		}
	}
}
