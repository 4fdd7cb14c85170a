package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmarlow/tabletan/board"
	"github.com/tmarlow/tabletan/config"
	"github.com/tmarlow/tabletan/engine"
	"github.com/tmarlow/tabletan/game"
	"github.com/tmarlow/tabletan/reconcile"
	"github.com/tmarlow/tabletan/server"
	"github.com/tmarlow/tabletan/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err.Error())
	}

	str := store.NewInMemoryGameStore()
	resumeGames(cfg, str)

	factory := func(gameID, gameCode, creatorID string) (engine.GameEngine, error) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		b, err := board.NewBoard(board.RandomLayout(rng))
		if err != nil {
			return nil, err
		}

		g, err := game.NewCatan(game.CatanOpts{
			Board: b,
			Rules: cfg.Rules(),
			Rng:   rng,
		})
		if err != nil {
			return nil, err
		}

		return newEngine(cfg, b, g, gameID, gameCode, creatorID,
			store.NewSnapshotStore(snapshotPath(cfg.SnapshotPath, gameID)))
	}

	s := server.NewServer(str, factory)
	log.Printf("Listening on %s...", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, s))
}

// newEngine wires a game into an engine, attaching a reconciler only when
// the board layout carries camera calibration.
func newEngine(cfg config.Config, b *board.Board, g game.Game, gameID, gameCode, creatorID string, snaps *store.SnapshotStore) (engine.GameEngine, error) {
	var rec *reconcile.Reconciler
	if len(b.CalibratedSlots()) > 0 {
		var err error
		rec, err = reconcile.NewReconciler(b, cfg.ReconcileOptions())
		if err != nil {
			return nil, err
		}
	}

	return engine.NewGameEngine(engine.GameEngineOpts{
		GameID:     gameID,
		GameCode:   gameCode,
		CreatorID:  creatorID,
		Game:       g,
		Reconciler: rec,
		Snapshots:  snaps,
	})
}

// resumeGames picks up any snapshot files left by earlier runs and registers
// their games as live. A snapshot that will not load is logged and skipped;
// it is never deleted.
func resumeGames(cfg config.Config, str *store.InMemoryGameStore) {
	base := strings.TrimSuffix(cfg.SnapshotPath, ".json")
	files, err := filepath.Glob(base + "-*.json")
	if err != nil {
		log.Printf("snapshot scan failed: %s", err)
		return
	}

	for _, f := range files {
		gameID := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(f), filepath.Base(base)+"-"), ".json")

		snaps := store.NewSnapshotStore(f)
		state, err := snaps.Load()
		if err != nil {
			log.Printf("skipping snapshot %s: %s", f, err)
			continue
		}
		if state == nil || len(state.Players) == 0 {
			continue
		}

		g, err := game.NewCatan(game.CatanOpts{
			Board:   state.Board,
			Rules:   cfg.Rules(),
			Restore: state,
		})
		if err != nil {
			log.Printf("skipping snapshot %s: %s", f, err)
			continue
		}

		ge, err := newEngine(cfg, state.Board, g, gameID, server.NewGameCode(), state.Players[0].ID, snaps)
		if err != nil {
			log.Printf("skipping snapshot %s: %s", f, err)
			continue
		}
		if err := str.AddInactiveGame(ge); err != nil {
			ge.Shutdown()
			log.Printf("skipping snapshot %s: %s", f, err)
			continue
		}
		log.Printf("resumed game %s at turn %d (code %s)", gameID, state.TurnNumber, ge.Code())
	}
}

// snapshotPath gives each game its own snapshot file.
func snapshotPath(base, gameID string) string {
	return fmt.Sprintf("%s-%s.json", strings.TrimSuffix(base, ".json"), gameID)
}
