// Package config is the typed configuration for the table service. Every
// knob has a default matching the physical table's tuning; env vars
// override.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"

	"github.com/tmarlow/tabletan/game"
	"github.com/tmarlow/tabletan/reconcile"
)

const (
	TiePolicyNone        = "none"
	TiePolicyHolderKeeps = "holder-keeps"
)

type Config struct {
	Addr         string `env:"TABLETAN_ADDR,default=:8000"`
	SnapshotPath string `env:"TABLETAN_SNAPSHOT_PATH,default=tabletan-snapshot.json"`

	TargetVP  int    `env:"TABLETAN_TARGET_VP,default=10"`
	BankStart int    `env:"TABLETAN_BANK_START,default=19"`
	TiePolicy string `env:"TABLETAN_TIE_POLICY,default=none"`

	DebounceWindow   int     `env:"TABLETAN_DEBOUNCE_WINDOW,default=3"`
	MinConfidence    float64 `env:"TABLETAN_MIN_CONFIDENCE,default=0.6"`
	MaxMatchDistance float64 `env:"TABLETAN_MAX_MATCH_DISTANCE,default=25"`
}

// Load reads the environment over the defaults and validates the result.
func Load() (Config, error) {
	var c Config
	if err := envdecode.Decode(&c); err != nil {
		return Config{}, err
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.TargetVP < 3 {
		return fmt.Errorf("config: target VP %d is unwinnable", c.TargetVP)
	}
	if c.BankStart < 1 {
		return fmt.Errorf("config: bank start %d", c.BankStart)
	}
	if c.TiePolicy != TiePolicyNone && c.TiePolicy != TiePolicyHolderKeeps {
		return fmt.Errorf("config: unknown tie policy %q", c.TiePolicy)
	}
	if c.DebounceWindow < 1 {
		return fmt.Errorf("config: debounce window %d", c.DebounceWindow)
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: min confidence %g out of (0,1]", c.MinConfidence)
	}
	if c.MaxMatchDistance <= 0 {
		return fmt.Errorf("config: max match distance %g", c.MaxMatchDistance)
	}
	return nil
}

// Rules maps the config onto the game's rule parameters.
func (c Config) Rules() game.Rules {
	policy := game.TieNoBonus
	if c.TiePolicy == TiePolicyHolderKeeps {
		policy = game.TieHolderKeeps
	}
	return game.Rules{
		TargetVP:  c.TargetVP,
		BankStart: c.BankStart,
		TiePolicy: policy,
	}
}

// ReconcileOptions maps the config onto the reconciler's tuning.
func (c Config) ReconcileOptions() reconcile.Options {
	return reconcile.Options{
		DebounceWindow:   c.DebounceWindow,
		MinConfidence:    c.MinConfidence,
		MaxMatchDistance: c.MaxMatchDistance,
	}
}
