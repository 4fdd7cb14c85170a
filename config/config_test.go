package config

import (
	"testing"

	"github.com/tmarlow/tabletan/game"
	utils "github.com/tmarlow/tabletan/internal"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	utils.AssertNoError(t, err)

	utils.AssertEqual(t, c.Addr, ":8000")
	utils.AssertEqual(t, c.TargetVP, 10)
	utils.AssertEqual(t, c.BankStart, 19)
	utils.AssertEqual(t, c.TiePolicy, TiePolicyNone)
	utils.AssertEqual(t, c.DebounceWindow, 3)
	utils.AssertEqual(t, c.MinConfidence, 0.6)
	utils.AssertEqual(t, c.MaxMatchDistance, 25.0)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TABLETAN_ADDR", ":9000")
	t.Setenv("TABLETAN_TARGET_VP", "12")
	t.Setenv("TABLETAN_TIE_POLICY", "holder-keeps")
	t.Setenv("TABLETAN_DEBOUNCE_WINDOW", "5")

	c, err := Load()
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, c.Addr, ":9000")
	utils.AssertEqual(t, c.TargetVP, 12)
	utils.AssertEqual(t, c.DebounceWindow, 5)

	rules := c.Rules()
	utils.AssertEqual(t, rules.TargetVP, 12)
	utils.AssertEqual(t, rules.TiePolicy, game.TieHolderKeeps)

	opts := c.ReconcileOptions()
	utils.AssertEqual(t, opts.DebounceWindow, 5)
	utils.AssertEqual(t, opts.MinConfidence, 0.6)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]struct {
		key, value string
	}{
		"unknown tie policy":   {"TABLETAN_TIE_POLICY", "coin-flip"},
		"unwinnable target":    {"TABLETAN_TARGET_VP", "1"},
		"zero debounce window": {"TABLETAN_DEBOUNCE_WINDOW", "0"},
		"confidence above one": {"TABLETAN_MIN_CONFIDENCE", "1.5"},
		"negative distance":    {"TABLETAN_MAX_MATCH_DISTANCE", "-3"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			utils.AssertErrored(t, err)
		})
	}
}
