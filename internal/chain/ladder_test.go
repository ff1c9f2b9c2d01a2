package chain

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"truedata-client/internal/models"
)

func TestStrikeStep_MinConsecutiveDifference(t *testing.T) {
	rows := []models.ChainDefinitionRow{
		{Symbol: "NIFTY", Strike: 19400},
		{Symbol: "NIFTY", Strike: 19500},
		{Symbol: "NIFTY", Strike: 19550},
		{Symbol: "NIFTY", Strike: 19600},
		{Symbol: "BANKNIFTY", Strike: 44000}, // other symbol ignored
		{Symbol: "NIFTY", Strike: 19500},     // duplicate strike ignored
	}
	if step := StrikeStep(rows, "NIFTY"); step != 50 {
		t.Errorf("step = %v, want 50", step)
	}
}

func TestStrikeStep_InsufficientStrikes(t *testing.T) {
	rows := []models.ChainDefinitionRow{{Symbol: "NIFTY", Strike: 19500}}
	if step := StrikeStep(rows, "NIFTY"); step != 0 {
		t.Errorf("step = %v, want 0", step)
	}
}

// Ladder boundary convention: length/2 strikes strictly below ATM and
// length/2 at or above, so future 19532 with step 50 gives ATM 19550 and a
// 10-strike ladder 19300..19750.
func TestLadder_Construction(t *testing.T) {
	atm := ATMStrike(19532, 50)
	if atm != 19550 {
		t.Fatalf("atm = %v, want 19550", atm)
	}

	strikes := Ladder(atm, 50, 10)
	if len(strikes) != 10 {
		t.Fatalf("got %d strikes, want 10", len(strikes))
	}
	if strikes[0] != 19300 || strikes[9] != 19750 {
		t.Errorf("ladder bounds = [%v, %v], want [19300, 19750]", strikes[0], strikes[9])
	}

	below, atOrAbove := 0, 0
	for i, s := range strikes {
		if i > 0 && s-strikes[i-1] != 50 {
			t.Errorf("uneven spacing at %d: %v -> %v", i, strikes[i-1], s)
		}
		if s < atm {
			below++
		} else {
			atOrAbove++
		}
	}
	if below != 5 || atOrAbove != 5 {
		t.Errorf("split = %d below / %d at-or-above, want 5/5", below, atOrAbove)
	}
}

func TestOptionSymbol_NamingConvention(t *testing.T) {
	expiry := time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC)

	if got := OptionSymbol("NIFTY", expiry, 19550, models.RightCall); got != "NIFTY25062619550CE" {
		t.Errorf("symbol = %q", got)
	}
	if got := OptionSymbol("NIFTY", expiry, 19550, models.RightPut); got != "NIFTY25062619550PE" {
		t.Errorf("symbol = %q", got)
	}
	// Half-point strikes keep their fraction, integral strikes do not.
	if got := OptionSymbol("CRUDEOIL", expiry, 6450.5, models.RightCall); got != "CRUDEOIL2506266450.5CE" {
		t.Errorf("symbol = %q", got)
	}
}

// Property: every ladder has exactly length strikes, even spacing, and
// generates one CE and one PE symbol per strike with no collisions.
func TestProperty_LadderShape(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(1)

	properties := gopter.NewProperties(parameters)

	expiry := time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC)

	properties.Property("ladder shape and symbol uniqueness", prop.ForAll(
		func(price float64, stepIdx int, length int) bool {
			steps := []float64{5, 10, 25, 50, 100}
			step := steps[stepIdx]

			atm := ATMStrike(price, step)
			strikes := Ladder(atm, step, length)
			if len(strikes) != length {
				return false
			}

			seen := make(map[string]struct{})
			for i, s := range strikes {
				if i > 0 && strikes[i]-strikes[i-1] != step {
					return false
				}
				for _, right := range []models.OptionRight{models.RightCall, models.RightPut} {
					sym := OptionSymbol("NIFTY", expiry, s, right)
					if !strings.HasSuffix(sym, string(right)) {
						return false
					}
					if _, dup := seen[sym]; dup {
						return false
					}
					seen[sym] = struct{}{}
				}
			}
			return len(seen) == length*2
		},
		gen.Float64Range(1000, 50000),
		gen.IntRange(0, 4),
		gen.IntRange(2, 40),
	))

	properties.TestingRun(t)
}
