// Package chain composes the historical client (seed future price) and the
// live session (streaming legs) into a self-refreshing option-chain table.
package chain

import (
	"math"
	"sort"
	"strconv"
	"time"

	"truedata-client/internal/models"
)

// StrikeStep infers the strike spacing for a root symbol from chain-definition
// rows: the minimum difference between consecutive unique strikes observed for
// that exact symbol. Returns 0 when fewer than two strikes match.
func StrikeStep(rows []models.ChainDefinitionRow, root string) float64 {
	seen := make(map[float64]struct{})
	for _, r := range rows {
		if r.Symbol != root {
			continue
		}
		seen[r.Strike] = struct{}{}
	}
	if len(seen) < 2 {
		return 0
	}
	strikes := make([]float64, 0, len(seen))
	for s := range seen {
		strikes = append(strikes, s)
	}
	sort.Float64s(strikes)

	step := strikes[1] - strikes[0]
	for i := 2; i < len(strikes); i++ {
		if d := strikes[i] - strikes[i-1]; d < step {
			step = d
		}
	}
	return step
}

// ATMStrike rounds the future price to the nearest multiple of the strike step.
func ATMStrike(futurePrice, step float64) float64 {
	if step <= 0 {
		return futurePrice
	}
	return math.Round(futurePrice/step) * step
}

// Ladder builds length strikes around the ATM strike: length/2 strictly below
// and length/2 at or above, spaced by step. For length=10 and ATM 19550 with
// step 50 that is 19300..19750 inclusive.
func Ladder(atm, step float64, length int) []float64 {
	if length <= 0 || step <= 0 {
		return nil
	}
	strikes := make([]float64, 0, length)
	for i := 0; i < length; i++ {
		strikes = append(strikes, atm+float64(i-length/2)*step)
	}
	return strikes
}

// OptionSymbol builds the exchange naming convention for one leg:
// {root}{YYMMDD expiry}{strike}{CE|PE}. Integral strikes carry no decimal
// point.
func OptionSymbol(root string, expiry time.Time, strike float64, right models.OptionRight) string {
	return root + expiry.Format("060102") + formatStrike(strike) + string(right)
}

func formatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}
