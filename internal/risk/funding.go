package risk

import (
	"PerpRisk/internal/account"
)

// NeedsToSettleFundingPayment reports whether any open position has observed
// a cumulative funding rate that matches neither the market's long nor short
// accumulator, meaning a funding payment accrued since the position last
// settled. Positions with zero base-asset amount never need settlement.
func (e *Engine) NeedsToSettleFundingPayment(snap *account.Snapshot) bool {
	for _, p := range snap.Positions {
		if p.IsEmpty() {
			continue
		}
		m, ok := e.markets[p.MarketID]
		if !ok {
			continue
		}
		if p.LastCumulativeFundingRate.Cmp(m.CumulativeFundingRateLong) != 0 &&
			p.LastCumulativeFundingRate.Cmp(m.CumulativeFundingRateShort) != 0 {
			return true
		}
	}
	return false
}
