// Package amm prices positions against a constant-product liquidity curve
// with a peg multiplier. The risk engine treats this valuation as an opaque
// collaborator; this implementation exists so the service and the solver's
// post-trade mark price have a real source.
package amm

import (
	"math/big"

	"PerpRisk/internal/account"
	fpmath "PerpRisk/internal/math"
)

// Curve is a stateless valuer over each market's snapshot reserves.
type Curve struct{}

func NewCurve() *Curve {
	return &Curve{}
}

// MarkPrice is the curve-implied price at current reserves:
// quoteReserve × peg / baseReserve, in price precision.
func (c *Curve) MarkPrice(m *account.Market) *big.Int {
	if fpmath.IsZero(m.Amm.BaseAssetReserve) {
		return fpmath.Zero()
	}
	num := fpmath.Mul(fpmath.Mul(m.Amm.QuoteAssetReserve, m.Amm.PegMultiplier), fpmath.PriceToPegPrecisionRatio)
	return fpmath.Quo(num, m.Amm.BaseAssetReserve)
}

// BaseAssetValue is the quote notional obtained by fully closing a signed
// base position against the curve at current reserves: the quote-reserve
// delta of swapping the position size back into the pool, rescaled to quote
// precision. Non-negative for either direction.
func (c *Curve) BaseAssetValue(m *account.Market, baseAssetAmount *big.Int) *big.Int {
	if fpmath.IsZero(baseAssetAmount) {
		return fpmath.Zero()
	}

	// Closing a long sells base into the pool; closing a short buys it back.
	newBase := fpmath.Add(m.Amm.BaseAssetReserve, baseAssetAmount)
	newQuote := quoteReserveAfter(m.Amm, newBase)

	delta := fpmath.Sub(m.Amm.QuoteAssetReserve, newQuote)
	if baseAssetAmount.Sign() < 0 {
		delta = fpmath.Sub(newQuote, m.Amm.QuoteAssetReserve)
	}

	value := fpmath.MulQuo(delta, m.Amm.PegMultiplier, fpmath.PegPrecision)
	return fpmath.Quo(value, fpmath.AmmToQuotePrecisionRatio)
}

// MarkPriceAfterTrade is the curve-implied price after a signed base-asset
// trade: a buy (positive delta) drains base reserve, a sell replenishes it.
func (c *Curve) MarkPriceAfterTrade(m *account.Market, sizeDelta *big.Int) *big.Int {
	if fpmath.IsZero(sizeDelta) {
		return c.MarkPrice(m)
	}

	newBase := fpmath.Sub(m.Amm.BaseAssetReserve, sizeDelta)
	if newBase.Sign() <= 0 {
		newBase = big.NewInt(1)
	}
	newQuote := quoteReserveAfter(m.Amm, newBase)

	num := fpmath.Mul(fpmath.Mul(newQuote, m.Amm.PegMultiplier), fpmath.PriceToPegPrecisionRatio)
	return fpmath.Quo(num, newBase)
}

// quoteReserveAfter solves the invariant k = base × quote for the quote
// reserve at a given base reserve.
func quoteReserveAfter(state account.AmmState, newBase *big.Int) *big.Int {
	if newBase.Sign() <= 0 {
		// Size exceeds the curve's liquidity; clamp to the last reserve unit.
		newBase = big.NewInt(1)
	}
	k := fpmath.Mul(state.BaseAssetReserve, state.QuoteAssetReserve)
	return fpmath.Quo(k, newBase)
}
