package risk

import (
	"math/big"

	"PerpRisk/internal/account"
	fpmath "PerpRisk/internal/math"
)

// FreeCollateral is max(0, total collateral − initial margin requirement).
func (e *Engine) FreeCollateral(snap *account.Snapshot) *big.Int {
	return fpmath.ClampZero(fpmath.Sub(e.TotalCollateral(snap), e.InitialMarginRequirement(snap)))
}

// MarginRatio is total collateral over total position value, in margin
// precision. With no position value the ratio is the maximum representable
// value rather than an error: an account with no exposure is always healthy.
func (e *Engine) MarginRatio(snap *account.Snapshot) *big.Int {
	tpv := e.TotalPositionValue(snap)
	if tpv.Sign() == 0 {
		return fpmath.Clone(fpmath.MaxMarginRatio)
	}
	return fpmath.MulQuo(e.TotalCollateral(snap), fpmath.MarginPrecision, tpv)
}

// Leverage is total position value over total collateral, in margin
// precision (10000 = 1x). Zero when collateral is not positive.
func (e *Engine) Leverage(snap *account.Snapshot) *big.Int {
	tc := e.TotalCollateral(snap)
	if tc.Sign() <= 0 {
		return fpmath.Zero()
	}
	return fpmath.MulQuo(e.TotalPositionValue(snap), fpmath.MarginPrecision, tc)
}

// MaxLeverage is the inverse of the category's margin ratio, in margin
// precision: leverageScale² / marginRatio.
func (e *Engine) MaxLeverage(marketID string, category MarginCategory) (*big.Int, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return nil, err
	}
	ratio := MarginRatio(m, category)
	if ratio.Sign() == 0 {
		// A zero margin ratio would mean unbounded leverage.
		return fpmath.Clone(fpmath.MaxMarginRatio), nil
	}
	return fpmath.MulQuo(fpmath.MarginPrecision, fpmath.MarginPrecision, ratio), nil
}

// BuyingPower is free collateral times the market's initial max leverage.
func (e *Engine) BuyingPower(snap *account.Snapshot, marketID string) (*big.Int, error) {
	maxLeverage, err := e.MaxLeverage(marketID, MarginCategoryInitial)
	if err != nil {
		return nil, err
	}
	return fpmath.MulQuo(e.FreeCollateral(snap), maxLeverage, fpmath.MarginPrecision), nil
}

// CanBeLiquidated reports whether total collateral has fallen below the
// partial margin requirement, alongside the current margin ratio.
func (e *Engine) CanBeLiquidated(snap *account.Snapshot) (bool, *big.Int) {
	ratio := e.MarginRatio(snap)
	liquidatable := e.TotalCollateral(snap).Cmp(e.PartialMarginRequirement(snap)) < 0
	return liquidatable, ratio
}

// MaxTradeSize returns the maximum quote-denominated size tradeable in a
// market and direction, less one part-per-million as a rounding safety
// margin.
//
// Four cases: within leverage bounds the size is buying power, plus twice the
// existing opposite-side position's value when the trade would flip it
// (flipping consumes no extra margin up to current size). Over the leverage
// bound, a same-side trade gets zero (no reduction-only capacity is derived;
// deliberate no-op), while an opposite-side trade can flatten the position
// and, if closing frees enough margin, re-deploy the post-close buying power.
func (e *Engine) MaxTradeSize(snap *account.Snapshot, marketID string, direction account.Direction) (*big.Int, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return nil, err
	}
	maxLeverage, err := e.MaxLeverage(marketID, MarginCategoryInitial)
	if err != nil {
		return nil, err
	}

	position := snap.Position(marketID)
	sameSide := position.IsEmpty() || position.Direction() == direction

	var size *big.Int
	if e.Leverage(snap).Cmp(maxLeverage) <= 0 {
		buyingPower, err := e.BuyingPower(snap, marketID)
		if err != nil {
			return nil, err
		}
		size = buyingPower
		if !sameSide {
			positionValue := PositionValue(e.valuer, m, position)
			size.Add(size, fpmath.Mul(positionValue, big.NewInt(2)))
		}
	} else if sameSide {
		size = fpmath.Zero()
	} else {
		positionValue := PositionValue(e.valuer, m, position)
		totalCollateral := e.TotalCollateral(snap)
		marginFreed := fpmath.MulQuo(positionValue, big.NewInt(m.MarginRatioInitial), fpmath.MarginPrecision)
		requirementAfterClose := fpmath.Sub(e.InitialMarginRequirement(snap), marginFreed)

		if requirementAfterClose.Cmp(totalCollateral) > 0 {
			// Closing alone does not restore health: can flatten, not flip.
			size = positionValue
		} else {
			freeAfterClose := fpmath.Sub(totalCollateral, requirementAfterClose)
			size = fpmath.Add(positionValue,
				fpmath.MulQuo(freeAfterClose, maxLeverage, fpmath.MarginPrecision))
		}
	}

	size.Sub(size, fpmath.Quo(size, fpmath.PartPerMillion))
	return size, nil
}

// AccountLeverageRatioAfterTrade is the account's leverage, in margin
// precision, after hypothetically adding a quote-denominated trade in the
// given direction. The target market's existing value and the trade amount
// are signed by direction (short = negative) before summing.
func (e *Engine) AccountLeverageRatioAfterTrade(
	snap *account.Snapshot,
	marketID string,
	quoteAmount *big.Int,
	direction account.Direction,
) (*big.Int, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return nil, err
	}

	position := snap.Position(marketID)
	signedPosition := PositionValue(e.valuer, m, position)
	if position.Direction() == account.DirectionShort {
		signedPosition.Neg(signedPosition)
	}

	signedTrade := fpmath.Clone(quoteAmount)
	if direction == account.DirectionShort {
		signedTrade.Neg(signedTrade)
	}

	afterTrade := fpmath.Abs(fpmath.Add(signedPosition, signedTrade))
	total := fpmath.Add(afterTrade, e.TotalPositionValueExcluding(snap, marketID))

	totalCollateral := e.TotalCollateral(snap)
	if totalCollateral.Sign() <= 0 {
		return fpmath.Zero(), nil
	}
	return fpmath.MulQuo(total, fpmath.MarginPrecision, totalCollateral), nil
}
