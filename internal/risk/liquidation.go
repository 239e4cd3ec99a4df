package risk

import (
	"math/big"

	"PerpRisk/internal/account"
	fpmath "PerpRisk/internal/math"
)

// LiquidationPrice is the solver outcome: either a finite price, or no
// liquidation price under the hypothetical. An explicit variant rather than a
// reserved numeric value, so callers cannot accidentally do arithmetic on the
// sentinel.
type LiquidationPrice struct {
	price *big.Int
}

// NoLiquidationPrice is the "no finite liquidation price exists" outcome.
func NoLiquidationPrice() LiquidationPrice {
	return LiquidationPrice{}
}

// PriceAt wraps a finite liquidation price (price precision).
func PriceAt(p *big.Int) LiquidationPrice {
	return LiquidationPrice{price: fpmath.Clone(p)}
}

// Exists reports whether a finite liquidation price was found.
func (lp LiquidationPrice) Exists() bool {
	return lp.price != nil
}

// Price returns the finite price, or false when none exists.
func (lp LiquidationPrice) Price() (*big.Int, bool) {
	if lp.price == nil {
		return nil, false
	}
	return fpmath.Clone(lp.price), true
}

// Scaled renders the outcome for wire and storage surfaces that reserve −1
// for "no liquidation price".
func (lp LiquidationPrice) Scaled() *big.Int {
	if lp.price == nil {
		return big.NewInt(-1)
	}
	return fpmath.Clone(lp.price)
}

// LiquidationPrice solves for the mark price at which the account's
// post-trade collateral would exactly equal its post-trade margin
// requirement, under the constant-leverage assumption. sizeDelta is an
// optional signed base-asset change applied hypothetically before solving
// (nil means none); partial selects the partial rather than maintenance
// margin category.
func (e *Engine) LiquidationPrice(
	snap *account.Snapshot,
	marketID string,
	sizeDelta *big.Int,
	partial bool,
) (LiquidationPrice, error) {
	market, err := e.Market(marketID)
	if err != nil {
		return NoLiquidationPrice(), err
	}

	category := MarginCategoryMaintenance
	if partial {
		category = MarginCategoryPartial
	}

	totalCollateral := e.TotalCollateral(snap)
	valueExcluding := e.TotalPositionValueExcluding(snap, marketID)

	position := snap.Position(marketID)
	proposedBase := fpmath.Clone(position.BaseAssetAmount)
	if sizeDelta != nil {
		proposedBase.Add(proposedBase, sizeDelta)
	}
	if proposedBase.Sign() == 0 {
		// The hypothetical flattens the position: nothing left to liquidate.
		return NoLiquidationPrice(), nil
	}

	// Value the proposed position at current reserves.
	proposedValue := e.valuer.BaseAssetValue(market, proposedBase)
	valueAfterTrade := fpmath.Add(valueExcluding, proposedValue)

	requirementExcluding := fpmath.Zero()
	for _, p := range snap.Positions {
		if p.MarketID == marketID || p.IsEmpty() {
			continue
		}
		m, ok := e.markets[p.MarketID]
		if !ok {
			continue
		}
		value := PositionValue(e.valuer, m, p)
		requirementExcluding.Add(requirementExcluding,
			fpmath.MulQuo(value, MarginRatio(m, category), fpmath.MarginPrecision))
	}

	freeCollateralExcluding := fpmath.Sub(totalCollateral, requirementExcluding)
	if valueAfterTrade.Cmp(freeCollateralExcluding) <= 0 {
		// Already safe regardless of price.
		return NoLiquidationPrice(), nil
	}

	requirementAfterTrade := fpmath.Add(requirementExcluding,
		fpmath.MulQuo(proposedValue, MarginRatio(market, category), fpmath.MarginPrecision))
	freeCollateralAfterTrade := fpmath.Sub(totalCollateral, requirementAfterTrade)

	marketMaxLeverage, err := e.MaxLeverage(marketID, category)
	if err != nil {
		return NoLiquidationPrice(), err
	}

	// Solve "collateral after a ±Δ price move equals requirement after that
	// move" for Δ. The denominator differs by side; for a short the final
	// division is by a negative base amount.
	denominator := fpmath.Add(marketMaxLeverage, fpmath.MarginPrecision)
	if proposedBase.Sign() > 0 {
		denominator = fpmath.Sub(marketMaxLeverage, fpmath.MarginPrecision)
	}
	if denominator.Sign() == 0 {
		// 1x max leverage long: the move can never be adverse enough.
		return NoLiquidationPrice(), nil
	}

	priceDelta := fpmath.Quo(fpmath.Mul(freeCollateralAfterTrade, marketMaxLeverage), denominator)
	priceDelta = fpmath.Quo(fpmath.Mul(priceDelta, fpmath.QuotePerBaseToPriceRescale), proposedBase)

	var referencePrice *big.Int
	if sizeDelta == nil || sizeDelta.Sign() == 0 {
		referencePrice = e.valuer.MarkPrice(market)
	} else {
		referencePrice = e.valuer.MarkPriceAfterTrade(market, sizeDelta)
	}

	if priceDelta.Cmp(referencePrice) > 0 {
		// The implied liquidation price would be non-positive.
		return NoLiquidationPrice(), nil
	}
	return PriceAt(fpmath.Sub(referencePrice, priceDelta)), nil
}

// LiquidationPriceAfterClose converts a quote-denominated partial close into
// an equivalent base-asset size change (proportional to the position's
// current quote/base ratio, remainder folded in, negated) and solves with the
// partial margin category.
func (e *Engine) LiquidationPriceAfterClose(
	snap *account.Snapshot,
	marketID string,
	closeQuoteAmount *big.Int,
) (LiquidationPrice, error) {
	position := snap.Position(marketID)

	var sizeDelta *big.Int
	if position.QuoteAssetAmount.Sign() == 0 {
		// No cost basis to apportion against: treat as closing everything.
		sizeDelta = fpmath.Neg(position.BaseAssetAmount)
	} else {
		scaled := fpmath.Mul(position.BaseAssetAmount, closeQuoteAmount)
		quotient := fpmath.Quo(scaled, position.QuoteAssetAmount)
		remainder := new(big.Int).Rem(scaled, position.QuoteAssetAmount)
		sizeDelta = fpmath.Neg(fpmath.Add(quotient, remainder))
	}

	return e.LiquidationPrice(snap, marketID, sizeDelta, true)
}
