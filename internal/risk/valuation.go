package risk

import (
	"math/big"

	"PerpRisk/internal/account"
	fpmath "PerpRisk/internal/math"
)

// Valuer prices positions against a market's liquidity curve. The engine
// never simulates the curve itself; it is an external collaborator.
type Valuer interface {
	// BaseAssetValue returns the quote-asset notional obtainable by fully
	// closing baseAssetAmount against the market at current reserves.
	// The result is non-negative regardless of direction.
	BaseAssetValue(m *account.Market, baseAssetAmount *big.Int) *big.Int

	// MarkPrice returns the curve-implied current price, in price precision.
	MarkPrice(m *account.Market) *big.Int

	// MarkPriceAfterTrade returns the resulting mark price after simulating a
	// signed base-asset trade against the curve.
	MarkPriceAfterTrade(m *account.Market, sizeDelta *big.Int) *big.Int
}

// PositionValue is the quote notional of fully closing p against m.
// Zero for an empty position.
func PositionValue(v Valuer, m *account.Market, p *account.Position) *big.Int {
	if p.IsEmpty() {
		return fpmath.Zero()
	}
	return v.BaseAssetValue(m, p.BaseAssetAmount)
}

// FundingPnL is the funding accrued since the position last settled:
// (market cumulative rate for the position's side − position's last observed
// rate) × base amount, rescaled to quote precision and negated, since funding
// owed reduces PnL. Zero for an empty position.
func FundingPnL(m *account.Market, p *account.Position) *big.Int {
	if p.IsEmpty() {
		return fpmath.Zero()
	}

	rate := m.CumulativeFundingRateLong
	if p.Direction() == account.DirectionShort {
		rate = m.CumulativeFundingRateShort
	}

	diff := fpmath.Sub(rate, p.LastCumulativeFundingRate)
	payment := fpmath.MulQuo(diff, p.BaseAssetAmount, fpmath.FundingPaymentRescale)
	return fpmath.Neg(payment)
}

// UnrealizedPnL is notional minus cost basis in the position's direction:
// for a long, notional − cost basis; for a short, cost basis − notional.
// includeFunding folds in FundingPnL.
func UnrealizedPnL(v Valuer, m *account.Market, p *account.Position, includeFunding bool) *big.Int {
	if p.IsEmpty() {
		return fpmath.Zero()
	}

	notional := PositionValue(v, m, p)

	var pnl *big.Int
	if p.Direction() == account.DirectionShort {
		pnl = fpmath.Sub(p.QuoteAssetAmount, notional)
	} else {
		pnl = fpmath.Sub(notional, p.QuoteAssetAmount)
	}

	if includeFunding {
		pnl.Add(pnl, FundingPnL(m, p))
	}
	return pnl
}

// CollateralValue sums, over non-zero deposit balances (optionally filtered
// to one bank), tokenAmount × price in quote precision. Borrows contribute
// nothing here; they are liabilities.
func CollateralValue(
	balances []*account.Balance,
	banks map[string]*account.Bank,
	feeds map[string]*account.PriceFeed,
	bankFilter string,
) *big.Int {
	total := fpmath.Zero()
	for _, b := range balances {
		if b.IsZero() || b.Kind == account.BalanceKindBorrow {
			continue
		}
		if bankFilter != "" && b.BankID != bankFilter {
			continue
		}
		bank, feed, ok := lookupBank(banks, feeds, b.BankID)
		if !ok {
			continue
		}
		total.Add(total, account.TokenValue(account.TokenAmount(b, bank), bank, feed))
	}
	return total
}

// TotalLiability sums, over non-zero borrow balances, the borrow value
// weighted by the bank's initial liability weight.
func TotalLiability(
	balances []*account.Balance,
	banks map[string]*account.Bank,
	feeds map[string]*account.PriceFeed,
) *big.Int {
	total := fpmath.Zero()
	for _, b := range balances {
		if b.IsZero() || b.Kind != account.BalanceKindBorrow {
			continue
		}
		bank, feed, ok := lookupBank(banks, feeds, b.BankID)
		if !ok {
			continue
		}
		value := account.TokenValue(account.TokenAmount(b, bank), bank, feed)
		weighted := fpmath.MulQuo(value, big.NewInt(bank.InitialLiabilityWeight), fpmath.MarginPrecision)
		total.Add(total, weighted)
	}
	return total
}

// assetWeight selects a bank's deposit weight for a category: the maintenance
// weight for the maintenance and partial categories, the initial weight
// otherwise. Both liquidation-side categories price deposits identically.
func assetWeight(bank *account.Bank, category MarginCategory) int64 {
	if category == MarginCategoryMaintenance || category == MarginCategoryPartial {
		return bank.MaintenanceAssetWeight
	}
	return bank.InitialAssetWeight
}

// weightedDepositValue is deposit-side collateral scaled by each bank's asset
// weight for the chosen category.
func weightedDepositValue(
	balances []*account.Balance,
	banks map[string]*account.Bank,
	feeds map[string]*account.PriceFeed,
	category MarginCategory,
	bankFilter string,
) *big.Int {
	total := fpmath.Zero()
	for _, b := range balances {
		if b.IsZero() || b.Kind == account.BalanceKindBorrow {
			continue
		}
		if bankFilter != "" && b.BankID != bankFilter {
			continue
		}
		bank, feed, ok := lookupBank(banks, feeds, b.BankID)
		if !ok {
			continue
		}
		value := account.TokenValue(account.TokenAmount(b, bank), bank, feed)
		total.Add(total, fpmath.MulQuo(value, big.NewInt(assetWeight(bank, category)), fpmath.MarginPrecision))
	}
	return total
}

func lookupBank(
	banks map[string]*account.Bank,
	feeds map[string]*account.PriceFeed,
	bankID string,
) (*account.Bank, *account.PriceFeed, bool) {
	bank, ok := banks[bankID]
	if !ok {
		// Snapshot references a bank this engine was not configured with.
		// Skip; callers supply internally-consistent snapshots.
		return nil, nil, false
	}
	feed, ok := feeds[bank.PriceFeedID]
	if !ok {
		return nil, nil, false
	}
	return bank, feed, true
}
