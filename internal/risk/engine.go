package risk

import (
	"errors"
	"fmt"
	"math/big"

	"PerpRisk/internal/account"
	fpmath "PerpRisk/internal/math"
)

// ErrUnknownMarket signals a per-market entry point was called with a market
// identifier the engine was not configured with.
var ErrUnknownMarket = errors.New("unknown market")

// Engine computes account risk as a pure function of caller-supplied
// snapshots plus the market, bank, and price-feed tables it was constructed
// with. It performs no I/O, never blocks, and writes no shared state, so
// concurrent invocations over different snapshots need no locking.
type Engine struct {
	valuer  Valuer
	markets map[string]*account.Market
	banks   map[string]*account.Bank
	feeds   map[string]*account.PriceFeed
}

func NewEngine(
	valuer Valuer,
	markets map[string]*account.Market,
	banks map[string]*account.Bank,
	feeds map[string]*account.PriceFeed,
) *Engine {
	return &Engine{
		valuer:  valuer,
		markets: markets,
		banks:   banks,
		feeds:   feeds,
	}
}

// Market returns the configured market record for id.
func (e *Engine) Market(id string) (*account.Market, error) {
	m, ok := e.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, id)
	}
	return m, nil
}

// --- Valuation aggregates ---

// CollateralValue is the unweighted deposit-side collateral, optionally
// filtered to one bank. Empty filter means all banks.
func (e *Engine) CollateralValue(snap *account.Snapshot, bankFilter string) *big.Int {
	return CollateralValue(snap.Balances, e.banks, e.feeds, bankFilter)
}

// TotalLiability is the borrow-side value weighted by each bank's initial
// liability weight.
func (e *Engine) TotalLiability(snap *account.Snapshot) *big.Int {
	return TotalLiability(snap.Balances, e.banks, e.feeds)
}

// UnrealizedPnL sums the notional-minus-cost-basis PnL over all positions.
func (e *Engine) UnrealizedPnL(snap *account.Snapshot, includeFunding bool) *big.Int {
	total := fpmath.Zero()
	for _, p := range snap.Positions {
		m, ok := e.markets[p.MarketID]
		if !ok {
			continue
		}
		total.Add(total, UnrealizedPnL(e.valuer, m, p, includeFunding))
	}
	return total
}

// UnrealizedFundingPnL sums funding accrued since each position last settled.
func (e *Engine) UnrealizedFundingPnL(snap *account.Snapshot) *big.Int {
	total := fpmath.Zero()
	for _, p := range snap.Positions {
		m, ok := e.markets[p.MarketID]
		if !ok {
			continue
		}
		total.Add(total, FundingPnL(m, p))
	}
	return total
}

// UnsettledPnL sums each position's accrued-but-unsettled PnL field.
func (e *Engine) UnsettledPnL(snap *account.Snapshot) *big.Int {
	total := fpmath.Zero()
	for _, p := range snap.Positions {
		if p.UnsettledPnL != nil {
			total.Add(total, p.UnsettledPnL)
		}
	}
	return total
}

// TotalCollateral is deposit collateral weighted by initial asset weights,
// plus unrealized PnL including funding, plus unsettled PnL.
func (e *Engine) TotalCollateral(snap *account.Snapshot) *big.Int {
	total := weightedDepositValue(snap.Balances, e.banks, e.feeds, MarginCategoryInitial, "")
	total.Add(total, e.UnrealizedPnL(snap, true))
	total.Add(total, e.UnsettledPnL(snap))
	return total
}

// PositionValue is the close-out notional of the account's position in one
// market (zero if the account holds none).
func (e *Engine) PositionValue(snap *account.Snapshot, marketID string) (*big.Int, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return nil, err
	}
	return PositionValue(e.valuer, m, snap.Position(marketID)), nil
}

// TotalPositionValue sums position notionals over all markets.
func (e *Engine) TotalPositionValue(snap *account.Snapshot) *big.Int {
	return e.TotalPositionValueExcluding(snap, "")
}

// TotalPositionValueExcluding sums position notionals, skipping one market.
// The liquidation solver uses this to isolate a single market's contribution.
func (e *Engine) TotalPositionValueExcluding(snap *account.Snapshot, marketToIgnore string) *big.Int {
	total := fpmath.Zero()
	for _, p := range snap.Positions {
		if p.MarketID == marketToIgnore {
			continue
		}
		m, ok := e.markets[p.MarketID]
		if !ok {
			continue
		}
		total.Add(total, PositionValue(e.valuer, m, p))
	}
	return total
}

// --- Margin requirements ---

// MarginRequirement is one full pass for the chosen category: each position's
// notional × the category's margin ratio, plus total liability. Initial and
// partial requirements are independent passes, never derived from each other.
func (e *Engine) MarginRequirement(snap *account.Snapshot, category MarginCategory) *big.Int {
	total := fpmath.Zero()
	for _, p := range snap.Positions {
		m, ok := e.markets[p.MarketID]
		if !ok {
			continue
		}
		value := PositionValue(e.valuer, m, p)
		total.Add(total, fpmath.MulQuo(value, MarginRatio(m, category), fpmath.MarginPrecision))
	}
	total.Add(total, e.TotalLiability(snap))
	return total
}

func (e *Engine) InitialMarginRequirement(snap *account.Snapshot) *big.Int {
	return e.MarginRequirement(snap, MarginCategoryInitial)
}

func (e *Engine) PartialMarginRequirement(snap *account.Snapshot) *big.Int {
	return e.MarginRequirement(snap, MarginCategoryPartial)
}

func (e *Engine) MaintenanceMarginRequirement(snap *account.Snapshot) *big.Int {
	return e.MarginRequirement(snap, MarginCategoryMaintenance)
}

// CalculateMargin builds a full MarginCalculation for the snapshot in one
// front-to-back pass: deposits and borrows first, then positions, with
// isolated markets routed to their own sub-calculation.
func (e *Engine) CalculateMargin(snap *account.Snapshot, ctx MarginContext) *MarginCalculation {
	mc := NewMarginCalculation(ctx)

	isolatedBanks := make(map[string]string) // bank id → isolated market id
	for _, p := range snap.Positions {
		m, ok := e.markets[p.MarketID]
		if ok && m.Isolated && m.CollateralBankID != "" {
			isolatedBanks[m.CollateralBankID] = m.MarketID
		}
	}

	for _, b := range snap.Balances {
		if b.IsZero() {
			continue
		}
		bank, feed, ok := lookupBank(e.banks, e.feeds, b.BankID)
		if !ok {
			continue
		}
		value := account.TokenValue(account.TokenAmount(b, bank), bank, feed)
		if b.Kind == account.BalanceKindBorrow {
			weighted := fpmath.MulQuo(value, big.NewInt(bank.InitialLiabilityWeight), fpmath.MarginPrecision)
			mc.AddCrossRequirement(weighted, weighted)
			continue
		}
		if _, dedicated := isolatedBanks[b.BankID]; dedicated {
			// Counted inside the isolated entry, not the cross pool.
			continue
		}
		mc.AddCrossCollateral(fpmath.MulQuo(value, big.NewInt(assetWeight(bank, ctx.Category)), fpmath.MarginPrecision))
	}

	for _, p := range snap.Positions {
		if p.IsEmpty() {
			continue
		}
		m, ok := e.markets[p.MarketID]
		if !ok {
			continue
		}
		value := PositionValue(e.valuer, m, p)
		requirement := fpmath.MulQuo(value, MarginRatio(m, ctx.Category), fpmath.MarginPrecision)
		pnl := UnrealizedPnL(e.valuer, m, p, true)
		if p.UnsettledPnL != nil {
			pnl = fpmath.Add(pnl, p.UnsettledPnL)
		}
		if ctx.Strict && pnl.Sign() > 0 {
			// Strict passes never let unrealized gains shore up collateral.
			pnl = fpmath.Zero()
		}

		if m.Isolated {
			deposit := weightedDepositValue(snap.Balances, e.banks, e.feeds, ctx.Category, m.CollateralBankID)
			mc.AddIsolated(m.MarketID, deposit, pnl, fpmath.Zero(), requirement)
			continue
		}

		mc.AddCrossCollateral(pnl)
		mc.AddCrossRequirement(requirement, fpmath.Zero())
	}

	return mc
}
