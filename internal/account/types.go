package account

import (
	"math/big"

	"github.com/google/uuid"

	fpmath "PerpRisk/internal/math"
)

// Direction is the side of a position or a hypothetical trade.
type Direction int

const (
	DirectionFlat Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "flat"
	}
}

// Position is a single market exposure inside an account snapshot.
// All fields are read-only for the duration of a calculation.
type Position struct {
	MarketID                  string
	BaseAssetAmount           *big.Int // base precision, sign = direction
	QuoteAssetAmount          *big.Int // cost basis, quote precision
	QuoteEntryAmount          *big.Int // quote precision
	LastCumulativeFundingRate *big.Int // funding-rate precision
	OpenOrders                int64
	UnsettledPnL              *big.Int // accrued-but-unsettled, quote precision
}

// EmptyPosition is the canonical record substituted when an account has no
// position in a market. A position with zero base-asset amount is
// economically empty regardless of its other fields.
func EmptyPosition(marketID string) *Position {
	return &Position{
		MarketID:                  marketID,
		BaseAssetAmount:           fpmath.Zero(),
		QuoteAssetAmount:          fpmath.Zero(),
		QuoteEntryAmount:          fpmath.Zero(),
		LastCumulativeFundingRate: fpmath.Zero(),
		UnsettledPnL:              fpmath.Zero(),
	}
}

// IsEmpty reports whether the position carries no exposure.
func (p *Position) IsEmpty() bool {
	return fpmath.IsZero(p.BaseAssetAmount)
}

// Direction returns the side implied by the base-asset amount's sign.
func (p *Position) Direction() Direction {
	switch p.BaseAssetAmount.Sign() {
	case 1:
		return DirectionLong
	case -1:
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// BalanceKind distinguishes deposits from borrows. The sign of a balance is
// implied by its kind, never stored.
type BalanceKind int

const (
	BalanceKindDeposit BalanceKind = iota
	BalanceKindBorrow
)

func (k BalanceKind) String() string {
	if k == BalanceKindBorrow {
		return "borrow"
	}
	return "deposit"
}

// Balance is a single bank holding inside an account snapshot.
type Balance struct {
	BankID string
	Amount *big.Int // native token units, non-negative
	Kind   BalanceKind
}

// IsZero reports whether the balance is economically inert.
func (b *Balance) IsZero() bool {
	return fpmath.IsZero(b.Amount)
}

// AmmState is the market's liquidity-curve state at snapshot time.
type AmmState struct {
	BaseAssetReserve  *big.Int // base precision
	QuoteAssetReserve *big.Int // base precision
	PegMultiplier     *big.Int // peg precision
}

// Market is the read-only per-market record the engine prices against.
type Market struct {
	MarketID                   string
	MarginRatioInitial         int64 // margin precision, e.g. 1000 = 10%
	MarginRatioPartial         int64
	MarginRatioMaintenance     int64
	CumulativeFundingRateLong  *big.Int // funding-rate precision
	CumulativeFundingRateShort *big.Int
	PriceFeedID                string
	Amm                        AmmState

	// Isolated markets are margined independently of the cross pool and draw
	// collateral only from their designated bank.
	Isolated         bool
	CollateralBankID string
}

// Bank is the read-only per-asset record behind a balance.
type Bank struct {
	BankID                    string
	InitialAssetWeight        int64 // margin precision, 10000 = 100%
	MaintenanceAssetWeight    int64
	InitialLiabilityWeight    int64
	CumulativeDepositInterest *big.Int // deposit-interest precision
	Decimals                  uint8
	PriceFeedID               string
}

// PriceFeed is one oracle observation. The engine treats the price as
// authoritative and does not validate staleness itself.
type PriceFeed struct {
	FeedID     string
	Price      *big.Int // price precision
	Confidence *big.Int
	Slot       uint64
}

// Snapshot is an account's positions and balances captured at one external
// state version. Snapshots are immutable by convention for the duration of a
// calculation.
type Snapshot struct {
	AccountID uuid.UUID
	Positions []*Position
	Balances  []*Balance
}

// Position returns the snapshot's position in marketID, or the canonical
// empty record when the account has none. Absence is never an error.
func (s *Snapshot) Position(marketID string) *Position {
	for _, p := range s.Positions {
		if p.MarketID == marketID {
			return p
		}
	}
	return EmptyPosition(marketID)
}

// Balance returns the snapshot's balance in bankID, or a zero deposit record
// when the account has none.
func (s *Snapshot) Balance(bankID string) *Balance {
	for _, b := range s.Balances {
		if b.BankID == bankID {
			return b
		}
	}
	return &Balance{BankID: bankID, Amount: fpmath.Zero(), Kind: BalanceKindDeposit}
}
