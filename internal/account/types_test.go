package account_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"PerpRisk/internal/account"
)

func TestPosition_Direction(t *testing.T) {
	cases := []struct {
		base int64
		want account.Direction
	}{
		{1, account.DirectionLong},
		{-1, account.DirectionShort},
		{0, account.DirectionFlat},
	}
	for _, tc := range cases {
		p := &account.Position{BaseAssetAmount: big.NewInt(tc.base)}
		if got := p.Direction(); got != tc.want {
			t.Errorf("Direction(base=%d) = %v, want %v", tc.base, got, tc.want)
		}
	}
}

func TestEmptyPosition(t *testing.T) {
	p := account.EmptyPosition("BTC-PERP")
	if !p.IsEmpty() {
		t.Error("empty position should be empty")
	}
	if p.MarketID != "BTC-PERP" {
		t.Errorf("got market %q, want BTC-PERP", p.MarketID)
	}
	if p.QuoteAssetAmount.Sign() != 0 || p.UnsettledPnL.Sign() != 0 {
		t.Error("empty position fields should be zero")
	}
}

func TestPosition_EmptyRegardlessOfOtherFields(t *testing.T) {
	// Zero base-asset amount is economically empty even with a stale cost basis.
	p := &account.Position{
		MarketID:         "BTC-PERP",
		BaseAssetAmount:  big.NewInt(0),
		QuoteAssetAmount: big.NewInt(5_000_000),
	}
	if !p.IsEmpty() {
		t.Error("zero base-asset amount should be empty")
	}
}

func TestSnapshot_Position_AbsentIsCanonicalEmpty(t *testing.T) {
	snap := &account.Snapshot{AccountID: uuid.New()}
	p := snap.Position("ETH-PERP")
	if p == nil {
		t.Fatal("absent position should not be nil")
	}
	if !p.IsEmpty() {
		t.Error("absent position should be empty")
	}
	if p.MarketID != "ETH-PERP" {
		t.Errorf("got market %q, want ETH-PERP", p.MarketID)
	}
}

func TestSnapshot_Balance_AbsentIsZeroDeposit(t *testing.T) {
	snap := &account.Snapshot{AccountID: uuid.New()}
	b := snap.Balance("USDC")
	if !b.IsZero() {
		t.Error("absent balance should be zero")
	}
	if b.Kind != account.BalanceKindDeposit {
		t.Errorf("got kind %v, want deposit", b.Kind)
	}
}

func TestTokenAmount_AppliesAccrualIndex(t *testing.T) {
	bank := &account.Bank{
		BankID:                    "USDC",
		CumulativeDepositInterest: big.NewInt(20_000_000_000), // 2.0 at 1e10
		Decimals:                  6,
	}
	b := &account.Balance{BankID: "USDC", Amount: big.NewInt(1_000_000)}

	got := account.TokenAmount(b, bank)
	if got.Int64() != 2_000_000 {
		t.Errorf("got %d, want 2000000", got.Int64())
	}
}

func TestTokenValue_QuotePrecision(t *testing.T) {
	bank := &account.Bank{BankID: "USDC", Decimals: 6}
	feed := &account.PriceFeed{FeedID: "USDC-FEED", Price: big.NewInt(10_000_000_000)} // $1.00

	// 6 tokens at $1 = 6 quote units.
	got := account.TokenValue(big.NewInt(6_000_000), bank, feed)
	if got.Int64() != 6_000_000 {
		t.Errorf("got %d, want 6000000", got.Int64())
	}
}

func TestTokenValue_EightDecimalsToken(t *testing.T) {
	bank := &account.Bank{BankID: "WBTC", Decimals: 8}
	feed := &account.PriceFeed{FeedID: "BTC-FEED", Price: big.NewInt(500_000_000_000_000)} // $50,000

	// 0.1 WBTC at $50,000 = 5,000 quote units.
	got := account.TokenValue(big.NewInt(10_000_000), bank, feed)
	if got.Int64() != 5_000_000_000 {
		t.Errorf("got %d, want 5000000000", got.Int64())
	}
}

func TestBalanceKind_String(t *testing.T) {
	if account.BalanceKindDeposit.String() != "deposit" {
		t.Errorf("got %q", account.BalanceKindDeposit.String())
	}
	if account.BalanceKindBorrow.String() != "borrow" {
		t.Errorf("got %q", account.BalanceKindBorrow.String())
	}
}
