package risk_test

import (
	"errors"
	"math/big"
	"testing"

	"PerpRisk/internal/account"
	fpmath "PerpRisk/internal/math"
	"PerpRisk/internal/risk"
)

func TestMaxLeverage(t *testing.T) {
	e := defaultEngine()

	// 10% initial margin inverts to 10x.
	got, err := e.MaxLeverage("BTC-PERP", risk.MarginCategoryInitial)
	if err != nil {
		t.Fatalf("MaxLeverage: %v", err)
	}
	wantInt(t, "initial max leverage", got, 100_000)

	got, err = e.MaxLeverage("BTC-PERP", risk.MarginCategoryMaintenance)
	if err != nil {
		t.Fatalf("MaxLeverage: %v", err)
	}
	wantInt(t, "maintenance max leverage", got, 200_000)

	if _, err := e.MaxLeverage("DOGE-PERP", risk.MarginCategoryInitial); !errors.Is(err, risk.ErrUnknownMarket) {
		t.Errorf("got %v, want ErrUnknownMarket", err)
	}
}

func TestMaxLeverage_ZeroRatio(t *testing.T) {
	m := btcMarket()
	m.MarginRatioMaintenance = 0
	e := engineWith(map[string]*big.Int{"BTC-PERP": big.NewInt(500_000_000_000)}, m)

	got, err := e.MaxLeverage("BTC-PERP", risk.MarginCategoryMaintenance)
	if err != nil {
		t.Fatalf("MaxLeverage: %v", err)
	}
	if got.Cmp(fpmath.MaxMarginRatio) != 0 {
		t.Errorf("got %v, want max sentinel %v", got, fpmath.MaxMarginRatio)
	}
}

func TestBuyingPower(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		[]*account.Balance{deposit(6_000_000)},
	)

	// Free collateral 5.5 at 10x.
	got, err := e.BuyingPower(snap, "BTC-PERP")
	if err != nil {
		t.Fatalf("BuyingPower: %v", err)
	}
	wantInt(t, "BuyingPower", got, 55_000_000)
}

func TestLeverage_NoCollateral(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		nil,
	)
	wantInt(t, "Leverage", e.Leverage(snap), 0)
}

func TestCanBeLiquidated(t *testing.T) {
	e := defaultEngine()

	// Collateral 0.3 under a 0.3125 partial requirement.
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		[]*account.Balance{deposit(300_000)},
	)

	liquidatable, ratio := e.CanBeLiquidated(snap)
	if !liquidatable {
		t.Error("account under the partial requirement should be liquidatable")
	}
	wantInt(t, "margin ratio", ratio, 600)

	// Requirement exceeds collateral, so free collateral clamps at zero.
	wantInt(t, "free collateral", e.FreeCollateral(snap), 0)
}

// ============================================================
// MaxTradeSize
// ============================================================

func maxTradeSize(t *testing.T, e *risk.Engine, snap *account.Snapshot, dir account.Direction) *big.Int {
	t.Helper()
	got, err := e.MaxTradeSize(snap, "BTC-PERP", dir)
	if err != nil {
		t.Fatalf("MaxTradeSize: %v", err)
	}
	return got
}

func TestMaxTradeSize_FlatAccount(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(nil, []*account.Balance{deposit(6_000_000)})

	// Buying power 60.0 less the part-per-million rounding margin.
	got := maxTradeSize(t, e, snap, account.DirectionLong)
	wantInt(t, "MaxTradeSize", got, 59_999_940)
}

func TestMaxTradeSize_WithinBounds_OppositeSide(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		[]*account.Balance{deposit(6_000_000)},
	)

	// Buying power 55.0 plus twice the 5.0 short being flipped.
	got := maxTradeSize(t, e, snap, account.DirectionLong)
	wantInt(t, "MaxTradeSize", got, 64_999_935)
}

func TestMaxTradeSize_OverLeveraged_SameSide(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		[]*account.Balance{deposit(400_000)},
	)

	// No reduction-only capacity is derived for a same-side trade while over
	// the leverage bound; the result is zero, not the closable size.
	got := maxTradeSize(t, e, snap, account.DirectionShort)
	wantInt(t, "MaxTradeSize", got, 0)
}

func TestMaxTradeSize_OverLeveraged_OppositeSide(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		[]*account.Balance{deposit(400_000)},
	)

	// Closing the 5.0 short frees its full requirement, leaving 0.4 free
	// collateral to redeploy at 10x on top of the close itself.
	got := maxTradeSize(t, e, snap, account.DirectionLong)
	wantInt(t, "MaxTradeSize", got, 8_999_991)
}

func TestMaxTradeSize_OverLeveraged_CloseOnly(t *testing.T) {
	prices := map[string]*big.Int{
		"BTC-PERP": big.NewInt(500_000_000_000),
		"ETH-PERP": big.NewInt(1_000_000_000_000),
	}
	e := engineWith(prices, btcMarket(), ethMarket())

	// A second position keeps the account unhealthy even after the BTC short
	// closes, so the trade can flatten but not flip.
	snap := snapshot([]*account.Position{
		position("BTC-PERP", -1_000_000_000_000, 5_000_000),
		position("ETH-PERP", 1_000_000_000_000, 10_000_000),
	}, []*account.Balance{deposit(400_000)})

	got := maxTradeSize(t, e, snap, account.DirectionLong)
	wantInt(t, "MaxTradeSize", got, 4_999_995)
}

// ============================================================
// AccountLeverageRatioAfterTrade
// ============================================================

func TestAccountLeverageRatioAfterTrade_Flattening(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		[]*account.Balance{deposit(6_000_000)},
	)

	// A long exactly offsetting the 5.0 short leaves no exposure.
	got, err := e.AccountLeverageRatioAfterTrade(snap, "BTC-PERP", big.NewInt(5_000_000), account.DirectionLong)
	if err != nil {
		t.Fatalf("AccountLeverageRatioAfterTrade: %v", err)
	}
	wantInt(t, "after flatten", got, 0)
}

func TestAccountLeverageRatioAfterTrade_Flip(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		[]*account.Balance{deposit(6_000_000)},
	)

	// A 10.0 long against the 5.0 short nets to 5.0 the other way.
	got, err := e.AccountLeverageRatioAfterTrade(snap, "BTC-PERP", big.NewInt(10_000_000), account.DirectionLong)
	if err != nil {
		t.Fatalf("AccountLeverageRatioAfterTrade: %v", err)
	}
	wantInt(t, "after flip", got, 8_333)
}

func TestAccountLeverageRatioAfterTrade_NoCollateral(t *testing.T) {
	e := defaultEngine()
	snap := snapshot(
		[]*account.Position{position("BTC-PERP", -1_000_000_000_000, 5_000_000)},
		nil,
	)

	got, err := e.AccountLeverageRatioAfterTrade(snap, "BTC-PERP", big.NewInt(1_000_000), account.DirectionLong)
	if err != nil {
		t.Fatalf("AccountLeverageRatioAfterTrade: %v", err)
	}
	wantInt(t, "no collateral", got, 0)
}
