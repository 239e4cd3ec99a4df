package risk_test

import (
	"errors"
	"math/big"
	"testing"

	"PerpRisk/internal/risk"
)

func TestMarginRatio_Categories(t *testing.T) {
	m := btcMarket()
	cases := []struct {
		category risk.MarginCategory
		want     int64
	}{
		{risk.MarginCategoryInitial, 1000},
		{risk.MarginCategoryPartial, 625},
		{risk.MarginCategoryMaintenance, 500},
		{risk.MarginCategoryFill, 750}, // midpoint of initial and maintenance
	}
	for _, tc := range cases {
		got := risk.MarginRatio(m, tc.category)
		if got.Int64() != tc.want {
			t.Errorf("MarginRatio(%v) = %v, want %d", tc.category, got, tc.want)
		}
	}
}

func TestMarginCategory_String(t *testing.T) {
	if got := risk.MarginCategoryPartial.String(); got != "partial" {
		t.Errorf("got %q, want %q", got, "partial")
	}
	if got := risk.MarginCategoryFill.String(); got != "fill" {
		t.Errorf("got %q, want %q", got, "fill")
	}
}

func TestMarginCalculation_CrossBufferAccruesOnLosses(t *testing.T) {
	ctx := risk.LiquidationMarginContext(risk.MarginCategoryMaintenance, big.NewInt(200))
	mc := risk.NewMarginCalculation(ctx)

	// Gains never accrue a buffer.
	mc.AddCrossCollateral(big.NewInt(3_000_000))
	wantInt(t, "buffer after gain", mc.TotalCollateralBuffer, 0)

	// A loss accrues loss × buffer on top of the loss itself.
	mc.AddCrossCollateral(big.NewInt(-1_000_000))
	wantInt(t, "TotalCollateral", mc.TotalCollateral, 2_000_000)
	wantInt(t, "TotalCollateralBuffer", mc.TotalCollateralBuffer, -20_000)
}

func TestMarginCalculation_BufferedRequirementGrowsWithLiabilities(t *testing.T) {
	ctx := risk.LiquidationMarginContext(risk.MarginCategoryMaintenance, big.NewInt(200))
	mc := risk.NewMarginCalculation(ctx)

	mc.AddCrossRequirement(big.NewInt(1_000_000), big.NewInt(2_000_000))
	wantInt(t, "MarginRequirement", mc.MarginRequirement, 1_000_000)
	wantInt(t, "MarginRequirementPlusBuffer", mc.MarginRequirementPlusBuffer, 1_040_000)

	// Position contributions carry no liability value and no extra buffer.
	mc.AddCrossRequirement(big.NewInt(500_000), big.NewInt(0))
	wantInt(t, "MarginRequirement", mc.MarginRequirement, 1_500_000)
	wantInt(t, "MarginRequirementPlusBuffer", mc.MarginRequirementPlusBuffer, 1_540_000)
}

func TestMarginCalculation_StandardModeHasNoBuffer(t *testing.T) {
	mc := risk.NewMarginCalculation(risk.StandardMarginContext(risk.MarginCategoryInitial))

	mc.AddCrossCollateral(big.NewInt(-1_000_000))
	mc.AddCrossRequirement(big.NewInt(1_000_000), big.NewInt(2_000_000))

	wantInt(t, "TotalCollateralBuffer", mc.TotalCollateralBuffer, 0)
	wantInt(t, "MarginRequirementPlusBuffer", mc.MarginRequirementPlusBuffer, 1_000_000)
}

func TestMarginCalculation_Checks(t *testing.T) {
	mc := risk.NewMarginCalculation(risk.StandardMarginContext(risk.MarginCategoryInitial))
	mc.AddCrossCollateral(big.NewInt(2_000_000))
	mc.AddCrossRequirement(big.NewInt(1_500_000), big.NewInt(0))

	if !mc.MeetsMarginRequirement() {
		t.Error("2.0 collateral should cover a 1.5 requirement")
	}
	wantInt(t, "FreeCollateral", mc.FreeCollateral(), 500_000)

	mc.AddCrossRequirement(big.NewInt(1_000_000), big.NewInt(0))
	if mc.MeetsMarginRequirement() {
		t.Error("2.0 collateral should not cover a 2.5 requirement")
	}
	wantInt(t, "FreeCollateral clamps at zero", mc.FreeCollateral(), 0)
}

func TestMarginCalculation_IsolatedBuffer(t *testing.T) {
	ctx := risk.StandardMarginContext(risk.MarginCategoryMaintenance).
		WithIsolatedBuffer("ISO-PERP", big.NewInt(200))
	mc := risk.NewMarginCalculation(ctx)

	// A negative pnl accrues pnl × buffer; the liability value inflates the
	// buffered requirement.
	mc.AddIsolated("ISO-PERP",
		big.NewInt(2_000_000), // deposit
		big.NewInt(-500_000),  // pnl
		big.NewInt(1_000_000), // liability value
		big.NewInt(300_000))   // requirement

	iso, err := mc.Isolated("ISO-PERP")
	if err != nil {
		t.Fatalf("Isolated: %v", err)
	}
	wantInt(t, "TotalCollateral", iso.TotalCollateral, 1_500_000)
	wantInt(t, "TotalCollateralBuffer", iso.TotalCollateralBuffer, -10_000)
	wantInt(t, "MarginRequirement", iso.MarginRequirement, 300_000)
	wantInt(t, "MarginRequirementPlusBuffer", iso.MarginRequirementPlusBuffer, 320_000)

	if !iso.MeetsMarginRequirement() {
		t.Error("isolated market should meet its plain requirement")
	}
	if !iso.MeetsBufferedMarginRequirement() {
		t.Error("isolated market should meet its buffered requirement")
	}
}

func TestMarginCalculation_IsolatedNotFound(t *testing.T) {
	mc := risk.NewMarginCalculation(risk.StandardMarginContext(risk.MarginCategoryInitial))
	if _, err := mc.Isolated("ISO-PERP"); !errors.Is(err, risk.ErrIsolatedMarketNotFound) {
		t.Errorf("got %v, want ErrIsolatedMarketNotFound", err)
	}
	if _, err := mc.IsolatedFreeCollateral("ISO-PERP"); !errors.Is(err, risk.ErrIsolatedMarketNotFound) {
		t.Errorf("got %v, want ErrIsolatedMarketNotFound", err)
	}
}

func TestMarginCalculation_IsolatedInsertionOrder(t *testing.T) {
	mc := risk.NewMarginCalculation(risk.StandardMarginContext(risk.MarginCategoryInitial))
	zero := big.NewInt(0)
	mc.AddIsolated("B-PERP", zero, zero, zero, zero)
	mc.AddIsolated("A-PERP", zero, zero, zero, zero)
	mc.AddIsolated("B-PERP", zero, zero, zero, zero) // overwrite keeps position

	got := mc.IsolatedMarkets()
	if len(got) != 2 || got[0] != "B-PERP" || got[1] != "A-PERP" {
		t.Errorf("IsolatedMarkets = %v, want [B-PERP A-PERP]", got)
	}
}

func TestMarginCalculation_UnhealthyIsolatedFailsWhole(t *testing.T) {
	mc := risk.NewMarginCalculation(risk.StandardMarginContext(risk.MarginCategoryInitial))
	mc.AddCrossCollateral(big.NewInt(10_000_000))
	mc.AddIsolated("ISO-PERP",
		big.NewInt(100_000), big.NewInt(0), big.NewInt(0), big.NewInt(200_000))

	// The cross pool is fine but the isolated market is not.
	if mc.MeetsMarginRequirement() {
		t.Error("unhealthy isolated market should fail the whole account")
	}
}
