package risk

import (
	"errors"
	"fmt"
	"math/big"

	"PerpRisk/internal/account"
	fpmath "PerpRisk/internal/math"
)

// MarginCategory selects which of a market's margin-ratio fields a
// requirement pass reads.
type MarginCategory int

const (
	MarginCategoryInitial MarginCategory = iota
	MarginCategoryPartial
	MarginCategoryMaintenance
	MarginCategoryFill
)

func (c MarginCategory) String() string {
	switch c {
	case MarginCategoryInitial:
		return "initial"
	case MarginCategoryPartial:
		return "partial"
	case MarginCategoryMaintenance:
		return "maintenance"
	case MarginCategoryFill:
		return "fill"
	default:
		return "unknown"
	}
}

// MarginRatio returns the market's margin-ratio fraction for a category, in
// margin precision. The fill category blends initial and maintenance.
func MarginRatio(m *account.Market, c MarginCategory) *big.Int {
	switch c {
	case MarginCategoryPartial:
		return big.NewInt(m.MarginRatioPartial)
	case MarginCategoryMaintenance:
		return big.NewInt(m.MarginRatioMaintenance)
	case MarginCategoryFill:
		return big.NewInt((m.MarginRatioInitial + m.MarginRatioMaintenance) / 2)
	default:
		return big.NewInt(m.MarginRatioInitial)
	}
}

// MarginMode distinguishes the standard requirement check from a
// liquidation simulation, which applies safety buffers.
type MarginMode int

const (
	MarginModeStandard MarginMode = iota
	MarginModeLiquidation
)

// MarginContext carries the parameters of one margin-calculation pass.
// A buffer of zero means no safety margin applied, matching standard mode.
// A strict pass counts unrealized losses toward collateral but never gains.
type MarginContext struct {
	Category        MarginCategory
	Mode            MarginMode
	Strict          bool
	IsolatedBuffers map[string]*big.Int // market id → buffer fraction, margin precision
	CrossBuffer     *big.Int            // margin precision
}

// StandardMarginContext is a plain pass with no buffers.
func StandardMarginContext(category MarginCategory) MarginContext {
	return MarginContext{Category: category, Mode: MarginModeStandard}
}

// LiquidationMarginContext applies a cross-margin buffer so that losses count
// extra and requirements inflate during liquidation simulation.
func LiquidationMarginContext(category MarginCategory, crossBuffer *big.Int) MarginContext {
	return MarginContext{
		Category:    category,
		Mode:        MarginModeLiquidation,
		CrossBuffer: crossBuffer,
	}
}

// WithIsolatedBuffer returns a copy of the context with a per-market buffer
// for one isolated market.
func (ctx MarginContext) WithIsolatedBuffer(marketID string, buffer *big.Int) MarginContext {
	buffers := make(map[string]*big.Int, len(ctx.IsolatedBuffers)+1)
	for k, v := range ctx.IsolatedBuffers {
		buffers[k] = v
	}
	buffers[marketID] = buffer
	ctx.IsolatedBuffers = buffers
	return ctx
}

func (ctx MarginContext) crossBufferConfigured() bool {
	return !fpmath.IsZero(ctx.CrossBuffer)
}

func (ctx MarginContext) isolatedBuffer(marketID string) *big.Int {
	if b, ok := ctx.IsolatedBuffers[marketID]; ok && !fpmath.IsZero(b) {
		return b
	}
	return nil
}

// ErrIsolatedMarketNotFound signals a caller contract violation: the isolated
// view was requested for a market that was never added to the calculation.
var ErrIsolatedMarketNotFound = errors.New("isolated market not in margin calculation")

// IsolatedMarginCalculation holds the running totals for one isolated market,
// scoped independently of the cross pool.
type IsolatedMarginCalculation struct {
	MarketID                    string
	TotalCollateral             *big.Int
	TotalCollateralBuffer       *big.Int
	MarginRequirement           *big.Int
	MarginRequirementPlusBuffer *big.Int
}

// MeetsMarginRequirement reports whether the isolated market is healthy on
// its own collateral.
func (iso *IsolatedMarginCalculation) MeetsMarginRequirement() bool {
	return iso.TotalCollateral.Cmp(iso.MarginRequirement) >= 0
}

// MeetsBufferedMarginRequirement substitutes the buffered totals.
func (iso *IsolatedMarginCalculation) MeetsBufferedMarginRequirement() bool {
	buffered := fpmath.Add(iso.TotalCollateral, iso.TotalCollateralBuffer)
	return buffered.Cmp(iso.MarginRequirementPlusBuffer) >= 0
}

// FreeCollateral is max(0, collateral − requirement) for this market alone.
func (iso *IsolatedMarginCalculation) FreeCollateral() *big.Int {
	return fpmath.ClampZero(fpmath.Sub(iso.TotalCollateral, iso.MarginRequirement))
}

// MarginCalculation accumulates cross-margin totals and per-isolated-market
// sub-totals over one front-to-back pass of an account's balances and
// positions. Totals only grow in the direction they were added; the
// calculation is built once and then only read.
type MarginCalculation struct {
	Context MarginContext

	TotalCollateral             *big.Int
	TotalCollateralBuffer       *big.Int
	MarginRequirement           *big.Int
	MarginRequirementPlusBuffer *big.Int

	isolated      map[string]*IsolatedMarginCalculation
	isolatedOrder []string
}

func NewMarginCalculation(ctx MarginContext) *MarginCalculation {
	return &MarginCalculation{
		Context:                     ctx,
		TotalCollateral:             fpmath.Zero(),
		TotalCollateralBuffer:       fpmath.Zero(),
		MarginRequirement:           fpmath.Zero(),
		MarginRequirementPlusBuffer: fpmath.Zero(),
		isolated:                    make(map[string]*IsolatedMarginCalculation),
	}
}

// AddCrossCollateral adds delta to the running cross collateral. A negative
// delta with a configured cross buffer also accrues delta × buffer into the
// collateral buffer, making losses count extra in liquidation mode.
func (mc *MarginCalculation) AddCrossCollateral(delta *big.Int) {
	mc.TotalCollateral.Add(mc.TotalCollateral, delta)
	if delta.Sign() < 0 && mc.Context.crossBufferConfigured() {
		accrual := fpmath.MulQuo(delta, mc.Context.CrossBuffer, fpmath.MarginPrecision)
		mc.TotalCollateralBuffer.Add(mc.TotalCollateralBuffer, accrual)
	}
}

// AddCrossRequirement adds a requirement contribution. liabilityValue is the
// borrow value behind the contribution (zero for positions); with a cross
// buffer configured the buffered requirement additionally grows by
// liabilityValue × buffer.
func (mc *MarginCalculation) AddCrossRequirement(requirement, liabilityValue *big.Int) {
	mc.MarginRequirement.Add(mc.MarginRequirement, requirement)
	buffered := fpmath.Clone(requirement)
	if mc.Context.crossBufferConfigured() {
		buffered.Add(buffered, fpmath.MulQuo(liabilityValue, mc.Context.CrossBuffer, fpmath.MarginPrecision))
	}
	mc.MarginRequirementPlusBuffer.Add(mc.MarginRequirementPlusBuffer, buffered)
}

// AddIsolated creates or overwrites the isolated entry for marketID.
// Collateral is depositValue + pnl; the collateral buffer accrues only from a
// negative pnl with a configured per-market buffer.
func (mc *MarginCalculation) AddIsolated(marketID string, depositValue, pnl, liabilityValue, requirement *big.Int) {
	iso := &IsolatedMarginCalculation{
		MarketID:                    marketID,
		TotalCollateral:             fpmath.Add(depositValue, pnl),
		TotalCollateralBuffer:       fpmath.Zero(),
		MarginRequirement:           fpmath.Clone(requirement),
		MarginRequirementPlusBuffer: fpmath.Clone(requirement),
	}

	if buffer := mc.Context.isolatedBuffer(marketID); buffer != nil {
		if pnl.Sign() < 0 {
			iso.TotalCollateralBuffer = fpmath.MulQuo(pnl, buffer, fpmath.MarginPrecision)
		}
		iso.MarginRequirementPlusBuffer = fpmath.Add(requirement,
			fpmath.MulQuo(liabilityValue, buffer, fpmath.MarginPrecision))
	}

	if _, exists := mc.isolated[marketID]; !exists {
		mc.isolatedOrder = append(mc.isolatedOrder, marketID)
	}
	mc.isolated[marketID] = iso
}

// Isolated returns the sub-calculation for marketID. Requesting a market that
// was never added is a contract violation and propagates immediately.
func (mc *MarginCalculation) Isolated(marketID string) (*IsolatedMarginCalculation, error) {
	iso, ok := mc.isolated[marketID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIsolatedMarketNotFound, marketID)
	}
	return iso, nil
}

// IsolatedMarkets returns the isolated market ids in insertion order.
func (mc *MarginCalculation) IsolatedMarkets() []string {
	out := make([]string, len(mc.isolatedOrder))
	copy(out, mc.isolatedOrder)
	return out
}

// MeetsMarginRequirement is true iff the cross pool satisfies its requirement
// and every isolated market independently satisfies its own.
func (mc *MarginCalculation) MeetsMarginRequirement() bool {
	if mc.TotalCollateral.Cmp(mc.MarginRequirement) < 0 {
		return false
	}
	for _, id := range mc.isolatedOrder {
		if !mc.isolated[id].MeetsMarginRequirement() {
			return false
		}
	}
	return true
}

// MeetsBufferedMarginRequirement substitutes the buffered totals everywhere.
func (mc *MarginCalculation) MeetsBufferedMarginRequirement() bool {
	buffered := fpmath.Add(mc.TotalCollateral, mc.TotalCollateralBuffer)
	if buffered.Cmp(mc.MarginRequirementPlusBuffer) < 0 {
		return false
	}
	for _, id := range mc.isolatedOrder {
		if !mc.isolated[id].MeetsBufferedMarginRequirement() {
			return false
		}
	}
	return true
}

// FreeCollateral is max(0, cross collateral − cross requirement).
func (mc *MarginCalculation) FreeCollateral() *big.Int {
	return fpmath.ClampZero(fpmath.Sub(mc.TotalCollateral, mc.MarginRequirement))
}

// IsolatedFreeCollateral is max(0, collateral − requirement) for one isolated
// market; it propagates the contract violation for unknown markets.
func (mc *MarginCalculation) IsolatedFreeCollateral(marketID string) (*big.Int, error) {
	iso, err := mc.Isolated(marketID)
	if err != nil {
		return nil, err
	}
	return iso.FreeCollateral(), nil
}
