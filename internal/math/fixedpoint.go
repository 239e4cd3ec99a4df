package math

import (
	"math"
	"math/big"
)

// Fixed decimal scales per quantity class. Every monetary or ratio quantity in
// the engine is a signed big integer paired with one of these implicit scales.
// Arithmetic between two values of the same scale is exact add/sub;
// multiplication composes scales and requires an explicit rescale; division
// truncates toward zero.
var (
	PricePrecision           = Exp10(10) // mark and oracle prices
	QuotePrecision           = Exp10(6)  // quote-currency amounts
	BasePrecision            = Exp10(13) // base-asset amounts and AMM reserves
	MarginPrecision          = Exp10(4)  // margin ratios, weights, buffers, leverage
	FundingRatePrecision     = Exp10(14) // cumulative funding accumulators
	PegPrecision             = Exp10(3)  // AMM peg multiplier
	DepositInterestPrecision = Exp10(10) // bank accrual index (1e10 = 1.0)
	PartPerMillion           = Exp10(6)
)

// Derived ratios used when moving between scales.
var (
	// AmmToQuotePrecisionRatio converts reserve-scale quote deltas (1e13)
	// down to quote precision (1e6).
	AmmToQuotePrecisionRatio = new(big.Int).Quo(BasePrecision, QuotePrecision)

	// PriceToPegPrecisionRatio converts peg-scale AMM prices up to price
	// precision.
	PriceToPegPrecisionRatio = new(big.Int).Quo(PricePrecision, PegPrecision)

	// FundingPaymentRescale divides a funding-rate × base-amount product down
	// to quote precision: 1e14 × 1e13 / 1e6.
	FundingPaymentRescale = new(big.Int).Quo(
		new(big.Int).Mul(FundingRatePrecision, BasePrecision), QuotePrecision)

	// QuotePerBaseToPriceRescale lifts a quote-precision amount divided by a
	// base-precision amount into price precision: 1e10 × 1e13 / 1e6. It is the
	// inverse of valuing a base amount at a price.
	QuotePerBaseToPriceRescale = new(big.Int).Quo(
		new(big.Int).Mul(PricePrecision, BasePrecision), QuotePrecision)
)

// MaxMarginRatio is the sentinel returned for accounts with zero position
// value: the largest representable margin ratio rather than an error.
var MaxMarginRatio = big.NewInt(math.MaxInt64)

// Zero returns a fresh zero-valued big integer.
func Zero() *big.Int {
	return new(big.Int)
}

// Exp10 returns 10^n as a big integer.
func Exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// Clone returns an independent copy of v.
func Clone(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}

// Mul returns a × b without mutating either operand.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

// Quo returns a / b truncated toward zero. b must be non-zero; callers guard
// every division site with an explicit zero check and a defined fallback.
func Quo(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(a, b)
}

// MulQuo returns a × b / den truncated toward zero, the standard rescale step
// after composing two scales.
func MulQuo(a, b, den *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(a, b), den)
}

// Add returns a + b without mutating either operand.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a − b without mutating either operand.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Neg returns −a.
func Neg(a *big.Int) *big.Int {
	return new(big.Int).Neg(a)
}

// Abs returns |a|.
func Abs(a *big.Int) *big.Int {
	return new(big.Int).Abs(a)
}

// Max returns the larger of a and b (a copy).
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// Min returns the smaller of a and b (a copy).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// ClampZero returns max(0, a).
func ClampZero(a *big.Int) *big.Int {
	if a.Sign() < 0 {
		return Zero()
	}
	return Clone(a)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
