package account

import (
	"math/big"

	fpmath "PerpRisk/internal/math"
)

// TokenAmount converts a balance's scaled amount into an actual token
// quantity via the bank's accrual index. Deposits and borrows share the same
// index application; the sign stays implied by the balance kind.
func TokenAmount(b *Balance, bank *Bank) *big.Int {
	if b.IsZero() {
		return fpmath.Zero()
	}
	return fpmath.MulQuo(b.Amount, bank.CumulativeDepositInterest, fpmath.DepositInterestPrecision)
}

// TokenValue prices a token quantity in quote precision:
// tokenAmount × price / priceScale, normalized for the bank's token decimals.
func TokenValue(tokenAmount *big.Int, bank *Bank, feed *PriceFeed) *big.Int {
	if fpmath.IsZero(tokenAmount) {
		return fpmath.Zero()
	}
	den := fpmath.Mul(fpmath.PricePrecision, fpmath.Exp10(int64(bank.Decimals)))
	num := fpmath.Mul(fpmath.Mul(tokenAmount, feed.Price), fpmath.QuotePrecision)
	return fpmath.Quo(num, den)
}
