package market

import "math/big"

var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
	one            = big.NewInt(1)
)

// GetAmountOut returns the output of a constant-product swap with a 0.3% fee,
// rounded down. The arithmetic mirrors UniswapV2Library.getAmountOut exactly;
// any rounding divergence from the contract is a correctness bug.
func GetAmountOut(reserveIn, reserveOut, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientReserve
	}

	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, feeDenominator),
		amountInWithFee,
	)
	return new(big.Int).Div(numerator, denominator), nil
}

// GetAmountIn returns the input required for a desired output, rounded up so
// the caller never under-pays and the pool invariant holds post-trade.
// Fails when amountOut meets or exceeds reserveOut: no finite input suffices.
func GetAmountIn(reserveIn, reserveOut, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientReserve
	}

	numerator := new(big.Int).Mul(
		new(big.Int).Mul(reserveIn, amountOut),
		feeDenominator,
	)
	denominator := new(big.Int).Mul(
		new(big.Int).Sub(reserveOut, amountOut),
		feeNumerator,
	)
	return new(big.Int).Add(
		new(big.Int).Div(numerator, denominator),
		one,
	), nil
}
