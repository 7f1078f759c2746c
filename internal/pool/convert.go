package pool

import (
	"math/big"

	"github.com/fundme/fundme/internal/oracle"
)

// ConversionRate returns the reference-currency value of amount at rate. The
// product is taken before the single truncating division by 10^decimals.
func ConversionRate(amount *big.Int, rate oracle.Rate) *big.Int {
	value := new(big.Int).Mul(amount, rate.Value)
	return value.Quo(value, rate.Scale())
}
