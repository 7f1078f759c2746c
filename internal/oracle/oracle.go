package oracle

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnavailable indicates the feed could not be queried.
	ErrUnavailable = errors.New("price feed unavailable")

	// ErrInvalidRate indicates the feed answered with a zero or negative price.
	ErrInvalidRate = errors.New("price feed returned a non-positive rate")
)

// Rate is the price of one base unit in the reference currency, scaled by
// 10^Decimals.
type Rate struct {
	Value    *big.Int
	Decimals uint8
}

// PriceFeed is a read-only source of the base unit exchange rate.
type PriceFeed interface {
	LatestRate(ctx context.Context) (Rate, error)
	Address() common.Address
}

// Validate rejects missing or non-positive rates.
func Validate(r Rate) error {
	if r.Value == nil || r.Value.Sign() <= 0 {
		return ErrInvalidRate
	}
	return nil
}

// Scale returns 10^Decimals.
func (r Rate) Scale() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Decimals)), nil)
}
