package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by both wei amounts and
// reference-currency amounts.
const Decimals = 18

// MaxWeiDigits bounds integer amounts; 2^256-1 has 78 decimal digits.
const MaxWeiDigits = 78

// maxAmountLength bounds decimal input: 60 integer digits, the point and 18
// fractional digits.
const maxAmountLength = 79

var (
	// ErrNegativeAmount is returned when a parsed amount is below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrTooPrecise is returned when an amount has more than 18 fractional digits.
	ErrTooPrecise = errors.New("amount has more than 18 decimal places")

	// ErrTooLarge is returned for amounts with more digits than a uint256
	// can carry, or written in exponent notation.
	ErrTooLarge = errors.New("amount is too large")
)

// ParseEther converts a decimal ether string such as "0.03" into wei.
func ParseEther(s string) (*big.Int, error) {
	return parseScaled(s)
}

// ParseUSD converts a decimal reference-currency string such as "50" into an
// 18-decimal fixed point integer.
func ParseUSD(s string) (*big.Int, error) {
	return parseScaled(s)
}

// ParseWei parses a base-10 integer amount of wei.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if len(s) > MaxWeiDigits {
		return nil, ErrTooLarge
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q: not a base-10 integer", s)
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return v, nil
}

// FormatEther renders wei as a decimal ether string.
func FormatEther(wei *big.Int) string {
	return formatScaled(wei)
}

// FormatUSD renders an 18-decimal reference amount as a decimal string.
func FormatUSD(v *big.Int) string {
	return formatScaled(v)
}

func parseScaled(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	// exponents would let a few bytes expand into an arbitrarily large shift
	if len(s) > maxAmountLength || strings.ContainsAny(s, "eE") {
		return nil, ErrTooLarge
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, ErrTooPrecise
	}
	return scaled.BigInt(), nil
}

func formatScaled(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).String()
}
