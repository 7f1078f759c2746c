package pool

import "errors"

var (
	// ErrInsufficientContribution indicates the offered amount is worth less than
	// the minimum contribution in the reference currency.
	ErrInsufficientContribution = errors.New("insufficient contribution")

	// ErrNotOwner indicates a withdrawal attempt by someone other than the owner.
	ErrNotOwner = errors.New("caller is not the pool owner")

	// ErrIndexOutOfRange indicates a roster read past the current roster length.
	ErrIndexOutOfRange = errors.New("funder index out of range")

	// ErrOracleUnavailable indicates the price feed could not be read.
	ErrOracleUnavailable = errors.New("price oracle unavailable")

	// ErrInvalidRate indicates the price feed answered with a non-positive rate.
	ErrInvalidRate = errors.New("price oracle returned an invalid rate")

	// ErrCustodyTransferFailed indicates value could not be moved into or out of
	// the pool.
	ErrCustodyTransferFailed = errors.New("custody transfer failed")
)

// ErrInvalidInput indicates a malformed address, amount or index.
var ErrInvalidInput = errors.New("invalid input")
