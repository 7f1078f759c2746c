package oracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MockDecimals matches the decimals of the development aggregator.
	MockDecimals = 8
	// MockAnswer is 2000 reference units per base unit at MockDecimals.
	MockAnswer = 200_000_000_000
)

// StaticFeed is a stand-in aggregator for development chains and tests. It
// answers with whatever rate was last set.
type StaticFeed struct {
	mu       sync.RWMutex
	address  common.Address
	answer   *big.Int
	decimals uint8
}

// NewStaticFeed builds a fixed-rate feed reachable at the given address.
func NewStaticFeed(address common.Address, decimals uint8, answer *big.Int) *StaticFeed {
	f := &StaticFeed{address: address, decimals: decimals}
	if answer != nil {
		f.answer = new(big.Int).Set(answer)
	}
	return f
}

// LatestRate returns the configured answer.
func (f *StaticFeed) LatestRate(_ context.Context) (Rate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var value *big.Int
	if f.answer != nil {
		value = new(big.Int).Set(f.answer)
	}
	return Rate{Value: value, Decimals: f.decimals}, nil
}

// Address returns the address the feed was registered under.
func (f *StaticFeed) Address() common.Address {
	return f.address
}

// UpdateAnswer replaces the current answer.
func (f *StaticFeed) UpdateAnswer(answer *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if answer == nil {
		f.answer = nil
		return
	}
	f.answer = new(big.Int).Set(answer)
}
