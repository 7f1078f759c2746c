package custody

import (
	"context"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

type inMemoryVault struct {
	mu        sync.RWMutex
	balances  map[string]*big.Int
	transfers map[string]Receipt
	postings  map[string][]Posting
}

// NewInMemory creates a concurrency-safe in-memory vault for development and
// unit tests.
func NewInMemory() Vault {
	return &inMemoryVault{
		balances:  make(map[string]*big.Int),
		transfers: make(map[string]Receipt),
		postings:  make(map[string][]Posting),
	}
}

func (v *inMemoryVault) EnsureAccount(_ context.Context, code string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.balances[code]; !exists {
		v.balances[code] = new(big.Int)
	}
	return nil
}

func (v *inMemoryVault) Balance(_ context.Context, code string) (*big.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	balance, exists := v.balances[code]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return new(big.Int).Set(balance), nil
}

func (v *inMemoryVault) Transfer(_ context.Context, fromCode, toCode, kind, reference string, amount *big.Int) (Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Receipt{}, ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := kind + ":" + reference
	if res, exists := v.transfers[key]; exists {
		return res, ErrDuplicateTransfer
	}

	fromBalance, ok := v.balances[fromCode]
	if !ok {
		return Receipt{}, ErrAccountNotFound
	}
	toBalance, ok := v.balances[toCode]
	if !ok {
		return Receipt{}, ErrAccountNotFound
	}
	if !unbounded(fromCode) && fromBalance.Cmp(amount) < 0 {
		return Receipt{}, ErrInsufficientFunds
	}

	fromBalance = new(big.Int).Sub(fromBalance, amount)
	toBalance = new(big.Int).Add(toBalance, amount)
	v.balances[fromCode] = fromBalance
	v.balances[toCode] = toBalance

	transferID := uuid.NewString()
	v.postings[fromCode] = append(v.postings[fromCode], Posting{
		TransferID:   transferID,
		Reference:    reference,
		Kind:         kind,
		Counterparty: toCode,
		Amount:       new(big.Int).Neg(amount),
	})
	v.postings[toCode] = append(v.postings[toCode], Posting{
		TransferID:   transferID,
		Reference:    reference,
		Kind:         kind,
		Counterparty: fromCode,
		Amount:       new(big.Int).Set(amount),
	})

	res := Receipt{
		TransferID:  transferID,
		Reference:   reference,
		Kind:        kind,
		FromBalance: new(big.Int).Set(fromBalance),
		ToBalance:   new(big.Int).Set(toBalance),
	}
	v.transfers[key] = res
	return res, nil
}

func (v *inMemoryVault) Postings(_ context.Context, code string) ([]Posting, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, exists := v.balances[code]; !exists {
		return nil, ErrAccountNotFound
	}
	out := make([]Posting, len(v.postings[code]))
	for i, p := range v.postings[code] {
		p.Amount = new(big.Int).Set(p.Amount)
		out[i] = p
	}
	return out, nil
}
