package custody

import (
	"context"
	"errors"
	"math/big"
	"strings"
)

var (
	// ErrInsufficientFunds occurs when a bounded account lacks the balance to
	// cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransfer indicates the kind/reference pair was already posted.
	ErrDuplicateTransfer = errors.New("duplicate transfer")

	// ErrAccountNotFound indicates one side of a transfer has no account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount rejects zero, negative and missing amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// KindContribution moves value from a contributor into a pool.
	KindContribution = "contribution"
	// KindWithdrawal moves the whole pool out to its owner.
	KindWithdrawal = "withdrawal"

	poolPrefix     = "pool:"
	externalPrefix = "external:"
)

// Receipt captures the outcome of a posted transfer.
type Receipt struct {
	TransferID  string
	Reference   string
	Kind        string
	FromBalance *big.Int
	ToBalance   *big.Int
}

// Posting is one side of a transfer as seen from a single account. Amount is
// positive for credits and negative for debits.
type Posting struct {
	TransferID   string
	Reference    string
	Kind         string
	Counterparty string
	Amount       *big.Int
}

// Vault is the double-entry journal that holds pooled value.
type Vault interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (*big.Int, error)
	Transfer(ctx context.Context, fromCode, toCode, kind, reference string, amount *big.Int) (Receipt, error)
	Postings(ctx context.Context, code string) ([]Posting, error)
}

// PoolAccount returns the account code holding a pool's value.
func PoolAccount(name string) string {
	return poolPrefix + name
}

// ExternalAccount returns the account code representing funds an identity
// holds outside any pool.
func ExternalAccount(identity string) string {
	return externalPrefix + identity
}

// IdentityOf extracts the identity from an external account code.
func IdentityOf(code string) (string, bool) {
	if !strings.HasPrefix(code, externalPrefix) {
		return "", false
	}
	return strings.TrimPrefix(code, externalPrefix), true
}

// unbounded accounts stand for value outside custody and may go negative.
func unbounded(code string) bool {
	return strings.HasPrefix(code, externalPrefix)
}
