package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"

	"github.com/fundme/fundme/internal/custody"
	"github.com/fundme/fundme/internal/logging"
	"github.com/fundme/fundme/internal/oracle"
	"github.com/fundme/fundme/internal/units"
)

// DefaultName is the pool name used when none is configured.
const DefaultName = "default"

// DefaultMinimum is 50 reference units with 18 decimals.
var DefaultMinimum = new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(units.Decimals), nil))

// Options configures a Ledger.
type Options struct {
	Name    string
	Owner   common.Address
	Feed    oracle.PriceFeed
	Vault   custody.Vault
	Minimum *big.Int
	Logger  *slog.Logger
}

// Contribution is the outcome of an accepted deposit.
type Contribution struct {
	Funder     common.Address
	Amount     *big.Int
	Value      *big.Int
	Rate       oracle.Rate
	Total      *big.Int
	Reference  string
	TransferID string
}

// Withdrawal is the outcome of an owner withdrawal.
type Withdrawal struct {
	Owner      common.Address
	Amount     *big.Int
	Cleared    int
	Reference  string
	TransferID string
}

// Ledger tracks contributions to a single pool. Fund and Withdraw hold the
// ledger lock across the custody transfer and the record update, so either both
// happen or neither does.
type Ledger struct {
	name    string
	account string
	owner   common.Address
	feed    oracle.PriceFeed
	vault   custody.Vault
	minimum *big.Int
	logger  *slog.Logger

	mu            sync.Mutex
	contributions map[common.Address]*big.Int
	funders       []common.Address
	balance       *big.Int
}

// New builds a ledger, creating the custody accounts it needs and replaying
// contributions the vault already holds for this pool.
func New(ctx context.Context, opts Options) (*Ledger, error) {
	if opts.Feed == nil {
		return nil, fmt.Errorf("price feed is required")
	}
	if opts.Vault == nil {
		return nil, fmt.Errorf("custody vault is required")
	}
	if opts.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address is required")
	}
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	minimum := DefaultMinimum
	if opts.Minimum != nil {
		if opts.Minimum.Sign() < 0 {
			return nil, fmt.Errorf("minimum contribution must not be negative")
		}
		minimum = opts.Minimum
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	l := &Ledger{
		name:          name,
		account:       custody.PoolAccount(name),
		owner:         opts.Owner,
		feed:          opts.Feed,
		vault:         opts.Vault,
		minimum:       new(big.Int).Set(minimum),
		logger:        logging.Component(logger, "pool").With(slog.String("pool", name)),
		contributions: make(map[common.Address]*big.Int),
		balance:       new(big.Int),
	}

	if err := l.vault.EnsureAccount(ctx, l.account); err != nil {
		return nil, fmt.Errorf("ensure pool account: %w", err)
	}
	if err := l.vault.EnsureAccount(ctx, custody.ExternalAccount(l.owner.Hex())); err != nil {
		return nil, fmt.Errorf("ensure owner account: %w", err)
	}
	if err := l.restore(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Fund deposits amount on behalf of caller if it is worth at least the minimum
// contribution at the current rate.
func (l *Ledger) Fund(ctx context.Context, caller common.Address, amount *big.Int) (Contribution, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Contribution{}, fmt.Errorf("%w: amount must be positive", ErrInsufficientContribution)
	}

	rate, err := l.latestRate(ctx)
	if err != nil {
		return Contribution{}, err
	}
	value := ConversionRate(amount, rate)
	if value.Cmp(l.minimum) < 0 {
		return Contribution{}, fmt.Errorf("%w: worth %s, minimum is %s",
			ErrInsufficientContribution, units.FormatUSD(value), units.FormatUSD(l.minimum))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := custody.ExternalAccount(caller.Hex())
	if err := l.vault.EnsureAccount(ctx, from); err != nil {
		return Contribution{}, fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
	}
	reference := ulid.Make().String()
	receipt, err := l.vault.Transfer(ctx, from, l.account, custody.KindContribution, reference, amount)
	if err != nil {
		return Contribution{}, fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
	}

	total := l.credit(caller, amount)
	l.logger.Debug("contribution credited",
		slog.String("funder", caller.Hex()),
		slog.String("amount_wei", amount.String()),
		slog.String("reference", reference),
	)

	return Contribution{
		Funder:     caller,
		Amount:     new(big.Int).Set(amount),
		Value:      value,
		Rate:       rate,
		Total:      total,
		Reference:  reference,
		TransferID: receipt.TransferID,
	}, nil
}

// Withdraw moves the whole pool to the owner and clears every record.
func (l *Ledger) Withdraw(ctx context.Context, caller common.Address) (Withdrawal, error) {
	if caller != l.owner {
		return Withdrawal{}, ErrNotOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := Withdrawal{
		Owner:   l.owner,
		Amount:  new(big.Int).Set(l.balance),
		Cleared: len(l.funders),
	}
	if l.balance.Sign() > 0 {
		reference := ulid.Make().String()
		receipt, err := l.vault.Transfer(ctx, l.account, custody.ExternalAccount(l.owner.Hex()), custody.KindWithdrawal, reference, l.balance)
		if err != nil {
			return Withdrawal{}, fmt.Errorf("%w: %w", ErrCustodyTransferFailed, err)
		}
		out.Reference = reference
		out.TransferID = receipt.TransferID
	}

	l.reset()
	return out, nil
}

// Name returns the pool name.
func (l *Ledger) Name() string { return l.name }

// Owner returns the only identity allowed to withdraw.
func (l *Ledger) Owner() common.Address { return l.owner }

// PriceFeed returns the feed used to value contributions.
func (l *Ledger) PriceFeed() oracle.PriceFeed { return l.feed }

// Minimum returns the minimum contribution in 18-decimal reference units.
func (l *Ledger) Minimum() *big.Int { return new(big.Int).Set(l.minimum) }

// LatestRate reads the feed and validates the answer.
func (l *Ledger) LatestRate(ctx context.Context) (oracle.Rate, error) {
	return l.latestRate(ctx)
}

// AmountFunded returns what funder has contributed since the last withdrawal.
func (l *Ledger) AmountFunded(funder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.contributions[funder]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Funder returns the identity recorded at position index of the roster.
func (l *Ledger) Funder(index int) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.funders) {
		return common.Address{}, fmt.Errorf("%w: index %d, roster length %d", ErrIndexOutOfRange, index, len(l.funders))
	}
	return l.funders[index], nil
}

// Funders returns a copy of the roster.
func (l *Ledger) Funders() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]common.Address(nil), l.funders...)
}

// FunderCount returns the roster length.
func (l *Ledger) FunderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.funders)
}

// Balance returns the aggregate pool balance in wei.
func (l *Ledger) Balance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance)
}

func (l *Ledger) latestRate(ctx context.Context) (oracle.Rate, error) {
	rate, err := l.feed.LatestRate(ctx)
	if err != nil {
		if errors.Is(err, oracle.ErrInvalidRate) {
			return oracle.Rate{}, fmt.Errorf("%w: %w", ErrInvalidRate, err)
		}
		return oracle.Rate{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if err := oracle.Validate(rate); err != nil {
		return oracle.Rate{}, fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}
	return rate, nil
}

// credit must be called with l.mu held.
func (l *Ledger) credit(funder common.Address, amount *big.Int) *big.Int {
	current, ok := l.contributions[funder]
	if !ok {
		current = new(big.Int)
	}
	total := new(big.Int).Add(current, amount)
	l.contributions[funder] = total
	l.funders = append(l.funders, funder)
	l.balance = new(big.Int).Add(l.balance, amount)
	return new(big.Int).Set(total)
}

// reset must be called with l.mu held.
func (l *Ledger) reset() {
	l.contributions = make(map[common.Address]*big.Int)
	l.funders = nil
	l.balance = new(big.Int)
}

func (l *Ledger) restore(ctx context.Context) error {
	postings, err := l.vault.Postings(ctx, l.account)
	if err != nil {
		return fmt.Errorf("load pool postings: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range postings {
		switch p.Kind {
		case custody.KindContribution:
			identity, ok := custody.IdentityOf(p.Counterparty)
			if !ok || !common.IsHexAddress(identity) || p.Amount.Sign() <= 0 {
				return fmt.Errorf("restore pool: malformed contribution %s", p.TransferID)
			}
			l.credit(common.HexToAddress(identity), p.Amount)
		case custody.KindWithdrawal:
			l.reset()
		default:
			return fmt.Errorf("restore pool: unexpected posting kind %q", p.Kind)
		}
	}

	held, err := l.vault.Balance(ctx, l.account)
	if err != nil {
		return fmt.Errorf("load pool balance: %w", err)
	}
	if held.Cmp(l.balance) != 0 {
		return fmt.Errorf("restore pool: custody holds %s wei but journal replays to %s", held, l.balance)
	}
	if len(postings) > 0 {
		l.logger.Info("pool restored",
			slog.Int("funders", len(l.funders)),
			slog.String("balance_wei", l.balance.String()),
		)
	}
	return nil
}
