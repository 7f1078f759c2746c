package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fundme/fundme/internal/logging"
	"github.com/fundme/fundme/internal/notification"
	"github.com/fundme/fundme/internal/oracle"
	"github.com/fundme/fundme/internal/units"
)

// Service coordinates pool operations with notifications and metrics.
type Service struct {
	ledger   *Ledger
	notifier notification.Notifier
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wraps a ledger. Notifier and metrics are optional.
func NewService(ledger *Ledger, notifier notification.Notifier, metrics *Metrics, logger *slog.Logger) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if notifier == nil {
		notifier = notification.Multi{}
	}
	s := &Service{
		ledger:   ledger,
		notifier: notifier,
		metrics:  metrics,
		logger:   logging.Component(logger, "pool_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.metrics.SetPool(ledger.Name(), ledger.Balance(), ledger.FunderCount())
	return s, nil
}

// FundInput captures a deposit request. Exactly one of AmountEther or
// AmountWei must be set.
type FundInput struct {
	Caller      string
	AmountEther string
	AmountWei   string
}

// FundResult is the receipt of an accepted deposit.
type FundResult struct {
	Contribution
	RecordedAt time.Time
}

// WithdrawResult is the receipt of an owner withdrawal.
type WithdrawResult struct {
	Withdrawal
	RecordedAt time.Time
}

// Summary describes the pool as a whole.
type Summary struct {
	Name        string
	Owner       common.Address
	PriceFeed   common.Address
	Minimum     *big.Int
	Balance     *big.Int
	FunderCount int
}

// Price is a validated feed reading.
type Price struct {
	Feed     common.Address
	Rate     oracle.Rate
	PerEther *big.Int
	ReadAt   time.Time
}

// Ledger exposes the underlying ledger.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Fund parses the request and deposits into the pool.
func (s *Service) Fund(ctx context.Context, input FundInput) (FundResult, error) {
	caller, err := ParseAddress(input.Caller)
	if err != nil {
		s.metrics.ObserveContribution(s.ledger.Name(), OutcomeInvalid)
		return FundResult{}, err
	}
	amount, err := parseAmount(input.AmountEther, input.AmountWei)
	if err != nil {
		s.metrics.ObserveContribution(s.ledger.Name(), OutcomeInvalid)
		return FundResult{}, err
	}

	contribution, err := s.ledger.Fund(ctx, caller, amount)
	s.metrics.ObserveContribution(s.ledger.Name(), outcomeOf(err))
	if err != nil {
		return FundResult{}, err
	}
	s.metrics.SetPool(s.ledger.Name(), s.ledger.Balance(), s.ledger.FunderCount())
	s.metrics.SetRate(s.ledger.PriceFeed().Address().Hex(), contribution.Rate)

	result := FundResult{Contribution: contribution, RecordedAt: s.now()}
	s.notify(ctx, notification.Event{
		Kind:       notification.KindContributionReceived,
		Pool:       s.ledger.Name(),
		Identity:   caller.Hex(),
		AmountWei:  amount.String(),
		Reference:  contribution.Reference,
		OccurredAt: result.RecordedAt,
	})
	s.logger.Info("contribution accepted",
		slog.String("funder", caller.Hex()),
		slog.String("amount_eth", units.FormatEther(amount)),
		slog.String("value_usd", units.FormatUSD(contribution.Value)),
	)
	return result, nil
}

// Withdraw drains the pool on behalf of caller.
func (s *Service) Withdraw(ctx context.Context, callerHex string) (WithdrawResult, error) {
	caller, err := ParseAddress(callerHex)
	if err != nil {
		s.metrics.ObserveWithdrawal(s.ledger.Name(), OutcomeInvalid)
		return WithdrawResult{}, err
	}

	withdrawal, err := s.ledger.Withdraw(ctx, caller)
	s.metrics.ObserveWithdrawal(s.ledger.Name(), outcomeOf(err))
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			s.logger.Warn("withdrawal rejected", slog.String("caller", caller.Hex()))
		}
		return WithdrawResult{}, err
	}
	s.metrics.SetPool(s.ledger.Name(), s.ledger.Balance(), s.ledger.FunderCount())

	result := WithdrawResult{Withdrawal: withdrawal, RecordedAt: s.now()}
	s.notify(ctx, notification.Event{
		Kind:       notification.KindPoolWithdrawn,
		Pool:       s.ledger.Name(),
		Identity:   caller.Hex(),
		AmountWei:  withdrawal.Amount.String(),
		Reference:  withdrawal.Reference,
		OccurredAt: result.RecordedAt,
	})
	s.logger.Info("pool withdrawn",
		slog.String("owner", caller.Hex()),
		slog.String("amount_eth", units.FormatEther(withdrawal.Amount)),
		slog.Int("cleared", withdrawal.Cleared),
	)
	return result, nil
}

// Summary reports the pool configuration and totals.
func (s *Service) Summary(_ context.Context) Summary {
	return Summary{
		Name:        s.ledger.Name(),
		Owner:       s.ledger.Owner(),
		PriceFeed:   s.ledger.PriceFeed().Address(),
		Minimum:     s.ledger.Minimum(),
		Balance:     s.ledger.Balance(),
		FunderCount: s.ledger.FunderCount(),
	}
}

// Price reads the feed and values one ether at the current rate.
func (s *Service) Price(ctx context.Context) (Price, error) {
	rate, err := s.ledger.LatestRate(ctx)
	if err != nil {
		return Price{}, err
	}
	feed := s.ledger.PriceFeed().Address()
	s.metrics.SetRate(feed.Hex(), rate)
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(units.Decimals), nil)
	return Price{
		Feed:     feed,
		Rate:     rate,
		PerEther: ConversionRate(oneEther, rate),
		ReadAt:   s.now(),
	}, nil
}

// Contribution returns the amount funded by the given address.
func (s *Service) Contribution(_ context.Context, address string) (common.Address, *big.Int, error) {
	funder, err := ParseAddress(address)
	if err != nil {
		return common.Address{}, nil, err
	}
	return funder, s.ledger.AmountFunded(funder), nil
}

// Funder returns the roster entry at index and its current contribution.
func (s *Service) Funder(_ context.Context, index int) (common.Address, *big.Int, error) {
	funder, err := s.ledger.Funder(index)
	if err != nil {
		return common.Address{}, nil, err
	}
	return funder, s.ledger.AmountFunded(funder), nil
}

func (s *Service) notify(ctx context.Context, event notification.Event) {
	if err := s.notifier.Send(ctx, event); err != nil {
		s.logger.Warn("notification failed",
			slog.String("kind", event.Kind),
			slog.String("error", err.Error()),
		)
	}
}

// ParseAddress validates a hex account address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", ErrInvalidInput, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(ether, wei string) (*big.Int, error) {
	ether, wei = strings.TrimSpace(ether), strings.TrimSpace(wei)
	switch {
	case ether != "" && wei != "":
		return nil, fmt.Errorf("%w: set amount_eth or amount_wei, not both", ErrInvalidInput)
	case ether != "":
		v, err := units.ParseEther(ether)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return v, nil
	case wei != "":
		v, err := units.ParseWei(wei)
		if err != nil {
			return nil, fmt.Errorf("%w: amount_wei: %w", ErrInvalidInput, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}
}
