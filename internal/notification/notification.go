package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	// KindContributionReceived is emitted after a deposit is credited.
	KindContributionReceived = "contribution_received"
	// KindPoolWithdrawn is emitted after the owner drains a pool.
	KindPoolWithdrawn = "pool_withdrawn"
)

// Event describes a pool lifecycle notification.
type Event struct {
	Kind       string    `json:"kind"`
	Pool       string    `json:"pool"`
	Identity   string    `json:"identity"`
	AmountWei  string    `json:"amount_wei"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", event.Kind),
		slog.String("pool", event.Pool),
		slog.String("identity", event.Identity),
		slog.String("amount_wei", event.AmountWei),
		slog.String("reference", event.Reference),
	)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Send delivers to all notifiers even when some fail.
func (m Multi) Send(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
