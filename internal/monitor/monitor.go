package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fundme/fundme/internal/logging"
	"github.com/fundme/fundme/internal/oracle"
	"github.com/fundme/fundme/internal/pool"
	"github.com/fundme/fundme/internal/units"
)

const snapshotTimeout = 10 * time.Second

// Snapshot is one periodic reading of the pool and its feed.
type Snapshot struct {
	Rate    oracle.Rate
	Balance *big.Int
	Funders int
	TakenAt time.Time
}

// Monitor periodically records pool and price gauges.
type Monitor struct {
	cron    *cron.Cron
	ledger  *pool.Ledger
	metrics *pool.Metrics
	logger  *slog.Logger
}

// New creates a monitor. Schedules use six fields, seconds first.
func New(ledger *pool.Ledger, metrics *pool.Metrics, logger *slog.Logger) *Monitor {
	return &Monitor{
		cron:    cron.New(cron.WithSeconds()),
		ledger:  ledger,
		metrics: metrics,
		logger:  logging.Component(logger, "monitor"),
	}
}

// Register schedules the snapshot job.
func (m *Monitor) Register(spec string) error {
	if _, err := m.cron.AddFunc(spec, m.run); err != nil {
		return fmt.Errorf("register snapshot job: %w", err)
	}
	return nil
}

// Start runs the scheduler in the background.
func (m *Monitor) Start() {
	m.cron.Start()
	m.logger.Info("monitor started")
}

// Stop halts the scheduler and waits for a running job to finish or ctx to
// expire.
func (m *Monitor) Stop(ctx context.Context) {
	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	m.logger.Info("monitor stopped")
}

// Snapshot reads the pool state and feed, updating gauges. Pool gauges are
// updated even when the feed cannot be read.
func (m *Monitor) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Balance: m.ledger.Balance(),
		Funders: m.ledger.FunderCount(),
		TakenAt: time.Now().UTC(),
	}
	m.metrics.SetPool(m.ledger.Name(), snap.Balance, snap.Funders)

	rate, err := m.ledger.LatestRate(ctx)
	if err != nil {
		return snap, err
	}
	snap.Rate = rate
	m.metrics.SetRate(m.ledger.PriceFeed().Address().Hex(), rate)
	return snap, nil
}

func (m *Monitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	snap, err := m.Snapshot(ctx)
	if err != nil {
		m.logger.Warn("price feed read failed", slog.Any("error", err))
		return
	}
	m.logger.Info("pool snapshot",
		slog.String("pool", m.ledger.Name()),
		slog.String("balance_eth", units.FormatEther(snap.Balance)),
		slog.Int("funders", snap.Funders),
		slog.String("rate", snap.Rate.Value.String()),
		slog.Int("rate_decimals", int(snap.Rate.Decimals)),
	)
}
