package pool

import (
	"errors"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fundme/fundme/internal/oracle"
	"github.com/fundme/fundme/internal/units"
)

// Outcome labels.
const (
	OutcomeAccepted     = "accepted"
	OutcomeInsufficient = "insufficient"
	OutcomeForbidden    = "forbidden"
	OutcomeOracleError  = "oracle_error"
	OutcomeCustodyError = "custody_error"
	OutcomeInvalid      = "invalid"
)

// Metrics holds the pool collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	contributions *prometheus.CounterVec
	withdrawals   *prometheus.CounterVec
	balance       *prometheus.GaugeVec
	funders       *prometheus.GaugeVec
	rate          *prometheus.GaugeVec
}

// NewMetrics creates the pool collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundme",
			Name:      "contributions_total",
			Help:      "Contribution attempts by outcome",
		}, []string{"pool", "outcome"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundme",
			Name:      "withdrawals_total",
			Help:      "Withdrawal attempts by outcome",
		}, []string{"pool", "outcome"}),
		balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fundme",
			Name:      "pool_balance_ether",
			Help:      "Aggregate pool balance in ether",
		}, []string{"pool"}),
		funders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fundme",
			Name:      "pool_funders",
			Help:      "Number of roster entries since the last withdrawal",
		}, []string{"pool"}),
		rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fundme",
			Name:      "price_rate",
			Help:      "Latest reference currency price of one ether",
		}, []string{"feed"}),
	}
	if reg != nil {
		reg.MustRegister(m.contributions, m.withdrawals, m.balance, m.funders, m.rate)
	}
	return m
}

// ObserveContribution counts a contribution attempt.
func (m *Metrics) ObserveContribution(pool, outcome string) {
	if m == nil {
		return
	}
	m.contributions.WithLabelValues(pool, outcome).Inc()
}

// ObserveWithdrawal counts a withdrawal attempt.
func (m *Metrics) ObserveWithdrawal(pool, outcome string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(pool, outcome).Inc()
}

// SetPool records the current balance and roster length.
func (m *Metrics) SetPool(pool string, balance *big.Int, funders int) {
	if m == nil {
		return
	}
	m.balance.WithLabelValues(pool).Set(toFloat(balance, units.Decimals))
	m.funders.WithLabelValues(pool).Set(float64(funders))
}

// SetRate records the latest feed answer scaled by its decimals.
func (m *Metrics) SetRate(feed string, rate oracle.Rate) {
	if m == nil || rate.Value == nil {
		return
	}
	m.rate.WithLabelValues(feed).Set(toFloat(rate.Value, int(rate.Decimals)))
}

func toFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), scale).Float64()
	return f
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ErrInsufficientContribution):
		return OutcomeInsufficient
	case errors.Is(err, ErrNotOwner):
		return OutcomeForbidden
	case errors.Is(err, ErrOracleUnavailable), errors.Is(err, ErrInvalidRate):
		return OutcomeOracleError
	case errors.Is(err, ErrCustodyTransferFailed):
		return OutcomeCustodyError
	default:
		return OutcomeInvalid
	}
}
