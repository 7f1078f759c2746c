package monitor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fundme/fundme/internal/custody"
	"github.com/fundme/fundme/internal/oracle"
	"github.com/fundme/fundme/internal/pool"
	"github.com/fundme/fundme/internal/units"
)

var (
	owner    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	funder   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	feedAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func setup(t *testing.T) (*Monitor, *oracle.StaticFeed, *prometheus.Registry, *pool.Ledger) {
	t.Helper()
	feed := oracle.NewStaticFeed(feedAddr, oracle.MockDecimals, big.NewInt(oracle.MockAnswer))
	ledger, err := pool.New(context.Background(), pool.Options{Owner: owner, Feed: feed, Vault: custody.NewInMemory()})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	reg := prometheus.NewRegistry()
	return New(ledger, pool.NewMetrics(reg), nil), feed, reg, ledger
}

func TestSnapshotUpdatesGauges(t *testing.T) {
	m, _, reg, ledger := setup(t)
	ctx := context.Background()

	amount, _ := units.ParseEther("1.5")
	if _, err := ledger.Fund(ctx, funder, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Funders != 1 || snap.Balance.Cmp(amount) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	expected := `
# HELP fundme_pool_balance_ether Aggregate pool balance in ether
# TYPE fundme_pool_balance_ether gauge
fundme_pool_balance_ether{pool="default"} 1.5
# HELP fundme_price_rate Latest reference currency price of one ether
# TYPE fundme_price_rate gauge
fundme_price_rate{feed="0x5FbDB2315678afecb367f032d93F642f64180aa3"} 2000
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "fundme_pool_balance_ether", "fundme_price_rate"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestSnapshotReportsFeedFailure(t *testing.T) {
	m, feed, _, _ := setup(t)
	feed.UpdateAnswer(big.NewInt(0))

	snap, err := m.Snapshot(context.Background())
	if !errors.Is(err, pool.ErrInvalidRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}
	if snap.Balance == nil {
		t.Fatal("expected pool fields to be filled even when the feed fails")
	}
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	m, _, _, _ := setup(t)
	if err := m.Register("every minute"); err == nil {
		t.Fatal("expected invalid cron spec to fail")
	}
	if err := m.Register("0 * * * * *"); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	m, _, _, _ := setup(t)
	if err := m.Register("* * * * * *"); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Stop(ctx)
}
