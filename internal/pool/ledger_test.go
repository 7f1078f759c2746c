package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fundme/fundme/internal/custody"
	"github.com/fundme/fundme/internal/oracle"
	"github.com/fundme/fundme/internal/units"
)

var (
	deployer  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	funderA   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	funderB   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	outsiderC = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	feedAddr  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := units.ParseEther(s)
	if err != nil {
		t.Fatalf("parse ether %q: %v", s, err)
	}
	return v
}

func mustFund(t *testing.T, l *Ledger, funder common.Address, amountEther string) {
	t.Helper()
	if _, err := l.Fund(context.Background(), funder, ether(t, amountEther)); err != nil {
		t.Fatalf("fund %s from %s: %v", amountEther, funder.Hex(), err)
	}
}

// newTestLedger prices one ether at 2000 reference units with no decimals and
// keeps the default minimum of 50.
func newTestLedger(t *testing.T, vault custody.Vault) (*Ledger, *oracle.StaticFeed) {
	t.Helper()
	if vault == nil {
		vault = custody.NewInMemory()
	}
	feed := oracle.NewStaticFeed(feedAddr, 0, big.NewInt(2000))
	l, err := New(context.Background(), Options{Owner: deployer, Feed: feed, Vault: vault})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l, feed
}

type erroringFeed struct{}

func (erroringFeed) LatestRate(context.Context) (oracle.Rate, error) {
	return oracle.Rate{}, fmt.Errorf("%w: rpc timeout", oracle.ErrUnavailable)
}

func (erroringFeed) Address() common.Address { return feedAddr }

type flakyVault struct {
	custody.Vault
	fail bool
}

func (v *flakyVault) Transfer(ctx context.Context, from, to, kind, ref string, amount *big.Int) (custody.Receipt, error) {
	if v.fail {
		return custody.Receipt{}, errors.New("custody offline")
	}
	return v.Vault.Transfer(ctx, from, to, kind, ref, amount)
}

func TestNewSetsOwnerAndPriceFeed(t *testing.T) {
	l, feed := newTestLedger(t, nil)
	if l.PriceFeed() != feed {
		t.Fatal("expected ledger to keep the injected feed")
	}
	if l.PriceFeed().Address() != feedAddr {
		t.Fatalf("expected feed address %s, got %s", feedAddr.Hex(), l.PriceFeed().Address().Hex())
	}
	if l.Owner() != deployer {
		t.Fatalf("expected owner %s, got %s", deployer.Hex(), l.Owner().Hex())
	}
	if l.Minimum().Cmp(DefaultMinimum) != 0 {
		t.Fatalf("expected default minimum, got %s", l.Minimum())
	}
}

func TestNewValidatesOptions(t *testing.T) {
	ctx := context.Background()
	feed := oracle.NewStaticFeed(feedAddr, 0, big.NewInt(2000))
	if _, err := New(ctx, Options{Owner: deployer, Vault: custody.NewInMemory()}); err == nil {
		t.Fatal("expected missing feed error")
	}
	if _, err := New(ctx, Options{Owner: deployer, Feed: feed}); err == nil {
		t.Fatal("expected missing vault error")
	}
	if _, err := New(ctx, Options{Feed: feed, Vault: custody.NewInMemory()}); err == nil {
		t.Fatal("expected missing owner error")
	}
}

func TestFundRejectsContributionBelowMinimum(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	_, err := l.Fund(ctx, funderA, ether(t, "0.01"))
	if !errors.Is(err, ErrInsufficientContribution) {
		t.Fatalf("expected insufficient contribution, got %v", err)
	}
	if l.AmountFunded(funderA).Sign() != 0 {
		t.Fatalf("expected no credit, got %s", l.AmountFunded(funderA))
	}
	if l.FunderCount() != 0 || l.Balance().Sign() != 0 {
		t.Fatalf("expected untouched ledger, roster=%d balance=%s", l.FunderCount(), l.Balance())
	}

	if _, err := l.Fund(ctx, funderA, big.NewInt(0)); !errors.Is(err, ErrInsufficientContribution) {
		t.Fatalf("expected zero amount to be rejected, got %v", err)
	}
	if _, err := l.Fund(ctx, funderA, nil); !errors.Is(err, ErrInsufficientContribution) {
		t.Fatalf("expected nil amount to be rejected, got %v", err)
	}
}

func TestFundCreditsContribution(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()
	amount := ether(t, "0.03")

	res, err := l.Fund(ctx, funderA, amount)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if res.Value.Cmp(ether(t, "60")) != 0 {
		t.Fatalf("expected value of 60, got %s", units.FormatUSD(res.Value))
	}
	if l.AmountFunded(funderA).Cmp(amount) != 0 {
		t.Fatalf("expected %s funded, got %s", amount, l.AmountFunded(funderA))
	}
	if l.FunderCount() != 1 {
		t.Fatalf("expected roster length 1, got %d", l.FunderCount())
	}
	funder, err := l.Funder(0)
	if err != nil {
		t.Fatalf("funder(0): %v", err)
	}
	if funder != funderA {
		t.Fatalf("expected funder %s, got %s", funderA.Hex(), funder.Hex())
	}
	if res.Reference == "" || res.TransferID == "" {
		t.Fatalf("expected transfer reference, got %+v", res)
	}
}

func TestFundAcceptsExactMinimum(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	if _, err := l.Fund(context.Background(), funderA, ether(t, "0.025")); err != nil {
		t.Fatalf("expected contribution worth exactly the minimum to pass, got %v", err)
	}

	// one wei less falls below the threshold after truncation
	below := new(big.Int).Sub(ether(t, "0.025"), big.NewInt(1))
	if _, err := l.Fund(context.Background(), funderB, below); !errors.Is(err, ErrInsufficientContribution) {
		t.Fatalf("expected insufficient contribution, got %v", err)
	}
}

func TestFundTwiceAccumulatesAndAppends(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	if _, err := l.Fund(ctx, funderA, ether(t, "1")); err != nil {
		t.Fatalf("first fund: %v", err)
	}
	res, err := l.Fund(ctx, funderA, ether(t, "0.5"))
	if err != nil {
		t.Fatalf("second fund: %v", err)
	}
	if res.Total.Cmp(ether(t, "1.5")) != 0 {
		t.Fatalf("expected total 1.5 ether, got %s", units.FormatEther(res.Total))
	}
	if l.FunderCount() != 2 {
		t.Fatalf("expected two roster entries, got %d", l.FunderCount())
	}
	funders := l.Funders()
	if funders[0] != funderA || funders[1] != funderA {
		t.Fatalf("unexpected roster %v", funders)
	}
}

func TestWithdrawFromSingleFunder(t *testing.T) {
	vault := custody.NewInMemory()
	l, _ := newTestLedger(t, vault)
	ctx := context.Background()
	ownerAccount := custody.ExternalAccount(deployer.Hex())

	if _, err := l.Fund(ctx, deployer, ether(t, "1")); err != nil {
		t.Fatalf("fund: %v", err)
	}
	startingOwner, err := vault.Balance(ctx, ownerAccount)
	if err != nil {
		t.Fatalf("owner balance: %v", err)
	}
	startingPool := l.Balance()

	res, err := l.Withdraw(ctx, deployer)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Amount.Cmp(startingPool) != 0 {
		t.Fatalf("expected %s withdrawn, got %s", startingPool, res.Amount)
	}

	endingPool, err := vault.Balance(ctx, custody.PoolAccount(DefaultName))
	if err != nil {
		t.Fatalf("pool balance: %v", err)
	}
	if endingPool.Sign() != 0 || l.Balance().Sign() != 0 {
		t.Fatalf("expected empty pool, custody=%s ledger=%s", endingPool, l.Balance())
	}
	endingOwner, _ := vault.Balance(ctx, ownerAccount)
	if new(big.Int).Add(startingOwner, startingPool).Cmp(endingOwner) != 0 {
		t.Fatalf("expected owner balance %s+%s, got %s", startingOwner, startingPool, endingOwner)
	}
}

func TestWithdrawWithMultipleFunders(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	accounts := []common.Address{deployer, funderA, funderB, outsiderC,
		common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"),
		common.HexToAddress("0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc"),
	}
	for _, a := range accounts {
		if _, err := l.Fund(ctx, a, ether(t, "1")); err != nil {
			t.Fatalf("fund %s: %v", a.Hex(), err)
		}
	}
	if l.Balance().Cmp(ether(t, "6")) != 0 {
		t.Fatalf("expected 6 ether pooled, got %s", units.FormatEther(l.Balance()))
	}

	res, err := l.Withdraw(ctx, deployer)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Cleared != len(accounts) {
		t.Fatalf("expected %d roster entries cleared, got %d", len(accounts), res.Cleared)
	}
	if l.Balance().Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", l.Balance())
	}
	if _, err := l.Funder(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected roster to be reset, got %v", err)
	}
	for _, a := range accounts {
		if got := l.AmountFunded(a); got.Sign() != 0 {
			t.Fatalf("expected %s reset to zero, got %s", a.Hex(), got)
		}
	}
}

func TestWithdrawTwoFundersScenario(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	mustFund(t, l, funderA, "1")
	mustFund(t, l, funderB, "1")

	if _, err := l.Withdraw(ctx, deployer); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if l.Balance().Sign() != 0 || l.FunderCount() != 0 {
		t.Fatalf("expected reset ledger, balance=%s roster=%d", l.Balance(), l.FunderCount())
	}
	if l.AmountFunded(funderA).Sign() != 0 || l.AmountFunded(funderB).Sign() != 0 {
		t.Fatal("expected funded amounts to be cleared")
	}
}

func TestWithdrawRejectsNonOwner(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()

	mustFund(t, l, funderA, "1")
	mustFund(t, l, funderB, "1")
	beforeA, beforeB, beforeBal := l.AmountFunded(funderA), l.AmountFunded(funderB), l.Balance()

	for i := 0; i < 2; i++ {
		if _, err := l.Withdraw(ctx, outsiderC); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("expected not owner, got %v", err)
		}
	}
	if l.AmountFunded(funderA).Cmp(beforeA) != 0 || l.AmountFunded(funderB).Cmp(beforeB) != 0 {
		t.Fatal("expected contributions to survive a rejected withdrawal")
	}
	if l.Balance().Cmp(beforeBal) != 0 || l.FunderCount() != 2 {
		t.Fatalf("expected untouched ledger, balance=%s roster=%d", l.Balance(), l.FunderCount())
	}
}

func TestWithdrawEmptyPool(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	res, err := l.Withdraw(context.Background(), deployer)
	if err != nil {
		t.Fatalf("withdraw empty pool: %v", err)
	}
	if res.Amount.Sign() != 0 || res.TransferID != "" {
		t.Fatalf("expected no transfer for an empty pool, got %+v", res)
	}
}

func TestFunderIndexOutOfRange(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	mustFund(t, l, funderA, "1")

	if _, err := l.Funder(1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range at roster length, got %v", err)
	}
	if _, err := l.Funder(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range for negative index, got %v", err)
	}
}

func TestFundRejectsBrokenRates(t *testing.T) {
	l, feed := newTestLedger(t, nil)
	ctx := context.Background()

	feed.UpdateAnswer(big.NewInt(0))
	if _, err := l.Fund(ctx, funderA, ether(t, "100")); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected invalid rate for zero answer, got %v", err)
	}
	feed.UpdateAnswer(big.NewInt(-2000))
	if _, err := l.Fund(ctx, funderA, ether(t, "100")); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected invalid rate for negative answer, got %v", err)
	}
	if l.FunderCount() != 0 {
		t.Fatalf("expected no roster entries, got %d", l.FunderCount())
	}
}

func TestFundOracleUnavailable(t *testing.T) {
	l, err := New(context.Background(), Options{Owner: deployer, Feed: erroringFeed{}, Vault: custody.NewInMemory()})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := l.Fund(context.Background(), funderA, ether(t, "1")); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected oracle unavailable, got %v", err)
	}
}

func TestFundCustodyFailureLeavesStateUnchanged(t *testing.T) {
	vault := &flakyVault{Vault: custody.NewInMemory()}
	l, _ := newTestLedger(t, vault)
	ctx := context.Background()

	vault.fail = true
	if _, err := l.Fund(ctx, funderA, ether(t, "1")); !errors.Is(err, ErrCustodyTransferFailed) {
		t.Fatalf("expected custody failure, got %v", err)
	}
	if l.AmountFunded(funderA).Sign() != 0 || l.FunderCount() != 0 || l.Balance().Sign() != 0 {
		t.Fatal("expected no credit after failed custody transfer")
	}
}

func TestWithdrawCustodyFailureKeepsRecords(t *testing.T) {
	vault := &flakyVault{Vault: custody.NewInMemory()}
	l, _ := newTestLedger(t, vault)
	ctx := context.Background()

	mustFund(t, l, funderA, "1")
	vault.fail = true
	if _, err := l.Withdraw(ctx, deployer); !errors.Is(err, ErrCustodyTransferFailed) {
		t.Fatalf("expected custody failure, got %v", err)
	}
	if l.AmountFunded(funderA).Cmp(ether(t, "1")) != 0 || l.FunderCount() != 1 {
		t.Fatal("expected records to survive a failed withdrawal")
	}

	vault.fail = false
	if _, err := l.Withdraw(ctx, deployer); err != nil {
		t.Fatalf("retry withdraw: %v", err)
	}
	if l.Balance().Sign() != 0 {
		t.Fatalf("expected empty pool after retry, got %s", l.Balance())
	}
}

func TestBalanceEqualsSumOfContributions(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	funders := []common.Address{funderA, funderB, outsiderC, deployer}

	minimum := ether(t, "0.025")
	accepted := 0
	for i := 0; i < 50; i++ {
		// between 0.001 and 0.1 ether, so some deposits fall below the minimum
		amount := new(big.Int).Mul(big.NewInt(rng.Int63n(100)+1), big.NewInt(1_000_000_000_000_000))
		_, err := l.Fund(ctx, funders[rng.Intn(len(funders))], amount)
		switch {
		case amount.Cmp(minimum) >= 0:
			if err != nil {
				t.Fatalf("fund %s wei: %v", amount, err)
			}
			accepted++
		case !errors.Is(err, ErrInsufficientContribution):
			t.Fatalf("expected %s wei to be rejected as insufficient, got %v", amount, err)
		}
	}
	if accepted == 0 || l.FunderCount() != accepted {
		t.Fatalf("expected %d roster entries, got %d", accepted, l.FunderCount())
	}

	sum := new(big.Int)
	for _, f := range funders {
		sum.Add(sum, l.AmountFunded(f))
	}
	if sum.Cmp(l.Balance()) != 0 {
		t.Fatalf("balance %s does not equal sum of contributions %s", l.Balance(), sum)
	}
	for i := 0; i < l.FunderCount(); i++ {
		f, _ := l.Funder(i)
		if l.AmountFunded(f).Sign() <= 0 {
			t.Fatalf("roster entry %d (%s) has no contribution", i, f.Hex())
		}
	}
}

func TestConcurrentFunding(t *testing.T) {
	vault := custody.NewInMemory()
	l, _ := newTestLedger(t, vault)
	ctx := context.Background()

	const workers = 20
	amount := ether(t, "0.1")
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			funder := funderA
			if i%2 == 1 {
				funder = funderB
			}
			if _, err := l.Fund(ctx, funder, amount); err != nil {
				t.Errorf("fund %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if l.FunderCount() != workers {
		t.Fatalf("expected %d roster entries, got %d", workers, l.FunderCount())
	}
	held, err := vault.Balance(ctx, custody.PoolAccount(DefaultName))
	if err != nil {
		t.Fatalf("pool balance: %v", err)
	}
	if held.Cmp(l.Balance()) != 0 || held.Cmp(ether(t, "2")) != 0 {
		t.Fatalf("expected 2 ether in custody and ledger, custody=%s ledger=%s", held, l.Balance())
	}
}

func TestNewRestoresFromCustodyJournal(t *testing.T) {
	vault := custody.NewInMemory()
	ctx := context.Background()
	first, _ := newTestLedger(t, vault)

	mustFund(t, first, funderA, "1")
	if _, err := first.Withdraw(ctx, deployer); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustFund(t, first, funderB, "0.5")
	mustFund(t, first, funderA, "0.25")

	second, _ := newTestLedger(t, vault)
	if second.Balance().Cmp(first.Balance()) != 0 {
		t.Fatalf("expected restored balance %s, got %s", first.Balance(), second.Balance())
	}
	if second.FunderCount() != 2 {
		t.Fatalf("expected two restored roster entries, got %d", second.FunderCount())
	}
	if second.AmountFunded(funderA).Cmp(ether(t, "0.25")) != 0 {
		t.Fatalf("expected funder A at 0.25 ether after restore, got %s", units.FormatEther(second.AmountFunded(funderA)))
	}
	if f, _ := second.Funder(0); f != funderB {
		t.Fatalf("expected roster order to survive restore, got %s", f.Hex())
	}
}

func TestNewRejectsJournalMismatch(t *testing.T) {
	vault := custody.NewInMemory()
	ctx := context.Background()
	vault.EnsureAccount(ctx, custody.PoolAccount(DefaultName))
	custody.SeedBalance(vault, custody.PoolAccount(DefaultName), big.NewInt(10))

	feed := oracle.NewStaticFeed(feedAddr, 0, big.NewInt(2000))
	if _, err := New(ctx, Options{Owner: deployer, Feed: feed, Vault: vault}); err == nil {
		t.Fatal("expected restore to fail when custody and journal disagree")
	}
}
