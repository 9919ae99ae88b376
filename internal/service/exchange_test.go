package service

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/metrics"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
	"github.com/zakhard90/chainlink-price-feed/internal/state"
	"github.com/zakhard90/chainlink-price-feed/internal/storage"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
)

var (
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyerAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testCfg   = Config{
		Owner:         ownerAddr,
		TraderAddress: common.HexToAddress("0x00000000000000000000000000000000000000f6"),
		TokenAddress:  common.HexToAddress("0x00000000000000000000000000000000000000d4"),
		TokenName:     "Test Token",
		TokenSymbol:   "TT",
	}
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(100_000_000))
}

func newFeed() *feed.Mock {
	m := feed.NewMock(common.HexToAddress("0x00000000000000000000000000000000000000e5"))
	m.SetPrice(usd(3800))
	m.SetUpdateTime(1_700_000_000)
	m.SetRoundID(1)
	m.SetAnsweredInRound(1)
	return m
}

func clock() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestNewValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{TraderAddress: testCfg.TraderAddress}, newFeed()); err == nil {
		t.Fatalf("expected error for missing owner")
	}
	if _, err := New(ctx, testCfg, nil); !errors.Is(err, trader.ErrInvalidFeedAddress) {
		t.Fatalf("nil feed: got %v", err)
	}
	cfg := testCfg
	cfg.TokenAddress = common.Address{}
	if _, err := New(ctx, cfg, newFeed()); !errors.Is(err, trader.ErrInvalidTokenAddress) {
		t.Fatalf("zero token: got %v", err)
	}
}

func TestPurchaseWithdrawAndRestore(t *testing.T) {
	ctx := context.Background()
	store := &state.Memory{}
	ex, err := New(ctx, testCfg, newFeed(), WithStore(store), WithClock(clock))
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}

	if _, err := ex.Purchase(ctx, buyerAddr, ether(2)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := ex.UpdateTokenPrice(ctx, ownerAddr, big.NewInt(400)); err != nil {
		t.Fatalf("update price: %v", err)
	}
	if _, err := ex.Purchase(ctx, buyerAddr, ether(1)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := ex.Withdraw(ctx, ownerAddr); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	wantTokens := new(big.Int).Add(usd(3800), usd(950))
	acct, err := ex.Account(ctx, buyerAddr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.Tokens.Cmp(wantTokens) != 0 {
		t.Fatalf("buyer tokens: got %s want %s", acct.Tokens, wantTokens)
	}
	if owner, _ := ex.Account(ctx, ownerAddr); owner.Payout.Cmp(ether(3)) != 0 {
		t.Fatalf("owner payout: got %s", owner.Payout)
	}

	snap, ok, _ := store.Load(ctx)
	if !ok || snap.Sequence != 4 {
		t.Fatalf("snapshot not persisted: ok=%v seq=%d", ok, snap.Sequence)
	}

	restored, err := New(ctx, testCfg, newFeed(), WithStore(store), WithClock(clock))
	if err != nil {
		t.Fatalf("restore exchange: %v", err)
	}
	st, err := restored.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.TokenPrice.Int64() != 400 || st.Balance.Sign() != 0 || st.Sequence != 4 {
		t.Fatalf("restored state: %+v", st)
	}
	if st.TotalSupply.Cmp(wantTokens) != 0 {
		t.Fatalf("restored supply: got %s", st.TotalSupply)
	}
	if owner, _ := restored.Account(ctx, ownerAddr); owner.Payout.Cmp(ether(3)) != 0 {
		t.Fatalf("restored payout: got %s", owner.Payout)
	}

	// the restored trader is still the authorized minter
	if _, err := restored.Purchase(ctx, buyerAddr, ether(1)); err != nil {
		t.Fatalf("purchase after restore: %v", err)
	}
}

func TestRejectedCallIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := &state.Memory{}
	ex, err := New(ctx, testCfg, newFeed(), WithStore(store))
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	if _, err := ex.Withdraw(ctx, buyerAddr); !errors.Is(err, trader.ErrUnauthorized) {
		t.Fatalf("non-owner withdraw: got %v", err)
	}
	if _, ok, _ := store.Load(ctx); ok {
		t.Fatalf("rejected call persisted a snapshot")
	}
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	ex, err := New(ctx, testCfg, newFeed())
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	q, err := ex.Quote(ctx, ether(1))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Tokens.Cmp(usd(1900)) != 0 || q.Price.Cmp(usd(3800)) != 0 || q.TokenPrice.Int64() != 200 {
		t.Fatalf("quote: %+v", q)
	}
	if st, _ := ex.State(ctx); st.Balance.Sign() != 0 {
		t.Fatalf("quote changed the balance")
	}
	if _, err := ex.Quote(ctx, big.NewInt(-1)); !errors.Is(err, trader.ErrInvalidPaymentAmount) {
		t.Fatalf("negative quote: got %v", err)
	}
}

func TestSinksAndMetricsAreWired(t *testing.T) {
	ctx := context.Background()
	journal := storage.NewJsonlStorage(filepath.Join(t.TempDir(), "events.jsonl"))
	m := metrics.New("svc")
	priceFeed := newFeed()
	ex, err := New(ctx, testCfg, priceFeed, WithSink(storage.Sink(journal)), WithMetrics(m))
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}

	if _, err := ex.Purchase(ctx, buyerAddr, ether(1)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	priceFeed.SetAnsweredInRound(0)
	if _, err := ex.Purchase(ctx, buyerAddr, ether(1)); !errors.Is(err, trader.ErrInvalidPriceFeedResponse) {
		t.Fatalf("stale feed purchase: got %v", err)
	}

	records, err := storage.ReadJsonl(journal.Path())
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(records) != 1 || records[0].Name != model.EventTokensPurchased {
		t.Fatalf("journal: %+v", records)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		"svc_purchases_total 1",
		`svc_oracle_reads_total{result="ok"} 1`,
		`svc_oracle_reads_total{result="invalid"} 1`,
		`svc_rejections_total{error="InvalidPriceFeedResponse",operation="purchase"} 1`,
		"svc_token_price_cents 200",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

type recordingStore struct {
	state.Memory
	saved []model.Snapshot
}

func (s *recordingStore) Save(ctx context.Context, snap model.Snapshot) error {
	s.saved = append(s.saved, snap)
	return s.Memory.Save(ctx, snap)
}

func TestFailedMintIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	ex, err := New(ctx, testCfg, newFeed(), WithStore(store), WithClock(clock))
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}

	if _, err := ex.Purchase(ctx, buyerAddr, ether(1)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := ex.Purchase(ctx, common.Address{}, ether(2)); err == nil {
		t.Fatalf("expected mint to the zero address to fail")
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(store.saved))
	}
	saved := store.saved[0]
	if saved.Sequence != 1 || saved.Exchange.Balance != ether(1).String() || saved.Token.TotalSupply != usd(1900).String() {
		t.Fatalf("persisted snapshot: %+v", saved)
	}

	snap, err := ex.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Exchange.Balance != saved.Exchange.Balance || snap.Sequence != saved.Sequence {
		t.Fatalf("live snapshot %+v differs from persisted %+v", snap.Exchange, saved.Exchange)
	}
}
