package trader

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

const (
	// InitialTokenPrice is the unit token price at creation: $2.00 with 2 decimals.
	InitialTokenPrice = 200
	// MaxPurchaseEther is the purchase ceiling in whole ether.
	MaxPurchaseEther = 100
)

// MaxPurchase returns the purchase ceiling in wei.
func MaxPurchase() *big.Int {
	return new(big.Int).Mul(big.NewInt(MaxPurchaseEther), weiPerEther.ToBig())
}

// Minter is the token ledger capability the exchange needs.
type Minter interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
}

// Payee receives withdrawn native currency.
type Payee interface {
	Pay(ctx context.Context, to common.Address, amount *big.Int) error
}

// addresser is implemented by collaborators that have an on-chain identity.
type addresser interface {
	Address() common.Address
}

// Option configures a Trader.
type Option func(*Trader)

// WithAddress sets the exchange's own identity, used as the event emitter.
func WithAddress(address common.Address) Option {
	return func(t *Trader) {
		t.address = address
	}
}

// WithPayee sets where withdrawals are paid.
func WithPayee(p Payee) Option {
	return func(t *Trader) {
		t.payee = p
	}
}

// WithSink adds an event sink. Multiple sinks receive events in order.
func WithSink(s EventSink) Option {
	return func(t *Trader) {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
}

// WithLogger installs a logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trader) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithCommitHook registers fn to run after every committed call, while the
// call still holds the transaction boundary. Persisting a snapshot from fn
// therefore never observes another call half way through.
func WithCommitHook(fn func(ctx context.Context)) Option {
	return func(t *Trader) {
		if fn != nil {
			t.hooks = append(t.hooks, fn)
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Trader) {
		if now != nil {
			t.now = now
		}
	}
}

type callKey struct{}

// books is the mutable exchange state.
type books struct {
	tokenPrice *big.Int
	balance    *big.Int
	seq        uint64
}

func (b books) clone() books {
	return books{
		tokenPrice: new(big.Int).Set(b.tokenPrice),
		balance:    new(big.Int).Set(b.balance),
		seq:        b.seq,
	}
}

// Trader is the exchange core: it prices purchases against the oracle, mints
// tokens to buyers and holds the accumulated payments for the owner.
//
// Mutating calls are serialized by txMu and either commit fully or leave the
// state untouched. A call updates its working books before it talks to the
// token or the payee; readers outside the call only see the books as of the
// last commit. Collaborator callbacks that re-enter the exchange with the
// context they were given fail with ErrReentrantCall.
type Trader struct {
	owner   common.Address
	address common.Address
	token   Minter
	feed    feed.Feed
	payee   Payee
	sinks   []EventSink
	hooks   []func(ctx context.Context)
	logger  *zap.Logger
	now     func() time.Time

	// working is owned by the call holding txMu.
	txMu    sync.Mutex
	working books

	mu        sync.RWMutex
	committed books
}

// New creates an exchange owned by owner. The token and feed must be non-nil
// and, when they expose an address, non-zero.
func New(owner common.Address, token Minter, priceFeed feed.Feed, opts ...Option) (*Trader, error) {
	if token == nil || zeroAddress(token) {
		return nil, ErrInvalidTokenAddress
	}
	if priceFeed == nil || zeroAddress(priceFeed) {
		return nil, ErrInvalidFeedAddress
	}

	t := &Trader{
		owner:  owner,
		token:  token,
		feed:   priceFeed,
		logger: zap.NewNop(),
		now:    time.Now,
		working: books{
			tokenPrice: big.NewInt(InitialTokenPrice),
			balance:    big.NewInt(0),
		},
	}
	t.committed = t.working.clone()
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func zeroAddress(v interface{}) bool {
	a, ok := v.(addresser)
	return ok && a.Address() == (common.Address{})
}

func (t *Trader) Owner() common.Address { return t.owner }
func (t *Trader) Address() common.Address { return t.address }
func (t *Trader) Token() Minter { return t.token }
func (t *Trader) Feed() feed.Feed { return t.feed }
func (t *Trader) MaxPurchase() *big.Int { return MaxPurchase() }

// TokenPrice returns the committed unit token price (2 implied decimals).
func (t *Trader) TokenPrice() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.committed.tokenPrice)
}

// Balance returns the committed payment balance in wei.
func (t *Trader) Balance() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.committed.balance)
}

// Sequence returns the number of committed events.
func (t *Trader) Sequence() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.committed.seq
}

// View returns the exchange state as seen from ctx. Inside a call, that is a
// collaborator handed the call's context, it includes the call's pending
// effects; everywhere else it is the committed state.
func (t *Trader) View(ctx context.Context) model.ExchangeSnapshot {
	if t.inCall(ctx) {
		return t.snapshotOf(t.working)
	}
	return t.Snapshot()
}

// Hold runs fn while no call is in flight, so everything fn reads from the
// exchange and its ledgers belongs to one committed state. Calling Hold from
// inside a call fails with ErrReentrantCall.
func (t *Trader) Hold(ctx context.Context, fn func() error) error {
	if _, err := t.begin(ctx); err != nil {
		return err
	}
	defer t.txMu.Unlock()
	return fn()
}

// GetPriceFeedData reads and validates a fresh oracle price (8 decimals).
func (t *Trader) GetPriceFeedData(ctx context.Context) (*big.Int, error) {
	return feed.PriceFeedData(ctx, t.feed)
}

// TokenAmount converts a wei payment into a token quantity at the current
// oracle price and unit token price.
func (t *Trader) TokenAmount(ctx context.Context, payment *big.Int) (*big.Int, error) {
	return t.tokenAmount(ctx, payment, t.TokenPrice())
}

// Quote returns the validated oracle price together with the token amount
// it buys for payment, both from a single oracle read.
func (t *Trader) Quote(ctx context.Context, payment *big.Int) (price, tokens *big.Int, err error) {
	if payment == nil || payment.Sign() < 0 {
		return nil, nil, ErrInvalidPaymentAmount
	}
	price, err = t.GetPriceFeedData(ctx)
	if err != nil {
		return nil, nil, err
	}
	tokens, err = convert(payment, price, t.TokenPrice())
	if err != nil {
		return nil, nil, err
	}
	return price, tokens, nil
}

func (t *Trader) tokenAmount(ctx context.Context, payment, unitPrice *big.Int) (*big.Int, error) {
	if payment == nil || payment.Sign() < 0 {
		return nil, ErrInvalidPaymentAmount
	}
	price, err := t.GetPriceFeedData(ctx)
	if err != nil {
		return nil, err
	}
	return convert(payment, price, unitPrice)
}

// Receive handles an inbound payment from buyer: it mints the converted token
// amount to the buyer and keeps the payment.
func (t *Trader) Receive(ctx context.Context, buyer common.Address, value *big.Int) (model.TokensPurchased, error) {
	ctx, err := t.begin(ctx)
	if err != nil {
		return model.TokensPurchased{}, err
	}
	defer t.txMu.Unlock()

	if value == nil || value.Sign() <= 0 {
		return model.TokensPurchased{}, ErrInvalidPaymentAmount
	}
	if value.Cmp(MaxPurchase()) > 0 {
		return model.TokensPurchased{}, ErrValueExceedsMaxPurchase
	}

	tokens, err := t.tokenAmount(ctx, value, t.working.tokenPrice)
	if err != nil {
		return model.TokensPurchased{}, err
	}

	paid := new(big.Int).Set(value)
	t.working.balance.Add(t.working.balance, paid)

	if err := t.token.Mint(ctx, buyer, tokens); err != nil {
		t.working.balance.Sub(t.working.balance, paid)
		return model.TokensPurchased{}, fmt.Errorf("mint: %w", err)
	}

	ev := model.TokensPurchased{Buyer: buyer, EthAmount: paid, TokenAmount: tokens}
	t.logger.Info("tokens purchased",
		zap.String("buyer", buyer.Hex()),
		zap.String("eth_amount", paid.String()),
		zap.String("token_amount", tokens.String()),
	)
	t.commit(ctx, ev)
	return ev, nil
}

// UpdateTokenPrice replaces the unit token price. Owner only.
func (t *Trader) UpdateTokenPrice(ctx context.Context, caller common.Address, newPrice *big.Int) (model.TokenPriceUpdated, error) {
	ctx, err := t.begin(ctx)
	if err != nil {
		return model.TokenPriceUpdated{}, err
	}
	defer t.txMu.Unlock()

	if caller != t.owner {
		return model.TokenPriceUpdated{}, ErrUnauthorized
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return model.TokenPriceUpdated{}, ErrInvalidPrice
	}

	old := t.working.tokenPrice
	t.working.tokenPrice = new(big.Int).Set(newPrice)

	ev := model.TokenPriceUpdated{OldPrice: new(big.Int).Set(old), NewPrice: new(big.Int).Set(newPrice)}
	t.logger.Info("token price updated",
		zap.String("old_price", old.String()),
		zap.String("new_price", newPrice.String()),
	)
	t.commit(ctx, ev)
	return ev, nil
}

// Withdraw pays the whole accumulated balance to the owner. Owner only. A zero
// balance is withdrawn like any other.
func (t *Trader) Withdraw(ctx context.Context, caller common.Address) (model.WithdrawalMade, error) {
	ctx, err := t.begin(ctx)
	if err != nil {
		return model.WithdrawalMade{}, err
	}
	defer t.txMu.Unlock()

	if caller != t.owner {
		return model.WithdrawalMade{}, ErrUnauthorized
	}
	if t.payee == nil {
		return model.WithdrawalMade{}, fmt.Errorf("payee is nil")
	}

	amount := t.working.balance
	t.working.balance = big.NewInt(0)

	if err := t.payee.Pay(ctx, t.owner, new(big.Int).Set(amount)); err != nil {
		t.working.balance = amount
		return model.WithdrawalMade{}, fmt.Errorf("pay owner: %w", err)
	}

	ev := model.WithdrawalMade{Owner: t.owner, Amount: new(big.Int).Set(amount)}
	t.logger.Info("withdrawal made",
		zap.String("owner", t.owner.Hex()),
		zap.String("amount", amount.String()),
	)
	t.commit(ctx, ev)
	return ev, nil
}

// Snapshot exports the committed exchange state.
func (t *Trader) Snapshot() model.ExchangeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotOf(t.committed)
}

func (t *Trader) snapshotOf(b books) model.ExchangeSnapshot {
	return model.ExchangeSnapshot{
		Address:    t.address.Hex(),
		Owner:      t.owner.Hex(),
		TokenPrice: b.tokenPrice.String(),
		Balance:    b.balance.String(),
	}
}

// Restore loads unit price, balance and event sequence from a snapshot taken
// by an exchange with the same owner.
func (t *Trader) Restore(snap model.ExchangeSnapshot, seq uint64) error {
	if !common.IsHexAddress(snap.Owner) || common.HexToAddress(snap.Owner) != t.owner {
		return fmt.Errorf("snapshot owner %s does not match %s", snap.Owner, t.owner.Hex())
	}
	price, ok := new(big.Int).SetString(snap.TokenPrice, 10)
	if !ok || price.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, snap.TokenPrice)
	}
	balance, ok := new(big.Int).SetString(snap.Balance, 10)
	if !ok || balance.Sign() < 0 {
		return fmt.Errorf("invalid balance: %s", snap.Balance)
	}

	t.txMu.Lock()
	defer t.txMu.Unlock()
	t.working = books{tokenPrice: price, balance: balance, seq: seq}
	t.mu.Lock()
	t.committed = t.working.clone()
	t.mu.Unlock()
	return nil
}

// begin opens a serialized call. On success the caller must unlock txMu.
func (t *Trader) begin(ctx context.Context) (context.Context, error) {
	if t.inCall(ctx) {
		return ctx, ErrReentrantCall
	}
	t.txMu.Lock()
	return context.WithValue(ctx, callKey{}, t), nil
}

func (t *Trader) inCall(ctx context.Context) bool {
	inFlight, _ := ctx.Value(callKey{}).(*Trader)
	return inFlight == t
}

// commit publishes the working books, delivers the call's event and runs the
// commit hooks. The caller still holds txMu.
func (t *Trader) commit(ctx context.Context, ev model.Event) {
	t.working.seq++
	env := Envelope{
		Sequence: t.working.seq,
		Emitter:  t.address,
		Time:     t.now().UTC(),
		Event:    ev,
	}
	t.mu.Lock()
	t.committed = t.working.clone()
	t.mu.Unlock()

	for _, sink := range t.sinks {
		if err := sink.Publish(ctx, env); err != nil {
			t.logger.Warn("publish event failed",
				zap.String("event", ev.EventName()),
				zap.Uint64("sequence", env.Sequence),
				zap.Error(err),
			)
		}
	}
	for _, hook := range t.hooks {
		hook(ctx)
	}
}
