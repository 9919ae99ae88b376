package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/metrics"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
	"github.com/zakhard90/chainlink-price-feed/internal/state"
	"github.com/zakhard90/chainlink-price-feed/internal/token"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
	"github.com/zakhard90/chainlink-price-feed/internal/wallet"
)

// Config names the identities of a simulated deployment.
type Config struct {
	Owner         common.Address
	TraderAddress common.Address
	TokenAddress  common.Address
	TokenName     string
	TokenSymbol   string
}

// Option configures an Exchange.
type Option func(*Exchange)

func WithStore(s state.Store) Option {
	return func(e *Exchange) {
		e.store = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exchange) {
		e.metrics = m
	}
}

// WithSink adds an event sink such as a journal.
func WithSink(s trader.EventSink) Option {
	return func(e *Exchange) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Exchange) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Exchange) {
		if now != nil {
			e.now = now
		}
	}
}

// Exchange runs a trader with its token ledger, payout ledger, event sinks
// and snapshot persistence.
type Exchange struct {
	cfg     Config
	trader  *trader.Trader
	token   *token.Ledger
	payouts *wallet.Ledger
	store   state.Store
	metrics *metrics.Metrics
	sinks   []trader.EventSink
	logger  *zap.Logger
	now     func() time.Time
}

// Quote is the token amount a payment would buy right now.
type Quote struct {
	Value      *big.Int
	Price      *big.Int
	TokenPrice *big.Int
	Tokens     *big.Int
}

// State is a read-only view of the exchange.
type State struct {
	Owner         common.Address
	TraderAddress common.Address
	TokenAddress  common.Address
	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	TokenPrice    *big.Int
	Balance       *big.Int
	TotalSupply   *big.Int
	MaxPurchase   *big.Int
	Sequence      uint64
}

// Account is the token and payout balance of one address.
type Account struct {
	Address common.Address
	Tokens  *big.Int
	Payout  *big.Int
}

// New deploys the token ledger, authorizes the trader as its minter, creates
// the trader and restores the last persisted snapshot, if any.
func New(ctx context.Context, cfg Config, priceFeed feed.Feed, opts ...Option) (*Exchange, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address is required")
	}
	if cfg.TraderAddress == (common.Address{}) {
		return nil, fmt.Errorf("trader address is required")
	}
	if priceFeed == nil {
		return nil, trader.ErrInvalidFeedAddress
	}

	e := &Exchange{
		cfg:     cfg,
		payouts: wallet.New(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.token = token.New(cfg.TokenAddress, cfg.Owner, cfg.TokenName, cfg.TokenSymbol)
	if err := e.token.AllowMintTo(cfg.Owner, cfg.TraderAddress); err != nil {
		return nil, fmt.Errorf("allow mint: %w", err)
	}

	traderOpts := []trader.Option{
		trader.WithAddress(cfg.TraderAddress),
		trader.WithPayee(e.payouts),
		trader.WithLogger(e.logger),
		trader.WithClock(e.now),
		trader.WithCommitHook(e.persist),
	}
	if e.metrics != nil {
		traderOpts = append(traderOpts, trader.WithSink(e.metrics))
	}
	for _, sink := range e.sinks {
		traderOpts = append(traderOpts, trader.WithSink(sink))
	}
	t, err := trader.New(cfg.Owner, e.token.MinterFor(cfg.TraderAddress), observeFeed(priceFeed, e.metrics), traderOpts...)
	if err != nil {
		return nil, err
	}
	e.trader = t

	if err := e.restore(ctx); err != nil {
		return nil, err
	}
	e.metrics.SetTokenPrice(e.trader.TokenPrice())
	return e, nil
}

func (e *Exchange) Trader() *trader.Trader { return e.trader }
func (e *Exchange) Token() *token.Ledger { return e.token }
func (e *Exchange) Payouts() *wallet.Ledger { return e.payouts }

// Purchase buys tokens for buyer with value wei.
func (e *Exchange) Purchase(ctx context.Context, buyer common.Address, value *big.Int) (model.TokensPurchased, error) {
	ev, err := e.trader.Receive(ctx, buyer, value)
	if err != nil {
		e.reject("purchase", err)
		return model.TokensPurchased{}, err
	}
	return ev, nil
}

// UpdateTokenPrice changes the unit token price on behalf of caller.
func (e *Exchange) UpdateTokenPrice(ctx context.Context, caller common.Address, price *big.Int) (model.TokenPriceUpdated, error) {
	ev, err := e.trader.UpdateTokenPrice(ctx, caller, price)
	if err != nil {
		e.reject("update_token_price", err)
		return model.TokenPriceUpdated{}, err
	}
	return ev, nil
}

// Withdraw pays the exchange balance to the owner on behalf of caller.
func (e *Exchange) Withdraw(ctx context.Context, caller common.Address) (model.WithdrawalMade, error) {
	ev, err := e.trader.Withdraw(ctx, caller)
	if err != nil {
		e.reject("withdraw", err)
		return model.WithdrawalMade{}, err
	}
	return ev, nil
}

// Price returns the validated oracle price (8 decimals).
func (e *Exchange) Price(ctx context.Context) (*big.Int, error) {
	return e.trader.GetPriceFeedData(ctx)
}

// Quote prices a payment without executing it.
func (e *Exchange) Quote(ctx context.Context, value *big.Int) (Quote, error) {
	price, tokens, err := e.trader.Quote(ctx, value)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Value:      new(big.Int).Set(value),
		Price:      price,
		TokenPrice: e.trader.TokenPrice(),
		Tokens:     tokens,
	}, nil
}

// State reads the exchange and its token ledger as of one committed call.
func (e *Exchange) State(ctx context.Context) (State, error) {
	var st State
	err := e.trader.Hold(ctx, func() error {
		st = e.state()
		return nil
	})
	return st, err
}

func (e *Exchange) state() State {
	return State{
		Owner:         e.trader.Owner(),
		TraderAddress: e.trader.Address(),
		TokenAddress:  e.token.Address(),
		TokenName:     e.token.Name(),
		TokenSymbol:   e.token.Symbol(),
		TokenDecimals: e.token.Decimals(),
		TokenPrice:    e.trader.TokenPrice(),
		Balance:       e.trader.Balance(),
		TotalSupply:   e.token.TotalSupply(),
		MaxPurchase:   e.trader.MaxPurchase(),
		Sequence:      e.trader.Sequence(),
	}
}

func (e *Exchange) Account(ctx context.Context, address common.Address) (Account, error) {
	var acct Account
	err := e.trader.Hold(ctx, func() error {
		acct = Account{
			Address: address,
			Tokens:  e.token.BalanceOf(address),
			Payout:  e.payouts.BalanceOf(address),
		}
		return nil
	})
	return acct, err
}

// Snapshot captures the exchange and both ledgers between calls.
func (e *Exchange) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := e.trader.Hold(ctx, func() error {
		snap = e.snapshot()
		return nil
	})
	return snap, err
}

// snapshot reads without the transaction boundary. Callers either hold it or
// run before the exchange serves calls.
func (e *Exchange) snapshot() model.Snapshot {
	return model.Snapshot{
		Sequence:  e.trader.Sequence(),
		Exchange:  e.trader.Snapshot(),
		Token:     e.token.Snapshot(),
		Payouts:   e.payouts.Snapshot(),
		UpdatedAt: e.now().UTC().Format(time.RFC3339Nano),
	}
}

func (e *Exchange) reject(operation string, err error) {
	e.metrics.ObserveRejection(operation, err)
	e.logger.Warn("call rejected",
		zap.String("operation", operation),
		zap.String("error_name", trader.ErrorName(err)),
		zap.Error(err),
	)
}

// persist runs as the trader's commit hook, inside the committing call, so
// snapshots are written in commit order and never include another call's
// pending effects. The call already committed, so a failure is logged and
// not returned.
func (e *Exchange) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	snap := e.snapshot()
	if err := e.store.Save(ctx, snap); err != nil {
		e.logger.Error("save snapshot failed", zap.Uint64("sequence", snap.Sequence), zap.Error(err))
	}
}

func (e *Exchange) restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap, ok, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	if err := e.trader.Restore(snap.Exchange, snap.Sequence); err != nil {
		return fmt.Errorf("restore exchange: %w", err)
	}
	if err := e.token.Restore(snap.Token); err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	if err := e.payouts.Restore(snap.Payouts); err != nil {
		return fmt.Errorf("restore payouts: %w", err)
	}
	e.logger.Info("snapshot restored",
		zap.Uint64("sequence", snap.Sequence),
		zap.String("token_price", snap.Exchange.TokenPrice),
		zap.String("balance", snap.Exchange.Balance),
	)
	return nil
}
