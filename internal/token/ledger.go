package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

// Decimals is the fixed display precision of the token.
const Decimals uint8 = 2

var (
	// ErrUnauthorized indicates a non-owner attempted an owner-only call.
	ErrUnauthorized = errors.New("token: caller is not the owner")
	// ErrNotMinter indicates the caller is not the authorized minter.
	ErrNotMinter = errors.New("token: caller is not the minter")
	// ErrInvalidRecipient indicates a transfer or mint to the zero address.
	ErrInvalidRecipient = errors.New("token: invalid recipient")
	// ErrInsufficientBalance indicates a transfer larger than the sender balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInvalidAmount indicates a negative amount.
	ErrInvalidAmount = errors.New("token: invalid amount")
)

// Ledger is a mintable balance store with a single authorized minter.
type Ledger struct {
	address common.Address
	owner   common.Address
	name    string
	symbol  string

	mu          sync.RWMutex
	minter      common.Address
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
}

// New creates an empty ledger. No one may mint until AllowMintTo is called.
func New(address, owner common.Address, name, symbol string) *Ledger {
	return &Ledger{
		address:     address,
		owner:       owner,
		name:        name,
		symbol:      symbol,
		totalSupply: big.NewInt(0),
		balances:    make(map[common.Address]*big.Int),
	}
}

func (l *Ledger) Address() common.Address { return l.address }
func (l *Ledger) Owner() common.Address { return l.owner }
func (l *Ledger) Name() string { return l.name }
func (l *Ledger) Symbol() string { return l.symbol }
func (l *Ledger) Decimals() uint8 { return Decimals }

// Minter returns the authorized minter, the zero address if none.
func (l *Ledger) Minter() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minter
}

// AllowMintTo registers minter as the sole authorized minter.
func (l *Ledger) AllowMintTo(caller, minter common.Address) error {
	if caller != l.owner {
		return ErrUnauthorized
	}
	l.mu.Lock()
	l.minter = minter
	l.mu.Unlock()
	return nil
}

// Mint credits amount to the recipient. Only the authorized minter may call it.
func (l *Ledger) Mint(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.minter == (common.Address{}) || caller != l.minter {
		return ErrNotMinter
	}
	l.credit(to, amount)
	l.totalSupply.Add(l.totalSupply, amount)
	return nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s want %s", ErrInsufficientBalance, balanceString(bal), amount)
	}
	bal.Sub(bal, amount)
	l.credit(to, amount)
	return nil
}

// BalanceOf returns a copy of the holder balance.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalSupply returns a copy of the total minted supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalSupply)
}

// MinterFor binds the ledger's Mint to a fixed caller identity.
func (l *Ledger) MinterFor(caller common.Address) *BoundMinter {
	return &BoundMinter{ledger: l, caller: caller}
}

// Snapshot exports the ledger state.
func (l *Ledger) Snapshot() model.TokenSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balances := make(map[string]string, len(l.balances))
	for holder, bal := range l.balances {
		balances[holder.Hex()] = bal.String()
	}
	return model.TokenSnapshot{
		Address:     l.address.Hex(),
		Owner:       l.owner.Hex(),
		Name:        l.name,
		Symbol:      l.symbol,
		Minter:      l.minter.Hex(),
		TotalSupply: l.totalSupply.String(),
		Balances:    balances,
	}
}

// Restore replaces the ledger balances, supply and minter from a snapshot.
func (l *Ledger) Restore(snap model.TokenSnapshot) error {
	totalSupply, err := parseAmount(snap.TotalSupply)
	if err != nil {
		return fmt.Errorf("total supply: %w", err)
	}
	balances := make(map[common.Address]*big.Int, len(snap.Balances))
	for holder, value := range snap.Balances {
		if !common.IsHexAddress(holder) {
			return fmt.Errorf("invalid holder address: %s", holder)
		}
		bal, err := parseAmount(value)
		if err != nil {
			return fmt.Errorf("balance %s: %w", holder, err)
		}
		balances[common.HexToAddress(holder)] = bal
	}
	var minter common.Address
	if snap.Minter != "" {
		if !common.IsHexAddress(snap.Minter) {
			return fmt.Errorf("invalid minter address: %s", snap.Minter)
		}
		minter = common.HexToAddress(snap.Minter)
	}

	l.mu.Lock()
	l.totalSupply = totalSupply
	l.balances = balances
	l.minter = minter
	l.mu.Unlock()
	return nil
}

func (l *Ledger) credit(to common.Address, amount *big.Int) {
	bal, ok := l.balances[to]
	if !ok {
		bal = big.NewInt(0)
		l.balances[to] = bal
	}
	bal.Add(bal, amount)
}

// BoundMinter mints on behalf of a fixed caller.
type BoundMinter struct {
	ledger *Ledger
	caller common.Address
}

// Address returns the ledger address so zero-address checks see the token, not the caller.
func (m *BoundMinter) Address() common.Address {
	return m.ledger.Address()
}

func (m *BoundMinter) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	return m.ledger.Mint(ctx, m.caller, to, amount)
}

func balanceString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}
