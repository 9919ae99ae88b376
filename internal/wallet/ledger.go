package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidPayout indicates a payout to the zero address or of a negative amount.
var ErrInvalidPayout = errors.New("wallet: invalid payout")

// Ledger tracks native-currency balances paid out by the exchange.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int)}
}

// Pay credits amount wei to the recipient.
func (l *Ledger) Pay(ctx context.Context, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) || amount == nil || amount.Sign() < 0 {
		return ErrInvalidPayout
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[to]
	if !ok {
		bal = big.NewInt(0)
		l.balances[to] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// BalanceOf returns a copy of the recipient balance.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Snapshot exports balances keyed by hex address.
func (l *Ledger) Snapshot() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.balances))
	for holder, bal := range l.balances {
		out[holder.Hex()] = bal.String()
	}
	return out
}

// Restore replaces all balances.
func (l *Ledger) Restore(balances map[string]string) error {
	restored := make(map[common.Address]*big.Int, len(balances))
	for holder, value := range balances {
		if !common.IsHexAddress(holder) {
			return fmt.Errorf("invalid payout address: %s", holder)
		}
		bal, ok := new(big.Int).SetString(value, 10)
		if !ok || bal.Sign() < 0 {
			return fmt.Errorf("invalid payout balance %s: %s", holder, value)
		}
		restored[common.HexToAddress(holder)] = bal
	}
	l.mu.Lock()
	l.balances = restored
	l.mu.Unlock()
	return nil
}
