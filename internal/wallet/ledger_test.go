package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPay(t *testing.T) {
	l := New()
	owner := common.HexToAddress("0x2000000000000000000000000000000000000002")

	if err := l.Pay(context.Background(), owner, big.NewInt(5)); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if err := l.Pay(context.Background(), owner, big.NewInt(0)); err != nil {
		t.Fatalf("zero pay: %v", err)
	}
	if got := l.BalanceOf(owner); got.Int64() != 5 {
		t.Fatalf("balance mismatch: %s", got)
	}
	if err := l.Pay(context.Background(), common.Address{}, big.NewInt(1)); !errors.Is(err, ErrInvalidPayout) {
		t.Fatalf("expected ErrInvalidPayout, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := New()
	owner := common.HexToAddress("0x2000000000000000000000000000000000000002")
	if err := l.Pay(context.Background(), owner, big.NewInt(42)); err != nil {
		t.Fatalf("pay: %v", err)
	}

	restored := New()
	if err := restored.Restore(l.Snapshot()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.BalanceOf(owner).Int64() != 42 {
		t.Fatalf("restored balance mismatch: %s", restored.BalanceOf(owner))
	}
	if err := restored.Restore(map[string]string{owner.Hex(): "-1"}); err == nil {
		t.Fatalf("expected error for negative balance")
	}
}
