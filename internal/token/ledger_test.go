package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	owner     = common.HexToAddress("0x2000000000000000000000000000000000000002")
	trader    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	buyer     = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

func TestLedgerDecimals(t *testing.T) {
	l := New(tokenAddr, owner, "Trader Token", "TRT")
	if l.Decimals() != 2 {
		t.Fatalf("decimals mismatch: %d", l.Decimals())
	}
}

func TestMintRequiresAuthorizedMinter(t *testing.T) {
	ctx := context.Background()
	l := New(tokenAddr, owner, "Trader Token", "TRT")

	if err := l.Mint(ctx, trader, buyer, big.NewInt(10)); !errors.Is(err, ErrNotMinter) {
		t.Fatalf("expected ErrNotMinter before registration, got %v", err)
	}
	if err := l.AllowMintTo(buyer, trader); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := l.AllowMintTo(owner, trader); err != nil {
		t.Fatalf("allow mint: %v", err)
	}
	if err := l.Mint(ctx, owner, buyer, big.NewInt(10)); !errors.Is(err, ErrNotMinter) {
		t.Fatalf("owner must not mint, got %v", err)
	}
	if err := l.Mint(ctx, trader, buyer, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.MinterFor(trader).Mint(ctx, buyer, big.NewInt(5)); err != nil {
		t.Fatalf("bound mint: %v", err)
	}

	if got := l.BalanceOf(buyer); got.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("balance mismatch: %s", got)
	}
	if got := l.TotalSupply(); got.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("supply mismatch: %s", got)
	}
}

func TestMintRejectsZeroRecipient(t *testing.T) {
	l := New(tokenAddr, owner, "Trader Token", "TRT")
	if err := l.AllowMintTo(owner, trader); err != nil {
		t.Fatalf("allow mint: %v", err)
	}
	if err := l.Mint(context.Background(), trader, common.Address{}, big.NewInt(1)); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	l := New(tokenAddr, owner, "Trader Token", "TRT")
	if err := l.AllowMintTo(owner, trader); err != nil {
		t.Fatalf("allow mint: %v", err)
	}
	if err := l.Mint(context.Background(), trader, buyer, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := l.Transfer(buyer, owner, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := l.Transfer(buyer, owner, big.NewInt(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if l.BalanceOf(buyer).Int64() != 60 || l.BalanceOf(owner).Int64() != 40 {
		t.Fatalf("balances mismatch: %s %s", l.BalanceOf(buyer), l.BalanceOf(owner))
	}
	if l.TotalSupply().Int64() != 100 {
		t.Fatalf("transfer changed supply: %s", l.TotalSupply())
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := New(tokenAddr, owner, "Trader Token", "TRT")
	if err := l.AllowMintTo(owner, trader); err != nil {
		t.Fatalf("allow mint: %v", err)
	}
	if err := l.Mint(context.Background(), trader, buyer, big.NewInt(190000000000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	snap := l.Snapshot()

	restored := New(tokenAddr, owner, "Trader Token", "TRT")
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.BalanceOf(buyer).Cmp(big.NewInt(190000000000)) != 0 {
		t.Fatalf("restored balance mismatch: %s", restored.BalanceOf(buyer))
	}
	if restored.Minter() != trader {
		t.Fatalf("restored minter mismatch: %s", restored.Minter().Hex())
	}

	snap.Balances["not-an-address"] = "1"
	if err := restored.Restore(snap); err == nil {
		t.Fatalf("expected error for invalid holder")
	}
}
