package trader

import (
	"errors"
	"math/big"
	"testing"
)

func TestConvertFloorDivision(t *testing.T) {
	// 1 wei at $3800 is below one unit of USD precision.
	got, err := convert(big.NewInt(1), usd(3800), big.NewInt(200))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected floor to zero, got %s", got)
	}

	// 1 ether at $1.00 with a $3.00 unit price: 100000000*100/300.
	got, err = convert(ether(1), usd(1), big.NewInt(300))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Int64() != 33_333_333 {
		t.Fatalf("got %s want 33333333", got)
	}
}

func TestConvertOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	if _, err := convert(huge, big.NewInt(1024), big.NewInt(200)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("product overflow: got %v", err)
	}
	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := convert(tooWide, big.NewInt(1), big.NewInt(200)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("operand overflow: got %v", err)
	}
}

func TestConvertRejectsNonPositivePrice(t *testing.T) {
	if _, err := convert(ether(1), big.NewInt(-1), big.NewInt(200)); !errors.Is(err, ErrInvalidPriceFeedResponse) {
		t.Fatalf("negative price: got %v", err)
	}
}

func TestConvertPanicsOnZeroUnitPrice(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for zero unit price")
		}
	}()
	_, _ = convert(ether(1), usd(3800), big.NewInt(0))
}
