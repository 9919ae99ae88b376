package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &FileStore{Path: filepath.Join(t.TempDir(), "nested", "state.json")}

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}

	snap := model.Snapshot{
		Sequence: 7,
		Exchange: model.ExchangeSnapshot{
			Owner:      "0x00000000000000000000000000000000000000A1",
			TokenPrice: "250",
			Balance:    "3000000000000000000",
		},
		Token: model.TokenSnapshot{
			TotalSupply: "570000000000",
			Balances:    map[string]string{"0x00000000000000000000000000000000000000B2": "570000000000"},
		},
		Payouts: map[string]string{},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(store.Path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind: %v", err)
	}

	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Sequence != 7 || got.Exchange.Balance != snap.Exchange.Balance || got.Token.TotalSupply != snap.Token.TotalSupply {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.UpdatedAt == "" {
		t.Fatalf("updated_at not stamped")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := (&FileStore{Path: path}).Load(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNilStoresAreNoops(t *testing.T) {
	ctx := context.Background()
	var fs *FileStore
	if err := fs.Save(ctx, model.Snapshot{}); err != nil {
		t.Fatalf("nil file store save: %v", err)
	}
	var db *DBStore
	if _, ok, err := db.Load(ctx); ok || err != nil {
		t.Fatalf("nil db store load: ok=%v err=%v", ok, err)
	}
}
