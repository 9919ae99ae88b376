package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSnapshotJSONRoundTrip(t *testing.T) {
	original := Snapshot{
		Sequence: 7,
		Exchange: ExchangeSnapshot{
			Address:    "0x1111111111111111111111111111111111111111",
			Owner:      "0x2222222222222222222222222222222222222222",
			TokenPrice: "200",
			Balance:    "100000000000000000000",
		},
		Token: TokenSnapshot{
			Address:     "0x3333333333333333333333333333333333333333",
			Owner:       "0x2222222222222222222222222222222222222222",
			Name:        "Trader Token",
			Symbol:      "TRT",
			Minter:      "0x1111111111111111111111111111111111111111",
			TotalSupply: "190000000000",
			Balances: map[string]string{
				"0x4444444444444444444444444444444444444444": "190000000000",
			},
		},
		Payouts:   map[string]string{},
		UpdatedAt: "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Snapshot
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestSnapshotAmountsAreStrings(t *testing.T) {
	data, err := json.Marshal(ExchangeSnapshot{TokenPrice: "200", Balance: "5"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["token_price"].(string); !ok {
		t.Fatalf("token_price should be string")
	}
	if _, ok := decoded["balance"].(string); !ok {
		t.Fatalf("balance should be string")
	}
}
