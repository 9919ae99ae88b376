package metrics

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestMetricsFromEvents(t *testing.T) {
	m := New("test")
	ctx := context.Background()
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	_ = m.Publish(ctx, trader.Envelope{Sequence: 1, Event: model.TokensPurchased{
		Buyer: buyer, EthAmount: big.NewInt(1000), TokenAmount: big.NewInt(19),
	}})
	_ = m.Publish(ctx, trader.Envelope{Sequence: 2, Event: model.TokenPriceUpdated{
		OldPrice: big.NewInt(200), NewPrice: big.NewInt(400),
	}})
	m.ObserveRejection("purchase", trader.ErrValueExceedsMaxPurchase)
	m.ObserveRejection("purchase", errors.New("boom"))
	m.ObserveOracleRead(nil)
	m.ObserveOracleRead(trader.ErrInvalidPriceFeedResponse)

	out := scrape(t, m)
	for _, want := range []string{
		"test_purchases_total 1",
		"test_tokens_minted_total 19",
		"test_wei_received_total 1000",
		"test_token_price_cents 400",
		"test_event_sequence 2",
		`test_rejections_total{error="ValueExceedesMaxPurchase",operation="purchase"} 1`,
		`test_rejections_total{error="internal",operation="purchase"} 1`,
		`test_oracle_reads_total{result="ok"} 1`,
		`test_oracle_reads_total{result="invalid"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := New("test")
	h := m.Middleware("/v1/price")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/price", nil))

	out := scrape(t, m)
	want := `test_http_requests_total{method="GET",route="/v1/price",status="502"} 1`
	if !strings.Contains(out, want) {
		t.Fatalf("missing %q in:\n%s", want, out)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	if err := m.Publish(context.Background(), trader.Envelope{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	m.ObserveRejection("withdraw", trader.ErrUnauthorized)
	m.ObserveOracleRead(nil)
	m.SetTokenPrice(big.NewInt(1))
}
