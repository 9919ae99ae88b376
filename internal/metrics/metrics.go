package metrics

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
)

// Metrics holds the exchange collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	purchases    prometheus.Counter
	tokensMinted prometheus.Counter
	weiReceived  prometheus.Counter
	withdrawals  prometheus.Counter
	priceUpdates prometheus.Counter
	rejections   *prometheus.CounterVec
	oracleReads  *prometheus.CounterVec
	tokenPrice   prometheus.Gauge
	lastSequence prometheus.Gauge
	requests     *prometheus.CounterVec
	durations    *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trader"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Committed token purchases.",
		}),
		tokensMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_minted_total",
			Help:      "Token base units minted to buyers.",
		}),
		weiReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wei_received_total",
			Help:      "Wei accepted by committed purchases.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Committed owner withdrawals.",
		}),
		priceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_price_updates_total",
			Help:      "Committed unit token price changes.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Failed calls by operation and contract error name.",
		}, []string{"operation", "error"}),
		oracleReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_reads_total",
			Help:      "Oracle price reads by result.",
		}, []string{"result"}),
		tokenPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_price_cents",
			Help:      "Current unit token price with 2 implied decimals.",
		}),
		lastSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_sequence",
			Help:      "Sequence number of the last emitted event.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.purchases,
		m.tokensMinted,
		m.weiReceived,
		m.withdrawals,
		m.priceUpdates,
		m.rejections,
		m.oracleReads,
		m.tokenPrice,
		m.lastSequence,
		m.requests,
		m.durations,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Publish implements trader.EventSink.
func (m *Metrics) Publish(ctx context.Context, env trader.Envelope) error {
	if m == nil {
		return nil
	}
	m.lastSequence.Set(float64(env.Sequence))
	switch ev := env.Event.(type) {
	case model.TokensPurchased:
		m.purchases.Inc()
		m.tokensMinted.Add(toFloat(ev.TokenAmount))
		m.weiReceived.Add(toFloat(ev.EthAmount))
	case model.TokenPriceUpdated:
		m.priceUpdates.Inc()
		m.tokenPrice.Set(toFloat(ev.NewPrice))
	case model.WithdrawalMade:
		m.withdrawals.Inc()
	}
	return nil
}

// SetTokenPrice records the unit price without an event, e.g. after a restore.
func (m *Metrics) SetTokenPrice(price *big.Int) {
	if m == nil {
		return
	}
	m.tokenPrice.Set(toFloat(price))
}

// ObserveRejection counts a failed call under its contract error name.
func (m *Metrics) ObserveRejection(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	name := trader.ErrorName(err)
	if name == "" {
		name = "internal"
	}
	m.rejections.WithLabelValues(operation, name).Inc()
}

// ObserveOracleRead counts an oracle price read.
func (m *Metrics) ObserveOracleRead(err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case trader.ErrorName(err) == "InvalidPriceFeedResponse":
		result = "invalid"
	default:
		result = "error"
	}
	m.oracleReads.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency for a route.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
