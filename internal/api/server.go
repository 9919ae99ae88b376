package api

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/metrics"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
	"github.com/zakhard90/chainlink-price-feed/internal/service"
)

// Exchange is the service surface the HTTP API drives.
type Exchange interface {
	Purchase(ctx context.Context, buyer common.Address, value *big.Int) (model.TokensPurchased, error)
	UpdateTokenPrice(ctx context.Context, caller common.Address, price *big.Int) (model.TokenPriceUpdated, error)
	Withdraw(ctx context.Context, caller common.Address) (model.WithdrawalMade, error)
	Price(ctx context.Context) (*big.Int, error)
	Quote(ctx context.Context, value *big.Int) (service.Quote, error)
	State(ctx context.Context) (service.State, error)
	Account(ctx context.Context, address common.Address) (service.Account, error)
}

// Server exposes an Exchange over JSON HTTP. Caller identities in request
// bodies are trusted.
type Server struct {
	exchange Exchange
	metrics  *metrics.Metrics
	logger   *zap.Logger
	router   http.Handler
}

func NewServer(exchange Exchange, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{exchange: exchange, metrics: m, logger: logger}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.metrics.Middleware("/v1/price")).Get("/price", s.handlePrice)
		v1.With(s.metrics.Middleware("/v1/quote")).Get("/quote", s.handleQuote)
		v1.With(s.metrics.Middleware("/v1/state")).Get("/state", s.handleState)
		v1.With(s.metrics.Middleware("/v1/accounts")).Get("/accounts/{address}", s.handleAccount)
		v1.With(s.metrics.Middleware("/v1/purchase")).Post("/purchase", s.handlePurchase)
		v1.With(s.metrics.Middleware("/v1/token-price")).Post("/token-price", s.handleUpdateTokenPrice)
		v1.With(s.metrics.Middleware("/v1/withdraw")).Post("/withdraw", s.handleWithdraw)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
