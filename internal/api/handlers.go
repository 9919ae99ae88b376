package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zakhard90/chainlink-price-feed/internal/feed"
	"github.com/zakhard90/chainlink-price-feed/internal/model"
	"github.com/zakhard90/chainlink-price-feed/internal/service"
	"github.com/zakhard90/chainlink-price-feed/internal/token"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
	"github.com/zakhard90/chainlink-price-feed/internal/units"
)

var errBadRequest = errors.New("bad request")

type purchaseRequest struct {
	Buyer string `json:"buyer"`
	Value string `json:"value"`
}

type tokenPriceRequest struct {
	Caller string `json:"caller"`
	Price  string `json:"price"`
}

type withdrawRequest struct {
	Caller string `json:"caller"`
}

type amount struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

func newAmount(v *big.Int, decimals int32) amount {
	return amount{Raw: v.String(), Formatted: units.FormatUnits(v, decimals)}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.exchange.Price(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"price": newAmount(price, units.FeedDecimals),
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	value, err := units.ParseEther(r.URL.Query().Get("value"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: value: %v", errBadRequest, err))
		return
	}
	q, err := s.exchange.Quote(r.Context(), value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"value":       newAmount(q.Value, units.EtherDecimals),
		"price":       newAmount(q.Price, units.FeedDecimals),
		"token_price": newAmount(q.TokenPrice, units.TokenPriceDecimals),
		"tokens":      newAmount(q.Tokens, units.FeedDecimals),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.exchange.State(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(st))
}

func stateResponse(st service.State) map[string]any {
	return map[string]any{
		"owner":          st.Owner.Hex(),
		"trader":         st.TraderAddress.Hex(),
		"token":          st.TokenAddress.Hex(),
		"token_name":     st.TokenName,
		"token_symbol":   st.TokenSymbol,
		"token_decimals": st.TokenDecimals,
		"token_price":    newAmount(st.TokenPrice, units.TokenPriceDecimals),
		"balance":        newAmount(st.Balance, units.EtherDecimals),
		"total_supply":   newAmount(st.TotalSupply, int32(st.TokenDecimals)),
		"max_purchase":   newAmount(st.MaxPurchase, units.EtherDecimals),
		"sequence":       st.Sequence,
	}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	acct, err := s.exchange.Account(r.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	decimals := int32(token.Decimals)
	writeJSON(w, http.StatusOK, map[string]any{
		"address": acct.Address.Hex(),
		"tokens":  newAmount(acct.Tokens, decimals),
		"payout":  newAmount(acct.Payout, units.EtherDecimals),
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if buyer == (common.Address{}) {
		s.writeError(w, fmt.Errorf("%w: buyer is the zero address", errBadRequest))
		return
	}
	value, err := units.ParseEther(req.Value)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: value: %v", errBadRequest, err))
		return
	}
	ev, err := s.exchange.Purchase(r.Context(), buyer, value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse(ev))
}

func (s *Server) handleUpdateTokenPrice(w http.ResponseWriter, r *http.Request) {
	var req tokenPriceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	price, err := units.ParseUnits(req.Price, units.TokenPriceDecimals)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: price: %v", errBadRequest, err))
		return
	}
	ev, err := s.exchange.UpdateTokenPrice(r.Context(), caller, price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse(ev))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ev, err := s.exchange.Withdraw(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse(ev))
}

func eventResponse(ev model.Event) map[string]any {
	return map[string]any{
		"event":  ev.EventName(),
		"fields": trader.Fields(ev),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func parseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, value)
	}
	return common.HexToAddress(value), nil
}

// statusFor maps an error to its HTTP status and wire error name.
func statusFor(err error) (int, string) {
	if errors.Is(err, errBadRequest) || errors.Is(err, token.ErrInvalidRecipient) {
		return http.StatusBadRequest, "BadRequest"
	}
	if errors.Is(err, feed.ErrUnavailable) {
		return http.StatusBadGateway, "FeedUnavailable"
	}
	name := trader.ErrorName(err)
	switch {
	case errors.Is(err, trader.ErrUnauthorized):
		return http.StatusForbidden, name
	case errors.Is(err, trader.ErrInvalidPaymentAmount), errors.Is(err, trader.ErrInvalidPrice):
		return http.StatusBadRequest, name
	case errors.Is(err, trader.ErrValueExceedsMaxPurchase), errors.Is(err, trader.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity, name
	case errors.Is(err, trader.ErrInvalidPriceFeedResponse):
		return http.StatusBadGateway, name
	case errors.Is(err, trader.ErrReentrantCall):
		return http.StatusConflict, name
	}
	return http.StatusInternalServerError, "Internal"
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, name := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("error_name", name), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: name, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
