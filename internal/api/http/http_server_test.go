package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olyamironova/matching-core/internal/adapter/in_memory"
	"github.com/olyamironova/matching-core/internal/api/dto"
	"github.com/olyamironova/matching-core/internal/core"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/intake"
	"github.com/olyamironova/matching-core/internal/pipeline"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type stack struct {
	router *gin.Engine
	pipe   *pipeline.Pipeline
	trades *in_memory.TradeLog
}

func newStack(t *testing.T) *stack {
	t.Helper()
	pairs := in_memory.NewPairStore(in_memory.DefaultPair("BTCUSDT", decimal.RequireFromString("0.001")))
	reg := intake.NewRegistry()
	trades := in_memory.NewTradeLog()
	engine := core.NewEngine(pairs, settleNow{trades}, nil, core.Options{Listener: reg})
	engine.InitializeOrderBook("BTCUSDT")
	pipe := pipeline.New(64, pipeline.EngineHandler{Engine: engine}, nil)
	pipe.Start()
	t.Cleanup(func() { _ = pipe.Stop(context.Background()) })

	svc := intake.NewService(pipe, engine, pairs, in_memory.NewDeduper(), reg, nil)
	return &stack{router: NewHTTPServer(svc, 0, nil).Router(), pipe: pipe, trades: trades}
}

// settleNow applies trades synchronously so tests can read them right away.
type settleNow struct{ log *in_memory.TradeLog }

func (s settleNow) Settle(t *domain.TradeRecord) { _ = s.log.ApplyTrade(context.Background(), t) }

func (s *stack) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) book(t *testing.T) dto.GetOrderbookResponse {
	t.Helper()
	w := s.do(http.MethodGet, "/orderbook?symbol=BTCUSDT", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.GetOrderbookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func order(no, side, price, amount string) string {
	return fmt.Sprintf(`{"order_no":%q,"user_id":1,"symbol":"BTCUSDT","side":%q,"type":"LIMIT","price":%q,"amount":%q}`,
		no, side, price, amount)
}

func TestOrderFlow(t *testing.T) {
	s := newStack(t)

	w := s.do(http.MethodPost, "/orders", order("B1", "BUY", "50000", "1.0"))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted dto.SubmitOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "B1", accepted.OrderNo)
	assert.Equal(t, "PENDING", accepted.Status)

	w = s.do(http.MethodPost, "/orders", order("S1", "SELL", "49900", "0.4"))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool { return len(s.trades.Trades()) == 1 }, time.Second, time.Millisecond)
	tr := s.trades.Trades()[0]
	assert.True(t, tr.Price.Equal(decimal.NewFromInt(50000)))

	require.Eventually(t, func() bool { return s.pipe.Len() == 0 }, time.Second, time.Millisecond)
	book := s.book(t)
	require.Len(t, book.Bids, 1)
	assert.True(t, book.Bids[0].Amount.Equal(decimal.RequireFromString("0.6")))
	assert.Empty(t, book.Asks)
	require.Len(t, book.Trades, 1)
	assert.Equal(t, "SELL", book.Trades[0].TakerSide)

	w = s.do(http.MethodGet, "/price/btcusdt", "")
	require.Equal(t, http.StatusOK, w.Code)
	var price dto.PriceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &price))
	assert.True(t, price.Price.Equal(decimal.NewFromInt(50000)))

	w = s.do(http.MethodPost, "/orders/modify", `{"order_no":"B1","new_price":"49000","new_amount":"2"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Eventually(t, func() bool {
		b := s.book(t)
		return len(b.Bids) == 1 && b.Bids[0].Price.Equal(decimal.NewFromInt(49000))
	}, time.Second, time.Millisecond)

	w = s.do(http.MethodPost, "/orders/cancel", `{"order_no":"B1"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Eventually(t, func() bool { return len(s.book(t).Bids) == 0 }, time.Second, time.Millisecond)

	w = s.do(http.MethodPost, "/orders/cancel", `{"order_no":"B1"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "closed orders are forgotten")
}

func TestRejections(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/orders", order("D1", "BUY", "1", "1")).Code)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed json", "/orders", `{"user_id":`, http.StatusBadRequest},
		{"missing side", "/orders", `{"user_id":1,"symbol":"BTCUSDT","type":"LIMIT","price":"1","amount":"1"}`, http.StatusBadRequest},
		{"bad time in force", "/orders", `{"user_id":1,"symbol":"BTCUSDT","side":"BUY","type":"LIMIT","price":"1","amount":"1","time_in_force":"DAY"}`, http.StatusBadRequest},
		{"unknown symbol", "/orders", `{"user_id":1,"symbol":"DOGEUSDT","side":"BUY","type":"LIMIT","price":"1","amount":"1"}`, http.StatusBadRequest},
		{"duplicate", "/orders", order("D1", "BUY", "1", "1"), http.StatusConflict},
		{"cancel unknown", "/orders/cancel", `{"order_no":"nope"}`, http.StatusNotFound},
		{"modify unknown", "/orders/modify", `{"order_no":"nope","new_price":"1","new_amount":"1"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestQueries(t *testing.T) {
	s := newStack(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/orderbook", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/orderbook?symbol=NOPE", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/price/BTCUSDT", "").Code, "no trades yet")

	w := s.do(http.MethodGet, "/symbols", "")
	require.Equal(t, http.StatusOK, w.Code)
	var syms dto.SymbolsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &syms))
	assert.Equal(t, []string{"BTCUSDT"}, syms.Symbols)

	book := s.book(t)
	assert.Equal(t, "BTCUSDT", book.Symbol)
	assert.Empty(t, book.Bids)
	assert.False(t, book.LatestPrice.Valid)
}

func TestClearOrderbook(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/orders", order("B1", "BUY", "100", "1")).Code)
	require.Eventually(t, func() bool { return len(s.book(t).Bids) == 1 }, time.Second, time.Millisecond)

	w := s.do(http.MethodPost, "/admin/clear/btcusdt", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Eventually(t, func() bool { return len(s.book(t).Bids) == 0 }, time.Second, time.Millisecond)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/admin/clear/NOPE", "").Code)
}

func TestUnavailableAfterShutdown(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.pipe.Stop(context.Background()))
	w := s.do(http.MethodPost, "/orders", order("B1", "BUY", "100", "1"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("x: %w", intake.ErrDuplicateOrder): http.StatusConflict,
		&intake.ValidationError{Field: "price"}:       http.StatusBadRequest,
		intake.ErrOrderNotFound:                       http.StatusNotFound,
		core.ErrSymbolNotFound:                        http.StatusNotFound,
		pipeline.ErrNotStarted:                        http.StatusServiceUnavailable,
		context.DeadlineExceeded:                      http.StatusGatewayTimeout,
		errors.New("boom"):                            http.StatusInternalServerError,
	}
	for err, status := range cases {
		assert.Equal(t, status, StatusFor(err), err.Error())
	}
}
