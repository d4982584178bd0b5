package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olyamironova/matching-core/internal/api/dto"
	"github.com/olyamironova/matching-core/internal/core"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/intake"
	"github.com/olyamironova/matching-core/internal/middleware"
	"github.com/olyamironova/matching-core/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// OrderService is what the REST layer needs from intake.
type OrderService interface {
	SubmitOrder(ctx context.Context, req intake.SubmitRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderNo string) error
	ModifyOrder(ctx context.Context, orderNo string, price, amount decimal.Decimal) error
	ClearOrderBook(ctx context.Context, symbol string) error
	GetOrderBookSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error)
	GetLatestPrice(symbol string) (decimal.Decimal, bool)
	ActiveSymbols() []string
}

type HTTPServer struct {
	svc       OrderService
	rateLimit time.Duration
	log       *slog.Logger
}

func NewHTTPServer(svc OrderService, rateLimit time.Duration, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPServer{svc: svc, rateLimit: rateLimit, log: log.With("component", "http")}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.log))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/orderbook", s.getOrderbook)
	r.GET("/price/:symbol", s.getLatestPrice)
	r.GET("/symbols", s.getSymbols)

	// Middleware rate-limiting
	rl := middleware.NewRateLimiter(s.rateLimit)
	orders := r.Group("/orders", rl.Middleware())
	orders.POST("", s.submitOrder)
	orders.POST("/modify", s.modifyOrder)
	orders.POST("/cancel", s.cancelOrder)

	r.POST("/admin/clear/:symbol", s.clearOrderbook)
	return r
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tif, ok := domain.ParseTimeInForce(strings.ToUpper(req.TimeInForce))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time_in_force: " + req.TimeInForce})
		return
	}

	o, err := s.svc.SubmitOrder(c.Request.Context(), intake.SubmitRequest{
		OrderNo:     req.OrderNo,
		UserID:      req.UserID,
		Symbol:      req.Symbol,
		Side:        domain.Side(req.Side),
		Type:        domain.OrderType(req.Type),
		Price:       req.Price,
		Amount:      req.Amount,
		TimeInForce: tif,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.FromOrder(o))
}

func (s *HTTPServer) modifyOrder(c *gin.Context) {
	var req dto.ModifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.ModifyOrder(c.Request.Context(), req.OrderNo, req.NewPrice, req.NewQty); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{OrderNo: req.OrderNo, Accepted: true})
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.CancelOrder(c.Request.Context(), req.OrderNo); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{OrderNo: req.OrderNo, Accepted: true})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	var req dto.GetOrderbookRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.svc.GetOrderBookSnapshot(c.Request.Context(), req.Symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromSnapshot(snap))
}

func (s *HTTPServer) getLatestPrice(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	price, ok := s.svc.GetLatestPrice(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trades for " + symbol})
		return
	}
	c.JSON(http.StatusOK, dto.PriceResponse{Symbol: symbol, Price: price})
}

func (s *HTTPServer) getSymbols(c *gin.Context) {
	symbols := s.svc.ActiveSymbols()
	if symbols == nil {
		symbols = []string{}
	}
	c.JSON(http.StatusOK, dto.SymbolsResponse{Symbols: symbols})
}

func (s *HTTPServer) clearOrderbook(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.svc.ClearOrderBook(c.Request.Context(), symbol); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{Symbol: strings.ToUpper(symbol), Accepted: true})
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	var verr *intake.ValidationError
	switch {
	case errors.Is(err, intake.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, intake.ErrOrderNotFound), errors.Is(err, core.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrClosed), errors.Is(err, pipeline.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
