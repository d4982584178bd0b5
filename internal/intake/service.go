// Package intake validates order requests and feeds them into the matching
// pipeline. It is the surface REST, gRPC and Kafka adapters talk to.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/metrics"
	"github.com/olyamironova/matching-core/internal/port"
	"github.com/shopspring/decimal"
)

const releaseTimeout = 2 * time.Second

// Publisher is the pipeline entry point.
type Publisher interface {
	Publish(ctx context.Context, ev domain.OrderEvent) error
}

// BookReader answers read-only queries against the engine.
type BookReader interface {
	GetOrderBookSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error)
	GetLatestPrice(symbol string) (decimal.Decimal, bool)
	ActiveSymbols() []string
}

type SubmitRequest struct {
	OrderNo     string
	UserID      int64
	Symbol      string
	Side        domain.Side
	Type        domain.OrderType
	Price       decimal.Decimal
	Amount      decimal.Decimal
	TimeInForce domain.TimeInForce
}

type Service struct {
	pipe     Publisher
	books    BookReader
	pairs    port.PairProvider
	dedupe   port.Deduper
	registry *Registry
	log      *slog.Logger

	ids atomic.Int64
	now func() time.Time
}

func NewService(pipe Publisher, books BookReader, pairs port.PairProvider, dedupe port.Deduper, registry *Registry, log *slog.Logger) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		pipe:     pipe,
		books:    books,
		pairs:    pairs,
		dedupe:   dedupe,
		registry: registry,
		log:      log.With("component", "intake"),
		now:      time.Now,
	}
	s.ids.Store(time.Now().UnixMilli())
	return s
}

// SubmitOrder validates req and enqueues a NEW_ORDER event. The returned
// order is a copy taken at acceptance; matching happens asynchronously.
func (s *Service) SubmitOrder(ctx context.Context, req SubmitRequest) (*domain.Order, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	pair, err := s.pair(req.Symbol)
	if err != nil {
		return nil, err
	}
	if req.TimeInForce == 0 {
		req.TimeInForce = domain.GTC
	}
	now := s.now()
	o := &domain.Order{
		ID:          s.ids.Add(1),
		OrderNo:     req.OrderNo,
		UserID:      req.UserID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Price:       req.Price,
		Amount:      req.Amount,
		Status:      domain.Pending,
		TimeInForce: req.TimeInForce,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateOrder(o, pair); err != nil {
		s.reject(err)
		return nil, err
	}
	if o.OrderNo == "" {
		o.OrderNo = uuid.NewString()
	}
	if err := s.reserve(ctx, o.OrderNo); err != nil {
		return nil, err
	}

	accepted := *o
	s.registry.put(o)
	if err := s.pipe.Publish(ctx, domain.OrderEvent{Type: domain.NewOrder, Order: o}); err != nil {
		s.registry.OrderClosed(o)
		s.release(o.OrderNo)
		return nil, err
	}
	s.log.Debug("order accepted", "symbol", o.Symbol, "order_no", o.OrderNo, "side", o.Side, "type", o.Type)
	return &accepted, nil
}

// CancelOrder enqueues a CANCEL_ORDER event for a live order.
func (s *Service) CancelOrder(ctx context.Context, orderNo string) error {
	o, ok := s.registry.Get(orderNo)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
	}
	return s.pipe.Publish(ctx, domain.OrderEvent{Type: domain.CancelOrder, Order: o})
}

// ModifyOrder replaces a live order with a new one at price and amount under
// the same order number. The replacement loses time priority.
func (s *Service) ModifyOrder(ctx context.Context, orderNo string, price, amount decimal.Decimal) error {
	old, ok := s.registry.Get(orderNo)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
	}
	pair, err := s.pair(old.Symbol)
	if err != nil {
		return err
	}
	now := s.now()
	repl := &domain.Order{
		ID:          s.ids.Add(1),
		OrderNo:     old.OrderNo,
		UserID:      old.UserID,
		Symbol:      old.Symbol,
		Side:        old.Side,
		Type:        old.Type,
		Price:       price,
		Amount:      amount,
		Status:      domain.Pending,
		TimeInForce: old.TimeInForce,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if repl.Type != domain.Limit {
		return invalid("orderType", nil, "only limit orders can be modified")
	}
	if err := validateOrder(repl, pair); err != nil {
		s.reject(err)
		return err
	}
	s.registry.put(repl)
	if err := s.pipe.Publish(ctx, domain.OrderEvent{Type: domain.ModifyOrder, Order: old, Replacement: repl}); err != nil {
		s.registry.orders.CompareAndSwap(orderNo, repl, old)
		return err
	}
	return nil
}

// ClearOrderBook enqueues an administrative reset of symbol.
func (s *Service) ClearOrderBook(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, err := s.pair(symbol); err != nil {
		return err
	}
	s.log.Warn("order book clear requested", "symbol", symbol)
	return s.pipe.Publish(ctx, domain.OrderEvent{Type: domain.ClearBook, Symbol: symbol})
}

func (s *Service) GetOrderBookSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error) {
	return s.books.GetOrderBookSnapshot(ctx, strings.ToUpper(symbol))
}

func (s *Service) GetLatestPrice(symbol string) (decimal.Decimal, bool) {
	return s.books.GetLatestPrice(strings.ToUpper(symbol))
}

func (s *Service) ActiveSymbols() []string { return s.books.ActiveSymbols() }

func (s *Service) pair(symbol string) (domain.TradingPair, error) {
	if s.pairs == nil {
		return domain.TradingPair{}, invalid("symbol", ErrUnknownSymbol, "%q", symbol)
	}
	p, ok := s.pairs.Pair(symbol)
	if !ok {
		s.reject(ErrUnknownSymbol)
		return domain.TradingPair{}, invalid("symbol", ErrUnknownSymbol, "%q", symbol)
	}
	return p, nil
}

func (s *Service) reserve(ctx context.Context, orderNo string) error {
	if s.dedupe == nil {
		if _, dup := s.registry.Get(orderNo); dup {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, orderNo)
		}
		return nil
	}
	ok, err := s.dedupe.Reserve(ctx, orderNo)
	if err != nil {
		return fmt.Errorf("intake: reserve %s: %w", orderNo, err)
	}
	if !ok {
		s.reject(ErrDuplicateOrder)
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, orderNo)
	}
	return nil
}

// release frees the order number after a failed enqueue. ctx may already be
// done at that point, so it runs on its own short deadline.
func (s *Service) release(orderNo string) {
	if s.dedupe == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.dedupe.Release(ctx, orderNo); err != nil {
		s.log.Warn("order number not released", "order_no", orderNo, "error", err)
	}
}

func (s *Service) reject(err error) {
	reason := "validation"
	switch {
	case errors.Is(err, ErrUnknownSymbol):
		reason = "unknown_symbol"
	case errors.Is(err, ErrDuplicateOrder):
		reason = "duplicate"
	case errors.Is(err, ErrInvalidPrecision):
		reason = "precision"
	case errors.Is(err, ErrAmountOutOfRange), errors.Is(err, ErrPriceOutOfRange):
		reason = "range"
	}
	metrics.OrdersRejected.WithLabelValues(reason).Inc()
}
