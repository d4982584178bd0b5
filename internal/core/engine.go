package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/metrics"
	"github.com/olyamironova/matching-core/internal/port"
	"github.com/shopspring/decimal"
)

var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrInvalidOrder   = errors.New("invalid order")
)

// DefaultFeeRate applies when a pair has no positive fee rate configured.
var DefaultFeeRate = decimal.RequireFromString("0.001")

const feeScale = 8

type Options struct {
	DefaultFeeRate decimal.Decimal
	Cache          port.SnapshotCache
	Listener       port.OrderListener
	Logger         *slog.Logger
}

// Engine owns one OrderBook per symbol and runs price-time priority matching.
// ProcessOrder, CancelOrder and ClearOrderBook must be called from a single
// goroutine; the query methods are safe from any goroutine.
type Engine struct {
	books     sync.Map // symbol -> *OrderBook
	pairs     port.PairProvider
	settler   port.TradeSettler
	publisher port.SnapshotPublisher
	cache     port.SnapshotCache
	listener  port.OrderListener
	feeRate   decimal.Decimal
	log       *slog.Logger

	tradeSeq atomic.Uint64
	now      func() time.Time
}

func NewEngine(pairs port.PairProvider, settler port.TradeSettler, publisher port.SnapshotPublisher, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.DefaultFeeRate.IsPositive() {
		opts.DefaultFeeRate = DefaultFeeRate
	}
	return &Engine{
		pairs:     pairs,
		settler:   settler,
		publisher: publisher,
		cache:     opts.Cache,
		listener:  opts.Listener,
		feeRate:   opts.DefaultFeeRate,
		log:       opts.Logger.With("component", "engine"),
		now:       time.Now,
	}
}

// InitializeOrderBook creates the book for symbol if it does not exist yet.
func (e *Engine) InitializeOrderBook(symbol string) *OrderBook {
	return e.getOrCreateOrderbook(symbol)
}

func (e *Engine) getOrCreateOrderbook(symbol string) *OrderBook {
	if ob, ok := e.books.Load(symbol); ok {
		return ob.(*OrderBook)
	}
	ob := NewOrderBook(symbol)
	ob.now = e.now
	actual, _ := e.books.LoadOrStore(symbol, ob)
	return actual.(*OrderBook)
}

func (e *Engine) OrderBook(symbol string) (*OrderBook, bool) {
	ob, ok := e.books.Load(symbol)
	if !ok {
		return nil, false
	}
	return ob.(*OrderBook), true
}

// ProcessOrder matches o against the opposite side of its book, then rests,
// or cancels, whatever is left.
func (e *Engine) ProcessOrder(o *domain.Order) error {
	if err := checkProcessable(o); err != nil {
		if o != nil {
			e.cancel(o)
			e.closed(o)
		}
		return err
	}
	ob := e.getOrCreateOrderbook(o.Symbol)
	feeRate := e.feeRateFor(o.Symbol)

	if o.TimeInForce == domain.FOK && ob.Available(o).LessThan(o.Remaining()) {
		e.cancel(o)
		e.closed(o)
		e.log.Info("fok order not fillable, cancelled", "symbol", o.Symbol, "order_no", o.OrderNo)
		e.publishSnapshot(ob)
		return nil
	}

	for o.Remaining().IsPositive() {
		resting := ob.Best(o.Side.Opposite())
		if resting == nil || !o.Crosses(resting.Price) {
			break
		}
		amount := decimal.Min(o.Remaining(), resting.Remaining())
		trade := e.newTrade(o, resting, amount, feeRate)
		ob.Execute(resting, o, trade)
		metrics.TradesExecuted.WithLabelValues(o.Symbol).Inc()

		if resting.Status.Terminal() {
			e.closed(resting)
		}
		if e.settler != nil {
			e.settler.Settle(&trade)
		}
	}

	if o.Remaining().IsPositive() {
		if o.CanRest() {
			if err := ob.AddOrder(o); err != nil {
				e.cancel(o)
				e.closed(o)
				return fmt.Errorf("rest order %s: %w", o.OrderNo, err)
			}
		} else {
			e.cancel(o)
		}
	}
	if o.Status.Terminal() {
		e.closed(o)
	}
	e.publishSnapshot(ob)
	return nil
}

// CancelOrder removes o from its book. It reports whether a resting order was
// actually removed; an order that is not in the book is left untouched.
func (e *Engine) CancelOrder(o *domain.Order) bool {
	if o == nil {
		return false
	}
	ob, ok := e.OrderBook(o.Symbol)
	if !ok {
		return false
	}
	if err := ob.RemoveOrder(o); err != nil {
		e.log.Debug("cancel ignored", "symbol", o.Symbol, "order_no", o.OrderNo, "error", err)
		return false
	}
	e.cancel(o)
	e.closed(o)
	e.publishSnapshot(ob)
	return true
}

// ModifyOrder cancels old and submits replacement in its place. The
// replacement is only processed when old was still resting.
func (e *Engine) ModifyOrder(old, replacement *domain.Order) error {
	if replacement == nil {
		return fmt.Errorf("%w: modify without replacement", ErrInvalidOrder)
	}
	if !e.CancelOrder(old) {
		e.cancel(replacement)
		e.closed(replacement)
		e.log.Info("modify skipped, order no longer resting", "symbol", replacement.Symbol, "order_no", replacement.OrderNo)
		return nil
	}
	return e.ProcessOrder(replacement)
}

// ClearOrderBook empties the book for symbol. Resting orders are cancelled.
func (e *Engine) ClearOrderBook(symbol string) error {
	ob, ok := e.OrderBook(symbol)
	if !ok {
		return ErrSymbolNotFound
	}
	for _, s := range []domain.Side{domain.Buy, domain.Sell} {
		for o := ob.Best(s); o != nil; o = ob.Best(s) {
			_ = ob.RemoveOrder(o)
			e.cancel(o)
			e.closed(o)
		}
	}
	ob.Clear()
	e.log.Warn("order book cleared", "symbol", symbol)
	e.publishSnapshot(ob)
	return nil
}

func (e *Engine) ClearAll() {
	for _, symbol := range e.ActiveSymbols() {
		_ = e.ClearOrderBook(symbol)
	}
}

func (e *Engine) ActiveSymbols() []string {
	var out []string
	e.books.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

func (e *Engine) GetLatestPrice(symbol string) (decimal.Decimal, bool) {
	ob, ok := e.OrderBook(symbol)
	if !ok {
		return decimal.Zero, false
	}
	return ob.LatestPrice()
}

// GetOrderBookSnapshot serves the in-memory book, falling back to the
// snapshot cache for symbols this instance has not seen.
func (e *Engine) GetOrderBookSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error) {
	if ob, ok := e.OrderBook(symbol); ok {
		return ob.Snapshot(), nil
	}
	return getOrLoadSnapshot(ctx, e.cache, symbol)
}

func (e *Engine) newTrade(taker, maker *domain.Order, amount, feeRate decimal.Decimal) domain.TradeRecord {
	now := e.now()
	value := amount.Mul(maker.Price)
	fee := value.Mul(feeRate).Round(feeScale)
	return domain.TradeRecord{
		TradeNo:      e.nextTradeNo(now),
		Symbol:       taker.Symbol,
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		MakerUserID:  maker.UserID,
		TakerUserID:  taker.UserID,
		TakerSide:    taker.Side,
		Price:        maker.Price,
		Amount:       amount,
		Value:        value,
		MakerFee:     fee,
		TakerFee:     fee,
		CreatedAt:    now,
	}
}

// nextTradeNo is "T" + unix millis + a six digit rolling sequence. It is
// unique while fewer than a million trades share one millisecond.
func (e *Engine) nextTradeNo(now time.Time) string {
	seq := e.tradeSeq.Add(1)
	return fmt.Sprintf("T%d%06d", now.UnixMilli(), seq%1_000_000)
}

func (e *Engine) feeRateFor(symbol string) decimal.Decimal {
	if e.pairs != nil {
		if p, ok := e.pairs.Pair(symbol); ok && p.FeeRate.IsPositive() {
			return p.FeeRate
		}
	}
	return e.feeRate
}

func (e *Engine) cancel(o *domain.Order) {
	o.Cancel(e.now())
}

func (e *Engine) closed(o *domain.Order) {
	if e.listener != nil {
		e.listener.OrderClosed(o)
	}
}

func (e *Engine) publishSnapshot(ob *OrderBook) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(ob.Snapshot())
}

func checkProcessable(o *domain.Order) error {
	switch {
	case o == nil:
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	case o.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	case !o.Side.Valid():
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	case !o.Type.Valid():
		return fmt.Errorf("%w: order type %q", ErrInvalidOrder, o.Type)
	case o.Type == domain.Limit && !o.Price.IsPositive():
		return fmt.Errorf("%w: limit order %s without positive price", ErrInvalidOrder, o.OrderNo)
	case !o.Remaining().IsPositive():
		return fmt.Errorf("%w: order %s has nothing left to fill", ErrInvalidOrder, o.OrderNo)
	case o.Status.Terminal():
		return fmt.Errorf("%w: order %s is %s", ErrInvalidOrder, o.OrderNo, o.Status)
	}
	return nil
}
