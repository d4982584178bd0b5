package core

import (
	"errors"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	TradeHistorySize = 1000
	SnapshotDepth    = 20
	SnapshotTrades   = 50

	btreeDegree = 16
)

var (
	ErrOrderNotFound = errors.New("order not found in book")
	ErrNotRestable   = errors.New("order cannot rest in book")
)

// priceLevel holds the resting orders at one price in arrival order.
type priceLevel struct {
	price  decimal.Decimal
	orders []*domain.Order
}

func (l *priceLevel) remaining() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range l.orders {
		sum = sum.Add(o.Remaining())
	}
	return sum
}

// OrderBook is the per-symbol limit order book. Mutations are expected from a
// single goroutine; reads may run concurrently and see a consistent state.
type OrderBook struct {
	symbol string

	mu           sync.RWMutex
	bids         *btree.BTreeG[*priceLevel] // best (highest) first
	asks         *btree.BTreeG[*priceLevel] // best (lowest) first
	trades       *tradeTape
	sequence     uint64
	latestPrice  decimal.NullDecimal
	latestVolume decimal.NullDecimal
	now          func() time.Time
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids: btree.NewG(btreeDegree, func(a, b *priceLevel) bool {
			return a.price.GreaterThan(b.price)
		}),
		asks: btree.NewG(btreeDegree, func(a, b *priceLevel) bool {
			return a.price.LessThan(b.price)
		}),
		trades: newTradeTape(TradeHistorySize),
		now:    time.Now,
	}
}

func (ob *OrderBook) Symbol() string { return ob.symbol }

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[*priceLevel] {
	if s == domain.Buy {
		return ob.bids
	}
	return ob.asks
}

// AddOrder appends o to the tail of its price level.
func (ob *OrderBook) AddOrder(o *domain.Order) error {
	if o.Type != domain.Limit || !o.Remaining().IsPositive() || o.Status.Terminal() {
		return ErrNotRestable
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()

	tree := ob.side(o.Side)
	lvl, ok := tree.Get(&priceLevel{price: o.Price})
	if !ok {
		lvl = &priceLevel{price: o.Price}
		tree.ReplaceOrInsert(lvl)
	}
	lvl.orders = append(lvl.orders, o)
	ob.sequence++
	return nil
}

// RemoveOrder removes o by id. The level is dropped once empty.
func (ob *OrderBook) RemoveOrder(o *domain.Order) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.removeLocked(o)
}

func (ob *OrderBook) removeLocked(o *domain.Order) error {
	tree := ob.side(o.Side)
	lvl, ok := tree.Get(&priceLevel{price: o.Price})
	if !ok {
		return ErrOrderNotFound
	}
	idx := -1
	for i, resting := range lvl.orders {
		if resting.ID == o.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrOrderNotFound
	}
	lvl.orders = append(lvl.orders[:idx], lvl.orders[idx+1:]...)
	if len(lvl.orders) == 0 {
		tree.Delete(lvl)
	}
	ob.sequence++
	return nil
}

func (ob *OrderBook) BestBuy() *domain.Order  { return ob.Best(domain.Buy) }
func (ob *OrderBook) BestSell() *domain.Order { return ob.Best(domain.Sell) }

// Best returns the first order at the best price of side, or nil.
func (ob *OrderBook) Best(s domain.Side) *domain.Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	lvl, ok := ob.side(s).Min()
	if !ok {
		return nil
	}
	return lvl.orders[0]
}

// RecordTrade appends t to the trade history and moves the latest price.
func (ob *OrderBook) RecordTrade(t domain.TradeRecord) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.recordLocked(t)
}

func (ob *OrderBook) recordLocked(t domain.TradeRecord) {
	ob.trades.append(t)
	ob.latestPrice = decimal.NewNullDecimal(t.Price)
	ob.latestVolume = decimal.NewNullDecimal(t.Amount)
	ob.sequence++
}

// Execute applies one trade between a resting maker and an incoming taker as
// a single step, so readers never observe the fill without the trade.
func (ob *OrderBook) Execute(maker, taker *domain.Order, t domain.TradeRecord) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	maker.Fill(t.Amount, t.Value, t.MakerFee, t.CreatedAt)
	taker.Fill(t.Amount, t.Value, t.TakerFee, t.CreatedAt)
	ob.recordLocked(t)
	if !maker.Remaining().IsPositive() {
		_ = ob.removeLocked(maker)
	}
}

// Available sums the resting amount o could trade against, stopping once it
// reaches o's remainder.
func (ob *OrderBook) Available(o *domain.Order) decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	need := o.Remaining()
	sum := decimal.Zero
	ob.side(o.Side.Opposite()).Ascend(func(lvl *priceLevel) bool {
		if !o.Crosses(lvl.price) {
			return false
		}
		sum = sum.Add(lvl.remaining())
		return sum.LessThan(need)
	})
	return sum
}

func (ob *OrderBook) BuyDepth(limit int) []domain.DepthLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return depth(ob.bids, limit)
}

func (ob *OrderBook) SellDepth(limit int) []domain.DepthLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return depth(ob.asks, limit)
}

func depth(tree *btree.BTreeG[*priceLevel], limit int) []domain.DepthLevel {
	out := make([]domain.DepthLevel, 0, min(limit, tree.Len()))
	if limit <= 0 {
		return out
	}
	tree.Ascend(func(lvl *priceLevel) bool {
		out = append(out, domain.DepthLevel{
			Price:  lvl.price,
			Amount: lvl.remaining(),
			Orders: len(lvl.orders),
		})
		return len(out) < limit
	})
	return out
}

func (ob *OrderBook) RecentTrades(n int) []domain.TradeRecord {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.trades.last(n)
}

func (ob *OrderBook) TradeCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.trades.len()
}

func (ob *OrderBook) Sequence() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sequence
}

func (ob *OrderBook) LatestPrice() (decimal.Decimal, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.latestPrice.Decimal, ob.latestPrice.Valid
}

// OrderCount returns the number of resting orders on side.
func (ob *OrderBook) OrderCount(s domain.Side) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	n := 0
	ob.side(s).Ascend(func(lvl *priceLevel) bool {
		n += len(lvl.orders)
		return true
	})
	return n
}

// Snapshot captures depth, recent trades and latest price in one read.
func (ob *OrderBook) Snapshot() *domain.OrderbookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return &domain.OrderbookSnapshot{
		Symbol:       ob.symbol,
		Sequence:     ob.sequence,
		LatestPrice:  ob.latestPrice,
		LatestVolume: ob.latestVolume,
		Bids:         depth(ob.bids, SnapshotDepth),
		Asks:         depth(ob.asks, SnapshotDepth),
		RecentTrades: ob.trades.last(SnapshotTrades),
		Timestamp:    ob.now(),
	}
}

// Clear empties both sides and the trade history and resets the sequence.
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids.Clear(false)
	ob.asks.Clear(false)
	ob.trades.reset()
	ob.sequence = 0
	ob.latestPrice = decimal.NullDecimal{}
	ob.latestVolume = decimal.NullDecimal{}
}
