package core

import (
	"fmt"

	"github.com/olyamironova/matching-core/internal/adapter/in_memory"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/shopspring/decimal"
)

const symbol = "BTCUSDT"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limit(id int64, side domain.Side, price, amount string) *domain.Order {
	return &domain.Order{
		ID:          id,
		OrderNo:     fmt.Sprintf("O%d", id),
		UserID:      100 + id,
		Symbol:      symbol,
		Side:        side,
		Type:        domain.Limit,
		Price:       d(price),
		Amount:      d(amount),
		Status:      domain.Pending,
		TimeInForce: domain.GTC,
	}
}

func market(id int64, side domain.Side, amount string) *domain.Order {
	o := limit(id, side, "0", amount)
	o.Type = domain.Market
	o.Price = decimal.Zero
	return o
}

type recordingSettler struct {
	trades []*domain.TradeRecord
}

func (s *recordingSettler) Settle(t *domain.TradeRecord) { s.trades = append(s.trades, t) }

type recordingPublisher struct {
	snaps []*domain.OrderbookSnapshot
}

func (p *recordingPublisher) Publish(s *domain.OrderbookSnapshot) { p.snaps = append(p.snaps, s) }

func (p *recordingPublisher) last() *domain.OrderbookSnapshot {
	if len(p.snaps) == 0 {
		return nil
	}
	return p.snaps[len(p.snaps)-1]
}

type recordingListener struct {
	closed []string
}

func (l *recordingListener) OrderClosed(o *domain.Order) { l.closed = append(l.closed, o.OrderNo) }

type fixture struct {
	engine    *Engine
	settler   *recordingSettler
	publisher *recordingPublisher
	listener  *recordingListener
	cache     *in_memory.Cache
}

func newFixture(pairs ...domain.TradingPair) *fixture {
	if len(pairs) == 0 {
		pairs = append(pairs, in_memory.DefaultPair(symbol, d("0.001")))
	}
	f := &fixture{
		settler:   &recordingSettler{},
		publisher: &recordingPublisher{},
		listener:  &recordingListener{},
		cache:     in_memory.NewCache(),
	}
	f.engine = NewEngine(in_memory.NewPairStore(pairs...), f.settler, f.publisher, Options{
		Cache:    f.cache,
		Listener: f.listener,
	})
	return f
}
