package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepthLevel is the aggregated remaining amount at one price.
type DepthLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Orders int             `json:"orders"`
}

type OrderbookSnapshot struct {
	Symbol       string              `json:"symbol"`
	Sequence     uint64              `json:"sequence"`
	LatestPrice  decimal.NullDecimal `json:"latestPrice"`
	LatestVolume decimal.NullDecimal `json:"latestVolume"`
	Bids         []DepthLevel        `json:"buyOrders"`
	Asks         []DepthLevel        `json:"sellOrders"`
	RecentTrades []TradeRecord       `json:"recentTrades"`
	Timestamp    time.Time           `json:"timestamp"`
}

func (s *OrderbookSnapshot) DeepCopy() *OrderbookSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Bids = append([]DepthLevel(nil), s.Bids...)
	cp.Asks = append([]DepthLevel(nil), s.Asks...)
	cp.RecentTrades = append([]TradeRecord(nil), s.RecentTrades...)
	return &cp
}

// EmptySnapshot is what a reader sees for a symbol with no book yet.
func EmptySnapshot(symbol string, at time.Time) *OrderbookSnapshot {
	return &OrderbookSnapshot{
		Symbol:       symbol,
		Bids:         []DepthLevel{},
		Asks:         []DepthLevel{},
		RecentTrades: []TradeRecord{},
		Timestamp:    at,
	}
}
