package port

import (
	"context"

	"github.com/olyamironova/matching-core/internal/domain"
)

// TradeSink applies an executed trade downstream. Implementations must be
// idempotent by trade number since trades can be redelivered.
type TradeSink interface {
	ApplyTrade(ctx context.Context, t *domain.TradeRecord) error
}

// TradeSettler is the non-blocking handoff used by the matching path.
type TradeSettler interface {
	Settle(t *domain.TradeRecord)
}

// TradeOutbox durably holds trades until every sink has acknowledged them.
type TradeOutbox interface {
	Put(t *domain.TradeRecord) error
	Delete(tradeNo string) error
	Scan(fn func(t *domain.TradeRecord) error) error
}

// PairProvider is read-only from the matching core's perspective.
type PairProvider interface {
	Pair(symbol string) (domain.TradingPair, bool)
	Pairs() []domain.TradingPair
}

type PairLoader interface {
	LoadPairs(ctx context.Context) ([]domain.TradingPair, error)
}

// OrderListener is told when an order leaves the book for good.
type OrderListener interface {
	OrderClosed(o *domain.Order)
}
