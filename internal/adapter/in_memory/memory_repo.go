package in_memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
	"github.com/shopspring/decimal"
)

// PairStore is the in-process trading pair configuration. It is refreshed
// out of band from a PairLoader.
type PairStore struct {
	mu    sync.RWMutex
	pairs map[string]domain.TradingPair
}

var _ port.PairProvider = (*PairStore)(nil)

func NewPairStore(pairs ...domain.TradingPair) *PairStore {
	s := &PairStore{pairs: make(map[string]domain.TradingPair)}
	s.Replace(pairs)
	return s
}

// DefaultPair is an enabled pair with eight decimal places and no bounds.
func DefaultPair(symbol string, feeRate decimal.Decimal) domain.TradingPair {
	return domain.TradingPair{
		Symbol:          symbol,
		Enabled:         true,
		PricePrecision:  8,
		AmountPrecision: 8,
		FeeRate:         feeRate,
	}
}

func (s *PairStore) Pair(symbol string) (domain.TradingPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pairs[symbol]
	return p, ok
}

func (s *PairStore) Pairs() []domain.TradingPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TradingPair, 0, len(s.pairs))
	for _, p := range s.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *PairStore) Replace(pairs []domain.TradingPair) {
	next := make(map[string]domain.TradingPair, len(pairs))
	for _, p := range pairs {
		next[p.Symbol] = p
	}
	s.mu.Lock()
	s.pairs = next
	s.mu.Unlock()
}

// Refresh reloads the pairs every interval until ctx is done. A failed load
// keeps the previous configuration.
func (s *PairStore) Refresh(ctx context.Context, loader port.PairLoader, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pairs, err := loader.LoadPairs(ctx)
			if err != nil {
				log.Warn("trading pair refresh failed", "error", err)
				continue
			}
			s.Replace(pairs)
		}
	}
}

// TradeLog records every applied trade. Used as a sink in tests and when no
// settlement backend is configured.
type TradeLog struct {
	mu     sync.Mutex
	trades []domain.TradeRecord
	seen   map[string]struct{}
}

var _ port.TradeSink = (*TradeLog)(nil)

func NewTradeLog() *TradeLog {
	return &TradeLog{seen: make(map[string]struct{})}
}

func (l *TradeLog) ApplyTrade(ctx context.Context, t *domain.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[t.TradeNo]; ok {
		return nil
	}
	l.seen[t.TradeNo] = struct{}{}
	l.trades = append(l.trades, *t)
	return nil
}

func (l *TradeLog) Trades() []domain.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.TradeRecord(nil), l.trades...)
}

// Outbox is a map-backed port.TradeOutbox.
type Outbox struct {
	mu     sync.Mutex
	trades map[string]domain.TradeRecord
}

var _ port.TradeOutbox = (*Outbox)(nil)

func NewOutbox() *Outbox {
	return &Outbox{trades: make(map[string]domain.TradeRecord)}
}

func (o *Outbox) Put(t *domain.TradeRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trades[t.TradeNo] = *t
	return nil
}

func (o *Outbox) Delete(tradeNo string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.trades, tradeNo)
	return nil
}

// Scan visits a copy of the contents in trade number order, so fn may call
// Put and Delete.
func (o *Outbox) Scan(fn func(t *domain.TradeRecord) error) error {
	o.mu.Lock()
	pending := make([]domain.TradeRecord, 0, len(o.trades))
	for _, t := range o.trades {
		pending = append(pending, t)
	}
	o.mu.Unlock()
	sort.Slice(pending, func(i, j int) bool { return pending[i].TradeNo < pending[j].TradeNo })
	for i := range pending {
		if err := fn(&pending[i]); err != nil {
			return err
		}
	}
	return nil
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.trades)
}
