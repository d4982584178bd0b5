// Package settlement hands executed trades to downstream sinks off the
// matching goroutine.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/metrics"
	"github.com/olyamironova/matching-core/internal/port"
)

type Config struct {
	QueueSize         int
	SinkTimeout       time.Duration
	RedeliverInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:         65536,
		SinkTimeout:       5 * time.Second,
		RedeliverInterval: 5 * time.Second,
	}
}

// Dispatcher implements port.TradeSettler. Every trade is written to the
// outbox (when configured) before delivery and deleted once all sinks
// accepted it; anything left behind is redelivered.
type Dispatcher struct {
	cfg    Config
	outbox port.TradeOutbox
	sinks  []port.TradeSink
	log    *slog.Logger
	queue  chan *domain.TradeRecord

	mu     sync.RWMutex
	closed bool

	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

var _ port.TradeSettler = (*Dispatcher)(nil)

func NewDispatcher(cfg Config, outbox port.TradeOutbox, log *slog.Logger, sinks ...port.TradeSink) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = def.SinkTimeout
	}
	if cfg.RedeliverInterval <= 0 {
		cfg.RedeliverInterval = def.RedeliverInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		outbox: outbox,
		sinks:  sinks,
		log:    log.With("component", "settlement"),
		queue:  make(chan *domain.TradeRecord, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Settle queues t without blocking. A full queue drops the trade.
func (d *Dispatcher) Settle(t *domain.TradeRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Error("settlement closed, trade not delivered", "trade_no", t.TradeNo, "symbol", t.Symbol)
		metrics.SettlementDropped.Inc()
		return
	}
	select {
	case d.queue <- t:
	default:
		d.log.Error("settlement queue full, trade not delivered", "trade_no", t.TradeNo, "symbol", t.Symbol)
		metrics.SettlementDropped.Inc()
	}
}

func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.run(ctx)
}

// Replay delivers every trade still held in the outbox.
func (d *Dispatcher) Replay(ctx context.Context) error {
	if d.outbox == nil {
		return nil
	}
	n := 0
	err := d.outbox.Scan(func(t *domain.TradeRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.deliver(ctx, t) {
			n++
		}
		return nil
	})
	if n > 0 {
		d.log.Info("replayed outbox trades", "count", n)
	}
	if err != nil {
		return fmt.Errorf("settlement: replay: %w", err)
	}
	return nil
}

// Stop stops accepting trades and waits for the queue to drain.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		if d.cancel == nil {
			close(d.done)
		}
	})
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		return fmt.Errorf("settlement: stop: %w", ctx.Err())
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.cancel()

	ticker := time.NewTicker(d.cfg.RedeliverInterval)
	defer ticker.Stop()
	for {
		select {
		case t, ok := <-d.queue:
			if !ok {
				return
			}
			d.handle(ctx, t)
		case <-ticker.C:
			if err := d.Replay(ctx); err != nil {
				d.log.Warn("outbox redelivery failed", "error", err)
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, t *domain.TradeRecord) {
	if d.outbox != nil {
		if err := d.outbox.Put(t); err != nil {
			d.log.Error("outbox write failed", "trade_no", t.TradeNo, "error", err)
		}
	}
	d.deliver(ctx, t)
}

// deliver pushes t to every sink and clears it from the outbox if all of
// them accepted it.
func (d *Dispatcher) deliver(ctx context.Context, t *domain.TradeRecord) bool {
	ok := true
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
		err := sink.ApplyTrade(sctx, t)
		cancel()
		if err != nil {
			ok = false
			name := fmt.Sprintf("%T", sink)
			metrics.SettlementFailures.WithLabelValues(name).Inc()
			d.log.Warn("trade sink failed", "sink", name, "trade_no", t.TradeNo, "symbol", t.Symbol, "error", err)
		}
	}
	if ok && d.outbox != nil {
		if err := d.outbox.Delete(t.TradeNo); err != nil {
			d.log.Warn("outbox delete failed", "trade_no", t.TradeNo, "error", err)
		}
	}
	return ok
}
