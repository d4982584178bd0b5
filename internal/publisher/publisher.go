// Package publisher delivers order book snapshots to external readers
// without blocking the matching goroutine.
package publisher

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

const DefaultSinkTimeout = 2 * time.Second

// Publisher keeps at most one pending snapshot per symbol. A newer snapshot
// replaces an undelivered older one, so slow sinks only ever see the latest
// state.
type Publisher struct {
	sinks       []port.SnapshotSink
	sinkTimeout time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	pending map[string]*domain.OrderbookSnapshot
	closed  bool

	triggerCh chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

var _ port.SnapshotPublisher = (*Publisher)(nil)

func New(sinkTimeout time.Duration, log *slog.Logger, sinks ...port.SnapshotSink) *Publisher {
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
		log:         log.With("component", "publisher"),
		pending:     make(map[string]*domain.OrderbookSnapshot),
		triggerCh:   make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
}

func (p *Publisher) Start() { go p.loop() }

// Publish never blocks.
func (p *Publisher) Publish(snap *domain.OrderbookSnapshot) {
	if snap == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if _, ok := p.pending[snap.Symbol]; ok {
		metrics.SnapshotsCoalesced.Inc()
	}
	p.pending[snap.Symbol] = snap
	p.mu.Unlock()

	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Stop flushes whatever is pending and stops the worker.
func (p *Publisher) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.stopCh)
	})
	select {
	case <-p.stoppedCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publisher: stop: %w", ctx.Err())
	}
}

func (p *Publisher) loop() {
	defer close(p.stoppedCh)
	for {
		select {
		case <-p.triggerCh:
			p.flush()
		case <-p.stopCh:
			p.flush()
			return
		}
	}
}

func (p *Publisher) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]*domain.OrderbookSnapshot, len(batch))
	p.mu.Unlock()

	for _, snap := range batch {
		p.deliver(snap)
	}
}

func (p *Publisher) deliver(snap *domain.OrderbookSnapshot) {
	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), p.sinkTimeout)
		err := sink.WriteSnapshot(ctx, snap)
		cancel()
		if err != nil {
			name := fmt.Sprintf("%T", sink)
			metrics.SnapshotFailures.WithLabelValues(name).Inc()
			p.log.Warn("snapshot sink failed", "sink", name, "symbol", snap.Symbol, "sequence", snap.Sequence, "error", err)
		}
	}
}
