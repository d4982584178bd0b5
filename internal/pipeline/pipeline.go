// Package pipeline serializes order events from many producers into one
// consumer goroutine, in publication order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/metrics"
)

var (
	ErrClosed     = errors.New("pipeline: closed")
	ErrNotStarted = errors.New("pipeline: not started")
)

const DefaultRingSize = 1024

// Handler processes one event. It is only ever called from the consumer.
type Handler interface {
	Handle(ev domain.OrderEvent) error
}

type HandlerFunc func(ev domain.OrderEvent) error

func (f HandlerFunc) Handle(ev domain.OrderEvent) error { return f(ev) }

// Pipeline is a bounded single-consumer ring. Publish blocks while the ring
// is full; Stop drains every event published before it.
type Pipeline struct {
	handler Handler
	log     *slog.Logger
	ring    chan domain.OrderEvent

	mu      sync.RWMutex // guards started/closed against ring close
	started bool
	closed  bool

	done     chan struct{}
	stopOnce sync.Once
}

func New(ringSize int, handler Handler, log *slog.Logger) *Pipeline {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		handler: handler,
		log:     log.With("component", "pipeline"),
		ring:    make(chan domain.OrderEvent, ringSize),
		done:    make(chan struct{}),
	}
}

// Start launches the consumer. Calling it twice is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go p.consume()
}

// Publish enqueues ev, waiting for room until ctx is done.
func (p *Pipeline) Publish(ctx context.Context, ev domain.OrderEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if !p.started {
		return ErrNotStarted
	}
	select {
	case p.ring <- ev:
		metrics.EventsPublished.WithLabelValues(ev.Type.String()).Inc()
		metrics.PipelineDepth.Set(float64(len(p.ring)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: publish %s: %w", ev.Type, ctx.Err())
	}
}

// Stop rejects new publishes and waits until the consumer has drained the
// ring or ctx is done.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		started := p.started
		close(p.ring)
		p.mu.Unlock()
		if !started {
			close(p.done)
		}
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: stop: %w", ctx.Err())
	}
}

// Len reports how many events are waiting.
func (p *Pipeline) Len() int { return len(p.ring) }

func (p *Pipeline) consume() {
	defer close(p.done)
	var seq uint64
	for ev := range p.ring {
		seq++
		ev.Seq = seq
		p.dispatch(ev)
		metrics.PipelineDepth.Set(float64(len(p.ring)))
	}
	p.log.Info("pipeline drained", "processed", seq)
}

func (p *Pipeline) dispatch(ev domain.OrderEvent) {
	kind := ev.Type.String()
	defer func() {
		if r := recover(); r != nil {
			metrics.EventsDropped.WithLabelValues(kind).Inc()
			p.log.Error("event handler panicked, event dropped",
				"type", kind, "seq", ev.Seq, "order_no", orderNo(ev), "panic", r)
		}
	}()
	if err := p.handler.Handle(ev); err != nil {
		metrics.EventsDropped.WithLabelValues(kind).Inc()
		p.log.Error("event processing failed, event dropped",
			"type", kind, "seq", ev.Seq, "order_no", orderNo(ev), "error", err)
		return
	}
	metrics.EventsProcessed.WithLabelValues(kind).Inc()
}

func orderNo(ev domain.OrderEvent) string {
	if ev.Order != nil {
		return ev.Order.OrderNo
	}
	return ""
}
