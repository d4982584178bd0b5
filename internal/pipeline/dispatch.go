package pipeline

import (
	"fmt"

	"github.com/olyamironova/matching-core/internal/domain"
)

// Matcher is the engine surface the consumer drives.
type Matcher interface {
	ProcessOrder(o *domain.Order) error
	CancelOrder(o *domain.Order) bool
	ModifyOrder(old, replacement *domain.Order) error
	ClearOrderBook(symbol string) error
}

// EngineHandler routes each event type to the matching engine.
type EngineHandler struct {
	Engine Matcher
}

func (h EngineHandler) Handle(ev domain.OrderEvent) error {
	switch ev.Type {
	case domain.NewOrder:
		return h.Engine.ProcessOrder(ev.Order)
	case domain.CancelOrder:
		h.Engine.CancelOrder(ev.Order)
		return nil
	case domain.ModifyOrder:
		return h.Engine.ModifyOrder(ev.Order, ev.Replacement)
	case domain.ClearBook:
		return h.Engine.ClearOrderBook(ev.Symbol)
	}
	return fmt.Errorf("unknown event type %d", ev.Type)
}
