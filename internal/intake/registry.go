package intake

import (
	"sync"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
)

// Registry maps order numbers to the live order the book holds. Entries are
// dropped once the engine reports the order closed.
type Registry struct {
	orders sync.Map // orderNo -> *domain.Order
}

var _ port.OrderListener = (*Registry)(nil)

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Get(orderNo string) (*domain.Order, bool) {
	v, ok := r.orders.Load(orderNo)
	if !ok {
		return nil, false
	}
	return v.(*domain.Order), true
}

func (r *Registry) put(o *domain.Order) { r.orders.Store(o.OrderNo, o) }

// OrderClosed only removes the entry if it still points at o, so a modify
// replacement survives the close of the order it replaced.
func (r *Registry) OrderClosed(o *domain.Order) {
	r.orders.CompareAndDelete(o.OrderNo, o)
}

func (r *Registry) Len() int {
	n := 0
	r.orders.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
