package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
)

// Cache keeps the last snapshot per symbol. It serves as both sink and
// read-through source when no redis is configured.
type Cache struct {
	mu    sync.Mutex
	store map[string]*domain.OrderbookSnapshot
}

var (
	_ port.SnapshotSink  = (*Cache)(nil)
	_ port.SnapshotCache = (*Cache)(nil)
)

func NewCache() *Cache {
	return &Cache{store: make(map[string]*domain.OrderbookSnapshot)}
}

func (c *Cache) WriteSnapshot(ctx context.Context, snap *domain.OrderbookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[snap.Symbol] = snap.DeepCopy()
	return nil
}

func (c *Cache) GetSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.store[symbol]
	if !ok {
		return nil, nil
	}
	return snap.DeepCopy(), nil
}

// Deduper remembers reserved order numbers for the process lifetime.
type Deduper struct {
	seen sync.Map
}

var _ port.Deduper = (*Deduper)(nil)

func NewDeduper() *Deduper { return &Deduper{} }

func (d *Deduper) Reserve(ctx context.Context, orderNo string) (bool, error) {
	_, loaded := d.seen.LoadOrStore(orderNo, struct{}{})
	return !loaded, nil
}

func (d *Deduper) Release(ctx context.Context, orderNo string) error {
	d.seen.Delete(orderNo)
	return nil
}
