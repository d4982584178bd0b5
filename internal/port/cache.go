package port

import (
	"context"

	"github.com/olyamironova/matching-core/internal/domain"
)

// SnapshotSink receives every published order book snapshot.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, snap *domain.OrderbookSnapshot) error
}

// SnapshotCache serves the last published snapshot for a symbol. A miss
// returns nil, nil.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error)
}

// SnapshotPublisher is the non-blocking handoff used by the matching path.
type SnapshotPublisher interface {
	Publish(snap *domain.OrderbookSnapshot)
}

// Deduper reserves an order number once. It reports false if the number was
// already reserved. Release frees a reservation whose order was never enqueued.
type Deduper interface {
	Reserve(ctx context.Context, orderNo string) (bool, error)
	Release(ctx context.Context, orderNo string) error
}
