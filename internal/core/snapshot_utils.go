package core

import (
	"context"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
)

func getOrLoadSnapshot(ctx context.Context, cache port.SnapshotCache, symbol string) (*domain.OrderbookSnapshot, error) {
	if cache == nil {
		return nil, ErrSymbolNotFound
	}
	snap, err := cache.GetSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrSymbolNotFound
	}
	return snap.DeepCopy(), nil
}
