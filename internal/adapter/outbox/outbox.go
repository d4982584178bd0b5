// Package outbox keeps executed trades on disk until settlement has
// delivered them everywhere.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
)

const keyPrefix = "trade/"

type Outbox struct {
	db *pebble.DB
}

var _ port.TradeOutbox = (*Outbox)(nil)

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", dir, err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func (o *Outbox) Put(t *domain.TradeRecord) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("outbox: encode %s: %w", t.TradeNo, err)
	}
	return o.db.Set(keyFor(t.TradeNo), b, pebble.Sync)
}

func (o *Outbox) Delete(tradeNo string) error {
	return o.db.Delete(keyFor(tradeNo), pebble.Sync)
}

// Get returns the pending trade for tradeNo, or nil if there is none.
func (o *Outbox) Get(tradeNo string) (*domain.TradeRecord, error) {
	val, closer, err := o.db.Get(keyFor(tradeNo))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var t domain.TradeRecord
	if err := json.Unmarshal(val, &t); err != nil {
		return nil, fmt.Errorf("outbox: decode %s: %w", tradeNo, err)
	}
	return &t, nil
}

// Scan visits pending trades in trade number order.
func (o *Outbox) Scan(fn func(t *domain.TradeRecord) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var t domain.TradeRecord
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return fmt.Errorf("outbox: decode %s: %w", iter.Key(), err)
		}
		if err := fn(&t); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(tradeNo string) []byte {
	return []byte(keyPrefix + tradeNo)
}
