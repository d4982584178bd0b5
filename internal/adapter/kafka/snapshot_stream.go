package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
	kafkago "github.com/segmentio/kafka-go"
)

// SnapshotStream writes every snapshot to a log-compacted topic keyed by
// symbol, so a reader only ever needs the last record per key.
type SnapshotStream struct {
	writer *kafkago.Writer
}

var _ port.SnapshotSink = (*SnapshotStream)(nil)

func NewSnapshotStream(brokers []string, topic string) *SnapshotStream {
	return &SnapshotStream{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (s *SnapshotStream) WriteSnapshot(ctx context.Context, snap *domain.OrderbookSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("kafka: encode snapshot: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(snap.Symbol),
		Value: b,
	})
}

func (s *SnapshotStream) Close() error {
	return s.writer.Close()
}
