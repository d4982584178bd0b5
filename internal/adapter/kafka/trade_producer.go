package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
)

// TradeProducer publishes executed trades for the ledger service, keyed by
// symbol.
type TradeProducer struct {
	producer sarama.SyncProducer
	topic    string
}

var _ port.TradeSink = (*TradeProducer)(nil)

func NewTradeProducer(producer sarama.SyncProducer, topic string) *TradeProducer {
	return &TradeProducer{producer: producer, topic: topic}
}

func (p *TradeProducer) ApplyTrade(ctx context.Context, t *domain.TradeRecord) error {
	msg, err := tradeMessage(p.topic, t)
	if err != nil {
		return err
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: send trade %s: %w", t.TradeNo, err)
	}
	return nil
}

func (p *TradeProducer) Close() error {
	return p.producer.Close()
}

func tradeMessage(topic string, t *domain.TradeRecord) (*sarama.ProducerMessage, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("kafka: encode trade %s: %w", t.TradeNo, err)
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(t.Symbol),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("trade-no"), Value: []byte(t.TradeNo)},
		},
	}, nil
}
