package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"
)

// RunConsumerGroup consumes topics until ctx is done, rejoining the group
// after every rebalance. It closes the group before returning.
func RunConsumerGroup(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler, log *slog.Logger) {
	defer func() {
		if err := group.Close(); err != nil {
			log.Error("closing consumer group", "error", err)
		}
	}()

	go func() {
		for err := range group.Errors() {
			log.Warn("background consumer error", "error", err)
		}
	}()

	log.Info("consumer group running", "topics", topics)
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			log.Error("consume", "error", err)
		}
		if ctx.Err() != nil {
			log.Info("consumer group stopped")
			return
		}
	}
}
