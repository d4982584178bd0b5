package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// NewProducer creates a SyncProducer that waits for all in-sync replicas,
// retrying the initial connection while the brokers come up.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	// Trades of one symbol stay ordered on one partition.
	config.Producer.Partitioner = sarama.NewHashPartitioner

	var prod sarama.SyncProducer
	var err error
	for i := 0; i < connectAttempts; i++ {
		prod, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			return prod, nil
		}
		time.Sleep(connectBackoff)
	}
	return nil, fmt.Errorf("kafka: start producer after retries: %w", err)
}

// NewConsumerGroup creates a consumer group starting from the oldest offset.
func NewConsumerGroup(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	config := sarama.NewConfig()
	// Errors() must be drained, see RunConsumerGroup.
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}

	var cg sarama.ConsumerGroup
	var err error
	for i := 0; i < connectAttempts; i++ {
		cg, err = sarama.NewConsumerGroup(brokers, groupID, config)
		if err == nil {
			return cg, nil
		}
		time.Sleep(connectBackoff)
	}
	return nil, fmt.Errorf("kafka: start consumer group after retries: %w", err)
}
