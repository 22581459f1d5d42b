package application

import (
	"context"

	kafkabroker "github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/broker/kafka"
)

// kafkaRecordAdapter adapts kafkabroker.Record to the BrokerRecord interface
// so the consumer loop has no compile-time dependency on kafka-go's types.
type kafkaRecordAdapter struct {
	rec *kafkabroker.Record
}

func (a *kafkaRecordAdapter) PartitionOf() int { return a.rec.Partition }
func (a *kafkaRecordAdapter) OffsetOf() int64  { return a.rec.Offset }
func (a *kafkaRecordAdapter) ValueOf() []byte  { return a.rec.Value }

// KafkaBrokerConsumer adapts kafkabroker.Consumer to the BrokerConsumer
// interface InputConsumer drives.
type KafkaBrokerConsumer struct {
	consumer *kafkabroker.Consumer
}

// NewKafkaBrokerConsumer wraps a broker consumer for use by InputConsumer.
func NewKafkaBrokerConsumer(consumer *kafkabroker.Consumer) *KafkaBrokerConsumer {
	return &KafkaBrokerConsumer{consumer: consumer}
}

func (k *KafkaBrokerConsumer) Fetch(ctx context.Context) (BrokerRecord, error) {
	rec, err := k.consumer.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &kafkaRecordAdapter{rec: rec}, nil
}

func (k *KafkaBrokerConsumer) Commit(ctx context.Context, rec BrokerRecord) error {
	adapted, ok := rec.(*kafkaRecordAdapter)
	if !ok {
		return nil
	}
	return k.consumer.Commit(ctx, adapted.rec)
}

func (k *KafkaBrokerConsumer) Close() error {
	return k.consumer.Close()
}
