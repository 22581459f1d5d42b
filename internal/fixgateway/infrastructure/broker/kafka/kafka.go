// Package kafka wraps github.com/segmentio/kafka-go for the gateway's two
// broker roles: a single process-wide Producer shared by every OUTPUT route
// and every dead-letter publish, and a per-INPUT-route Consumer using
// explicit fetch-then-commit so offsets are never advanced before dispatch
// finishes.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/envelope"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport"
)

// Producer is the process-wide broker writer. Safe for concurrent use.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a producer over brokers; callers own its lifecycle and
// must Close it at shutdown.
func NewProducer(brokers []string, requestTimeout time.Duration) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: requestTimeout,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Publish writes one record to topic with the given key (nil/empty means no
// explicit key) and optional explicit partition. A negative partition means
// "let the balancer choose".
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, partition int, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	if partition >= 0 {
		msg.Partition = partition
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrNetwork, topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishDeadLetter JSON-encodes env and writes it to topic, satisfying
// application.DeadLetterPublisher. The dead-letter producer is the same
// shared instance as the OUTPUT-route producer.
func (p *Producer) PublishDeadLetter(ctx context.Context, topic string, env *domain.Envelope) error {
	data, err := envelope.EncodeJSON(env)
	if err != nil {
		return fmt.Errorf("encode dead-letter envelope: %w", err)
	}
	return p.Publish(ctx, topic, []byte(env.ClOrdID), -1, data, map[string]string{
		"__TypeId__":   "fixMessageEnvelope",
		"senderCompId": env.SenderCompID,
		"targetCompId": env.TargetCompID,
		"sessionId":    env.SessionID,
		"routeId":      env.ErrorRouteID,
	})
}

// SenderFactory adapts Producer to transport.KafkaSenderFactory for
// destinations whose URI re-routes to another kafka topic.
func (p *Producer) SenderFactory() transport.KafkaSenderFactory {
	return func(topic string) (transport.Sender, error) {
		return &topicSender{producer: p, topic: topic}, nil
	}
}

type topicSender struct {
	producer *Producer
	topic    string
}

func (s *topicSender) Send(ctx context.Context, payload []byte) error {
	return s.producer.Publish(ctx, s.topic, nil, -1, payload, nil)
}

func (s *topicSender) Close() error { return nil }

// Consumer is one INPUT route's broker reader: maxPollRecords=1 (one record
// fetched and returned per call), auto-commit disabled, manual commit only
// after the caller has finished dispatching.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer opens a reader on topic under groupID, with the session
// timeout routes require (at least 30s) and auto-commit disabled — kafka-go
// only disables its own commit loop when CommitInterval is zero, which is
// the zero value here, so no explicit setting is needed; what matters is
// that we call FetchMessage (which does not commit) rather than ReadMessage
// (which does).
func NewConsumer(brokers []string, topic, groupID string, sessionTimeout time.Duration) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			SessionTimeout: sessionTimeout,
			MinBytes:       1,
			MaxBytes:       10e6,
		}),
	}
}

// Record is one fetched-but-not-yet-committed broker record.
type Record struct {
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	raw       kafka.Message
}

// Fetch blocks for the next record on this route's topic. It never commits;
// callers must call Commit after the record has been fully dispatched.
func (c *Consumer) Fetch(ctx context.Context) (*Record, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch from %s: %v", domain.ErrNetwork, c.reader.Config().Topic, err)
	}
	return &Record{
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		raw:       msg,
	}, nil
}

// Commit manually advances the consumer group's offset past rec. Called
// only after dispatch has returned for rec.
func (c *Consumer) Commit(ctx context.Context, rec *Record) error {
	if err := c.reader.CommitMessages(ctx, rec.raw); err != nil {
		return fmt.Errorf("%w: commit offset %d on partition %d: %v", domain.ErrNetwork, rec.Offset, rec.Partition, err)
	}
	return nil
}

// Close closes the underlying reader, leaving the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// EnsureTopics creates any topic in topics that does not already exist, with
// partition count 1 and replication factor 1. A missing-permission
// error is returned to the caller rather than treated as fatal here; the
// supervisor logs it and continues, since brokers commonly auto-create topics.
func EnsureTopics(ctx context.Context, brokers []string, topics []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("%w: dial controller: %v", domain.ErrNetwork, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("%w: find controller: %v", domain.ErrNetwork, err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("%w: dial controller broker: %v", domain.ErrNetwork, err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	return controllerConn.CreateTopics(configs...)
}
