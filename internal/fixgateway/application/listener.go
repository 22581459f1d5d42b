package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/envelope"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/expreval"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/fixprotocol"
	"github.com/wyfcoding/fixrouter/pkg/logger"
	"github.com/wyfcoding/fixrouter/pkg/metrics"
)

// OutboundListener yields one raw FIX buffer per Accept call, blocking until
// one arrives or ctx is cancelled. Satisfied by transport.Listener.
type OutboundListener interface {
	Accept(ctx context.Context) ([]byte, error)
	Close() error
}

// OutboundPublisher republishes an OUTPUT route's envelopes to the broker.
// Satisfied by the broker producer's Publish method.
type OutboundPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, partition int, value []byte, headers map[string]string) error
}

// OutputListener is C7: for one OUTPUT route and one configured listener
// endpoint, accept raw FIX buffers, wrap each in an envelope, apply the
// route's partition strategy, and publish to the route's output topic.
type OutputListener struct {
	route     *domain.Route
	listener  OutboundListener
	publisher OutboundPublisher
	evaluator *expreval.Evaluator
	metrics   *metrics.Metrics
}

// NewOutputListener builds the listener loop for one OUTPUT route / endpoint pair.
func NewOutputListener(route *domain.Route, listener OutboundListener, publisher OutboundPublisher, ev *expreval.Evaluator, m *metrics.Metrics) *OutputListener {
	return &OutputListener{route: route, listener: listener, publisher: publisher, evaluator: ev, metrics: m}
}

// Run accepts and publishes buffers until ctx is cancelled. Accept and
// publish errors are logged and the loop goes on.
func (l *OutputListener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := l.listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Error(ctx, "accept failed", "route_id", l.route.RouteID, "error", err)
			continue
		}

		if err := l.processBuffer(ctx, raw); err != nil {
			logger.Error(ctx, "failed to publish accepted buffer", "route_id", l.route.RouteID, "error", err)
		}
	}
}

// processBuffer implements the normalise/parse/partition/publish steps for
// one inbound buffer.
func (l *OutputListener) processBuffer(ctx context.Context, raw []byte) error {
	normalised := fixprotocol.ProcessRawMessage(raw)
	tags := fixprotocol.ParseTags(normalised)

	env := &domain.Envelope{
		SessionID:        fmt.Sprintf("FIX.4.4:%s->%s", l.route.SenderCompID, l.route.TargetCompID),
		SenderCompID:     l.route.SenderCompID,
		TargetCompID:     l.route.TargetCompID,
		RawMessage:       normalised,
		CreatedTimestamp: time.Now().UTC(),
	}
	env.ApplyParsedTags(tags)

	key, partition := l.resolvePartition(ctx, env, tags)

	data, err := envelope.EncodeJSON(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := l.publisher.Publish(ctx, l.route.OutputTopic, key, partition, data, nil); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.ListenerMessagesTotal.WithLabelValues(l.route.RouteID).Inc()
	}
	return nil
}

// resolvePartition applies the route's partitionStrategy: KEY sets an
// explicit broker key from the expression's string form; EXPR sets an
// explicit integer partition, falling back to "no explicit partition" when
// the expression's result does not coerce to an integer; NONE leaves both unset.
func (l *OutputListener) resolvePartition(ctx context.Context, env *domain.Envelope, tags map[int]string) (key []byte, partition int) {
	partition = -1
	if l.evaluator == nil || l.route.PartitionExpression == "" {
		return nil, partition
	}

	switch l.route.PartitionStrategy {
	case domain.PartitionKey:
		result, err := l.evaluator.EvaluatePartitionExpression(l.route.PartitionExpression, env, tags)
		if err != nil {
			logger.Error(ctx, "partition key expression failed; publishing without a key",
				"route_id", l.route.RouteID, "error", err)
			return nil, partition
		}
		if result == nil {
			logger.Warn(ctx, "partition key expression evaluated to nil; publishing without a key",
				"route_id", l.route.RouteID)
			return nil, partition
		}
		return []byte(fmt.Sprintf("%v", result)), partition

	case domain.PartitionExpr:
		result, err := l.evaluator.EvaluatePartitionExpression(l.route.PartitionExpression, env, tags)
		if err != nil {
			logger.Error(ctx, "partition expression failed; publishing without an explicit partition",
				"route_id", l.route.RouteID, "error", err)
			return nil, partition
		}
		if n, ok := toInt(result); ok {
			return nil, n
		}
		logger.Warn(ctx, "partition expression did not evaluate to an integer; publishing without an explicit partition",
			"route_id", l.route.RouteID, "result", result)
		return nil, partition

	default:
		return nil, partition
	}
}

// toInt coerces an expression result to an integer partition number. Floats
// are accepted only when they carry no fractional part.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}
