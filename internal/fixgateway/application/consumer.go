package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/envelope"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/fixprotocol"
	"github.com/wyfcoding/fixrouter/pkg/logger"
	"github.com/wyfcoding/fixrouter/pkg/metrics"
)

// BrokerRecord is one fetched-but-uncommitted broker record, satisfied by
// the kafka package's Record. Kept as an interface so this package has no
// direct dependency on kafka-go.
type BrokerRecord interface {
	PartitionOf() int
	OffsetOf() int64
	ValueOf() []byte
}

// BrokerConsumer is the per-INPUT-route broker reader InputConsumer drives:
// blocking fetch, then an explicit, separate commit call.
type BrokerConsumer interface {
	Fetch(ctx context.Context) (BrokerRecord, error)
	Commit(ctx context.Context, rec BrokerRecord) error
	Close() error
}

// RouteTable resolves the legacy sender/target fall-back for envelopes that
// carry no explicit routeId.
type RouteTable interface {
	RouteBySenderTarget(sender, target string, direction domain.Direction) *domain.Route
}

// InputConsumer is C6: for one INPUT route, fetch one record at a time,
// decode+parse+enrich it, dispatch it via C5, then manually commit.
// maxPollRecords=1 is structural here: Fetch always returns exactly one
// record, never a batch.
type InputConsumer struct {
	route      *domain.Route
	broker     BrokerConsumer
	dispatcher *Dispatcher
	routes     RouteTable
	metrics    *metrics.Metrics
}

// NewInputConsumer builds the consumer loop for one INPUT route.
func NewInputConsumer(route *domain.Route, broker BrokerConsumer, dispatcher *Dispatcher, routes RouteTable, m *metrics.Metrics) *InputConsumer {
	return &InputConsumer{route: route, broker: broker, dispatcher: dispatcher, routes: routes, metrics: m}
}

// Run fetches and processes records until ctx is cancelled. Errors
// processing a single record never stop the loop, and fetch or commit
// errors are logged and the loop goes on; only ctx cancellation ends it.
func (c *InputConsumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := c.broker.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Error(ctx, "fetch failed", "route_id", c.route.RouteID, "error", err)
			continue
		}

		c.processRecord(ctx, rec)

		if err := c.broker.Commit(ctx, rec); err != nil {
			// If a crash or shutdown interruption happens between
			// dispatch and commit the record is re-delivered. A commit RPC
			// failure here is logged and the loop goes on to fetch the next
			// record; the offset is re-delivered only if the process stops
			// before a later commit on the same partition succeeds.
			logger.Error(ctx, "commit failed; record will be redelivered",
				"route_id", c.route.RouteID, "partition", rec.PartitionOf(), "offset", rec.OffsetOf(), "error", err)
			continue
		}
		if c.metrics != nil {
			c.metrics.ConsumerCommitsTotal.WithLabelValues(c.route.RouteID).Inc()
		}
	}
}

// processRecord decodes, enriches, and dispatches one record. It never
// returns an error: parse
// and validation failures are logged and the record is still committed by
// the caller, per the gateway's parse/validation error taxonomy.
func (c *InputConsumer) processRecord(ctx context.Context, rec BrokerRecord) {
	if c.metrics != nil {
		c.metrics.ConsumerRecordsTotal.WithLabelValues(c.route.RouteID).Inc()
	}

	logger.Debug(ctx, "record fetched", "route_id", c.route.RouteID, "partition", rec.PartitionOf(), "offset", rec.OffsetOf())

	env, err := decodeRecord(rec.ValueOf())
	if err != nil {
		logger.Error(ctx, "envelope decode failed, record will be committed without dispatch",
			"route_id", c.route.RouteID, "partition", rec.PartitionOf(), "offset", rec.OffsetOf(), "error", err)
		return
	}

	normalised := fixprotocol.ProcessRawMessage(env.RawMessage)
	env.RawMessage = normalised
	env.ApplyParsedTags(fixprotocol.ParseTags(normalised))

	if env.RouteID == "" {
		env.RouteID = c.route.RouteID
	}

	targetRoute := c.resolveRoute(ctx, env)
	if targetRoute == nil {
		logger.Error(ctx, "no route resolved for record; dropping without dispatch",
			"route_id", c.route.RouteID, "partition", rec.PartitionOf(), "offset", rec.OffsetOf())
		return
	}

	if err := c.dispatcher.Dispatch(ctx, targetRoute, env); err != nil {
		logger.Error(ctx, "dispatch returned an unrecovered error (stopOnException)",
			"route_id", c.route.RouteID, "partition", rec.PartitionOf(), "offset", rec.OffsetOf(), "error", err)
	}
}

// resolveRoute applies the legacy sender/target fall-back: prefer
// env.RouteID; when absent, fall back to a sender/target match and flag it.
func (c *InputConsumer) resolveRoute(ctx context.Context, env *domain.Envelope) *domain.Route {
	if env.RouteID != "" {
		if env.RouteID == c.route.RouteID {
			return c.route
		}
	}
	if env.RouteID == "" && c.routes != nil {
		logger.Warn(ctx, "envelope carries no routeId; using legacy sender/target fall-back",
			"sender", env.SenderCompID, "target", env.TargetCompID)
		if fallback := c.routes.RouteBySenderTarget(env.SenderCompID, env.TargetCompID, domain.DirectionInput); fallback != nil {
			return fallback
		}
	}
	return c.route
}

func decodeRecord(value []byte) (*domain.Envelope, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: empty record value", domain.ErrParse)
	}
	if value[0] == '{' {
		return envelope.DecodeJSON(value)
	}
	return envelope.DecodeText(string(value))
}
