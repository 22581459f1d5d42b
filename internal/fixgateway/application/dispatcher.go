package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/fixprotocol"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport"
	"github.com/wyfcoding/fixrouter/pkg/logger"
	"github.com/wyfcoding/fixrouter/pkg/metrics"
)

// DeadLetterPublisher writes a failed envelope to a dead-letter topic. It is
// satisfied by the broker's producer wrapper; kept as an interface here so
// the dispatcher has no direct dependency on a transport implementation.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, topic string, env *domain.Envelope) error
}

// Dispatcher is C5: for one envelope and one route, sends synchronously and
// sequentially to each of the route's destinations, in declared order, with
// bounded retry on network errors and dead-lettering on exhaustion.
type Dispatcher struct {
	resolver   *transport.Resolver
	deadLetter DeadLetterPublisher
	metrics    *metrics.Metrics
}

// NewDispatcher builds a Dispatcher over a URI resolver and dead-letter sink.
func NewDispatcher(resolver *transport.Resolver, deadLetter DeadLetterPublisher, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{resolver: resolver, deadLetter: deadLetter, metrics: m}
}

// Dispatch iterates route.DestinationConfigs in order. The next destination
// never starts until the previous one has terminated (success, dead-letter,
// or skip) — this ordering is load-bearing for per-partition FIFO and must
// never be parallelised regardless of a destination's ParallelProcessing flag.
func (d *Dispatcher) Dispatch(ctx context.Context, route *domain.Route, env *domain.Envelope) error {
	for i := range route.DestinationConfigs {
		dest := &route.DestinationConfigs[i]

		if !dest.AcceptsMsgType(env.MsgType) {
			continue
		}

		err := d.sendWithRetry(ctx, route, dest, env, destinationSlug(dest, i))
		if err != nil && dest.StopOnException {
			return err
		}
	}
	return nil
}

// sendWithRetry sends to one destination, retrying on network errors up to
// its configured bound before dead-lettering.
func (d *Dispatcher) sendWithRetry(ctx context.Context, route *domain.Route, dest *domain.DestinationConfig, env *domain.Envelope, slug string) error {
	targetURI := transport.BuildTargetURI(dest.URI, dest.EndpointParams)
	maxAttempts := dest.EffectiveMaxRetries() + 1

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		d.recordAttempt(route.RouteID, dest.URI)

		lastErr = d.attemptSend(ctx, targetURI, dest, env)
		if lastErr == nil {
			d.recordSuccess(route.RouteID, dest.URI, start)
			return nil
		}

		if !domain.IsNetworkError(lastErr) {
			break // non-network failure: no retry, go straight to dead-letter
		}
		if attempt == maxAttempts {
			break // retry budget exhausted
		}

		logger.Warn(ctx, "destination send failed, retrying",
			"route_id", route.RouteID, "destination", dest.URI, "attempt", attempt, "error", lastErr)

		if err := sleepInterruptible(ctx, dest.EffectiveRetryDelay()); err != nil {
			return err
		}
	}

	return d.deadLetterEnvelope(ctx, route, dest, env, slug, lastErr)
}

func (d *Dispatcher) attemptSend(ctx context.Context, targetURI string, dest *domain.DestinationConfig, env *domain.Envelope) error {
	sender, err := d.resolver.Resolve(targetURI)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", domain.ErrDestinationPermanent, targetURI, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, dest.EffectiveTimeout())
	defer cancel()

	if err := sender.Send(sendCtx, fixprotocol.EnsureTrailingSOH(env.RawMessage)); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) deadLetterEnvelope(ctx context.Context, route *domain.Route, dest *domain.DestinationConfig, env *domain.Envelope, slug string, cause error) error {
	topic := dest.EffectiveDeadLetterTopic(route.RouteID, slug)
	errType := classifyForDeadLetter(cause)

	dlEnv := env.WithError(errType, cause.Error(), route.RouteID, time.Now().UTC())

	if d.metrics != nil {
		d.metrics.DispatchDeadLetterTotal.WithLabelValues(route.RouteID, dest.URI).Inc()
	}

	if d.deadLetter == nil {
		logger.Error(ctx, "no dead-letter publisher configured; dropping record",
			"route_id", route.RouteID, "destination", dest.URI, "topic", topic, "error", cause)
		return fmt.Errorf("%w: %v", domain.ErrDestinationPermanent, cause)
	}

	if err := d.deadLetter.PublishDeadLetter(ctx, topic, dlEnv); err != nil {
		logger.Error(ctx, "failed to publish dead-letter record",
			"route_id", route.RouteID, "destination", dest.URI, "topic", topic, "error", err)
	} else {
		logger.Warn(ctx, "record dead-lettered",
			"route_id", route.RouteID, "destination", dest.URI, "topic", topic, "cause", cause,
			"correlation_id", uuid.NewString())
	}

	return fmt.Errorf("%w: %v", domain.ErrDestinationPermanent, cause)
}

func classifyForDeadLetter(err error) string {
	if domain.IsNetworkError(err) {
		return "NetworkError"
	}
	return "DestinationPermanentError"
}

func destinationSlug(dest *domain.DestinationConfig, index int) string {
	return fmt.Sprintf("dest%d", index)
}

func (d *Dispatcher) recordAttempt(routeID, destinationURI string) {
	if d.metrics != nil {
		d.metrics.DispatchAttemptsTotal.WithLabelValues(routeID, destinationURI).Inc()
	}
}

func (d *Dispatcher) recordSuccess(routeID, destinationURI string, start time.Time) {
	if d.metrics != nil {
		d.metrics.DispatchSuccessTotal.WithLabelValues(routeID, destinationURI).Inc()
		d.metrics.DispatchDuration.WithLabelValues(routeID, destinationURI).Observe(time.Since(start).Seconds())
	}
}

// sleepInterruptible waits for delay, returning early with ctx.Err() if ctx
// is cancelled first, so a retry-waiting worker observes shutdown promptly.
func sleepInterruptible(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
