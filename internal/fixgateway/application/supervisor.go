// Package application wires the gateway's worker loops (C5-C8) over the
// domain model and infrastructure adapters.
package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/broker/kafka"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/expreval"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport/direct"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/transport/netty"
	"github.com/wyfcoding/fixrouter/pkg/logger"
	"github.com/wyfcoding/fixrouter/pkg/metrics"
	"github.com/wyfcoding/fixrouter/pkg/retry"
)

// brokerReachabilityAttempts and brokerReachabilityDelay bound the startup
// wait for the broker to become reachable: a 10s window polled every 1s.
const (
	brokerReachabilityAttempts = 10
	brokerReachabilityDelay    = time.Second
)

const shutdownDrainTimeout = 10 * time.Second

// Supervisor is C8: it builds every INPUT consumer and OUTPUT listener from a
// loaded routing configuration, owns the shared producer, and runs them to
// completion under a single errgroup so one worker's fatal error cancels the
// rest and is surfaced to the caller.
type Supervisor struct {
	brokers   []string
	cfg       *domain.RoutingConfig
	evaluator *expreval.Evaluator
	metrics   *metrics.Metrics

	sessionTimeout time.Duration
	requestTimeout time.Duration

	producer *kafka.Producer
	registry *direct.Registry
	resolver *transport.Resolver

	consumers []*InputConsumer
	listeners []*OutputListener
	closers   []func() error
}

// NewSupervisor builds a Supervisor over a loaded routing configuration. It
// does not start anything until Run is called.
func NewSupervisor(brokers []string, cfg *domain.RoutingConfig, ev *expreval.Evaluator, m *metrics.Metrics, sessionTimeout, requestTimeout time.Duration) *Supervisor {
	return &Supervisor{
		brokers:        brokers,
		cfg:            cfg,
		evaluator:      ev,
		metrics:        m,
		sessionTimeout: sessionTimeout,
		requestTimeout: requestTimeout,
		registry:       direct.NewRegistry(),
	}
}

// Run performs orderly startup (broker reachable -> topics ensured -> routes
// constructed), then runs every worker until ctx is cancelled or one returns
// a fatal error, then drains and closes every resource before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.awaitBrokerReachable(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSupervisor, err)
	}

	if err := s.ensureTopics(ctx); err != nil {
		logger.Warn(ctx, "topic creation incomplete; continuing, topics may be auto-created", "error", err)
	}

	s.producer = kafka.NewProducer(s.brokers, s.requestTimeout)
	s.closers = append(s.closers, s.producer.Close)

	s.resolver = transport.NewResolver(netty.Dial, s.registry.Dial, s.producer.SenderFactory())
	s.closers = append(s.closers, func() error { s.resolver.Close(); return nil })

	if err := s.buildInputConsumers(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSupervisor, err)
	}
	if err := s.buildOutputListeners(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSupervisor, err)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		c := c
		g.Go(func() error { return c.Run(groupCtx) })
	}
	for _, l := range s.listeners {
		l := l
		g.Go(func() error { return l.Run(groupCtx) })
	}

	runErr := g.Wait()
	s.drainAndClose(ctx)

	if runErr != nil && groupCtx.Err() == nil {
		// A worker returned a non-cancellation error: surface it.
		return runErr
	}
	if ctx.Err() != nil {
		return nil // clean shutdown requested by the caller
	}
	return runErr
}

// awaitBrokerReachable polls EnsureTopics against an empty topic list, which
// is enough to force a controller dial, within a bounded retry window.
func (s *Supervisor) awaitBrokerReachable(ctx context.Context) error {
	return retry.Do(ctx, brokerReachabilityAttempts, brokerReachabilityDelay, func() error {
		return kafka.EnsureTopics(ctx, s.brokers, nil)
	})
}

func (s *Supervisor) ensureTopics(ctx context.Context) error {
	topics := make(map[string]struct{})
	for i := range s.cfg.Routes {
		r := &s.cfg.Routes[i]
		if r.InputTopic != "" {
			topics[r.InputTopic] = struct{}{}
		}
		if r.OutputTopic != "" {
			topics[r.OutputTopic] = struct{}{}
		}
		topics[r.DeadLetterTopic] = struct{}{}
		for j := range r.DestinationConfigs {
			topics[r.DestinationConfigs[j].EffectiveDeadLetterTopic(r.RouteID, destinationSlug(&r.DestinationConfigs[j], j))] = struct{}{}
		}
	}
	delete(topics, "")

	names := make([]string, 0, len(topics))
	for t := range topics {
		names = append(names, t)
	}
	return kafka.EnsureTopics(ctx, s.brokers, names)
}

func (s *Supervisor) buildInputConsumers() error {
	dispatcher := NewDispatcher(s.resolver, s.producer, s.metrics)

	for _, route := range s.cfg.RoutesByDirection(domain.DirectionInput) {
		consumer := kafka.NewConsumer(s.brokers, route.InputTopic, route.ConsumerGroupID(), s.sessionTimeout)
		s.closers = append(s.closers, consumer.Close)

		s.consumers = append(s.consumers, NewInputConsumer(
			route, NewKafkaBrokerConsumer(consumer), dispatcher, s.cfg, s.metrics,
		))
	}
	return nil
}

func (s *Supervisor) buildOutputListeners() error {
	for _, route := range s.cfg.RoutesByDirection(domain.DirectionOutput) {
		if len(route.ListenerURIs) == 0 {
			logger.Warn(context.Background(), "OUTPUT route has no listener endpoints configured; it will never produce records",
				"route_id", route.RouteID)
			continue
		}
		for _, uri := range route.ListenerURIs {
			listener, err := s.dialListener(uri)
			if err != nil {
				return fmt.Errorf("route %q: %w", route.RouteID, err)
			}
			s.closers = append(s.closers, listener.Close)
			s.listeners = append(s.listeners, NewOutputListener(route, listener, s.producer, s.evaluator, s.metrics))
		}
	}
	return nil
}

func (s *Supervisor) dialListener(uri string) (transport.Listener, error) {
	switch {
	case strings.HasPrefix(uri, "netty:"):
		return netty.Listen(strings.TrimPrefix(uri, "netty:"))
	case strings.HasPrefix(uri, "direct:"):
		return s.registry.Listen(strings.TrimPrefix(uri, "direct:"))
	default:
		return nil, fmt.Errorf("unsupported listener scheme: %s", uri)
	}
}

// drainAndClose closes every opened resource, bounded by shutdownDrainTimeout.
// Workers have already returned by the time this runs since g.Wait() has
// unblocked, so this step only releases held connections.
func (s *Supervisor) drainAndClose(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, closeFn := range s.closers {
			if err := closeFn(); err != nil {
				logger.Warn(ctx, "error closing resource during shutdown", "error", err)
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(shutdownDrainTimeout):
		logger.Warn(ctx, "shutdown drain deadline exceeded; exiting with resources still closing")
	}
}
