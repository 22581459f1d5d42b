package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/expreval"
)

func newTestSupervisor(cfg *domain.RoutingConfig) *Supervisor {
	return NewSupervisor([]string{"127.0.0.1:1"}, cfg, expreval.New(), nil, 30*time.Second, 10*time.Second)
}

func TestDialListener_DirectSchemeUsesSharedRegistry(t *testing.T) {
	s := newTestSupervisor(&domain.RoutingConfig{})
	l, err := s.dialListener("direct:exec-out")
	require.NoError(t, err)
	defer l.Close()
}

func TestDialListener_UnsupportedSchemeErrors(t *testing.T) {
	s := newTestSupervisor(&domain.RoutingConfig{})
	_, err := s.dialListener("http://not-a-transport")
	require.Error(t, err)
}

func TestBuildOutputListeners_OneListenerPerConfiguredURI(t *testing.T) {
	cfg := &domain.RoutingConfig{Routes: []domain.Route{
		{
			RouteID: "R2", Direction: domain.DirectionOutput,
			SenderCompID: "EXEC", TargetCompID: "GTWY", OutputTopic: "fix.out",
			ListenerURIs: []string{"direct:exec-listener-a", "direct:exec-listener-b"},
		},
	}}
	s := newTestSupervisor(cfg)
	err := s.buildOutputListeners()
	require.NoError(t, err)
	assert.Len(t, s.listeners, 2)
}

func TestBuildOutputListeners_RouteWithNoListenerURIsIsSkippedNotFatal(t *testing.T) {
	cfg := &domain.RoutingConfig{Routes: []domain.Route{
		{RouteID: "R2", Direction: domain.DirectionOutput, SenderCompID: "EXEC", TargetCompID: "GTWY", OutputTopic: "fix.out"},
	}}
	s := newTestSupervisor(cfg)
	err := s.buildOutputListeners()
	require.NoError(t, err)
	assert.Len(t, s.listeners, 0)
}

func TestBuildInputConsumers_OneConsumerPerInputRoute(t *testing.T) {
	cfg := &domain.RoutingConfig{Routes: []domain.Route{
		{
			RouteID: "R1", Direction: domain.DirectionInput,
			SenderCompID: "GTWY", TargetCompID: "EXEC", InputTopic: "fix.in",
			DestinationConfigs: []domain.DestinationConfig{{URI: "direct:exec"}},
		},
		{
			RouteID: "R3", Direction: domain.DirectionInput,
			SenderCompID: "GTWY", TargetCompID: "EXEC2", InputTopic: "fix.in2",
			DestinationConfigs: []domain.DestinationConfig{{URI: "direct:exec2"}},
		},
	}}
	s := newTestSupervisor(cfg)
	s.resolver = nil // buildInputConsumers only needs s.resolver for NewDispatcher, which accepts nil safely until Dispatch is called
	err := s.buildInputConsumers()
	require.NoError(t, err)
	assert.Len(t, s.consumers, 2)
	for _, c := range s.consumers {
		_ = c.broker.Close()
	}
}
