package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDestinationConfig_AcceptsMsgType(t *testing.T) {
	cases := []struct {
		name     string
		types    []string
		msgType  string
		expected bool
	}{
		{"empty means all", nil, "D", true},
		{"wildcard means all", []string{"*"}, "D", true},
		{"exact match", []string{"D", "8"}, "D", true},
		{"no match", []string{"8"}, "D", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &DestinationConfig{MsgTypes: tc.types}
			assert.Equal(t, tc.expected, d.AcceptsMsgType(tc.msgType))
		})
	}
}

func TestDestinationConfig_Effectives(t *testing.T) {
	d := &DestinationConfig{}
	assert.Equal(t, 3, d.EffectiveMaxRetries())
	assert.Equal(t, 1000*1000*1000, int(d.EffectiveRetryDelay()))
	assert.Equal(t, 5000*1000*1000, int(d.EffectiveTimeout()))
	assert.Equal(t, "dead-letter-R1-ep", d.EffectiveDeadLetterTopic("R1", "ep"))

	d2 := &DestinationConfig{DeadLetterTopic: "custom"}
	assert.Equal(t, "custom", d2.EffectiveDeadLetterTopic("R1", "ep"))
}

func TestRoute_NormalisedID(t *testing.T) {
	r := &Route{RouteID: "Order-Routes 1"}
	assert.Equal(t, "order_routes_1", r.NormalisedID())
	assert.Equal(t, "fix-router-order_routes_1", r.ConsumerGroupID())
}

func TestRoutingConfig_RouteByID(t *testing.T) {
	cfg := &RoutingConfig{Routes: []Route{{RouteID: "R1"}, {RouteID: "R2"}}}
	assert.NotNil(t, cfg.RouteByID("R2"))
	assert.Nil(t, cfg.RouteByID("R3"))
}

func TestRoutingConfig_RouteBySenderTarget_AmbiguousReturnsNil(t *testing.T) {
	cfg := &RoutingConfig{Routes: []Route{
		{RouteID: "R1", Direction: DirectionInput, SenderCompID: "A", TargetCompID: "B"},
		{RouteID: "R2", Direction: DirectionInput, SenderCompID: "A", TargetCompID: "B"},
	}}
	assert.Nil(t, cfg.RouteBySenderTarget("A", "B", DirectionInput))
}

func TestRoutingConfig_RouteBySenderTarget_Unique(t *testing.T) {
	cfg := &RoutingConfig{Routes: []Route{
		{RouteID: "R1", Direction: DirectionInput, SenderCompID: "A", TargetCompID: "B"},
	}}
	match := cfg.RouteBySenderTarget("A", "B", DirectionInput)
	assert.NotNil(t, match)
	assert.Equal(t, "R1", match.RouteID)
}

func TestRoutingConfig_FindMatchingRoutes_MatchesAcrossDirectionsCaseInsensitively(t *testing.T) {
	cfg := &RoutingConfig{Routes: []Route{
		{RouteID: "R1", Direction: DirectionInput, SenderCompID: "BROKERA", TargetCompID: "EXEC1",
			DestinationConfigs: []DestinationConfig{{URI: "netty:tcp://localhost:9001"}}},
		{RouteID: "R2", Direction: DirectionOutput, SenderCompID: "BROKERA", TargetCompID: "EXEC1",
			DestinationConfigs: []DestinationConfig{{URI: "netty:tcp://localhost:9002"}}},
		{RouteID: "R3", Direction: DirectionInput, SenderCompID: "OTHER", TargetCompID: "EXEC1"},
	}}

	matches := cfg.FindMatchingRoutes("brokera", "exec1")
	assert.Len(t, matches, 2)

	destinations := cfg.DestinationsFor("brokera", "exec1")
	assert.ElementsMatch(t, []string{"netty:tcp://localhost:9001", "netty:tcp://localhost:9002"}, destinations)
}

func TestRoutingConfig_ApplyGlobalDefaults(t *testing.T) {
	cfg := &RoutingConfig{
		Routes: []Route{{RouteID: "R1", DestinationConfigs: []DestinationConfig{{}}}},
	}
	cfg.ApplyGlobalDefaults()
	assert.Equal(t, defaultMaxRedeliveries, cfg.Routes[0].MaxRedeliveries)
	assert.Equal(t, defaultRedeliveryDelayMS, cfg.Routes[0].RedeliveryDelay)
	assert.Equal(t, DefaultDeadLetterTopic, cfg.Routes[0].DeadLetterTopic)
}
