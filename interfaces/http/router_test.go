package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
)

func sampleRoutingConfig() *domain.RoutingConfig {
	cfg := &domain.RoutingConfig{Routes: []domain.Route{
		{
			RouteID: "R1", Direction: domain.DirectionInput,
			SenderCompID: "BROKERA", TargetCompID: "EXEC1", InputTopic: "fix.in",
			DestinationConfigs: []domain.DestinationConfig{{URI: "netty:tcp://localhost:9999"}},
		},
		{
			RouteID: "R2", Direction: domain.DirectionOutput,
			SenderCompID: "EXEC1", TargetCompID: "BROKERA", OutputTopic: "fix.out",
		},
	}}
	cfg.ApplyGlobalDefaults()
	return cfg
}

func TestHandleListRoutes(t *testing.T) {
	r := NewRouter(sampleRoutingConfig())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/routing/routes", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Routes []map[string]any `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Routes, 2)
}

func TestHandleMatch_HasRouteTrueOnExactMatch(t *testing.T) {
	r := NewRouter(sampleRoutingConfig())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/routing/match?senderCompId=BROKERA&targetCompId=EXEC1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		HasRoute       bool             `json:"hasRoute"`
		MatchingRoutes []map[string]any `json:"matchingRoutes"`
		Destinations   []string         `json:"destinations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.HasRoute)
	assert.Len(t, body.MatchingRoutes, 1)
	assert.Equal(t, []string{"netty:tcp://localhost:9999"}, body.Destinations)
}

func TestHandleMatch_ReturnsEveryMatchingRouteForThePair(t *testing.T) {
	cfg := &domain.RoutingConfig{Routes: []domain.Route{
		{
			RouteID: "R1", Direction: domain.DirectionOutput,
			SenderCompID: "BROKERA", TargetCompID: "EXEC1", OutputTopic: "fix.out1",
			DestinationConfigs: []domain.DestinationConfig{{URI: "netty:tcp://localhost:9001"}},
		},
		{
			RouteID: "R2", Direction: domain.DirectionOutput,
			SenderCompID: "BROKERA", TargetCompID: "EXEC1", OutputTopic: "fix.out2",
			DestinationConfigs: []domain.DestinationConfig{{URI: "netty:tcp://localhost:9002"}},
		},
	}}
	cfg.ApplyGlobalDefaults()

	r := NewRouter(cfg)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/routing/match?senderCompId=brokera&targetCompId=exec1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		HasRoute       bool             `json:"hasRoute"`
		MatchingRoutes []map[string]any `json:"matchingRoutes"`
		Destinations   []string         `json:"destinations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.HasRoute)
	assert.Len(t, body.MatchingRoutes, 2, "both same-direction routes for the pair must be returned, not collapsed to one")
	assert.ElementsMatch(t, []string{"netty:tcp://localhost:9001", "netty:tcp://localhost:9002"}, body.Destinations)
}

func TestHandleMatch_HasRouteFalseWhenNoMatch(t *testing.T) {
	r := NewRouter(sampleRoutingConfig())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/routing/match?senderCompId=NOBODY&targetCompId=NOWHERE", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		HasRoute bool `json:"hasRoute"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.HasRoute)
}

func TestHandleHealth(t *testing.T) {
	r := NewRouter(sampleRoutingConfig())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/routing/health", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UP", body.Status)
}

func TestHandleConfigSummary(t *testing.T) {
	r := NewRouter(sampleRoutingConfig())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/routing/config", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		RouteCount int `json:"routeCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.RouteCount)
}
