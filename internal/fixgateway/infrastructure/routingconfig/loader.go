// Package routingconfig loads the routing document from its resolved path,
// validates every route, auto-derives unset topics, and pre-compiles every
// partition expression.
package routingconfig

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/expreval"
	"github.com/wyfcoding/fixrouter/pkg/logger"
)

//go:embed routing-config.json
var packagedDefaults embed.FS

const (
	nettyDefaultTimeoutMS        = 10000
	nettyDefaultConnectTimeoutMS = 5000
	nettyDefaultRequestTimeoutMS = 5000
)

// Load reads the routing document at path, applies global defaults,
// validates every route, auto-derives topics, and pre-compiles every
// partitionExpression into ev. A compile failure is logged but not fatal;
// every other validation failure is a domain.ErrConfiguration.
func Load(ctx context.Context, path string, ev *expreval.Evaluator) (*domain.RoutingConfig, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read routing document %q: %v", domain.ErrConfiguration, path, err)
	}

	var cfg domain.RoutingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse routing document: %v", domain.ErrConfiguration, err)
	}

	cfg.ApplyGlobalDefaults()

	for i := range cfg.Routes {
		route := &cfg.Routes[i]
		if err := validateRoute(route); err != nil {
			return nil, fmt.Errorf("%w: route %q: %v", domain.ErrConfiguration, route.RouteID, err)
		}
		deriveTopics(route)
		applyNettyDefaults(route)
		precompilePartitionExpression(ctx, route, ev)
	}

	return &cfg, nil
}

// readDocument loads the routing document bytes from path. When path names
// the packaged default resource and no such file exists on disk, the
// embedded fallback is used.
func readDocument(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	if path == "routing-config.json" {
		return packagedDefaults.ReadFile("routing-config.json")
	}
	return nil, fmt.Errorf("routing document not found: %s", path)
}

func validateRoute(r *domain.Route) error {
	if r.RouteID == "" {
		return fmt.Errorf("routeId must not be empty")
	}
	if len(r.DestinationConfigs) == 0 && r.Direction == domain.DirectionInput {
		return fmt.Errorf("INPUT route must declare at least one destination")
	}
	if r.Direction != domain.DirectionInput && r.Direction != domain.DirectionOutput {
		return fmt.Errorf("direction must be INPUT or OUTPUT, got %q", r.Direction)
	}
	if r.SenderCompID == "" || r.TargetCompID == "" {
		return fmt.Errorf("senderCompId and targetCompId must be set")
	}
	return nil
}

func deriveTopics(r *domain.Route) {
	if r.InputTopic == "" {
		r.InputTopic = fmt.Sprintf("fix.%s.%s.input", r.SenderCompID, r.TargetCompID)
	}
	if r.OutputTopic == "" {
		r.OutputTopic = fmt.Sprintf("fix.%s.%s.output", r.SenderCompID, r.TargetCompID)
	}
}

func applyNettyDefaults(r *domain.Route) {
	for i := range r.DestinationConfigs {
		d := &r.DestinationConfigs[i]
		if !strings.Contains(d.URI, "netty:") {
			continue
		}
		if d.TimeoutMS == 0 {
			d.TimeoutMS = nettyDefaultTimeoutMS
		}
		if d.EndpointParams == nil {
			d.EndpointParams = make(map[string]string)
		}
		setDefaultParam(d.EndpointParams, "connectTimeout", nettyDefaultConnectTimeoutMS)
		setDefaultParam(d.EndpointParams, "requestTimeout", nettyDefaultRequestTimeoutMS)
	}
}

func setDefaultParam(params map[string]string, key string, value int) {
	if _, ok := params[key]; !ok {
		params[key] = fmt.Sprintf("%d", value)
	}
}

func precompilePartitionExpression(ctx context.Context, r *domain.Route, ev *expreval.Evaluator) {
	if r.PartitionExpression == "" || ev == nil {
		return
	}
	if err := ev.PreCompile(r.PartitionExpression); err != nil {
		logger.Warn(ctx, "partition expression failed to pre-compile; it will be retried per-message",
			"route_id", r.RouteID, "expression", r.PartitionExpression, "error", err)
	}
}
