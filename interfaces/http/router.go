// Package http exposes the gateway's read-only introspection surface: route
// listing, sender/target match resolution, health, and a config summary.
// It is an external collaborator, not part of the routing core itself.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/domain"
	"github.com/wyfcoding/fixrouter/pkg/middleware"
)

// RouteProvider is the read-only view of the loaded routing configuration
// the introspection surface queries. Satisfied by domain.RoutingConfig.
type RouteProvider interface {
	RoutesByDirection(direction domain.Direction) []*domain.Route
	FindMatchingRoutes(sender, target string) []*domain.Route
	DestinationsFor(sender, target string) []string
	AllRoutes() []*domain.Route
}

// NewRouter builds the gin engine exposing GET /api/routing/{routes,match,health,config}.
func NewRouter(routes RouteProvider) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging(), middleware.CORS())

	group := r.Group("/api/routing")
	group.GET("/routes", handleListRoutes(routes))
	group.GET("/match", handleMatch(routes))
	group.GET("/health", handleHealth())
	group.GET("/config", handleConfigSummary(routes))

	return r
}

// routeView is the JSON shape of one route in the introspection surface.
// It mirrors the wire fields of domain.Route without exposing internal-only
// derived fields.
type routeView struct {
	RouteID             string                     `json:"routeId"`
	Direction           domain.Direction           `json:"type"`
	SenderCompID        string                     `json:"senderCompId"`
	TargetCompID        string                     `json:"targetCompId"`
	InputTopic          string                     `json:"inputTopic,omitempty"`
	OutputTopic         string                     `json:"outputTopic,omitempty"`
	DestinationConfigs  []domain.DestinationConfig `json:"destinationConfigs,omitempty"`
	PartitionStrategy   domain.PartitionStrategy   `json:"partitionStrategy,omitempty"`
	PartitionExpression string                     `json:"partitionExpression,omitempty"`
}

func toRouteView(r *domain.Route) routeView {
	return routeView{
		RouteID:             r.RouteID,
		Direction:           r.Direction,
		SenderCompID:        r.SenderCompID,
		TargetCompID:        r.TargetCompID,
		InputTopic:          r.InputTopic,
		OutputTopic:         r.OutputTopic,
		DestinationConfigs:  r.DestinationConfigs,
		PartitionStrategy:   r.PartitionStrategy,
		PartitionExpression: r.PartitionExpression,
	}
}

func handleListRoutes(routes RouteProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := routes.AllRoutes()
		views := make([]routeView, 0, len(all))
		for _, r := range all {
			views = append(views, toRouteView(r))
		}
		c.JSON(http.StatusOK, gin.H{"routes": views})
	}
}

func handleMatch(routes RouteProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		sender := c.Query("senderCompId")
		target := c.Query("targetCompId")

		matchingRoutes := routes.FindMatchingRoutes(sender, target)
		views := make([]routeView, 0, len(matchingRoutes))
		for _, r := range matchingRoutes {
			views = append(views, toRouteView(r))
		}

		c.JSON(http.StatusOK, gin.H{
			"senderCompId":   sender,
			"targetCompId":   target,
			"matchingRoutes": views,
			"destinations":   routes.DestinationsFor(sender, target),
			"hasRoute":       len(views) > 0,
		})
	}
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	}
}

func handleConfigSummary(routes RouteProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := routes.AllRoutes()
		views := make([]routeView, 0, len(all))
		for _, r := range all {
			views = append(views, toRouteView(r))
		}
		c.JSON(http.StatusOK, gin.H{
			"routeCount": len(all),
			"routes":     views,
		})
	}
}
