// Package metrics provides the Prometheus series the gateway exposes for
// dispatch outcomes, consumer activity, and the expression cache.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/fixrouter/pkg/logger"
)

// Metrics is the gateway's Prometheus series, one instance per process.
type Metrics struct {
	DispatchAttemptsTotal   *prometheus.CounterVec
	DispatchSuccessTotal    *prometheus.CounterVec
	DispatchDeadLetterTotal *prometheus.CounterVec
	DispatchDuration        *prometheus.HistogramVec

	ConsumerRecordsTotal *prometheus.CounterVec
	ConsumerCommitsTotal *prometheus.CounterVec

	ListenerMessagesTotal *prometheus.CounterVec

	ExpressionCacheSize   prometheus.Gauge
	ExpressionEvalErrors  *prometheus.CounterVec
}

// New builds the gateway's metrics instances under the "fixrouter" namespace.
func New(serviceName string) *Metrics {
	return &Metrics{
		DispatchAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "dispatch_attempts_total",
			Help:      "Total send attempts per route and destination",
		}, []string{"route_id", "destination"}),
		DispatchSuccessTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "dispatch_success_total",
			Help:      "Total successful sends per route and destination",
		}, []string{"route_id", "destination"}),
		DispatchDeadLetterTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "dispatch_dead_letter_total",
			Help:      "Total records routed to a dead-letter topic",
		}, []string{"route_id", "destination"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching one envelope to one destination, including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route_id", "destination"}),
		ConsumerRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "consumer_records_total",
			Help:      "Total broker records consumed per INPUT route",
		}, []string{"route_id"}),
		ConsumerCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "consumer_commits_total",
			Help:      "Total manual offset commits per INPUT route",
		}, []string{"route_id"}),
		ListenerMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "listener_messages_total",
			Help:      "Total inbound FIX buffers accepted per OUTPUT route",
		}, []string{"route_id"}),
		ExpressionCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "expression_cache_size",
			Help:      "Number of distinct partition expressions compiled and cached",
		}),
		ExpressionEvalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixrouter",
			Subsystem: serviceName,
			Name:      "expression_eval_errors_total",
			Help:      "Total expression compile/evaluate failures",
		}, []string{"route_id"}),
	}
}

// Register registers every series with the default Prometheus registerer.
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.DispatchAttemptsTotal,
		m.DispatchSuccessTotal,
		m.DispatchDeadLetterTotal,
		m.DispatchDuration,
		m.ConsumerRecordsTotal,
		m.ConsumerCommitsTotal,
		m.ListenerMessagesTotal,
		m.ExpressionCacheSize,
		m.ExpressionEvalErrors,
	}
	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			return fmt.Errorf("register metric: %w", err)
		}
	}
	return nil
}

// StartHTTPServer exposes the Prometheus handler on its own listener.
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)

	go func() {
		logger.Info(context.Background(), "metrics server starting", "addr", addr, "path", path)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "metrics server stopped", "error", err)
		}
	}()
}
