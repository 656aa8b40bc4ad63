package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/tradeboard/gateway/config"
	"github.com/tradeboard/gateway/internal/observability/metrics"
	"github.com/tradeboard/gateway/internal/observability/statsd"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Sink fans out to every enabled backend. Never nil.
	Sink       statsd.Sink
	Statsd     *statsd.Client
	Prometheus *metrics.PrometheusSink
}

// MetricsHandler returns the Prometheus handler, or nil when Prometheus is disabled.
func (o ObservabilityContainer) MetricsHandler() http.Handler {
	if o.Prometheus == nil {
		return nil
	}
	return o.Prometheus.Handler()
}

// Close releases the StatsD connection.
func (o ObservabilityContainer) Close(logger *slog.Logger) {
	if o.Statsd == nil {
		return
	}
	if err := o.Statsd.Close(); err != nil && logger != nil {
		logger.Warn("close statsd client failed", "error", err)
	}
}

// BuildObservability configures the StatsD and Prometheus metric sinks.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var (
		out   ObservabilityContainer
		sinks []statsd.Sink
	)

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Statsd = client
			sinks = append(sinks, client)
		}
	}

	if cfg.Prometheus.Enabled {
		out.Prometheus = metrics.NewPrometheusSink(metrics.PrometheusOptions{
			Namespace: cfg.Prometheus.Namespace,
			Logger:    obsLogger,
		})
		sinks = append(sinks, out.Prometheus)
	}

	out.Sink = metrics.NewMultiSink(sinks...)
	return out
}
