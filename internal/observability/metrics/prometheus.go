package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradeboard/gateway/internal/observability/statsd"
)

// PrometheusOptions configures PrometheusSink.
type PrometheusOptions struct {
	Namespace string
	// Registry defaults to a fresh registry with Go and process collectors.
	Registry *prometheus.Registry
	Buckets  []float64
	Logger   *slog.Logger
}

type vecEntry[V any] struct {
	vec    V
	labels []string
}

// PrometheusSink adapts the statsd.Sink vocabulary to Prometheus collectors.
// Each metric name is registered on first use with the label set observed then;
// later observations fill missing labels with "" and drop unknown ones.
type PrometheusSink struct {
	namespace string
	registry  *prometheus.Registry
	buckets   []float64
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*vecEntry[*prometheus.CounterVec]
	gauges     map[string]*vecEntry[*prometheus.GaugeVec]
	histograms map[string]*vecEntry[*prometheus.HistogramVec]
}

var _ statsd.Sink = (*PrometheusSink)(nil)

// NewPrometheusSink constructs a sink and its registry.
func NewPrometheusSink(opts PrometheusOptions) *PrometheusSink {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PrometheusSink{
		namespace:  promName(opts.Namespace),
		registry:   reg,
		buckets:    buckets,
		logger:     logger.With("component", "prometheus_sink"),
		counters:   make(map[string]*vecEntry[*prometheus.CounterVec]),
		gauges:     make(map[string]*vecEntry[*prometheus.GaugeVec]),
		histograms: make(map[string]*vecEntry[*prometheus.HistogramVec]),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (s *PrometheusSink) Registry() *prometheus.Registry { return s.registry }

// Count adds value to the "<name>_total" counter.
func (s *PrometheusSink) Count(name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	s.mu.Lock()
	e, ok := s.counters[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      promName(name) + "_total",
			Help:      "Gateway counter " + name,
		}, labels)
		e = &vecEntry[*prometheus.CounterVec]{vec: registerOrExisting(s, vec), labels: labels}
		s.counters[name] = e
	}
	s.mu.Unlock()

	if e.vec != nil {
		e.vec.WithLabelValues(labelValues(e.labels, tags)...).Add(float64(value))
	}
}

// Gauge sets the "<name>" gauge.
func (s *PrometheusSink) Gauge(name string, value float64, tags map[string]string) {
	s.mu.Lock()
	e, ok := s.gauges[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      promName(name),
			Help:      "Gateway gauge " + name,
		}, labels)
		e = &vecEntry[*prometheus.GaugeVec]{vec: registerOrExisting(s, vec), labels: labels}
		s.gauges[name] = e
	}
	s.mu.Unlock()

	if e.vec != nil {
		e.vec.WithLabelValues(labelValues(e.labels, tags)...).Set(value)
	}
}

// Timing observes value in the "<name>_seconds" histogram.
func (s *PrometheusSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.mu.Lock()
	e, ok := s.histograms[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      promName(name) + "_seconds",
			Help:      "Gateway latency " + name,
			Buckets:   s.buckets,
		}, labels)
		e = &vecEntry[*prometheus.HistogramVec]{vec: registerOrExisting(s, vec), labels: labels}
		s.histograms[name] = e
	}
	s.mu.Unlock()

	if e.vec != nil {
		e.vec.WithLabelValues(labelValues(e.labels, tags)...).Observe(value.Seconds())
	}
}

// registerOrExisting returns the collector actually held by the registry, or the zero value when
// registration failed for another reason.
func registerOrExisting[V prometheus.Collector](s *PrometheusSink, c V) V {
	err := s.registry.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(V); ok {
			return existing
		}
	}
	s.logger.Warn("prometheus register failed", "error", err)
	var zero V
	return zero
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		if n := promName(k); n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags map[string]string) []string {
	byName := make(map[string]string, len(tags))
	for k, v := range tags {
		byName[promName(k)] = v
	}
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = byName[n]
	}
	return values
}

// promName maps a dotted statsd name onto the Prometheus charset.
func promName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	mapped = strings.Trim(mapped, "_")
	if mapped != "" && mapped[0] >= '0' && mapped[0] <= '9' {
		mapped = "_" + mapped
	}
	return mapped
}
