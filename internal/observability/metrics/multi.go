package metrics

import (
	"time"

	"github.com/tradeboard/gateway/internal/observability/statsd"
)

// MultiSink fans every metric out to each non-nil sink.
type MultiSink []statsd.Sink

var _ statsd.Sink = MultiSink(nil)

// NewMultiSink drops nil sinks. It returns statsd.Discard when nothing remains.
//
//nolint:ireturn // callers only need the Sink behaviour
func NewMultiSink(sinks ...statsd.Sink) statsd.Sink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return statsd.Discard{}
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m MultiSink) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		s.Count(name, value, tags)
	}
}

func (m MultiSink) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		s.Gauge(name, value, tags)
	}
}

func (m MultiSink) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range m {
		s.Timing(name, value, tags)
	}
}
