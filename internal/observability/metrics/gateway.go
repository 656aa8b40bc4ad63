// Package metrics holds the gateway's metric vocabulary and the sinks that carry it.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/tradeboard/gateway/internal/observability/errors"
	"github.com/tradeboard/gateway/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Refresh sources.
const (
	SourceBackend = "backend"
	SourceShared  = "shared"
	SourceCache   = "cache"
)

// ProxyMetric captures one proxied request.
type ProxyMetric struct {
	Method   string
	Status   int
	Duration time.Duration
	Err      error
}

// EmitProxy emits request count by method and status class, plus latency.
func EmitProxy(sink statsd.Sink, in ProxyMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}
	tags := map[string]string{
		"method":       in.Method,
		"status_class": StatusClass(in.Status),
		"result":       result,
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count("proxy.request", 1, tags)
	if in.Duration > 0 {
		sink.Timing("proxy.duration", in.Duration, CloneTags(tags))
	}
}

// LoginMetric captures a login or register attempt at the BFF.
type LoginMetric struct {
	Operation string
	Status    int
	Duration  time.Duration
	Err       error
}

// EmitLogin emits login/register outcome counts and latency.
func EmitLogin(sink statsd.Sink, in LoginMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation":    in.Operation,
		"status_class": StatusClass(in.Status),
		"result":       resultFor(in.Status, in.Err),
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count("auth.attempt", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.duration", in.Duration, CloneTags(tags))
	}
}

// RefreshMetric captures one refresh outcome and where the answer came from.
type RefreshMetric struct {
	Source   string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitRefresh emits refresh outcome counts and latency.
func EmitRefresh(sink statsd.Sink, in RefreshMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"source": in.Source,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count("auth.refresh", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.refresh.duration", in.Duration, CloneTags(tags))
	}
}

// StatusClass returns "2xx"-style classes; 0 (no response) maps to "none".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

func resultFor(status int, err error) string {
	switch {
	case err != nil && status == 0:
		return ResultError
	case status >= 200 && status < 300:
		return ResultSuccess
	case status >= 500:
		return ResultError
	default:
		return ResultRejected
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
