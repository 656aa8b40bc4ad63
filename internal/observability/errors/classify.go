// Package errors turns errors into low-cardinality tags for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	apperrors "github.com/tradeboard/gateway/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
// Gateway AppErrors report their code; context and network failures get stable names;
// anything else falls back to the innermost concrete type name in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	if code := apperrors.GetCode(err); code != "" {
		// Network errors are further split by timeout so dashboards can separate slow from down.
		var netErr net.Error
		if code == apperrors.ErrCodeNetwork && goerrors.As(err, &netErr) && netErr.Timeout() {
			return "network_timeout"
		}
		return string(code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
