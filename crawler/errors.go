package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// errorType labels a failed request for logs and metrics.
func errorType(err error, statusCode int) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}

	switch {
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 500:
		return fmt.Sprintf("http_%dxx", statusCode/100)
	case err == nil && statusCode == 0:
		return "unknown"
	}
	return "other"
}
