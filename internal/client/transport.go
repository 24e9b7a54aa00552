package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// slowRequestThreshold is the duration above which requests are logged at WARN level.
const slowRequestThreshold = 2 * time.Second

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// loggingTransport tags every request with an id and logs it with timing.
// Slow requests are logged at WARN level, transport failures at ERROR.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func newLoggingTransport(next http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		req.Header.Set(RequestIDHeader, id)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	attrs := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"request_id", id,
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		t.logger.Error("request failed", attrs...)
		return nil, err
	}

	attrs = append(attrs, "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))
	if duration > slowRequestThreshold {
		t.logger.Warn("slow request", attrs...)
	} else {
		t.logger.Debug("request completed", attrs...)
	}
	return resp, nil
}
