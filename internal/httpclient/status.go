package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Throttling response headers.
const (
	HeaderRetryAfter   = "Retry-After"
	HeaderRetryAfterMs = "x-ms-retry-after-ms"
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, body)
}

// Throttled reports whether the server asked the client to slow down.
func (e *StatusError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// RetryAfter returns the delay the server suggested, if any.
func (e *StatusError) RetryAfter(now time.Time) (time.Duration, bool) {
	return ParseRetryAfter(e.Header, now)
}

// ParseRetryAfter reads the suggested delay from x-ms-retry-after-ms
// (milliseconds) or Retry-After (seconds or an HTTP date).
func ParseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	if v := strings.TrimSpace(h.Get(HeaderRetryAfterMs)); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms >= 0 {
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}
	v := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}
