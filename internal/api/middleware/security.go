package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Function key locations, checked in order.
const (
	FunctionKeyHeader = "x-functions-key"
	FunctionKeyQuery  = "code"
)

// NewSecureHeaders creates a middleware that sets security-related HTTP headers.
func NewSecureHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	})
}

// NewBodyLimit creates a middleware that limits the request body size.
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}

// NewFunctionKeyAuth accepts requests carrying key in the x-functions-key
// header or the code query parameter. onReject is called for every rejected
// request and may be nil.
func NewFunctionKeyAuth(key string, onReject func(c echo.Context)) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + FunctionKeyHeader + ",query:" + FunctionKeyQuery,
		Validator: func(candidate string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1, nil
		},
		ErrorHandler: func(_ error, c echo.Context) error {
			if onReject != nil {
				onReject(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid function key")
		},
	})
}

// RequestObserver receives the route pattern and outcome of each request.
type RequestObserver func(method, path string, status int, duration time.Duration)

// NewRequestMetrics reports every request to observe, labelled by route
// pattern so ids in paths do not create new series.
func NewRequestMetrics(observe RequestObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			observe(c.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}

// redactQuery hides the function key in logged URIs.
func redactQuery(uri string) string {
	i := strings.IndexByte(uri, '?')
	if i < 0 {
		return uri
	}
	q, err := url.ParseQuery(uri[i+1:])
	if err != nil || !q.Has(FunctionKeyQuery) {
		return uri
	}
	q.Set(FunctionKeyQuery, "REDACTED")
	return uri[:i+1] + q.Encode()
}
