package docsource

import (
	"context"
	"net/http"
	"time"

	"github.com/tphakala/datamover/internal/conf"
	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/httpclient"
	"github.com/tphakala/datamover/internal/migrate"
)

// Source types accepted in migrate.source.type.
const (
	TypeHTTP  = "http"
	TypeRedis = "redis"
)

// Source is a migrate.Source holding connections that must be released.
type Source interface {
	migrate.Source
	Close() error
}

// Options tune how a source talks to its backend.
type Options struct {
	// RequestsPerSecond paces HTTP page reads; zero disables pacing.
	RequestsPerSecond float64
	// AfterResponse observes every HTTP request, e.g. for metrics.
	AfterResponse func(*http.Request, *http.Response, time.Duration, error)
}

// New opens the document source described by settings.
func New(ctx context.Context, settings conf.DocumentSourceSettings, opts Options) (Source, error) {
	switch settings.Type {
	case TypeHTTP, "":
		cfg := httpclient.DefaultConfig()
		if settings.Timeout > 0 {
			cfg.DefaultTimeout = settings.Timeout
		}
		client := httpclient.New(&cfg)
		if opts.AfterResponse != nil {
			client.SetAfterResponseHook(opts.AfterResponse)
		}
		return NewHTTPSource(HTTPConfig{
			URL:               settings.URL,
			Key:               settings.Key,
			Database:          settings.Database,
			Container:         settings.Container,
			RequestsPerSecond: opts.RequestsPerSecond,
			Client:            client,
			Now:               time.Now,
		})
	case TypeRedis:
		return NewRedisSource(ctx, settings.URL, settings.KeyPattern)
	default:
		return nil, errors.Newf("unsupported document source type %q", settings.Type).
			Component("docsource").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
