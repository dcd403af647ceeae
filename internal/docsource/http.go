package docsource

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/httpclient"
	"github.com/tphakala/datamover/internal/migrate"
)

// Request headers of the document REST API.
const (
	headerDate         = "x-ms-date"
	headerVersion      = "x-ms-version"
	headerMaxItemCount = "x-ms-max-item-count"
	headerContinuation = "x-ms-continuation"

	apiVersion = "2018-12-31"
)

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	URL       string // account endpoint, e.g. https://acct.documents.azure.com:443/
	Key       string // base64 master key
	Database  string
	Container string

	// RequestsPerSecond paces page reads; zero disables pacing.
	RequestsPerSecond float64

	Client *httpclient.Client
	Now    func() time.Time
}

// HTTPSource lists all documents of a container through the REST API,
// following continuation tokens. It implements migrate.Source.
type HTTPSource struct {
	client   *httpclient.Client
	docsURL  string
	resource string
	key      []byte
	limiter  *rate.Limiter
	now      func() time.Time

	mu           sync.Mutex
	continuation string
	pages        int
}

var _ migrate.Source = (*HTTPSource)(nil)

// NewHTTPSource validates cfg and creates a source positioned at the first page.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if cfg.URL == "" || cfg.Database == "" || cfg.Container == "" {
		return nil, errors.Newf("document source requires url, database and container").
			Component("docsource").
			Category(errors.CategoryConfiguration).
			Build()
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid document source url %q", cfg.URL).
			Component("docsource").
			Category(errors.CategoryConfiguration).
			Build()
	}
	key, err := base64.StdEncoding.DecodeString(cfg.Key)
	if err != nil || len(key) == 0 {
		return nil, errors.Newf("document source key must be a non-empty base64 string").
			Component("docsource").
			Category(errors.CategoryConfiguration).
			Build()
	}

	resource := "dbs/" + cfg.Database + "/colls/" + cfg.Container
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + resource + "/docs"

	client := cfg.Client
	if client == nil {
		client = httpclient.New(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &HTTPSource{
		client:   client,
		docsURL:  base.String(),
		resource: resource,
		key:      key,
		limiter:  limiter,
		now:      now,
	}, nil
}

type docsResponse struct {
	Documents []map[string]any `json:"Documents"`
}

// ReadPage fetches the next page of at most pageSize documents. A 429
// response becomes *etl.RateLimitedError with the server's delay.
func (s *HTTPSource) ReadPage(ctx context.Context, pageSize int) (migrate.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return migrate.Page{}, err
		}
	}

	header := s.headers(pageSize)
	var body docsResponse
	start := time.Now()
	respHeader, err := s.client.GetJSON(ctx, s.docsURL, header, &body)
	if err != nil {
		return migrate.Page{}, s.pageError(ctx, err)
	}

	s.pages++
	s.continuation = respHeader.Get(headerContinuation)

	docs := make([]etl.Record, 0, len(body.Documents))
	for _, d := range body.Documents {
		docs = append(docs, etl.Record(d))
	}

	GetLogger().Debug("document page read",
		logInt("page", s.pages),
		logInt("documents", len(docs)),
		logDuration("duration", time.Since(start)),
		logString("resource", s.resource))

	return migrate.Page{
		Docs:    docs,
		HasMore: s.continuation != "",
		Token:   s.continuation,
	}, nil
}

func (s *HTTPSource) headers(pageSize int) http.Header {
	date := strings.ToLower(s.now().UTC().Format(http.TimeFormat))
	h := http.Header{}
	h.Set(headerDate, date)
	h.Set(headerVersion, apiVersion)
	h.Set("Authorization", s.authorization(http.MethodGet, "docs", date))
	if pageSize > 0 {
		h.Set(headerMaxItemCount, strconv.Itoa(pageSize))
	}
	if s.continuation != "" {
		h.Set(headerContinuation, s.continuation)
	}
	return h
}

// authorization builds the master-key token for one request.
func (s *HTTPSource) authorization(verb, resourceType, date string) string {
	payload := strings.ToLower(verb) + "\n" +
		strings.ToLower(resourceType) + "\n" +
		s.resource + "\n" +
		date + "\n" +
		"\n"
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return url.QueryEscape("type=master&ver=1.0&sig=" + sig)
}

func (s *HTTPSource) pageError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Throttled() {
			delay, _ := statusErr.RetryAfter(s.now())
			GetLogger().Warn("document source throttled",
				logDuration("retry_after", delay),
				logString("resource", s.resource))
			return &etl.RateLimitedError{RetryAfter: delay, Err: statusErr}
		}
		return errors.New(statusErr).
			Component("docsource").
			Category(errors.CategoryHTTP).
			Context("status_code", statusErr.StatusCode).
			Context("resource", s.resource).
			Context("page", s.pages+1).
			Build()
	}

	return errors.New(err).
		Component("docsource").
		Category(errors.CategoryNetwork).
		Context("resource", s.resource).
		Context("page", s.pages+1).
		Build()
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.Close()
	return nil
}
