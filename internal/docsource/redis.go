package docsource

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/tphakala/datamover/internal/errors"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/migrate"
)

// KeyField is set on documents that could not be decoded so the failure is
// attributable to its key.
const KeyField = "_key"

// DefaultKeyPattern matches every key.
const DefaultKeyPattern = "*"

const (
	// defaultSeenLimit caps the keys remembered for SCAN dedup. Past it the
	// window is reset, so a key SCAN repeats much later is read again.
	defaultSeenLimit = 100_000
	// defaultSeenTTL drops remembered keys that SCAN is unlikely to repeat.
	defaultSeenTTL = 30 * time.Minute
)

// keyValueStore is the subset of Redis used by RedisSource.
type keyValueStore interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	MGet(ctx context.Context, keys ...string) ([]any, error)
	Close() error
}

type redisStore struct {
	rdb *redis.Client
}

func (r redisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return r.rdb.Scan(ctx, cursor, match, count).Result()
}

func (r redisStore) MGet(ctx context.Context, keys ...string) ([]any, error) {
	return r.rdb.MGet(ctx, keys...).Result()
}

func (r redisStore) Close() error {
	return r.rdb.Close()
}

// RedisSource reads JSON documents stored as string values under keys
// matching a pattern. Pages follow the SCAN cursor, so keys written during
// the run may or may not be seen. SCAN treats COUNT as a hint; keys beyond
// the page size are held for the next page.
//
// Repeated keys are dropped through a bounded window of recently seen keys.
// A repeat that falls outside the window is read again: its product is then
// skipped as existing by the sink, while its tag rows are written twice.
type RedisSource struct {
	store     keyValueStore
	pattern   string
	seenLimit int

	mu      sync.Mutex
	cursor  uint64
	pending []string
	seen    *cache.Cache
	done    bool
}

var _ migrate.Source = (*RedisSource)(nil)

// NewRedisSource connects to the redis:// URL. An empty pattern matches all keys.
func NewRedisSource(ctx context.Context, redisURL, pattern string) (*RedisSource, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.New(err).
			Component("docsource").
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_redis_url").
			Build()
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.New(err).
			Component("docsource").
			Category(errors.CategoryNetwork).
			Context("operation", "redis_ping").
			Context("addr", opts.Addr).
			Build()
	}
	return newRedisSource(redisStore{rdb: rdb}, pattern), nil
}

func newRedisSource(store keyValueStore, pattern string) *RedisSource {
	if pattern == "" {
		pattern = DefaultKeyPattern
	}
	return &RedisSource{
		store:     store,
		pattern:   pattern,
		seenLimit: defaultSeenLimit,
		// no janitor; expired keys are dropped on each page
		seen:      cache.New(defaultSeenTTL, 0),
	}
}

// ReadPage returns at most pageSize documents. Held-over keys are served
// first; otherwise it scans until it has an unseen key or the keyspace is
// exhausted. Values are loaded with MGET.
func (s *RedisSource) ReadPage(ctx context.Context, pageSize int) (migrate.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pageSize <= 0 {
		pageSize = 1
	}
	s.trimSeen()

	keys := s.take(pageSize)
	for len(keys) == 0 && !s.done {
		batch, next, err := s.store.Scan(ctx, s.cursor, s.pattern, int64(pageSize))
		if err != nil {
			return migrate.Page{}, redisError(err, "scan", s.pattern)
		}
		s.cursor = next
		if next == 0 {
			s.done = true
		}
		for _, k := range batch {
			// SCAN may return a key more than once
			if s.seen.Add(k, struct{}{}, cache.DefaultExpiration) != nil {
				continue
			}
			s.pending = append(s.pending, k)
		}
		keys = s.take(pageSize)
	}

	if len(keys) == 0 {
		return migrate.Page{}, nil
	}

	values, err := s.store.MGet(ctx, keys...)
	if err != nil {
		return migrate.Page{}, redisError(err, "mget", s.pattern)
	}

	docs := make([]etl.Record, 0, len(keys))
	for i, v := range values {
		if v == nil {
			// deleted after SCAN
			continue
		}
		docs = append(docs, decodeDocument(keys[i], v))
	}

	return migrate.Page{
		Docs:    docs,
		HasMore: !s.done || len(s.pending) > 0,
		Token:   strconv.FormatUint(s.cursor, 10),
	}, nil
}

// take removes up to n held-over keys.
func (s *RedisSource) take(n int) []string {
	n = min(n, len(s.pending))
	if n == 0 {
		return nil
	}
	keys := make([]string, n)
	copy(keys, s.pending)
	s.pending = s.pending[n:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return keys
}

func (s *RedisSource) trimSeen() {
	s.seen.DeleteExpired()
	if s.seen.ItemCount() >= s.seenLimit {
		GetLogger().Debug("resetting scan dedup window", logInt("keys", s.seen.ItemCount()))
		s.seen.Flush()
	}
}

// Close releases the Redis connection pool.
func (s *RedisSource) Close() error {
	return s.store.Close()
}

// decodeDocument parses one value. Undecodable values become a record with
// only KeyField set, which fails mapping for lack of an id.
func decodeDocument(key string, v any) etl.Record {
	var raw []byte
	switch t := v.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		GetLogger().Warn("unexpected redis value type", logString("key", key))
		return etl.Record{KeyField: key}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		GetLogger().Warn("undecodable document", logString("key", key))
		return etl.Record{KeyField: key}
	}
	return etl.Record(doc)
}

func redisError(err error, op, pattern string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(err).
		Component("docsource").
		Category(errors.CategoryNetwork).
		Context("operation", op).
		Context("pattern", pattern).
		Build()
}
