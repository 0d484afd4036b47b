package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/always-cache/cachexec/pkg/message"
	serializer "github.com/always-cache/cachexec/pkg/response-serializer"
)

// DefaultRedisRetries is the number of optimistic transaction attempts
// Update makes before giving up with ErrConflict.
const DefaultRedisRetries = 10

// RedisStore keeps one hash per key, with a field per variant holding the
// serialized entry. Updates are optimistic transactions (WATCH/MULTI).
// The whole hash expires when its longest-lived variant does.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	opts    Options
	reads   singleflight.Group
	Retries int
}

// NewRedisStore creates a store on client. All keys are prefixed with
// prefix. Closing the store closes the client.
func NewRedisStore(client *redis.Client, prefix string, opts Options) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		opts:    opts,
		Retries: DefaultRedisRetries,
	}
}

// Match coalesces concurrent reads of the same key.
func (s *RedisStore) Match(ctx context.Context, key string) ([]*message.Entry, error) {
	return coalesce(ctx, &s.reads, key, func(ctx context.Context) ([]*message.Entry, error) {
		values, err := s.client.HGetAll(ctx, s.prefix+key).Result()
		if err != nil {
			return nil, err
		}
		entries, err := decodeVariants(key, values)
		if err != nil {
			return nil, err
		}
		return s.unexpired(entries), nil
	})
}

func (s *RedisStore) unexpired(entries []*message.Entry) []*message.Entry {
	var out []*message.Entry
	for _, e := range entries {
		if !s.opts.expired(s.opts.expires(e)) {
			out = append(out, e)
		}
	}
	return out
}

func decodeVariants(key string, values map[string]string) ([]*message.Entry, error) {
	var entries []*message.Entry
	for _, raw := range values {
		e, err := serializer.BytesToEntry([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode entry %q: %w", key, err)
		}
		entries = append(entries, e)
	}
	sortByVariant(entries)
	return entries, nil
}

func (s *RedisStore) Update(ctx context.Context, key, variant string, fn UpdateFunc) (*message.Entry, error) {
	rkey := s.prefix + key
	var result *message.Entry

	txf := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, rkey).Result()
		if err != nil {
			return err
		}
		var current *message.Entry
		var stale []string
		expiries := make(map[string]time.Time, len(values))
		for field, raw := range values {
			e, err := serializer.BytesToEntry([]byte(raw))
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Ignoring undecodable variant")
				continue
			}
			exp := s.opts.expires(e)
			if s.opts.expired(exp) {
				stale = append(stale, field)
				continue
			}
			expiries[field] = exp
			if field == variant {
				current = e
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		result = next
		if next == current {
			return nil
		}
		if next == nil {
			delete(expiries, variant)
		} else {
			expiries[variant] = s.opts.expires(next)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(stale) > 0 {
				pipe.HDel(ctx, rkey, stale...)
			}
			if next == nil {
				pipe.HDel(ctx, rkey, variant)
			} else {
				pipe.HSet(ctx, rkey, variant, serializer.EntryToBytes(next))
			}
			if len(expiries) == 0 {
				return nil
			}
			if latest, ok := latestExpiry(expiries); ok {
				pipe.ExpireAt(ctx, rkey, latest)
			} else {
				pipe.Persist(ctx, rkey)
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.Retries; i++ {
		err := s.client.Watch(ctx, txf, rkey)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		log.Trace().Str("key", key).Int("attempt", i+1).Msg("Retrying conflicting update")
	}
	return nil, fmt.Errorf("update %q: %w", key, ErrConflict)
}

// latestExpiry reports false if some variant never expires.
func latestExpiry(expiries map[string]time.Time) (time.Time, bool) {
	var latest time.Time
	for _, exp := range expiries {
		if exp.IsZero() {
			return time.Time{}, false
		}
		if exp.After(latest) {
			latest = exp
		}
	}
	return latest, true
}

func (s *RedisStore) Invalidate(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) Keys(ctx context.Context, prefix string, cb func(string)) error {
	iter := s.client.Scan(ctx, 0, escapeGlob(s.prefix+prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		cb(iter.Val()[len(s.prefix):])
	}
	return iter.Err()
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var n int64
	iter := s.client.Scan(ctx, 0, escapeGlob(s.prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		count, err := s.client.HLen(ctx, iter.Val()).Result()
		if err != nil {
			return 0, err
		}
		n += count
	}
	return int(n), iter.Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

var _ Store = (*RedisStore)(nil)
