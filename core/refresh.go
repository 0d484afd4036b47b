package core

import (
	"context"
	"time"

	"github.com/always-cache/cachexec/cache"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9111"
	"github.com/always-cache/cachexec/rfc9211"
)

// Refresh revalidates every variant stored for key with the origin.
// It returns the Cache-Status of each revalidation, or cache.ErrNotFound
// when nothing is stored.
func (c *CachingExec) Refresh(ctx context.Context, key string) ([]rfc9211.CacheStatus, error) {
	method, u, err := c.keyer.Resource(key)
	if err != nil {
		return nil, err
	}
	entries, err := c.store.Match(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, cache.ErrNotFound
	}
	statuses := make([]rfc9211.CacheStatus, 0, len(entries))
	for _, e := range entries {
		req := &message.Request{
			Method:  method,
			URL:     u,
			Version: supported,
			Header:  e.RequestHeader.Clone(),
		}
		req.Header.Add("Cache-Control", "max-age=0")
		_, status := c.Execute(ctx, req)
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// RefreshAll revalidates the stored GET responses whose target URI
// starts with prefix. Failures are logged and do not stop the refresh.
func (c *CachingExec) RefreshAll(ctx context.Context, prefix string) (int, error) {
	var keys []string
	if err := c.store.Keys(ctx, c.keyer.MethodPrefix("GET")+prefix, func(key string) {
		keys = append(keys, key)
	}); err != nil {
		return 0, err
	}
	refreshed := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		c.log.Debug().Msgf("Updating key %s", key)
		if _, err := c.Refresh(ctx, key); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Could not refresh stored response")
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// RefreshExpiring revalidates the stored GET responses that become stale
// within d and returns the number of keys refreshed.
func (c *CachingExec) RefreshExpiring(ctx context.Context, d time.Duration) (int, error) {
	var keys []string
	if err := c.store.Keys(ctx, c.keyer.MethodPrefix("GET"), func(key string) {
		keys = append(keys, key)
	}); err != nil {
		return 0, err
	}
	refreshed := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		entries, err := c.store.Match(ctx, key)
		if err != nil {
			return refreshed, err
		}
		if !c.expiresWithin(entries, d) {
			continue
		}
		c.log.Trace().Str("key", key).Msg("Updating expiring entry")
		if _, err := c.Refresh(ctx, key); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Could not refresh stored response")
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (c *CachingExec) expiresWithin(entries []*message.Entry, d time.Duration) bool {
	now := c.now()
	for _, e := range entries {
		ttl := rfc9111.FreshnessLifetime(e, c.opts) - rfc9111.CurrentAge(e, now)
		if ttl <= d {
			return true
		}
	}
	return false
}
