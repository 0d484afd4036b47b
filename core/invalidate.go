package core

import (
	"context"
	"net/url"
	"time"

	cacheupdate "github.com/always-cache/cachexec/pkg/cache-update"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/pkg/metrics"
	"github.com/always-cache/cachexec/rfc9111"
)

// invalidate removes the stored responses outdated by the response to
// an unsafe request, then re-fetches the resources the origin asked to
// update with Cache-Update.
func (c *CachingExec) invalidate(ctx context.Context, req *message.Request, res *message.Response) {
	for _, u := range rfc9111.InvalidationTargets(req, res) {
		c.invalidateURL(ctx, u)
	}
	for _, update := range cacheupdate.GetCacheUpdates(req, res) {
		c.invalidateURL(ctx, update.URL)
		c.scheduleUpdate(ctx, update)
	}
}

// invalidateURL removes every variant stored for u, logging failures.
func (c *CachingExec) invalidateURL(ctx context.Context, u *url.URL) {
	if err := c.Purge(ctx, u); err != nil {
		c.log.Warn().Err(err).Str("url", u.String()).Msg("Could not invalidate stored response")
	}
}

// Purge removes every variant stored for u. GET and HEAD share their key.
func (c *CachingExec) Purge(ctx context.Context, u *url.URL) error {
	key := c.keyer.Key("GET", u)
	c.log.Trace().Str("key", key).Msg("Invalidating stored response")
	if err := c.store.Invalidate(ctx, key); err != nil {
		metrics.StoreErrors.WithLabelValues("invalidate").Inc()
		return err
	}
	metrics.Invalidations.Inc()
	return nil
}

func (c *CachingExec) scheduleUpdate(ctx context.Context, update cacheupdate.CacheUpdate) {
	if update.Delay <= 0 {
		c.prefetch(ctx, update.URL)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timers == nil {
		c.timers = make(map[*time.Timer]struct{})
	}
	var t *time.Timer
	t = time.AfterFunc(update.Delay, func() {
		c.mu.Lock()
		delete(c.timers, t)
		c.mu.Unlock()
		c.prefetch(context.Background(), update.URL)
	})
	c.timers[t] = struct{}{}
}

// prefetch stores the current response for u.
func (c *CachingExec) prefetch(ctx context.Context, u *url.URL) {
	req, err := message.NewRequest("GET", u.String())
	if err != nil {
		c.log.Error().Err(err).Str("url", u.String()).Msg("Could not create request for cache update")
		return
	}
	res, status := c.Execute(ctx, req)
	c.log.Debug().Str("url", u.String()).Int("status", res.StatusCode).Bool("stored", status.Stored).Msg("Updated cache")
}
