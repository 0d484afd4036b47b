package core

import (
	"context"

	cachekey "github.com/always-cache/cachexec/pkg/cache-key"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/pkg/metrics"
	"github.com/always-cache/cachexec/rfc9111"
)

// storeResponse merges a response received for the request into the
// store and returns the entry stored for the request's variant, or nil
// when the response may not be stored.
func (x *exchange) storeResponse(ctx context.Context, res *message.Response) *message.Entry {
	c, req := x.c, x.req
	if x.noStore {
		return nil
	}
	if ok, reason := rfc9111.MayStore(req, res, c.opts); !ok {
		x.log.Trace().Str("reason", reason).Msg("Response not stored")
		return nil
	}

	names := rfc9111.VaryNames(res.Header)
	incoming := &message.Entry{
		Key:           x.key,
		Variant:       cachekey.Variant(req.Header, names),
		RequestHeader: rfc9111.SelectingHeader(req.Header, names),
		Response: &message.Response{
			StatusCode: res.StatusCode,
			Version:    res.Version,
			Header:     rfc9111.StorableHeader(res.Header, c.opts),
			Body:       res.Body,
		},
		RequestTime:  x.requestTime,
		ResponseTime: x.responseTime,
	}

	var combination rfc9111.Combination
	stored, err := c.store.Update(ctx, incoming.Key, incoming.Variant, func(current *message.Entry) (*message.Entry, error) {
		var next *message.Entry
		next, combination = rfc9111.Combine(current, incoming)
		return next, nil
	})
	if err != nil {
		x.storeError("update", err)
		return nil
	}
	x.log.Trace().Stringer("combination", combination).Str("variant", incoming.Variant).Msg("Cache write")
	if combination != rfc9111.Kept {
		metrics.StoreWrites.Inc()
		x.status.Stored = true
	}
	return stored
}

// freshen updates the stored responses a 304 applies to and returns the
// updated entries. The update is applied to the entry current at write
// time, so concurrent validations do not undo each other.
func (x *exchange) freshen(ctx context.Context, res *message.Response, candidates []*message.Entry) []*message.Entry {
	var updated []*message.Entry
	for _, e := range rfc9111.SelectForUpdate(res, candidates) {
		freshened := rfc9111.Freshen(e, res, x.requestTime, x.responseTime)
		if x.noStore {
			updated = append(updated, freshened)
			continue
		}
		applied := false
		stored, err := x.c.store.Update(ctx, e.Key, e.Variant, func(current *message.Entry) (*message.Entry, error) {
			// invalidated or replaced by a different representation meanwhile
			if current == nil || len(rfc9111.SelectForUpdate(res, []*message.Entry{current})) == 0 {
				return current, nil
			}
			applied = true
			return rfc9111.Freshen(current, res, x.requestTime, x.responseTime), nil
		})
		switch {
		case err != nil:
			x.storeError("update", err)
		case applied:
			freshened = stored
			metrics.StoreWrites.Inc()
			x.status.Stored = true
		}
		updated = append(updated, freshened)
	}
	return updated
}

// freshenWithHead updates or invalidates the stored responses a 200
// response to HEAD describes.
func (x *exchange) freshenWithHead(ctx context.Context, res *message.Response, candidates []*message.Entry) {
	if x.noStore {
		return
	}
	for _, e := range candidates {
		_, err := x.c.store.Update(ctx, e.Key, e.Variant, func(current *message.Entry) (*message.Entry, error) {
			if current == nil {
				return nil, nil
			}
			next, ok := rfc9111.FreshenWithHead(current, res, x.requestTime, x.responseTime)
			if !ok {
				x.log.Debug().Str("variant", e.Variant).Msg("HEAD response describes a different representation, invalidating")
				metrics.Invalidations.Inc()
				return nil, nil
			}
			return next, nil
		})
		if err != nil {
			x.storeError("update", err)
			return
		}
	}
}
