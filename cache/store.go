// Package cache implements stores for cache entries.
//
// A store keeps, for every key, the variants of the stored response.
// Entries are immutable once handed to a store: every change goes through
// Update, which replaces an entry atomically.
//
// Implementations must be thread-safe!
package cache

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/always-cache/cachexec/pkg/message"
)

var (
	// ErrNotFound is returned by Get when no entry exists.
	ErrNotFound = errors.New("cache entry not found")
	// ErrConflict is returned by Update when the entry kept changing
	// concurrently and the update could not be applied.
	ErrConflict = errors.New("cache entry updated concurrently")
)

// UpdateFunc computes the replacement of an entry.
// It receives the current entry (nil if none) and returns the entry to
// store. Returning nil deletes the current entry; returning current
// unchanged writes nothing. Returning an error aborts the update.
// It may be called more than once when a backend retries the update.
type UpdateFunc func(current *message.Entry) (*message.Entry, error)

// Store is the storage interface of the cache.
type Store interface {
	// Match returns all stored variants for key, ordered by variant.
	// A miss is a nil slice and a nil error.
	Match(ctx context.Context, key string) ([]*message.Entry, error)
	// Update atomically replaces the entry stored for key and variant
	// with the result of fn, and returns the stored entry.
	Update(ctx context.Context, key, variant string, fn UpdateFunc) (*message.Entry, error)
	// Invalidate removes every variant stored for key.
	// It is not an error if nothing is stored.
	Invalidate(ctx context.Context, key string) error
	// Keys calls cb for each key with the given prefix.
	// It calls the callback in order to enable very large lists of keys to be
	// processable (implementations might use paging, for instance).
	Keys(ctx context.Context, prefix string, cb func(key string)) error
	// Len returns the number of stored variants.
	Len(ctx context.Context) (int, error)
	Close() error
}

// Options are shared by all store implementations.
type Options struct {
	// MaxEntries bounds the number of stored variants. Zero is unbounded.
	MaxEntries int
	// Expires returns the time after which an entry may be dropped.
	// Nil, or a zero time, keeps the entry until it is evicted.
	Expires func(e *message.Entry) time.Time
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o Options) expires(e *message.Entry) time.Time {
	if o.Expires == nil {
		return time.Time{}
	}
	return o.Expires(e)
}

func (o Options) expired(expires time.Time) bool {
	return !expires.IsZero() && !o.now().Before(expires)
}

// RetainFor returns an Expires function keeping entries for their
// freshness lifetime plus d.
func RetainFor(lifetime func(e *message.Entry) time.Duration, d time.Duration) func(e *message.Entry) time.Time {
	return func(e *message.Entry) time.Time {
		return e.ResponseTime.Add(lifetime(e) + d)
	}
}

// Put stores e under its key and variant, replacing any current entry.
func Put(ctx context.Context, s Store, e *message.Entry) error {
	_, err := s.Update(ctx, e.Key, e.Variant, func(*message.Entry) (*message.Entry, error) {
		return e, nil
	})
	return err
}

// Get returns the entry stored for key and variant, or ErrNotFound.
func Get(ctx context.Context, s Store, key, variant string) (*message.Entry, error) {
	entries, err := s.Match(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Variant == variant {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

func sortByVariant(entries []*message.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Variant < entries[j].Variant
	})
}

// coalesce runs read once for all concurrent callers with the same key.
// The shared read does not stop when one caller's ctx is done; that caller
// just stops waiting for it.
func coalesce(ctx context.Context, g *singleflight.Group, key string, read func(context.Context) ([]*message.Entry, error)) ([]*message.Entry, error) {
	readCtx := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) {
		return read(readCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		shared := r.Val.([]*message.Entry)
		if shared == nil {
			return nil, nil
		}
		return append([]*message.Entry(nil), shared...), nil
	}
}
