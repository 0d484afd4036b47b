package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entry(key, variant, body string, received time.Time) *message.Entry {
	res := message.NewResponse(200)
	res.Header = header.Fields{{Name: "Content-Type", Value: "text/plain"}}
	res.Body = []byte(body)
	return &message.Entry{
		Key:          key,
		Variant:      variant,
		Response:     res,
		RequestTime:  received.Add(-time.Second),
		ResponseTime: received,
	}
}

func sameEntry(t *testing.T, got, want *message.Entry) {
	t.Helper()
	if got == nil {
		t.Fatalf("entry %q/%q missing", want.Key, want.Variant)
	}
	if got.Key != want.Key || got.Variant != want.Variant {
		t.Fatalf("entry is %q/%q, want %q/%q", got.Key, got.Variant, want.Key, want.Variant)
	}
	if string(got.Response.Body) != string(want.Response.Body) {
		t.Fatalf("body is %q, want %q", got.Response.Body, want.Response.Body)
	}
	if !got.ResponseTime.Equal(want.ResponseTime) {
		t.Fatalf("response time is %v, want %v", got.ResponseTime, want.ResponseTime)
	}
}

// testStore runs the behavior every Store implementation shares.
func testStore(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		s := open(t)
		entries, err := s.Match(ctx, "GET http://a/")
		if err != nil || entries != nil {
			t.Fatalf("Match = %v, %v", entries, err)
		}
		if _, err := Get(ctx, s, "GET http://a/", ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get error is %v", err)
		}
	})

	t.Run("put and match variants", func(t *testing.T) {
		s := open(t)
		gz := entry("GET http://a/", "\naccept-encoding: gzip", "gz", epoch)
		plain := entry("GET http://a/", "", "plain", epoch)
		for _, e := range []*message.Entry{gz, plain} {
			if err := Put(ctx, s, e); err != nil {
				t.Fatal(err)
			}
		}
		entries, err := s.Match(ctx, "GET http://a/")
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Fatalf("got %d entries", len(entries))
		}
		sameEntry(t, entries[0], plain)
		sameEntry(t, entries[1], gz)
		if n, _ := s.Len(ctx); n != 2 {
			t.Fatalf("Len is %d", n)
		}
	})

	t.Run("update replaces and deletes", func(t *testing.T) {
		s := open(t)
		key := "GET http://a/x"
		Put(ctx, s, entry(key, "", "old", epoch))

		got, err := s.Update(ctx, key, "", func(cur *message.Entry) (*message.Entry, error) {
			if cur == nil || string(cur.Response.Body) != "old" {
				t.Errorf("current entry is %v", cur)
			}
			return entry(key, "", "new", epoch.Add(time.Second)), nil
		})
		if err != nil {
			t.Fatal(err)
		}
		sameEntry(t, got, entry(key, "", "new", epoch.Add(time.Second)))
		stored, _ := Get(ctx, s, key, "")
		sameEntry(t, stored, got)

		got, err = s.Update(ctx, key, "", func(*message.Entry) (*message.Entry, error) {
			return nil, nil
		})
		if err != nil || got != nil {
			t.Fatalf("delete returned %v, %v", got, err)
		}
		if entries, _ := s.Match(ctx, key); len(entries) != 0 {
			t.Fatalf("entries left after delete: %v", entries)
		}
	})

	t.Run("update error writes nothing", func(t *testing.T) {
		s := open(t)
		key := "GET http://a/err"
		boom := errors.New("boom")
		_, err := s.Update(ctx, key, "", func(*message.Entry) (*message.Entry, error) {
			return nil, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("error is %v", err)
		}
		if n, _ := s.Len(ctx); n != 0 {
			t.Fatalf("Len is %d", n)
		}
	})

	t.Run("invalidate", func(t *testing.T) {
		s := open(t)
		Put(ctx, s, entry("GET http://a/1", "", "1", epoch))
		Put(ctx, s, entry("GET http://a/1", "\nx: 1", "1x", epoch))
		Put(ctx, s, entry("GET http://a/2", "", "2", epoch))

		if err := s.Invalidate(ctx, "GET http://a/1"); err != nil {
			t.Fatal(err)
		}
		if err := s.Invalidate(ctx, "GET http://a/missing"); err != nil {
			t.Fatal(err)
		}
		if entries, _ := s.Match(ctx, "GET http://a/1"); entries != nil {
			t.Fatalf("invalidated key still has %d entries", len(entries))
		}
		if entries, _ := s.Match(ctx, "GET http://a/2"); len(entries) != 1 {
			t.Fatal("unrelated key was invalidated")
		}
	})

	t.Run("keys by prefix", func(t *testing.T) {
		s := open(t)
		Put(ctx, s, entry("GET http://a/1", "", "1", epoch))
		Put(ctx, s, entry("GET http://a/1", "\nx: 1", "1x", epoch))
		Put(ctx, s, entry("GET http://b/2", "", "2", epoch))

		var keys []string
		if err := s.Keys(ctx, "GET http://a/", func(k string) { keys = append(keys, k) }); err != nil {
			t.Fatal(err)
		}
		if len(keys) != 1 || keys[0] != "GET http://a/1" {
			t.Fatalf("keys are %q", keys)
		}
	})

	t.Run("concurrent updates are atomic", func(t *testing.T) {
		s := open(t)
		key := "GET http://a/counter"
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					_, err := s.Update(ctx, key, "", increment(key))
					if errors.Is(err, ErrConflict) {
						continue
					}
					if err != nil {
						t.Error(err)
					}
					return
				}
			}()
		}
		wg.Wait()
		e, err := Get(ctx, s, key, "")
		if err != nil {
			t.Fatal(err)
		}
		if got := e.Response.Header.Get("X-Count"); got != "8" {
			t.Fatalf("count is %s", got)
		}
	})
}

func increment(key string) UpdateFunc {
	return func(cur *message.Entry) (*message.Entry, error) {
		n := 0
		if cur != nil {
			n, _ = strconv.Atoi(cur.Response.Header.Get("X-Count"))
		}
		next := entry(key, "", "counter", epoch)
		next.Response.Header.Set("X-Count", strconv.Itoa(n+1))
		return next, nil
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testExpiry checks that entries disappear after Options.Expires.
func testExpiry(t *testing.T, open func(t *testing.T, opts Options) Store) {
	ctx := context.Background()
	c := &clock{now: epoch}
	s := open(t, Options{
		Now: c.Now,
		Expires: RetainFor(func(*message.Entry) time.Duration {
			return time.Minute
		}, time.Minute),
	})
	Put(ctx, s, entry("GET http://a/", "", "a", epoch))

	c.Advance(time.Minute + 59*time.Second)
	if entries, _ := s.Match(ctx, "GET http://a/"); len(entries) != 1 {
		t.Fatal("entry expired too early")
	}
	c.Advance(time.Second)
	if entries, _ := s.Match(ctx, "GET http://a/"); len(entries) != 0 {
		t.Fatal("entry did not expire")
	}
	s.Update(ctx, "GET http://a/", "", func(cur *message.Entry) (*message.Entry, error) {
		if cur != nil {
			t.Error("update saw an expired entry")
		}
		return cur, nil
	})
}

func TestCoalescedReadSurvivesCancelledCaller(t *testing.T) {
	var g singleflight.Group
	started := make(chan struct{})
	release := make(chan struct{})
	want := []*message.Entry{entry("k", "", "body", epoch)}
	read := func(ctx context.Context) ([]*message.Entry, error) {
		select {
		case <-started:
		default:
			close(started)
		}
		<-release
		// a database driver gives up on a cancelled context
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return want, nil
	}

	cancelled, cancel := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := coalesce(cancelled, &g, "k", read)
		errA <- err
	}()
	<-started

	type result struct {
		entries []*message.Entry
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		entries, err := coalesce(context.Background(), &g, "k", read)
		resB <- result{entries, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v", err)
	}
	close(release)
	b := <-resB
	if b.err != nil {
		t.Fatalf("live caller got %v", b.err)
	}
	if len(b.entries) != 1 || string(b.entries[0].Response.Body) != "body" {
		t.Fatalf("live caller got %d entries", len(b.entries))
	}
}
