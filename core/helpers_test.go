package core

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/cachexec/cache"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9111"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// origin is a scripted Transport that records what it receives.
type origin struct {
	mu       sync.Mutex
	handler  func(req *message.Request) Result
	requests []*message.Request
}

func (o *origin) RoundTrip(_ context.Context, req *message.Request) Result {
	o.mu.Lock()
	o.requests = append(o.requests, req.Clone())
	o.mu.Unlock()
	return o.handler(req)
}

func (o *origin) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.requests)
}

func (o *origin) last() *message.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.requests) == 0 {
		return nil
	}
	return o.requests[len(o.requests)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
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

var testOptions = rfc9111.Options{
	Shared:            true,
	SupportsRanges:    true,
	HeuristicFraction: 0.1,
	HeuristicMax:      24 * time.Hour,
}

type testExec struct {
	*CachingExec
	origin *origin
	clock  *clock
	store  cache.Store
}

func newTestExec(t *testing.T, handler func(req *message.Request) Result) *testExec {
	return newTestExecWith(t, testOptions, handler)
}

func newTestExecWith(t *testing.T, opts rfc9111.Options, handler func(req *message.Request) Result) *testExec {
	t.Helper()
	clk := newClock()
	store := cache.NewMemStore(cache.Options{Now: clk.Now})
	o := &origin{handler: handler}
	c := New(Config{
		Store:     store,
		Transport: o,
		Options:   opts,
		Now:       clk.Now,
	})
	t.Cleanup(c.Close)
	return &testExec{CachingExec: c, origin: o, clock: clk, store: store}
}

func (te *testExec) get(t *testing.T, rawURL string, fields ...string) (*message.Response, string) {
	t.Helper()
	return te.do(t, "GET", rawURL, fields...)
}

// do executes a request with the given header field name/value pairs and
// returns the response with its serialized Cache-Status.
func (te *testExec) do(t *testing.T, method, rawURL string, fields ...string) (*message.Response, string) {
	t.Helper()
	req, err := message.NewRequest(method, rawURL)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(fields); i += 2 {
		req.Header.Add(fields[i], fields[i+1])
	}
	res, status := te.Execute(context.Background(), req)
	return res, status.String()
}

// respond builds an origin response with header name/value pairs.
func respond(code int, body string, fields ...string) Result {
	res := message.NewResponse(code)
	for i := 0; i+1 < len(fields); i += 2 {
		res.Header.Add(fields[i], fields[i+1])
	}
	if body != "" {
		res.Body = []byte(body)
	}
	return OK(res)
}

var (
	errStoreDown  = errors.New("store down")
	errOriginDown = errors.New("connection refused")
)

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Match(context.Context, string) ([]*message.Entry, error) {
	return nil, errStoreDown
}

func (failingStore) Update(context.Context, string, string, cache.UpdateFunc) (*message.Entry, error) {
	return nil, errStoreDown
}

func (failingStore) Invalidate(context.Context, string) error { return errStoreDown }

func (failingStore) Keys(context.Context, string, func(string)) error { return errStoreDown }

func (failingStore) Len(context.Context) (int, error) { return 0, errStoreDown }

func (failingStore) Close() error { return nil }
