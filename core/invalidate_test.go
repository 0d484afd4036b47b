package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/always-cache/cachexec/cache"
	cacheupdate "github.com/always-cache/cachexec/pkg/cache-update"
	"github.com/always-cache/cachexec/pkg/message"
)

func TestUnsafeMethodInvalidates(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		if req.Method == "POST" {
			return respond(201, "",
				"Location", "/created",
				"Content-Location", "http://other.example/page")
		}
		return respond(200, req.URL.String(), "Cache-Control", "max-age=60")
	})
	for _, u := range []string{page, "http://example.com/created", "http://other.example/page"} {
		te.get(t, u)
	}

	_, status := te.do(t, "POST", page)
	if status != "cachexec; fwd=method; fwd-status=201" {
		t.Fatalf("Cache-Status is %q", status)
	}

	tests := []struct {
		url     string
		dropped bool
	}{
		{page, true},
		{"http://example.com/created", true},
		{"http://other.example/page", false},
	}
	for _, tt := range tests {
		_, status := te.get(t, tt.url)
		if hit := strings.Contains(status, "hit"); hit == tt.dropped {
			t.Errorf("%s: Cache-Status is %q", tt.url, status)
		}
	}
}

func TestErrorResponseDoesNotInvalidate(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		if req.Method == "DELETE" {
			return respond(500, "")
		}
		return respond(200, "x", "Cache-Control", "max-age=60")
	})
	te.get(t, page)
	te.do(t, "DELETE", page)
	if _, status := te.get(t, page); !strings.Contains(status, "hit") {
		t.Fatalf("Cache-Status is %q", status)
	}
}

func TestHeadSharesKeyWithGet(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		return respond(204, "", "Cache-Control", "max-age=60")
	})
	te.get(t, page)
	te.do(t, "PUT", page)
	if _, status := te.do(t, "HEAD", page); strings.Contains(status, "hit") {
		t.Fatal("HEAD served after invalidation")
	}
}

func TestCacheUpdate(t *testing.T) {
	handleCount := 0
	te := newTestExec(t, func(req *message.Request) Result {
		switch req.URL.Path {
		case "/update":
			return respond(200, "Hello world", "Cache-Update", "/count")
		default:
			handleCount++
			return respond(200, fmt.Sprintf("Called %d times", handleCount), "Cache-Control", "max-age=60")
		}
	})

	te.get(t, "http://example.com/count")
	te.do(t, "POST", "http://example.com/update")
	res, status := te.get(t, "http://example.com/count")

	if string(res.Body) != "Called 2 times" {
		t.Fatalf("Body is %s", res.Body)
	}
	if !strings.Contains(status, "hit") {
		t.Fatalf("updated response not stored: %q", status)
	}
}

func TestDelayedCacheUpdateIsStoppedOnClose(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		if req.URL.Path == "/update" {
			return respond(200, "", "Cache-Update", "/count; delay=3600")
		}
		return respond(200, "x", "Cache-Control", "max-age=60")
	})
	te.get(t, "http://example.com/count")
	te.do(t, "POST", "http://example.com/update")

	te.mu.Lock()
	pending := len(te.timers)
	te.mu.Unlock()
	if pending != 1 {
		t.Fatalf("%d pending updates", pending)
	}
	te.Close()
	if len(te.timers) != 0 {
		t.Fatal("timers not cleared")
	}
	// invalidated right away
	if _, status := te.get(t, "http://example.com/count"); strings.Contains(status, "hit") {
		t.Fatal("stored response not invalidated")
	}
}

func TestFiredCacheUpdateIsForgotten(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		return respond(200, "x", "Cache-Control", "max-age=60")
	})
	u, _ := url.Parse("http://example.com/count")
	te.scheduleUpdate(context.Background(), cacheupdate.CacheUpdate{URL: u, Delay: 10 * time.Millisecond})

	deadline := time.Now().Add(2 * time.Second)
	for {
		te.mu.Lock()
		pending := len(te.timers)
		te.mu.Unlock()
		if pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d pending updates after firing", pending)
		}
		time.Sleep(5 * time.Millisecond)
	}
	// the update ran and stored the response
	for te.origin.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("update did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefresh(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		if req.Header.Get("If-None-Match") == `"a"` {
			return respond(304, "", "ETag", `"a"`)
		}
		return respond(200, "x", "ETag", `"a"`, "Cache-Control", "max-age=60", "Vary", "Accept")
	})
	te.get(t, page, "Accept", "text/html")
	te.get(t, page, "Accept", "application/json")

	u, _ := url.Parse(page)
	statuses, err := te.Refresh(context.Background(), te.keyer.Key("GET", u))
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("%d variants refreshed", len(statuses))
	}
	for _, status := range statuses {
		if status.String() != "cachexec; fwd=request; fwd-status=304; stored" {
			t.Fatalf("Cache-Status is %q", status)
		}
	}
	sent := map[string]bool{}
	for _, req := range te.origin.requests[2:] {
		sent[req.Header.Get("Accept")] = true
	}
	if !sent["text/html"] || !sent["application/json"] {
		t.Fatalf("refresh sent Accept %v", sent)
	}
}

func TestRefreshMissing(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		return respond(200, "x")
	})
	u, _ := url.Parse(page)
	if _, err := te.Refresh(context.Background(), te.keyer.Key("GET", u)); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("error is %v", err)
	}
}

func TestRefreshAll(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		return respond(200, "x", "Cache-Control", "max-age=60")
	})
	for _, path := range []string{"/a", "/b", "/c"} {
		te.get(t, "http://example.com"+path)
	}

	n, err := te.RefreshAll(context.Background(), "http://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || te.origin.count() != 6 {
		t.Fatalf("refreshed %d keys with %d origin requests", n, te.origin.count())
	}
}

func TestRefreshExpiring(t *testing.T) {
	te := newTestExec(t, func(req *message.Request) Result {
		if req.URL.Path == "/short" {
			return respond(200, "x", "Cache-Control", "max-age=60")
		}
		return respond(200, "x", "Cache-Control", "max-age=3600")
	})
	te.get(t, "http://example.com/short")
	te.get(t, "http://example.com/long")
	te.clock.Advance(50 * time.Second)

	n, err := te.RefreshExpiring(context.Background(), 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || te.origin.last().URL.Path != "/short" {
		t.Fatalf("refreshed %d keys, last %s", n, te.origin.last().URL)
	}
	if _, status := te.get(t, "http://example.com/short"); status != "cachexec; hit; ttl=60" {
		t.Fatalf("Cache-Status is %q", status)
	}
}
