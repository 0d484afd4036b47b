package cachexec

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/always-cache/cachexec/cache"
	"github.com/always-cache/cachexec/pkg/message"
	responsetransformer "github.com/always-cache/cachexec/pkg/response-transformer"
	"github.com/always-cache/cachexec/rfc9111"
)

// cacheAll stores every successful response for a minute.
var cacheAll = responsetransformer.Rules{{Default: "max-age=60"}}

func newMiddleware(t *testing.T, next http.Handler) http.Handler {
	t.Helper()
	a := New(Config{Rules: cacheAll})
	t.Cleanup(a.Close)
	return a.Middleware(next)
}

func TestMiddlewareReturnsResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello world"))
	})
	rr := httptest.NewRecorder()

	newMiddleware(t, handler).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if body, err := io.ReadAll(rr.Result().Body); err != nil || string(body) != "Hello world" {
		t.Fatalf("Body is %s", body)
	}
}

func TestMiddlewareReturnsSecondRequestFromCache(t *testing.T) {
	var handleCount int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Write([]byte("Hello world"))
	})
	rr := httptest.NewRecorder()
	mw := newMiddleware(t, handler)

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	mw.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if handleCount != 1 {
		t.Fatalf("Next handler called %d times", handleCount)
	}
	if body := rr.Body.String(); body != "Hello world" {
		t.Fatalf("Body is %s", body)
	}
	if cs := rr.Header().Get("Cache-Status"); !strings.HasPrefix(cs, "cachexec; hit; ttl=") {
		t.Fatalf("Cache-Status is %s", cs)
	}
}

func TestCacheHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("content-type", "text/test")
		w.Write([]byte("Hello world"))
	})
	rr := httptest.NewRecorder()
	mw := newMiddleware(t, handler)

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	mw.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if ct := rr.Result().Header.Get("content-type"); ct != "text/test" {
		t.Fatalf("Content-Type header is %s with body %s", ct, rr.Body)
	}
	if via := rr.Result().Header.Get("Via"); via != "1.1 cachexec" {
		t.Fatalf("Via header is %s", via)
	}
}

func TestCacheUpdate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("cache-update", "/count")
		w.Write([]byte("Hello world"))
	})
	var handleCount int
	mux.HandleFunc("/count", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Write([]byte(fmt.Sprintf("Called %d times", handleCount)))
	})
	mw := newMiddleware(t, mux)
	rr := httptest.NewRecorder()

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/count", nil))
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/update", nil))
	mw.ServeHTTP(rr, httptest.NewRequest("GET", "/count", nil))

	if body := rr.Body.String(); body != "Called 2 times" {
		t.Fatalf("Body is %s", body)
	}
	if handleCount != 2 {
		t.Fatalf("Handler called %d times", handleCount)
	}
}

func TestInvalidateOnPost(t *testing.T) {
	handleCount := 0
	assertCount := func(count int) {
		t.Helper()
		if count != handleCount {
			t.Fatalf("Handler called %d times, expected %d", handleCount, count)
		}
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Write([]byte(fmt.Sprintf("So you wanted to %s?", r.Method)))
	})
	mw := newMiddleware(t, handler)

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assertCount(1)
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assertCount(1)
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", nil))
	assertCount(2)
	// the post invalidated the stored response
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assertCount(3)
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assertCount(3)
}

func TestCacheOnlySuccess(t *testing.T) {
	handleCount := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("Hello world"))
	})
	mw := newMiddleware(t, handler)

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if handleCount != 2 {
		t.Fatalf("Handler called %d times", handleCount)
	}
}

func TestChiMiddleware(t *testing.T) {
	listLength := 0
	r := chi.NewRouter()
	r.Get("/chi", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fmt.Sprintf("List %d items", listLength)))
	})
	r.Get("/chi-list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fmt.Sprintf("List %d items", listLength)))
	})
	r.Post("/chi", func(w http.ResponseWriter, r *http.Request) {
		listLength++
		w.Header().Add("cache-update", "/chi-list")
		w.Write([]byte("post"))
	})
	handler := newMiddleware(t, r)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/chi-list", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/chi", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chi", nil))

	for _, path := range []string{"/chi", "/chi-list"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Result().StatusCode != http.StatusOK {
			t.Fatalf("%s: status is %d", path, rec.Result().StatusCode)
		}
		if body := rec.Body.String(); body != "List 1 items" {
			t.Fatalf("%s: body is %s", path, body)
		}
	}
}

func TestProxy(t *testing.T) {
	var handleCount int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&handleCount, 1)
		if r.Header.Get("Via") != "1.1 cachexec" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Cache-Control", "max-age=60")
		fmt.Fprintf(w, "Hello from %s", r.URL.Path)
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	a := New(Config{OriginURL: *originURL, Timeout: time.Second})
	defer a.Close()

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		a.ServeHTTP(rr, httptest.NewRequest("GET", "/page", nil))
		if rr.Code != 200 || rr.Body.String() != "Hello from /page" {
			t.Fatalf("response is %d %s", rr.Code, rr.Body)
		}
	}
	if n := atomic.LoadInt32(&handleCount); n != 1 {
		t.Fatalf("origin called %d times", n)
	}
}

func TestNoHeuristicFreshnessByDefault(t *testing.T) {
	lastModified := time.Now().Add(-24 * time.Hour).UTC().Format(http.TimeFormat)
	e := &message.Entry{
		Response:     message.NewResponse(200),
		ResponseTime: time.Now(),
	}
	e.Response.Header.Add("Date", time.Now().UTC().Format(http.TimeFormat))
	e.Response.Header.Add("Last-Modified", lastModified)
	if lifetime := rfc9111.FreshnessLifetime(e, DefaultOptions()); lifetime != 0 {
		t.Fatalf("freshness lifetime is %s", lifetime)
	}

	handleCount := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Last-Modified", lastModified)
		w.Write([]byte("Hello world"))
	})
	a := New(Config{})
	defer a.Close()
	mw := a.Middleware(handler)

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if handleCount != 2 {
		t.Fatalf("Handler called %d times", handleCount)
	}
}

func TestProxyOriginDown(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	originURL, _ := url.Parse(origin.URL)
	origin.Close()

	a := New(Config{OriginURL: *originURL, Timeout: time.Second})
	defer a.Close()

	rr := httptest.NewRecorder()
	a.ServeHTTP(rr, httptest.NewRequest("GET", "/page", nil))
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status is %d", rr.Code)
	}
}

// brokenStore panics on use.
type brokenStore struct {
	cache.Store
}

func TestPanicPassesThrough(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello world"))
	})
	a := New(Config{Store: brokenStore{}})
	defer a.Close()
	rr := httptest.NewRecorder()

	a.Middleware(handler).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != 200 || rr.Body.String() != "Hello world" {
		t.Fatalf("response is %d %s", rr.Code, rr.Body)
	}
}

func TestUpdateLoop(t *testing.T) {
	var handleCount int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&handleCount, 1)
		w.Header().Set("Cache-Control", "max-age=1")
		fmt.Fprintf(w, "Version %d", n)
	})
	a := New(Config{UpdateInterval: 100 * time.Millisecond})
	defer a.Close()
	mw := a.Middleware(handler)
	defer mw.(*Cache).Close()
	if a.stopUpdates != nil {
		t.Fatal("update loop started without an origin")
	}

	mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&handleCount) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("stored response was not updated")
		}
		time.Sleep(50 * time.Millisecond)
	}
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if !strings.HasPrefix(rr.Body.String(), "Version ") || rr.Body.String() == "Version 1" {
		t.Fatalf("Body is %s", rr.Body)
	}
}
