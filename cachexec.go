// Package cachexec puts an RFC 9111 cache in front of an origin server.
//
// A Cache is an http.Handler that proxies to the origin at OriginURL, or,
// through Middleware, to an in-process handler.
package cachexec

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/cachexec/cache"
	"github.com/always-cache/cachexec/core"
	cachekey "github.com/always-cache/cachexec/pkg/cache-key"
	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
	responsetransformer "github.com/always-cache/cachexec/pkg/response-transformer"
	tee "github.com/always-cache/cachexec/pkg/response-writer-tee"
	"github.com/always-cache/cachexec/rfc9111"
)

type Config struct {
	// Storage for cache entries. An in-memory store is used if nil.
	Store cache.Store
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Timeout bounds each request to the origin.
	Timeout time.Duration
	// Options of the cache. DefaultOptions are used if nil.
	Options *rfc9111.Options
	// Rules adjust origin responses before they are stored.
	Rules responsetransformer.Rules
	// Via is the name of the cache in Via and Cache-Status.
	Via string
	// UpdateInterval enables refreshing stored responses before they
	// expire. Entries expiring within the interval are refreshed once per
	// interval. Zero disables updates.
	UpdateInterval time.Duration
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Optional function for mutating the incoming request.
	RequestModifier func(*http.Request)
}

// DefaultOptions are the options of a shared cache supporting ranges.
// Heuristic freshness is off; responses need explicit expiration.
func DefaultOptions() rfc9111.Options {
	return rfc9111.Options{
		Shared:            true,
		MaxObjectSize:     8 << 20,
		SupportsRanges:    true,
		HeuristicFraction: 0,
		HeuristicMax:      24 * time.Hour,
	}
}

type Cache struct {
	exec           *core.CachingExec
	config         core.Config
	store          cache.Store
	origin         url.URL
	log            zerolog.Logger
	modifyRequest  func(*http.Request)
	updateInterval time.Duration
	stopUpdates    context.CancelFunc
}

// New initializes the cache. It starts the background update loop if an
// update interval and an origin are configured.
func New(config Config) *Cache {
	// use global logger if not specified in config
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	// create a child logger and add defaults
	if config.OriginURL.Host != "" {
		logger = logger.With().Str("origin", config.OriginURL.String()).Logger()
	}

	store := config.Store
	if store == nil {
		store = cache.NewMemStore(cache.Options{})
	}
	opts := DefaultOptions()
	if config.Options != nil {
		opts = *config.Options
	}
	transport := core.NewHTTPTransport(config.Timeout, config.OriginHost)
	transport.MaxBodySize = opts.MaxObjectSize

	a := &Cache{
		config: core.Config{
			Store:     store,
			Transport: transport,
			Options:   opts,
			Keyer:     cachekey.NewKeyer(""),
			Via:       config.Via,
			Rules:     config.Rules,
			Logger:    &logger,
		},
		store:          store,
		origin:         config.OriginURL,
		log:            logger,
		modifyRequest:  config.RequestModifier,
		updateInterval: config.UpdateInterval,
	}
	a.exec = core.New(a.config)
	// without an origin, updates wait for Middleware to supply a handler
	if config.OriginURL.Host != "" {
		a.startUpdates()
	}
	return a
}

// Middleware returns a handler that caches the responses of next.
// The returned handler shares the store of a.
func (a *Cache) Middleware(next http.Handler) http.Handler {
	m := &Cache{
		config:         a.config,
		store:          a.store,
		origin:         a.origin,
		log:            a.log,
		modifyRequest:  a.modifyRequest,
		updateInterval: a.updateInterval,
	}
	m.config.Transport = handlerTransport{next}
	m.exec = core.New(m.config)
	m.startUpdates()
	return m
}

// Exec returns the orchestrator behind the handler.
func (a *Cache) Exec() *core.CachingExec {
	return a.exec
}

// Close stops background updates. The store is left open.
func (a *Cache) Close() {
	if a.stopUpdates != nil {
		a.stopUpdates()
	}
	a.exec.Close()
}

// ServeHTTP implements the http.Handler interface.
func (a *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.modifyRequest != nil {
		a.modifyRequest(r)
	}
	logger := a.log.With().Str("sourceIp", getRequestSourceIp(r)).Logger()
	ctx := logger.WithContext(r.Context())

	req, err := message.FromHTTPRequest(r, a.base(r))
	if err != nil {
		logger.Warn().Err(err).Msg("Could not read request")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			a.passThrough(ctx, w, req)
			logger.WithLevel(zerolog.PanicLevel).Interface("error", rec).Str("url", req.URL.String()).Msg("Panic in cache handler")
		}
	}()

	res, status := a.exec.Execute(ctx, req)
	extra := header.Fields{{Name: "Cache-Status", Value: status.String()}}
	if err := res.Write(w, extra); err != nil {
		logger.Error().Err(err).Msg("Could not write response body to client")
	}
}

// passThrough sends req to the origin without involving the cache.
func (a *Cache) passThrough(ctx context.Context, w http.ResponseWriter, req *message.Request) {
	result := a.config.Transport.RoundTrip(ctx, req)
	if result.Kind != core.ResultOK {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	if err := result.Response.Write(w, nil); err != nil {
		a.log.Error().Err(err).Msg("Could not write response body to client")
	}
}

// base returns the URL that relative request targets are resolved
// against. Without a configured origin the request's own host is used.
func (a *Cache) base(r *http.Request) *url.URL {
	if a.origin.Host != "" {
		return &a.origin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: r.Host}
}

func (a *Cache) startUpdates() {
	if a.updateInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopUpdates = cancel
	go a.updateCache(ctx)
}

// updateCache refreshes the entries expiring within the update interval,
// once per interval, until ctx is done.
func (a *Cache) updateCache(ctx context.Context) {
	a.log.Info().Msgf("Starting cache update loop with interval %s", a.updateInterval)
	ticker := time.NewTicker(a.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := a.exec.RefreshExpiring(ctx, a.updateInterval)
		if err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("Could not update expiring entries")
			continue
		}
		if n > 0 {
			a.log.Debug().Int("refreshed", n).Msg("Updated expiring entries")
		}
	}
}

// handlerTransport serves requests with an in-process handler.
type handlerTransport struct {
	next http.Handler
}

func (t handlerTransport) RoundTrip(ctx context.Context, req *message.Request) core.Result {
	r, err := req.HTTPRequest(ctx)
	if err != nil {
		return core.Failure(err)
	}
	r.RequestURI = req.URL.RequestURI()
	r.Proto = req.Version.String()
	r.ProtoMajor, r.ProtoMinor = req.Version.Major, req.Version.Minor
	rw := tee.NewResponseSaver(nil)
	t.next.ServeHTTP(rw, r)
	if ctx.Err() != nil {
		return core.Timeout(ctx.Err())
	}
	return core.OK(rw.Response())
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	ip := ipAndPort[:portSepIdx]
	return ip
}
