// Package core implements the caching decision engine.
//
// CachingExec answers requests from a Store where possible, validates
// stored responses with the origin when needed, merges what the origin
// returns into the Store, and rewrites messages so that the cache behaves
// as a correct HTTP/1.1 intermediary.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/cachexec/cache"
	cachekey "github.com/always-cache/cachexec/pkg/cache-key"
	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/pkg/metrics"
	responsetransformer "github.com/always-cache/cachexec/pkg/response-transformer"
	"github.com/always-cache/cachexec/rfc9110"
	"github.com/always-cache/cachexec/rfc9111"
	"github.com/always-cache/cachexec/rfc9211"
)

const DefaultVia = "cachexec"

type Config struct {
	Store     cache.Store
	Transport Transport
	Options   rfc9111.Options
	Keyer     cachekey.Keyer
	// Via is the pseudonym the cache adds to Via and Cache-Status.
	Via string
	// Rules adjust origin responses before they are stored.
	Rules  responsetransformer.Rules
	Logger *zerolog.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type CachingExec struct {
	store     cache.Store
	transport Transport
	opts      rfc9111.Options
	keyer     cachekey.Keyer
	via       string
	rules     responsetransformer.Rules
	log       zerolog.Logger
	now       func() time.Time

	mu sync.Mutex
	// pending delayed cache updates
	timers map[*time.Timer]struct{}
}

// New creates the orchestrator. The store and the transport are owned
// by the caller.
func New(config Config) *CachingExec {
	c := &CachingExec{
		store:     config.Store,
		transport: config.Transport,
		opts:      config.Options,
		keyer:     config.Keyer,
		via:       config.Via,
		rules:     config.Rules,
		log:       log.Logger,
		now:       config.Now,
	}
	if config.Logger != nil {
		c.log = *config.Logger
	}
	if c.via == "" {
		c.via = DefaultVia
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Close stops pending delayed cache updates.
func (c *CachingExec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t := range c.timers {
		t.Stop()
	}
	c.timers = nil
}

// exchange is the state of a single request.
type exchange struct {
	c   *CachingExec
	req *message.Request
	// fwd is the request as forwarded to the origin
	fwd    *message.Request
	key    string
	status rfc9211.CacheStatus
	log    zerolog.Logger
	// outcome is the metrics label of the request
	outcome string
	// noStore disables store writes after the store failed
	noStore bool

	requestTime  time.Time
	responseTime time.Time
}

// Execute handles one request and returns the response for the client
// together with its Cache-Status.
func (c *CachingExec) Execute(ctx context.Context, req *message.Request) (*message.Response, rfc9211.CacheStatus) {
	logger := c.log
	// a logger carried by ctx knows more about the request
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	x := &exchange{
		c:       c,
		req:     req,
		status:  rfc9211.CacheStatus{Cache: c.via},
		outcome: metrics.OutcomeMiss,
		log: logger.With().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Logger(),
	}
	res := x.run(ctx)

	metrics.Requests.WithLabelValues(x.outcome).Inc()
	isHit := 0
	if x.status.Hit() {
		isHit = 1
	}
	x.log.Debug().
		Int("status", res.StatusCode).
		Str("fwd", string(x.status.Fwd)).
		Bool("stored", x.status.Stored).
		Int64("ttl", x.status.TTL).
		Int("hit", isHit).
		Msg("Sending response to client")
	return res, x.status
}

func (x *exchange) run(ctx context.Context) *message.Response {
	req := x.req
	if tunnelled(req) {
		return x.tunnel(ctx)
	}
	if answersLocally(req) {
		x.outcome = metrics.OutcomeBypass
		x.status.Forward(rfc9211.FwdMethod)
		x.status.Detail = "max-forwards"
		now := x.c.now()
		return x.c.assemble(req, x.c.optionsResponse(now), supported, now)
	}
	x.fwd = x.c.forwardRequest(req)

	policy := rfc9110.LookupMethod(req.Method)
	switch policy.Kind {
	case rfc9110.MethodRead:
		return x.read(ctx)
	case rfc9110.MethodUnsafe:
		return x.writeThrough(ctx, policy.Invalidates)
	default:
		return x.writeThrough(ctx, false)
	}
}

// tunnel passes a request of an unsupported protocol version through
// without inspecting or changing it.
func (x *exchange) tunnel(ctx context.Context) *message.Response {
	x.outcome = metrics.OutcomeTunnel
	x.status.Forward(rfc9211.FwdBypass)
	x.status.Detail = "tunnel"
	result := x.c.transport.RoundTrip(ctx, x.req)
	if result.Kind != ResultOK {
		x.failed(result)
		return x.unreachable()
	}
	x.status.FwdStatus = result.Response.StatusCode
	return result.Response
}

// writeThrough forwards requests the cache does not answer itself.
func (x *exchange) writeThrough(ctx context.Context, invalidates bool) *message.Response {
	x.outcome = metrics.OutcomeBypass
	x.status.Forward(rfc9211.FwdMethod)
	result := x.send(ctx, x.fwd)
	if result.Kind != ResultOK {
		return x.unreachable()
	}
	res := result.Response
	x.status.FwdStatus = res.StatusCode
	if invalidates {
		x.c.invalidate(ctx, x.req, res)
	}
	return x.c.assemble(x.req, res, res.Version, x.c.now())
}

// read handles GET and HEAD.
func (x *exchange) read(ctx context.Context) *message.Response {
	c, req := x.c, x.req
	x.key = c.keyer.Key(req.Method, req.URL)
	x.log = x.log.With().Str("key", x.key).Logger()
	reqCC := rfc9111.CacheControlOf(req.Header)

	entries, err := c.store.Match(ctx, x.key)
	if err != nil {
		x.storeError("match", err)
		entries = nil
	}

	// §  5.2.1.4.  no-cache
	// §
	// §     The no-cache request directive indicates that the client prefers a
	// §     stored response not be used to satisfy the request without
	// §     successful validation on the origin server.
	//
	// The request is reloaded end to end, with the client's own validators.
	if rfc9111.RequestNoCache(req.Header) {
		x.status.Forward(rfc9211.FwdRequest)
		return x.fetch(ctx, x.fwd, entries)
	}

	candidates := matching(entries, req.Header)
	complete, partial := splitPartial(candidates)
	now := c.now()
	x.log.Trace().Int("stored", len(entries)).Int("matching", len(candidates)).Msg("Looked up stored responses")

	if c.rangeRequested(req) {
		for _, p := range partial {
			f := rfc9111.Evaluate(req, p, c.opts, now)
			if f.Verdict != rfc9111.Fresh {
				continue
			}
			res := rfc9111.ConstructResponse(p, now, false)
			if out, ok := servePartial(req, p, res); ok {
				x.hit(f)
				return c.assemble(req, out, p.Response.Version, now)
			}
		}
	}

	e := newest(complete)
	if e == nil {
		if reqCC.Has("only-if-cached") {
			return x.onlyIfCached()
		}
		switch {
		case len(entries) == 0:
			x.status.Forward(rfc9211.FwdURIMiss)
		case len(partial) > 0:
			x.status.Forward(rfc9211.FwdPartial)
		default:
			x.status.Forward(rfc9211.FwdVaryMiss)
			// the origin can tell which stored variant, if any, applies
			if tagged := withETag(entries); len(tagged) > 0 {
				return x.revalidate(ctx, nil, rfc9111.Freshness{}, tagged, entries)
			}
		}
		return x.fetch(ctx, x.fwd, entries)
	}

	f := rfc9111.Evaluate(req, e, c.opts, now)
	x.log.Trace().Stringer("verdict", f.Verdict).Dur("age", f.Age).Dur("lifetime", f.Lifetime).Msg("Evaluated stored response")
	if f.Verdict != rfc9111.Fresh && reqCC.Has("only-if-cached") {
		return x.onlyIfCached()
	}
	switch f.Verdict {
	case rfc9111.Fresh:
		if rfc9111.EvaluatePreconditions(req.Header, e) == rfc9111.Undecided {
			// the origin evaluates preconditions the cache cannot
			x.status.Forward(rfc9211.FwdRequest)
			return x.fetch(ctx, x.fwd, entries)
		}
		x.hit(f)
		if f.ServeStale {
			return x.respond(e, now, false, rfc9111.WarningStale)
		}
		return x.respond(e, now, false)
	case rfc9111.NotUsable:
		x.status.Forward(f.Reason)
		return x.fetch(ctx, x.fwd, entries)
	}
	x.status.Forward(f.Reason)
	return x.revalidate(ctx, e, f, complete, entries)
}

func (x *exchange) hit(f rfc9111.Freshness) {
	x.outcome = metrics.OutcomeHit
	x.status = rfc9211.CacheStatus{
		Cache:  x.status.Cache,
		TTL:    rfc9111.Seconds(f.TTL()),
		HasTTL: true,
	}
}

// revalidate sends a conditional request for candidates. e is the stored
// response selected for the request, or nil when no variant matched.
func (x *exchange) revalidate(ctx context.Context, e *message.Entry, f rfc9111.Freshness, candidates, entries []*message.Entry) *message.Response {
	c, req := x.c, x.req
	vreq := rfc9111.ValidationRequest(x.fwd, candidates, f.Verdict == rfc9111.MustRevalidate)
	result := x.send(ctx, vreq)
	if result.Kind != ResultOK {
		if e != nil && rfc9111.MayServeStaleOnError(req, e, f, c.opts) {
			return x.serveStale(e)
		}
		return x.unreachable()
	}
	res := result.Response
	x.status.FwdStatus = res.StatusCode

	switch rfc9111.ClassifyValidation(res) {
	case rfc9111.ValidationNotModified:
		updated := x.freshen(ctx, res, candidates)
		if len(updated) == 0 {
			x.log.Debug().Msg("Not modified response matches no stored response, repeating unconditionally")
			unconditional := x.fwd.Clone()
			unconditional.Header = rfc9111.StripConditionals(unconditional.Header)
			return x.fetch(ctx, unconditional, entries)
		}
		served := x.selectVariant(ctx, updated)
		x.outcome = metrics.OutcomeRevalidated
		return x.respond(served, c.now(), true)
	case rfc9111.ValidationError:
		if e != nil && rfc9111.MayServeStaleOnError(req, e, f, c.opts) {
			x.log.Debug().Int("status", res.StatusCode).Msg("Serving stale response instead of server error")
			return x.serveStale(e)
		}
	}
	return x.received(ctx, vreq, res, entries, true)
}

// selectVariant returns the updated entry that the request selects. When
// the origin validated a variant the request did not select, that
// variant is stored for the request's selecting header fields as well.
func (x *exchange) selectVariant(ctx context.Context, updated []*message.Entry) *message.Entry {
	for _, e := range updated {
		if rfc9111.VaryMatches(e, x.req.Header) {
			return e
		}
	}
	e := updated[0].Clone()
	names := rfc9111.VaryNames(e.Response.Header)
	e.Variant = cachekey.Variant(x.req.Header, names)
	e.RequestHeader = rfc9111.SelectingHeader(x.req.Header, names)
	if !x.noStore {
		if err := cache.Put(ctx, x.c.store, e); err != nil {
			x.storeError("update", err)
		} else {
			metrics.StoreWrites.Inc()
			x.status.Stored = true
		}
	}
	return e
}

// fetch forwards fwd and processes the response.
func (x *exchange) fetch(ctx context.Context, fwd *message.Request, entries []*message.Entry) *message.Response {
	result := x.send(ctx, fwd)
	if result.Kind != ResultOK {
		return x.unreachable()
	}
	return x.received(ctx, fwd, result.Response, entries, false)
}

// received stores a response from the origin and derives the response
// for the client. ownValidators is set when fwd carried the cache's
// validators instead of the client's.
func (x *exchange) received(ctx context.Context, fwd *message.Request, res *message.Response, entries []*message.Entry, ownValidators bool) *message.Response {
	c, req := x.c, x.req
	x.status.FwdStatus = res.StatusCode
	if err := c.rules.Apply(req, res); err != nil {
		x.log.Warn().Err(err).Msg("Could not apply response rules")
	}

	var stored *message.Entry
	switch {
	case res.StatusCode == 304:
		// the client's own validators were validated; the stored
		// responses they identify are fresh again
		if hasValidator(res) {
			x.freshen(ctx, res, matchingComplete(entries, req.Header))
		}
	case req.Method == "HEAD" && res.StatusCode == 200:
		x.freshenWithHead(ctx, res, matchingComplete(entries, req.Header))
	default:
		stored = x.storeResponse(ctx, res)
	}

	now := c.now()
	if stored != nil && ownValidators && stored.Response.StatusCode == 200 {
		return x.respond(stored, now, true)
	}
	out := res
	if c.rangeRequested(req) && !fwd.Header.Has("Range") && res.StatusCode == 200 {
		ranged, err := serveRanges(req, res)
		if err != nil {
			x.log.Warn().Err(err).Msg("Could not serve ranges")
		} else {
			out = ranged
		}
	}
	return c.assemble(req, out, res.Version, now)
}

// respond sends a stored response, answering the client's own
// preconditions and ranges.
func (x *exchange) respond(e *message.Entry, now time.Time, validated bool, warnings ...string) *message.Response {
	c, req := x.c, x.req
	if rfc9111.EvaluatePreconditions(req.Header, e) == rfc9111.NotModified {
		res := rfc9111.NotModifiedResponse(e, now)
		for _, w := range warnings {
			rfc9111.AddWarning(&res.Header, w)
		}
		return c.assemble(req, res, e.Response.Version, now)
	}
	res := rfc9111.ConstructResponse(e, now, validated)
	for _, w := range warnings {
		rfc9111.AddWarning(&res.Header, w)
	}
	if c.rangeRequested(req) {
		ranged, err := serveRanges(req, res)
		if err != nil {
			x.log.Warn().Err(err).Msg("Could not serve ranges")
		} else {
			res = ranged
		}
	}
	return c.assemble(req, res, e.Response.Version, now)
}

// serveStale sends a stale response because the origin could not
// validate it.
func (x *exchange) serveStale(e *message.Entry) *message.Response {
	x.outcome = metrics.OutcomeStale
	return x.respond(e, x.c.now(), false, rfc9111.WarningStale, rfc9111.WarningRevalidationFailed)
}

// §  5.2.1.7.  only-if-cached
// §
// §     The only-if-cached request directive indicates that the client only
// §     wishes to obtain a stored response.  Caches that honor this request
// §     directive SHOULD, upon receiving it, respond with either a stored
// §     response consistent with the other constraints of the request or a
// §     504 (Gateway Timeout) status code.
func (x *exchange) onlyIfCached() *message.Response {
	x.outcome = metrics.OutcomeBypass
	x.status.Forward(rfc9211.FwdMiss)
	x.status.Detail = "only-if-cached"
	now := x.c.now()
	return x.c.assemble(x.req, gatewayTimeout(now), supported, now)
}

// unreachable answers when the origin could not be reached.
func (x *exchange) unreachable() *message.Response {
	x.outcome = metrics.OutcomeError
	now := x.c.now()
	return x.c.assemble(x.req, gatewayTimeout(now), supported, now)
}

// send performs a round trip and records its timing.
func (x *exchange) send(ctx context.Context, req *message.Request) Result {
	x.requestTime = x.c.now()
	result := x.c.transport.RoundTrip(ctx, req)
	x.responseTime = x.c.now()
	if result.Kind != ResultOK {
		x.failed(result)
		return result
	}
	// as per https://www.rfc-editor.org/rfc/rfc9110#section-6.6.1-8
	if !result.Response.Header.Has("Date") {
		result.Response.Header.Set("Date", rfc9110.FormatDate(x.responseTime))
	}
	return result
}

func (x *exchange) failed(result Result) {
	metrics.TransportFailures.WithLabelValues(result.Kind.String()).Inc()
	x.log.Error().Err(result.Err).Stringer("kind", result.Kind).Msg("Could not fetch response from origin")
}

func (x *exchange) storeError(operation string, err error) {
	metrics.StoreErrors.WithLabelValues(operation).Inc()
	x.log.Warn().Err(err).Str("operation", operation).Msg("Store failed, passing through")
	x.noStore = true
}

// matching returns the entries whose selecting header fields match req.
func matching(entries []*message.Entry, req header.Fields) []*message.Entry {
	var out []*message.Entry
	for _, e := range entries {
		if rfc9111.VaryMatches(e, req) {
			out = append(out, e)
		}
	}
	return out
}

func matchingComplete(entries []*message.Entry, req header.Fields) []*message.Entry {
	complete, _ := splitPartial(matching(entries, req))
	return complete
}

func splitPartial(entries []*message.Entry) (complete, partial []*message.Entry) {
	for _, e := range entries {
		if e.Response.StatusCode == 206 {
			partial = append(partial, e)
		} else {
			complete = append(complete, e)
		}
	}
	return complete, partial
}

// newest returns the entry that wins when several stored responses
// match: the most recent Date, then the most recent response time.
func newest(entries []*message.Entry) *message.Entry {
	var best *message.Entry
	for _, e := range entries {
		if best == nil || newer(e, best) {
			best = e
		}
	}
	return best
}

func newer(a, b *message.Entry) bool {
	da, _ := rfc9110.ParseDate(a.Response.Header.Get("Date"))
	db, _ := rfc9110.ParseDate(b.Response.Header.Get("Date"))
	if !da.Equal(db) {
		return da.After(db)
	}
	return a.ResponseTime.After(b.ResponseTime)
}

func withETag(entries []*message.Entry) []*message.Entry {
	var out []*message.Entry
	for _, e := range entries {
		if e.Response.StatusCode != 206 && e.Response.Header.Has("ETag") {
			out = append(out, e)
		}
	}
	return out
}

func hasValidator(res *message.Response) bool {
	return res.Header.Has("ETag") || res.Header.Has("Last-Modified")
}
