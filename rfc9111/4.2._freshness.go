package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9211"
)

// Verdict is the outcome of evaluating a stored response for reuse.
type Verdict int

const (
	// Fresh responses can be served without contacting the origin.
	Fresh Verdict = iota
	// Stale responses must be validated, but may be served stale when
	// validation is impossible and serving stale is allowed.
	Stale
	// MustRevalidate responses must be validated and are never served
	// without successful validation.
	MustRevalidate
	// NotUsable responses cannot satisfy the request at all.
	NotUsable
)

func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case MustRevalidate:
		return "must-revalidate"
	case NotUsable:
		return "not-usable"
	}
	return "unknown"
}

// Freshness is the evaluation of a stored response for one request.
type Freshness struct {
	Verdict Verdict
	// Reason is the Cache-Status forward reason when the verdict is not Fresh.
	Reason   rfc9211.FwdReason
	Age      time.Duration
	Lifetime time.Duration
	// ServeStale is set when a stale response satisfies the request
	// because the client accepts stale responses (max-stale).
	ServeStale bool
}

// TTL returns the remaining freshness lifetime. It is negative for stale
// responses.
func (f Freshness) TTL() time.Duration {
	return f.Lifetime - f.Age
}

// §  4.2.  Freshness
// §
// §     A "fresh" response is one whose age has not yet exceeded its
// §     freshness lifetime.  Conversely, a "stale" response is one where it
// §     has.
// §
// §     The calculation to determine if a response is fresh is:
// §
// §        response_is_fresh = (freshness_lifetime > current_age)
//
// Evaluate decides whether a stored response can satisfy req at time now.
// Request directives (max-age, min-fresh, max-stale) and response
// directives (no-cache, must-revalidate, proxy-revalidate, s-maxage) are
// taken into account.
func Evaluate(req *message.Request, e *message.Entry, opts Options, now time.Time) Freshness {
	resCC := CacheControlOf(e.Response.Header)
	reqCC := CacheControlOf(req.Header)
	f := Freshness{
		Age:      CurrentAge(e, now),
		Lifetime: freshness_lifetime(e, opts),
	}

	// §  5.2.2.7.  private
	// §     [...] a shared cache MUST NOT store the response [...]
	if (opts.Shared && resCC.Unqualified("private")) || resCC.Has("no-store") {
		f.Verdict, f.Reason = NotUsable, rfc9211.FwdMiss
		return f
	}

	// §  5.2.2.4.  no-cache
	// §
	// §     The no-cache response directive, in its unqualified form (without an
	// §     argument), indicates that the response MUST NOT be used to satisfy
	// §     any other request without forwarding it for validation and
	// §     receiving a successful response; see Section 4.3.
	if resCC.Unqualified("no-cache") {
		f.Verdict, f.Reason = MustRevalidate, rfc9211.FwdStale
		return f
	}

	fresh := f.Age < f.Lifetime
	reason := rfc9211.FwdStale
	if fresh {
		// §  5.2.1.1.  max-age
		// §
		// §     The "max-age" request directive indicates that the client prefers a
		// §     response whose age is less than or equal to the specified number of
		// §     seconds.
		if maxAge, ok := reqCC.MaxAge(); ok && !(f.Age < maxAge) {
			fresh, reason = false, rfc9211.FwdRequest
		}
		if minFresh, ok := reqCC.MinFresh(); ok && f.TTL() < minFresh {
			fresh, reason = false, rfc9211.FwdRequest
		}
	}
	if fresh {
		f.Verdict = Fresh
		return f
	}
	f.Reason = reason

	if mustRevalidate(resCC, opts) {
		f.Verdict = MustRevalidate
		return f
	}

	// a client that accepts stale responses is served without validation
	if reason == rfc9211.FwdStale {
		if maxStale, ok := reqCC.MaxStale(); ok && -f.TTL() <= maxStale {
			if _, explicit := reqCC.MaxAge(); !explicit {
				f.Verdict, f.Reason, f.ServeStale = Fresh, "", true
				return f
			}
		}
	}
	f.Verdict = Stale
	return f
}

// §  5.2.2.2.  must-revalidate
// §
// §     The must-revalidate response directive indicates that once the
// §     response has become stale, a cache MUST NOT reuse that response to
// §     satisfy another request until it has been successfully validated by
// §     the origin, as defined by Section 4.3.
// §
// §  5.2.2.8.  proxy-revalidate
// §
// §     The proxy-revalidate response directive indicates that shared caches
// §     MUST NOT use a response after it becomes stale unless it has been
// §     successfully validated by the origin server.
// §
// §  5.2.2.10.  s-maxage
// §
// §     [...] The s-maxage directive incorporates the semantics of the
// §     proxy-revalidate response directive (Section 5.2.2.8) for a shared
// §     cache.
func mustRevalidate(cc CacheControl, opts Options) bool {
	if cc.Has("must-revalidate") {
		return true
	}
	return opts.Shared && (cc.Has("proxy-revalidate") || cc.Has("s-maxage"))
}
