package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/message"
)

// FreshnessLifetime returns the freshness lifetime of a stored response.
func FreshnessLifetime(e *message.Entry, opts Options) time.Duration {
	return freshness_lifetime(e, opts)
}

func freshness_lifetime(e *message.Entry, opts Options) time.Duration {
	cc := CacheControlOf(e.Response.Header)
	// §  4.2.1.  Calculating Freshness Lifetime
	// §
	// §     A cache can calculate the freshness lifetime (denoted as
	// §     freshness_lifetime) of a response by evaluating the following rules
	// §     and using the first match:
	// §
	// §     *  If the cache is shared and the s-maxage response directive
	// §        (Section 5.2.2.10) is present, use its value, or
	if opts.Shared {
		if val, ok := cc.SMaxAge(); ok {
			return val
		}
	}
	// §
	// §     *  If the max-age response directive (Section 5.2.2.1) is present,
	// §        use its value, or
	if val, ok := cc.MaxAge(); ok {
		return val
	}
	// §
	// §     *  If the Expires response header field (Section 5.3) is present, use
	// §        its value minus the value of the Date response header field (using
	// §        the time the message was received if it is not present, as per
	// §        Section 6.6.1 of [HTTP]), or
	if expires, ok := expiresHeader(e.Response.Header); ok {
		if expires.IsZero() {
			return 0
		}
		return max(0, expires.Sub(date_value(e)))
	}
	// §
	// §     *  Otherwise, no explicit expiration time is present in the response.
	// §        A heuristic freshness lifetime might be applicable; see
	// §        Section 4.2.2.
	return heuristic_freshness(e, opts)
}

// HasExplicitExpiration reports whether the response carries explicit
// freshness information.
func HasExplicitExpiration(res *message.Response, opts Options) bool {
	cc := CacheControlOf(res.Header)
	if _, ok := cc.MaxAge(); ok {
		return true
	}
	if _, ok := cc.SMaxAge(); ok && opts.Shared {
		return true
	}
	return res.Header.Has("Expires")
}
