package rfc9111

import (
	"github.com/always-cache/cachexec/pkg/message"
)

// §  4.2.4.  Serving Stale Responses
// §
// §     A cache MUST NOT generate a stale response if it is prohibited by an
// §     explicit in-protocol directive (e.g., by a no-cache response
// §     directive, a must-revalidate response directive, or an applicable
// §     s-maxage or proxy-revalidate response directive; see Section 5.2.2).
// §
// §     A cache MUST NOT generate a stale response unless it is disconnected
// §     or doing so is explicitly permitted by the client or origin server
// §     (e.g., by the max-stale request directive in Section 5.2.1, extension
// §     directives such as those defined in [RFC5861], or configuration in
// §     accordance with an out-of-band contract).
//
// MayServeStaleOnError reports whether a stale response may be served
// because it could not be validated.
func MayServeStaleOnError(req *message.Request, e *message.Entry, f Freshness, opts Options) bool {
	if f.Verdict != Stale {
		return false
	}
	staleness := -f.TTL()
	for _, cc := range []CacheControl{CacheControlOf(req.Header), CacheControlOf(e.Response.Header)} {
		if limit, ok := cc.StaleIfError(); ok && staleness <= limit {
			return true
		}
	}
	if maxStale, ok := CacheControlOf(req.Header).MaxStale(); ok && staleness <= maxStale {
		return true
	}
	return opts.ServeStaleOnError
}
