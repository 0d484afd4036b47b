package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// §  4.2.2.  Calculating Heuristic Freshness
// §
// §     Since origin servers do not always provide explicit expiration times,
// §     a cache MAY assign a heuristic expiration time when an explicit time
// §     is not specified, employing algorithms that use other field values
// §     (such as the Last-Modified time) to estimate a plausible expiration
// §     time.
// §
// §     When a response is heuristically cacheable, a cache MAY use a
// §     fraction of the time since the Last-Modified time; a typical setting
// §     of this fraction might be 10%.
func heuristic_freshness(e *message.Entry, opts Options) time.Duration {
	if opts.HeuristicFraction <= 0 {
		return 0
	}
	if !rfc9110.LookupStatus(e.Response.StatusCode).HeuristicallyCacheable &&
		!CacheControlOf(e.Response.Header).Has("public") {
		return 0
	}
	lm, ok := e.Response.Header.Lookup("Last-Modified")
	if !ok {
		return 0
	}
	modified, err := rfc9110.ParseDate(lm)
	if err != nil {
		return 0
	}
	since := date_value(e).Sub(modified)
	if since <= 0 {
		return 0
	}
	lifetime := time.Duration(float64(since) * opts.HeuristicFraction)
	if opts.HeuristicMax > 0 && lifetime > opts.HeuristicMax {
		lifetime = opts.HeuristicMax
	}
	return lifetime
}
