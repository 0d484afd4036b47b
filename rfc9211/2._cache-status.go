// Package rfc9211 implements the Cache-Status response header field.
package rfc9211

import (
	"strconv"
	"strings"
)

// FieldName is the name of the Cache-Status header field.
const FieldName = "Cache-Status"

// §  2.2.  The fwd Parameter
// §
// §     "fwd" indicates that the request went forward towards the origin.
// §     Its value indicates why the request went forward.
type FwdReason string

const (
	// §  bypass:  The cache was configured to not handle this request.
	FwdBypass FwdReason = "bypass"
	// §  method:  The request method's semantics require the request to be
	// §     forwarded.
	FwdMethod FwdReason = "method"
	// §  uri-miss:  The cache did not contain any responses that matched the
	// §     request URI.
	FwdURIMiss FwdReason = "uri-miss"
	// §  vary-miss:  The cache contained a response that matched the request
	// §     URI, but it could not select a response based upon this request's
	// §     header fields and stored Vary header fields.
	FwdVaryMiss FwdReason = "vary-miss"
	// §  miss:  The cache did not contain any responses that could be used to
	// §     satisfy this request.
	FwdMiss FwdReason = "miss"
	// §  request:  The cache was able to select a fresh response for the
	// §     request, but the request's semantics (e.g., Cache-Control request
	// §     directives) did not allow its use.
	FwdRequest FwdReason = "request"
	// §  stale:  The cache was able to select a response for the request, but
	// §     it was stale.
	FwdStale FwdReason = "stale"
	// §  partial:  The cache was able to select a partial response for the
	// §     request, but it did not contain all of the requested ranges (or
	// §     the request was for the complete response).
	FwdPartial FwdReason = "partial"
)

// CacheStatus describes how a cache handled one request.
// The zero value reports a hit.
type CacheStatus struct {
	// Cache is the identifier of the cache adding the member.
	Cache string
	// Fwd is empty for hits.
	Fwd FwdReason
	// §  2.3.  The fwd-status Parameter
	FwdStatus int
	// §  2.4.  The ttl Parameter
	// §
	// §     "ttl" indicates the response's remaining freshness lifetime as
	// §     calculated by the cache, as an integer number of seconds, measured
	// §     when the response header section is sent by the cache.
	TTL    int64
	HasTTL bool
	// §  2.5.  The stored Parameter
	Stored bool
	// §  2.6.  The collapsed Parameter
	Collapsed bool
	// §  2.7.  The key Parameter
	Key string
	// §  2.8.  The detail Parameter
	Detail string
}

// Hit reports whether the response was served from the cache.
func (cs CacheStatus) Hit() bool {
	return cs.Fwd == ""
}

// Forward marks the status as forwarded for the given reason.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Fwd = reason
}

// String serializes the status as a single list member.
//
// §  Cache-Status   = sf-list
// §
// §     The list members identify caches that have handled the response,
// §     with the first member being the cache closest to the origin server.
func (cs CacheStatus) String() string {
	var b strings.Builder
	b.WriteString(sfToken(cs.Cache))
	if cs.Hit() {
		b.WriteString("; hit")
	} else {
		b.WriteString("; fwd=")
		b.WriteString(string(cs.Fwd))
		if cs.FwdStatus != 0 {
			b.WriteString("; fwd-status=")
			b.WriteString(strconv.Itoa(cs.FwdStatus))
		}
	}
	if cs.HasTTL {
		b.WriteString("; ttl=")
		b.WriteString(strconv.FormatInt(cs.TTL, 10))
	}
	if cs.Stored {
		b.WriteString("; stored")
	}
	if cs.Collapsed {
		b.WriteString("; collapsed")
	}
	if cs.Key != "" {
		b.WriteString("; key=")
		b.WriteString(strconv.Quote(cs.Key))
	}
	if cs.Detail != "" {
		b.WriteString("; detail=")
		b.WriteString(sfToken(cs.Detail))
	}
	return b.String()
}

// sfToken returns s when it is a valid structured field token,
// and a quoted string otherwise.
func sfToken(s string) string {
	if s == "" {
		return `""`
	}
	for i, r := range s {
		alpha := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		if i == 0 && !alpha && r != '*' {
			return strconv.Quote(s)
		}
		if !alpha && !(r >= '0' && r <= '9') && !strings.ContainsRune("!#$%&'*+-.^_`|~:/", r) {
			return strconv.Quote(s)
		}
	}
	return s
}
