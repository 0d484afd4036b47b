package rfc9111

import (
	"strings"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// Reasons returned by MayStore when a response is not stored.
const (
	NotStoredMethod        = "method"
	NotStoredStatus        = "status"
	NotStoredNoStore       = "no-store"
	NotStoredPrivate       = "private"
	NotStoredAuthorization = "authorization"
	NotStoredVaryAll       = "vary-all"
	NotStoredPartial       = "partial"
	NotStoredSize          = "size"
	NotStoredNoFreshness   = "no-freshness"
)

// §  3.  Storing Responses in Caches
// §
// §     A cache MUST NOT store a response to a request unless:
//
// MayStore reports whether the response to req may be stored,
// and the reason when it may not.
func MayStore(req *message.Request, res *message.Response, opts Options) (bool, string) {
	reqCC := CacheControlOf(req.Header)
	resCC := CacheControlOf(res.Header)
	status := rfc9110.LookupStatus(res.StatusCode)

	// §     *  the request method is understood by the cache;
	if req.Method != "GET" {
		return false, NotStoredMethod
	}

	// §     *  the response status code is final (see Section 15 of [HTTP]);
	// §
	// §     *  if the response status code is 206 or 304, or the must-understand
	// §        cache directive (see Section 5.2.2.3) is present: the cache
	// §        understands the response status code;
	if res.StatusCode < 200 || !status.Understood || !status.Storable {
		return false, NotStoredStatus
	}
	if res.StatusCode == 206 && !opts.SupportsRanges {
		return false, NotStoredPartial
	}
	if res.StatusCode == 206 {
		if _, ok := PartialSpan(res); !ok {
			return false, NotStoredPartial
		}
	}

	// §     *  the no-store cache directive is not present in the response (see
	// §        Section 5.2.2.5);
	mustUnderstand := resCC.Has("must-understand")
	if reqCC.Has("no-store") || (resCC.Has("no-store") && !mustUnderstand) {
		return false, NotStoredNoStore
	}

	// §     *  if the cache is shared: the private response directive is either
	// §        not present or allows a shared cache to store a modified response;
	// §        see Section 5.2.2.7);
	if opts.Shared && resCC.Unqualified("private") {
		return false, NotStoredPrivate
	}

	// §     *  if the cache is shared: the Authorization header field is not
	// §        present in the request (see Section 11.6.2 of [HTTP]) or a
	// §        response directive is present that explicitly allows shared
	// §        caching (see Section 3.5); and
	if opts.Shared && req.Header.Has("Authorization") && !authorizedStorable(resCC) {
		return false, NotStoredAuthorization
	}

	// §  4.1.  Calculating Cache Keys with the Vary Header Field
	// §
	// §     A stored response with a Vary header field value containing a member
	// §     "*" always fails to match.
	if VaryAll(res.Header) {
		return false, NotStoredVaryAll
	}

	if opts.MaxObjectSize > 0 && int64(len(res.Body)) > opts.MaxObjectSize {
		return false, NotStoredSize
	}

	// §     *  the response contains at least one of the following:
	// §
	// §        -  a public response directive (see Section 5.2.2.9);
	// §
	// §        -  a private response directive, if the cache is not shared (see
	// §           Section 5.2.2.7);
	// §
	// §        -  an Expires header field (see Section 5.3);
	// §
	// §        -  a max-age response directive (see Section 5.2.2.1);
	// §
	// §        -  if the cache is shared: an s-maxage response directive (see
	// §           Section 5.2.2.10);
	// §
	// §        -  a cache extension that allows it to be cached (see
	// §           Section 5.2.3); or
	// §
	// §        -  a status code that is defined as heuristically cacheable (see
	// §           Section 4.2.2).
	switch {
	case resCC.Has("public"):
	case !opts.Shared && resCC.Has("private"):
	case res.Header.Has("Expires"):
	case resCC.Has("max-age"):
	case opts.Shared && resCC.Has("s-maxage"):
	case status.HeuristicallyCacheable:
	default:
		return false, NotStoredNoFreshness
	}
	return true, ""
}

// §  3.5.  Storing Responses to Authenticated Requests
// §
// §     A shared cache MUST NOT use a cached response to a request with an
// §     Authorization header field (Section 11.6.2 of [HTTP]) to satisfy any
// §     subsequent request unless the response contains a Cache-Control
// §     field with a response directive (Section 5.2.2) that allows it to be
// §     stored by a shared cache, and the cache conforms to the requirements
// §     of that directive for that response.
// §
// §     In this specification, the following response directives have such
// §     an effect: must-revalidate (Section 5.2.2.2), public
// §     (Section 5.2.2.9), and s-maxage (Section 5.2.2.10).
func authorizedStorable(cc CacheControl) bool {
	return cc.Has("public") || cc.Has("must-revalidate") || cc.Has("s-maxage")
}

// ReplacesStored reports whether incoming should replace stored.
// The response with the more recent Date wins; on a tie the incoming
// response wins.
func ReplacesStored(stored, incoming *message.Entry) bool {
	if stored == nil {
		return true
	}
	return !date_value(stored).After(date_value(incoming))
}

// IsMultipart reports whether a response body is multipart/byteranges.
func IsMultipart(res *message.Response) bool {
	return strings.HasPrefix(strings.ToLower(res.Header.Get("Content-Type")), "multipart/byteranges")
}
