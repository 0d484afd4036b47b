package rfc9111

import (
	"strconv"
	"time"

	"github.com/always-cache/cachexec/pkg/message"
)

// §  4.3.5.  Freshening Responses with HEAD
// §
// §     A response to the HEAD method is identical to what an equivalent
// §     request made with a GET would have been, without sending the content.
// §     This property of HEAD responses can be used to invalidate or update a
// §     cached GET response if the more efficient conditional GET request
// §     mechanism is not available (due to no validators being present in the
// §     stored response) or if transmission of content is not desired even if
// §     it has changed.
// §
// §     When a cache makes an inbound HEAD request for a target URI and
// §     receives a 200 (OK) response, the cache SHOULD update or invalidate
// §     each of its stored GET responses that could have been chosen for
// §     that request (see Section 4.1).
// §
// §     For each of the stored responses that could have been chosen, if the
// §     stored response and HEAD response have matching values for any
// §     received validator fields (ETag and Last-Modified) and, if the HEAD
// §     response has a Content-Length header field, the value of Content-
// §     Length matches that of the stored response, the cache SHOULD update
// §     the stored response as described below; otherwise, the cache SHOULD
// §     consider the stored response to be stale.
//
// FreshenWithHead updates e with a 200 response to HEAD. ok is false when
// the HEAD response describes a different representation and e has to be
// invalidated.
func FreshenWithHead(e *message.Entry, res *message.Response, requestTime, responseTime time.Time) (*message.Entry, bool) {
	for _, name := range []string{"ETag", "Last-Modified", "Content-MD5"} {
		if value, ok := res.Header.Lookup(name); ok && value != e.Response.Header.Get(name) {
			return nil, false
		}
	}
	if value, ok := res.Header.Lookup("Content-Length"); ok {
		length, err := strconv.ParseInt(value, 10, 64)
		if err != nil || length != CompleteLength(e.Response) {
			return nil, false
		}
	}
	// §     If a cache updates a stored response with the metadata provided in a
	// §     HEAD response, the cache MUST use the header fields provided in the
	// §     HEAD response to update the stored response (see Section 3.2).
	return Freshen(e, res, requestTime, responseTime), true
}
