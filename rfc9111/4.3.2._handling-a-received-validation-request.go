package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// Precondition is the result of evaluating a client's conditional
// request against a stored response.
type Precondition int

const (
	// Unconditional requests carry no precondition the cache evaluates.
	Unconditional Precondition = iota
	// NotModified means every precondition present agrees that the client
	// holds the stored representation.
	NotModified
	// Modified means every precondition present disagrees; the stored
	// response is sent in full.
	Modified
	// Undecided means the preconditions disagree with each other or cannot
	// be evaluated by the cache; the request is forwarded.
	Undecided
)

// §  4.3.2.  Handling a Received Validation Request
// §
// §     Each client in the request chain may have its own cache, so it is
// §     common for a cache at an intermediary to receive conditional requests
// §     from other (outbound) caches.  Likewise, some user agents make use of
// §     conditional requests to limit data transfers to recently modified
// §     representations or to complete the transfer of a partially retrieved
// §     representation.
// §
// §     If a cache receives a request that can be satisfied by reusing a
// §     stored 200 (OK) or 206 (Partial Content) response, as per Section 4,
// §     the cache SHOULD evaluate any applicable conditional header field
// §     preconditions received in that request with respect to the
// §     corresponding validators contained within the stored response.
//
// EvaluatePreconditions evaluates If-None-Match and If-Modified-Since
// against a stored response. Both must agree before a 304 is generated;
// when both are present, If-Modified-Since agrees only if it equals the
// stored Last-Modified.
func EvaluatePreconditions(req header.Fields, e *message.Entry) Precondition {
	if req.Has("If-Match") || req.Has("If-Unmodified-Since") {
		return Undecided
	}
	ims, err := rfc9110.ParseDate(req.Get("If-Modified-Since"))
	hasIMS := err == nil
	// a date later than the stored response is for the origin to judge
	if hasIMS && ims.After(date_value(e)) {
		return Undecided
	}
	var results []bool

	// §     A cache MUST NOT evaluate conditional header fields that only apply
	// §     to an origin server, occur in a request with semantics that cannot
	// §     be satisfied with a cached response, or occur in a request with a
	// §     target resource for which it has no stored responses; such
	// §     preconditions are likely intended for some other (inbound) server.
	// §
	// §     The proper evaluation of conditional requests by a cache depends on
	// §     the received precondition header fields and their precedence.  In
	// §     summary, the If-Match and If-Unmodified-Since conditional header
	// §     fields are not applicable to a cache, and If-None-Match takes
	// §     precedence over If-Modified-Since.
	if req.Has("If-None-Match") {
		results = append(results, noneMatchFails(req, e.Response))
	}

	// §     When a cache decides to evaluate If-Modified-Since, and the stored
	// §     response lacks a Last-Modified field, the cache SHOULD use the
	// §     stored response's Date field value (or, if no Date field is
	// §     present, the time that the stored response was received).
	switch {
	case hasIMS && req.Has("If-None-Match"):
		// next to an entity tag, only the exact validator agrees
		results = append(results, ims.Equal(lastModified(e)))
	case hasIMS:
		results = append(results, !lastModified(e).After(ims))
	}

	switch {
	case len(results) == 0:
		return Unconditional
	case allEqual(results, true):
		return NotModified
	case allEqual(results, false):
		return Modified
	}
	return Undecided
}

// noneMatchFails reports whether If-None-Match matches the stored
// response, which makes the condition false and the response 304.
func noneMatchFails(req header.Fields, res *message.Response) bool {
	tags, wildcard := rfc9110.ParseETagList(req.List("If-None-Match"))
	if wildcard {
		return true
	}
	stored, ok := rfc9110.ParseETag(res.Header.Get("ETag"))
	if !ok {
		return false
	}
	for _, tag := range tags {
		// §  If-None-Match uses the weak comparison function
		if rfc9110.WeakMatch(tag, stored) {
			return true
		}
	}
	return false
}

// lastModified is the Last-Modified of the stored response, or its Date.
func lastModified(e *message.Entry) time.Time {
	if lm, err := rfc9110.ParseDate(e.Response.Header.Get("Last-Modified")); err == nil {
		return lm
	}
	return date_value(e)
}

func allEqual(results []bool, v bool) bool {
	for _, r := range results {
		if r != v {
			return false
		}
	}
	return true
}

// notModifiedFields are the fields a 304 carries, per Section 15.4.5 of
// RFC 9110.
var notModifiedFields = []string{
	"Cache-Control",
	"Content-Location",
	"Date",
	"ETag",
	"Expires",
	"Vary",
}

// NotModifiedResponse builds the 304 sent for a stored response.
func NotModifiedResponse(e *message.Entry, now time.Time) *message.Response {
	res := message.NewResponse(304)
	res.Version = e.Response.Version
	for _, name := range notModifiedFields {
		for _, value := range e.Response.Header.Values(name) {
			res.Header.Add(name, value)
		}
	}
	res.Header.Set("Age", AgeValue(e, now))
	return res
}
