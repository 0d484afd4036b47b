package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// §  4.3.4.  Freshening Stored Responses upon Validation
// §
// §     When a cache receives a 304 (Not Modified) response, it needs to
// §     identify stored responses that are suitable for updating with the new
// §     information provided, and then do so.
// §
// §     The initial set of stored responses to update are those that could
// §     have been chosen for that request -- i.e., those that meet the
// §     requirements in Section 4, except the last requirement to be fresh,
// §     be allowed to be served stale, or just validated.
// §
// §     Then, that initial set of stored responses is further filtered by the
// §     first match of:
//
// SelectForUpdate returns the candidates a 304 applies to. An empty
// result means the 304 matches nothing stored and the request has to be
// repeated without preconditions.
func SelectForUpdate(res *message.Response, candidates []*message.Entry) []*message.Entry {
	tag, hasTag := rfc9110.ParseETag(res.Header.Get("ETag"))
	lastModified, hasLM := res.Header.Lookup("Last-Modified")

	// §     *  If the new response contains one or more strong validators (see
	// §        Section 8.8.1 of [HTTP]), then each of those strong validators
	// §        identifies a selected representation for update.  All the stored
	// §        responses in the initial set with one of those same strong
	// §        validators are identified for update.  If none of the initial set
	// §        contains at least one of the same strong validators, then the
	// §        cache MUST NOT use the new response to update any stored
	// §        responses.
	if hasTag && !tag.Weak {
		var selected []*message.Entry
		for _, e := range candidates {
			if stored, ok := rfc9110.ParseETag(e.Response.Header.Get("ETag")); ok && rfc9110.StrongMatch(stored, tag) {
				selected = append(selected, e)
			}
		}
		return selected
	}

	// §     *  If the new response contains no strong validators but does
	// §        contain one or more weak validators, and those validators
	// §        correspond to one of the initial set's stored responses, then the
	// §        most recent of those matching stored responses is identified for
	// §        update.
	if hasTag || hasLM {
		var newest *message.Entry
		for _, e := range candidates {
			var matches bool
			if hasTag {
				stored, ok := rfc9110.ParseETag(e.Response.Header.Get("ETag"))
				matches = ok && rfc9110.WeakMatch(stored, tag)
			} else {
				matches = e.Response.Header.Get("Last-Modified") == lastModified
			}
			if matches && (newest == nil || ReplacesStored(newest, e)) {
				newest = e
			}
		}
		if newest == nil {
			return nil
		}
		return []*message.Entry{newest}
	}

	// §     *  If the new response does not include any form of validator (such
	// §        as where a client generates an If-Modified-Since request from a
	// §        source other than the Last-Modified response header field), and
	// §        there is only one stored response in the initial set, and that
	// §        stored response also lacks a validator, then that stored response
	// §        is identified for update.
	//
	// A 304 without validators answering our own conditional request
	// refers to the single candidate that request nominated.
	if len(candidates) == 1 {
		return candidates
	}
	return nil
}

// §     For each stored response identified, the cache MUST update its header
// §     fields with the header fields provided in the 304 (Not Modified)
// §     response, as per Section 3.2.
//
// Freshen returns a new entry for e updated by a 304 response received
// for a request sent at requestTime.
func Freshen(e *message.Entry, res *message.Response, requestTime, responseTime time.Time) *message.Entry {
	out := e.Clone()
	out.Response.Header = UpdateHeader(e.Response.Header, res.Header)
	out.RequestTime = requestTime
	out.ResponseTime = responseTime
	return out
}
