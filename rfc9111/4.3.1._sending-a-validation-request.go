package rfc9111

import (
	"strings"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// ConditionalFields are the request header fields that make a request
// conditional.
var ConditionalFields = []string{
	"If-Match",
	"If-None-Match",
	"If-Modified-Since",
	"If-Unmodified-Since",
	"If-Range",
}

// StripConditionals returns a copy of fields without precondition fields.
func StripConditionals(fields header.Fields) header.Fields {
	out := fields.Clone()
	for _, name := range ConditionalFields {
		out.Del(name)
	}
	return out
}

// HasConditionals reports whether the request header carries any
// precondition field.
func HasConditionals(fields header.Fields) bool {
	for _, name := range ConditionalFields {
		if fields.Has(name) {
			return true
		}
	}
	return false
}

// §  4.3.1.  Sending a Validation Request
// §
// §     When generating a conditional request for validation, a cache either
// §     starts with a request it is attempting to satisfy or -- if it is
// §     initiating the request independently -- synthesizes a request using a
// §     stored response by copying the method, target URI, and request header
// §     fields identified by the Vary header field (Section 4.1).
// §
// §     It then updates that request with one or more precondition header
// §     fields.  These contain validator metadata sourced from a stored
// §     response(s) that has the same URI.  Typically, this will include
// §     only the stored response(s) that has the same cache key, although a
// §     cache is allowed to validate a response that it cannot choose with
// §     the request header fields it is sending (see Section 4.1).
// §
// §     The precondition header fields are then compared by recipients to
// §     determine whether any stored response is equivalent to a current
// §     representation of the resource.
//
// ValidationRequest derives the request that validates candidates.
// All entity tags of the candidates are sent in If-None-Match; the most
// recent Last-Modified is sent in If-Modified-Since. When revalidation is
// mandatory, "max-age=0" asks intermediate caches to validate as well.
func ValidationRequest(req *message.Request, candidates []*message.Entry, mandatory bool) *message.Request {
	out := req.Clone()
	out.Header = StripConditionals(out.Header)

	// §     One such validator is the timestamp given in a Last-Modified header
	// §     field (Section 8.8.2 of [HTTP]).  This can be used in an If-
	// §     Modified-Since header field for response validation, or in an If-
	// §     Unmodified-Since or If-Range header field for representation
	// §     selection (i.e., the client is referring specifically to a
	// §     previously obtained representation with that timestamp).
	// §
	// §     Another validator is the entity tag given in an ETag field
	// §     (Section 8.8.3 of [HTTP]).  One or more entity tags, indicating one
	// §     or more stored responses, can be used in an If-None-Match header
	// §     field for response validation, or in an If-Match or If-Range header
	// §     field for representation selection (i.e., the client is referring
	// §     specifically to one or more previously obtained representations
	// §     with the listed entity tags).
	var tags []string
	seen := make(map[string]bool)
	var lastModified time.Time
	allComplete := true
	for _, e := range candidates {
		if tag, ok := rfc9110.ParseETag(e.Response.Header.Get("ETag")); ok && !seen[tag.String()] {
			seen[tag.String()] = true
			tags = append(tags, tag.String())
		}
		if lm, err := rfc9110.ParseDate(e.Response.Header.Get("Last-Modified")); err == nil && lm.After(lastModified) {
			lastModified = lm
		}
		if e.Response.StatusCode == 206 {
			allComplete = false
		}
	}
	if len(tags) > 0 {
		out.Header.Set("If-None-Match", strings.Join(tags, ", "))
	}
	if !lastModified.IsZero() {
		out.Header.Set("If-Modified-Since", rfc9110.FormatDate(lastModified))
	}
	// complete responses are validated as a whole; ranges are served from
	// the validated response
	if allComplete && len(candidates) > 0 {
		out.Header.Del("Range")
	}
	if mandatory {
		if maxAge, ok := CacheControlOf(out.Header).MaxAge(); !ok || maxAge != 0 {
			out.Header.Add("Cache-Control", "max-age=0")
		}
	}
	return out
}
