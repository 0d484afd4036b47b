package rfc9111

import (
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// §  3.3.  Storing Incomplete Responses
// §
// §     If the request method is GET, the response status code is 200 OK,
// §     and the entire response header section has been received, a cache
// §     MAY store a response that is not complete (Section 6.1 of [HTTP])
// §     provided that the stored response is recorded as being incomplete.
// §     Likewise, a 206 (Partial Content) response MAY be stored as if it
// §     were an incomplete 200 (OK) response.  However, a cache MUST NOT
// §     store incomplete or partial-content responses if it does not support
// §     the Range and Content-Range header fields or if it does not
// §     understand the range units used in those fields.
//
// PartialSpan returns the byte range held by a single-part 206 response.
// ok is false unless the response is a 206 with a satisfied bytes
// Content-Range whose complete length is known and whose length matches
// the body.
func PartialSpan(res *message.Response) (cr rfc9110.ContentRange, ok bool) {
	if res.StatusCode != 206 || IsMultipart(res) {
		return cr, false
	}
	cr, err := rfc9110.ParseContentRange(res.Header.Get("Content-Range"))
	if err != nil || cr.Unsatisfied || cr.Size < 0 {
		return cr, false
	}
	if cr.Range.Length() != int64(len(res.Body)) {
		return cr, false
	}
	return cr, true
}

// CompleteLength returns the complete representation length a stored
// response describes: the Content-Range size of a partial response, or
// the body length of a complete one.
func CompleteLength(res *message.Response) int64 {
	if cr, ok := PartialSpan(res); ok {
		return cr.Size
	}
	return int64(len(res.Body))
}
