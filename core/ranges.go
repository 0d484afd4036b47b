package core

import (
	"errors"
	"strconv"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
	"github.com/always-cache/cachexec/rfc9111"
)

// rangeRequested reports whether req asks for byte ranges the cache has
// to take care of.
func (c *CachingExec) rangeRequested(req *message.Request) bool {
	return c.opts.SupportsRanges && req.Method == "GET" && req.Header.Has("Range")
}

// §  13.1.5.  If-Range
// §
// §     A server MUST ignore an If-Range header field received in a request
// §     that does not contain a Range header field.  An origin server MUST
// §     ignore an If-Range header field received in a request for a target
// §     resource that does not support Range requests.
// §
// §     [...] If the validator given in the If-Range header field matches
// §     the current validator for the selected representation of the target
// §     resource, then the server SHOULD process the Range header field as
// §     requested.  If the validator does not match, then the server MUST
// §     ignore the Range header field.  Note that this field value comparison
// §     is exact, and hence a strong comparison.
//
// ifRangeMatches evaluates If-Range against the stored response.
func ifRangeMatches(req *message.Request, res *message.Response) bool {
	value, ok := req.Header.Lookup("If-Range")
	if !ok {
		return true
	}
	if tag, ok := rfc9110.ParseETag(value); ok {
		stored, ok := rfc9110.ParseETag(res.Header.Get("ETag"))
		return ok && rfc9110.StrongMatch(tag, stored)
	}
	since, err := rfc9110.ParseDate(value)
	if err != nil {
		return false
	}
	lm, err := rfc9110.ParseDate(res.Header.Get("Last-Modified"))
	return err == nil && lm.Equal(since)
}

// serveRanges answers a range request from a complete stored response.
// Invalid ranges and a failing If-Range give the complete response.
func serveRanges(req *message.Request, res *message.Response) (*message.Response, error) {
	if res.StatusCode != 200 || !ifRangeMatches(req, res) {
		return res, nil
	}
	size := int64(len(res.Body))
	ranges, err := rfc9110.ParseRange(req.Header.Get("Range"), size)
	switch {
	case errors.Is(err, rfc9110.ErrUnsatisfiableRange):
		return notSatisfiable(res, size), nil
	case err != nil:
		return res, nil
	}

	out := res.Clone()
	out.StatusCode = 206
	if len(ranges) == 1 {
		r := ranges[0]
		out.Body = res.Body[r.First : r.Last+1]
		out.Header.Set("Content-Range", rfc9110.ContentRange{Range: r, Size: size}.String())
		out.Header.Set("Content-Length", strconv.Itoa(len(out.Body)))
		return out, nil
	}

	parts := make([]rfc9110.BytePart, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, rfc9110.BytePart{Range: r, Data: res.Body[r.First : r.Last+1]})
	}
	body, contentType, err := rfc9110.MultipartByteranges(parts, res.Header.Get("Content-Type"), size)
	if err != nil {
		return nil, err
	}
	out.Body = body
	out.Header.Del("Content-Range")
	out.Header.Set("Content-Type", contentType)
	out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return out, nil
}

// notSatisfiable builds a 416, which never uses multipart/byteranges.
func notSatisfiable(res *message.Response, size int64) *message.Response {
	out := message.NewResponse(416)
	out.Version = res.Version
	for _, name := range []string{"Date", "ETag", "Content-Location", "Cache-Control", "Expires", "Vary", "Age"} {
		if values := res.Header.Values(name); len(values) > 0 {
			out.Header.Replace(name, values)
		}
	}
	out.Header.Set("Content-Range", rfc9110.ContentRange{Size: size, Unsatisfied: true}.String())
	out.Header.Set("Content-Length", "0")
	return out
}

// servePartial answers a single range request from a stored partial
// response that holds the whole range. ok is false otherwise.
func servePartial(req *message.Request, e *message.Entry, res *message.Response) (out *message.Response, ok bool) {
	span, ok := rfc9111.PartialSpan(e.Response)
	if !ok || !ifRangeMatches(req, e.Response) {
		return nil, false
	}
	ranges, err := rfc9110.ParseRange(req.Header.Get("Range"), span.Size)
	if err != nil || len(ranges) != 1 || !span.Range.Contains(ranges[0]) {
		return nil, false
	}
	r := ranges[0]
	out = res.Clone()
	out.Body = res.Body[r.First-span.Range.First : r.Last-span.Range.First+1]
	out.Header.Set("Content-Range", rfc9110.ContentRange{Range: r, Size: span.Size}.String())
	out.Header.Set("Content-Length", strconv.Itoa(len(out.Body)))
	return out, true
}
