package rfc9111

import (
	"strconv"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// Combination is the outcome of combining an incoming response with a
// stored one for the same variant.
type Combination int

const (
	// Replaced means the incoming response replaces the stored one.
	Replaced Combination = iota
	// Kept means the stored response is kept and the incoming one discarded.
	Kept
	// Combined means both were merged into a new response.
	Combined
)

func (c Combination) String() string {
	switch c {
	case Replaced:
		return "replaced"
	case Kept:
		return "kept"
	case Combined:
		return "combined"
	}
	return "unknown"
}

// §  3.4.  Combining Partial Content
// §
// §     A response might transfer only a partial representation if the
// §     connection closed prematurely or if the request used one or more
// §     Range specifiers (Section 14.2 of [HTTP]).  After several such
// §     transfers, a cache might have received several ranges of the same
// §     representation.  A cache MAY combine these ranges into a single
// §     stored response, and reuse that response to satisfy later requests,
// §     if they all share the same strong validator and the cache complies
// §     with the client requirements in Section 15.3.7.3 of [HTTP].
// §
// §     When combining the new response with one or more stored responses, a
// §     cache MUST use the header fields provided in the new response, aside
// §     from Content-Range, to replace those of the stored response.
//
// Combine merges an incoming response into the stored response for the
// same variant. Byte ranges are only combined when both responses carry
// strongly matching validators and describe the same complete length;
// otherwise the response with the more recent Date is kept.
func Combine(stored, incoming *message.Entry) (*message.Entry, Combination) {
	if stored == nil {
		return incoming, Replaced
	}
	inSpan, inPartial := PartialSpan(incoming.Response)
	stSpan, stPartial := PartialSpan(stored.Response)
	if !inPartial {
		// a complete response supersedes whatever is stored, unless older
		if stPartial || ReplacesStored(stored, incoming) {
			return incoming, Replaced
		}
		return stored, Kept
	}

	compatible := strongValidatorsMatch(stored.Response, incoming.Response) &&
		CompleteLength(stored.Response) == inSpan.Size
	if compatible && !stPartial {
		// the stored complete response already holds the range
		return stored, Kept
	}
	if compatible && stPartial {
		if merged, ok := mergeSpans(stored, stSpan, incoming, inSpan); ok {
			return merged, Combined
		}
	}
	if ReplacesStored(stored, incoming) {
		return incoming, Replaced
	}
	return stored, Kept
}

// strongValidatorsMatch reports whether both responses carry strong
// entity tags that are equal.
func strongValidatorsMatch(a, b *message.Response) bool {
	at, aok := rfc9110.ParseETag(a.Header.Get("ETag"))
	bt, bok := rfc9110.ParseETag(b.Header.Get("ETag"))
	return aok && bok && rfc9110.StrongMatch(at, bt)
}

// mergeSpans combines two overlapping or adjacent spans of the same
// representation. The incoming bytes win where the spans overlap.
func mergeSpans(stored *message.Entry, stSpan rfc9110.ContentRange, incoming *message.Entry, inSpan rfc9110.ContentRange) (*message.Entry, bool) {
	a, b := stSpan.Range, inSpan.Range
	if a.First > b.Last+1 || b.First > a.Last+1 {
		return nil, false
	}
	span := rfc9110.ByteRange{First: min(a.First, b.First), Last: max(a.Last, b.Last)}
	body := make([]byte, span.Length())
	copy(body[a.First-span.First:], stored.Response.Body)
	copy(body[b.First-span.First:], incoming.Response.Body)

	out := incoming.Clone()
	out.Response.Header = UpdateHeader(stored.Response.Header, incoming.Response.Header)
	out.Response.Body = body
	out.Response.Header.Set("Content-Length", strconv.Itoa(len(body)))
	if span.First == 0 && span.Last == inSpan.Size-1 {
		out.Response.StatusCode = 200
		out.Response.Header.Del("Content-Range")
	} else {
		out.Response.StatusCode = 206
		out.Response.Header.Set("Content-Range", rfc9110.ContentRange{Range: span, Size: inSpan.Size}.String())
	}
	return out, true
}
