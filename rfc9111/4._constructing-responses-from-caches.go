package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/message"
)

// §  4.  Constructing Responses from Caches
// §
// §     When a stored response is used to satisfy a request without
// §     validation, the cache MUST generate an Age header field (Section 5.1),
// §     replacing any present in the response with a value equal to the
// §     stored response's current_age; see Section 4.2.3.
//
// ConstructResponse returns the response to send for a stored entry.
// When the entry is reused without validation, the fields named by a
// qualified no-cache directive are removed.
func ConstructResponse(e *message.Entry, now time.Time, validated bool) *message.Response {
	res := e.Response.Clone()
	if !validated {
		for _, name := range CacheControlOf(res.Header).FieldNames("no-cache") {
			res.Header.Del(name)
		}
	}
	res.Header.Set("Age", AgeValue(e, now))
	return res
}
