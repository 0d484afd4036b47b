package rfc9111

import (
	"strings"

	"github.com/always-cache/cachexec/pkg/header"
)

// §  5.4.  Pragma
// §
// §     When the Cache-Control header field is also present and understood
// §     in a request, Pragma is ignored.
// §
// §     Define "Pragma: no-cache" as equivalent to "Cache-Control: no-cache"
// §     in requests from HTTP/1.0 clients.
//
// RequestNoCache reports whether the request asks for an end-to-end reload.
func RequestNoCache(fields header.Fields) bool {
	if fields.Has("Cache-Control") {
		return CacheControlOf(fields).Has("no-cache")
	}
	for _, member := range fields.List("Pragma") {
		if strings.EqualFold(member, "no-cache") {
			return true
		}
	}
	return false
}
