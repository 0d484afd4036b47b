package rfc9111

import (
	"net/url"
	"strings"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// §  4.4.  Invalidating Stored Responses
// §
// §     Because unsafe request methods (Section 9.2.1 of [HTTP]) such as PUT,
// §     POST, or DELETE have the potential for changing state on the origin
// §     server, intervening caches are required to invalidate stored
// §     responses to keep their contents up to date.
// §
// §     A cache MUST invalidate the target URI (Section 7.1 of [HTTP]) when
// §     it receives a non-error status code in response to an unsafe request
// §     method (including methods whose safety is unknown).
// §
// §     A cache MAY invalidate other URIs when it receives a non-error status
// §     code in response to an unsafe request method (including methods whose
// §     safety is unknown).  In particular, the URI(s) in the Location and
// §     Content-Location response header fields (if present) are candidates
// §     for invalidation; other URIs might be discovered through mechanisms
// §     not specified in this document.  However, a cache MUST NOT trigger an
// §     invalidation under these conditions if the origin (Section 4.3.1 of
// §     [HTTP]) of the URI to be invalidated differs from that of the target
// §     URI (Section 7.1 of [HTTP]).  This helps prevent denial-of-service
// §     attacks.
//
// InvalidationTargets returns the URIs whose stored responses are
// invalidated by the response to an unsafe request.
func InvalidationTargets(req *message.Request, res *message.Response) []*url.URL {
	if !rfc9110.LookupMethod(req.Method).Invalidates {
		return nil
	}
	// §     A "non-error response" is one with a 2xx (Successful) or 3xx
	// §     (Redirection) status code.
	if res.StatusCode < 200 || rfc9110.IsError(res.StatusCode) {
		return nil
	}
	targets := []*url.URL{req.URL}
	seen := map[string]bool{req.URL.String(): true}
	for _, name := range []string{"Location", "Content-Location"} {
		value, ok := res.Header.Lookup(name)
		if !ok {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		target := req.URL.ResolveReference(ref)
		if !sameOrigin(req.URL, target) || seen[target.String()] {
			continue
		}
		seen[target.String()] = true
		targets = append(targets, target)
	}
	return targets
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(hostPort(a), hostPort(b))
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return u.Hostname() + ":" + port
}
