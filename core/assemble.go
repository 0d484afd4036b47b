package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// supported is the highest protocol version the cache speaks.
var supported = message.HTTP11

// tunnelled reports whether req uses a major version the cache does not
// understand, so that it must be passed through untouched.
func tunnelled(req *message.Request) bool {
	return req.Version.Major > supported.Major
}

// forwardRequest derives the request sent to the origin from the
// client's request: it is sent as HTTP/1.1 without hop-by-hop fields and
// with the cache appended to Via.
func (c *CachingExec) forwardRequest(req *message.Request) *message.Request {
	out := req.Clone()
	out.Header = rfc9110.StripHopByHop(out.Header)
	out.Header.Add("Via", rfc9110.Via("", req.Version.Major, req.Version.Minor, c.via))
	out.Version = supported

	// §     An intermediary that receives a Max-Forwards header field [...]
	// §     MUST generate an updated Max-Forwards field in the forwarded message
	if out.Method == "OPTIONS" || out.Method == "TRACE" {
		if n, ok := rfc9110.MaxForwards(out.Header); ok && n > 0 {
			out.Header.Set("Max-Forwards", strconv.Itoa(n-1))
		}
	}
	return out
}

// answersLocally reports whether the cache is the final recipient of an
// OPTIONS request because Max-Forwards is exhausted.
func answersLocally(req *message.Request) bool {
	if req.Method != "OPTIONS" {
		return false
	}
	n, ok := rfc9110.MaxForwards(req.Header)
	return ok && n == 0
}

func (c *CachingExec) optionsResponse(now time.Time) *message.Response {
	res := message.NewResponse(200)
	res.Header.Add("Allow", strings.Join([]string{"GET", "HEAD", "OPTIONS", "POST", "PUT", "DELETE", "PATCH"}, ", "))
	res.Header.Add("Content-Length", "0")
	res.Header.Add("Date", rfc9110.FormatDate(now))
	return res
}

// assemble rewrites a response before it is sent to the client.
// received is the protocol version the response was received with.
func (c *CachingExec) assemble(req *message.Request, res *message.Response, received message.Version, now time.Time) *message.Response {
	out := res.Clone()
	out.Header = rfc9110.StripHopByHop(out.Header)
	out.Header.Add("Via", rfc9110.Via("", received.Major, received.Minor, c.via))

	// §     A server SHOULD send a response version equal to the highest version
	// §     to which the server is conformant that has a major version less than
	// §     or equal to the one received in the request.
	out.Version = supported
	if req.Version.Major < supported.Major {
		out.Version = req.Version
	}

	if !out.Header.Has("Date") {
		out.Header.Set("Date", rfc9110.FormatDate(now))
	}
	if req.Method == "HEAD" {
		out.Body = nil
	}
	if req.Method == "OPTIONS" && out.StatusCode == 200 && len(out.Body) == 0 && !out.Header.Has("Content-Length") {
		out.Header.Set("Content-Length", "0")
	}
	return out
}

// gatewayTimeout is sent when the origin cannot be reached and no stored
// response may be used instead.
func gatewayTimeout(now time.Time) *message.Response {
	res := message.NewResponse(504)
	res.Header.Add("Date", rfc9110.FormatDate(now))
	res.Header.Add("Content-Length", "0")
	return res
}
