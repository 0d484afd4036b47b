package rfc9111

import (
	"math"
	"strings"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
)

// §  5.2.  Cache-Control
// §
// §     The "Cache-Control" header field is used to list directives for
// §     caches along the request/response chain.  Cache directives are
// §     unidirectional, in that the presence of a directive in a request
// §     does not imply that the same directive is present or copied in the
// §     response.
// §
// §     Cache directives are identified by a token, to be compared case-
// §     insensitively, and have an optional argument that can use both token
// §     and quoted-string syntax.
// §
// §       Cache-Control   = #cache-directive
// §
// §       cache-directive = token [ "=" ( token / quoted-string ) ]
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl takes Cache-Control field values
// and returns an instance of `CacheControl`.
func ParseCacheControl(values []string) CacheControl {
	m := make(map[string]string)
	for _, value := range values {
		for _, member := range header.SplitList(value) {
			name, arg, _ := strings.Cut(member, "=")
			// §  [...] to be compared case-insensitively [...]
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			// a directive that occurs more than once keeps its first argument
			if _, dup := m[name]; dup {
				continue
			}
			m[name] = unquote(strings.TrimSpace(arg))
		}
	}
	return CacheControl{m}
}

// CacheControlOf parses the Cache-Control fields of a message header.
func CacheControlOf(fields header.Fields) CacheControl {
	return ParseCacheControl(fields.Values("Cache-Control"))
}

// §  [...] argument that can use both token and quoted-string syntax. [...]
func unquote(arg string) string {
	if len(arg) < 2 || arg[0] != '"' || arg[len(arg)-1] != '"' {
		return arg
	}
	var b strings.Builder
	escaped := false
	for _, r := range arg[1 : len(arg)-1] {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[directive]
	return val, ok
}

func (c CacheControl) Has(directive string) bool {
	_, ok := c.directives[directive]
	return ok
}

// Empty reports whether no directive is present.
func (c CacheControl) Empty() bool {
	return len(c.directives) == 0
}

// §  5.2.1.1.  max-age
// §  5.2.2.1.  max-age
// §
// §     Argument syntax:
// §
// §        delta-seconds (see Section 1.2.2)
//
// A present directive with an invalid argument yields zero,
// which makes the response stale.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.deltaSeconds("max-age")
}

// §  5.2.2.10.  s-maxage
// §
// §     The "s-maxage" response directive indicates that, for a shared
// §     cache, the maximum age specified by this directive overrides the
// §     maximum age specified by either the max-age directive or the Expires
// §     header field.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.deltaSeconds("s-maxage")
}

// §  5.2.1.3.  min-fresh
// §
// §     The "min-fresh" request directive indicates that the client prefers
// §     a response whose freshness lifetime is no less than its current age
// §     plus the specified time in seconds.
func (c CacheControl) MinFresh() (time.Duration, bool) {
	return c.deltaSeconds("min-fresh")
}

// §  5.2.1.2.  max-stale
// §
// §     The "max-stale" request directive indicates that the client will
// §     accept a response that has exceeded its freshness lifetime.  If a
// §     value is present, then the client is willing to accept a response
// §     that has exceeded its freshness lifetime by no more than the
// §     specified number of seconds.  If no value is assigned to max-stale,
// §     then the client will accept a stale response of any age.
func (c CacheControl) MaxStale() (time.Duration, bool) {
	arg, ok := c.directives["max-stale"]
	if !ok {
		return 0, false
	}
	if arg == "" {
		return time.Duration(math.MaxInt64), true
	}
	d, valid := deltaSeconds(arg)
	if !valid {
		return 0, true
	}
	return d, true
}

// StaleIfError returns the stale-if-error extension directive (RFC 5861).
func (c CacheControl) StaleIfError() (time.Duration, bool) {
	arg, ok := c.directives["stale-if-error"]
	if !ok {
		return 0, false
	}
	d, valid := deltaSeconds(arg)
	return d, valid
}

func (c CacheControl) deltaSeconds(directive string) (time.Duration, bool) {
	arg, ok := c.directives[directive]
	if !ok {
		return 0, false
	}
	d, valid := deltaSeconds(arg)
	if !valid {
		return 0, true
	}
	return d, true
}

// §  5.2.2.4.  no-cache
// §
// §     The qualified form of the no-cache response directive, with an
// §     argument that lists one or more field names, indicates that a cache
// §     MAY use the response to satisfy a subsequent request, subject to any
// §     other restrictions on caching, if the listed header fields are
// §     excluded from the subsequent response or the subsequent response has
// §     been successfully revalidated with the origin server.
//
// FieldNames returns the field names listed as the argument of a
// qualified directive (no-cache or private).
func (c CacheControl) FieldNames(directive string) []string {
	arg := c.directives[directive]
	var names []string
	for _, name := range header.SplitList(arg) {
		names = append(names, strings.TrimSpace(name))
	}
	return names
}

// Unqualified reports whether the directive is present without an argument.
func (c CacheControl) Unqualified(directive string) bool {
	arg, ok := c.directives[directive]
	return ok && len(header.SplitList(arg)) == 0
}
