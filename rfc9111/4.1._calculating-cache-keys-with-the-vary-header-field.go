package rfc9111

import (
	"strings"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
)

// §  4.1.  Calculating Cache Keys with the Vary Header Field
// §
// §     When a cache receives a request that can be satisfied by a stored
// §     response and that stored response contains a Vary header field
// §     (Section 12.5.5 of [HTTP]), the cache MUST NOT use that stored
// §     response without revalidation unless all the presented request
// §     header fields nominated by that Vary field value match those fields
// §     in the original request (i.e., the request that caused the cached
// §     response to be stored).

// VaryNames returns the field names nominated by the Vary header field,
// lower-cased and without duplicates.
func VaryNames(fields header.Fields) []string {
	var names []string
	seen := make(map[string]bool)
	for _, member := range fields.List("Vary") {
		name := strings.ToLower(member)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// VaryAll reports whether the Vary header field contains "*".
func VaryAll(fields header.Fields) bool {
	for _, name := range VaryNames(fields) {
		if name == "*" {
			return true
		}
	}
	return false
}

// SelectingHeader returns the request header fields nominated by Vary,
// which are stored alongside the response.
func SelectingHeader(req header.Fields, varyNames []string) header.Fields {
	var out header.Fields
	for _, name := range varyNames {
		for _, value := range req.Values(name) {
			out.Add(name, value)
		}
	}
	return out
}

// §     The header fields from two requests are defined to match if and only
// §     if those in the first request can be transformed to those in the
// §     second request by applying any of the following:
// §
// §     *  adding or removing whitespace, where allowed in the header field's
// §        syntax
// §
// §     *  combining multiple header field lines with the same field name
// §        (see Section 5.2 of [HTTP])
// §
// §     *  normalizing both header field values in a way that is known to
// §        have identical semantics, according to the header field's
// §        specification (e.g., reordering field values when order is not
// §        significant; case-normalization, where values are defined to be
// §        case-insensitive)
// §
// §     If (after any normalization that might take place) a header field is
// §     absent from a request, it can only match another request if it is
// §     also absent there.
//
// VaryMatches reports whether the selecting header fields of a stored
// entry match those of a new request.
func VaryMatches(e *message.Entry, req header.Fields) bool {
	for _, name := range VaryNames(e.Response.Header) {
		if name == "*" {
			return false
		}
		stored, storedOK := normalizedValue(e.RequestHeader, name)
		presented, presentedOK := normalizedValue(req, name)
		if storedOK != presentedOK || stored != presented {
			return false
		}
	}
	return true
}

// NormalizedValue returns the normalized combined value of a field,
// as compared for Vary matching.
func NormalizedValue(fields header.Fields, name string) (string, bool) {
	return normalizedValue(fields, name)
}

func normalizedValue(fields header.Fields, name string) (string, bool) {
	if !fields.Has(name) {
		return "", false
	}
	members := fields.List(name)
	for i, m := range members {
		members[i] = strings.ToLower(strings.Join(strings.Fields(m), " "))
	}
	return strings.Join(members, ","), true
}
