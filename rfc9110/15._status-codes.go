package rfc9110

// StatusPolicy is the caching policy of a response status code.
type StatusPolicy struct {
	// Understood means the status code is defined and its semantics known.
	// Responses with status codes that are not understood are forwarded,
	// but never stored.
	Understood bool
	// Storable is false for understood status codes whose responses are
	// never stored regardless of explicit freshness.
	Storable bool
	// HeuristicallyCacheable status codes can be reused without explicit
	// freshness information (RFC 9110 Section 15.1).
	HeuristicallyCacheable bool
}

var (
	neverStored    = StatusPolicy{Understood: true}
	explicitOnly   = StatusPolicy{Understood: true, Storable: true}
	heuristicByDef = StatusPolicy{Understood: true, Storable: true, HeuristicallyCacheable: true}
)

// §  15.1.  Overview of Status Codes
// §
// §     Responses with status codes that are defined as heuristically
// §     cacheable (e.g., 200, 203, 204, 206, 300, 301, 308, 404, 405, 410,
// §     414, and 501 in this specification) can be reused by a cache with
// §     heuristic expiration unless otherwise indicated by the method
// §     definition or explicit cache controls [CACHING]; all other status
// §     codes are not heuristically cacheable.
var statusPolicies = map[int]StatusPolicy{
	100: neverStored,
	101: neverStored,

	200: heuristicByDef,
	201: explicitOnly,
	202: explicitOnly,
	203: heuristicByDef,
	204: heuristicByDef,
	205: explicitOnly,
	206: heuristicByDef,

	300: heuristicByDef,
	301: heuristicByDef,
	302: explicitOnly,
	// 303 responses point to another resource; they are never stored
	303: neverStored,
	304: neverStored,
	305: neverStored,
	307: explicitOnly,
	308: heuristicByDef,

	400: explicitOnly,
	401: explicitOnly,
	402: explicitOnly,
	403: explicitOnly,
	404: heuristicByDef,
	405: heuristicByDef,
	406: explicitOnly,
	407: explicitOnly,
	408: explicitOnly,
	409: explicitOnly,
	410: heuristicByDef,
	411: explicitOnly,
	412: explicitOnly,
	413: explicitOnly,
	414: heuristicByDef,
	415: explicitOnly,
	416: explicitOnly,
	417: explicitOnly,
	421: explicitOnly,
	422: explicitOnly,
	426: explicitOnly,

	500: explicitOnly,
	501: heuristicByDef,
	502: explicitOnly,
	503: explicitOnly,
	504: explicitOnly,
	505: explicitOnly,
}

// LookupStatus returns the policy for the given status code.
// Status codes that are not defined get the zero policy.
func LookupStatus(code int) StatusPolicy {
	return statusPolicies[code]
}

// IsError reports whether the status code is a client or server error.
func IsError(code int) bool {
	return code >= 400
}
