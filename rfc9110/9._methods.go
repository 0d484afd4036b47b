package rfc9110

// MethodKind classifies request methods by how a cache treats them.
type MethodKind int

const (
	// MethodUnknown is an extension method the cache does not recognize.
	// Requests are written through and never inspected.
	MethodUnknown MethodKind = iota
	// MethodRead is a safe method whose responses can be stored and reused.
	MethodRead
	// MethodUnsafe is a method that can change the state of the origin
	// and therefore invalidates stored responses.
	MethodUnsafe
	// MethodWriteThrough is a recognized method whose responses are
	// never stored and which does not invalidate anything.
	MethodWriteThrough
)

// MethodPolicy is the caching policy of a request method.
type MethodPolicy struct {
	Kind MethodKind
	// §  9.2.1.  Safe Methods
	Safe bool
	// Cacheable means responses to this method may be stored and reused.
	// Responses to POST are not reused by this cache.
	Cacheable bool
	// Invalidates means a non-error response invalidates stored responses
	// (RFC 9111 Section 4.4).
	Invalidates bool
}

// §  9.1.  Overview
// §
// §     The method token is case-sensitive because it might be used as a
// §     gateway to object-based systems with case-sensitive method names.
var methodPolicies = map[string]MethodPolicy{
	"GET":     {Kind: MethodRead, Safe: true, Cacheable: true},
	"HEAD":    {Kind: MethodRead, Safe: true, Cacheable: true},
	"POST":    {Kind: MethodUnsafe, Invalidates: true},
	"PUT":     {Kind: MethodUnsafe, Invalidates: true},
	"DELETE":  {Kind: MethodUnsafe, Invalidates: true},
	"PATCH":   {Kind: MethodUnsafe, Invalidates: true},
	"OPTIONS": {Kind: MethodWriteThrough, Safe: true},
	"TRACE":   {Kind: MethodWriteThrough, Safe: true},
	"CONNECT": {Kind: MethodWriteThrough},
}

// LookupMethod returns the policy for the given method.
// Unrecognized methods get the zero policy (MethodUnknown).
func LookupMethod(method string) MethodPolicy {
	return methodPolicies[method]
}
