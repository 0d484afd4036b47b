// Package rfc9110 implements the parts of HTTP Semantics (RFC 9110)
// that a cache needs in order to interpret and produce messages:
// method and status code policies, dates, entity tags, byte ranges,
// the Via header field and connection-specific fields.
//
// https://www.rfc-editor.org/rfc/rfc9110
package rfc9110
