// Package rfc9111 implements the caching rules of RFC 9111 (HTTP Caching)
// on buffered messages: which responses may be stored, how fresh a stored
// response is, and how stored responses are validated, updated and
// invalidated.
//
// Functions in this package never touch a store; they take stored entries
// and return new ones.
package rfc9111

import "time"

// Options is the cache-wide configuration consulted by the caching rules.
type Options struct {
	// Shared selects shared cache semantics (s-maxage, proxy-revalidate,
	// private and the rules for authenticated requests).
	Shared bool
	// MaxObjectSize is the largest body stored, in bytes. Zero means no limit.
	MaxObjectSize int64
	// SupportsRanges enables storing and combining 206 responses.
	SupportsRanges bool
	// HeuristicFraction is the fraction of the time since Last-Modified
	// used as heuristic freshness lifetime. Zero disables heuristics.
	HeuristicFraction float64
	// HeuristicMax caps the heuristic freshness lifetime. Zero means no cap.
	HeuristicMax time.Duration
	// ServeStaleOnError permits serving a stale response when the origin
	// cannot be reached and nothing forbids it.
	ServeStaleOnError bool
}
