package rfc9110

import (
	"strconv"
	"strings"

	"github.com/always-cache/cachexec/pkg/header"
)

// §  7.6.1.  Connection
// §
// §     Intermediaries MUST parse a received Connection header field before a
// §     message is forwarded and, for each connection-option in this field,
// §     remove any header or trailer field(s) from the message with the same
// §     name as the connection-option, and then remove the Connection header
// §     field itself (or replace it with the intermediary's own control
// §     options for the forwarded message).
// §
// §     Furthermore, intermediaries SHOULD remove or replace fields that are
// §     known to require removal before forwarding, whether or not they
// §     appear as a connection-option, after applying those fields'
// §     semantics.  This includes but is not limited to:
// §
// §     *  Proxy-Connection (Appendix C.2.2 of [HTTP/1.1])
// §     *  Keep-Alive (Section 19.7.1 of [RFC2068])
// §     *  TE (Section 10.1.4)
// §     *  Transfer-Encoding (Section 6.1 of [HTTP/1.1])
// §     *  Upgrade (Section 7.8)
var hopByHopFields = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"TE",
	"Transfer-Encoding",
	"Upgrade",
	"Trailer",
}

// ConnectionFields returns the names of the fields that must not be forwarded:
// the fixed hop-by-hop fields and every connection-option in Connection.
func ConnectionFields(fields header.Fields) []string {
	names := append([]string(nil), hopByHopFields...)
	return append(names, fields.List("Connection")...)
}

// IsHopByHop reports whether name is a connection-specific field of fields.
func IsHopByHop(fields header.Fields, name string) bool {
	for _, n := range ConnectionFields(fields) {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// StripHopByHop returns a copy of fields without connection-specific fields.
func StripHopByHop(fields header.Fields) header.Fields {
	out := fields.Clone()
	for _, name := range ConnectionFields(fields) {
		out.Del(name)
	}
	return out
}

// §  7.6.2.  Max-Forwards
// §
// §     Each intermediary that receives a TRACE or OPTIONS request containing
// §     a Max-Forwards header field MUST check and update its value prior to
// §     forwarding the request.  If the received value is zero (0), the
// §     intermediary MUST NOT forward the request; instead, the intermediary
// §     MUST respond as the final recipient.  If the received Max-Forwards
// §     value is greater than zero, the intermediary MUST generate an updated
// §     Max-Forwards field in the forwarded message with a field value that
// §     is the lesser of a) the received value decremented by one (1) or b)
// §     the recipient's maximum supported value for Max-Forwards.

// MaxForwards returns the Max-Forwards value and whether a valid one is present.
func MaxForwards(fields header.Fields) (int, bool) {
	value, ok := fields.Lookup("Max-Forwards")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// §  7.6.3.  Via
// §
// §       Via = #( received-protocol RWS received-by [ RWS comment ] )
// §
// §       received-protocol = [ protocol-name "/" ] protocol-version
// §                         ; see Section 7.8
// §       received-by       = pseudonym [ ":" port ]
// §       pseudonym         = token
// §
// §     The received-protocol indicates the protocol version of the message
// §     received by the server or client along each segment of the
// §     request/response chain.  The received-protocol version is appended
// §     to the Via field value when the message is forwarded so that
// §     information about the protocol capabilities of upstream applications
// §     remains visible to all recipients.
// §
// §     The protocol-name is excluded if and only if it would be "HTTP".

// Via returns a Via member for a message received with the given protocol version.
func Via(protocolName string, major, minor int, receivedBy string) string {
	protocol := strconv.Itoa(major) + "." + strconv.Itoa(minor)
	if protocolName != "" && !strings.EqualFold(protocolName, "HTTP") {
		protocol = protocolName + "/" + protocol
	}
	return protocol + " " + receivedBy
}
