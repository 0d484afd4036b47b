package rfc9111

import (
	"strings"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/rfc9110"
)

// §  3.1.  Storing Header and Trailer Fields
// §
// §     Caches MUST include all received response header fields -- including
// §     unrecognized ones -- when storing a response; this assures that new
// §     HTTP header fields can be successfully deployed.  However, the
// §     following exceptions are made:
// §
// §     *  The Connection header field and fields whose names are listed in
// §        it are required by Section 7.6.1 of [HTTP] to be removed before
// §        forwarding the message.  This MAY be implemented by doing so
// §        before storage.
// §
// §     *  Likewise, some fields' semantics require them to be removed before
// §        forwarding the message, and this MAY be implemented by doing so
// §        before storage; see Section 7.6.1 of [HTTP] for some examples.
// §
// §     *  The no-cache (Section 5.2.2.4) and private (Section 5.2.2.7) cache
// §        directives can have arguments that prevent storage of header
// §        fields by all caches and shared caches, respectively.
//
// StorableHeader returns the header fields of a response that are stored.
func StorableHeader(fields header.Fields, opts Options) header.Fields {
	out := rfc9110.StripHopByHop(fields)
	if opts.Shared {
		for _, name := range CacheControlOf(fields).FieldNames("private") {
			out.Del(name)
		}
	}
	return out
}

// §  3.2.  Updating Stored Header Fields
// §
// §     Caches are required to update a stored response's header fields from
// §     another (typically newer) response in several situations; for
// §     example, see Sections 3.4, 4.3.4, and 4.3.5.
// §
// §     When doing so, the cache MUST add each header field in the provided
// §     response to the stored response, replacing field values that are
// §     already present, with the following exceptions:
// §
// §     *  Header fields excepted from storage in Section 3.1,
// §
// §     *  Header fields that the cache's stored response depends upon, as
// §        described below,
// §
// §     *  Header fields that are automatically processed and removed by the
// §        recipient, as described below, and
// §
// §     *  The Content-Length header field.
//
// UpdateHeader returns stored updated with the fields of update.
// Every occurrence of a field present in update replaces all occurrences
// in stored.
func UpdateHeader(stored, update header.Fields) header.Fields {
	out := dropStaleWarnings(stored)
	for _, name := range update.Names() {
		if rfc9110.IsHopByHop(update, name) || excludedFromUpdate(name) {
			continue
		}
		out.Replace(name, update.Values(name))
	}
	return out
}

func excludedFromUpdate(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "content-range":
		// these describe the stored body
		return true
	}
	return false
}
