package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/rfc9110"
)

// §  5.3.  Expires
// §
// §     The "Expires" response header field gives the date/time after which
// §     the response is considered stale.
// §
// §     A cache recipient MUST interpret invalid date formats, especially the
// §     value "0", as representing a time in the past (i.e., "already
// §     expired").
// §
// §     If a response includes a Cache-Control header field with the max-age
// §     directive (Section 5.2.2.1), a recipient MUST ignore the Expires
// §     header field.  Likewise, if a response includes the s-maxage
// §     directive (Section 5.2.2.10), a shared cache recipient MUST ignore
// §     the Expires header field.
//
// expiresHeader returns the Expires value and whether the field is present.
// An invalid value returns the zero time, which is before any Date.
func expiresHeader(fields header.Fields) (time.Time, bool) {
	value, ok := fields.Lookup("Expires")
	if !ok {
		return time.Time{}, false
	}
	t, err := rfc9110.ParseDate(value)
	if err != nil {
		return time.Time{}, true
	}
	return t, true
}
