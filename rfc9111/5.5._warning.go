package rfc9111

import (
	"strings"

	"github.com/always-cache/cachexec/pkg/header"
)

// §  5.5.  Warning
// §
// §     The "Warning" header field was used to carry additional information
// §     about the status or transformation of a message that might not be
// §     reflected in the status code.  This specification obsoletes it, as it
// §     is not widely generated or surfaced to users.
//
// Warnings are still attached to stale responses for the benefit of
// HTTP/1.1 clients that surface them.
const (
	WarningStale              = `110 - "Response is Stale"`
	WarningRevalidationFailed = `111 - "Revalidation Failed"`
)

// AddWarning appends a Warning field line.
func AddWarning(fields *header.Fields, warning string) {
	fields.Add("Warning", warning)
}

// dropStaleWarnings removes warnings with a 1xx warn-code, which describe
// the freshness of a response and must not survive a successful update.
func dropStaleWarnings(fields header.Fields) header.Fields {
	values := fields.Values("Warning")
	if len(values) == 0 {
		return fields
	}
	var keep []string
	for _, value := range values {
		for _, member := range header.SplitList(value) {
			if !strings.HasPrefix(member, "1") {
				keep = append(keep, member)
			}
		}
	}
	out := fields.Clone()
	if len(keep) == 0 {
		out.Del("Warning")
	} else {
		out.Replace("Warning", keep)
	}
	return out
}
