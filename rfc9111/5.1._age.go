package rfc9111

import (
	"strings"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
)

// §  5.1.  Age
// §
// §     The "Age" response header field conveys the sender's estimate of the
// §     time since the response was generated or successfully validated at
// §     the origin server.
// §
// §       Age = delta-seconds
// §
// §     Although it is defined as a singleton header field, a cache
// §     encountering a message with a list-based Age field value SHOULD use
// §     the first member of the field value, discarding subsequent ones.
// §
// §     If the field value (after discarding additional members, as per
// §     above) is invalid (e.g., it contains something other than a non-
// §     negative integer), a cache SHOULD ignore the field.
func ageHeader(fields header.Fields) time.Duration {
	members := fields.List("Age")
	if len(members) == 0 {
		return 0
	}
	value, _, _ := strings.Cut(members[0], ";")
	if age, ok := deltaSeconds(value); ok {
		return age
	}
	return 0
}
