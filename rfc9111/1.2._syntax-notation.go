package rfc9111

import (
	"strconv"
	"strings"
	"time"
)

// §  1.2.2.  Delta Seconds
// §
// §     The delta-seconds rule specifies a non-negative integer, representing
// §     time in seconds.
// §
// §       delta-seconds  = 1*DIGIT
// §
// §     A recipient parsing a delta-seconds value and converting it to binary
// §     form ought to use an arithmetic type of at least 31 bits of non-
// §     negative integer range.  If a cache receives a delta-seconds value
// §     greater than the greatest integer it can represent, or if any of its
// §     subsequent calculations overflows, the cache MUST consider the value
// §     to be either 2147483648 (2^31) or the greatest positive integer it
// §     can conveniently represent.

// MaxDeltaSeconds is the value delta-seconds saturate at.
const MaxDeltaSeconds = 1<<31 - 1

// deltaSeconds parses a delta-seconds value.
// ok is false when s is not a sequence of digits.
func deltaSeconds(s string) (d time.Duration, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n > MaxDeltaSeconds {
		// only overflow is possible here
		n = MaxDeltaSeconds
	}
	return time.Duration(n) * time.Second, true
}

// toDeltaSeconds formats a duration as whole seconds, rounded down and
// saturated at MaxDeltaSeconds.
func toDeltaSeconds(d time.Duration) string {
	return strconv.FormatInt(seconds(d), 10)
}

func seconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	s := int64(d / time.Second)
	if s > MaxDeltaSeconds {
		s = MaxDeltaSeconds
	}
	return s
}

// Seconds returns d in whole delta-seconds.
func Seconds(d time.Duration) int64 {
	return seconds(d)
}
