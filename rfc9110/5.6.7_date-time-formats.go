package rfc9110

import (
	"net/http"
	"strings"
	"time"
)

// §  5.6.7.  Date/Time Formats
// §
// §     A recipient that parses a timestamp value in an HTTP field MUST
// §     accept all three HTTP-date formats.  When a sender generates a field
// §     that contains one or more timestamps defined as HTTP-date, the sender
// §     MUST generate those timestamps in the IMF-fixdate format.

var dateLayouts = []string{
	http.TimeFormat,
	time.RFC850,
	time.ANSIC,
}

// ParseDate parses an HTTP-date in any of the three accepted formats.
// Names of days, months and the GMT zone are matched case-insensitively.
func ParseDate(value string) (time.Time, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// FormatDate formats t as an IMF-fixdate.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
