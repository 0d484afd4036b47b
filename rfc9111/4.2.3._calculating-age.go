package rfc9111

import (
	"time"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

// §  4.2.3.  Calculating Age
// §
// §     The following data is used for the age calculation:
// §
// §     age_value
// §        The term "age_value" denotes the value of the Age header field
// §        (Section 5.1), in a form appropriate for arithmetic operation; or
// §        0, if not available.
func age_value(e *message.Entry) time.Duration {
	return ageHeader(e.Response.Header)
}

// §     date_value
// §        The term "date_value" denotes the value of the Date header field,
// §        in a form appropriate for arithmetic operations.  See Section 6.6.1
// §        of [HTTP] for the definition of the Date header field and for
// §        requirements regarding responses without it.
func date_value(e *message.Entry) time.Time {
	if date, ok := e.Response.Header.Lookup("Date"); ok {
		if t, err := rfc9110.ParseDate(date); err == nil {
			return t
		}
	}
	return e.ResponseTime
}

// §     request_time
// §        The value of the clock at the time of the request that resulted in
// §        the stored response.
func request_time(e *message.Entry) time.Time {
	return e.RequestTime
}

// §     response_time
// §        The value of the clock at the time the response was received.
func response_time(e *message.Entry) time.Time {
	return e.ResponseTime
}

// §     A response's age can be calculated in two entirely independent ways:
// §
// §     1.  the "apparent_age": response_time minus date_value, if the
// §         implementation's clock is reasonably well synchronized to the
// §         origin server's clock.  If the result is negative, the result is
// §         replaced by zero.
func apparent_age(e *message.Entry) time.Duration {
	return max(0, response_time(e).Sub(date_value(e)))
}

// §     2.  the "corrected_age_value", if all of the caches along the
// §         response path implement HTTP/1.1 or greater.  A cache MUST
// §         interpret this value relative to the time the request was
// §         initiated, not the time that the response was received.
// §
// §       apparent_age = max(0, response_time - date_value);
// §
// §       response_delay = response_time - request_time;
// §       corrected_age_value = age_value + response_delay;
func response_delay(e *message.Entry) time.Duration {
	return max(0, response_time(e).Sub(request_time(e)))
}

func corrected_age_value(e *message.Entry) time.Duration {
	return age_value(e) + response_delay(e)
}

// §     The corrected_age_value MAY be used as the corrected_initial_age.  In
// §     circumstances where very old cache implementations that might not
// §     correctly insert Age are present, the corrected_initial_age can be
// §     calculated more conservatively as
// §
// §       corrected_initial_age = max(apparent_age, corrected_age_value);
func corrected_initial_age(e *message.Entry) time.Duration {
	return max(apparent_age(e), corrected_age_value(e))
}

// §     The resident_time is the amount of time that the response has been
// §     stored in the cache.
// §
// §       resident_time = now - response_time;
func resident_time(e *message.Entry, now time.Time) time.Duration {
	return max(0, now.Sub(response_time(e)))
}

// §     The current_age of a stored response can then be calculated by
// §     adding the time (in seconds) since the stored response was last
// §     validated by the origin server to the corrected_initial_age.
// §
// §       current_age = corrected_initial_age + resident_time;
func current_age(e *message.Entry, now time.Time) time.Duration {
	return corrected_initial_age(e) + resident_time(e, now)
}

// CurrentAge returns the age of a stored response at the given time,
// saturated at MaxDeltaSeconds.
func CurrentAge(e *message.Entry, now time.Time) time.Duration {
	return min(current_age(e, now), MaxDeltaSeconds*time.Second)
}

// AgeValue formats the current age for the Age header field.
func AgeValue(e *message.Entry, now time.Time) string {
	return toDeltaSeconds(current_age(e, now))
}
