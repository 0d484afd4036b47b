package rfc9110

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRange means the Range field value could not be parsed,
	// in which case the field is ignored.
	ErrInvalidRange = errors.New("invalid range")
	// ErrUnsatisfiableRange means none of the requested ranges overlap
	// the representation.
	ErrUnsatisfiableRange = errors.New("range not satisfiable")
)

// ByteRange is an inclusive span of bytes [First, Last].
type ByteRange struct {
	First int64
	Last  int64
}

// Length returns the number of bytes in the range.
func (r ByteRange) Length() int64 {
	return r.Last - r.First + 1
}

// Contains reports whether o lies completely within r.
func (r ByteRange) Contains(o ByteRange) bool {
	return o.First >= r.First && o.Last <= r.Last
}

// §  14.1.2.  Byte Ranges
// §
// §       ranges-specifier = range-unit "=" range-set
// §       range-set        = 1#range-spec
// §       range-spec       = int-range / suffix-range / other-range
// §       int-range     = first-pos "-" [ last-pos ]
// §       suffix-range  = "-" suffix-length

// ParseRange parses a Range field value for a representation of the given size.
// It returns ErrInvalidRange for values that are not valid byte ranges,
// and ErrUnsatisfiableRange when no range overlaps the representation.
// Unsatisfiable members of a set are dropped.
func ParseRange(value string, size int64) ([]ByteRange, error) {
	unit, set, found := strings.Cut(strings.TrimSpace(value), "=")
	if !found || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return nil, ErrInvalidRange
	}
	var ranges []ByteRange
	specs := strings.Split(set, ",")
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		firstStr, lastStr, found := strings.Cut(spec, "-")
		if !found {
			return nil, ErrInvalidRange
		}
		firstStr, lastStr = strings.TrimSpace(firstStr), strings.TrimSpace(lastStr)
		if firstStr == "" {
			// §     A client can request the last N bytes (N > 0) of the selected
			// §     representation using a suffix-range.
			n, err := strconv.ParseInt(lastStr, 10, 64)
			if err != nil || n < 0 {
				return nil, ErrInvalidRange
			}
			if n == 0 || size == 0 {
				continue
			}
			if n > size {
				n = size
			}
			ranges = append(ranges, ByteRange{size - n, size - 1})
			continue
		}
		first, err := strconv.ParseInt(firstStr, 10, 64)
		if err != nil || first < 0 {
			return nil, ErrInvalidRange
		}
		last := size - 1
		if lastStr != "" {
			last, err = strconv.ParseInt(lastStr, 10, 64)
			if err != nil || last < first {
				return nil, ErrInvalidRange
			}
			if last > size-1 {
				last = size - 1
			}
		}
		if first >= size {
			continue
		}
		ranges = append(ranges, ByteRange{first, last})
	}
	if len(ranges) == 0 {
		return nil, ErrUnsatisfiableRange
	}
	return ranges, nil
}

// ContentRange is a parsed Content-Range field value.
// Unsatisfied is true for the "bytes */complete-length" form.
type ContentRange struct {
	Range ByteRange
	// Size is the complete length, or -1 when unknown ("*").
	Size        int64
	Unsatisfied bool
}

// §  14.4.  Content-Range
// §
// §       Content-Range       = range-unit SP
// §                             ( range-resp / unsatisfied-range )
// §
// §       range-resp          = incl-range "/" ( complete-length / "*" )
// §       incl-range          = first-pos "-" last-pos
// §       unsatisfied-range   = "*/" complete-length

// ParseContentRange parses a Content-Range field value.
func ParseContentRange(value string) (ContentRange, error) {
	unit, rest, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(unit, "bytes") {
		return ContentRange{}, ErrInvalidRange
	}
	spanStr, sizeStr, found := strings.Cut(strings.TrimSpace(rest), "/")
	if !found {
		return ContentRange{}, ErrInvalidRange
	}
	cr := ContentRange{Size: -1}
	if sizeStr != "*" {
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil || size < 0 {
			return ContentRange{}, ErrInvalidRange
		}
		cr.Size = size
	}
	if spanStr == "*" {
		if cr.Size < 0 {
			return ContentRange{}, ErrInvalidRange
		}
		cr.Unsatisfied = true
		return cr, nil
	}
	firstStr, lastStr, found := strings.Cut(spanStr, "-")
	if !found {
		return ContentRange{}, ErrInvalidRange
	}
	first, err1 := strconv.ParseInt(firstStr, 10, 64)
	last, err2 := strconv.ParseInt(lastStr, 10, 64)
	if err1 != nil || err2 != nil || first < 0 || last < first {
		return ContentRange{}, ErrInvalidRange
	}
	// §     A Content-Range field value is invalid if it contains a range-resp
	// §     that has a last-pos value less than its first-pos value, or a
	// §     complete-length value less than or equal to its last-pos value.
	if cr.Size >= 0 && cr.Size <= last {
		return ContentRange{}, ErrInvalidRange
	}
	cr.Range = ByteRange{first, last}
	return cr, nil
}

func (c ContentRange) String() string {
	size := "*"
	if c.Size >= 0 {
		size = strconv.FormatInt(c.Size, 10)
	}
	if c.Unsatisfied {
		return "bytes */" + size
	}
	return fmt.Sprintf("bytes %d-%d/%s", c.Range.First, c.Range.Last, size)
}
