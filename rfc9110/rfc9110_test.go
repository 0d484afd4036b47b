package rfc9110

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"reflect"
	"testing"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
)

func TestETagComparison(t *testing.T) {
	tests := []struct {
		a, b         string
		strong, weak bool
	}{
		{`W/"1"`, `W/"1"`, false, true},
		{`W/"1"`, `W/"2"`, false, false},
		{`W/"1"`, `"1"`, false, true},
		{`"1"`, `"1"`, true, true},
	}
	for _, tt := range tests {
		a, okA := ParseETag(tt.a)
		b, okB := ParseETag(tt.b)
		if !okA || !okB {
			t.Fatalf("could not parse %s or %s", tt.a, tt.b)
		}
		if got := StrongMatch(a, b); got != tt.strong {
			t.Errorf("StrongMatch(%s, %s) = %v", tt.a, tt.b, got)
		}
		if got := WeakMatch(a, b); got != tt.weak {
			t.Errorf("WeakMatch(%s, %s) = %v", tt.a, tt.b, got)
		}
	}
}

func TestParseETagInvalid(t *testing.T) {
	for _, v := range []string{"", "etag", `"unterminated`, `W/`, `"a"b"`} {
		if _, ok := ParseETag(v); ok {
			t.Errorf("%q parsed as valid entity tag", v)
		}
	}
}

func TestParseETagList(t *testing.T) {
	tags, wildcard := ParseETagList([]string{`"a"`, "*", `W/"b"`, "junk"})
	if !wildcard || len(tags) != 2 || tags[1].String() != `W/"b"` {
		t.Fatalf("tags %v wildcard %v", tags, wildcard)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		value string
		size  int64
		want  []ByteRange
		err   error
	}{
		{"bytes=0-50", 128, []ByteRange{{0, 50}}, nil},
		{"bytes=0-499", 128, []ByteRange{{0, 127}}, nil},
		{"bytes=100-", 128, []ByteRange{{100, 127}}, nil},
		{"bytes=-10", 128, []ByteRange{{118, 127}}, nil},
		{"bytes=-500", 128, []ByteRange{{0, 127}}, nil},
		{"bytes=0-1, 5-6", 128, []ByteRange{{0, 1}, {5, 6}}, nil},
		{"bytes=1000-1200", 128, nil, ErrUnsatisfiableRange},
		{"bytes=5-1", 128, nil, ErrInvalidRange},
		{"items=0-1", 128, nil, ErrInvalidRange},
		{"bytes=a-b", 128, nil, ErrInvalidRange},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.value, tt.size)
		if !errors.Is(err, tt.err) {
			t.Errorf("ParseRange(%q) error %v, want %v", tt.value, err, tt.err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseRange(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseContentRange(t *testing.T) {
	cr, err := ParseContentRange("bytes 0-49/128")
	if err != nil || cr.Range != (ByteRange{0, 49}) || cr.Size != 128 {
		t.Fatalf("got %+v, %v", cr, err)
	}
	if cr.String() != "bytes 0-49/128" {
		t.Fatalf("string is %s", cr.String())
	}
	cr, err = ParseContentRange("bytes */128")
	if err != nil || !cr.Unsatisfied || cr.String() != "bytes */128" {
		t.Fatalf("got %+v, %v", cr, err)
	}
	if _, err := ParseContentRange("bytes 0-200/128"); err == nil {
		t.Fatal("last-pos beyond complete-length accepted")
	}
	if cr, err := ParseContentRange("bytes 5-9/*"); err != nil || cr.Size != -1 {
		t.Fatalf("unknown length: %+v, %v", cr, err)
	}
}

func TestMultipartByterangesHasBoundary(t *testing.T) {
	data := []byte("0123456789")
	body, ct, err := MultipartByteranges([]BytePart{
		{ByteRange{0, 1}, data[0:2]},
		{ByteRange{5, 6}, data[5:7]},
	}, "text/plain", 10)
	if err != nil {
		t.Fatal(err)
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "multipart/byteranges" || params["boundary"] == "" {
		t.Fatalf("content type is %q", ct)
	}
	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	var ranges []string
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		ranges = append(ranges, p.Header.Get("Content-Range"))
	}
	if !reflect.DeepEqual(ranges, []string{"bytes 0-1/10", "bytes 5-6/10"}) {
		t.Fatalf("part ranges are %v", ranges)
	}
}

func TestStripHopByHop(t *testing.T) {
	f := header.Fields{
		{Name: "Connection", Value: "close, X-Private"},
		{Name: "X-Private", Value: "secret"},
		{Name: "Transfer-Encoding", Value: "chunked"},
		{Name: "TE", Value: "trailers"},
		{Name: "X-Unknown-Header", Value: "some-value"},
	}
	got := StripHopByHop(f)
	if !reflect.DeepEqual(got, header.Fields{{Name: "X-Unknown-Header", Value: "some-value"}}) {
		t.Fatalf("stripped fields are %v", got)
	}
	if len(f) != 5 {
		t.Fatal("input modified")
	}
}

func TestVia(t *testing.T) {
	if v := Via("HTTP", 1, 0, "cache"); v != "1.0 cache" {
		t.Fatalf("via is %q", v)
	}
	if v := Via("FSTR", 2, 0, "cache:8080"); v != "FSTR/2.0 cache:8080" {
		t.Fatalf("via is %q", v)
	}
}

func TestMaxForwards(t *testing.T) {
	if _, ok := MaxForwards(nil); ok {
		t.Fatal("missing field reported present")
	}
	if n, ok := MaxForwards(header.Fields{{Name: "Max-Forwards", Value: "0"}}); !ok || n != 0 {
		t.Fatalf("got %d %v", n, ok)
	}
}

func TestPolicies(t *testing.T) {
	if p := LookupMethod("get"); p.Kind != MethodUnknown {
		t.Fatal("method lookup must be case-sensitive")
	}
	if p := LookupMethod("DELETE"); !p.Invalidates {
		t.Fatal("DELETE must invalidate")
	}
	if p := LookupMethod("FOOBAR"); p.Invalidates || p.Cacheable {
		t.Fatal("unknown methods are written through")
	}
	for _, code := range []int{102, 207, 299, 309, 418, 499, 506, 999} {
		if LookupStatus(code).Understood {
			t.Errorf("status %d understood", code)
		}
	}
	if !LookupStatus(200).HeuristicallyCacheable || LookupStatus(302).HeuristicallyCacheable {
		t.Fatal("wrong heuristic cacheability")
	}
	if LookupStatus(303).Storable {
		t.Fatal("303 must not be stored")
	}
}

func TestDateRoundTrip(t *testing.T) {
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	parsed, err := ParseDate(FormatDate(now))
	if err != nil || !parsed.Equal(now) {
		t.Fatalf("parsed %v, %v", parsed, err)
	}
	if _, err := ParseDate("Sunday, 06-Nov-94 08:49:37 GMT"); err != nil {
		t.Fatalf("rfc850 date: %v", err)
	}
}

func TestParseDateObsoleteAndCase(t *testing.T) {
	for _, v := range []string{
		"Thu, 18 Aug 2050 02:01:18 gMT",
		"Thursday, 18-Aug-50 02:01:18 GMT",
		"Thu Aug 18 02:01:18 2050",
	} {
		if _, err := ParseDate(v); err != nil {
			t.Errorf("ParseDate(%q): %v", v, err)
		}
	}
	if _, err := ParseDate("0"); err == nil {
		t.Fatal("expected error for invalid date")
	}
}
