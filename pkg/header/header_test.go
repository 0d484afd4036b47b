package header

import (
	"net/http"
	"reflect"
	"testing"
)

func TestSetKeepsPosition(t *testing.T) {
	var f Fields
	f.Add("Date", "a")
	f.Add("Cache-Control", "max-age=1")
	f.Add("X-Other", "x")
	f.Add("cache-control", "public")

	f.Set("Cache-Control", "no-cache")

	want := Fields{
		{"Date", "a"},
		{"Cache-Control", "no-cache"},
		{"X-Other", "x"},
	}
	if !reflect.DeepEqual(f, want) {
		t.Fatalf("fields are %v", f)
	}
}

func TestReplaceAllOccurrences(t *testing.T) {
	f := Fields{
		{"Warning", "1"},
		{"Content-Type", "text/plain"},
		{"Warning", "2"},
	}
	f.Replace("warning", []string{"3", "4"})

	if got := f.Values("Warning"); !reflect.DeepEqual(got, []string{"3", "4"}) {
		t.Fatalf("values are %v", got)
	}
	if f[0].Value != "3" || f[2].Name != "Content-Type" {
		t.Fatalf("order not kept: %v", f)
	}
}

func TestReplaceAppendsWhenMissing(t *testing.T) {
	f := Fields{{"A", "1"}}
	f.Replace("B", []string{"2"})
	if len(f) != 2 || f[1] != (Field{"B", "2"}) {
		t.Fatalf("fields are %v", f)
	}
}

func TestDel(t *testing.T) {
	f := Fields{{"A", "1"}, {"b", "2"}, {"B", "3"}, {"C", "4"}}
	f.Del("B")
	if !reflect.DeepEqual(f, Fields{{"A", "1"}, {"C", "4"}}) {
		t.Fatalf("fields are %v", f)
	}
}

func TestList(t *testing.T) {
	tests := []struct {
		lines []string
		want  []string
	}{
		{[]string{"gzip, deflate"}, []string{"gzip", "deflate"}},
		{[]string{"gzip", "deflate"}, []string{"gzip", "deflate"}},
		{[]string{`no-cache="a, b", max-age=3`}, []string{`no-cache="a, b"`, "max-age=3"}},
		{[]string{" , ,x,"}, []string{"x"}},
		{[]string{`"a\"b,c", d`}, []string{`"a\"b,c"`, "d"}},
	}
	for _, tt := range tests {
		var f Fields
		for _, l := range tt.lines {
			f.Add("Content-Encoding", l)
		}
		if got := f.List("content-encoding"); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("List(%q) = %q, want %q", tt.lines, got, tt.want)
		}
	}
}

func TestNames(t *testing.T) {
	f := Fields{{"Vary", "a"}, {"ETag", "x"}, {"vary", "b"}}
	if got := f.Names(); !reflect.DeepEqual(got, []string{"Vary", "ETag"}) {
		t.Fatalf("names are %v", got)
	}
}

func TestHTTPConversion(t *testing.T) {
	h := http.Header{}
	h.Add("Via", "1.0 a")
	h.Add("Via", "1.1 b")
	h.Add("Accept", "*/*")

	f := FromHTTP(h)
	if got := f.Values("via"); !reflect.DeepEqual(got, []string{"1.0 a", "1.1 b"}) {
		t.Fatalf("via values are %v", got)
	}
	back := f.HTTP()
	if !reflect.DeepEqual(back, h) {
		t.Fatalf("round trip gave %v", back)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := Fields{{"A", "1"}}
	c := f.Clone()
	c.Set("A", "2")
	if f.Get("A") != "1" {
		t.Fatalf("original modified")
	}
}
