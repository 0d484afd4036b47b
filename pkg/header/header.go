// Package header implements an ordered HTTP header field multimap.
//
// Unlike http.Header, Fields keeps the relative order of every field line,
// including lines with different names. Proxies must not reorder field lines
// with the same name, and keeping the complete order makes forwarded messages
// byte-for-byte predictable.
package header

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// Field is a single header field line.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered sequence of header field lines.
// The zero value is an empty header ready to use.
type Fields []Field

func equalName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Get returns the value of the first field line with the given name,
// or the empty string.
func (f Fields) Get(name string) string {
	for _, field := range f {
		if equalName(field.Name, name) {
			return field.Value
		}
	}
	return ""
}

// Lookup is like Get, but also reports whether the field is present.
func (f Fields) Lookup(name string) (string, bool) {
	for _, field := range f {
		if equalName(field.Name, name) {
			return field.Value, true
		}
	}
	return "", false
}

// Has reports whether at least one field line with the given name exists.
func (f Fields) Has(name string) bool {
	_, ok := f.Lookup(name)
	return ok
}

// Values returns the values of all field lines with the given name, in order.
func (f Fields) Values(name string) []string {
	var values []string
	for _, field := range f {
		if equalName(field.Name, name) {
			values = append(values, field.Value)
		}
	}
	return values
}

// List returns the members of a list-based field (`#element` ABNF),
// across all field lines with the given name.
// Commas inside quoted strings do not split members; empty members are dropped.
func (f Fields) List(name string) []string {
	var members []string
	for _, value := range f.Values(name) {
		members = append(members, SplitList(value)...)
	}
	return members
}

// Add appends a field line.
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Set replaces all field lines with the given name by a single line,
// placed where the first existing line was (or appended).
func (f *Fields) Set(name, value string) {
	f.Replace(name, []string{value})
}

// Replace replaces all field lines with the given name by the given values,
// placed where the first existing line was (or appended).
func (f *Fields) Replace(name string, values []string) {
	out := make(Fields, 0, len(*f)+len(values))
	inserted := false
	for _, field := range *f {
		if !equalName(field.Name, name) {
			out = append(out, field)
			continue
		}
		if !inserted {
			for _, v := range values {
				out = append(out, Field{Name: field.Name, Value: v})
			}
			inserted = true
		}
	}
	if !inserted {
		for _, v := range values {
			out = append(out, Field{Name: name, Value: v})
		}
	}
	*f = out
}

// Del removes all field lines with the given name.
func (f *Fields) Del(name string) {
	out := make(Fields, 0, len(*f))
	for _, field := range *f {
		if !equalName(field.Name, name) {
			out = append(out, field)
		}
	}
	*f = out
}

// Names returns the distinct field names in order of first appearance,
// with the spelling of their first appearance.
func (f Fields) Names() []string {
	var names []string
	seen := make(map[string]bool)
	for _, field := range f {
		lower := strings.ToLower(field.Name)
		if !seen[lower] {
			seen[lower] = true
			names = append(names, field.Name)
		}
	}
	return names
}

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

// HTTP converts the fields into an http.Header.
// Order between lines of the same name is kept; order across names is lost.
func (f Fields) HTTP() http.Header {
	h := make(http.Header, len(f))
	for _, field := range f {
		key := textproto.CanonicalMIMEHeaderKey(field.Name)
		h[key] = append(h[key], field.Value)
	}
	return h
}

// FromHTTP converts an http.Header into Fields.
// Since http.Header does not remember the order across names,
// names are emitted in sorted order for determinism.
func FromHTTP(h http.Header) Fields {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	var f Fields
	for _, name := range names {
		for _, value := range h[name] {
			f = append(f, Field{Name: name, Value: value})
		}
	}
	return f
}

// SplitList splits a single list-based field value into its members.
func SplitList(value string) []string {
	var members []string
	var current strings.Builder
	quoted, escaped := false, false
	flush := func() {
		if m := strings.TrimSpace(current.String()); m != "" {
			members = append(members, m)
		}
		current.Reset()
	}
	for _, r := range value {
		switch {
		case escaped:
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return members
}
