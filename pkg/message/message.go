// Package message holds the HTTP message primitives the cache operates on.
//
// Messages are fully buffered: bodies are byte slices. Header fields keep
// their complete order (see package header).
package message

import (
	"fmt"
	"net/url"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
)

// Version is an HTTP protocol version.
type Version struct {
	Major int
	Minor int
}

var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
)

func (v Version) String() string {
	return fmt.Sprintf("HTTP/%d.%d", v.Major, v.Minor)
}

// Number returns the version without the protocol name, e.g. "1.1".
func (v Version) Number() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v is a lower version than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Request is a buffered HTTP request with an absolute target URI.
type Request struct {
	Method  string
	URL     *url.URL
	Version Version
	Header  header.Fields
	Body    []byte
}

// NewRequest returns an HTTP/1.1 request for the given absolute URI.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request uri: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("request uri %q is not absolute", rawURL)
	}
	return &Request{Method: method, URL: u, Version: HTTP11}, nil
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	if r.URL != nil {
		u := *r.URL
		c.URL = &u
	}
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Host returns the host (with port, if any) of the target URI.
func (r *Request) Host() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Host
}

// Response is a buffered HTTP response.
type Response struct {
	StatusCode int
	Version    Version
	Header     header.Fields
	Body       []byte
}

// NewResponse returns an empty HTTP/1.1 response with the given status code.
func NewResponse(code int) *Response {
	return &Response{StatusCode: code, Version: HTTP11}
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Entry is a stored response: an immutable snapshot together with the
// timing information needed for age calculation and the request header
// fields that selected it.
//
// Entries are never modified after they were handed to a store; updates
// produce a new Entry that replaces the old one.
type Entry struct {
	// Key identifies the resource (method and target URI).
	Key string
	// Variant identifies the representation among those stored for Key.
	// It is empty when the response carried no Vary header field.
	Variant string
	// RequestHeader holds the selecting header fields (the fields nominated
	// by Vary) of the request that produced the response.
	RequestHeader header.Fields
	Response      *Response
	// RequestTime is the value of the clock when the request was sent.
	RequestTime time.Time
	// ResponseTime is the value of the clock when the response was received.
	ResponseTime time.Time
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.RequestHeader = e.RequestHeader.Clone()
	if e.Response != nil {
		c.Response = e.Response.Clone()
	}
	return &c
}
