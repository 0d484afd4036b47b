package message

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/always-cache/cachexec/pkg/header"
)

// FromHTTPRequest buffers an incoming server request.
// The target URI is resolved against base when the request URI is not absolute,
// which is the case for requests received by an origin-facing front.
func FromHTTPRequest(r *http.Request, base *url.URL) (*Request, error) {
	u := *r.URL
	if !u.IsAbs() {
		if base == nil {
			return nil, fmt.Errorf("request uri %q is not absolute and no base given", r.URL)
		}
		u.Scheme = base.Scheme
		u.Host = base.Host
	}
	req := &Request{
		Method:  r.Method,
		URL:     &u,
		Version: Version{r.ProtoMajor, r.ProtoMinor},
		Header:  header.FromHTTP(r.Header),
	}
	if req.Version.Major == 0 {
		req.Version = HTTP11
	}
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(body) > 0 {
			req.Body = body
		}
	}
	return req, nil
}

// HTTPRequest builds an outgoing client request.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	// zero-length bodies must be nil on outgoing requests
	// see https://github.com/golang/go/issues/16036
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.HTTP()
	if host := r.Header.Get("Host"); host != "" {
		req.Host = host
		req.Header.Del("Host")
	}
	return req, nil
}

// FromHTTPResponse buffers a client response and closes its body.
// At most limit body bytes are read when limit is positive; a longer body
// is an error.
func FromHTTPResponse(res *http.Response, limit int64) (*Response, error) {
	defer res.Body.Close()
	out := &Response{
		StatusCode: res.StatusCode,
		Version:    Version{res.ProtoMajor, res.ProtoMinor},
		Header:     header.FromHTTP(res.Header),
	}
	if out.Version.Major == 0 {
		out.Version = HTTP11
	}
	reader := io.Reader(res.Body)
	if limit > 0 {
		reader = io.LimitReader(res.Body, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	if len(body) > 0 {
		out.Body = body
	}
	return out, nil
}

// Write sends the response through an http.ResponseWriter.
// Extra header fields are added after the response's own.
func (r *Response) Write(w http.ResponseWriter, extra header.Fields) error {
	dst := w.Header()
	for _, f := range r.Header {
		dst.Add(f.Name, f.Value)
	}
	for _, f := range extra {
		dst.Add(f.Name, f.Value)
	}
	w.WriteHeader(r.StatusCode)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
