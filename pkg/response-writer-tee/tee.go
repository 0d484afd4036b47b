// Package tee records the response an http.Handler writes.
package tee

import (
	"bytes"
	"net/http"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
)

// ResponseSaver is an http.ResponseWriter that saves the response to a buffer.
// It optionally writes the response to an underlying http.ResponseWriter.
type ResponseSaver struct {
	rw           http.ResponseWriter
	b            bytes.Buffer
	header       http.Header
	status       int
	wroteHeaders bool
	CreatedAt    time.Time
}

// NewResponseSaver returns a new ResponseSaver.
// If w is not nil, the response will be written (tee'd) to it in addition to saving to buffer.
func NewResponseSaver(w http.ResponseWriter) *ResponseSaver {
	return &ResponseSaver{
		CreatedAt: time.Now(),
		rw:        w,
		header:    http.Header{},
	}
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.header
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	// informational responses are not recorded
	if t.wroteHeaders || statusCode < 200 {
		return
	}
	// remember that we wrote the headers
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	// write to underlying http.ResponseWriter if not nil
	if t.rw != nil {
		dst := t.rw.Header()
		for name, values := range t.header {
			dst[name] = append([]string(nil), values...)
		}
		t.rw.WriteHeader(statusCode)
	}
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	// write headers if not already written
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	// write to underlying http.ResponseWriter if not nil
	if t.rw != nil {
		if _, err := t.rw.Write(b); err != nil {
			return 0, err
		}
	}
	// write to buffer and return written bytes
	return t.b.Write(b)
}

// StatusCode returns the status code of the response.
func (t *ResponseSaver) StatusCode() int {
	if !t.wroteHeaders {
		return http.StatusOK
	}
	return t.status
}

// Response returns the recorded response.
func (t *ResponseSaver) Response() *message.Response {
	res := message.NewResponse(t.StatusCode())
	res.Header = header.FromHTTP(t.header)
	if t.b.Len() > 0 {
		res.Body = append([]byte(nil), t.b.Bytes()...)
	}
	return res
}
