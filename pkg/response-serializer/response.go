// Package serializer converts stored entries to and from bytes.
//
// The format is HTTP/1.1 wire text: a pseudo request head carrying the
// selecting request header fields and the entry metadata, a delimiter,
// and the stored response as it would be sent on the wire. Field order is
// kept exactly.
package serializer

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
)

const (
	keyHeaderName          = "Acache-Key"
	variantHeaderName      = "Acache-Variant"
	responseTimeHeaderName = "Acache-Response-Time"
	requestTimeHeaderName  = "Acache-Request-Time"
)

var (
	delim = []byte("\r\n\r\n----\r\n\r\n")
	crlf  = "\r\n"
)

// EntryToBytes serializes an entry.
func EntryToBytes(e *message.Entry) []byte {
	buf := &bytes.Buffer{}

	writeField(buf, keyHeaderName, strconv.Quote(e.Key))
	writeField(buf, variantHeaderName, strconv.Quote(e.Variant))
	writeField(buf, requestTimeHeaderName, strconv.FormatInt(e.RequestTime.UnixNano(), 10))
	writeField(buf, responseTimeHeaderName, strconv.FormatInt(e.ResponseTime.UnixNano(), 10))
	for _, f := range e.RequestHeader {
		writeField(buf, f.Name, f.Value)
	}
	buf.Write(delim)

	res := e.Response
	fmt.Fprintf(buf, "%s %03d %s%s", res.Version, res.StatusCode, http.StatusText(res.StatusCode), crlf)
	for _, f := range res.Header {
		writeField(buf, f.Name, f.Value)
	}
	buf.WriteString(crlf)
	buf.Write(res.Body)
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString(crlf)
}

// BytesToEntry parses bytes written by EntryToBytes.
func BytesToEntry(b []byte) (*message.Entry, error) {
	reqBytes, resBytes, found := bytes.Cut(b, delim)
	if !found {
		return nil, fmt.Errorf("stored entry has no delimiter")
	}
	meta, err := parseFields(string(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("stored request: %w", err)
	}
	e := &message.Entry{}
	if e.Key, err = strconv.Unquote(meta.Get(keyHeaderName)); err != nil {
		return nil, fmt.Errorf("stored key: %w", err)
	}
	if e.Variant, err = strconv.Unquote(meta.Get(variantHeaderName)); err != nil {
		return nil, fmt.Errorf("stored variant: %w", err)
	}
	if e.RequestTime, err = parseTime(meta.Get(requestTimeHeaderName)); err != nil {
		return nil, err
	}
	if e.ResponseTime, err = parseTime(meta.Get(responseTimeHeaderName)); err != nil {
		return nil, err
	}
	for _, f := range meta {
		if !strings.HasPrefix(f.Name, "Acache-") {
			e.RequestHeader = append(e.RequestHeader, f)
		}
	}

	head, body, found := bytes.Cut(resBytes, []byte(crlf+crlf))
	if !found {
		// a response without fields ends its head with a single CRLF pair
		return nil, fmt.Errorf("stored response head is not terminated")
	}
	statusLine, fieldBlock, _ := strings.Cut(string(head), crlf)
	res, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}
	if res.Header, err = parseFields(fieldBlock); err != nil {
		return nil, fmt.Errorf("stored response: %w", err)
	}
	if len(body) > 0 {
		res.Body = append([]byte(nil), body...)
	}
	e.Response = res
	return e, nil
}

func parseTime(s string) (time.Time, error) {
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored time %q: %w", s, err)
	}
	return time.Unix(0, nanos), nil
}

func parseStatusLine(line string) (*message.Response, error) {
	proto, rest, _ := strings.Cut(line, " ")
	code, _, _ := strings.Cut(rest, " ")
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok {
		return nil, fmt.Errorf("stored response has malformed version %q", proto)
	}
	status, err := strconv.Atoi(code)
	if err != nil {
		return nil, fmt.Errorf("stored response has malformed status %q", code)
	}
	return &message.Response{
		StatusCode: status,
		Version:    message.Version{Major: major, Minor: minor},
	}, nil
}

func parseFields(block string) (header.Fields, error) {
	var fields header.Fields
	for _, line := range strings.Split(block, crlf) {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("malformed field line %q", line)
		}
		fields.Add(name, strings.TrimLeft(value, " "))
	}
	return fields, nil
}
