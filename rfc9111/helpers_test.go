package rfc9111

import (
	"testing"
	"time"

	"github.com/always-cache/cachexec/pkg/header"
	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/rfc9110"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func date(t time.Time) string {
	return rfc9110.FormatDate(t)
}

func fields(kv ...string) header.Fields {
	var f header.Fields
	for i := 0; i+1 < len(kv); i += 2 {
		f.Add(kv[i], kv[i+1])
	}
	return f
}

// stored returns an entry received at now with the given response fields.
func stored(code int, kv ...string) *message.Entry {
	res := message.NewResponse(code)
	res.Header = fields(kv...)
	return &message.Entry{
		Key:          "GET\thttp://example.com/",
		Response:     res,
		RequestTime:  now,
		ResponseTime: now,
	}
}

func request(t *testing.T, method string, kv ...string) *message.Request {
	t.Helper()
	req, err := message.NewRequest(method, "http://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	req.Header = fields(kv...)
	return req
}
