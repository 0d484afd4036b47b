package core

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/always-cache/cachexec/pkg/message"
	"github.com/always-cache/cachexec/pkg/metrics"
)

// ResultKind classifies the outcome of sending a request to the origin.
type ResultKind int

const (
	// ResultOK carries a response.
	ResultOK ResultKind = iota
	// ResultTimeout means no response arrived in time.
	ResultTimeout
	// ResultError means the request failed without a response.
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultTimeout:
		return "timeout"
	case ResultError:
		return "error"
	}
	return "unknown"
}

// Result is the outcome of a round trip to the origin.
type Result struct {
	Kind     ResultKind
	Response *message.Response
	Err      error
}

func OK(res *message.Response) Result {
	return Result{Kind: ResultOK, Response: res}
}

func Timeout(err error) Result {
	return Result{Kind: ResultTimeout, Err: err}
}

func Failure(err error) Result {
	return Result{Kind: ResultError, Err: err}
}

// Transport sends requests to the origin.
// Implementations never retry: a failed request is reported as is.
type Transport interface {
	RoundTrip(ctx context.Context, req *message.Request) Result
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *message.Request) Result

func (f TransportFunc) RoundTrip(ctx context.Context, req *message.Request) Result {
	return f(ctx, req)
}

// HTTPTransport sends requests with net/http.
type HTTPTransport struct {
	client http.Client
	// Timeout bounds each round trip, including reading the body.
	Timeout time.Duration
	// Host, if set, replaces the Host header and the TLS server name.
	Host string
	// MaxBodySize bounds buffered response bodies. Zero is unbounded.
	MaxBodySize int64
}

func NewHTTPTransport(timeout time.Duration, host string) *HTTPTransport {
	t := &HTTPTransport{
		Timeout: timeout,
		Host:    host,
		client: http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	// use provided hostname for origin if configured
	if host != "" {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{ServerName: host}
		t.client.Transport = transport
	}
	return t
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *message.Request) Result {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return Failure(err)
	}
	if t.Host != "" {
		httpReq.Host = t.Host
	}
	log.Trace().Str("method", req.Method).Str("url", req.URL.String()).Msg("Sending request to origin")

	start := time.Now()
	httpRes, err := t.client.Do(httpReq)
	if err != nil {
		return classify(err)
	}
	res, err := message.FromHTTPResponse(httpRes, t.MaxBodySize)
	metrics.OriginDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return classify(err)
	}
	return OK(res)
}

func classify(err error) Result {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Timeout(err)
	}
	return Failure(err)
}
