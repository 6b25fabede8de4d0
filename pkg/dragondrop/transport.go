package dragondrop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Request is one upload request.
type Request struct {
	Method string
	URL    string
	Body   map[string]any
}

// Response is an upload response.
type Response struct {
	StatusCode int
	Header     http.Header

	// Body is the decoded JSON body, the raw text when the body is not
	// JSON, or nil when it is empty.
	Body any
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport sends upload requests.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport sends requests as JSON over HTTP.
type HTTPTransport struct {
	// Client is the HTTP client. Default: http.DefaultClient.
	Client *http.Client

	// Header is added to every request.
	Header http.Header
}

// Send encodes req.Body as JSON and decodes the response body.
// A non-2xx status is not an error; check Response.OK.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("dragondrop: encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for k, vs := range t.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")

	return do(t.client(), httpReq)
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// do sends req, carrying the trace of its context, and decodes the reply.
func do(client *http.Client, req *http.Request) (*Response, error) {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       decodeBody(raw),
	}, nil
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
