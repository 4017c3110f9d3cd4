// Package server is the HTTP transport adapter: it turns net/http
// requests into the pipeline's raw request value, registers the built-in
// transport service (the receive operation that normalizes the wire
// request and the send operation that produces the wire response), and
// serves the result over a chi router.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/registry"
)

// TransportServiceName is the registration name of the built-in HTTP
// participant.
const TransportServiceName = "http-transport"

// RawRequest is the transport-native request handed to the pipeline.
type RawRequest struct {
	HTTP *http.Request
	// Body is the fully-read request body; the adapter drains it before
	// the pipeline runs so operations never race over the stream.
	Body []byte
}

// Response is the transport-native response produced by the built-in
// sender.
type Response struct {
	Status  int
	Headers http.Header
	Cookies []*http.Cookie
	Body    []byte
}

// RegisterTransport registers the built-in HTTP participant: a receive
// operation normalizing the raw request and the process-wide sender.
// It carries no matcher, so it sorts ahead of every matcher-bearing
// service and discovers the path first.
func RegisterTransport(b *registry.Builder) {
	b.Service(TransportServiceName).
		OnReceive("normalizeHTTP", receiveHTTP).
		OnSend("writeHTTP", sendHTTP)
}

// receiveHTTP maps the wire request onto the canonical shape. JSON
// bodies are decoded; anything else is kept as raw bytes.
func receiveHTTP(ctx context.Context, req *domain.NormalizedRequest) (*domain.RequestPatch, error) {
	raw, ok := req.Original.(*RawRequest)
	if !ok {
		return nil, fmt.Errorf("transport: unexpected raw request type %T", req.Original)
	}
	r := raw.HTTP

	params := domain.NewSearchParams()
	if err := parseQueryOrdered(r.URL.RawQuery, params); err != nil {
		return nil, domain.AbortBadRequest("malformed query string").WithCause(err)
	}

	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	var body any
	if len(raw.Body) > 0 {
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			var decoded any
			if err := json.Unmarshal(raw.Body, &decoded); err != nil {
				return nil, domain.AbortBadRequest("malformed JSON body").WithCause(err)
			}
			body = decoded
		} else {
			body = raw.Body
		}
	}

	return &domain.RequestPatch{
		Method:       r.Method,
		Path:         r.URL.Path,
		Headers:      r.Header.Clone(),
		Cookies:      cookies,
		SearchParams: params,
		Body:         body,
	}, nil
}

// parseQueryOrdered is url.ParseQuery with insertion order preserved.
func parseQueryOrdered(rawQuery string, params *domain.SearchParams) error {
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return err
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return err
		}
		params.Add(k, v)
	}
	return nil
}

// sendHTTP serializes the canonical response for the wire. Structured
// bodies are JSON-encoded; string and byte bodies pass through.
func sendHTTP(ctx context.Context, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (any, error) {
	out := &Response{
		Status:  resp.Status,
		Headers: resp.EnsureHeaders().Clone(),
	}
	if out.Status == 0 {
		out.Status = http.StatusOK
	}

	for _, sc := range resp.Cookies {
		out.Cookies = append(out.Cookies, &http.Cookie{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Domain:   sc.Domain,
			MaxAge:   sc.MaxAge,
			Secure:   sc.Secure,
			HttpOnly: sc.HTTPOnly,
		})
	}

	switch body := resp.Body.(type) {
	case nil:
	case []byte:
		out.Body = body
	case string:
		out.Body = []byte(body)
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode response body: %w", err)
		}
		out.Body = encoded
		if out.Headers.Get("Content-Type") == "" {
			out.Headers.Set("Content-Type", "application/json")
		}
	}

	return out, nil
}
