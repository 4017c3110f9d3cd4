// Package webhook implements a refine operation backed by an external
// HTTP endpoint. The endpoint receives the canonical request and response
// as JSON and may allow, mutate, or deny the response; denial is raised
// through the pipeline's abort channel so the configured denial response
// still reaches the sender.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaykit/relay/internal/core/domain"
)

// Action is the decision returned by a webhook endpoint.
type Action string

const (
	// ActionAllow keeps the current response.
	ActionAllow Action = "allow"
	// ActionDeny aborts the pipeline with a denial response.
	ActionDeny Action = "deny"
	// ActionMutate replaces the response with the webhook's payload.
	ActionMutate Action = "mutate"
)

// Config configures a remote refiner.
type Config struct {
	Name    string
	URL     string
	Timeout time.Duration
	// OnError decides what a transport or decode failure means:
	// ActionAllow fails open, ActionDeny (the default) fails closed.
	OnError Action
	Retries int
	Headers map[string]string
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Refiner calls an external endpoint to post-process responses. Its
// Refine method satisfies registry.RefineFunc.
type Refiner struct {
	name    string
	url     string
	onError Action
	retries int
	headers map[string]string
	client  *http.Client
}

// New creates a remote refiner from cfg.
func New(cfg Config) *Refiner {
	onError := cfg.OnError
	if onError == "" {
		onError = ActionDeny
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Refiner{
		name:    cfg.Name,
		url:     cfg.URL,
		onError: onError,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client:  client,
	}
}

// Name returns the refiner's configured name.
func (r *Refiner) Name() string { return r.name }

// requestWire is the JSON shape of the canonical request sent to the
// endpoint.
type requestWire struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Headers map[string][]string `json:"headers,omitempty"`
	Cookies map[string]string   `json:"cookies,omitempty"`
	Body    any                 `json:"body,omitempty"`
}

// responseWire is the JSON shape of the canonical response.
type responseWire struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    any                 `json:"body,omitempty"`
}

type callInput struct {
	Request  requestWire  `json:"request"`
	Response responseWire `json:"response"`
}

type callOutput struct {
	Action     Action        `json:"action"`
	Response   *responseWire `json:"response,omitempty"`
	DenyStatus int           `json:"deny_status,omitempty"`
	DenyReason string        `json:"deny_reason,omitempty"`
}

// Refine posts the request/response pair to the endpoint and applies the
// returned decision.
func (r *Refiner) Refine(ctx context.Context, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (*domain.NormalizedResponse, error) {
	out, err := r.call(ctx, req, resp)
	if err != nil {
		out, err = r.handleError(err)
		if err != nil {
			return nil, err
		}
	}

	switch out.Action {
	case ActionDeny:
		status := out.DenyStatus
		if status == 0 {
			status = http.StatusForbidden
		}
		reason := out.DenyReason
		if reason == "" {
			reason = "denied by webhook " + r.name
		}
		return nil, domain.NewAbort(status, reason).WithLabel("webhook_denied")
	case ActionMutate:
		if out.Response == nil {
			return nil, nil
		}
		replaced := &domain.NormalizedResponse{
			Status:  out.Response.Status,
			Body:    out.Response.Body,
			Headers: http.Header(out.Response.Headers),
		}
		replaced.EnsureHeaders()
		return replaced, nil
	default:
		return nil, nil
	}
}

func (r *Refiner) call(ctx context.Context, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (*callOutput, error) {
	var lastErr error
	attempts := r.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := r.doRequest(ctx, req, resp)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (r *Refiner) doRequest(ctx context.Context, nreq *domain.NormalizedRequest, nresp *domain.NormalizedResponse) (*callOutput, error) {
	body, err := json.Marshal(callInput{
		Request: requestWire{
			Method:  nreq.Method,
			Path:    nreq.Path,
			Headers: nreq.Headers,
			Cookies: nreq.Cookies,
			Body:    nreq.Body,
		},
		Response: responseWire{
			Status:  nresp.Status,
			Headers: nresp.Headers,
			Body:    nresp.Body,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out callOutput
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal webhook output: %w", err)
	}

	switch out.Action {
	case ActionAllow, ActionDeny, ActionMutate:
	case "":
		out.Action = ActionAllow
	default:
		return nil, fmt.Errorf("invalid action from webhook: %s", out.Action)
	}
	return &out, nil
}

// handleError applies the fail-open/fail-closed policy to a call failure.
func (r *Refiner) handleError(err error) (*callOutput, error) {
	switch r.onError {
	case ActionAllow:
		return &callOutput{Action: ActionAllow}, nil
	default:
		return &callOutput{
			Action:     ActionDeny,
			DenyReason: fmt.Sprintf("webhook error: %v", err),
			DenyStatus: http.StatusBadGateway,
		}, nil
	}
}
