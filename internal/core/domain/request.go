// Package domain defines the canonical request/response shapes that flow
// through the dispatch pipeline, along with the control-flow and fault
// error types the orchestrator understands.
package domain

import "net/http"

// SearchParams is an ordered multimap of query parameters. Unlike
// url.Values it preserves the order in which pairs were added, which
// matters for services that sign or replay the original query string.
type SearchParams struct {
	pairs []searchPair
}

type searchPair struct {
	key   string
	value string
}

// NewSearchParams returns an empty ordered parameter set.
func NewSearchParams() *SearchParams {
	return &SearchParams{}
}

// Add appends a key/value pair, preserving insertion order.
func (p *SearchParams) Add(key, value string) {
	p.pairs = append(p.pairs, searchPair{key: key, value: value})
}

// Get returns the first value for key, or "" if absent.
func (p *SearchParams) Get(key string) string {
	for _, pair := range p.pairs {
		if pair.key == key {
			return pair.value
		}
	}
	return ""
}

// Values returns all values for key in insertion order.
func (p *SearchParams) Values(key string) []string {
	var out []string
	for _, pair := range p.pairs {
		if pair.key == key {
			out = append(out, pair.value)
		}
	}
	return out
}

// Len returns the number of stored pairs.
func (p *SearchParams) Len() int {
	if p == nil {
		return 0
	}
	return len(p.pairs)
}

// Each calls fn for every pair in insertion order.
func (p *SearchParams) Each(fn func(key, value string)) {
	for _, pair := range p.pairs {
		fn(pair.key, pair.value)
	}
}

// NormalizedRequest is the pipeline's transport-agnostic request shape.
// It starts empty and accumulates fields as normalization services run;
// a later patch of a field replaces the earlier value wholesale.
type NormalizedRequest struct {
	// Original is the raw transport request the adapter handed in.
	// It is never mutated by the pipeline.
	Original any

	Method       string
	Path         string
	Body         any
	SearchParams *SearchParams
	Headers      http.Header
	Cookies      map[string]string

	// Context carries adapter- or application-provided per-request data.
	Context any
	// Session is the slot for an authentication artifact produced during
	// normalization. The pipeline itself attaches no meaning to it.
	Session any
}

// NewNormalizedRequest returns the all-default request wrapping raw.
func NewNormalizedRequest(raw any) *NormalizedRequest {
	return &NormalizedRequest{
		Original:     raw,
		SearchParams: NewSearchParams(),
		Headers:      make(http.Header),
		Cookies:      make(map[string]string),
	}
}

// RequestPatch is a partial NormalizedRequest returned by a receive or
// parse operation. Only set fields overwrite the running request; unset
// (nil or empty-string) fields leave the prior value untouched.
type RequestPatch struct {
	Method       string
	Path         string
	Body         any
	SearchParams *SearchParams
	Headers      http.Header
	Cookies      map[string]string
	Context      any
	Session      any
}

// Apply merges patch into r with shallow, field-wise semantics: every
// present patch field replaces the corresponding request field entirely.
// It reports whether the patch finalized a previously-unset path.
func (r *NormalizedRequest) Apply(patch *RequestPatch) bool {
	if patch == nil {
		return false
	}
	pathSet := false
	if patch.Method != "" {
		r.Method = patch.Method
	}
	if patch.Path != "" {
		if r.Path == "" {
			pathSet = true
		}
		r.Path = patch.Path
	}
	if patch.Body != nil {
		r.Body = patch.Body
	}
	if patch.SearchParams != nil {
		r.SearchParams = patch.SearchParams
	}
	if patch.Headers != nil {
		r.Headers = patch.Headers
	}
	if patch.Cookies != nil {
		r.Cookies = patch.Cookies
	}
	if patch.Context != nil {
		r.Context = patch.Context
	}
	if patch.Session != nil {
		r.Session = patch.Session
	}
	return pathSet
}
