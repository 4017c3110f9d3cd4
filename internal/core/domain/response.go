package domain

import "net/http"

// SetCookie describes one Set-Cookie directive on the canonical response.
// The sender decides how to serialize it for its transport.
type SetCookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HTTPOnly bool
}

// NormalizedResponse is the canonical output of the handler stage.
// Refiners replace it wholesale; the CORS stage mutates Headers only.
type NormalizedResponse struct {
	Status  int
	Body    any
	Headers http.Header
	Cookies []SetCookie
}

// NewNormalizedResponse returns a response with the given status and body
// and empty headers.
func NewNormalizedResponse(status int, body any) *NormalizedResponse {
	return &NormalizedResponse{
		Status:  status,
		Body:    body,
		Headers: make(http.Header),
	}
}

// EnsureHeaders initializes the header map if a refiner replaced the
// response with a bare struct literal.
func (r *NormalizedResponse) EnsureHeaders() http.Header {
	if r.Headers == nil {
		r.Headers = make(http.Header)
	}
	return r.Headers
}

// CORSPolicy is a partial cross-origin policy contributed by one source.
// Nil fields mean "no opinion" and never override a previously-set value
// during merging.
type CORSPolicy struct {
	Origins          []string
	AllowHeaders     []string
	ExposeHeaders    []string
	MaxAge           *int
	AllowCredentials *bool
}

// Merge overlays other onto p: every non-nil field of other wins, nil
// fields of other leave p untouched. Later contributors therefore take
// precedence. Merge accepts nil receivers and returns the merged policy.
func (p *CORSPolicy) Merge(other *CORSPolicy) *CORSPolicy {
	if other == nil {
		return p
	}
	if p == nil {
		merged := *other
		return &merged
	}
	if other.Origins != nil {
		p.Origins = other.Origins
	}
	if other.AllowHeaders != nil {
		p.AllowHeaders = other.AllowHeaders
	}
	if other.ExposeHeaders != nil {
		p.ExposeHeaders = other.ExposeHeaders
	}
	if other.MaxAge != nil {
		p.MaxAge = other.MaxAge
	}
	if other.AllowCredentials != nil {
		p.AllowCredentials = other.AllowCredentials
	}
	return p
}

// IsZero reports whether no field of the policy has been set.
func (p *CORSPolicy) IsZero() bool {
	if p == nil {
		return true
	}
	return p.Origins == nil && p.AllowHeaders == nil && p.ExposeHeaders == nil &&
		p.MaxAge == nil && p.AllowCredentials == nil
}
