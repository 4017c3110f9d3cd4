// Package registry is the explicit registration surface for pipeline
// services. Instead of runtime introspection, each capability provider
// registers typed descriptors into a Builder at startup: a path matcher,
// a priority, an optional class-level CORS policy, and named operations
// tagged with a pipeline role. Build freezes the set into an immutable
// Directory that the orchestrator consumes.
package registry

import (
	"context"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/match"
)

// Role identifies which pipeline stage an operation participates in.
type Role string

const (
	// RoleReceive operations run first in normalization.
	RoleReceive Role = "receive"
	// RoleParse operations run after all receive operations of a service.
	RoleParse Role = "parse"
	// RoleHandle operations terminate dispatch for one (method, path) pair.
	RoleHandle Role = "handle"
	// RoleRefine operations post-process the canonical response.
	RoleRefine Role = "refine"
	// RoleCORS operations contribute partial cross-origin policy.
	RoleCORS Role = "cors"
	// RoleSend operations serialize the canonical response for the transport.
	RoleSend Role = "send"
)

// ParamKind names a NormalizedRequest field injected positionally into a
// handler operation. An unrecognized kind leaves the original call
// argument in place.
type ParamKind string

const (
	ParamBody         ParamKind = "body"
	ParamOriginal     ParamKind = "originalRequest"
	ParamSearchParams ParamKind = "searchParams"
	ParamHeaders      ParamKind = "headers"
	ParamContext      ParamKind = "context"
	ParamSession      ParamKind = "session"
	ParamCookies      ParamKind = "cookies"
)

// NormalizeFunc is a receive or parse operation: it inspects the running
// request and returns a partial update, or nil for no change.
type NormalizeFunc func(ctx context.Context, req *domain.NormalizedRequest) (*domain.RequestPatch, error)

// HandleFunc is a terminal handler operation. args holds the positional
// parameters resolved from the operation's declared ParamKinds.
type HandleFunc func(ctx context.Context, args []any) (*domain.NormalizedResponse, error)

// RefineFunc transforms the canonical response after the handler runs.
// A nil result keeps the current response.
type RefineFunc func(ctx context.Context, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (*domain.NormalizedResponse, error)

// CORSFunc contributes a partial cross-origin policy for the request.
type CORSFunc func(ctx context.Context, req *domain.NormalizedRequest) (*domain.CORSPolicy, error)

// SendFunc converts the canonical response into the transport's native
// response type.
type SendFunc func(ctx context.Context, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (any, error)

// Operation is one registered, role-tagged operation of a service.
type Operation struct {
	Name string
	Role Role

	// Matcher scopes receive/parse/refine/cors operations to a path,
	// independently of the owning service's matcher. Nil means unscoped.
	Matcher match.Matcher

	// Method and Path are the exact dispatch key of a handle operation.
	Method string
	Path   string
	// Params declares the positional injection kinds of a handle operation.
	Params []ParamKind

	Normalize NormalizeFunc
	Handle    HandleFunc
	Refine    RefineFunc
	CORS      CORSFunc
	Send      SendFunc
}

// Service is an immutable capability descriptor produced by Build.
type Service struct {
	name        string
	matcher     match.Matcher
	priority    int
	hasPriority bool
	corsPolicy  *domain.CORSPolicy
	ops         map[Role][]*Operation
}

// Name returns the service's registered name.
func (s *Service) Name() string { return s.name }

// Matcher returns the service-level path matcher, or nil if the service
// applies to every path.
func (s *Service) Matcher() match.Matcher { return s.matcher }

// Priority returns the declared priority and whether one was declared.
// An undeclared priority compares lowest.
func (s *Service) Priority() (int, bool) { return s.priority, s.hasPriority }

// CORSPolicy returns the class-level CORS policy, or nil.
func (s *Service) CORSPolicy() *domain.CORSPolicy { return s.corsPolicy }

// Operations returns the service's operations for role in declaration order.
func (s *Service) Operations(role Role) []*Operation { return s.ops[role] }

// HasRole reports whether the service declares at least one operation
// for role.
func (s *Service) HasRole(role Role) bool { return len(s.ops[role]) > 0 }

// Directory is the frozen view of all registered services, in
// registration order. It is effectively immutable once built, so it is
// safe to share across concurrent requests without locking.
type Directory struct {
	services []*Service
	byName   map[string]*Service
}

// Participants returns every registered service in registration order.
func (d *Directory) Participants() []*Service { return d.services }

// Lookup returns the service registered under name.
func (d *Directory) Lookup(name string) (*Service, bool) {
	s, ok := d.byName[name]
	return s, ok
}

// WithRole returns the services declaring at least one operation for
// role, in registration order.
func (d *Directory) WithRole(role Role) []*Service {
	var out []*Service
	for _, s := range d.services {
		if s.HasRole(role) {
			out = append(out, s)
		}
	}
	return out
}
