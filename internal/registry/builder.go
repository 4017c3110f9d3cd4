package registry

import (
	"fmt"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/match"
)

// Builder accumulates service registrations at startup. It is not safe
// for concurrent use; registration is expected to finish before the
// first request.
type Builder struct {
	services []*ServiceBuilder
}

// NewBuilder returns an empty registration builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Service opens a registration entry for name. Registration order is
// preserved and becomes the tiebreak order of the selector.
func (b *Builder) Service(name string) *ServiceBuilder {
	sb := &ServiceBuilder{
		svc: &Service{
			name: name,
			ops:  make(map[Role][]*Operation),
		},
	}
	b.services = append(b.services, sb)
	return sb
}

// Build validates the accumulated registrations and freezes them into an
// immutable Directory.
func (b *Builder) Build() (*Directory, error) {
	dir := &Directory{byName: make(map[string]*Service, len(b.services))}
	for _, sb := range b.services {
		if sb.err != nil {
			return nil, fmt.Errorf("service %s: %w", sb.svc.name, sb.err)
		}
		if dir.byName[sb.svc.name] != nil {
			return nil, fmt.Errorf("service %s registered twice", sb.svc.name)
		}
		dir.services = append(dir.services, sb.svc)
		dir.byName[sb.svc.name] = sb.svc
	}
	return dir, nil
}

// ServiceBuilder registers one service's descriptor. All methods return
// the builder for chaining; the first registration error sticks and is
// reported by Build.
type ServiceBuilder struct {
	svc *Service
	err error
}

// Match sets the service-level path matcher. Services without a matcher
// apply to every path and sort ahead of matcher-bearing services.
func (sb *ServiceBuilder) Match(m match.Matcher) *ServiceBuilder {
	sb.svc.matcher = m
	return sb
}

// Priority sets the service's selection priority. Higher runs earlier
// among matcher-bearing services; undeclared compares lowest.
func (sb *ServiceBuilder) Priority(p int) *ServiceBuilder {
	sb.svc.priority = p
	sb.svc.hasPriority = true
	return sb
}

// CORS sets the class-level CORS policy merged for every request this
// service participates in.
func (sb *ServiceBuilder) CORS(policy *domain.CORSPolicy) *ServiceBuilder {
	sb.svc.corsPolicy = policy
	return sb
}

// OpOption customizes a single operation registration.
type OpOption func(*Operation)

// WithOpMatcher scopes an operation to paths matching m, independently
// of the service-level matcher.
func WithOpMatcher(m match.Matcher) OpOption {
	return func(op *Operation) { op.Matcher = m }
}

func (sb *ServiceBuilder) addOp(op *Operation, opts []OpOption) *ServiceBuilder {
	if op.Name == "" {
		sb.fail(fmt.Errorf("%s operation needs a name", op.Role))
		return sb
	}
	for _, opt := range opts {
		opt(op)
	}
	sb.svc.ops[op.Role] = append(sb.svc.ops[op.Role], op)
	return sb
}

func (sb *ServiceBuilder) fail(err error) {
	if sb.err == nil {
		sb.err = err
	}
}

// OnReceive registers a receive operation, the first normalization phase.
func (sb *ServiceBuilder) OnReceive(name string, fn NormalizeFunc, opts ...OpOption) *ServiceBuilder {
	return sb.addOp(&Operation{Name: name, Role: RoleReceive, Normalize: fn}, opts)
}

// OnParse registers a parse operation, run after the service's receive
// operations.
func (sb *ServiceBuilder) OnParse(name string, fn NormalizeFunc, opts ...OpOption) *ServiceBuilder {
	return sb.addOp(&Operation{Name: name, Role: RoleParse, Normalize: fn}, opts)
}

// OnHandle registers a terminal handler for the exact (method, path)
// dispatch key. params declares the positional injection kinds handed to
// fn; declaration order decides between duplicate keys.
func (sb *ServiceBuilder) OnHandle(name, method, path string, params []ParamKind, fn HandleFunc) *ServiceBuilder {
	if method == "" || path == "" {
		sb.fail(fmt.Errorf("handle operation %s needs method and path", name))
		return sb
	}
	return sb.addOp(&Operation{
		Name:   name,
		Role:   RoleHandle,
		Method: method,
		Path:   path,
		Params: params,
		Handle: fn,
	}, nil)
}

// OnRefine registers a response refiner.
func (sb *ServiceBuilder) OnRefine(name string, fn RefineFunc, opts ...OpOption) *ServiceBuilder {
	return sb.addOp(&Operation{Name: name, Role: RoleRefine, Refine: fn}, opts)
}

// OnCORS registers a field-scoped CORS policy provider.
func (sb *ServiceBuilder) OnCORS(name string, fn CORSFunc, opts ...OpOption) *ServiceBuilder {
	return sb.addOp(&Operation{Name: name, Role: RoleCORS, CORS: fn}, opts)
}

// OnSend registers a sender. The pipeline uses the first sender in
// selection order; at most one participates per request.
func (sb *ServiceBuilder) OnSend(name string, fn SendFunc) *ServiceBuilder {
	return sb.addOp(&Operation{Name: name, Role: RoleSend, Send: fn}, nil)
}
