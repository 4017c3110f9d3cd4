// Package pipeline drives one request through the dispatch flow:
// candidate selection, two-phase normalization (receive then parse),
// terminal handler dispatch with positional parameter injection, response
// refinement, CORS aggregation, and sending. All stages of one request
// run strictly sequentially; the directory and the cached sender lookup
// are the only cross-request shared state and are effectively immutable.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/match"
	"github.com/relaykit/relay/internal/registry"
)

// NormalizePolicy names the candidate-filtering behavior while the path
// is still undiscovered. Selection should ideally depend on the final
// path, but normalization is what discovers it, so some policy is needed
// for candidates encountered before the first path assignment.
type NormalizePolicy string

const (
	// PolicyOptimistic runs every matcher-bearing candidate reached
	// before the path is known. A candidate whose matcher would not
	// match the eventual path may therefore still run. This mirrors the
	// long-standing default behavior; configurations may depend on it.
	PolicyOptimistic NormalizePolicy = "optimistic"

	// PolicyStrictTwoPass defers all matcher-bearing candidates to a
	// second pass that runs after the matcher-less candidates have had
	// the chance to discover the path. If the path is still unset after
	// the first pass, matcher-bearing candidates are skipped entirely.
	PolicyStrictTwoPass NormalizePolicy = "strict"
)

// Orchestrator processes requests against a frozen service directory.
// It is safe for concurrent use; per-request state lives on the stack of
// each Incoming call.
type Orchestrator struct {
	dir    *registry.Directory
	policy NormalizePolicy
	logger *slog.Logger

	// The sender set is static after startup, so the first discovery is
	// cached for the lifetime of the orchestrator.
	senderOnce sync.Once
	sender     *senderRef
	senderErr  error
}

type senderRef struct {
	svc *registry.Service
	op  *registry.Operation
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithNormalizePolicy selects the filter-before-path-known behavior.
func WithNormalizePolicy(policy NormalizePolicy) Option {
	return func(o *Orchestrator) { o.policy = policy }
}

// New creates an orchestrator over dir.
func New(dir *registry.Directory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dir:    dir,
		policy: PolicyOptimistic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Incoming processes one raw transport request and returns the sender's
// transport-native output. handler designates the service whose handle
// operations terminate dispatch. An Abort raised during normalization,
// dispatch, refinement, or CORS aggregation is fully recovered here: its
// embedded response is routed straight to the sender and never surfaces
// to the caller.
// Configuration faults (HandlerNotFoundError, NoSenderFoundError) and
// any other operation failure propagate unmodified; a failure inside the
// sender itself is fatal for the request and also propagates.
func (o *Orchestrator) Incoming(ctx context.Context, handler *registry.Service, raw any) (any, error) {
	req := domain.NewNormalizedRequest(raw)

	used, err := o.normalize(ctx, req)
	if err != nil {
		return o.recover(ctx, raw, err)
	}

	resp, err := o.dispatch(ctx, handler, raw, req)
	if err != nil {
		return o.recover(ctx, raw, err)
	}

	resp, err = o.refine(ctx, used, req, resp)
	if err != nil {
		return o.recover(ctx, raw, err)
	}

	policy, err := collectCORS(ctx, used, req)
	if err != nil {
		return o.recover(ctx, raw, err)
	}
	applyCORS(policy, req, resp)

	return o.send(ctx, req, resp)
}

// recover routes a pipeline Abort straight to the sender with its
// embedded response and a fresh empty request, since normalization may
// not have run. Non-abort errors pass through untouched.
func (o *Orchestrator) recover(ctx context.Context, raw any, err error) (any, error) {
	abort, ok := domain.AsAbort(err)
	if !ok {
		return nil, err
	}

	resp := abort.Response
	if resp == nil {
		resp = domain.NewNormalizedResponse(500, nil)
	}
	o.logger.Info("pipeline aborted",
		slog.String("label", abort.Label),
		slog.Int("status", resp.Status),
	)
	if note := abortNoteFrom(ctx); note != nil {
		note.Aborted = true
		note.Label = abort.Label
		note.Status = resp.Status
	}

	return o.send(ctx, domain.NewNormalizedRequest(raw), resp)
}

// normalize runs the receive/parse chain over the ordered candidates and
// returns the services that participated, in selection order.
func (o *Orchestrator) normalize(ctx context.Context, req *domain.NormalizedRequest) ([]*registry.Service, error) {
	candidates := Select(o.dir.Participants())
	if o.policy == PolicyStrictTwoPass {
		return o.normalizeStrict(ctx, candidates, req)
	}
	return o.normalizeOptimistic(ctx, candidates, req)
}

func (o *Orchestrator) normalizeOptimistic(ctx context.Context, candidates []*registry.Service, req *domain.NormalizedRequest) ([]*registry.Service, error) {
	var used []*registry.Service
	for _, svc := range candidates {
		// Once the path is known, non-matching candidates contribute
		// nothing and are excluded from the used set. Before that, every
		// candidate runs.
		if req.Path != "" && !match.Matches(req.Path, svc.Matcher()) {
			o.logger.Debug("candidate skipped", slog.String("service", svc.Name()), slog.String("path", req.Path))
			continue
		}
		used = append(used, svc)
		if err := o.runNormalizeOps(ctx, svc, req, false); err != nil {
			return nil, err
		}
	}
	return used, nil
}

func (o *Orchestrator) normalizeStrict(ctx context.Context, candidates []*registry.Service, req *domain.NormalizedRequest) ([]*registry.Service, error) {
	var used []*registry.Service

	// Matcher-less candidates form a prefix of the selection order, so
	// running them first keeps the used set in selection order.
	var deferred []*registry.Service
	for _, svc := range candidates {
		if svc.Matcher() != nil {
			deferred = append(deferred, svc)
			continue
		}
		used = append(used, svc)
		if err := o.runNormalizeOps(ctx, svc, req, true); err != nil {
			return nil, err
		}
	}

	for _, svc := range deferred {
		if req.Path == "" || !svc.Matcher().Match(req.Path) {
			continue
		}
		used = append(used, svc)
		if err := o.runNormalizeOps(ctx, svc, req, true); err != nil {
			return nil, err
		}
	}

	return used, nil
}

// runNormalizeOps invokes the service's receive operations, then its
// parse operations. An operation-scoped matcher is evaluated against the
// current path, which may not be finalized yet; under the strict policy
// a matcher-bearing operation is skipped outright while the path is
// unknown instead of being tested against the empty path.
func (o *Orchestrator) runNormalizeOps(ctx context.Context, svc *registry.Service, req *domain.NormalizedRequest, strict bool) error {
	for _, role := range []registry.Role{registry.RoleReceive, registry.RoleParse} {
		for _, op := range svc.Operations(role) {
			if op.Matcher != nil {
				if strict && req.Path == "" {
					continue
				}
				if !op.Matcher.Match(req.Path) {
					continue
				}
			}
			patch, err := op.Normalize(ctx, req)
			if err != nil {
				return fmt.Errorf("%s %s.%s: %w", role, svc.Name(), op.Name, err)
			}
			if req.Apply(patch) {
				o.logger.Debug("path discovered",
					slog.String("service", svc.Name()),
					slog.String("operation", op.Name),
					slog.String("path", req.Path),
				)
			}
		}
	}
	return nil
}

// dispatch scans the handler service's handle operations for the first
// one (in declaration order) whose dispatch key equals the normalized
// (method, path) pair and invokes it with its declared positional
// parameters.
func (o *Orchestrator) dispatch(ctx context.Context, handler *registry.Service, raw any, req *domain.NormalizedRequest) (*domain.NormalizedResponse, error) {
	if handler == nil {
		return nil, &domain.HandlerNotFoundError{Method: req.Method, Path: req.Path}
	}

	for _, op := range handler.Operations(registry.RoleHandle) {
		if op.Method != req.Method || op.Path != req.Path {
			continue
		}
		resp, err := op.Handle(ctx, buildArgs(op, raw, req))
		if err != nil {
			return nil, fmt.Errorf("handle %s.%s: %w", handler.Name(), op.Name, err)
		}
		if resp == nil {
			resp = &domain.NormalizedResponse{}
		}
		return resp, nil
	}

	return nil, &domain.HandlerNotFoundError{Method: req.Method, Path: req.Path}
}

// buildArgs resolves a handle operation's declared parameter kinds into
// positional arguments. A kind the pipeline does not recognize passes
// the original call argument through unchanged.
func buildArgs(op *registry.Operation, raw any, req *domain.NormalizedRequest) []any {
	args := make([]any, len(op.Params))
	for i, kind := range op.Params {
		switch kind {
		case registry.ParamBody:
			args[i] = req.Body
		case registry.ParamOriginal:
			args[i] = req.Original
		case registry.ParamSearchParams:
			args[i] = req.SearchParams
		case registry.ParamHeaders:
			args[i] = req.Headers
		case registry.ParamContext:
			args[i] = req.Context
		case registry.ParamSession:
			args[i] = req.Session
		case registry.ParamCookies:
			args[i] = req.Cookies
		default:
			args[i] = raw
		}
	}
	return args
}

// refine runs every used service's refine operations, in the order the
// services were selected, against the final path. Each operation may
// return a full replacement response.
func (o *Orchestrator) refine(ctx context.Context, used []*registry.Service, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (*domain.NormalizedResponse, error) {
	for _, svc := range used {
		for _, op := range svc.Operations(registry.RoleRefine) {
			if !match.Matches(req.Path, op.Matcher) {
				continue
			}
			next, err := op.Refine(ctx, req, resp)
			if err != nil {
				return nil, fmt.Errorf("refine %s.%s: %w", svc.Name(), op.Name, err)
			}
			if next != nil {
				resp = next
			}
		}
	}
	return resp, nil
}

// send hands the canonical response to the cached sender. Errors here
// are fatal for the request and propagate to the caller.
func (o *Orchestrator) send(ctx context.Context, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (any, error) {
	ref, err := o.resolveSender()
	if err != nil {
		return nil, err
	}
	out, err := ref.op.Send(ctx, req, resp)
	if err != nil {
		return nil, fmt.Errorf("send %s.%s: %w", ref.svc.Name(), ref.op.Name, err)
	}
	return out, nil
}

// resolveSender finds the first service in selection order exposing a
// send operation. The result is computed once per orchestrator because
// service registration is static after startup.
func (o *Orchestrator) resolveSender() (*senderRef, error) {
	o.senderOnce.Do(func() {
		for _, svc := range Select(o.dir.Participants()) {
			if ops := svc.Operations(registry.RoleSend); len(ops) > 0 {
				o.sender = &senderRef{svc: svc, op: ops[0]}
				return
			}
		}
		o.senderErr = &domain.NoSenderFoundError{}
	})
	if o.senderErr != nil {
		return nil, o.senderErr
	}
	return o.sender, nil
}
