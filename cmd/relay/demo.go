package main

import (
	"context"
	"net/http"
	"time"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/match"
	"github.com/relaykit/relay/internal/registry"
)

// userSession is the demo authentication artifact attached during parse.
type userSession struct {
	User string
}

// registerUsers wires a small user-facing service: a parse operation
// that lifts the caller identity out of a header, a few handlers, and a
// CORS policy scoped to the service's paths.
func registerUsers(b *registry.Builder) error {
	maxAge := 300

	b.Service("users").
		Match(match.MustGlob("/users/**")).
		Priority(10).
		CORS(&domain.CORSPolicy{
			Origins:      []string{"https://app.example.com"},
			AllowHeaders: []string{"Content-Type", "X-Api-User"},
			MaxAge:       &maxAge,
		}).
		OnParse("attachSession", func(ctx context.Context, req *domain.NormalizedRequest) (*domain.RequestPatch, error) {
			user := req.Headers.Get("X-Api-User")
			if user == "" {
				return nil, nil
			}
			return &domain.RequestPatch{Session: &userSession{User: user}}, nil
		}).
		OnHandle("whoami", "GET", "/users/me",
			[]registry.ParamKind{registry.ParamSession},
			func(ctx context.Context, args []any) (*domain.NormalizedResponse, error) {
				session, ok := args[0].(*userSession)
				if !ok {
					return nil, domain.AbortUnauthorized(map[string]any{
						"error": "missing X-Api-User header",
					}).WithLabel("no_session")
				}
				return domain.NewNormalizedResponse(http.StatusOK, map[string]any{
					"user": session.User,
				}), nil
			}).
		OnHandle("createUser", "POST", "/users",
			[]registry.ParamKind{registry.ParamBody, registry.ParamHeaders},
			func(ctx context.Context, args []any) (*domain.NormalizedResponse, error) {
				body, ok := args[0].(map[string]any)
				if !ok || body["name"] == nil {
					return nil, domain.AbortBadRequest(map[string]any{
						"error": "body must include a name",
					}).WithLabel("invalid_body")
				}
				return domain.NewNormalizedResponse(http.StatusCreated, map[string]any{
					"name":    body["name"],
					"created": time.Now().UTC().Format(time.RFC3339),
				}), nil
			})
	return nil
}

// registerStatus adds a matcher-less operational participant whose
// refine operation stamps every response.
func registerStatus(b *registry.Builder) error {
	b.Service("status").
		OnRefine("stampServer", func(ctx context.Context, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) (*domain.NormalizedResponse, error) {
			resp.EnsureHeaders().Set("X-Served-By", "relay")
			return nil, nil
		})
	return nil
}
