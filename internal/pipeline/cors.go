package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/match"
	"github.com/relaykit/relay/internal/registry"
)

// defaultCORSMaxAge is used when no contributor sets MaxAge.
const defaultCORSMaxAge = 600

// collectCORS merges cross-origin policy from every service used during
// normalization, in selection order. For each service the class-level
// policy merges first, then each field-scoped CORS operation whose
// matcher matches the final path. Later contributors win field-wise.
func collectCORS(ctx context.Context, used []*registry.Service, req *domain.NormalizedRequest) (*domain.CORSPolicy, error) {
	var policy *domain.CORSPolicy
	for _, svc := range used {
		if class := svc.CORSPolicy(); class != nil {
			policy = policy.Merge(class)
		}
		for _, op := range svc.Operations(registry.RoleCORS) {
			if !match.Matches(req.Path, op.Matcher) {
				continue
			}
			partial, err := op.CORS(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("cors %s.%s: %w", svc.Name(), op.Name, err)
			}
			policy = policy.Merge(partial)
		}
	}
	return policy, nil
}

// applyCORS writes the merged policy onto the response headers. Nothing
// is written when the policy is empty or the request carries no Origin
// header, even if a policy was collected.
func applyCORS(policy *domain.CORSPolicy, req *domain.NormalizedRequest, resp *domain.NormalizedResponse) {
	if policy.IsZero() {
		return
	}
	origin := req.Headers.Get("Origin")
	if origin == "" {
		return
	}

	maxAge := defaultCORSMaxAge
	if policy.MaxAge != nil {
		maxAge = *policy.MaxAge
	}
	credentials := "false"
	if policy.AllowCredentials != nil && *policy.AllowCredentials {
		credentials = "true"
	}

	h := resp.EnsureHeaders()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Headers", strings.Join(policy.AllowHeaders, ", "))
	h.Set("Access-Control-Allow-Methods", req.Method)
	h.Set("Access-Control-Expose-Headers", strings.Join(policy.ExposeHeaders, ", "))
	h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
	h.Set("Access-Control-Allow-Credentials", credentials)
}
