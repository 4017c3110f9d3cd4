package pipeline

import (
	"math"
	"sort"

	"github.com/relaykit/relay/internal/registry"
)

// Select produces the ordered candidate list for a request. Matcher-less
// services sort before matcher-bearing ones; within each group a higher
// declared priority sorts first, and equal priorities (including both
// undeclared) keep registration order. The sort is stable, so calling
// Select twice against an unchanged directory yields identical lists.
func Select(candidates []*registry.Service) []*registry.Service {
	ordered := make([]*registry.Service, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(i, j int) bool {
		iMatched := ordered[i].Matcher() != nil
		jMatched := ordered[j].Matcher() != nil
		if iMatched != jMatched {
			return !iMatched
		}
		return effectivePriority(ordered[i]) > effectivePriority(ordered[j])
	})

	return ordered
}

// effectivePriority treats an undeclared priority as comparably lowest.
func effectivePriority(s *registry.Service) int {
	p, ok := s.Priority()
	if !ok {
		return math.MinInt
	}
	return p
}
