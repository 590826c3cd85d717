package rbac

// Matches reports whether any granted permission covers the requested
// triple. A grant applies when its resource and action segments are the
// wildcard or literally equal to the request's, and its scope subsumes
// the requested scope (own < group < all). An empty grant set never
// matches: the matcher fails closed.
//
// Grant sets are small and derived fresh per authorization check, so the
// scan is a plain O(n) pass with no caching.
func Matches(granted []Permission, requested Permission) bool {
	for _, g := range granted {
		if segmentMatches(g.Resource, requested.Resource) &&
			segmentMatches(g.Action, requested.Action) &&
			g.Scope.Covers(requested.Scope) {
			return true
		}
	}
	return false
}

// MatchesStrings parses granted wire strings and evaluates the request
// against them. Malformed grants are skipped rather than matched; they
// should have been rejected at role-save time.
func MatchesStrings(granted []string, requested Permission) bool {
	for _, raw := range granted {
		g, err := Parse(raw)
		if err != nil {
			continue
		}
		if segmentMatches(g.Resource, requested.Resource) &&
			segmentMatches(g.Action, requested.Action) &&
			g.Scope.Covers(requested.Scope) {
			return true
		}
	}
	return false
}

// Intersect returns the pairwise meet of the two sets: for every pair
// whose resource and action segments overlap, the literal segment wins
// over the wildcard and the narrower scope wins. Used for delegated
// tokens: the token's declared subset is intersected with the issuer's
// live permissions, so a role revocation shrinks, and can never widen,
// what the token can do — an issuer holding widget:read:group clamps a
// token's widget:read:all down to group rather than dropping it.
func Intersect(base, narrowed []Permission) []Permission {
	if len(base) == 0 || len(narrowed) == 0 {
		return nil
	}
	var effective []Permission
	seen := make(map[Permission]struct{})
	for _, n := range narrowed {
		for _, b := range base {
			m, ok := meet(b, n)
			if !ok {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			effective = append(effective, m)
		}
	}
	return effective
}

// meet computes the intersection of two permissions, or ok=false when
// their resource or action segments are disjoint.
func meet(a, b Permission) (Permission, bool) {
	resource, ok := segmentMeet(a.Resource, b.Resource)
	if !ok {
		return Permission{}, false
	}
	action, ok := segmentMeet(a.Action, b.Action)
	if !ok {
		return Permission{}, false
	}
	scope := a.Scope
	if scope.Covers(b.Scope) {
		scope = b.Scope
	}
	return Permission{Resource: resource, Action: action, Scope: scope}, true
}

func segmentMeet(a, b string) (string, bool) {
	switch {
	case a == Wildcard:
		return b, true
	case b == Wildcard:
		return a, true
	case a == b:
		return a, true
	}
	return "", false
}

// Subset reports whether every candidate permission is covered by the
// base set. Enforced when a delegated token is issued.
func Subset(base, candidate []Permission) bool {
	for _, c := range candidate {
		if !coveredBy(base, c) {
			return false
		}
	}
	return true
}

// coveredBy reports whether the grant set covers permission p in full,
// including any records p's own wildcards would admit.
func coveredBy(granted []Permission, p Permission) bool {
	for _, g := range granted {
		if coverSegment(g.Resource, p.Resource) &&
			coverSegment(g.Action, p.Action) &&
			g.Scope.Covers(p.Scope) {
			return true
		}
	}
	return false
}

func segmentMatches(grant, requested string) bool {
	return grant == Wildcard || grant == requested
}

// coverSegment differs from segmentMatches: a literal grant segment can
// never cover a wildcard candidate.
func coverSegment(grant, candidate string) bool {
	if grant == Wildcard {
		return true
	}
	return candidate != Wildcard && grant == candidate
}
