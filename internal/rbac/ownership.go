package rbac

// RequiredScope resolves the narrowest scope that legitimately applies
// when actor touches record: own when the actor is the direct owner,
// group when the record belongs to the actor's group, all otherwise.
// The result is what the matcher must be satisfied against for this
// specific record.
func RequiredScope(actor *Actor, record OwnedRecord) Scope {
	if actor == nil || record == nil {
		return ScopeAll
	}
	if owner := record.OwnerActorID(); owner != nil && *owner == actor.ID {
		return ScopeOwn
	}
	if group := record.OwnerGroupID(); group != nil && actor.GroupID != nil && *group == *actor.GroupID {
		return ScopeGroup
	}
	return ScopeAll
}

// BroadestScope returns the widest scope the grant set holds for
// resource:action, or false when no grant applies at all. Collection
// queries use it to decide how far a result set may reach before
// filtering post-query.
func BroadestScope(granted []Permission, resource, action string) (Scope, bool) {
	var best Scope
	found := false
	for _, g := range granted {
		if !segmentMatches(g.Resource, resource) || !segmentMatches(g.Action, action) {
			continue
		}
		if !found || g.Scope.rank() > best.rank() {
			best = g.Scope
			found = true
		}
		if best == ScopeAll {
			break
		}
	}
	return best, found
}
