package rbac

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Wildcard matches any resource or action segment. Scope never accepts it.
const Wildcard = "*"

// Scope bounds how far a grant reaches over records of a resource.
type Scope string

const (
	// ScopeOwn covers records the actor directly owns.
	ScopeOwn Scope = "own"
	// ScopeGroup covers records owned by the actor's group.
	ScopeGroup Scope = "group"
	// ScopeAll covers every record of the resource.
	ScopeAll Scope = "all"
)

// rank orders scopes for subsumption: own < group < all.
func (s Scope) rank() int {
	switch s {
	case ScopeOwn:
		return 1
	case ScopeGroup:
		return 2
	case ScopeAll:
		return 3
	}
	return 0
}

// Covers reports whether a grant of scope s satisfies a request for other.
func (s Scope) Covers(other Scope) bool {
	return other.rank() > 0 && s.rank() >= other.rank()
}

// ParseScope converts the wire representation into a Scope.
func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeOwn, ScopeGroup, ScopeAll:
		return Scope(raw), nil
	}
	return "", fmt.Errorf("%w: unknown scope %q", ErrMalformedPermission, raw)
}

// ErrMalformedPermission indicates a permission string that cannot be
// tokenized into a valid triple. Surfaced at role-save time, never at
// match time.
var ErrMalformedPermission = errors.New("rbac: malformed permission")

// Permission is an immutable <resource>:<action>:<scope> grant.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// Parse tokenizes a permission string into its triple form. Resource and
// action accept the wildcard token; scope is a fixed enum. The legacy
// "*:*:*" spelling seen in older configs is rejected: unrestricted
// access is spelled "*:*:all".
func Parse(raw string) (Permission, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("%w: %q has %d segments, want 3", ErrMalformedPermission, raw, len(parts))
	}
	resource := strings.ToLower(strings.TrimSpace(parts[0]))
	action := strings.ToLower(strings.TrimSpace(parts[1]))
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformedPermission, raw)
	}
	scope, err := ParseScope(strings.ToLower(strings.TrimSpace(parts[2])))
	if err != nil {
		return Permission{}, fmt.Errorf("%w (in %q)", err, raw)
	}
	return Permission{Resource: resource, Action: action, Scope: scope}, nil
}

// MustParse is Parse for trusted literals; it panics on malformed input.
func MustParse(raw string) Permission {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// MustParseSet is ParseSet for trusted literals; it panics on
// malformed input.
func MustParseSet(raw ...string) []Permission {
	perms, err := ParseSet(raw)
	if err != nil {
		panic(err)
	}
	return perms
}

// ParseSet parses every string and fails on the first malformed entry.
func ParseSet(raw []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p, err := Parse(r)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// String renders the canonical wire form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action + ":" + string(p.Scope)
}

// Role groups permissions under a name.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Actor is the authenticated identity the gate resolves requests to.
type Actor struct {
	ID      int64
	Handle  string
	GroupID *int64
	Active  bool
	Locked  bool
}

// OwnedRecord exposes the two ownership fields the core reads to resolve
// required scope. Business entities implement it; the core never touches
// anything else on them.
type OwnedRecord interface {
	OwnerActorID() *int64
	OwnerGroupID() *int64
}

// Ownership is a ready-made OwnedRecord for callers that only carry the
// raw ids (change events, list filters).
type Ownership struct {
	ActorID *int64
	GroupID *int64
}

// OwnerActorID implements OwnedRecord.
func (o Ownership) OwnerActorID() *int64 { return o.ActorID }

// OwnerGroupID implements OwnedRecord.
func (o Ownership) OwnerGroupID() *int64 { return o.GroupID }
