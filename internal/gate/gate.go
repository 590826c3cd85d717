// Package gate implements the uniform authorization check every inbound
// operation passes through before touching business logic, regardless of
// transport.
package gate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// TokenCredential is a resolved delegated token: the issuing actor and
// the permission subset declared at issuance.
type TokenCredential struct {
	IssuerID    int64
	Permissions []rbac.Permission
}

// CredentialResolver resolves the two credential forms against their
// external stores. Both lookups may block; the gate holds no locks
// while awaiting them.
type CredentialResolver interface {
	// ResolveSession returns the actor bound to a session id, or
	// ok=false when the session is unknown, expired or anonymous.
	ResolveSession(ctx context.Context, sessionID string) (actorID int64, ok bool, err error)
	// ResolveToken returns the credential for a bearer secret. Expired,
	// revoked and unknown secrets return ErrInvalidToken.
	ResolveToken(ctx context.Context, secret string) (*TokenCredential, error)
}

// ErrInvalidToken signals a presented bearer value that cannot be used:
// unknown, expired or revoked. The gate turns it into AUTH_INVALID on
// protected endpoints.
var ErrInvalidToken = errors.New("gate: invalid token")

// PermissionSource supplies actors and their derived grant sets. The
// backing store is read-mostly and concurrency-safe; the gate reads
// current state at decision time and never writes.
type PermissionSource interface {
	Actor(ctx context.Context, id int64) (*rbac.Actor, error)
	EffectivePermissions(ctx context.Context, actorID int64) ([]rbac.Permission, error)
}

// Gate evaluates the per-request state machine:
//
//	RECEIVED → PublicCheck → CredentialResolution → PermissionCheck → GRANTED|DENIED
//
// It is stateless per call and safe under unbounded concurrent use.
type Gate struct {
	public      map[string]struct{}
	credentials CredentialResolver
	perms       PermissionSource
	logger      *slog.Logger
}

// Config collects the gate's injected collaborators. PublicEndpoints is
// the surrounding application's allow-list (login, registration, health
// and the like); the gate never hard-codes entries.
type Config struct {
	PublicEndpoints []string
	Credentials     CredentialResolver
	Permissions     PermissionSource
	Logger          *slog.Logger
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	public := make(map[string]struct{}, len(cfg.PublicEndpoints))
	for _, e := range cfg.PublicEndpoints {
		public[e] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		public:      public,
		credentials: cfg.Credentials,
		perms:       cfg.Permissions,
		logger:      logger,
	}
}

// Evaluate runs the full state machine for one request. Every branch is
// total: the result is always exactly one of GRANTED or DENIED.
func (g *Gate) Evaluate(ctx context.Context, req Request) Decision {
	if _, ok := g.public[req.Endpoint]; ok {
		return public()
	}

	actor, tokenPerms, reason := g.resolveCredential(ctx, req)
	if reason != "" {
		return denied(reason, nil)
	}
	if actor == nil {
		// Anonymous on a protected endpoint is always an explicit
		// denial, never a skipped check.
		return denied(shared.CodeAuthRequired, nil)
	}
	if !actor.Active || actor.Locked {
		return denied(shared.CodeAuthInvalid, actor)
	}

	grants, err := g.perms.EffectivePermissions(ctx, actor.ID)
	if err != nil {
		// A store outage is a failed request, not a caller error: the
		// ledger must let an operator tell the two apart.
		g.logger.Error("resolve effective permissions", slog.Int64("actor_id", actor.ID), slog.Any("error", err))
		return denied(shared.CodeStoreUnavailable, actor)
	}
	if tokenPerms != nil {
		// The token can never do more than its issuer can right now:
		// a role revocation retroactively narrows the token.
		grants = rbac.Intersect(grants, tokenPerms)
	}

	if req.IdentityOnly {
		return granted(actor, grants)
	}

	requested := rbac.Permission{
		Resource: req.Resource,
		Action:   req.Action,
		Scope:    g.requiredScope(actor, req),
	}
	if !rbac.Matches(grants, requested) {
		return denied(shared.CodePermissionDenied, actor)
	}
	return granted(actor, grants)
}

// resolveCredential attempts exactly one resolution path based on which
// credential form is present. A missing or stale session resolves to
// anonymous; an unusable bearer token is a typed denial.
func (g *Gate) resolveCredential(ctx context.Context, req Request) (*rbac.Actor, []rbac.Permission, shared.ErrorCode) {
	switch {
	case req.BearerSecret != "":
		cred, err := g.credentials.ResolveToken(ctx, req.BearerSecret)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				return nil, nil, shared.CodeAuthInvalid
			}
			// Not a bad credential: the token store could not answer.
			g.logger.Error("resolve token", slog.Any("error", err))
			return nil, nil, shared.CodeStoreUnavailable
		}
		actor, err := g.perms.Actor(ctx, cred.IssuerID)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				// The issuer row is gone; the token is unusable.
				return nil, nil, shared.CodeAuthInvalid
			}
			g.logger.Error("resolve token issuer", slog.Int64("issuer_id", cred.IssuerID), slog.Any("error", err))
			return nil, nil, shared.CodeStoreUnavailable
		}
		perms := cred.Permissions
		if perms == nil {
			perms = []rbac.Permission{}
		}
		return actor, perms, ""

	case req.SessionID != "":
		actorID, ok, err := g.credentials.ResolveSession(ctx, req.SessionID)
		if err != nil {
			g.logger.Error("resolve session", slog.Any("error", err))
			return nil, nil, shared.CodeStoreUnavailable
		}
		if !ok {
			// Stale or anonymous session: the caller simply has no
			// credential.
			return nil, nil, ""
		}
		actor, err := g.perms.Actor(ctx, actorID)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				return nil, nil, ""
			}
			g.logger.Error("resolve session actor", slog.Int64("actor_id", actorID), slog.Any("error", err))
			return nil, nil, shared.CodeStoreUnavailable
		}
		return actor, nil, ""
	}
	return nil, nil, ""
}

// requiredScope picks the narrowest scope the request's data actually
// needs. Without a record or an explicit caller hint the gate fails
// closed and demands an "all" grant.
func (g *Gate) requiredScope(actor *rbac.Actor, req Request) rbac.Scope {
	if req.Record != nil {
		return rbac.RequiredScope(actor, req.Record)
	}
	if req.RequiredScope != "" {
		return req.RequiredScope
	}
	return rbac.ScopeAll
}
