package gate

import (
	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Source identifies the transport a request arrived on.
type Source string

const (
	// SourceHTTP marks JSON API requests.
	SourceHTTP Source = "http"
	// SourceForm marks browser form posts.
	SourceForm Source = "form"
	// SourceStream marks long-lived streaming connections.
	SourceStream Source = "stream"
)

// Request carries everything the gate needs to decide one inbound call.
type Request struct {
	Source   Source
	Endpoint string

	// Resource and Action name the operation being attempted. Ignored
	// for public endpoints.
	Resource string
	Action   string

	// Record, when present, is the target the operation touches; the
	// gate resolves the required scope from its ownership fields. When
	// absent, RequiredScope is used if set, otherwise the gate fails
	// closed and requires an "all" grant.
	Record        rbac.OwnedRecord
	RequiredScope rbac.Scope

	// IdentityOnly stops after credential resolution: the caller must
	// be an identified, usable actor, but no permission is demanded.
	// Self-service surfaces such as delegated token management use it.
	IdentityOnly bool

	// At most one credential form is resolved: a bearer secret wins
	// over a session id when both are present.
	SessionID    string
	BearerSecret string
}

// Decision is the gate's terminal verdict. Every evaluation ends in
// exactly one of Granted or Denied; there is no third state.
type Decision struct {
	Granted bool
	// Public marks requests admitted by the allow-list without a
	// permission check.
	Public bool
	// Actor is the resolved identity, nil for anonymous outcomes.
	Actor *rbac.Actor
	// Permissions is the effective grant set the check ran against.
	// For delegated tokens this is the issuer's current permissions
	// intersected with the token's declared subset.
	Permissions []rbac.Permission
	// Reason is set on denial only.
	Reason shared.ErrorCode
}

func granted(actor *rbac.Actor, perms []rbac.Permission) Decision {
	return Decision{Granted: true, Actor: actor, Permissions: perms}
}

func public() Decision {
	return Decision{Granted: true, Public: true}
}

func denied(code shared.ErrorCode, actor *rbac.Actor) Decision {
	return Decision{Actor: actor, Reason: code}
}
