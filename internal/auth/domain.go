package auth

import (
	"time"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
)

// Account represents a credentialed actor login record.
type Account struct {
	ID           int64
	Handle       string
	PasswordHash string
	GroupID      *int64
	IsActive     bool
	IsLocked     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token is a delegated credential: a narrower, time-bounded permission
// subset an actor issues to itself or an automated client. Expiry is
// mandatory; the declared subset is checked against the issuer's
// effective permissions at issuance. The issuer's permissions may later
// shrink without revoking the token — the gate re-intersects on every
// request, so a shrink narrows but never widens what the token can do.
type Token struct {
	ID          int64
	IssuerID    int64
	Label       string
	SecretHash  []byte
	Permissions []rbac.Permission
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the token is past its mandatory expiry.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Revoked reports whether the token has been explicitly revoked.
func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}
