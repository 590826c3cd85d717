package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/gate"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// CredentialAdapter bridges the gate's credential resolution onto the
// session store and the delegated token service.
type CredentialAdapter struct {
	sessions *shared.SessionManager
	tokens   *auth.Service
}

// NewCredentialAdapter constructs a CredentialAdapter.
func NewCredentialAdapter(sessions *shared.SessionManager, tokens *auth.Service) *CredentialAdapter {
	return &CredentialAdapter{sessions: sessions, tokens: tokens}
}

// ResolveSession maps a session id to its bound actor. Unknown and
// expired sessions come back as fresh anonymous ones from the store, so
// both collapse into ok=false rather than an error.
func (a *CredentialAdapter) ResolveSession(ctx context.Context, sessionID string) (int64, bool, error) {
	sess, err := a.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}
	if sess.IsNew() || sess.ActorID() == 0 {
		return 0, false, nil
	}
	return sess.ActorID(), true, nil
}

// ResolveToken maps a bearer secret to a token credential. Unknown,
// expired and revoked secrets all become gate.ErrInvalidToken; the gate
// does not care which, only that a credential was presented and is
// unusable.
func (a *CredentialAdapter) ResolveToken(ctx context.Context, secret string) (*gate.TokenCredential, error) {
	token, err := a.tokens.ResolveToken(ctx, secret)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) ||
			errors.Is(err, auth.ErrTokenExpired) ||
			errors.Is(err, auth.ErrTokenRevoked) {
			return nil, fmt.Errorf("%w: %w", gate.ErrInvalidToken, err)
		}
		return nil, err
	}
	return &gate.TokenCredential{IssuerID: token.IssuerID, Permissions: token.Permissions}, nil
}

var _ gate.CredentialResolver = (*CredentialAdapter)(nil)
