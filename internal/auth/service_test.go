package auth

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

type stubRepo struct {
	accounts map[string]*Account
	tokens   map[int64]*Token
	nextID   int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{accounts: map[string]*Account{}, tokens: map[int64]*Token{}, nextID: 1}
}

func (s *stubRepo) addAccount(handle, password string, active, locked bool) *Account {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	a := &Account{ID: s.nextID, Handle: handle, PasswordHash: string(hash), IsActive: active, IsLocked: locked}
	s.accounts[handle] = a
	s.nextID++
	return a
}

func (s *stubRepo) FindByHandle(ctx context.Context, handle string) (*Account, error) {
	a, ok := s.accounts[handle]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (s *stubRepo) CreateAccount(ctx context.Context, handle, passwordHash string) (*Account, error) {
	a := &Account{ID: s.nextID, Handle: handle, PasswordHash: passwordHash, IsActive: true}
	s.accounts[handle] = a
	s.nextID++
	return a, nil
}

func (s *stubRepo) ListTokens(ctx context.Context, issuerID int64) ([]*Token, error) {
	var out []*Token
	for _, t := range s.tokens {
		if t.IssuerID == issuerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, actorID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error { return nil }

func (s *stubRepo) CreateToken(ctx context.Context, token *Token) (int64, error) {
	id := s.nextID
	s.nextID++
	stored := *token
	stored.ID = id
	s.tokens[id] = &stored
	return id, nil
}

func (s *stubRepo) FindTokenBySecretHash(ctx context.Context, hash []byte) (*Token, error) {
	for _, t := range s.tokens {
		if bytes.Equal(t.SecretHash, hash) {
			return t, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) RevokeToken(ctx context.Context, id, issuerID int64) error {
	t, ok := s.tokens[id]
	if !ok || t.IssuerID != issuerID || t.RevokedAt != nil {
		return shared.ErrNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	return nil
}

type stubStore struct {
	perms map[int64][]rbac.Permission
}

func (s *stubStore) FindActor(ctx context.Context, id int64) (*rbac.Actor, error) {
	return &rbac.Actor{ID: id, Active: true}, nil
}

func (s *stubStore) EffectivePermissions(ctx context.Context, actorID int64) ([]rbac.Permission, error) {
	return s.perms[actorID], nil
}

func newService(repo *stubRepo, perms map[int64][]rbac.Permission) *Service {
	return NewService(repo, rbac.NewService(&stubStore{perms: perms}))
}

func TestAuthenticate(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount("ada", "correct-horse", true, false)
	repo.addAccount("locked", "correct-horse", true, true)
	repo.addAccount("inactive", "correct-horse", false, false)
	svc := newService(repo, nil)

	account, err := svc.Authenticate(context.Background(), "ada", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ada", account.Handle)

	cases := []struct {
		name, handle, password string
	}{
		{"wrong password", "ada", "battery-staple"},
		{"unknown handle", "ghost", "correct-horse"},
		{"locked account", "locked", "correct-horse"},
		{"inactive account", "inactive", "correct-horse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tc.handle, tc.password)
			assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		})
	}
}

func TestRegisterRejectsDuplicateHandle(t *testing.T) {
	repo := newStubRepo()
	repo.addAccount("ada", "correct-horse", true, false)
	svc := newService(repo, nil)

	_, err := svc.Register(context.Background(), "ada", "another-password")
	assert.ErrorIs(t, err, ErrHandleTaken)

	account, err := svc.Register(context.Background(), "grace", "strong-password")
	require.NoError(t, err)
	assert.True(t, account.IsActive)
	// Stored hash verifies against the original password.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("strong-password")))
}

func TestIssueTokenRequiresExpiry(t *testing.T) {
	svc := newService(newStubRepo(), nil)
	issuer := &rbac.Actor{ID: 1, Active: true}

	_, err := svc.IssueToken(context.Background(), issuer, "ci", []string{"article:read:all"}, 0)
	assert.ErrorIs(t, err, ErrExpiryRequired)
	_, err = svc.IssueToken(context.Background(), issuer, "ci", []string{"article:read:all"}, -time.Hour)
	assert.ErrorIs(t, err, ErrExpiryRequired)
}

func TestIssueTokenSubsetChecks(t *testing.T) {
	perms := map[int64][]rbac.Permission{
		1: rbac.MustParseSet("article:read:all", "article:write:own"),
	}
	svc := newService(newStubRepo(), perms)
	issuer := &rbac.Actor{ID: 1, Active: true}

	// Narrower scope than the grant is fine.
	issued, err := svc.IssueToken(context.Background(), issuer, "reader", []string{"article:read:own"}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Secret)
	assert.Len(t, issued.Token.Permissions, 1)

	// Wider scope than the grant is rejected at issuance.
	_, err = svc.IssueToken(context.Background(), issuer, "writer", []string{"article:write:all"}, time.Hour)
	assert.ErrorIs(t, err, ErrSubsetExceedsIssuer)

	// Malformed triples never reach the store.
	_, err = svc.IssueToken(context.Background(), issuer, "broken", []string{"article:read"}, time.Hour)
	assert.ErrorIs(t, err, rbac.ErrMalformedPermission)
}

func TestResolveTokenLifecycle(t *testing.T) {
	repo := newStubRepo()
	perms := map[int64][]rbac.Permission{
		1: rbac.MustParseSet("article:read:all"),
	}
	svc := newService(repo, perms)
	issuer := &rbac.Actor{ID: 1, Active: true}

	issued, err := svc.IssueToken(context.Background(), issuer, "ci", []string{"article:read:all"}, 50*time.Millisecond)
	require.NoError(t, err)

	resolved, err := svc.ResolveToken(context.Background(), issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, issued.Token.ID, resolved.ID)

	// Revocation takes effect on the next resolution.
	require.NoError(t, svc.RevokeToken(context.Background(), issued.Token.ID, issuer.ID))
	_, err = svc.ResolveToken(context.Background(), issued.Secret)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// A second revocation, or one by a different actor, misses.
	assert.ErrorIs(t, svc.RevokeToken(context.Background(), issued.Token.ID, issuer.ID), shared.ErrNotFound)
	assert.ErrorIs(t, svc.RevokeToken(context.Background(), issued.Token.ID, 99), shared.ErrNotFound)
}

func TestResolveTokenExpired(t *testing.T) {
	repo := newStubRepo()
	perms := map[int64][]rbac.Permission{1: rbac.MustParseSet("article:read:all")}
	svc := newService(repo, perms)
	issuer := &rbac.Actor{ID: 1, Active: true}

	issued, err := svc.IssueToken(context.Background(), issuer, "short", []string{"article:read:all"}, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = svc.ResolveToken(context.Background(), issued.Secret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestResolveTokenUnknownSecret(t *testing.T) {
	svc := newService(newStubRepo(), nil)
	_, err := svc.ResolveToken(context.Background(), "never-issued")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
