package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

var (
	// ErrTokenExpired indicates a presented token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenRevoked indicates a presented token that was revoked.
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrExpiryRequired indicates a token issue request without a lifetime.
	ErrExpiryRequired = errors.New("auth: token expiry is mandatory")
	// ErrSubsetExceedsIssuer indicates a requested token subset wider
	// than the issuer's effective permissions at issuance time.
	ErrSubsetExceedsIssuer = errors.New("auth: token permissions exceed issuer grants")
	// ErrHandleTaken indicates a registration attempt with a handle
	// that already exists.
	ErrHandleTaken = errors.New("auth: handle already registered")
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByHandle(ctx context.Context, handle string) (*Account, error)
	CreateAccount(ctx context.Context, handle, passwordHash string) (*Account, error)
	ListTokens(ctx context.Context, issuerID int64) ([]*Token, error)
	CreateSession(ctx context.Context, id string, actorID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	CreateToken(ctx context.Context, token *Token) (int64, error)
	FindTokenBySecretHash(ctx context.Context, hash []byte) (*Token, error)
	RevokeToken(ctx context.Context, id, issuerID int64) error
}

// Service wraps authentication and delegation business rules.
type Service struct {
	repo  Repository
	perms *rbac.Service
}

// NewService constructs a new Service.
func NewService(repo Repository, perms *rbac.Service) *Service {
	return &Service{repo: repo, perms: perms}
}

// Authenticate validates handle/password credentials.
func (s *Service) Authenticate(ctx context.Context, handle, password string) (*Account, error) {
	account, err := s.repo.FindByHandle(ctx, handle)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !account.IsActive || account.IsLocked {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return account, nil
}

// Register creates a new account with a hashed password. New accounts
// start active, unlocked, and with no roles; an administrator grants
// access separately.
func (s *Service) Register(ctx context.Context, handle, password string) (*Account, error) {
	if _, err := s.repo.FindByHandle(ctx, handle); err == nil {
		return nil, ErrHandleTaken
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateAccount(ctx, handle, string(hash))
}

// ListTokens returns the issuer's delegated tokens, newest first.
func (s *Service) ListTokens(ctx context.Context, issuerID int64) ([]*Token, error) {
	return s.repo.ListTokens(ctx, issuerID)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, actorID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, actorID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// IssuedToken pairs a stored token with its plaintext secret, returned
// exactly once at issuance.
type IssuedToken struct {
	Token  *Token
	Secret string
}

// IssueToken mints a delegated token for the issuer. The declared
// permission subset must be covered by the issuer's effective
// permissions right now; ttl must be positive.
func (s *Service) IssueToken(ctx context.Context, issuer *rbac.Actor, label string, subset []string, ttl time.Duration) (*IssuedToken, error) {
	if ttl <= 0 {
		return nil, ErrExpiryRequired
	}
	declared, err := rbac.ParseSet(subset)
	if err != nil {
		return nil, err
	}
	granted, err := s.perms.EffectivePermissions(ctx, issuer.ID)
	if err != nil {
		return nil, err
	}
	if !rbac.Subset(granted, declared) {
		return nil, ErrSubsetExceedsIssuer
	}

	secret := uuid.NewString()
	hash := hashSecret(secret)
	token := &Token{
		IssuerID:    issuer.ID,
		Label:       label,
		SecretHash:  hash,
		Permissions: declared,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}
	id, err := s.repo.CreateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	token.ID = id
	return &IssuedToken{Token: token, Secret: secret}, nil
}

// ResolveToken looks up a presented bearer secret. Expired and revoked
// tokens are reported as such so the gate can distinguish AUTH_INVALID
// from a simple miss.
func (s *Service) ResolveToken(ctx context.Context, secret string) (*Token, error) {
	token, err := s.repo.FindTokenBySecretHash(ctx, hashSecret(secret))
	if err != nil {
		return nil, err
	}
	if token.Revoked() {
		return nil, ErrTokenRevoked
	}
	if token.Expired(time.Now().UTC()) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// RevokeToken revokes a token owned by the given issuer.
func (s *Service) RevokeToken(ctx context.Context, id, issuerID int64) error {
	return s.repo.RevokeToken(ctx, id, issuerID)
}

func hashSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
