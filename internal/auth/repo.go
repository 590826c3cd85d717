package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/rbac"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByHandle fetches an account by its unique handle.
func (r *PGRepository) FindByHandle(ctx context.Context, handle string) (*Account, error) {
	const query = `
		SELECT id, handle, password_hash, group_id, is_active, is_locked, created_at, updated_at
		FROM actors WHERE handle = $1`
	var a Account
	err := r.pool.QueryRow(ctx, query, handle).Scan(
		&a.ID, &a.Handle, &a.PasswordHash, &a.GroupID, &a.IsActive, &a.IsLocked, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new actor row.
func (r *PGRepository) CreateAccount(ctx context.Context, handle, passwordHash string) (*Account, error) {
	const query = `
		INSERT INTO actors (handle, password_hash, is_active, is_locked, created_at, updated_at)
		VALUES ($1, $2, TRUE, FALSE, NOW(), NOW())
		RETURNING id, handle, password_hash, group_id, is_active, is_locked, created_at, updated_at`
	var a Account
	err := r.pool.QueryRow(ctx, query, handle, passwordHash).Scan(
		&a.ID, &a.Handle, &a.PasswordHash, &a.GroupID, &a.IsActive, &a.IsLocked, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListTokens returns the issuer's delegated tokens, newest first.
func (r *PGRepository) ListTokens(ctx context.Context, issuerID int64) ([]*Token, error) {
	const query = `
		SELECT id, issuer_id, label, secret_hash, permissions, expires_at, revoked_at, created_at
		FROM delegated_tokens WHERE issuer_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, issuerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []*Token
	for rows.Next() {
		var (
			t     Token
			perms []string
		)
		if err := rows.Scan(&t.ID, &t.IssuerID, &t.Label, &t.SecretHash, &perms, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := rbac.ParseSet(perms)
		if err != nil {
			return nil, err
		}
		t.Permissions = parsed
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// CreateSession persists a new login session for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, actorID int64, expiresAt time.Time, ip, ua string) error {
	const query = `
		INSERT INTO sessions (id, actor_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''))`
	_, err := r.pool.Exec(ctx, query, id, actorID, expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// CreateToken stores a delegated token and returns its id.
func (r *PGRepository) CreateToken(ctx context.Context, token *Token) (int64, error) {
	perms := make([]string, 0, len(token.Permissions))
	for _, p := range token.Permissions {
		perms = append(perms, p.String())
	}
	const query = `
		INSERT INTO delegated_tokens (issuer_id, label, secret_hash, permissions, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, query, token.IssuerID, token.Label, token.SecretHash, perms, token.ExpiresAt).Scan(&id)
	return id, err
}

// FindTokenBySecretHash fetches a token by the hash of its secret.
func (r *PGRepository) FindTokenBySecretHash(ctx context.Context, hash []byte) (*Token, error) {
	const query = `
		SELECT id, issuer_id, label, secret_hash, permissions, expires_at, revoked_at, created_at
		FROM delegated_tokens WHERE secret_hash = $1`
	var (
		t     Token
		perms []string
	)
	err := r.pool.QueryRow(ctx, query, hash).Scan(
		&t.ID, &t.IssuerID, &t.Label, &t.SecretHash, &perms, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	parsed, err := rbac.ParseSet(perms)
	if err != nil {
		return nil, err
	}
	t.Permissions = parsed
	return &t, nil
}

// RevokeToken marks a token revoked; only its issuer may do so.
func (r *PGRepository) RevokeToken(ctx context.Context, id, issuerID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE delegated_tokens SET revoked_at = NOW() WHERE id = $1 AND issuer_id = $2 AND revoked_at IS NULL`,
		id, issuerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
