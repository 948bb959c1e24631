// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/whisperme/whisper-api/internal/core"
)

// RevokeScope selects which refresh tokens a revocation covers.
type RevokeScope int

const (
	// ScopeToken revokes a single token by id.
	ScopeToken RevokeScope = iota
	// ScopeFamily revokes every token rotated from the same login.
	ScopeFamily
	// ScopeAccount revokes every device the account is signed in on.
	ScopeAccount
)

func (s RevokeScope) column() string {
	switch s {
	case ScopeFamily:
		return "family_id"
	case ScopeAccount:
		return "account_id"
	default:
		return "id"
	}
}

type Repository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Rotate(ctx context.Context, id, replacedByID string) error
	Revoke(ctx context.Context, scope RevokeScope, id string) (int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const refreshTokenColumns = `
	id, account_id, token_hash, family_id, expires_at, created_at,
	is_used, used_at, revoked_at, replaced_by_id, user_agent, ip_address`

func (r *repository) Create(ctx context.Context, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, account_id, token_hash, family_id, expires_at,
			user_agent, ip_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	if err := r.db.GetContext(ctx, &token.CreatedAt, query,
		token.ID,
		token.AccountID,
		token.TokenHash,
		token.FamilyID,
		token.ExpiresAt,
		token.UserAgent,
		token.IPAddress,
	); err != nil {
		return fmt.Errorf("store refresh token for account %s: %w", token.AccountID, err)
	}

	return nil
}

func (r *repository) FindByHash(
	ctx context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, tokenHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

// Rotate marks a token used and links it to its replacement. Only unused
// tokens flip, so two refreshes racing on one token cannot both succeed.
func (r *repository) Rotate(
	ctx context.Context,
	id, replacedByID string,
) error {
	query := `
		UPDATE refresh_tokens
		SET is_used = true, used_at = NOW(), replaced_by_id = $2
		WHERE id = $1 AND is_used = false`

	result, err := r.db.ExecContext(ctx, query, id, replacedByID)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	return core.RequireOneRow(result, "rotate refresh token")
}

// Revoke stamps revoked_at on every live token in scope and reports how many
// it touched. Revoking a single token that is already gone is ErrNotFound.
func (r *repository) Revoke(
	ctx context.Context,
	scope RevokeScope,
	id string,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE ` + scope.column() + ` = $1 AND revoked_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens by %s: %w", scope.column(), err)
	}

	if scope == ScopeToken {
		if err := core.RequireOneRow(result, "revoke refresh token"); err != nil {
			return 0, err
		}
		return 1, nil
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens by %s: %w", scope.column(), err)
	}
	return n, nil
}
