// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/whisperme/whisper-api/internal/core"
)

// Repository mutates balances and counters only through relative UPDATEs
// (coins = coins - n), never by writing back a value read earlier.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Debit(ctx context.Context, id string, amount int64) error
	Credit(ctx context.Context, id string, amount int64) error
	SetAvailable(ctx context.Context, id string, available bool) error
	RecordEarning(ctx context.Context, id string, amount decimal.Decimal) error
	AddRating(ctx context.Context, id string, stars int) error
	IncrementTokenVersion(ctx context.Context, id string) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const accountColumns = `
	id, email, password_hash, display_name, role, coins, available,
	total_calls, total_earnings, rating_total, rating_count, token_version,
	created_at, updated_at`

func (r *repository) Create(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (id, email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING coins, total_earnings, token_version, created_at, updated_at`

	row := r.db.QueryRowxContext(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		account.Role,
	)

	err := row.Scan(
		&account.Coins,
		&account.TotalEarnings,
		&account.TokenVersion,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var account Account
	err := r.db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &account, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	var account Account
	err := r.db.GetContext(ctx, &account, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}

	return &account, nil
}

// Debit removes amount coins only if the balance covers it. The check and the
// write are one statement, so two concurrent debits cannot both pass.
func (r *repository) Debit(ctx context.Context, id string, amount int64) error {
	query := `
		UPDATE accounts
		SET coins = coins - $2, updated_at = NOW()
		WHERE id = $1 AND coins >= $2`

	result, err := r.db.ExecContext(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}

	if rows == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("debit account: %w", ErrInsufficientFunds)
	}

	return nil
}

func (r *repository) Credit(ctx context.Context, id string, amount int64) error {
	query := `
		UPDATE accounts
		SET coins = coins + $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}

	return core.RequireOneRow(result, "credit account")
}

func (r *repository) SetAvailable(
	ctx context.Context,
	id string,
	available bool,
) error {
	query := `
		UPDATE accounts
		SET available = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, available)
	if err != nil {
		return fmt.Errorf("set account availability: %w", err)
	}

	return core.RequireOneRow(result, "set account availability")
}

func (r *repository) RecordEarning(
	ctx context.Context,
	id string,
	amount decimal.Decimal,
) error {
	query := `
		UPDATE accounts
		SET total_earnings = total_earnings + $2,
		    total_calls = total_calls + 1,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("record earning: %w", err)
	}

	return core.RequireOneRow(result, "record earning")
}

func (r *repository) AddRating(ctx context.Context, id string, stars int) error {
	query := `
		UPDATE accounts
		SET rating_total = rating_total + $2,
		    rating_count = rating_count + 1,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, stars)
	if err != nil {
		return fmt.Errorf("add rating: %w", err)
	}

	return core.RequireOneRow(result, "add rating")
}

func (r *repository) IncrementTokenVersion(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment token version: %w", err)
	}

	return core.RequireOneRow(result, "increment token version")
}
