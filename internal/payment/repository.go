// AngelaMos | 2026
// repository.go

package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/whisperme/whisper-api/internal/core"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetForUpdate(ctx context.Context, id string) (*Payment, error)
	// Resolve moves a pending payment to status. A payment that is no
	// longer pending yields ErrConflict.
	Resolve(
		ctx context.Context,
		id string,
		status Status,
		providerRef string,
		at time.Time,
	) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const paymentColumns = `
	id, user_id, package_id, coins, amount, currency, status, provider_ref,
	created_at, completed_at`

func (r *repository) Create(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (
			id, user_id, package_id, coins, amount, currency, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.PackageID,
		p.Coins,
		p.Amount,
		p.Currency,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id string) (*Payment, error) {
	return r.get(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) get(ctx context.Context, query, id string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get payment: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return &p, nil
}

func (r *repository) Resolve(
	ctx context.Context,
	id string,
	status Status,
	providerRef string,
	at time.Time,
) error {
	query := `
		UPDATE payments
		SET status = $2, provider_ref = NULLIF($3, ''), completed_at = $4
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, status, providerRef, at)
	if err != nil {
		return fmt.Errorf("resolve payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve payment: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resolve payment: %w", core.ErrConflict)
	}

	return nil
}
