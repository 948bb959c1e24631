// AngelaMos | 2026
// repository.go

package ledger

import (
	"context"
	"fmt"

	"github.com/whisperme/whisper-api/internal/core"
)

type Repository interface {
	Append(ctx context.Context, tx *Transaction) error
	CreateEarning(ctx context.Context, earning *Earning) error
	ListTransactions(
		ctx context.Context,
		userID string,
		params ListParams,
	) ([]Transaction, int, error)
	ListEarnings(
		ctx context.Context,
		whisperID string,
		params ListParams,
	) ([]Earning, int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Append(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, type, amount, session_id, reference, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.UserID,
		t.Type,
		t.Amount,
		t.SessionID,
		t.Reference,
		t.Status,
		t.CreatedAt,
	)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("append transaction: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("append transaction: %w", err)
	}

	return nil
}

// CreateEarning relies on the UNIQUE session_id constraint as the last line
// against a double settlement.
func (r *repository) CreateEarning(ctx context.Context, e *Earning) error {
	query := `
		INSERT INTO whisper_earnings (
			id, whisper_id, session_id, amount, status, payout_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.WhisperID,
		e.SessionID,
		e.Amount,
		e.Status,
		e.PayoutDate,
		e.CreatedAt,
	)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create earning: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create earning: %w", err)
	}

	return nil
}

func (r *repository) ListTransactions(
	ctx context.Context,
	userID string,
	params ListParams,
) ([]Transaction, int, error) {
	params.Normalize()

	var total int
	if err := r.db.GetContext(
		ctx,
		&total,
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1`,
		userID,
	); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	query := `
		SELECT id, user_id, type, amount, session_id, reference, status, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	txs := []Transaction{}
	if err := r.db.SelectContext(
		ctx,
		&txs,
		query,
		userID,
		params.PageSize,
		params.Offset(),
	); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	return txs, total, nil
}

func (r *repository) ListEarnings(
	ctx context.Context,
	whisperID string,
	params ListParams,
) ([]Earning, int, error) {
	params.Normalize()

	var total int
	if err := r.db.GetContext(
		ctx,
		&total,
		`SELECT COUNT(*) FROM whisper_earnings WHERE whisper_id = $1`,
		whisperID,
	); err != nil {
		return nil, 0, fmt.Errorf("count earnings: %w", err)
	}

	query := `
		SELECT id, whisper_id, session_id, amount, status, payout_date, created_at
		FROM whisper_earnings
		WHERE whisper_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	earnings := []Earning{}
	if err := r.db.SelectContext(
		ctx,
		&earnings,
		query,
		whisperID,
		params.PageSize,
		params.Offset(),
	); err != nil {
		return nil, 0, fmt.Errorf("list earnings: %w", err)
	}

	return earnings, total, nil
}
