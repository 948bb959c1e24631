// AngelaMos | 2026
// repository_test.go

package account

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperme/whisper-api/internal/core"
)

const accountID = "3f8e2a6c-1b4d-4e7f-9a2c-5d6e7f8a9b0c"

func newMockRepository(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("balance covers the amount", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(`SET coins = coins - \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND coins >= \$2`).
			WithArgs(accountID, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Debit(ctx, accountID, 3))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("balance too low", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(`SET coins = coins - \$2`).
			WithArgs(accountID, int64(30)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM accounts WHERE id = \$1`).
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "coins"}).AddRow(accountID, int64(2)))

		err := repo.Debit(ctx, accountID, 30)

		require.ErrorIs(t, err, ErrInsufficientFunds)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(`SET coins = coins - \$2`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM accounts WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		err := repo.Debit(ctx, accountID, 1)

		require.ErrorIs(t, err, core.ErrNotFound)
		assert.NotErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestCreditRequiresRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`SET coins = coins \+ \$2`).
		WithArgs(accountID, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Credit(context.Background(), accountID, 5)

	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEarning(t *testing.T) {
	repo, mock := newMockRepository(t)
	amount := decimal.RequireFromString("2.10")
	mock.ExpectExec(`SET total_earnings = total_earnings \+ \$2`).
		WithArgs(accountID, amount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordEarning(context.Background(), accountID, amount))
	require.NoError(t, mock.ExpectationsWereMet())
}
