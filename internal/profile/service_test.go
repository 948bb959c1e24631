// AngelaMos | 2026
// service_test.go

package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperme/whisper-api/internal/core"
)

type accountFlags struct {
	db core.DBTX
}

func (a accountFlags) SetAvailable(ctx context.Context, id string, available bool) error {
	_, err := a.db.ExecContext(ctx, `UPDATE accounts SET available = $2 WHERE id = $1`, id, available)
	return err
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sdb := sqlx.NewDb(db, "pgx")
	svc := NewService(sdb, NewRepository(sdb), func(tx core.DBTX) AccountFlags {
		return accountFlags{db: tx}
	})
	return svc, mock
}

var profileCols = []string{
	"id", "display_name", "bio", "avatar_url", "call_price", "available",
	"created_at", "updated_at",
}

func profileRow(available bool) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(profileCols).
		AddRow("w-1", "Wren", "", "", 2, available, now, now)
}

func cardRow(available bool) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(append(profileCols, "total_calls", "rating_total", "rating_count")).
		AddRow("w-1", "Wren", "", "", 2, available, now, now, 4, 18, 4)
}

func TestSetAvailabilityWritesBothCopies(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM profiles p WHERE p.id = \$1 FOR UPDATE`).
		WithArgs("w-1").
		WillReturnRows(profileRow(false))
	mock.ExpectExec(`UPDATE profiles\s+SET available`).
		WithArgs("w-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts SET available`).
		WithArgs("w-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM profiles p\s+JOIN accounts a`).
		WithArgs("w-1").
		WillReturnRows(cardRow(true))

	card, err := svc.SetAvailability(context.Background(), "w-1", true)

	require.NoError(t, err)
	assert.True(t, card.Available)
	assert.InDelta(t, 4.5, card.Rating(), 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAvailabilityRollsBackProfileOnAccountFailure(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("w-1").
		WillReturnRows(profileRow(true))
	mock.ExpectExec(`UPDATE profiles\s+SET available`).
		WithArgs("w-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts SET available`).
		WithArgs("w-1", false).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := svc.SetAvailability(context.Background(), "w-1", false)

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAvailabilityUnknownProfile(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(profileCols))
	mock.ExpectRollback()

	_, err := svc.SetAvailability(context.Background(), "nobody", true)

	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMeRejectsPriceOutOfRange(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(`FROM profiles p WHERE p.id = \$1`).
		WithArgs("w-1").
		WillReturnRows(profileRow(true))

	price := MaxCallPrice + 1
	_, err := svc.UpdateMe(context.Background(), "w-1", UpdateProfileRequest{CallPrice: &price})

	require.ErrorIs(t, err, core.ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.UpdateMe(context.Background(), "", UpdateProfileRequest{})
	require.ErrorIs(t, err, core.ErrUnauthorized)
}
