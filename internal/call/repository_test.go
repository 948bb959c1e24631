// AngelaMos | 2026
// repository_test.go

package call

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperme/whisper-api/internal/core"
)

func newMockRepository(t *testing.T) (SessionRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestRepositoryGetForUpdate(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "caller_id", "whisper_id", "price", "status", "end_reason",
		"created_at", "expires_at", "billable_started_at", "rating",
	}).AddRow(
		"s-1", callerID, whisperID, int64(3), "in_progress", "",
		created, created.Add(2*time.Minute), created.Add(time.Minute), nil,
	)
	mock.ExpectQuery(`FROM call_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs("s-1").
		WillReturnRows(rows)

	s, err := repo.GetForUpdate(context.Background(), "s-1")

	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, int64(3), s.Price)
	require.NotNil(t, s.BillableStartedAt)
	assert.Nil(t, s.Rating)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`FROM call_sessions WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "nope")

	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateGuardsStatus(t *testing.T) {
	ctx := context.Background()
	s := &Session{ID: "s-1", Status: StatusCompleted, EndReason: ReasonUserEnded}

	t.Run("row moved", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(`UPDATE call_sessions SET .* WHERE id = \$1 AND status = \$2`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(ctx, s, StatusInProgress)

		require.ErrorIs(t, err, ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row updated", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(`UPDATE call_sessions SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, s, StatusInProgress))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositorySweepQueries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`status = 'waiting' AND expires_at <= \$1`).
		WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectQuery(`COALESCE\(last_heartbeat_at, accepted_at\) < \$1`).
		WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM call_sessions`).
		WithArgs(whisperID, now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	expired, err := repo.ListExpired(ctx, now, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, expired)

	stale, err := repo.ListStale(ctx, now, 50)
	require.NoError(t, err)
	assert.Empty(t, stale)

	waiting, err := repo.CountWaiting(ctx, whisperID, now)
	require.NoError(t, err)
	assert.Equal(t, 2, waiting)

	require.NoError(t, mock.ExpectationsWereMet())
}
