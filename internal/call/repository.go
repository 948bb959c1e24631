// AngelaMos | 2026
// repository.go

package call

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/whisperme/whisper-api/internal/core"
)

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) SessionRepository {
	return &repository{db: db}
}

const sessionColumns = `
	id, caller_id, whisper_id, price, status, end_reason, created_at,
	expires_at, accepted_at, whisper_joined_at, billable_started_at,
	last_heartbeat_at, ended_at, call_duration, refunded, settlement_due,
	earnings_transferred, left_early_by, refund_eligible, rating, comment,
	rated_by, rated_at`

func (r *repository) Insert(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO call_sessions (
			id, caller_id, whisper_id, price, status, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.CallerID,
		s.WhisperID,
		s.Price,
		s.Status,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert call session: %w", err)
	}

	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM call_sessions WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id string) (*Session, error) {
	return r.get(
		ctx,
		`SELECT `+sessionColumns+` FROM call_sessions WHERE id = $1 FOR UPDATE`,
		id,
	)
}

func (r *repository) get(ctx context.Context, query, id string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get call session: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get call session: %w", err)
	}
	return &s, nil
}

func (r *repository) Update(ctx context.Context, s *Session, expected Status) error {
	query := `
		UPDATE call_sessions SET
			status = $3,
			end_reason = $4,
			accepted_at = $5,
			whisper_joined_at = $6,
			billable_started_at = $7,
			last_heartbeat_at = $8,
			ended_at = $9,
			call_duration = $10,
			refunded = $11,
			settlement_due = $12,
			earnings_transferred = $13,
			left_early_by = $14,
			refund_eligible = $15,
			rating = $16,
			comment = $17,
			rated_by = $18,
			rated_at = $19
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query,
		s.ID,
		expected,
		s.Status,
		s.EndReason,
		s.AcceptedAt,
		s.WhisperJoinedAt,
		s.BillableStartedAt,
		s.LastHeartbeatAt,
		s.EndedAt,
		s.CallDuration,
		s.Refunded,
		s.SettlementDue,
		s.EarningsTransferred,
		s.LeftEarlyBy,
		s.RefundEligible,
		s.Rating,
		s.Comment,
		s.RatedBy,
		s.RatedAt,
	)
	if err != nil {
		return fmt.Errorf("update call session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update call session: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update call session: status moved from %s: %w", expected, ErrConflict)
	}

	return nil
}

// CountWaiting ignores requests already past their expiry that the
// supervisor has not swept yet; they cannot be accepted anyway.
func (r *repository) CountWaiting(
	ctx context.Context,
	whisperID string,
	now time.Time,
) (int, error) {
	query := `
		SELECT COUNT(*) FROM call_sessions
		WHERE whisper_id = $1 AND status = 'waiting' AND expires_at > $2`

	var n int
	if err := r.db.GetContext(ctx, &n, query, whisperID, now); err != nil {
		return 0, fmt.Errorf("count waiting sessions: %w", err)
	}
	return n, nil
}

func (r *repository) ListPending(
	ctx context.Context,
	whisperID string,
	now time.Time,
) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM call_sessions
		WHERE whisper_id = $1 AND status = 'waiting' AND expires_at > $2
		ORDER BY created_at ASC`

	sessions := []Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, whisperID, now); err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	return sessions, nil
}

func (r *repository) ListByParticipant(
	ctx context.Context,
	userID string,
	limit, offset int,
) ([]Session, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM call_sessions
		WHERE caller_id = $1 OR whisper_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count call history: %w", err)
	}

	query := `
		SELECT ` + sessionColumns + ` FROM call_sessions
		WHERE caller_id = $1 OR whisper_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	sessions := []Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list call history: %w", err)
	}
	return sessions, total, nil
}

func (r *repository) ListExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]string, error) {
	return r.ids(ctx, "list expired sessions", `
		SELECT id FROM call_sessions
		WHERE status = 'waiting' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
}

func (r *repository) ListOverdue(
	ctx context.Context,
	startedBefore time.Time,
	limit int,
) ([]string, error) {
	return r.ids(ctx, "list overdue sessions", `
		SELECT id FROM call_sessions
		WHERE status = 'in_progress' AND billable_started_at <= $1
		ORDER BY billable_started_at
		LIMIT $2`, startedBefore, limit)
}

func (r *repository) ListStale(
	ctx context.Context,
	heartbeatBefore time.Time,
	limit int,
) ([]string, error) {
	return r.ids(ctx, "list stale sessions", `
		SELECT id FROM call_sessions
		WHERE status = 'in_progress'
		  AND COALESCE(last_heartbeat_at, accepted_at) < $1
		ORDER BY COALESCE(last_heartbeat_at, accepted_at)
		LIMIT $2`, heartbeatBefore, limit)
}

func (r *repository) ListUnsettled(ctx context.Context, limit int) ([]string, error) {
	return r.ids(ctx, "list unsettled sessions", `
		SELECT id FROM call_sessions
		WHERE settlement_due = true AND earnings_transferred = false
		ORDER BY ended_at
		LIMIT $1`, limit)
}

func (r *repository) ids(
	ctx context.Context,
	op, query string,
	args ...any,
) ([]string, error) {
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (r *repository) ListFlagged(
	ctx context.Context,
	limit, offset int,
) ([]Session, int, error) {
	where := `WHERE left_early_by <> '' AND refunded = false`

	var total int
	if err := r.db.GetContext(
		ctx,
		&total,
		`SELECT COUNT(*) FROM call_sessions `+where,
	); err != nil {
		return nil, 0, fmt.Errorf("count flagged sessions: %w", err)
	}

	query := `SELECT ` + sessionColumns + ` FROM call_sessions ` + where + `
		ORDER BY ended_at DESC
		LIMIT $1 OFFSET $2`

	sessions := []Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list flagged sessions: %w", err)
	}
	return sessions, total, nil
}
