// AngelaMos | 2026
// store.go

package call

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/whisperme/whisper-api/internal/account"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/ledger"
	"github.com/whisperme/whisper-api/internal/profile"
)

type SessionRepository interface {
	Insert(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetForUpdate(ctx context.Context, id string) (*Session, error)
	// Update writes every mutable column, but only while the stored status
	// still equals expected. A moved row yields ErrConflict.
	Update(ctx context.Context, session *Session, expected Status) error
	CountWaiting(ctx context.Context, whisperID string, now time.Time) (int, error)
	ListPending(ctx context.Context, whisperID string, now time.Time) ([]Session, error)
	ListByParticipant(
		ctx context.Context,
		userID string,
		limit, offset int,
	) ([]Session, int, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]string, error)
	ListStale(ctx context.Context, heartbeatBefore time.Time, limit int) ([]string, error)
	ListUnsettled(ctx context.Context, limit int) ([]string, error)
	ListFlagged(ctx context.Context, limit, offset int) ([]Session, int, error)
}

type Accounts interface {
	Debit(ctx context.Context, id string, amount int64) error
	Credit(ctx context.Context, id string, amount int64) error
	RecordEarning(ctx context.Context, id string, amount decimal.Decimal) error
	AddRating(ctx context.Context, id string, stars int) error
}

type Profiles interface {
	GetForUpdate(ctx context.Context, id string) (*profile.Profile, error)
}

type Ledger interface {
	Append(ctx context.Context, tx *ledger.Transaction) error
	CreateEarning(ctx context.Context, earning *ledger.Earning) error
}

// Repos are the repositories bound to one open transaction.
type Repos struct {
	Sessions SessionRepository
	Accounts Accounts
	Profiles Profiles
	Ledger   Ledger
}

// Store is the Manager's only path to persistent state. Everything written
// through one InTx call commits or rolls back together.
type Store interface {
	InTx(ctx context.Context, fn func(r Repos) error) error
	Sessions() SessionRepository
}

type pgStore struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) InTx(ctx context.Context, fn func(r Repos) error) error {
	return core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(Repos{
			Sessions: NewRepository(tx),
			Accounts: account.NewRepository(tx),
			Profiles: profile.NewRepository(tx),
			Ledger:   ledger.NewRepository(tx),
		})
	})
}

func (s *pgStore) Sessions() SessionRepository {
	return NewRepository(s.db)
}
