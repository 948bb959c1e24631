// AngelaMos | 2026
// store.go

package payment

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/whisperme/whisper-api/internal/account"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/ledger"
)

type Accounts interface {
	Credit(ctx context.Context, id string, amount int64) error
}

type Ledger interface {
	Append(ctx context.Context, tx *ledger.Transaction) error
}

type Repos struct {
	Payments Repository
	Accounts Accounts
	Ledger   Ledger
}

type Store interface {
	InTx(ctx context.Context, fn func(r Repos) error) error
	Payments() Repository
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
			Payments: NewRepository(tx),
			Accounts: account.NewRepository(tx),
			Ledger:   ledger.NewRepository(tx),
		})
	})
}

func (s *pgStore) Payments() Repository {
	return NewRepository(s.db)
}
