// AngelaMos | 2026
// service.go

package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/whisperme/whisper-api/internal/auth"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/ledger"
	"github.com/whisperme/whisper-api/internal/profile"
)

type Service struct {
	db     *sqlx.DB
	repo   Repository
	ledger ledger.Repository
}

func NewService(db *sqlx.DB, repo Repository, ledgerRepo ledger.Repository) *Service {
	return &Service{db: db, repo: repo, ledger: ledgerRepo}
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.AccountInfo, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toAccountInfo(account), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.AccountInfo, error) {
	account, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, err
	}

	return toAccountInfo(account), nil
}

// Create inserts the account and its unavailable default profile in one
// transaction; a half-registered account cannot exist.
func (s *Service) Create(
	ctx context.Context,
	email, passwordHash, displayName string,
) (*auth.AccountInfo, error) {
	account := &Account{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Role:         RoleUser,
	}

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := NewRepository(tx).Create(ctx, account); err != nil {
			return err
		}
		return profile.NewRepository(tx).Create(ctx, &profile.Profile{
			ID:          account.ID,
			DisplayName: displayName,
			CallPrice:   profile.DefaultCallPrice,
		})
	})
	if err != nil {
		return nil, err
	}

	return toAccountInfo(account), nil
}

func (s *Service) IncrementTokenVersion(
	ctx context.Context,
	accountID string,
) error {
	return s.repo.IncrementTokenVersion(ctx, accountID)
}

func (s *Service) GetMe(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	return s.repo.GetByID(ctx, accountID)
}

func (s *Service) Transactions(
	ctx context.Context,
	accountID string,
	params ledger.ListParams,
) ([]ledger.Transaction, int, error) {
	return s.ledger.ListTransactions(ctx, accountID, params)
}

func (s *Service) Earnings(
	ctx context.Context,
	accountID string,
	params ledger.ListParams,
) ([]ledger.Earning, int, error) {
	return s.ledger.ListEarnings(ctx, accountID, params)
}

func toAccountInfo(a *Account) *auth.AccountInfo {
	return &auth.AccountInfo{
		ID:           a.ID,
		Email:        a.Email,
		DisplayName:  a.DisplayName,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		TokenVersion: a.TokenVersion,
		Coins:        a.Coins,
		Available:    a.Available,
	}
}

var _ auth.AccountProvider = (*Service)(nil)
