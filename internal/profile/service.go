// AngelaMos | 2026
// service.go

package profile

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/whisperme/whisper-api/internal/core"
)

// AccountFlags is the account-side half of the availability gate.
type AccountFlags interface {
	SetAvailable(ctx context.Context, id string, available bool) error
}

// AccountFlagsFunc builds an AccountFlags bound to an open transaction.
type AccountFlagsFunc func(db core.DBTX) AccountFlags

type Service struct {
	db           *sqlx.DB
	repo         Repository
	accountFlags AccountFlagsFunc
}

func NewService(
	db *sqlx.DB,
	repo Repository,
	accountFlags AccountFlagsFunc,
) *Service {
	return &Service{db: db, repo: repo, accountFlags: accountFlags}
}

func (s *Service) Get(ctx context.Context, id string) (*Card, error) {
	return s.repo.GetCard(ctx, id)
}

func (s *Service) ListAvailable(
	ctx context.Context,
	params ListParams,
) ([]Card, int, error) {
	return s.repo.ListAvailable(ctx, params)
}

// UpdateMe edits presentation fields and the per-call price. Availability
// goes through SetAvailability.
func (s *Service) UpdateMe(
	ctx context.Context,
	accountID string,
	req UpdateProfileRequest,
) (*Card, error) {
	if accountID == "" {
		return nil, fmt.Errorf("update profile: %w", core.ErrUnauthorized)
	}

	profile, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		profile.DisplayName = *req.DisplayName
	}
	if req.Bio != nil {
		profile.Bio = *req.Bio
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = *req.AvatarURL
	}
	if req.CallPrice != nil {
		if *req.CallPrice < MinCallPrice || *req.CallPrice > MaxCallPrice {
			return nil, fmt.Errorf(
				"update profile: call price %d outside %d-%d: %w",
				*req.CallPrice, MinCallPrice, MaxCallPrice,
				core.ErrInvalidInput,
			)
		}
		profile.CallPrice = *req.CallPrice
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, err
	}

	return s.repo.GetCard(ctx, accountID)
}

// SetAvailability flips the profile and account flags together. The profile
// row is locked first, the same order call initiation uses.
func (s *Service) SetAvailability(
	ctx context.Context,
	accountID string,
	available bool,
) (*Card, error) {
	if accountID == "" {
		return nil, fmt.Errorf("set availability: %w", core.ErrUnauthorized)
	}

	err := core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		profiles := NewRepository(tx)
		if _, err := profiles.GetForUpdate(ctx, accountID); err != nil {
			return err
		}
		if err := profiles.SetAvailable(ctx, accountID, available); err != nil {
			return err
		}
		return s.accountFlags(tx).SetAvailable(ctx, accountID, available)
	})
	if err != nil {
		return nil, fmt.Errorf("set availability: %w", err)
	}

	return s.repo.GetCard(ctx, accountID)
}
