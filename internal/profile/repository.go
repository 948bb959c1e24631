// AngelaMos | 2026
// repository.go

package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/whisperme/whisper-api/internal/core"
)

type Repository interface {
	Create(ctx context.Context, profile *Profile) error
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetForUpdate(ctx context.Context, id string) (*Profile, error)
	GetCard(ctx context.Context, id string) (*Card, error)
	Update(ctx context.Context, profile *Profile) error
	SetAvailable(ctx context.Context, id string, available bool) error
	ListAvailable(ctx context.Context, params ListParams) ([]Card, int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const profileColumns = `
	p.id, p.display_name, p.bio, p.avatar_url, p.call_price, p.available,
	p.created_at, p.updated_at`

func (r *repository) Create(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO profiles (id, display_name, bio, avatar_url, call_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING available, created_at, updated_at`

	row := r.db.QueryRowxContext(ctx, query,
		profile.ID,
		profile.DisplayName,
		profile.Bio,
		profile.AvatarURL,
		profile.CallPrice,
	)

	if err := row.Scan(
		&profile.Available,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create profile: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create profile: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Profile, error) {
	return r.get(ctx, `SELECT `+profileColumns+` FROM profiles p WHERE p.id = $1`, id)
}

// GetForUpdate row-locks the profile for the rest of the transaction. Call
// initiation holds this lock so an availability flip and a new call cannot
// interleave.
func (r *repository) GetForUpdate(ctx context.Context, id string) (*Profile, error) {
	return r.get(
		ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.id = $1 FOR UPDATE`,
		id,
	)
}

func (r *repository) get(ctx context.Context, query, id string) (*Profile, error) {
	var profile Profile
	err := r.db.GetContext(ctx, &profile, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get profile: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

func (r *repository) GetCard(ctx context.Context, id string) (*Card, error) {
	query := `
		SELECT ` + profileColumns + `,
			a.total_calls, a.rating_total, a.rating_count
		FROM profiles p
		JOIN accounts a ON a.id = p.id
		WHERE p.id = $1`

	var card Card
	err := r.db.GetContext(ctx, &card, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get profile card: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile card: %w", err)
	}

	return &card, nil
}

func (r *repository) Update(ctx context.Context, profile *Profile) error {
	query := `
		UPDATE profiles
		SET display_name = $2, bio = $3, avatar_url = $4, call_price = $5,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.GetContext(ctx, &profile.UpdatedAt, query,
		profile.ID,
		profile.DisplayName,
		profile.Bio,
		profile.AvatarURL,
		profile.CallPrice,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update profile: %w", core.ErrNotFound)
	}
	if err != nil {
		if core.IsCheckViolation(err) {
			return fmt.Errorf("update profile: %w", core.ErrInvalidInput)
		}
		return fmt.Errorf("update profile: %w", err)
	}

	return nil
}

func (r *repository) SetAvailable(
	ctx context.Context,
	id string,
	available bool,
) error {
	query := `
		UPDATE profiles
		SET available = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, available)
	if err != nil {
		return fmt.Errorf("set profile availability: %w", err)
	}

	return core.RequireOneRow(result, "set profile availability")
}

func (r *repository) ListAvailable(
	ctx context.Context,
	params ListParams,
) ([]Card, int, error) {
	params.Normalize()

	where := `WHERE p.available = true`
	args := []any{}
	if params.Search != "" {
		args = append(args, "%"+params.Search+"%")
		where += fmt.Sprintf(" AND p.display_name ILIKE $%d", len(args))
	}
	if params.MaxPrice > 0 {
		args = append(args, params.MaxPrice)
		where += fmt.Sprintf(" AND p.call_price <= $%d", len(args))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM profiles p ` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}

	args = append(args, params.PageSize, params.Offset())
	query := fmt.Sprintf(`
		SELECT `+profileColumns+`,
			a.total_calls, a.rating_total, a.rating_count
		FROM profiles p
		JOIN accounts a ON a.id = p.id
		%s
		ORDER BY a.rating_count DESC, p.created_at ASC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	cards := []Card{}
	if err := r.db.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}

	return cards, total, nil
}
