// AngelaMos | 2026
// repository.go

package favorite

import (
	"context"
	"fmt"
	"time"

	"github.com/whisperme/whisper-api/internal/core"
)

type Favorite struct {
	WhisperID   string    `db:"whisper_id"`
	DisplayName string    `db:"display_name"`
	AvatarURL   string    `db:"avatar_url"`
	CallPrice   int       `db:"call_price"`
	Available   bool      `db:"available"`
	CreatedAt   time.Time `db:"created_at"`
}

type Repository interface {
	Add(ctx context.Context, userID, whisperID string) error
	Remove(ctx context.Context, userID, whisperID string) error
	List(ctx context.Context, userID string) ([]Favorite, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// Add is idempotent; favoriting twice leaves one row.
func (r *repository) Add(ctx context.Context, userID, whisperID string) error {
	query := `
		INSERT INTO favorites (user_id, whisper_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, whisper_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, userID, whisperID); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}

	return nil
}

func (r *repository) Remove(ctx context.Context, userID, whisperID string) error {
	query := `DELETE FROM favorites WHERE user_id = $1 AND whisper_id = $2`

	result, err := r.db.ExecContext(ctx, query, userID, whisperID)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}

	return core.RequireOneRow(result, "remove favorite")
}

func (r *repository) List(ctx context.Context, userID string) ([]Favorite, error) {
	query := `
		SELECT f.whisper_id, p.display_name, p.avatar_url, p.call_price,
		       p.available, f.created_at
		FROM favorites f
		JOIN profiles p ON p.id = f.whisper_id
		WHERE f.user_id = $1
		ORDER BY p.available DESC, f.created_at DESC`

	favorites := []Favorite{}
	if err := r.db.SelectContext(ctx, &favorites, query, userID); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}

	return favorites, nil
}
