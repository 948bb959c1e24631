// AngelaMos | 2026
// entity.go

package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient coin balance")

type Account struct {
	ID            string          `db:"id"`
	Email         string          `db:"email"`
	PasswordHash  string          `db:"password_hash"`
	DisplayName   string          `db:"display_name"`
	Role          string          `db:"role"`
	Coins         int64           `db:"coins"`
	Available     bool            `db:"available"`
	TotalCalls    int             `db:"total_calls"`
	TotalEarnings decimal.Decimal `db:"total_earnings"`
	RatingTotal   int             `db:"rating_total"`
	RatingCount   int             `db:"rating_count"`
	TokenVersion  int             `db:"token_version"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Rating is the mean star rating received from callers, 0 when unrated.
func (a *Account) Rating() float64 {
	if a.RatingCount == 0 {
		return 0
	}
	return float64(a.RatingTotal) / float64(a.RatingCount)
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
