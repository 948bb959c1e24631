// AngelaMos | 2026
// entity.go

package profile

import (
	"time"
)

const (
	MinCallPrice     = 1
	MaxCallPrice     = 5
	DefaultCallPrice = 1
)

// Profile is the public face of an account. Its ID is the account ID.
type Profile struct {
	ID          string    `db:"id"`
	DisplayName string    `db:"display_name"`
	Bio         string    `db:"bio"`
	AvatarURL   string    `db:"avatar_url"`
	CallPrice   int       `db:"call_price"`
	Available   bool      `db:"available"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Card is a profile joined with the reputation fields kept on the account.
type Card struct {
	Profile
	TotalCalls  int `db:"total_calls"`
	RatingTotal int `db:"rating_total"`
	RatingCount int `db:"rating_count"`
}

func (c *Card) Rating() float64 {
	if c.RatingCount == 0 {
		return 0
	}
	return float64(c.RatingTotal) / float64(c.RatingCount)
}
