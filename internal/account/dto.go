// AngelaMos | 2026
// dto.go

package account

import (
	"time"
)

type AccountResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	Role          string    `json:"role"`
	Coins         int64     `json:"coins"`
	Available     bool      `json:"available"`
	TotalCalls    int       `json:"total_calls"`
	TotalEarnings string    `json:"total_earnings"`
	Rating        float64   `json:"rating"`
	RatingCount   int       `json:"rating_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func ToAccountResponse(a *Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		Role:          a.Role,
		Coins:         a.Coins,
		Available:     a.Available,
		TotalCalls:    a.TotalCalls,
		TotalEarnings: a.TotalEarnings.StringFixed(2),
		Rating:        a.Rating(),
		RatingCount:   a.RatingCount,
		CreatedAt:     a.CreatedAt,
	}
}
