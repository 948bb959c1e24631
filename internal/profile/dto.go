// AngelaMos | 2026
// dto.go

package profile

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=100"`
	Bio         *string `json:"bio,omitempty"          validate:"omitempty,max=1000"`
	AvatarURL   *string `json:"avatar_url,omitempty"   validate:"omitempty,url,max=512"`
	CallPrice   *int    `json:"call_price,omitempty"   validate:"omitempty,min=1,max=5"`
}

type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

type ProfileResponse struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Bio         string  `json:"bio"`
	AvatarURL   string  `json:"avatar_url"`
	CallPrice   int     `json:"call_price"`
	Available   bool    `json:"available"`
	TotalCalls  int     `json:"total_calls"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"rating_count"`
}

type ListParams struct {
	Page     int
	PageSize int
	Search   string
	MaxPrice int
}

func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToProfileResponse(c *Card) ProfileResponse {
	return ProfileResponse{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Bio:         c.Bio,
		AvatarURL:   c.AvatarURL,
		CallPrice:   c.CallPrice,
		Available:   c.Available,
		TotalCalls:  c.TotalCalls,
		Rating:      c.Rating(),
		RatingCount: c.RatingCount,
	}
}

func ToProfileResponseList(cards []Card) []ProfileResponse {
	responses := make([]ProfileResponse, 0, len(cards))
	for i := range cards {
		responses = append(responses, ToProfileResponse(&cards[i]))
	}
	return responses
}
