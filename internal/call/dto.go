// AngelaMos | 2026
// dto.go

package call

import (
	"time"
)

type InitiateRequest struct {
	WhisperID string `json:"whisper_id" validate:"required,uuid"`
}

type EndRequest struct {
	Reason EndReason `json:"reason" validate:"required,oneof=time_up user_ended user_left inactive"`
}

type RatingRequest struct {
	Rating  int    `json:"rating"  validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=500"`
}

type SessionResponse struct {
	ID                string     `json:"id"`
	CallerID          string     `json:"caller_id"`
	WhisperID         string     `json:"whisper_id"`
	Price             int64      `json:"price"`
	Status            Status     `json:"status"`
	EndReason         EndReason  `json:"end_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	BillableStartedAt *time.Time `json:"billable_started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	TimeLeftSeconds   int        `json:"time_left_seconds"`
	CallDuration      int        `json:"call_duration"`
	SettlementDue     bool       `json:"settlement_due"`
	EarningsSettled   bool       `json:"earnings_settled"`
	Refunded          bool       `json:"refunded"`
	LeftEarlyBy       Party      `json:"left_early_by,omitempty"`
	RefundEligible    bool       `json:"refund_eligible"`
	Rating            *int       `json:"rating,omitempty"`
	Comment           string     `json:"comment,omitempty"`
}

func ToSessionResponse(s *Session, now time.Time, duration time.Duration) SessionResponse {
	left := duration
	if s.Status == StatusInProgress {
		left = s.TimeLeft(now, duration)
	} else if s.Status.IsTerminal() {
		left = 0
	}

	return SessionResponse{
		ID:                s.ID,
		CallerID:          s.CallerID,
		WhisperID:         s.WhisperID,
		Price:             s.Price,
		Status:            s.Status,
		EndReason:         s.EndReason,
		CreatedAt:         s.CreatedAt,
		ExpiresAt:         s.ExpiresAt,
		AcceptedAt:        s.AcceptedAt,
		BillableStartedAt: s.BillableStartedAt,
		EndedAt:           s.EndedAt,
		TimeLeftSeconds:   int(left / time.Second),
		CallDuration:      s.CallDuration,
		SettlementDue:     s.SettlementDue,
		EarningsSettled:   s.EarningsTransferred,
		Refunded:          s.Refunded,
		LeftEarlyBy:       s.LeftEarlyBy,
		RefundEligible:    s.RefundEligible,
		Rating:            s.Rating,
		Comment:           s.Comment,
	}
}
