// AngelaMos | 2026
// entity.go

package call

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusWaiting         Status = "waiting"
	StatusAccepted        Status = "accepted"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusCallerLeftEarly Status = "caller_left_early"
	StatusUserLeft        Status = "user_left"
	StatusTimeout         Status = "timeout"
	StatusRejected        Status = "rejected"
	StatusFailed          Status = "failed"
)

var transitions = map[Status][]Status{
	StatusWaiting:    {StatusAccepted, StatusTimeout, StatusRejected},
	StatusAccepted:   {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusCallerLeftEarly, StatusUserLeft, StatusFailed},
}

// Rank orders statuses so that a session never moves backwards.
func (s Status) Rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusAccepted:
		return 1
	case StatusInProgress:
		return 2
	default:
		return 3
	}
}

func (s Status) IsTerminal() bool {
	return s.Rank() == 3
}

// Ended reports whether the session went through End, as opposed to being
// refunded before any conversation happened.
func (s Status) Ended() bool {
	switch s {
	case StatusCompleted, StatusCallerLeftEarly, StatusUserLeft:
		return true
	}
	return false
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return next.Rank() > s.Rank()
		}
	}
	return false
}

type EndReason string

const (
	ReasonTimeUp        EndReason = "time_up"
	ReasonUserEnded     EndReason = "user_ended"
	ReasonUserLeft      EndReason = "user_left"
	ReasonInactive      EndReason = "inactive"
	ReasonChannelFailed EndReason = "channel_failed"
)

func (r EndReason) Valid() bool {
	switch r {
	case ReasonTimeUp, ReasonUserEnded, ReasonUserLeft, ReasonInactive:
		return true
	}
	return false
}

type Party string

const (
	PartyNone    Party = ""
	PartyCaller  Party = "caller"
	PartyWhisper Party = "whisper"
)

type Session struct {
	ID                  string     `db:"id"`
	CallerID            string     `db:"caller_id"`
	WhisperID           string     `db:"whisper_id"`
	Price               int64      `db:"price"`
	Status              Status     `db:"status"`
	EndReason           EndReason  `db:"end_reason"`
	CreatedAt           time.Time  `db:"created_at"`
	ExpiresAt           time.Time  `db:"expires_at"`
	AcceptedAt          *time.Time `db:"accepted_at"`
	WhisperJoinedAt     *time.Time `db:"whisper_joined_at"`
	BillableStartedAt   *time.Time `db:"billable_started_at"`
	LastHeartbeatAt     *time.Time `db:"last_heartbeat_at"`
	EndedAt             *time.Time `db:"ended_at"`
	CallDuration        int        `db:"call_duration"`
	Refunded            bool       `db:"refunded"`
	SettlementDue       bool       `db:"settlement_due"`
	EarningsTransferred bool       `db:"earnings_transferred"`
	LeftEarlyBy         Party      `db:"left_early_by"`
	RefundEligible      bool       `db:"refund_eligible"`
	Rating              *int       `db:"rating"`
	Comment             string     `db:"comment"`
	RatedBy             string     `db:"rated_by"`
	RatedAt             *time.Time `db:"rated_at"`
}

func (s *Session) IsParticipant(userID string) bool {
	return userID != "" && (userID == s.CallerID || userID == s.WhisperID)
}

func (s *Session) PartyOf(userID string) Party {
	switch userID {
	case s.CallerID:
		return PartyCaller
	case s.WhisperID:
		return PartyWhisper
	}
	return PartyNone
}

func (s *Session) PeerOf(userID string) string {
	if userID == s.CallerID {
		return s.WhisperID
	}
	return s.CallerID
}

// TimeLeft is the remaining billable time on the server clock, clamped to
// [0, duration]. Before media is confirmed the full duration remains.
func (s *Session) TimeLeft(now time.Time, duration time.Duration) time.Duration {
	if s.BillableStartedAt == nil {
		return duration
	}
	left := duration - now.Sub(*s.BillableStartedAt)
	switch {
	case left < 0:
		return 0
	case left > duration:
		return duration
	}
	return left
}

func (s *Session) advance(next Status) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", s.Status, next, ErrConflict)
	}
	s.Status = next
	return nil
}
