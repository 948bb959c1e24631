// AngelaMos | 2026
// events.go

package events

import (
	"context"
	"time"
)

type Type string

const (
	CallInitiated    Type = "call.initiated"
	CallAccepted     Type = "call.accepted"
	CallRejected     Type = "call.rejected"
	CallTimeout      Type = "call.timeout"
	CallConnected    Type = "call.connected"
	CallEnded        Type = "call.ended"
	CallFlagged      Type = "call.flagged"
	CallFailed       Type = "call.failed"
	CallSettled      Type = "call.settled"
	CallRefunded     Type = "call.refunded"
	CallRated        Type = "call.rated"
	PaymentCompleted Type = "payment.completed"
)

// Event is the lifecycle notification consumed by payout and admin workers.
// The routing key is Type.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	CallerID   string    `json:"caller_id,omitempty"`
	WhisperID  string    `json:"whisper_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event. It is used when the broker is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
