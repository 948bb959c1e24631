// AngelaMos | 2026
// entity.go

package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypePurchase   TransactionType = "purchase"
	TypeCallHeld   TransactionType = "call_held"
	TypeCallCharge TransactionType = "call_charge"
	TypeRefund     TransactionType = "refund"
	TypePayout     TransactionType = "payout"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only coin movement. Amount is always positive;
// Type says which way it went.
type Transaction struct {
	ID        string            `db:"id"`
	UserID    string            `db:"user_id"`
	Type      TransactionType   `db:"type"`
	Amount    int64             `db:"amount"`
	SessionID *string           `db:"session_id"`
	Reference *string           `db:"reference"`
	Status    TransactionStatus `db:"status"`
	CreatedAt time.Time         `db:"created_at"`
}

type EarningStatus string

const (
	EarningPending  EarningStatus = "pending"
	EarningPaid     EarningStatus = "paid"
	EarningWithheld EarningStatus = "withheld"
)

// Earning records what a whisper is owed for one settled session. At most
// one exists per session.
type Earning struct {
	ID         string          `db:"id"`
	WhisperID  string          `db:"whisper_id"`
	SessionID  string          `db:"session_id"`
	Amount     decimal.Decimal `db:"amount"`
	Status     EarningStatus   `db:"status"`
	PayoutDate time.Time       `db:"payout_date"`
	CreatedAt  time.Time       `db:"created_at"`
}
