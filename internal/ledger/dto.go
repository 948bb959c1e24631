// AngelaMos | 2026
// dto.go

package ledger

import (
	"time"
)

type ListParams struct {
	Page     int
	PageSize int
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

type TransactionResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	SessionID *string   `json:"session_id,omitempty"`
	Reference *string   `json:"reference,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type EarningResponse struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Amount     string    `json:"amount"`
	Status     string    `json:"status"`
	PayoutDate time.Time `json:"payout_date"`
	CreatedAt  time.Time `json:"created_at"`
}

func ToTransactionResponseList(txs []Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, TransactionResponse{
			ID:        t.ID,
			Type:      string(t.Type),
			Amount:    t.Amount,
			SessionID: t.SessionID,
			Reference: t.Reference,
			Status:    string(t.Status),
			CreatedAt: t.CreatedAt,
		})
	}
	return out
}

func ToEarningResponseList(earnings []Earning) []EarningResponse {
	out := make([]EarningResponse, 0, len(earnings))
	for _, e := range earnings {
		out = append(out, EarningResponse{
			ID:         e.ID,
			SessionID:  e.SessionID,
			Amount:     e.Amount.StringFixed(2),
			Status:     string(e.Status),
			PayoutDate: e.PayoutDate,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
