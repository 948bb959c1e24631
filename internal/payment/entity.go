// AngelaMos | 2026
// entity.go

package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownPackage   = errors.New("unknown coin package")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrAmountMismatch   = errors.New("paid amount does not match payment")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Package is a purchasable bundle of coins. Price is coins times the
// configured coin price.
type Package struct {
	ID       string          `json:"id"`
	Coins    int64           `json:"coins"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

var packageCoins = []struct {
	id    string
	coins int64
}{
	{"coins_5", 5},
	{"coins_10", 10},
	{"coins_25", 25},
}

func Catalog(coinPrice decimal.Decimal, currency string) []Package {
	out := make([]Package, 0, len(packageCoins))
	for _, p := range packageCoins {
		out = append(out, Package{
			ID:       p.id,
			Coins:    p.coins,
			Price:    coinPrice.Mul(decimal.NewFromInt(p.coins)),
			Currency: currency,
		})
	}
	return out
}

type Payment struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	PackageID   string          `db:"package_id"`
	Coins       int64           `db:"coins"`
	Amount      decimal.Decimal `db:"amount"`
	Currency    string          `db:"currency"`
	Status      Status          `db:"status"`
	ProviderRef *string         `db:"provider_ref"`
	CreatedAt   time.Time       `db:"created_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}
