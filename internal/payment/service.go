// AngelaMos | 2026
// service.go

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/whisperme/whisper-api/internal/config"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/events"
	"github.com/whisperme/whisper-api/internal/ledger"
)

const (
	WebhookSucceeded = "payment.succeeded"
	WebhookFailed    = "payment.failed"
)

// WebhookEvent is the body the payment processor posts back.
type WebhookEvent struct {
	Type        string          `json:"type"`
	PaymentID   string          `json:"payment_id"`
	ProviderRef string          `json:"provider_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

type Checkout struct {
	Payment     *Payment
	RedirectURL string
}

type Service struct {
	store       Store
	events      events.Publisher
	packages    map[string]Package
	catalog     []Package
	checkoutURL string
	returnURL   string
	secret      string
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(
	store Store,
	cfg config.PaymentConfig,
	publisher events.Publisher,
	logger *slog.Logger,
) (*Service, error) {
	coinPrice, err := decimal.NewFromString(cfg.CoinPrice)
	if err != nil {
		return nil, fmt.Errorf("parse coin price: %w", err)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	catalog := Catalog(coinPrice, cfg.Currency)
	byID := make(map[string]Package, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	return &Service{
		store:       store,
		events:      publisher,
		packages:    byID,
		catalog:     catalog,
		checkoutURL: cfg.CheckoutURL,
		returnURL:   cfg.ReturnURL,
		secret:      cfg.WebhookSecret,
		logger:      logger.With("component", "payment"),
		now:         time.Now,
	}, nil
}

func (s *Service) Packages() []Package {
	return s.catalog
}

// Checkout records a pending payment and returns where to send the buyer.
// Coins are only credited when the processor confirms through the webhook.
func (s *Service) Checkout(
	ctx context.Context,
	userID, packageID string,
) (*Checkout, error) {
	pkg, ok := s.packages[packageID]
	if !ok {
		return nil, fmt.Errorf("checkout %q: %w", packageID, ErrUnknownPackage)
	}

	p := &Payment{
		ID:        uuid.New().String(),
		UserID:    userID,
		PackageID: pkg.ID,
		Coins:     pkg.Coins,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.Payments().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	query := url.Values{}
	query.Set("payment_id", p.ID)
	query.Set("amount", p.Amount.StringFixed(2))
	query.Set("currency", p.Currency)
	query.Set("return_url", s.returnURL)

	return &Checkout{
		Payment:     p,
		RedirectURL: s.checkoutURL + "?" + query.Encode(),
	}, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (*Payment, error) {
	p, err := s.store.Payments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("get payment: %w", core.ErrNotFound)
	}
	return p, nil
}

// HandleWebhook verifies and applies a processor callback. Replays of an
// already resolved payment are accepted and change nothing.
func (s *Service) HandleWebhook(
	ctx context.Context,
	body []byte,
	signature string,
) error {
	if !core.VerifyHMAC(s.secret, body, signature) {
		return ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode webhook: %w", core.ErrInvalidInput)
	}
	if event.PaymentID == "" {
		return fmt.Errorf("webhook without payment id: %w", core.ErrInvalidInput)
	}

	switch event.Type {
	case WebhookSucceeded:
		return s.complete(ctx, event)
	case WebhookFailed:
		return s.markFailed(ctx, event)
	}
	return fmt.Errorf("webhook type %q: %w", event.Type, core.ErrInvalidInput)
}

func (s *Service) complete(ctx context.Context, event WebhookEvent) error {
	now := s.now().UTC()
	var credited *Payment

	err := s.store.InTx(ctx, func(r Repos) error {
		p, err := r.Payments.GetForUpdate(ctx, event.PaymentID)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return nil
		}
		if !p.Amount.Equal(event.Amount) || p.Currency != event.Currency {
			return fmt.Errorf("payment %s: %w", p.ID, ErrAmountMismatch)
		}

		if err := r.Payments.Resolve(ctx, p.ID, StatusCompleted,
			event.ProviderRef, now); err != nil {
			return err
		}
		if err := r.Accounts.Credit(ctx, p.UserID, p.Coins); err != nil {
			return err
		}

		reference := p.ID
		if err := r.Ledger.Append(ctx, &ledger.Transaction{
			ID:        uuid.New().String(),
			UserID:    p.UserID,
			Type:      ledger.TypePurchase,
			Amount:    p.Coins,
			Reference: &reference,
			Status:    ledger.StatusCompleted,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		credited = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}

	if credited == nil {
		s.logger.Info("duplicate payment webhook ignored",
			"payment_id", event.PaymentID,
		)
		return nil
	}

	s.logger.Info("payment completed",
		"payment_id", credited.ID,
		"user_id", credited.UserID,
		"coins", credited.Coins,
	)

	if err := s.events.Publish(ctx, events.Event{
		ID:         uuid.New().String(),
		Type:       events.PaymentCompleted,
		UserID:     credited.UserID,
		Status:     string(StatusCompleted),
		Amount:     credited.Amount.String(),
		OccurredAt: now,
	}); err != nil {
		s.logger.Warn("publish payment event",
			"payment_id", credited.ID,
			"error", err,
		)
	}

	return nil
}

func (s *Service) markFailed(ctx context.Context, event WebhookEvent) error {
	err := s.store.Payments().Resolve(ctx, event.PaymentID, StatusFailed,
		event.ProviderRef, s.now().UTC())
	if errors.Is(err, core.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}

	s.logger.Info("payment failed", "payment_id", event.PaymentID)
	return nil
}
