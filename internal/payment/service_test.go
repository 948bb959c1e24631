// AngelaMos | 2026
// service_test.go

package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperme/whisper-api/internal/config"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/events"
	"github.com/whisperme/whisper-api/internal/ledger"
)

const (
	buyerID = "7d2c9e4a-6b1f-4a83-8e5d-3c0f9b2a1e67"
	secret  = "whsec_test"
)

type memStore struct {
	mu       sync.Mutex
	payments map[string]Payment
	coins    map[string]int64
	txns     []ledger.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		payments: make(map[string]Payment),
		coins:    make(map[string]int64),
	}
}

func (m *memStore) InTx(_ context.Context, fn func(r Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	payments := make(map[string]Payment, len(m.payments))
	for k, v := range m.payments {
		payments[k] = v
	}
	coins := make(map[string]int64, len(m.coins))
	for k, v := range m.coins {
		coins[k] = v
	}
	txns := append([]ledger.Transaction(nil), m.txns...)

	repos := &memRepos{store: m}
	if err := fn(Repos{Payments: repos, Accounts: repos, Ledger: repos}); err != nil {
		m.payments, m.coins, m.txns = payments, coins, txns
		return err
	}
	return nil
}

func (m *memStore) Payments() Repository {
	return &lockedRepo{store: m}
}

type memRepos struct {
	store *memStore
}

func (r *memRepos) Create(_ context.Context, p *Payment) error {
	r.store.payments[p.ID] = *p
	return nil
}

func (r *memRepos) GetByID(_ context.Context, id string) (*Payment, error) {
	p, ok := r.store.payments[id]
	if !ok {
		return nil, fmt.Errorf("get payment: %w", core.ErrNotFound)
	}
	return &p, nil
}

func (r *memRepos) GetForUpdate(ctx context.Context, id string) (*Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepos) Resolve(
	_ context.Context,
	id string,
	status Status,
	providerRef string,
	at time.Time,
) error {
	p, ok := r.store.payments[id]
	if !ok || p.Status != StatusPending {
		return fmt.Errorf("resolve payment: %w", core.ErrConflict)
	}
	p.Status = status
	if providerRef != "" {
		p.ProviderRef = &providerRef
	}
	p.CompletedAt = &at
	r.store.payments[id] = p
	return nil
}

func (r *memRepos) Credit(_ context.Context, id string, amount int64) error {
	r.store.coins[id] += amount
	return nil
}

func (r *memRepos) Append(_ context.Context, t *ledger.Transaction) error {
	r.store.txns = append(r.store.txns, *t)
	return nil
}

// lockedRepo is the non-transactional view.
type lockedRepo struct {
	store *memStore
}

func (r *lockedRepo) inner() *memRepos { return &memRepos{store: r.store} }

func (r *lockedRepo) Create(ctx context.Context, p *Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.inner().Create(ctx, p)
}

func (r *lockedRepo) GetByID(ctx context.Context, id string) (*Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.inner().GetByID(ctx, id)
}

func (r *lockedRepo) GetForUpdate(ctx context.Context, id string) (*Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *lockedRepo) Resolve(
	ctx context.Context,
	id string,
	status Status,
	providerRef string,
	at time.Time,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.inner().Resolve(ctx, id, status, providerRef, at)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore, *recordingPublisher) {
	t.Helper()

	store := newMemStore()
	pub := &recordingPublisher{}
	svc, err := NewService(store, config.PaymentConfig{
		CheckoutURL:   "https://pay.example.test/checkout",
		ReturnURL:     "https://app.example.test/wallet",
		WebhookSecret: secret,
		Currency:      "USD",
		CoinPrice:     "0.99",
	}, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return svc, store, pub
}

func webhook(t *testing.T, event WebhookEvent) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body, "sha256=" + core.SignHMAC(secret, body)
}

func TestCatalog(t *testing.T) {
	catalog := Catalog(decimal.RequireFromString("0.99"), "USD")

	require.Len(t, catalog, 3)
	assert.Equal(t, "coins_10", catalog[1].ID)
	assert.True(t, decimal.RequireFromString("9.90").Equal(catalog[1].Price))
}

func TestNewServiceRejectsBadPrice(t *testing.T) {
	_, err := NewService(newMemStore(), config.PaymentConfig{CoinPrice: "cheap"},
		nil, slog.Default())
	require.Error(t, err)
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	checkout, err := svc.Checkout(ctx, buyerID, "coins_5")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, checkout.Payment.Status)
	assert.Equal(t, int64(5), checkout.Payment.Coins)
	assert.Contains(t, store.payments, checkout.Payment.ID)

	redirect, err := url.Parse(checkout.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "pay.example.test", redirect.Host)
	assert.Equal(t, checkout.Payment.ID, redirect.Query().Get("payment_id"))
	assert.Equal(t, "4.95", redirect.Query().Get("amount"))
	assert.Equal(t, "USD", redirect.Query().Get("currency"))

	_, err = svc.Checkout(ctx, buyerID, "coins_1000")
	require.ErrorIs(t, err, ErrUnknownPackage)

	_, err = svc.Get(ctx, checkout.Payment.ID, "someone-else")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestWebhookCreditsOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)

	checkout, err := svc.Checkout(ctx, buyerID, "coins_10")
	require.NoError(t, err)

	body, sig := webhook(t, WebhookEvent{
		Type:        WebhookSucceeded,
		PaymentID:   checkout.Payment.ID,
		ProviderRef: "ch_123",
		Amount:      decimal.RequireFromString("9.90"),
		Currency:    "USD",
	})

	require.NoError(t, svc.HandleWebhook(ctx, body, sig))
	require.NoError(t, svc.HandleWebhook(ctx, body, sig))

	assert.Equal(t, int64(10), store.coins[buyerID])
	require.Len(t, store.txns, 1)
	assert.Equal(t, ledger.TypePurchase, store.txns[0].Type)
	assert.Equal(t, checkout.Payment.ID, *store.txns[0].Reference)

	paid, err := svc.Get(ctx, checkout.Payment.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, paid.Status)
	require.NotNil(t, paid.ProviderRef)
	assert.Equal(t, "ch_123", *paid.ProviderRef)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.PaymentCompleted, pub.events[0].Type)
}

func TestWebhookRejections(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	checkout, err := svc.Checkout(ctx, buyerID, "coins_5")
	require.NoError(t, err)

	t.Run("bad signature", func(t *testing.T) {
		body, _ := webhook(t, WebhookEvent{Type: WebhookSucceeded, PaymentID: checkout.Payment.ID})
		err := svc.HandleWebhook(ctx, body, "sha256=deadbeef")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("amount mismatch leaves payment pending", func(t *testing.T) {
		body, sig := webhook(t, WebhookEvent{
			Type:      WebhookSucceeded,
			PaymentID: checkout.Payment.ID,
			Amount:    decimal.RequireFromString("0.01"),
			Currency:  "USD",
		})

		err := svc.HandleWebhook(ctx, body, sig)

		require.ErrorIs(t, err, ErrAmountMismatch)
		assert.Equal(t, StatusPending, store.payments[checkout.Payment.ID].Status)
		assert.Zero(t, store.coins[buyerID])
	})

	t.Run("unknown payment", func(t *testing.T) {
		body, sig := webhook(t, WebhookEvent{
			Type:      WebhookSucceeded,
			PaymentID: "missing",
			Amount:    decimal.RequireFromString("4.95"),
			Currency:  "USD",
		})
		require.ErrorIs(t, svc.HandleWebhook(ctx, body, sig), core.ErrNotFound)
	})

	t.Run("unknown type", func(t *testing.T) {
		body, sig := webhook(t, WebhookEvent{Type: "payment.disputed", PaymentID: checkout.Payment.ID})
		require.ErrorIs(t, svc.HandleWebhook(ctx, body, sig), core.ErrInvalidInput)
	})

	t.Run("failure is recorded once", func(t *testing.T) {
		body, sig := webhook(t, WebhookEvent{Type: WebhookFailed, PaymentID: checkout.Payment.ID})

		require.NoError(t, svc.HandleWebhook(ctx, body, sig))
		require.NoError(t, svc.HandleWebhook(ctx, body, sig))

		assert.Equal(t, StatusFailed, store.payments[checkout.Payment.ID].Status)
		assert.Zero(t, store.coins[buyerID])
	})
}
