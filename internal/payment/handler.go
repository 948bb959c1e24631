// AngelaMos | 2026
// handler.go

package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/middleware"
)

const (
	signatureHeader = "X-Signature"
	maxWebhookBody  = 64 * 1024
)

type CheckoutRequest struct {
	PackageID string `json:"package_id" validate:"required"`
}

type PaymentResponse struct {
	ID          string          `json:"id"`
	PackageID   string          `json:"package_id"`
	Coins       int64           `json:"coins"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type CheckoutResponse struct {
	Payment     PaymentResponse `json:"payment"`
	RedirectURL string          `json:"redirect_url"`
}

func ToPaymentResponse(p *Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		PackageID:   p.PackageID,
		Coins:       p.Coins,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		CompletedAt: p.CompletedAt,
	}
}

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/payments", func(r chi.Router) {
		r.Get("/packages", h.Packages)
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Post("/checkout", h.Checkout)
			r.Get("/{paymentID}", h.Get)
		})
	})
}

func (h *Handler) Packages(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.service.Packages())
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	checkout, err := h.service.Checkout(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.PackageID,
	)
	if err != nil {
		if errors.Is(err, ErrUnknownPackage) {
			core.BadRequest(w, "unknown package")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.Created(w, CheckoutResponse{
		Payment:     ToPaymentResponse(checkout.Payment),
		RedirectURL: checkout.RedirectURL,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(
		r.Context(),
		chi.URLParam(r, "paymentID"),
		middleware.GetUserID(r.Context()),
	)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "payment")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToPaymentResponse(p))
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	err = h.service.HandleWebhook(r.Context(), body, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
		core.NoContent(w)
	case errors.Is(err, ErrInvalidSignature):
		core.Unauthorized(w, "invalid signature")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "payment")
	case errors.Is(err, ErrAmountMismatch):
		core.JSONError(w, core.UnprocessableError("amount does not match payment",
			"AMOUNT_MISMATCH"))
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, "invalid webhook payload")
	default:
		core.InternalServerError(w, err)
	}
}
