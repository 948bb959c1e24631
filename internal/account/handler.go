// AngelaMos | 2026
// handler.go

package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/ledger"
	"github.com/whisperme/whisper-api/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/accounts", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/me", h.GetMe)
		r.Get("/me/transactions", h.ListTransactions)
		r.Get("/me/earnings", h.ListEarnings)
	})
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	account, err := h.service.GetMe(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToAccountResponse(account))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	params := pageParams(r)

	txs, total, err := h.service.Transactions(r.Context(), userID, params)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Paginated(
		w,
		ledger.ToTransactionResponseList(txs),
		params.Page,
		params.PageSize,
		total,
	)
}

func (h *Handler) ListEarnings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	params := pageParams(r)

	earnings, total, err := h.service.Earnings(r.Context(), userID, params)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Paginated(
		w,
		ledger.ToEarningResponseList(earnings),
		params.Page,
		params.PageSize,
		total,
	)
}

func pageParams(r *http.Request) ledger.ListParams {
	var params ledger.ListParams
	params.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	params.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	params.Normalize()
	return params
}
