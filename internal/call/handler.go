// AngelaMos | 2026
// handler.go

package call

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/middleware"
)

type Handler struct {
	manager   *Manager
	validator *validator.Validate
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager:   manager,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts the call API. initiateLimit throttles call requests
// per caller; pass nil to leave them unthrottled. sessionRoutes lets other
// packages hang endpoints under /calls/{sessionID}.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	initiateLimit func(http.Handler) http.Handler,
	sessionRoutes ...func(chi.Router),
) {
	r.Route("/calls", func(r chi.Router) {
		r.Use(authenticator)

		r.With(optional(initiateLimit)).Post("/", h.Initiate)
		r.Get("/", h.History)
		r.Get("/pending", h.ListPending)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/accept", h.Accept)
			r.Post("/reject", h.Reject)
			r.Post("/connected", h.MarkConnected)
			r.Post("/heartbeat", h.Heartbeat)
			r.Post("/leave", h.Leave)
			r.Post("/end", h.End)
			r.Post("/fail", h.Fail)
			r.Post("/rating", h.Rate)

			for _, register := range sessionRoutes {
				register(r)
			}
		})
	})
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	session, err := h.manager.Initiate(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.WhisperID,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.Created(w, h.response(session))
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Accept)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Reject)
}

func (h *Handler) MarkConnected(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.MarkConnected)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Leave)
}

func (h *Handler) Fail(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.Fail)
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	err := h.manager.Heartbeat(
		r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetUserID(r.Context()),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	req := EndRequest{Reason: ReasonUserEnded}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			core.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	session, err := h.manager.End(
		r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetUserID(r.Context()),
		req.Reason,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, h.response(session))
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	session, err := h.manager.SubmitRating(
		r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetUserID(r.Context()),
		req.Rating,
		req.Comment,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, h.response(session))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(
		r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetUserID(r.Context()),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, h.response(session))
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.manager.ListPending(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, h.responses(sessions))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page, pageSize := PageParams(r)

	sessions, total, err := h.manager.History(
		r.Context(),
		middleware.GetUserID(r.Context()),
		page,
		pageSize,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.Paginated(w, h.responses(sessions), page, pageSize, total)
}

type transitionFunc func(
	ctx context.Context,
	sessionID, userID string,
) (*Session, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	session, err := fn(
		r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetUserID(r.Context()),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, h.response(session))
}

func (h *Handler) response(s *Session) SessionResponse {
	return ToSessionResponse(s, h.manager.clock.Now(), h.manager.settings.Duration)
}

func (h *Handler) responses(sessions []Session) []SessionResponse {
	now := h.manager.clock.Now()
	out := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, ToSessionResponse(&sessions[i], now, h.manager.settings.Duration))
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := AppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.manager.logger.Error("call request failed", "error", err)
	}
	core.JSONError(w, appErr)
}

// PageParams reads page and page_size with the same bounds every list
// endpoint uses.
func PageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
