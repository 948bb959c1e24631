// AngelaMos | 2026
// handler.go

package channel

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/whisperme/whisper-api/internal/call"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/middleware"
)

// ErrorMapper turns a lifecycle error into the HTTP error envelope.
type ErrorMapper func(error) *core.AppError

// Issuer mints join credentials for one leg of a call.
type Issuer interface {
	Issue(sessionID, userID, peerID string) (*Credentials, error)
}

type Handler struct {
	hub      *Hub
	issuer   Issuer
	mapError ErrorMapper
}

func NewHandler(hub *Hub, issuer Issuer, mapError ErrorMapper) *Handler {
	return &Handler{
		hub:      hub,
		issuer:   issuer,
		mapError: mapError,
	}
}

// SessionRoutes registers under /calls/{sessionID}.
func (h *Handler) SessionRoutes(r chi.Router) {
	r.Get("/channel", h.Credentials)
	r.Get("/presence", h.Presence)
}

func (h *Handler) Credentials(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := middleware.GetUserID(r.Context())

	peerID, err := h.hub.lifecycle.Authorize(r.Context(), sessionID, userID)
	if err != nil {
		core.JSONError(w, h.mapError(err))
		return
	}

	creds, err := h.issuer.Issue(sessionID, userID, peerID)
	if err != nil {
		h.hub.logger.Error("issue channel token",
			"session_id", sessionID,
			"error", err,
		)
		core.JSONError(w, h.mapError(fmt.Errorf("%w: %w", call.ErrChannelJoinFailed, err)))
		return
	}

	core.OK(w, creds)
}

func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	err := h.hub.Serve(
		w,
		r,
		chi.URLParam(r, "sessionID"),
		middleware.GetUserID(r.Context()),
	)
	if err != nil {
		core.JSONError(w, h.mapError(err))
	}
}
