// AngelaMos | 2026
// handler.go

package favorite

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/middleware"
	"github.com/whisperme/whisper-api/internal/profile"
)

type ProfileReader interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
}

type Service struct {
	repo     Repository
	profiles ProfileReader
}

func NewService(repo Repository, profiles ProfileReader) *Service {
	return &Service{repo: repo, profiles: profiles}
}

func (s *Service) Add(ctx context.Context, userID, whisperID string) error {
	if userID == whisperID {
		return fmt.Errorf("add favorite: cannot favorite yourself: %w", core.ErrInvalidInput)
	}
	if _, err := s.profiles.GetByID(ctx, whisperID); err != nil {
		return err
	}
	return s.repo.Add(ctx, userID, whisperID)
}

func (s *Service) Remove(ctx context.Context, userID, whisperID string) error {
	return s.repo.Remove(ctx, userID, whisperID)
}

func (s *Service) List(ctx context.Context, userID string) ([]Favorite, error) {
	return s.repo.List(ctx, userID)
}

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
	r.Route("/favorites", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/", h.List)
		r.Post("/{whisperID}", h.Add)
		r.Delete("/{whisperID}", h.Remove)
	})
}

type FavoriteResponse struct {
	WhisperID   string `json:"whisper_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	CallPrice   int    `json:"call_price"`
	Available   bool   `json:"available"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.service.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	out := make([]FavoriteResponse, 0, len(favorites))
	for _, f := range favorites {
		out = append(out, FavoriteResponse{
			WhisperID:   f.WhisperID,
			DisplayName: f.DisplayName,
			AvatarURL:   f.AvatarURL,
			CallPrice:   f.CallPrice,
			Available:   f.Available,
		})
	}

	core.OK(w, out)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	err := h.service.Add(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "whisperID"),
	)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			core.NotFound(w, "profile")
		case errors.Is(err, core.ErrInvalidInput):
			core.BadRequest(w, "cannot favorite yourself")
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.NoContent(w)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	err := h.service.Remove(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "whisperID"),
	)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "favorite")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}
