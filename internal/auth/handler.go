// AngelaMos | 2026
// handler.go

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/middleware"
)

// Sessions is the sign-in surface the handler drives. *Service implements it.
type Sessions interface {
	Login(ctx context.Context, req LoginRequest, client Client) (*AuthResponse, error)
	Register(ctx context.Context, req RegisterRequest, client Client) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string, client Client) (*AuthResponse, error)
	Logout(ctx context.Context, refreshToken string, claims *middleware.AccessTokenClaims) error
	LogoutAll(ctx context.Context, accountID string) (int64, error)
	GetCurrentAccount(ctx context.Context, accountID string) (*AccountResponse, error)
}

type Handler struct {
	sessions  Sessions
	validator *validator.Validate
}

func NewHandler(sessions Sessions) *Handler {
	return &Handler{
		sessions:  sessions,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/me", h.GetMe)
			r.Post("/logout", h.Logout)
			r.Post("/logout-all", h.LogoutAll)
		})
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.sessions.Login(r.Context(), req, clientOf(r))
	if err != nil {
		core.JSONError(w, authError(err))
		return
	}

	core.OK(w, resp)
}

// Register creates the account and its public profile, then signs it in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.sessions.Register(r.Context(), req, clientOf(r))
	if err != nil {
		core.JSONError(w, authError(err))
		return
	}

	core.Created(w, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.sessions.Refresh(r.Context(), req.RefreshToken, clientOf(r))
	if err != nil {
		core.JSONError(w, authError(err))
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.sessions.Logout(r.Context(), req.RefreshToken, claims); err != nil {
		core.JSONError(w, authError(err))
		return
	}

	core.NoContent(w)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.Unauthorized(w, "")
		return
	}

	n, err := h.sessions.LogoutAll(r.Context(), userID)
	if err != nil {
		core.JSONError(w, authError(err))
		return
	}

	core.OK(w, LogoutAllResponse{SignedOut: n})
}

// GetMe returns the signed-in account with its current coin balance and
// whisper availability.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.Unauthorized(w, "")
		return
	}

	account, err := h.sessions.GetCurrentAccount(r.Context(), userID)
	if err != nil {
		core.JSONError(w, authError(err))
		return
	}

	core.OK(w, account)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

func clientOf(r *http.Request) Client {
	return Client{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}
}

func authError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return core.UnauthorizedError("invalid email or password")
	case errors.Is(err, ErrEmailExists):
		return core.DuplicateError("email")
	case errors.Is(err, ErrTokenReuse):
		return core.NewAppError(
			core.ErrTokenRevoked,
			"refresh token reused, every session in its family was revoked",
			http.StatusUnauthorized,
			"TOKEN_REUSE_DETECTED",
		)
	case errors.Is(err, core.ErrTokenExpired):
		return core.TokenExpiredError()
	case errors.Is(err, core.ErrTokenRevoked):
		return core.TokenRevokedError()
	case errors.Is(err, core.ErrTokenInvalid):
		return core.TokenInvalidError()
	case errors.Is(err, core.ErrForbidden):
		return core.ForbiddenError("cannot revoke another account's token")
	case errors.Is(err, core.ErrNotFound):
		return core.NotFoundError("account")
	}
	return err
}
