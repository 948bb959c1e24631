// AngelaMos | 2026
// handler_test.go

package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/middleware"
)

type stubSessions struct {
	err     error
	client  Client
	account *AccountResponse
}

func (s *stubSessions) Login(_ context.Context, _ LoginRequest, client Client) (*AuthResponse, error) {
	s.client = client
	if s.err != nil {
		return nil, s.err
	}
	return &AuthResponse{Account: *s.account}, nil
}

func (s *stubSessions) Register(_ context.Context, _ RegisterRequest, client Client) (*AuthResponse, error) {
	s.client = client
	if s.err != nil {
		return nil, s.err
	}
	return &AuthResponse{Account: *s.account}, nil
}

func (s *stubSessions) Refresh(_ context.Context, _ string, client Client) (*AuthResponse, error) {
	s.client = client
	if s.err != nil {
		return nil, s.err
	}
	return &AuthResponse{Account: *s.account}, nil
}

func (s *stubSessions) Logout(context.Context, string, *middleware.AccessTokenClaims) error {
	return s.err
}

func (s *stubSessions) LogoutAll(context.Context, string) (int64, error) {
	return 3, s.err
}

func (s *stubSessions) GetCurrentAccount(context.Context, string) (*AccountResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.account, nil
}

func signedIn(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &middleware.AccessTokenClaims{UserID: userID, Role: middleware.RoleUser}
			next.ServeHTTP(w, r.WithContext(middleware.WithClaims(r.Context(), claims)))
		})
	}
}

func serveAuth(
	t *testing.T,
	sessions Sessions,
	method, path, body string,
	header http.Header,
) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	NewHandler(sessions).RegisterRoutes(r, signedIn("u-1"))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.7:51234"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const loginBody = `{"email":"ada@example.com","password":"correct-horse"}`

func TestLoginRecordsClient(t *testing.T) {
	sessions := &stubSessions{account: &AccountResponse{ID: "u-1", Coins: 40, Available: true}}

	rec := serveAuth(t, sessions, http.MethodPost, "/auth/login", loginBody, http.Header{
		"User-Agent":      {"whisper-ios/3.2"},
		"X-Forwarded-For": {"203.0.113.9, 198.51.100.4"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"coins":40`)
	assert.Contains(t, rec.Body.String(), `"available":true`)
	assert.Equal(t, Client{UserAgent: "whisper-ios/3.2", IPAddress: "198.51.100.4"}, sessions.client)
}

func TestAuthErrors(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		err    error
		status int
		code   string
	}{
		{
			name: "wrong password", method: http.MethodPost, path: "/auth/login", body: loginBody,
			err: ErrInvalidCredentials, status: http.StatusUnauthorized, code: "UNAUTHORIZED",
		},
		{
			name: "email taken", method: http.MethodPost, path: "/auth/register",
			body: `{"email":"ada@example.com","password":"correct-horse","display_name":"Ada"}`,
			err:  ErrEmailExists, status: http.StatusConflict, code: "DUPLICATE",
		},
		{
			name: "refresh token reused", method: http.MethodPost, path: "/auth/refresh",
			body: `{"refresh_token":"rt"}`,
			err:  ErrTokenReuse, status: http.StatusUnauthorized, code: "TOKEN_REUSE_DETECTED",
		},
		{
			name: "refresh token expired", method: http.MethodPost, path: "/auth/refresh",
			body: `{"refresh_token":"rt"}`,
			err:  fmt.Errorf("refresh: %w", core.ErrTokenExpired), status: http.StatusUnauthorized, code: "TOKEN_EXPIRED",
		},
		{
			name: "logout of a foreign token", method: http.MethodPost, path: "/auth/logout",
			body: `{"refresh_token":"rt"}`,
			err:  fmt.Errorf("logout: %w", core.ErrForbidden), status: http.StatusForbidden, code: "FORBIDDEN",
		},
		{
			name: "deleted account", method: http.MethodGet, path: "/auth/me",
			err: fmt.Errorf("get account: %w", core.ErrNotFound), status: http.StatusNotFound, code: "NOT_FOUND",
		},
		{
			name: "invalid body", method: http.MethodPost, path: "/auth/login", body: `{"email":"nope"}`,
			status: http.StatusBadRequest, code: "BAD_REQUEST",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := &stubSessions{err: tc.err, account: &AccountResponse{ID: "u-1"}}

			rec := serveAuth(t, sessions, tc.method, tc.path, tc.body, nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.code)
		})
	}
}

func TestLogoutAllReportsDevices(t *testing.T) {
	rec := serveAuth(t, &stubSessions{}, http.MethodPost, "/auth/logout-all", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"signed_out":3`)
}
