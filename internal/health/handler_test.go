// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct {
	err error
}

func (p pinger) Ping(context.Context) error { return p.err }

func readiness(t *testing.T, h *Handler) (int, ReadinessResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadiness(t *testing.T) {
	down := pinger{err: errors.New("dial tcp: connection refused")}

	cases := []struct {
		name   string
		deps   []Dependency
		code   int
		status string
	}{
		{
			name: "all healthy",
			deps: []Dependency{
				{Name: "database", Checker: pinger{}},
				{Name: "redis", Checker: pinger{}},
			},
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "optional broker down",
			deps: []Dependency{
				{Name: "database", Checker: pinger{}},
				{Name: "broker", Checker: down, Optional: true},
			},
			code:   http.StatusOK,
			status: "degraded",
		},
		{
			name: "database down",
			deps: []Dependency{
				{Name: "database", Checker: down},
				{Name: "broker", Checker: down, Optional: true},
			},
			code:   http.StatusServiceUnavailable,
			status: "unavailable",
		},
		{
			name:   "unconfigured checker",
			deps:   []Dependency{{Name: "redis"}},
			code:   http.StatusServiceUnavailable,
			status: "unavailable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := readiness(t, NewHandler(tc.deps...))

			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.status, body.Status)
			require.Len(t, body.Checks, len(tc.deps))
			for i, dep := range tc.deps {
				assert.Equal(t, dep.Name, body.Checks[i].Name)
			}
		})
	}
}

func TestShutdownFailsReadiness(t *testing.T) {
	h := NewHandler(Dependency{Name: "database", Checker: pinger{}})
	h.SetShutdown(true)

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting_down")
}
