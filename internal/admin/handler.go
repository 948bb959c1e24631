// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/whisperme/whisper-api/internal/call"
	"github.com/whisperme/whisper-api/internal/core"
)

// Calls is the reconciliation surface of the call manager.
type Calls interface {
	GetAny(ctx context.Context, sessionID string) (*call.Session, error)
	Flagged(ctx context.Context, page, pageSize int) ([]call.Session, int, error)
	Settle(ctx context.Context, sessionID string) (bool, error)
	RefundFlagged(ctx context.Context, sessionID string) (*call.Session, error)
	Settings() call.Settings
}

type Sweeper interface {
	SweepOnce(ctx context.Context) call.SweepReport
}

type Handler struct {
	dbStats      func() sql.DBStats
	redisStats   func() *redis.PoolStats
	redisPing    func(ctx context.Context) error
	dbPing       func(ctx context.Context) error
	liveChannels func() int
	calls        Calls
	sweeper      Sweeper
	now          func() time.Time
}

type HandlerConfig struct {
	DBStats      func() sql.DBStats
	RedisStats   func() *redis.PoolStats
	RedisPing    func(ctx context.Context) error
	DBPing       func(ctx context.Context) error
	LiveChannels func() int
	Calls        Calls
	Sweeper      Sweeper
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:      cfg.DBStats,
		redisStats:   cfg.RedisStats,
		redisPing:    cfg.RedisPing,
		dbPing:       cfg.DBPing,
		liveChannels: cfg.LiveChannels,
		calls:        cfg.Calls,
		sweeper:      cfg.Sweeper,
		now:          time.Now,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)

		r.Route("/calls", func(r chi.Router) {
			r.Get("/flagged", h.ListFlagged)
			r.Post("/sweep", h.Sweep)
			r.Get("/{sessionID}", h.GetCall)
			r.Post("/{sessionID}/settle", h.Settle)
			r.Post("/{sessionID}/refund", h.Refund)
		})
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbHealthy := true
	if h.dbPing != nil {
		if err := h.dbPing(ctx); err != nil {
			dbHealthy = false
		}
	}

	redisHealthy := true
	if h.redisPing != nil {
		if err := h.redisPing(ctx); err != nil {
			redisHealthy = false
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: dbHealthy,
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: redisHealthy,
			Stats:   h.getRedisStats(),
		},
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAlloc:     memStats.Alloc,
			NumGC:        memStats.NumGC,
		},
	}
	if h.liveChannels != nil {
		response.LiveChannels = h.liveChannels()
	}

	core.OK(w, response)
}

func (h *Handler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	page, pageSize := call.PageParams(r)

	sessions, total, err := h.calls.Flagged(r.Context(), page, pageSize)
	if err != nil {
		core.JSONError(w, call.AppError(err))
		return
	}

	out := make([]call.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, h.sessionResponse(&sessions[i]))
	}

	core.Paginated(w, out, page, pageSize, total)
}

func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	session, err := h.calls.GetAny(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		core.JSONError(w, call.AppError(err))
		return
	}

	core.OK(w, h.sessionResponse(session))
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	settled, err := h.calls.Settle(r.Context(), sessionID)
	if err != nil {
		core.JSONError(w, call.AppError(err))
		return
	}

	core.OK(w, SettleResponse{SessionID: sessionID, Settled: settled})
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	session, err := h.calls.RefundFlagged(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		core.JSONError(w, call.AppError(err))
		return
	}

	core.OK(w, h.sessionResponse(session))
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.sweeper.SweepOnce(r.Context()))
}

func (h *Handler) sessionResponse(s *call.Session) call.SessionResponse {
	return call.ToSessionResponse(s, h.now(), h.calls.Settings().Duration)
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

type SettleResponse struct {
	SessionID string `json:"session_id"`
	Settled   bool   `json:"settled"`
}

type SystemStatsResponse struct {
	Database     DatabaseStatus `json:"database"`
	Redis        RedisStatus    `json:"redis"`
	Runtime      RuntimeStats   `json:"runtime"`
	LiveChannels int            `json:"live_channels"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
