// AngelaMos | 2026
// supervisor_test.go

package call

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperme/whisper-api/internal/config"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	acquired int
	released int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	l.acquired++
	return true, nil
}

func (l *fakeLocker) Release(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false
	l.released++
	return nil
}

func newSupervisor(m *Manager, locker Locker) *Supervisor {
	return NewSupervisor(m, locker, config.SupervisorConfig{
		SweepInterval: 15 * time.Second,
		LockTTL:       time.Minute,
		BatchSize:     100,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSupervisorRecoversAfterRestart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	overdue := h.connected(t)

	stale := h.initiate(t)
	_, err := h.manager.Accept(ctx, stale.ID, whisperID)
	require.NoError(t, err)

	waiting := h.initiate(t)

	settledAt := h.clock.Now()
	h.store.putSession(Session{
		ID:            "5c0e8a1f-2b47-4d93-a6e1-0f3b9c7d2e58",
		CallerID:      callerID,
		WhisperID:     whisperID,
		Price:         2,
		Status:        StatusCompleted,
		EndReason:     ReasonTimeUp,
		CreatedAt:     settledAt.Add(-10 * time.Minute),
		ExpiresAt:     settledAt.Add(-8 * time.Minute),
		EndedAt:       &settledAt,
		CallDuration:  300,
		SettlementDue: true,
	})

	// the process dies with every timer still pending
	h.manager.Close()
	restarted := h.newManager()
	t.Cleanup(restarted.Close)

	h.clock.Advance(6 * time.Minute)
	assert.Zero(t, h.clock.pending())

	locker := &fakeLocker{}
	report := newSupervisor(restarted, locker).SweepOnce(ctx)

	assert.Equal(t, SweepReport{Expired: 1, TimedUp: 1, Reclaimed: 1, Settled: 1}, report)
	assert.Equal(t, 1, locker.released)

	assert.Equal(t, StatusTimeout, h.store.session(waiting.ID).Status)

	finished := h.store.session(overdue.ID)
	assert.Equal(t, StatusCompleted, finished.Status)
	assert.Equal(t, ReasonTimeUp, finished.EndReason)
	assert.Equal(t, 300, finished.CallDuration)
	assert.True(t, finished.EarningsTransferred)

	assert.Equal(t, StatusFailed, h.store.session(stale.ID).Status)
	assert.Equal(t, 2, h.store.earningCount())

	// waiting and stale were refunded, overdue was charged
	assert.Equal(t, int64(8), h.store.balance(callerID))

	again := newSupervisor(restarted, locker).SweepOnce(ctx)
	assert.Equal(t, SweepReport{}, again)
}

func TestSupervisorSkipsWithoutLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.initiate(t)
	h.manager.Close()
	h.clock.Advance(3 * time.Minute)

	locker := &fakeLocker{held: true}
	report := newSupervisor(h.manager, locker).SweepOnce(ctx)

	assert.True(t, report.Skipped)
	assert.Zero(t, locker.released)
	assert.Equal(t, StatusWaiting, h.store.session(s.ID).Status)

	failing := &fakeLocker{err: errors.New("redis: connection refused")}
	report = newSupervisor(h.manager, failing).SweepOnce(ctx)

	assert.True(t, report.Skipped)
	assert.Equal(t, StatusWaiting, h.store.session(s.ID).Status)
}

func TestSupervisorLeavesHealthySessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.connected(t)

	h.clock.Advance(20 * time.Second)
	require.NoError(t, h.manager.Heartbeat(ctx, s.ID, callerID))
	h.clock.Advance(20 * time.Second)

	report := newSupervisor(h.manager, &fakeLocker{}).SweepOnce(ctx)

	assert.Equal(t, SweepReport{}, report)
	assert.Equal(t, StatusInProgress, h.store.session(s.ID).Status)
}
