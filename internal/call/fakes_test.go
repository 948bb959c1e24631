// AngelaMos | 2026
// fakes_test.go

package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whisperme/whisper-api/internal/account"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/events"
	"github.com/whisperme/whisper-api/internal/ledger"
	"github.com/whisperme/whisper-api/internal/profile"
)

var errStoreDown = errors.New("connection reset by peer")

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that came due, in
// deadline order, outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type memState struct {
	sessions map[string]Session
	profiles map[string]profile.Profile
	coins    map[string]int64
	earned   map[string]decimal.Decimal
	calls    map[string]int
	ratings  map[string][]int
	txns     []ledger.Transaction
	earnings map[string]ledger.Earning
}

func (s memState) clone() memState {
	out := memState{
		sessions: make(map[string]Session, len(s.sessions)),
		profiles: make(map[string]profile.Profile, len(s.profiles)),
		coins:    make(map[string]int64, len(s.coins)),
		earned:   make(map[string]decimal.Decimal, len(s.earned)),
		calls:    make(map[string]int, len(s.calls)),
		ratings:  make(map[string][]int, len(s.ratings)),
		txns:     append([]ledger.Transaction(nil), s.txns...),
		earnings: make(map[string]ledger.Earning, len(s.earnings)),
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.profiles {
		out.profiles[k] = v
	}
	for k, v := range s.coins {
		out.coins[k] = v
	}
	for k, v := range s.earned {
		out.earned[k] = v
	}
	for k, v := range s.calls {
		out.calls[k] = v
	}
	for k, v := range s.ratings {
		out.ratings[k] = append([]int(nil), v...)
	}
	for k, v := range s.earnings {
		out.earnings[k] = v
	}
	return out
}

// memStore serializes transactions on one mutex, which stands in for the
// row locks, and restores a snapshot when fn fails.
type memStore struct {
	mu         sync.Mutex
	state      memState
	failInsert error
	failUpdate error
	failAppend error
}

func newMemStore() *memStore {
	return &memStore{state: memState{}.clone()}
}

func (m *memStore) InTx(_ context.Context, fn func(r Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	err := fn(Repos{
		Sessions: &memSessions{store: m, inTx: true},
		Accounts: &memAccounts{store: m},
		Profiles: &memProfiles{store: m},
		Ledger:   &memLedger{store: m},
	})
	if err != nil {
		m.state = snapshot
	}
	return err
}

func (m *memStore) Sessions() SessionRepository {
	return &memSessions{store: m}
}

func (m *memStore) seedProfile(id string, price int, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.profiles[id] = profile.Profile{
		ID:          id,
		DisplayName: id,
		CallPrice:   price,
		Available:   available,
	}
}

func (m *memStore) setCoins(id string, coins int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.coins[id] = coins
}

func (m *memStore) setAvailable(id string, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.state.profiles[id]
	p.Available = available
	m.state.profiles[id] = p
}

func (m *memStore) putSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.sessions[s.ID] = s
}

func (m *memStore) session(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.sessions[id]
}

func (m *memStore) balance(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.coins[id]
}

func (m *memStore) earnedBy(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.earned[id]
}

func (m *memStore) callsOf(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.calls[id]
}

func (m *memStore) ratingsOf(id string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.state.ratings[id]...)
}

func (m *memStore) earningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.earnings)
}

func (m *memStore) earning(sessionID string) (ledger.Earning, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.state.earnings[sessionID]
	return e, ok
}

func (m *memStore) transactions(kind ledger.TransactionType) []ledger.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Transaction
	for _, t := range m.state.txns {
		if t.Type == kind {
			out = append(out, t)
		}
	}
	return out
}

type memSessions struct {
	store *memStore
	inTx  bool
}

func (r *memSessions) locked(fn func(st *memState) error) error {
	if !r.inTx {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}
	return fn(&r.store.state)
}

func (r *memSessions) Insert(_ context.Context, s *Session) error {
	return r.locked(func(st *memState) error {
		if r.store.failInsert != nil {
			return r.store.failInsert
		}
		if _, ok := st.sessions[s.ID]; ok {
			return core.ErrDuplicateKey
		}
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r *memSessions) Get(_ context.Context, id string) (*Session, error) {
	var out *Session
	err := r.locked(func(st *memState) error {
		s, ok := st.sessions[id]
		if !ok {
			return fmt.Errorf("get call session: %w", core.ErrNotFound)
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *memSessions) GetForUpdate(ctx context.Context, id string) (*Session, error) {
	return r.Get(ctx, id)
}

func (r *memSessions) Update(_ context.Context, s *Session, expected Status) error {
	return r.locked(func(st *memState) error {
		if r.store.failUpdate != nil {
			return r.store.failUpdate
		}
		stored, ok := st.sessions[s.ID]
		if !ok || stored.Status != expected {
			return fmt.Errorf("update call session: %w", ErrConflict)
		}
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r *memSessions) filter(keep func(s Session) bool) []Session {
	var out []Session
	_ = r.locked(func(st *memState) error {
		for _, s := range st.sessions {
			if keep(s) {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func ids(sessions []Session, limit int) []string {
	out := []string{}
	for _, s := range sessions {
		if len(out) == limit {
			break
		}
		out = append(out, s.ID)
	}
	return out
}

func (r *memSessions) CountWaiting(_ context.Context, whisperID string, now time.Time) (int, error) {
	return len(r.filter(func(s Session) bool {
		return s.WhisperID == whisperID && s.Status == StatusWaiting && now.Before(s.ExpiresAt)
	})), nil
}

func (r *memSessions) ListPending(_ context.Context, whisperID string, now time.Time) ([]Session, error) {
	return r.filter(func(s Session) bool {
		return s.WhisperID == whisperID && s.Status == StatusWaiting && now.Before(s.ExpiresAt)
	}), nil
}

func (r *memSessions) ListByParticipant(
	_ context.Context,
	userID string,
	limit, offset int,
) ([]Session, int, error) {
	all := r.filter(func(s Session) bool { return s.IsParticipant(userID) })
	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (r *memSessions) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	return ids(r.filter(func(s Session) bool {
		return s.Status == StatusWaiting && !now.Before(s.ExpiresAt)
	}), limit), nil
}

func (r *memSessions) ListOverdue(_ context.Context, before time.Time, limit int) ([]string, error) {
	return ids(r.filter(func(s Session) bool {
		return s.Status == StatusInProgress && s.BillableStartedAt != nil &&
			!s.BillableStartedAt.After(before)
	}), limit), nil
}

func (r *memSessions) ListStale(_ context.Context, before time.Time, limit int) ([]string, error) {
	return ids(r.filter(func(s Session) bool {
		if s.Status != StatusInProgress {
			return false
		}
		seen := s.LastHeartbeatAt
		if seen == nil {
			seen = s.AcceptedAt
		}
		return seen != nil && seen.Before(before)
	}), limit), nil
}

func (r *memSessions) ListUnsettled(_ context.Context, limit int) ([]string, error) {
	return ids(r.filter(func(s Session) bool {
		return s.SettlementDue && !s.EarningsTransferred
	}), limit), nil
}

func (r *memSessions) ListFlagged(_ context.Context, limit, offset int) ([]Session, int, error) {
	all := r.filter(func(s Session) bool {
		return s.LeftEarlyBy != PartyNone && !s.Refunded
	})
	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

type memAccounts struct {
	store *memStore
}

func (a *memAccounts) Debit(_ context.Context, id string, amount int64) error {
	st := &a.store.state
	if st.coins[id] < amount {
		return fmt.Errorf("debit account: %w", account.ErrInsufficientFunds)
	}
	st.coins[id] -= amount
	return nil
}

func (a *memAccounts) Credit(_ context.Context, id string, amount int64) error {
	a.store.state.coins[id] += amount
	return nil
}

func (a *memAccounts) RecordEarning(_ context.Context, id string, amount decimal.Decimal) error {
	st := &a.store.state
	st.earned[id] = st.earned[id].Add(amount)
	st.calls[id]++
	return nil
}

func (a *memAccounts) AddRating(_ context.Context, id string, stars int) error {
	st := &a.store.state
	st.ratings[id] = append(st.ratings[id], stars)
	return nil
}

type memProfiles struct {
	store *memStore
}

func (p *memProfiles) GetForUpdate(_ context.Context, id string) (*profile.Profile, error) {
	pr, ok := p.store.state.profiles[id]
	if !ok {
		return nil, fmt.Errorf("get profile: %w", core.ErrNotFound)
	}
	return &pr, nil
}

type memLedger struct {
	store *memStore
}

func (l *memLedger) Append(_ context.Context, t *ledger.Transaction) error {
	if l.store.failAppend != nil {
		return l.store.failAppend
	}
	l.store.state.txns = append(l.store.state.txns, *t)
	return nil
}

func (l *memLedger) CreateEarning(_ context.Context, e *ledger.Earning) error {
	st := &l.store.state
	if _, ok := st.earnings[e.SessionID]; ok {
		return fmt.Errorf("create earning: %w", core.ErrDuplicateKey)
	}
	st.earnings[e.SessionID] = *e
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(kind events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	closed map[string][]string
}

func (n *recordingNotifier) CloseSession(sessionID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed == nil {
		n.closed = make(map[string][]string)
	}
	n.closed[sessionID] = append(n.closed[sessionID], reason)
}

func (n *recordingNotifier) reasons(sessionID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.closed[sessionID]...)
}

const (
	callerID   = "0b6f2c55-3c1e-4d8e-9a51-1f0c7a9e2b10"
	whisperID  = "6a1d9f3e-8b27-4c4f-b0d6-2e5a7c3f9d21"
	strangerID = "9e4c1b7a-5d38-4f26-8c19-7b2e6d0a3f42"
)

type harness struct {
	store    *memStore
	clock    *fakeClock
	events   *recordingPublisher
	notifier *recordingNotifier
	manager  *Manager
	settings Settings
}

func testSettings() Settings {
	return Settings{
		WaitTimeout:          2 * time.Minute,
		Duration:             300 * time.Second,
		EarlyLeaveWindow:     60 * time.Second,
		MaxPendingPerWhisper: 2,
		WhisperRate:          decimal.RequireFromString("0.70"),
		PayoutDelay:          72 * time.Hour,
		HeartbeatTTL:         30 * time.Second,
		MaxCommentLength:     500,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	store.seedProfile(whisperID, 2, true)
	store.setCoins(callerID, 10)

	h := &harness{
		store:    store,
		clock:    newFakeClock(),
		events:   &recordingPublisher{},
		notifier: &recordingNotifier{},
		settings: testSettings(),
	}
	h.manager = h.newManager()
	t.Cleanup(h.manager.Close)

	return h
}

// newManager builds a second Manager over the same store, as a restarted
// process would.
func (h *harness) newManager() *Manager {
	return NewManager(Options{
		Store:    h.store,
		Clock:    h.clock,
		Settings: h.settings,
		Events:   h.events,
		Notifier: h.notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func (h *harness) initiate(t *testing.T) *Session {
	t.Helper()
	s, err := h.manager.Initiate(context.Background(), callerID, whisperID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return s
}

func (h *harness) connected(t *testing.T) *Session {
	t.Helper()
	s := h.initiate(t)
	if _, err := h.manager.Accept(context.Background(), s.ID, whisperID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	s, err := h.manager.MarkConnected(context.Background(), s.ID, callerID)
	if err != nil {
		t.Fatalf("mark connected: %v", err)
	}
	return s
}
