// AngelaMos | 2026
// manager.go

package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/whisperme/whisper-api/internal/account"
	"github.com/whisperme/whisper-api/internal/config"
	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/events"
	"github.com/whisperme/whisper-api/internal/ledger"
)

const timerCallbackTimeout = 10 * time.Second

type Settings struct {
	WaitTimeout          time.Duration
	Duration             time.Duration
	EarlyLeaveWindow     time.Duration
	MaxPendingPerWhisper int
	WhisperRate          decimal.Decimal
	PayoutDelay          time.Duration
	HeartbeatTTL         time.Duration
	MaxCommentLength     int
}

func SettingsFromConfig(cfg config.CallConfig) (Settings, error) {
	rate, err := decimal.NewFromString(cfg.WhisperRate)
	if err != nil {
		return Settings{}, fmt.Errorf("parse whisper rate: %w", err)
	}

	return Settings{
		WaitTimeout:          cfg.WaitTimeout,
		Duration:             cfg.Duration,
		EarlyLeaveWindow:     cfg.EarlyLeaveWindow,
		MaxPendingPerWhisper: cfg.MaxPendingPerWhisper,
		WhisperRate:          rate,
		PayoutDelay:          cfg.PayoutDelay,
		HeartbeatTTL:         cfg.HeartbeatTTL,
		MaxCommentLength:     cfg.MaxCommentLength,
	}, nil
}

// Notifier tears down the live audio legs of a session once it is over.
type Notifier interface {
	CloseSession(sessionID, reason string)
}

type Options struct {
	Store    Store
	Clock    Clock
	Settings Settings
	Events   events.Publisher
	Notifier Notifier
	Logger   *slog.Logger
}

// Manager owns every CallSession state change. Each operation runs in one
// store transaction that row-locks the session, so concurrent requests from
// both participants, timers and the supervisor serialize on the database.
type Manager struct {
	store    Store
	clock    Clock
	settings Settings
	events   events.Publisher
	notifier Notifier
	timers   *timerSet
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Manager{
		store:    opts.Store,
		clock:    opts.Clock,
		settings: opts.Settings,
		events:   opts.Events,
		notifier: opts.Notifier,
		timers:   newTimerSet(opts.Clock),
		logger:   opts.Logger.With("component", "call"),
		tracer:   core.Tracer("call"),
	}
}

// SetNotifier wires the presence hub after construction; the hub itself
// needs the Manager.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

func (m *Manager) Settings() Settings {
	return m.settings
}

// Close stops every pending in-process timer.
func (m *Manager) Close() {
	m.timers.stopAll()
}

func (m *Manager) Initiate(
	ctx context.Context,
	callerID, whisperID string,
) (*Session, error) {
	ctx, span := core.StartSessionSpan(ctx, m.tracer, "call.Initiate", "",
		core.AttrUserID.String(callerID))
	defer span.End()

	if callerID == whisperID {
		return nil, m.fail(ctx, "initiate call",
			fmt.Errorf("cannot call yourself: %w", core.ErrInvalidInput))
	}

	now := m.clock.Now()
	var session *Session

	err := m.store.InTx(ctx, func(r Repos) error {
		whisper, err := r.Profiles.GetForUpdate(ctx, whisperID)
		if err != nil {
			return err
		}
		if !whisper.Available {
			return ErrWhisperUnavailable
		}

		pending, err := r.Sessions.CountWaiting(ctx, whisperID, now)
		if err != nil {
			return err
		}
		if pending >= m.settings.MaxPendingPerWhisper {
			return ErrWhisperOverloaded
		}

		price := int64(whisper.CallPrice)
		if err := r.Accounts.Debit(ctx, callerID, price); err != nil {
			if errors.Is(err, account.ErrInsufficientFunds) {
				return ErrInsufficientFunds
			}
			return err
		}

		session = &Session{
			ID:        uuid.New().String(),
			CallerID:  callerID,
			WhisperID: whisperID,
			Price:     price,
			Status:    StatusWaiting,
			CreatedAt: now,
			ExpiresAt: now.Add(m.settings.WaitTimeout),
		}
		if err := r.Sessions.Insert(ctx, session); err != nil {
			return err
		}

		return r.Ledger.Append(ctx, m.transaction(
			callerID, ledger.TypeCallHeld, price, session.ID,
			ledger.StatusPending, now,
		))
	})
	if err != nil {
		return nil, m.fail(ctx, "initiate call", err)
	}

	m.armExpiry(session)
	m.publish(ctx, events.CallInitiated, session)
	m.logger.Info("call initiated",
		"session_id", session.ID,
		"caller_id", callerID,
		"whisper_id", whisperID,
		"price", session.Price,
	)

	return session, nil
}

// Accept moves a waiting request straight through accepted to in_progress.
// The same whisper accepting again is a no-op.
func (m *Manager) Accept(
	ctx context.Context,
	sessionID, whisperID string,
) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.Accept", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	accepted, lapsed := false, false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if s.WhisperID != whisperID {
			return fmt.Errorf("addressed to another whisper: %w", ErrConflict)
		}

		switch s.Status {
		case StatusAccepted, StatusInProgress:
			return nil
		case StatusTimeout:
			return ErrSessionExpired
		case StatusWaiting:
		default:
			return fmt.Errorf("session is %s: %w", s.Status, ErrConflict)
		}

		if !now.Before(s.ExpiresAt) {
			lapsed = true
			return ErrSessionExpired
		}

		whisper, err := r.Profiles.GetForUpdate(ctx, whisperID)
		if err != nil {
			return err
		}
		if !whisper.Available {
			return ErrWhisperUnavailable
		}

		if err := s.advance(StatusAccepted); err != nil {
			return err
		}
		s.AcceptedAt = &now
		s.WhisperJoinedAt = &now
		if err := s.advance(StatusInProgress); err != nil {
			return err
		}
		s.LastHeartbeatAt = &now
		accepted = true

		return r.Sessions.Update(ctx, s, StatusWaiting)
	})
	if err != nil {
		if lapsed {
			m.expireAsync(sessionID)
		}
		return nil, m.fail(ctx, "accept call", err)
	}

	if accepted {
		m.timers.stop(sessionID, timerExpire)
		m.publish(ctx, events.CallAccepted, session)
		m.logger.Info("call accepted", "session_id", sessionID)
	}

	return session, nil
}

func (m *Manager) Reject(
	ctx context.Context,
	sessionID, whisperID string,
) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.Reject", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	rejected := false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if s.WhisperID != whisperID {
			return fmt.Errorf("addressed to another whisper: %w", ErrConflict)
		}
		switch s.Status {
		case StatusRejected:
			return nil
		case StatusWaiting:
		case StatusTimeout:
			return ErrSessionExpired
		default:
			return fmt.Errorf("session is %s: %w", s.Status, ErrConflict)
		}

		if err := s.advance(StatusRejected); err != nil {
			return err
		}
		s.EndedAt = &now
		s.Refunded = true
		rejected = true

		if err := r.Sessions.Update(ctx, s, StatusWaiting); err != nil {
			return err
		}
		return m.refundHold(ctx, r, s, now)
	})
	if err != nil {
		return nil, m.fail(ctx, "reject call", err)
	}

	if rejected {
		m.timers.stop(sessionID, timerExpire)
		m.publish(ctx, events.CallRejected, session)
		m.logger.Info("call rejected", "session_id", sessionID)
	}

	return session, nil
}

// ExpireSession times out a waiting request whose deadline has passed and
// refunds the hold. It is safe to call any number of times; only the call
// that actually flips the status refunds.
func (m *Manager) ExpireSession(ctx context.Context, sessionID string) (bool, error) {
	ctx, span := m.startSpan(ctx, "call.Expire", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	expired := false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.Status != StatusWaiting || now.Before(s.ExpiresAt) {
			return nil
		}

		if err := s.advance(StatusTimeout); err != nil {
			return err
		}
		s.EndedAt = &now
		s.Refunded = true
		session = s
		expired = true

		if err := r.Sessions.Update(ctx, s, StatusWaiting); err != nil {
			return err
		}
		return m.refundHold(ctx, r, s, now)
	})
	if err != nil {
		return false, m.fail(ctx, "expire call", err)
	}

	if expired {
		m.timers.stop(sessionID, timerExpire)
		m.publish(ctx, events.CallTimeout, session)
		m.logger.Info("call request timed out", "session_id", sessionID)
	}

	return expired, nil
}

// Authorize returns the session if userID may be on its audio channel now.
func (m *Manager) Authorize(
	ctx context.Context,
	sessionID, userID string,
) (*Session, error) {
	s, err := m.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, wrapOp("authorize channel", err)
	}
	if !s.IsParticipant(userID) {
		return nil, wrapOp("authorize channel", core.ErrForbidden)
	}
	if s.Status != StatusInProgress {
		return nil, wrapOp("authorize channel",
			fmt.Errorf("session is %s: %w", s.Status, ErrConflict))
	}
	return s, nil
}

// MarkConnected records that a participant observed the peer's media. The
// first report starts billable time and the countdown.
func (m *Manager) MarkConnected(
	ctx context.Context,
	sessionID, userID string,
) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.MarkConnected", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	started := false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if !s.IsParticipant(userID) {
			return core.ErrForbidden
		}
		if s.Status.IsTerminal() || s.BillableStartedAt != nil {
			return nil
		}
		if s.Status != StatusInProgress {
			return fmt.Errorf("session is %s: %w", s.Status, ErrConflict)
		}

		s.BillableStartedAt = &now
		s.LastHeartbeatAt = &now
		started = true

		return r.Sessions.Update(ctx, s, StatusInProgress)
	})
	if err != nil {
		return nil, m.fail(ctx, "mark connected", err)
	}

	if started {
		m.armCountdown(session)
		m.publish(ctx, events.CallConnected, session)
		m.logger.Info("call connected", "session_id", sessionID)
	}

	return session, nil
}

func (m *Manager) Heartbeat(ctx context.Context, sessionID, userID string) error {
	now := m.clock.Now()

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if !s.IsParticipant(userID) {
			return core.ErrForbidden
		}
		if s.Status != StatusInProgress {
			return nil
		}

		s.LastHeartbeatAt = &now
		return r.Sessions.Update(ctx, s, StatusInProgress)
	})
	if err != nil {
		return wrapOp("heartbeat", err)
	}
	return nil
}

// Leave handles a participant dropping off the channel. A departure before
// media connected fails the call and returns the hold. A departure in the
// first EarlyLeaveWindow of billable time is flagged for reconciliation.
func (m *Manager) Leave(
	ctx context.Context,
	sessionID, userID string,
) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.Leave", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	ended, flagged, refunded := false, false, false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if !s.IsParticipant(userID) {
			return core.ErrForbidden
		}
		if s.Status != StatusInProgress {
			return nil
		}

		if s.BillableStartedAt == nil {
			if err := s.advance(StatusFailed); err != nil {
				return err
			}
			s.LeftEarlyBy = s.PartyOf(userID)
			s.EndReason = ReasonUserLeft
			s.EndedAt = &now
			s.Refunded = true
			refunded = true

			if err := r.Sessions.Update(ctx, s, StatusInProgress); err != nil {
				return err
			}
			return m.refundHold(ctx, r, s, now)
		}

		left := s.TimeLeft(now, m.settings.Duration)
		if left > m.settings.Duration-m.settings.EarlyLeaveWindow {
			s.LeftEarlyBy = s.PartyOf(userID)
			if s.LeftEarlyBy == PartyWhisper {
				s.RefundEligible = true
			}
			flagged = true
		}

		ended = true
		return m.finish(ctx, r, s, ReasonUserLeft, now)
	})
	if err != nil {
		return nil, m.fail(ctx, "leave call", err)
	}

	if refunded {
		m.timers.stop(sessionID, timerExpire, timerCountdown)
		if m.notifier != nil {
			m.notifier.CloseSession(sessionID, string(ReasonUserLeft))
		}
		m.publish(ctx, events.CallFailed, session)
		m.logger.Warn("participant left before media",
			"session_id", sessionID,
			"left_early_by", session.LeftEarlyBy,
		)
		return session, nil
	}

	if !ended {
		return session, nil
	}

	if flagged {
		m.publish(ctx, events.CallFlagged, session)
		m.logger.Warn("early departure flagged",
			"session_id", sessionID,
			"left_early_by", session.LeftEarlyBy,
		)
	}

	return m.afterEnd(ctx, session), nil
}

// End terminates an in-progress call exactly once. userID is empty for
// server-initiated ends. A client-reported time_up that arrives before the
// server countdown has run out is ignored; the server timer ends the call.
func (m *Manager) End(
	ctx context.Context,
	sessionID, userID string,
	reason EndReason,
) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.End", sessionID)
	defer span.End()

	if !reason.Valid() {
		return nil, m.fail(ctx, "end call",
			fmt.Errorf("unknown end reason %q: %w", reason, core.ErrInvalidInput))
	}

	now := m.clock.Now()
	var session *Session
	ended := false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if userID != "" && !s.IsParticipant(userID) {
			return core.ErrForbidden
		}
		if s.Status.IsTerminal() {
			return nil
		}
		if s.Status != StatusInProgress {
			return fmt.Errorf("session is %s: %w", s.Status, ErrConflict)
		}
		if reason == ReasonTimeUp && s.TimeLeft(now, m.settings.Duration) > 0 {
			return nil
		}

		ended = true
		return m.finish(ctx, r, s, reason, now)
	})
	if err != nil {
		return nil, m.fail(ctx, "end call", err)
	}

	if !ended {
		return session, nil
	}

	return m.afterEnd(ctx, session), nil
}

func (m *Manager) finish(
	ctx context.Context,
	r Repos,
	s *Session,
	reason EndReason,
	now time.Time,
) error {
	left := s.TimeLeft(now, m.settings.Duration)

	target := StatusCompleted
	switch s.LeftEarlyBy {
	case PartyCaller:
		target = StatusCallerLeftEarly
	case PartyWhisper:
		target = StatusUserLeft
	}

	previous := s.Status
	if err := s.advance(target); err != nil {
		return err
	}
	s.EndReason = reason
	s.EndedAt = &now
	s.CallDuration = int((m.settings.Duration - left) / time.Second)
	s.SettlementDue = left <= 0

	return r.Sessions.Update(ctx, s, previous)
}

func (m *Manager) afterEnd(ctx context.Context, s *Session) *Session {
	m.timers.stop(s.ID, timerExpire, timerCountdown)
	if m.notifier != nil {
		m.notifier.CloseSession(s.ID, string(s.EndReason))
	}

	m.publish(ctx, events.CallEnded, s)
	m.logger.Info("call ended",
		"session_id", s.ID,
		"status", s.Status,
		"reason", s.EndReason,
		"duration_s", s.CallDuration,
		"settlement_due", s.SettlementDue,
	)

	if !s.SettlementDue {
		return s
	}

	settled, _, err := m.settle(ctx, s.ID)
	if err != nil {
		m.logger.Warn("settlement deferred to supervisor",
			"session_id", s.ID,
			"error", err,
		)
		return s
	}
	if settled != nil {
		return settled
	}
	return s
}

// Settle credits the whisper for a completed full-length call. The guard
// (settlement due, not yet transferred) is checked under the row lock, so
// concurrent or repeated calls produce one Earning.
func (m *Manager) Settle(ctx context.Context, sessionID string) (bool, error) {
	_, done, err := m.settle(ctx, sessionID)
	return done, err
}

func (m *Manager) settle(ctx context.Context, sessionID string) (*Session, bool, error) {
	ctx, span := m.startSpan(ctx, "call.Settle", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	var amount decimal.Decimal
	settled := false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if !s.SettlementDue || s.EarningsTransferred {
			return nil
		}

		s.EarningsTransferred = true
		if err := r.Sessions.Update(ctx, s, s.Status); err != nil {
			return err
		}

		amount = decimal.NewFromInt(s.Price).Mul(m.settings.WhisperRate)
		if err := r.Accounts.RecordEarning(ctx, s.WhisperID, amount); err != nil {
			return err
		}

		if err := r.Ledger.CreateEarning(ctx, &ledger.Earning{
			ID:         uuid.New().String(),
			WhisperID:  s.WhisperID,
			SessionID:  s.ID,
			Amount:     amount,
			Status:     ledger.EarningPending,
			PayoutDate: now.Add(m.settings.PayoutDelay),
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		settled = true
		return r.Ledger.Append(ctx, m.transaction(
			s.CallerID, ledger.TypeCallCharge, s.Price, s.ID,
			ledger.StatusCompleted, now,
		))
	})
	if err != nil {
		return nil, false, m.fail(ctx, "settle call", err)
	}

	if settled {
		m.publishAmount(ctx, events.CallSettled, session, amount)
		m.logger.Info("call settled",
			"session_id", sessionID,
			"whisper_id", session.WhisperID,
			"amount", amount.String(),
		)
	}

	return session, settled, nil
}

// Fail ends a session whose audio channel never came up and refunds the
// hold. Once billable time has started the call must be ended instead.
// userID is empty when the supervisor reclaims the session.
func (m *Manager) Fail(
	ctx context.Context,
	sessionID, userID string,
) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.Fail", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	failed := false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if userID != "" && !s.IsParticipant(userID) {
			return core.ErrForbidden
		}
		if s.Status.IsTerminal() {
			return nil
		}
		if s.Status != StatusInProgress || s.BillableStartedAt != nil {
			return fmt.Errorf("session is %s: %w", s.Status, ErrConflict)
		}

		if err := s.advance(StatusFailed); err != nil {
			return err
		}
		s.EndReason = ReasonChannelFailed
		s.EndedAt = &now
		s.Refunded = true
		failed = true

		if err := r.Sessions.Update(ctx, s, StatusInProgress); err != nil {
			return err
		}
		return m.refundHold(ctx, r, s, now)
	})
	if err != nil {
		return nil, m.fail(ctx, "fail call", err)
	}

	if failed {
		m.timers.stop(sessionID, timerExpire, timerCountdown)
		if m.notifier != nil {
			m.notifier.CloseSession(sessionID, string(ReasonChannelFailed))
		}
		m.publish(ctx, events.CallFailed, session)
		m.logger.Warn("call failed before media", "session_id", sessionID)
	}

	return session, nil
}

// Reclaim ends an in-progress session both clients stopped reporting on.
// Without billable time the caller gets the hold back.
func (m *Manager) Reclaim(ctx context.Context, sessionID string) (*Session, error) {
	s, err := m.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, wrapOp("reclaim call", err)
	}

	if s.BillableStartedAt == nil {
		failed, err := m.Fail(ctx, sessionID, "")
		if err == nil || !errors.Is(err, ErrConflict) {
			return failed, err
		}
	}

	return m.End(ctx, sessionID, "", ReasonInactive)
}

// RefundFlagged returns the hold of a session the whisper abandoned early.
// It is the admin side of the reconciliation queue.
func (m *Manager) RefundFlagged(ctx context.Context, sessionID string) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.RefundFlagged", sessionID)
	defer span.End()

	now := m.clock.Now()
	var session *Session
	refunded := false

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if s.Refunded {
			return nil
		}
		if !s.RefundEligible || s.EarningsTransferred {
			return fmt.Errorf("session is not refund eligible: %w", ErrConflict)
		}

		s.Refunded = true
		refunded = true
		if err := r.Sessions.Update(ctx, s, s.Status); err != nil {
			return err
		}
		return m.refundHold(ctx, r, s, now)
	})
	if err != nil {
		return nil, m.fail(ctx, "refund flagged call", err)
	}

	if refunded {
		m.publish(ctx, events.CallRefunded, session)
		m.logger.Info("flagged call refunded", "session_id", sessionID)
	}

	return session, nil
}

func (m *Manager) SubmitRating(
	ctx context.Context,
	sessionID, userID string,
	rating int,
	comment string,
) (*Session, error) {
	ctx, span := m.startSpan(ctx, "call.SubmitRating", sessionID)
	defer span.End()

	if rating < 1 || rating > 5 {
		return nil, m.fail(ctx, "rate call",
			fmt.Errorf("rating must be 1-5: %w", core.ErrInvalidInput))
	}
	if len([]rune(comment)) > m.settings.MaxCommentLength {
		return nil, m.fail(ctx, "rate call",
			fmt.Errorf("comment longer than %d characters: %w",
				m.settings.MaxCommentLength, core.ErrInvalidInput))
	}

	now := m.clock.Now()
	var session *Session

	err := m.store.InTx(ctx, func(r Repos) error {
		s, err := r.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		session = s

		if !s.IsParticipant(userID) {
			return core.ErrForbidden
		}
		if !s.Status.Ended() {
			return fmt.Errorf("session is %s: %w", s.Status, ErrConflict)
		}
		if s.Rating != nil {
			return ErrAlreadyRated
		}

		s.Rating = &rating
		s.Comment = comment
		s.RatedBy = userID
		s.RatedAt = &now
		if err := r.Sessions.Update(ctx, s, s.Status); err != nil {
			return err
		}

		if userID == s.CallerID {
			return r.Accounts.AddRating(ctx, s.WhisperID, rating)
		}
		return nil
	})
	if err != nil {
		return nil, m.fail(ctx, "rate call", err)
	}

	m.publish(ctx, events.CallRated, session)

	return session, nil
}

func (m *Manager) Get(ctx context.Context, sessionID, userID string) (*Session, error) {
	s, err := m.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, wrapOp("get call", err)
	}
	if !s.IsParticipant(userID) {
		return nil, wrapOp("get call", core.ErrForbidden)
	}
	return s, nil
}

// GetAny loads a session without a participant check, for admin tooling.
func (m *Manager) GetAny(ctx context.Context, sessionID string) (*Session, error) {
	s, err := m.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, wrapOp("get call", err)
	}
	return s, nil
}

func (m *Manager) ListPending(ctx context.Context, whisperID string) ([]Session, error) {
	sessions, err := m.store.Sessions().ListPending(ctx, whisperID, m.clock.Now())
	if err != nil {
		return nil, wrapOp("list pending calls", err)
	}
	return sessions, nil
}

func (m *Manager) History(
	ctx context.Context,
	userID string,
	page, pageSize int,
) ([]Session, int, error) {
	sessions, total, err := m.store.Sessions().ListByParticipant(
		ctx, userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, wrapOp("call history", err)
	}
	return sessions, total, nil
}

func (m *Manager) Flagged(
	ctx context.Context,
	page, pageSize int,
) ([]Session, int, error) {
	sessions, total, err := m.store.Sessions().ListFlagged(
		ctx, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, wrapOp("list flagged calls", err)
	}
	return sessions, total, nil
}

func (m *Manager) refundHold(ctx context.Context, r Repos, s *Session, now time.Time) error {
	if err := r.Accounts.Credit(ctx, s.CallerID, s.Price); err != nil {
		return err
	}
	return r.Ledger.Append(ctx, m.transaction(
		s.CallerID, ledger.TypeRefund, s.Price, s.ID,
		ledger.StatusCompleted, now,
	))
}

func (m *Manager) transaction(
	userID string,
	kind ledger.TransactionType,
	amount int64,
	sessionID string,
	status ledger.TransactionStatus,
	now time.Time,
) *ledger.Transaction {
	return &ledger.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      kind,
		Amount:    amount,
		SessionID: &sessionID,
		Status:    status,
		CreatedAt: now,
	}
}

func (m *Manager) armExpiry(s *Session) {
	id := s.ID
	m.timers.arm(id, timerExpire, s.ExpiresAt.Sub(m.clock.Now()), func() {
		m.expireAsync(id)
	})
}

func (m *Manager) expireAsync(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timerCallbackTimeout)
	defer cancel()

	if _, err := m.ExpireSession(ctx, sessionID); err != nil {
		m.logger.Error("expire call", "session_id", sessionID, "error", err)
	}
}

func (m *Manager) armCountdown(s *Session) {
	id := s.ID
	remaining := s.TimeLeft(m.clock.Now(), m.settings.Duration)
	m.timers.arm(id, timerCountdown, remaining, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timerCallbackTimeout)
		defer cancel()

		if _, err := m.End(ctx, id, "", ReasonTimeUp); err != nil {
			m.logger.Error("end call on countdown", "session_id", id, "error", err)
		}
	})
}

func (m *Manager) startSpan(
	ctx context.Context,
	name, sessionID string,
) (context.Context, trace.Span) {
	return core.StartSessionSpan(ctx, m.tracer, name, sessionID)
}

func (m *Manager) fail(ctx context.Context, op string, err error) error {
	err = wrapOp(op, err)
	core.RecordOutcome(ctx, err, !errors.Is(err, ErrStoreWriteFailed))
	return err
}

func (m *Manager) publish(ctx context.Context, kind events.Type, s *Session) {
	m.publishAmount(ctx, kind, s, decimal.Zero)
}

func (m *Manager) publishAmount(
	ctx context.Context,
	kind events.Type,
	s *Session,
	amount decimal.Decimal,
) {
	event := events.Event{
		ID:         uuid.New().String(),
		Type:       kind,
		SessionID:  s.ID,
		CallerID:   s.CallerID,
		WhisperID:  s.WhisperID,
		Status:     string(s.Status),
		Reason:     string(s.EndReason),
		OccurredAt: m.clock.Now(),
	}
	if !amount.IsZero() {
		event.Amount = amount.String()
	}

	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Warn("publish call event",
			"type", kind,
			"session_id", s.ID,
			"error", err,
		)
	}
}
