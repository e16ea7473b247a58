package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/store"
)

const (
	// DefaultIdleTimeout ends sessions that have not seen a turn for this long.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultHoldTimeout releases a selected flight that was never confirmed.
	DefaultHoldTimeout = 10 * time.Minute
)

// SessionOpts holds configuration for a SessionManager.
type SessionOpts struct {
	IdleTimeout time.Duration
	HoldTimeout time.Duration
}

// SessionOption defines a configuration option for a SessionManager.
type SessionOption func(*SessionOpts)

// WithIdleTimeout sets how long an idle session is kept.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(o *SessionOpts) {
		o.IdleTimeout = d
	}
}

// WithHoldTimeout sets how long a selected flight is held awaiting confirmation.
func WithHoldTimeout(d time.Duration) SessionOption {
	return func(o *SessionOpts) {
		o.HoldTimeout = d
	}
}

type session struct {
	mu    sync.Mutex
	state *models.ConversationState
	// queued directives raised between turns, delivered with the next turn
	queued    []models.Directive
	idleTimer string
	holdTimer string
	holdFor   string
}

// SessionManager owns the conversation states. Turns for one session are
// serialized; different sessions run concurrently.
type SessionManager struct {
	ctrl  *Controller
	timer Timer
	dedup store.DedupRepo
	idle  time.Duration
	hold  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	inflight map[string]context.CancelFunc
}

// NewSessionManager creates a SessionManager. dedup may be nil to disable turn
// deduplication.
func NewSessionManager(ctrl *Controller, timer Timer, dedup store.DedupRepo, opts ...SessionOption) *SessionManager {
	cfg := SessionOpts{IdleTimeout: DefaultIdleTimeout, HoldTimeout: DefaultHoldTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SessionManager created", "idleTimeout", cfg.IdleTimeout, "holdTimeout", cfg.HoldTimeout, "dedup", dedup != nil)
	return &SessionManager{
		ctrl:     ctrl,
		timer:    timer,
		dedup:    dedup,
		idle:     cfg.IdleTimeout,
		hold:     cfg.HoldTimeout,
		sessions: make(map[string]*session),
		inflight: make(map[string]context.CancelFunc),
	}
}

// HandleTurn applies turn to its session and returns the result. A turn ID seen
// before returns models.ErrDuplicateTurn without touching the session.
func (m *SessionManager) HandleTurn(ctx context.Context, turn models.Turn) (models.TurnResult, error) {
	if err := turn.Validate(); err != nil {
		slog.Debug("SessionManager.HandleTurn: invalid turn", "error", err)
		return models.TurnResult{}, err
	}

	if turn.TurnID != "" && m.dedup != nil {
		fresh, err := m.dedup.RecordInbound(turn.TurnID, turn.SessionID)
		if err != nil {
			slog.Error("SessionManager.HandleTurn: dedup record failed", "session", turn.SessionID, "turn", turn.TurnID, "error", err)
			return models.TurnResult{}, fmt.Errorf("failed to record turn: %w", err)
		}
		if !fresh {
			slog.Info("SessionManager.HandleTurn: duplicate turn", "session", turn.SessionID, "turn", turn.TurnID)
			return models.TurnResult{}, models.ErrDuplicateTurn
		}
	}

	sess := m.session(turn.SessionID, turn.UserID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	tctx, cancel := context.WithCancel(ctx)
	m.setInflight(turn.SessionID, cancel)
	defer func() {
		m.clearInflight(turn.SessionID)
		cancel()
	}()

	directives := append(sess.queued, m.ctrl.HandleTurn(tctx, sess.state, turn)...)
	sess.queued = nil
	sess.state.UpdatedAt = time.Now()

	m.scheduleIdle(turn.SessionID, sess)
	m.syncHold(turn.SessionID, sess)

	if turn.TurnID != "" && m.dedup != nil {
		if err := m.dedup.MarkProcessed(turn.TurnID); err != nil {
			slog.Warn("SessionManager.HandleTurn: mark processed failed", "turn", turn.TurnID, "error", err)
		}
	}

	slog.Debug("SessionManager.HandleTurn completed", "session", turn.SessionID, "directives", len(directives),
		"flow", sess.state.ActiveFlow, "stage", sess.state.Stage, "pending", sess.state.PendingField)
	return models.TurnResult{
		SessionID:  turn.SessionID,
		Directives: directives,
		Flow:       sess.state.ActiveFlow,
		Stage:      sess.state.Stage,
		Pending:    sess.state.PendingField,
	}, nil
}

// Snapshot returns a copy of a session's state.
func (m *SessionManager) Snapshot(sessionID string) (*models.ConversationState, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return cloneState(sess.state), nil
}

// EndSession cancels in-flight work and forgets the session.
func (m *SessionManager) EndSession(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	if cancel, busy := m.inflight[sessionID]; busy {
		cancel()
	}
	m.mu.Unlock()
	if !ok {
		return models.ErrSessionNotFound
	}

	sess.mu.Lock()
	m.cancelTimer(sess.idleTimer)
	m.cancelTimer(sess.holdTimer)
	sess.mu.Unlock()
	slog.Info("SessionManager.EndSession", "session", sessionID)
	return nil
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) session(sessionID, userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = &session{state: models.NewConversationState(sessionID, userID)}
		m.sessions[sessionID] = sess
		slog.Debug("SessionManager: session created", "session", sessionID, "user", sess.state.UserID)
	}
	return sess
}

func (m *SessionManager) setInflight(sessionID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.inflight[sessionID] = cancel
	m.mu.Unlock()
}

func (m *SessionManager) clearInflight(sessionID string) {
	m.mu.Lock()
	delete(m.inflight, sessionID)
	m.mu.Unlock()
}

func (m *SessionManager) cancelTimer(id string) {
	if id == "" || m.timer == nil {
		return
	}
	if err := m.timer.Cancel(id); err != nil {
		slog.Warn("SessionManager: cancel timer failed", "timer", id, "error", err)
	}
}

// scheduleIdle restarts the idle expiry of a session. Called with sess.mu held.
func (m *SessionManager) scheduleIdle(sessionID string, sess *session) {
	if m.timer == nil || m.idle <= 0 {
		return
	}
	m.cancelTimer(sess.idleTimer)
	id, err := m.timer.ScheduleNamed(m.idle, "idle expiry for session "+sessionID, func() { m.expire(sessionID, sess) })
	if err != nil {
		slog.Error("SessionManager: schedule idle expiry failed", "session", sessionID, "error", err)
		return
	}
	sess.idleTimer = id
}

func (m *SessionManager) expire(sessionID string, sess *session) {
	m.mu.Lock()
	if m.sessions[sessionID] != sess {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, sessionID)
	if cancel, busy := m.inflight[sessionID]; busy {
		cancel()
	}
	m.mu.Unlock()

	sess.mu.Lock()
	m.cancelTimer(sess.holdTimer)
	sess.mu.Unlock()
	slog.Info("SessionManager: session expired", "session", sessionID, "idle", m.idle)
}

// syncHold keeps exactly one hold timer while a selection awaits confirmation.
// Called with sess.mu held.
func (m *SessionManager) syncHold(sessionID string, sess *session) {
	st := sess.state
	holding := st.Stage == models.StageAwaitingFinalConfirm && st.Selected != nil
	if holding && sess.holdTimer != "" && sess.holdFor == st.Selected.ID {
		return
	}
	m.cancelTimer(sess.holdTimer)
	sess.holdTimer, sess.holdFor = "", ""
	if !holding || m.timer == nil || m.hold <= 0 {
		return
	}

	optionID := st.Selected.ID
	id, err := m.timer.ScheduleNamed(m.hold, "selection hold "+optionID+" for session "+sessionID,
		func() { m.releaseHold(sessionID, sess, optionID) })
	if err != nil {
		slog.Error("SessionManager: schedule hold failed", "session", sessionID, "error", err)
		return
	}
	sess.holdTimer, sess.holdFor = id, optionID
	slog.Debug("SessionManager: hold scheduled", "session", sessionID, "option", optionID, "timeout", m.hold)
}

// releaseHold returns an unconfirmed selection to the option list. The notice is
// delivered with the next turn.
func (m *SessionManager) releaseHold(sessionID string, sess *session, optionID string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	st := sess.state
	if st.Stage != models.StageAwaitingFinalConfirm || st.Selected == nil || st.Selected.ID != optionID {
		return
	}
	st.Selected = nil
	st.Stage = models.StageSelecting
	sess.holdTimer, sess.holdFor = "", ""
	sess.queued = append(sess.queued,
		models.Notify(models.NoticeSelectionReleased, map[string]string{"id": optionID}),
		m.ctrl.OptionsDirective(st),
	)
	slog.Info("SessionManager: selection released", "session", sessionID, "option", optionID)
}

// cloneState copies the parts of a state a reader might mutate.
func cloneState(st *models.ConversationState) *models.ConversationState {
	cp := *st
	cp.Collected = make(map[models.FieldName]models.Value, len(st.Collected))
	for k, v := range st.Collected {
		v.Items = append([]models.Location(nil), v.Items...)
		cp.Collected[k] = v
	}
	cp.FieldOrder = append([]models.FieldName(nil), st.FieldOrder...)
	cp.InterruptionStack = append([]models.SuspendedFlow(nil), st.InterruptionStack...)
	cp.Results = append([]models.BookingOption(nil), st.Results...)
	if st.Selected != nil {
		sel := *st.Selected
		cp.Selected = &sel
	}
	if st.Offer != nil {
		offer := *st.Offer
		cp.Offer = &offer
	}
	return &cp
}
