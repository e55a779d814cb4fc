package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

const (
	metaStreak        = "streak"
	metaLastCompleted = "last_completed_date"
)

// ErrNoActiveSession is returned when completing or cancelling without an
// active session.
var ErrNoActiveSession = errors.New("no active focus session")

// Verifier decides whether an after-photo resolves a verification task.
// Verification failure is a normal outcome, never an error.
type Verifier interface {
	Verify(task domain.VerificationTask, afterPhotoRef string) bool
}

// PhotoPresenceVerifier accepts any non-empty after-photo reference.
type PhotoPresenceVerifier struct{}

func (PhotoPresenceVerifier) Verify(_ domain.VerificationTask, afterPhotoRef string) bool {
	return afterPhotoRef != ""
}

// SessionDescriptor carries the parameters for starting a lock-in session.
type SessionDescriptor struct {
	Type            domain.SessionType
	DurationMinutes int
	BlockedApps     []string
	RequiresTask    bool
	BeforePhotoRef  string
}

// CompleteResult is the outcome of a completion attempt.
type CompleteResult struct {
	Completed          bool
	VerificationFailed bool
	// FirstOfDay reports whether this was the first completed activity of
	// the current calendar day.
	FirstOfDay   bool
	PointsEarned int
}

// SessionManager owns the focus-session state machine:
// Idle -> Active -> {Completed, Cancelled}. At most one session is active
// system-wide; all mutations go through here so the invariant is enforced
// in one place.
type SessionManager struct {
	store    domain.Store
	wallet   *Wallet
	syncer   *Syncer
	clock    domain.Clock
	verifier Verifier
	logger   *zap.Logger

	mu sync.Mutex
}

// NewSessionManager creates a session manager with the default verifier.
func NewSessionManager(store domain.Store, wallet *Wallet, syncer *Syncer, clock domain.Clock, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		wallet:   wallet,
		syncer:   syncer,
		clock:    clock,
		verifier: PhotoPresenceVerifier{},
		logger:   logger,
	}
}

// WithVerifier replaces the verification policy.
func (m *SessionManager) WithVerifier(v Verifier) *SessionManager {
	m.verifier = v
	return m
}

// Active returns the current session, or nil when idle.
func (m *SessionManager) Active() (*domain.FocusSession, error) {
	return m.store.CurrentSession()
}

// Start begins a new session. Starting while one is already active is a
// logged no-op that leaves the existing session untouched; it returns
// false rather than silently replacing an in-progress commitment.
func (m *SessionManager) Start(ctx context.Context, desc SessionDescriptor) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.CurrentSession()
	if err != nil {
		m.logger.Warn("failed to read current session, assuming idle", zap.Error(err))
	}
	if current != nil && current.Active {
		m.logger.Info("start rejected, session already active",
			zap.String("session_id", current.ID))
		return false, nil
	}

	sess := domain.FocusSession{
		ID:              uuid.NewString(),
		Type:            desc.Type,
		StartTime:       m.clock.Now(),
		DurationMinutes: desc.DurationMinutes,
		BlockedApps:     append([]string(nil), desc.BlockedApps...),
		RequiresTask:    desc.RequiresTask,
		BeforePhotoRef:  desc.BeforePhotoRef,
		Active:          true,
	}

	if err := m.store.SaveCurrentSession(&sess); err != nil {
		return false, err
	}

	blockType := domain.BlockFocus
	if desc.RequiresTask {
		blockType = domain.BlockTask
	}
	for _, target := range sess.BlockedApps {
		if err := m.store.SaveBlockedApp(domain.BlockedApp{
			TargetID: target,
			Type:     blockType,
		}); err != nil {
			m.logger.Warn("failed to persist session block",
				zap.String("target", target), zap.Error(err))
		}
	}

	if desc.RequiresTask && desc.BeforePhotoRef != "" {
		task := domain.VerificationTask{
			ID:             uuid.NewString(),
			SessionID:      sess.ID,
			BeforePhotoRef: desc.BeforePhotoRef,
			TargetApps:     append([]string(nil), desc.BlockedApps...),
			Status:         domain.TaskPending,
		}
		if err := m.store.SaveTask(task); err != nil {
			m.logger.Warn("failed to persist verification task", zap.Error(err))
		}
	}

	if err := m.syncer.Push(ctx); err != nil {
		m.logger.Warn("blocked set push failed after session start", zap.Error(err))
	}

	m.logger.Info("focus session started",
		zap.String("session_id", sess.ID),
		zap.String("type", string(sess.Type)),
		zap.Int("duration_min", sess.DurationMinutes),
		zap.Int("blocked_apps", len(sess.BlockedApps)))
	return true, nil
}

// Complete attempts the Active -> Completed transition. When the session
// requires task completion the transition is gated: the after-photo must
// pass verification, otherwise the session stays Active, no history is
// recorded and the wallet is untouched.
func (m *SessionManager) Complete(ctx context.Context, afterPhotoRef string, earnedMinutes int) (CompleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.CurrentSession()
	if err != nil {
		return CompleteResult{}, err
	}
	if sess == nil || !sess.Active {
		return CompleteResult{}, ErrNoActiveSession
	}

	if sess.RequiresTask {
		task, err := m.store.TaskForSession(sess.ID)
		if err != nil {
			return CompleteResult{}, err
		}
		if task != nil {
			if !m.verifier.Verify(*task, afterPhotoRef) {
				m.logger.Info("verification failed, session stays active",
					zap.String("session_id", sess.ID))
				return CompleteResult{VerificationFailed: true}, nil
			}
			task.AfterPhotoRef = afterPhotoRef
			task.Status = domain.TaskCompleted
			if err := m.store.SaveTask(*task); err != nil {
				m.logger.Warn("failed to persist completed task", zap.Error(err))
			}
		}
	}

	now := m.clock.Now()
	points := sessionPoints(sess.Type, sess.DurationMinutes)
	firstOfDay := !m.completedToday(now)

	record := domain.LockInRecord{
		ID:              sess.ID,
		Type:            sess.Type,
		DurationMinutes: sess.DurationMinutes,
		StartedAt:       sess.StartTime,
		CompletedAt:     &now,
		Status:          domain.StatusCompleted,
		PointsEarned:    points,
	}
	if err := m.store.AppendHistory(record); err != nil {
		m.logger.Warn("failed to append session history", zap.Error(err))
	}

	m.clearSessionState(sess)

	if firstOfDay {
		m.advanceStreak(now)
	}

	if sess.Type == domain.SessionVerified && earnedMinutes > 0 {
		m.wallet.Earn("focus_session", earnedMinutes, "verified lock-in")
	}

	if err := m.syncer.Push(ctx); err != nil {
		m.logger.Warn("blocked set push failed after completion", zap.Error(err))
	}

	m.logger.Info("focus session completed",
		zap.String("session_id", sess.ID),
		zap.Int("points", points),
		zap.Bool("first_of_day", firstOfDay))

	return CompleteResult{
		Completed:    true,
		FirstOfDay:   firstOfDay,
		PointsEarned: points,
	}, nil
}

// Cancel moves Active -> Cancelled and resets the consecutive-day streak to
// zero; cancelling is a harder penalty than not starting. The cleared
// blocked set is pushed to the bridge before returning, so the block is
// lifted immediately rather than on the next evaluator tick.
func (m *SessionManager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.CurrentSession()
	if err != nil {
		return err
	}
	if sess == nil || !sess.Active {
		return ErrNoActiveSession
	}

	now := m.clock.Now()
	record := domain.LockInRecord{
		ID:              sess.ID,
		Type:            sess.Type,
		DurationMinutes: sess.DurationMinutes,
		StartedAt:       sess.StartTime,
		CompletedAt:     &now,
		Status:          domain.StatusCancelled,
	}
	if err := m.store.AppendHistory(record); err != nil {
		m.logger.Warn("failed to append session history", zap.Error(err))
	}

	m.clearSessionState(sess)

	if err := m.store.SetMeta(metaStreak, "0"); err != nil {
		m.logger.Warn("failed to reset streak", zap.Error(err))
	}

	if err := m.syncer.Push(ctx); err != nil {
		m.logger.Warn("blocked set push failed after cancellation", zap.Error(err))
	}

	m.logger.Info("focus session cancelled", zap.String("session_id", sess.ID))
	return nil
}

// Streak returns the consecutive-day completion counter.
func (m *SessionManager) Streak() int {
	value, err := m.store.GetMeta(metaStreak)
	if err != nil || value == "" {
		return 0
	}
	streak, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return streak
}

// clearSessionState removes the session singleton and its block entries.
func (m *SessionManager) clearSessionState(sess *domain.FocusSession) {
	if err := m.store.SaveCurrentSession(nil); err != nil {
		m.logger.Warn("failed to clear current session", zap.Error(err))
	}
	for _, target := range sess.BlockedApps {
		for _, bt := range []domain.BlockType{domain.BlockFocus, domain.BlockTask} {
			if err := m.store.RemoveBlockedApp(target, bt); err != nil {
				m.logger.Warn("failed to remove session block",
					zap.String("target", target), zap.Error(err))
			}
		}
	}
}

// completedToday reports whether history already holds a completed record
// for the current calendar day.
func (m *SessionManager) completedToday(now time.Time) bool {
	records, err := m.store.History()
	if err != nil {
		m.logger.Warn("failed to read session history", zap.Error(err))
		return false
	}
	today := now.Format(dateLayout)
	for _, r := range records {
		if r.Status == domain.StatusCompleted && r.CompletedAt != nil &&
			r.CompletedAt.Format(dateLayout) == today {
			return true
		}
	}
	return false
}

// advanceStreak increments the streak when yesterday also had a completion,
// otherwise restarts it at one.
func (m *SessionManager) advanceStreak(now time.Time) {
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	last, err := m.store.GetMeta(metaLastCompleted)
	if err != nil {
		m.logger.Warn("failed to read last completion date", zap.Error(err))
	}

	streak := 1
	if last == yesterday {
		streak = m.Streak() + 1
	}

	if err := m.store.SetMeta(metaStreak, strconv.Itoa(streak)); err != nil {
		m.logger.Warn("failed to persist streak", zap.Error(err))
	}
	if err := m.store.SetMeta(metaLastCompleted, now.Format(dateLayout)); err != nil {
		m.logger.Warn("failed to persist last completion date", zap.Error(err))
	}
}

func sessionPoints(t domain.SessionType, durationMinutes int) int {
	if t == domain.SessionVerified {
		return 2 * durationMinutes
	}
	return durationMinutes
}
