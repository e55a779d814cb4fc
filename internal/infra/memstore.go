package infra

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// MemoryStore implements domain.Store in memory. Used by tests and by the
// dry-run CLI mode; state is lost on exit.
type MemoryStore struct {
	mu sync.Mutex

	blocked   map[string]domain.BlockedApp // key: targetID + "\x00" + blockType
	schedules map[string]domain.BlockSchedule
	limits    map[string]domain.DailyLimit
	session   *domain.FocusSession
	tasks     map[string]domain.VerificationTask // key: session ID
	history   []domain.LockInRecord              // newest first
	ledger    []domain.LedgerEvent
	nextID    int64
	baselines map[string]map[string]int64 // date -> target -> ms
	lockins   map[string]domain.ScheduledLockIn
	meta      map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocked:   make(map[string]domain.BlockedApp),
		schedules: make(map[string]domain.BlockSchedule),
		limits:    make(map[string]domain.DailyLimit),
		tasks:     make(map[string]domain.VerificationTask),
		baselines: make(map[string]map[string]int64),
		lockins:   make(map[string]domain.ScheduledLockIn),
		meta:      make(map[string]string),
		nextID:    1,
	}
}

func blockKey(targetID string, bt domain.BlockType) string {
	return targetID + "\x00" + string(bt)
}

func (m *MemoryStore) BlockedApps() ([]domain.BlockedApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apps := make([]domain.BlockedApp, 0, len(m.blocked))
	for _, a := range m.blocked {
		apps = append(apps, a)
	}
	return apps, nil
}

func (m *MemoryStore) SaveBlockedApp(app domain.BlockedApp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[blockKey(app.TargetID, app.Type)] = app
	return nil
}

func (m *MemoryStore) RemoveBlockedApp(targetID string, blockType domain.BlockType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocked, blockKey(targetID, blockType))
	return nil
}

func (m *MemoryStore) Schedules() ([]domain.BlockSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BlockSchedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) SaveSchedule(s domain.BlockSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
	return nil
}

func (m *MemoryStore) DeleteSchedule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *MemoryStore) DailyLimits() ([]domain.DailyLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DailyLimit, 0, len(m.limits))
	for _, l := range m.limits {
		out = append(out, l)
	}
	return out, nil
}

func (m *MemoryStore) SaveDailyLimit(l domain.DailyLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[l.TargetID] = l
	return nil
}

func (m *MemoryStore) DeleteDailyLimit(targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limits, targetID)
	return nil
}

func (m *MemoryStore) CurrentSession() (*domain.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	sess := *m.session
	return &sess, nil
}

func (m *MemoryStore) SaveCurrentSession(s *domain.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		m.session = nil
		return nil
	}
	sess := *s
	m.session = &sess
	return nil
}

func (m *MemoryStore) TaskForSession(sessionID string) (*domain.VerificationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[sessionID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemoryStore) SaveTask(t domain.VerificationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.SessionID] = t
	return nil
}

func (m *MemoryStore) History() ([]domain.LockInRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LockInRecord, len(m.history))
	copy(out, m.history)
	return out, nil
}

func (m *MemoryStore) AppendHistory(r domain.LockInRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append([]domain.LockInRecord{r}, m.history...)
	if len(m.history) > historyCap {
		m.history = m.history[:historyCap]
	}
	return nil
}

func (m *MemoryStore) AppendLedgerEvent(e domain.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	m.ledger = append(m.ledger, e)
	return nil
}

func (m *MemoryStore) LedgerEvents(since time.Time) ([]domain.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEvent
	for _, e := range m.ledger {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Balance() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int
	for _, e := range m.ledger {
		sum += e.Amount
	}
	return sum, nil
}

func (m *MemoryStore) UsageBaseline(date string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	baseline := make(map[string]int64)
	for t, ms := range m.baselines[date] {
		baseline[t] = ms
	}
	return baseline, nil
}

func (m *MemoryStore) SaveUsageBaseline(date, targetID string, foregroundMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baselines[date] == nil {
		m.baselines[date] = make(map[string]int64)
	}
	m.baselines[date][targetID] = foregroundMs
	return nil
}

func (m *MemoryStore) ScheduledLockIns() ([]domain.ScheduledLockIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ScheduledLockIn, 0, len(m.lockins))
	for _, l := range m.lockins {
		out = append(out, l)
	}
	return out, nil
}

func (m *MemoryStore) SaveScheduledLockIn(l domain.ScheduledLockIn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockins[l.ID] = l
	return nil
}

func (m *MemoryStore) GetMeta(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key], nil
}

func (m *MemoryStore) SetMeta(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements domain.Store.
var _ domain.Store = (*MemoryStore)(nil)
