package evaluator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
	"github.com/eliteGoblin/focusd/coordinator/internal/infra"
	"github.com/eliteGoblin/focusd/coordinator/internal/usecase"
)

// fakeBridge implements domain.NativeBridge recording blocked-set pushes.
type fakeBridge struct {
	mu       sync.Mutex
	blocked  []string
	setCalls int
}

func (f *fakeBridge) IsAccessibilityServiceEnabled() bool { return true }
func (f *fakeBridge) OpenAccessibilitySettings()          {}
func (f *fakeBridge) HasOverlayPermission() bool          { return true }
func (f *fakeBridge) OpenOverlaySettings()                {}

func (f *fakeBridge) SetBlockedApps(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.blocked = append([]string(nil), ids...)
	return nil
}

func (f *fakeBridge) GetBlockedApps() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.blocked...), nil
}

func (f *fakeBridge) SetTempUnblock(string, int) error        { return nil }
func (f *fakeBridge) SetTempUnblockWebsite(string, int) error { return nil }
func (f *fakeBridge) IsTempUnblocked(string) bool             { return false }
func (f *fakeBridge) LaunchApp(string) bool                   { return false }
func (f *fakeBridge) GoToHomeScreen()                         {}
func (f *fakeBridge) WalletBalance() int                      { return 0 }
func (f *fakeBridge) RequestAuthorization() bool              { return true }
func (f *fakeBridge) IsAuthorized() bool                      { return true }
func (f *fakeBridge) ShowAppPicker() (domain.PickerResult, error) {
	return domain.PickerResult{}, nil
}
func (f *fakeBridge) ApplyBlocking() error { return nil }
func (f *fakeBridge) ClearBlocking() error { return nil }

var _ domain.NativeBridge = (*fakeBridge)(nil)

type fixture struct {
	evaluator *Evaluator
	store     *infra.MemoryStore
	bridge    *fakeBridge
	clock     *infra.FakeClock
}

// 2026-09-02 is a Wednesday.
var wednesdayMorning = time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := infra.NewMemoryStore()
	bridge := &fakeBridge{}
	clock := infra.NewFakeClock(wednesdayMorning)
	logger := zap.NewNop()
	wallet := usecase.NewWallet(store, clock, logger)
	syncer := usecase.NewSyncer(store, bridge, logger)
	sessions := usecase.NewSessionManager(store, wallet, syncer, clock, logger)
	ev := New(DefaultConfig(), store, syncer, sessions, clock, logger)
	return &fixture{evaluator: ev, store: store, bridge: bridge, clock: clock}
}

func blockTypesFor(t *testing.T, store *infra.MemoryStore, target string) []domain.BlockType {
	t.Helper()
	apps, err := store.BlockedApps()
	require.NoError(t, err)
	var types []domain.BlockType
	for _, a := range apps {
		if a.TargetID == target {
			types = append(types, a.Type)
		}
	}
	return types
}

// TestTick_ScheduleWindow: a Mon-Fri 09:00-17:00 schedule blocks its target
// inside the window and releases it after.
func TestTick_ScheduleWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveSchedule(domain.BlockSchedule{
		ID:         "work",
		Name:       "Work hours",
		TargetIDs:  []string{"com.b"},
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: []int{1, 2, 3, 4, 5},
		Active:     true,
		CreatedAt:  wednesdayMorning,
	}))

	f.evaluator.Tick(ctx)
	assert.Equal(t, []domain.BlockType{domain.BlockScheduled}, blockTypesFor(t, f.store, "com.b"))
	assert.Equal(t, []string{"com.b"}, f.bridge.blocked)

	// 18:00 the same day: out of window.
	f.clock.Set(time.Date(2026, 9, 2, 18, 0, 0, 0, time.UTC))
	f.evaluator.Tick(ctx)
	assert.Empty(t, blockTypesFor(t, f.store, "com.b"))
	assert.Empty(t, f.bridge.blocked)
}

func TestTick_ScheduleSkipsDisabledDay(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.SaveSchedule(domain.BlockSchedule{
		ID:         "weekend",
		TargetIDs:  []string{"com.b"},
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: []int{0, 6}, // Sunday + Saturday only
		Active:     true,
	}))

	f.evaluator.Tick(context.Background())
	assert.Empty(t, blockTypesFor(t, f.store, "com.b"))
}

// TestTick_KeepsOtherBlockReasons: closing a schedule window removes only
// the scheduled entry; a manual block on the same target survives.
func TestTick_KeepsOtherBlockReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveBlockedApp(domain.BlockedApp{
		TargetID: "com.b", Type: domain.BlockManual,
	}))
	require.NoError(t, f.store.SaveSchedule(domain.BlockSchedule{
		ID:         "work",
		TargetIDs:  []string{"com.b"},
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: []int{3},
		Active:     true,
	}))

	f.evaluator.Tick(ctx)
	assert.ElementsMatch(t,
		[]domain.BlockType{domain.BlockManual, domain.BlockScheduled},
		blockTypesFor(t, f.store, "com.b"))

	f.clock.Set(time.Date(2026, 9, 2, 18, 0, 0, 0, time.UTC))
	f.evaluator.Tick(ctx)
	assert.Equal(t, []domain.BlockType{domain.BlockManual}, blockTypesFor(t, f.store, "com.b"))
	assert.Equal(t, []string{"com.b"}, f.bridge.blocked, "target stays pushed while manually blocked")
}

// TestTick_DailyLimitResetsOncePerDay: the first tick of a new day zeroes
// used minutes; subsequent ticks the same day leave the counter alone.
func TestTick_DailyLimitResetsOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveDailyLimit(domain.DailyLimit{
		TargetID:      "com.a",
		LimitMinutes:  60,
		UsedMinutes:   50,
		LastResetDate: "2026-09-01", // yesterday
	}))

	f.evaluator.Tick(ctx)

	limits, err := f.store.DailyLimits()
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, 0, limits[0].UsedMinutes)
	assert.Equal(t, "2026-09-02", limits[0].LastResetDate)

	// Usage accrues during the day; a second tick must not reset it.
	limits[0].UsedMinutes = 17
	require.NoError(t, f.store.SaveDailyLimit(limits[0]))

	f.evaluator.Tick(ctx)
	limits, err = f.store.DailyLimits()
	require.NoError(t, err)
	assert.Equal(t, 17, limits[0].UsedMinutes)
}

// TestTick_LimitBlockLifecycle: reaching the daily cap blocks the target
// with the limit reason; the next day's reset lifts it.
func TestTick_LimitBlockLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveDailyLimit(domain.DailyLimit{
		TargetID:      "com.a",
		LimitMinutes:  60,
		UsedMinutes:   60,
		LastResetDate: "2026-09-02",
	}))

	f.evaluator.Tick(ctx)
	assert.Equal(t, []domain.BlockType{domain.BlockLimit}, blockTypesFor(t, f.store, "com.a"))

	f.clock.Set(time.Date(2026, 9, 3, 0, 1, 0, 0, time.UTC))
	f.evaluator.Tick(ctx)
	assert.Empty(t, blockTypesFor(t, f.store, "com.a"))
}

// blockingStore stalls DailyLimits until released, to hold a tick open.
type blockingStore struct {
	domain.Store
	gate  chan struct{}
	calls chan struct{}
}

func (b *blockingStore) DailyLimits() ([]domain.DailyLimit, error) {
	b.calls <- struct{}{}
	<-b.gate
	return b.Store.DailyLimits()
}

// TestTick_SkipsWhileTickInFlight: a tick beginning before the previous
// completes is skipped, not queued.
func TestTick_SkipsWhileTickInFlight(t *testing.T) {
	mem := infra.NewMemoryStore()
	store := &blockingStore{
		Store: mem,
		gate:  make(chan struct{}),
		calls: make(chan struct{}, 10),
	}
	bridge := &fakeBridge{}
	clock := infra.NewFakeClock(wednesdayMorning)
	logger := zap.NewNop()
	wallet := usecase.NewWallet(store, clock, logger)
	syncer := usecase.NewSyncer(store, bridge, logger)
	sessions := usecase.NewSessionManager(store, wallet, syncer, clock, logger)
	ev := New(DefaultConfig(), store, syncer, sessions, clock, logger)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		ev.Tick(ctx)
		close(done)
	}()

	// Wait until the first tick is inside the store call, then fire a
	// second tick: it must return immediately without touching the store.
	<-store.calls
	ev.Tick(ctx)
	assert.Empty(t, store.calls)

	close(store.gate)
	<-done

	// Only the first tick ran.
	assert.Equal(t, 1, bridge.setCalls)
}

// TestTick_StartsScheduledLockIn: an enabled lock-in whose window opened
// starts a session once per day.
func TestTick_StartsScheduledLockIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveScheduledLockIn(domain.ScheduledLockIn{
		ID:              "morning",
		Type:            domain.SessionQuick,
		StartTime:       "10:00",
		DurationMinutes: 30,
		DaysOfWeek:      []int{3},
		TargetIDs:       []string{"com.a"},
		Enabled:         true,
	}))

	f.evaluator.Tick(ctx)

	sess, err := f.store.CurrentSession()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, domain.SessionQuick, sess.Type)

	// Clearing the session and ticking again inside the same window must
	// not restart it.
	require.NoError(t, f.store.SaveCurrentSession(nil))
	f.evaluator.Tick(ctx)
	sess, err = f.store.CurrentSession()
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestScheduleContains_OvernightWindow(t *testing.T) {
	s := domain.BlockSchedule{
		StartTime:  "22:00",
		EndTime:    "06:00",
		DaysOfWeek: []int{0, 1, 2, 3, 4, 5, 6},
	}

	assert.True(t, scheduleContains(s, time.Date(2026, 9, 2, 23, 30, 0, 0, time.UTC)))
	assert.True(t, scheduleContains(s, time.Date(2026, 9, 2, 5, 59, 0, 0, time.UTC)))
	assert.False(t, scheduleContains(s, time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"9am", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseClock(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
