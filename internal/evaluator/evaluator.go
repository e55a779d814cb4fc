// Package evaluator runs the recurring tick that keeps the blocked set in
// sync with schedules and daily limits.
package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
	"github.com/eliteGoblin/focusd/coordinator/internal/usecase"
)

// DefaultInterval is the evaluation cadence when none is configured.
const DefaultInterval = 60 * time.Second

const dateLayout = "2006-01-02"

// Config holds evaluator configuration.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the default evaluator configuration.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval}
}

// Evaluator diffs wall-clock time against schedules and daily limits each
// tick and pushes the recomputed blocked set. Tick can be driven by the
// Run loop, a test harness, or an app-foreground event; ticks are
// serialized, and a tick that begins before the previous one completes is
// skipped rather than queued.
type Evaluator struct {
	config   Config
	store    domain.Store
	syncer   *usecase.Syncer
	sessions *usecase.SessionManager
	clock    domain.Clock
	logger   *zap.Logger

	tickMu sync.Mutex
}

// New creates an evaluator.
func New(config Config, store domain.Store, syncer *usecase.Syncer, sessions *usecase.SessionManager, clock domain.Clock, logger *zap.Logger) *Evaluator {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Evaluator{
		config:   config,
		store:    store,
		syncer:   syncer,
		sessions: sessions,
		clock:    clock,
		logger:   logger,
	}
}

// Run starts the evaluation loop. This blocks until context is canceled.
func (e *Evaluator) Run(ctx context.Context) error {
	e.logger.Info("evaluator started", zap.Duration("interval", e.config.Interval))

	// Evaluate immediately on startup.
	e.Tick(ctx)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("evaluator stopping")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass. Re-entrant calls are skipped so two ticks
// can never interleave partial pushes of the blocked set.
func (e *Evaluator) Tick(ctx context.Context) {
	if !e.tickMu.TryLock() {
		e.logger.Debug("previous tick still running, skipping")
		return
	}
	defer e.tickMu.Unlock()

	now := e.clock.Now()

	e.resetDailyLimits(now)
	e.evaluateSchedules(now)
	e.enforceDailyLimits()
	e.startScheduledLockIns(ctx, now)

	if err := e.syncer.Push(ctx); err != nil {
		e.logger.Warn("blocked set push failed", zap.Error(err))
	}
}

// resetDailyLimits zeroes used minutes exactly once per calendar day.
func (e *Evaluator) resetDailyLimits(now time.Time) {
	limits, err := e.store.DailyLimits()
	if err != nil {
		e.logger.Warn("failed to load daily limits", zap.Error(err))
		return
	}

	today := now.Format(dateLayout)
	for _, l := range limits {
		if l.LastResetDate == today {
			continue
		}
		l.UsedMinutes = 0
		l.LastResetDate = today
		if err := e.store.SaveDailyLimit(l); err != nil {
			e.logger.Warn("failed to reset daily limit",
				zap.String("target", l.TargetID), zap.Error(err))
			continue
		}
		// A fresh day also lifts yesterday's limit block.
		if err := e.store.RemoveBlockedApp(l.TargetID, domain.BlockLimit); err != nil {
			e.logger.Warn("failed to lift limit block",
				zap.String("target", l.TargetID), zap.Error(err))
		}
		e.logger.Info("daily limit reset",
			zap.String("target", l.TargetID),
			zap.String("date", today))
	}
}

// evaluateSchedules adds scheduled block entries for every in-window
// schedule and removes scheduled entries whose window closed. Only entries
// with the scheduled block type are touched; blocks held for other reasons
// stay in place.
func (e *Evaluator) evaluateSchedules(now time.Time) {
	schedules, err := e.store.Schedules()
	if err != nil {
		e.logger.Warn("failed to load schedules", zap.Error(err))
		return
	}

	inWindow := make(map[string]bool)
	for _, s := range schedules {
		if !s.Active || !scheduleContains(s, now) {
			continue
		}
		for _, target := range s.TargetIDs {
			inWindow[target] = true
		}
	}

	apps, err := e.store.BlockedApps()
	if err != nil {
		e.logger.Warn("failed to load blocked set", zap.Error(err))
		return
	}

	existing := make(map[string]bool)
	for _, a := range apps {
		if a.Type != domain.BlockScheduled {
			continue
		}
		existing[a.TargetID] = true
		if !inWindow[a.TargetID] {
			if err := e.store.RemoveBlockedApp(a.TargetID, domain.BlockScheduled); err != nil {
				e.logger.Warn("failed to remove scheduled block",
					zap.String("target", a.TargetID), zap.Error(err))
			}
		}
	}

	for target := range inWindow {
		if existing[target] {
			continue
		}
		if err := e.store.SaveBlockedApp(domain.BlockedApp{
			TargetID: target,
			Type:     domain.BlockScheduled,
		}); err != nil {
			e.logger.Warn("failed to add scheduled block",
				zap.String("target", target), zap.Error(err))
		}
	}
}

// enforceDailyLimits blocks targets whose measured usage reached their cap.
func (e *Evaluator) enforceDailyLimits() {
	limits, err := e.store.DailyLimits()
	if err != nil {
		e.logger.Warn("failed to load daily limits", zap.Error(err))
		return
	}

	for _, l := range limits {
		if l.LimitMinutes > 0 && l.UsedMinutes >= l.LimitMinutes {
			if err := e.store.SaveBlockedApp(domain.BlockedApp{
				TargetID:          l.TargetID,
				DisplayName:       l.DisplayName,
				Type:              domain.BlockLimit,
				DailyLimitMinutes: l.LimitMinutes,
				UsedTodayMinutes:  l.UsedMinutes,
			}); err != nil {
				e.logger.Warn("failed to add limit block",
					zap.String("target", l.TargetID), zap.Error(err))
			}
		}
	}
}

// startScheduledLockIns begins any enabled scheduled lock-in whose window
// just opened, at most once per day each. The session manager rejects the
// start if another session is already active.
func (e *Evaluator) startScheduledLockIns(ctx context.Context, now time.Time) {
	lockins, err := e.store.ScheduledLockIns()
	if err != nil {
		e.logger.Warn("failed to load scheduled lock-ins", zap.Error(err))
		return
	}

	today := now.Format(dateLayout)
	for _, l := range lockins {
		if !l.Enabled || !lockInWindowContains(l, now) {
			continue
		}

		markerKey := fmt.Sprintf("lockin_started:%s", l.ID)
		started, err := e.store.GetMeta(markerKey)
		if err == nil && started == today {
			continue
		}

		ok, err := e.sessions.Start(ctx, usecase.SessionDescriptor{
			Type:            l.Type,
			DurationMinutes: l.DurationMinutes,
			BlockedApps:     l.TargetIDs,
		})
		if err != nil {
			e.logger.Warn("failed to start scheduled lock-in",
				zap.String("lockin_id", l.ID), zap.Error(err))
			continue
		}
		if ok {
			if err := e.store.SetMeta(markerKey, today); err != nil {
				e.logger.Warn("failed to mark scheduled lock-in",
					zap.String("lockin_id", l.ID), zap.Error(err))
			}
			e.logger.Info("scheduled lock-in started", zap.String("lockin_id", l.ID))
		}
	}
}

// scheduleContains reports whether now falls inside the schedule's
// [start, end) window on an enabled weekday. Windows where end < start
// span midnight.
func scheduleContains(s domain.BlockSchedule, now time.Time) bool {
	if !containsDay(s.DaysOfWeek, int(now.Weekday())) {
		return false
	}

	start, err := parseClock(s.StartTime)
	if err != nil {
		return false
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Overnight window, e.g. 22:00-06:00.
	return minute >= start || minute < end
}

// lockInWindowContains reports whether now falls inside the lock-in's
// active window on an enabled weekday.
func lockInWindowContains(l domain.ScheduledLockIn, now time.Time) bool {
	if !containsDay(l.DaysOfWeek, int(now.Weekday())) {
		return false
	}
	start, err := parseClock(l.StartTime)
	if err != nil {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute < start+l.DurationMinutes
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock value out of range %q", value)
	}
	return hour*60 + minute, nil
}
