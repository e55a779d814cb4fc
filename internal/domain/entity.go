// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// BlockType records why a target is in the blocked set. A target may be
// blocked for several independent reasons at once; each reason is its own
// entry so removing one reason never lifts the others.
type BlockType string

const (
	BlockManual    BlockType = "manual"
	BlockScheduled BlockType = "scheduled"
	BlockFocus     BlockType = "focus"
	BlockTask      BlockType = "task"
	BlockLimit     BlockType = "limit"
)

// BlockedApp is one entry in the blocked set: a target (app package or
// website domain) blocked for a single reason.
type BlockedApp struct {
	TargetID          string    `json:"target_id"`
	DisplayName       string    `json:"display_name"`
	Type              BlockType `json:"block_type"`
	DailyLimitMinutes int       `json:"daily_limit_minutes,omitempty"`
	UsedTodayMinutes  int       `json:"used_today_minutes"`
}

// BlockSchedule is a recurring time window during which its targets are
// blocked. Activation is derived by the evaluator each tick, never stored.
type BlockSchedule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TargetIDs  []string  `json:"target_ids"`
	StartTime  string    `json:"start_time"` // "HH:MM" local wall clock
	EndTime    string    `json:"end_time"`
	DaysOfWeek []int     `json:"days_of_week"` // 0 = Sunday .. 6 = Saturday
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// DailyLimit caps a target's daily foreground time. UsedMinutes resets to
// zero exactly once when LastResetDate falls behind today.
type DailyLimit struct {
	TargetID      string `json:"target_id"`
	DisplayName   string `json:"display_name"`
	LimitMinutes  int    `json:"limit_minutes"`
	UsedMinutes   int    `json:"used_minutes"`
	LastResetDate string `json:"last_reset_date"` // "2006-01-02"
}

// SessionType identifies how a lock-in session earns its reward.
type SessionType string

const (
	SessionQuick    SessionType = "quick"
	SessionVerified SessionType = "verified"
	SessionCustom   SessionType = "custom"
	SessionExercise SessionType = "exercise"
)

// FocusSession is the system-wide singleton of an in-progress lock-in.
// At most one instance may be active at any time.
type FocusSession struct {
	ID              string      `json:"id"`
	Type            SessionType `json:"type"`
	StartTime       time.Time   `json:"start_time"`
	DurationMinutes int         `json:"duration_minutes"`
	BlockedApps     []string    `json:"blocked_apps"`
	RequiresTask    bool        `json:"requires_task"`
	BeforePhotoRef  string      `json:"before_photo_ref,omitempty"`
	AfterPhotoRef   string      `json:"after_photo_ref,omitempty"`
	Active          bool        `json:"active"`
}

// SessionStatus is the terminal outcome recorded in session history.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// LockInRecord is an append-only history entry derived from a finished
// FocusSession. History keeps the most recent 100 records.
type LockInRecord struct {
	ID              string        `json:"id"`
	Type            SessionType   `json:"type"`
	DurationMinutes int           `json:"duration_minutes"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Status          SessionStatus `json:"status"`
	PointsEarned    int           `json:"points_earned,omitempty"`
}

// Ledger event sources for wallet mutations the coordinator itself issues.
// Earn events carry a caller-supplied source string (e.g. "photo_task").
const (
	SourceSpend       = "spend"
	SourceUrgentSpend = "urgent_spend"
	SourceUsageSync   = "usage_sync"
)

// LedgerEvent is one row of the append-only wallet ledger. Amount is signed
// minutes; the wallet balance is the running sum of all events.
type LedgerEvent struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Amount    int       `json:"amount"`
	TargetID  string    `json:"target_id,omitempty"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskStatus tracks a verification task through its lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// VerificationTask is the photo-proof gate paired with a FocusSession that
// requires task completion. One task per session.
type VerificationTask struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	BeforePhotoRef string     `json:"before_photo_ref"`
	AfterPhotoRef  string     `json:"after_photo_ref,omitempty"`
	TargetApps     []string   `json:"target_apps"`
	Status         TaskStatus `json:"status"`
}

// ScheduledLockIn is a recurring lock-in the evaluator starts automatically
// when its window opens and no session is already active.
type ScheduledLockIn struct {
	ID              string      `json:"id"`
	Type            SessionType `json:"type"`
	StartTime       string      `json:"start_time"` // "HH:MM"
	DurationMinutes int         `json:"duration_minutes"`
	DaysOfWeek      []int       `json:"days_of_week"`
	TargetIDs       []string    `json:"target_ids"`
	Enabled         bool        `json:"enabled"`
}

// AppInfo describes an installed application reported by the usage layer.
type AppInfo struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name"`
}

// AppUsage is today's cumulative foreground time for one target.
type AppUsage struct {
	PackageName  string `json:"package_name"`
	ForegroundMs int64  `json:"time_in_foreground_ms"`
}

// UsageStats is the usage layer's report for the current day.
type UsageStats struct {
	HasPermission bool       `json:"has_permission"`
	Apps          []AppUsage `json:"apps"`
}

// PickerResult summarizes an iOS Family Controls app-picker selection.
type PickerResult struct {
	AppsCount       int `json:"apps_count"`
	CategoriesCount int `json:"categories_count"`
}

// ProcessInfo describes a running process for the desktop enforcement path.
type ProcessInfo struct {
	PID       int
	Name      string
	StartedAt time.Time
}
