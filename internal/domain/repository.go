package domain

import "time"

// Store is the coordinator's persisted state. The native enforcement layer
// owns no state of its own; everything it mirrors lives here.
type Store interface {
	// Blocked set, keyed by (target, block type).
	BlockedApps() ([]BlockedApp, error)
	SaveBlockedApp(app BlockedApp) error
	RemoveBlockedApp(targetID string, blockType BlockType) error

	// Schedules.
	Schedules() ([]BlockSchedule, error)
	SaveSchedule(s BlockSchedule) error
	DeleteSchedule(id string) error

	// Daily limits.
	DailyLimits() ([]DailyLimit, error)
	SaveDailyLimit(l DailyLimit) error
	DeleteDailyLimit(targetID string) error

	// The focus-session singleton. Saving nil clears it.
	CurrentSession() (*FocusSession, error)
	SaveCurrentSession(s *FocusSession) error

	// Verification tasks, one per session.
	TaskForSession(sessionID string) (*VerificationTask, error)
	SaveTask(t VerificationTask) error

	// Session history, newest first, capped at 100 records.
	History() ([]LockInRecord, error)
	AppendHistory(r LockInRecord) error

	// Wallet ledger. Balance is the sum of all event amounts.
	AppendLedgerEvent(e LedgerEvent) error
	LedgerEvents(since time.Time) ([]LedgerEvent, error)
	Balance() (int, error)

	// Per-target usage baselines for one calendar day, in foreground ms.
	UsageBaseline(date string) (map[string]int64, error)
	SaveUsageBaseline(date, targetID string, foregroundMs int64) error

	// Scheduled lock-ins.
	ScheduledLockIns() ([]ScheduledLockIn, error)
	SaveScheduledLockIn(s ScheduledLockIn) error

	// Small key/value metadata (streak counter, last completion date).
	GetMeta(key string) (string, error)
	SetMeta(key, value string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// NativeBridge is the one-directional contract with the native enforcement
// layer. The coordinator treats every call as idempotent and never assumes
// the native side retains state the coordinator doesn't also persist.
// Implementations resolve platform branching internally; calls not supported
// on a platform return conservative defaults instead of failing.
type NativeBridge interface {
	// Android permission probes/redirects.
	IsAccessibilityServiceEnabled() bool
	OpenAccessibilitySettings()
	HasOverlayPermission() bool
	OpenOverlaySettings()

	// Enforcement set push/pull.
	SetBlockedApps(ids []string) error
	GetBlockedApps() ([]string, error)

	// Scoped, time-boxed overrides.
	SetTempUnblock(targetID string, minutes int) error
	SetTempUnblockWebsite(domain string, minutes int) error
	IsTempUnblocked(targetID string) bool

	// Enforcement-layer actions after a grant/denial.
	LaunchApp(targetID string) bool
	GoToHomeScreen()

	// Native-cached mirror of the ledger balance (Android). Eventually
	// consistent; never authoritative for writes.
	WalletBalance() int

	// iOS Family Controls.
	RequestAuthorization() bool
	IsAuthorized() bool
	ShowAppPicker() (PickerResult, error)
	ApplyBlocking() error
	ClearBlocking() error
}

// UsageStatsProvider reports installed apps and OS-measured foreground time.
// On Android the OS is the source of truth for real usage.
type UsageStatsProvider interface {
	InstalledApps() ([]AppInfo, error)
	TodayUsageStats() (UsageStats, error)
}

// ProcessManager handles OS process operations for the desktop bridge.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// List returns all running processes with their start times.
	List() ([]ProcessInfo, error)
}

// Clock abstracts wall-clock time so the evaluator and wallet are testable.
type Clock interface {
	Now() time.Time
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}
