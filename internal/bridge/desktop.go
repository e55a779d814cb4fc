package bridge

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// Desktop implements domain.NativeBridge for development and desktop
// builds. There is no OS enforcement layer to delegate to, so it enforces
// the blocked set itself: Enforce kills running processes whose name
// matches a blocked target that has no unexpired temp-unblock window.
type Desktop struct {
	pm     domain.ProcessManager
	clock  domain.Clock
	logger *zap.Logger

	mu        sync.Mutex
	blocked   []string
	unblocked map[string]time.Time
}

// NewDesktop creates the desktop bridge.
func NewDesktop(pm domain.ProcessManager, clock domain.Clock, logger *zap.Logger) *Desktop {
	return &Desktop{
		pm:        pm,
		clock:     clock,
		logger:    logger,
		unblocked: make(map[string]time.Time),
	}
}

func (b *Desktop) IsAccessibilityServiceEnabled() bool { return true }
func (b *Desktop) OpenAccessibilitySettings()          {}
func (b *Desktop) HasOverlayPermission() bool          { return true }
func (b *Desktop) OpenOverlaySettings()                {}

func (b *Desktop) SetBlockedApps(ids []string) error {
	b.mu.Lock()
	b.blocked = append([]string(nil), ids...)
	b.mu.Unlock()
	return b.Enforce()
}

func (b *Desktop) GetBlockedApps() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.blocked...), nil
}

func (b *Desktop) SetTempUnblock(targetID string, minutes int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unblocked[targetID] = b.clock.Now().Add(time.Duration(minutes) * time.Minute)
	return nil
}

func (b *Desktop) SetTempUnblockWebsite(domainName string, minutes int) error {
	return b.SetTempUnblock(domainName, minutes)
}

func (b *Desktop) IsTempUnblocked(targetID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	expiry, ok := b.unblocked[targetID]
	return ok && b.clock.Now().Before(expiry)
}

func (b *Desktop) LaunchApp(targetID string) bool { return false }
func (b *Desktop) GoToHomeScreen()                {}
func (b *Desktop) WalletBalance() int             { return 0 }

func (b *Desktop) RequestAuthorization() bool { return true }
func (b *Desktop) IsAuthorized() bool         { return true }

func (b *Desktop) ShowAppPicker() (domain.PickerResult, error) {
	return domain.PickerResult{}, nil
}

func (b *Desktop) ApplyBlocking() error { return b.Enforce() }

func (b *Desktop) ClearBlocking() error {
	b.mu.Lock()
	b.blocked = nil
	b.mu.Unlock()
	return nil
}

// Enforce kills processes matching blocked targets. Best effort: a process
// that exits between Find and Kill is not an error.
func (b *Desktop) Enforce() error {
	b.mu.Lock()
	targets := make([]string, 0, len(b.blocked))
	now := b.clock.Now()
	for _, id := range b.blocked {
		if expiry, ok := b.unblocked[id]; ok && now.Before(expiry) {
			continue
		}
		targets = append(targets, id)
	}
	b.mu.Unlock()

	for _, target := range targets {
		pids, err := b.pm.FindByName(target)
		if err != nil {
			b.logger.Warn("failed to find processes",
				zap.String("target", target),
				zap.Error(err))
			continue
		}
		for _, pid := range pids {
			if err := b.pm.Kill(pid); err != nil {
				b.logger.Warn("failed to kill process",
					zap.Int("pid", pid),
					zap.Error(err))
			} else {
				b.logger.Info("killed blocked process",
					zap.String("target", target),
					zap.Int("pid", pid))
			}
		}
	}
	return nil
}

// Ensure Desktop implements domain.NativeBridge.
var _ domain.NativeBridge = (*Desktop)(nil)

// DesktopUsage implements domain.UsageStatsProvider on desktop builds.
// Foreground time is approximated by process uptime since midnight; the
// mobile OS usage-stats API has no desktop equivalent, so this is a
// best-effort stand-in good enough for local testing of the wallet sync.
type DesktopUsage struct {
	pm    domain.ProcessManager
	clock domain.Clock
}

// NewDesktopUsage creates the desktop usage provider.
func NewDesktopUsage(pm domain.ProcessManager, clock domain.Clock) *DesktopUsage {
	return &DesktopUsage{pm: pm, clock: clock}
}

func (u *DesktopUsage) InstalledApps() ([]domain.AppInfo, error) {
	procs, err := u.pm.List()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var apps []domain.AppInfo
	for _, p := range procs {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		apps = append(apps, domain.AppInfo{PackageName: p.Name, AppName: p.Name})
	}
	return apps, nil
}

func (u *DesktopUsage) TodayUsageStats() (domain.UsageStats, error) {
	procs, err := u.pm.List()
	if err != nil {
		return domain.UsageStats{HasPermission: false}, err
	}

	now := u.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	totals := make(map[string]int64)
	for _, p := range procs {
		if p.Name == "" || p.StartedAt.IsZero() {
			continue
		}
		since := p.StartedAt
		if since.Before(midnight) {
			since = midnight
		}
		if up := now.Sub(since); up > 0 {
			totals[p.Name] += up.Milliseconds()
		}
	}

	stats := domain.UsageStats{HasPermission: true}
	for name, ms := range totals {
		stats.Apps = append(stats.Apps, domain.AppUsage{PackageName: name, ForegroundMs: ms})
	}
	return stats, nil
}

// Ensure DesktopUsage implements domain.UsageStatsProvider.
var _ domain.UsageStatsProvider = (*DesktopUsage)(nil)
