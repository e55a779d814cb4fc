package bridge

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// FamilyControls is the function table bound to the iOS Family Controls
// native module. A nil table or entry degrades to conservative defaults.
type FamilyControls struct {
	RequestAuthorization func() bool
	IsAuthorized         func() bool
	ShowAppPicker        func() (domain.PickerResult, error)
	ApplyBlocking        func(ids []string) error
	ClearBlocking        func() error
}

// IOS implements domain.NativeBridge via Family Controls. The managed
// settings store has no per-target temp unblock, so time-boxed overrides
// are tracked here and excluded from the applied set.
type IOS struct {
	fc     *FamilyControls
	clock  domain.Clock
	logger *zap.Logger

	mu        sync.Mutex
	blocked   []string
	unblocked map[string]time.Time // target -> override expiry
}

// NewIOS creates the iOS bridge. fc may be nil.
func NewIOS(fc *FamilyControls, clock domain.Clock, logger *zap.Logger) *IOS {
	return &IOS{
		fc:        fc,
		clock:     clock,
		logger:    logger,
		unblocked: make(map[string]time.Time),
	}
}

// Accessibility/overlay probes are Android-only.

func (b *IOS) IsAccessibilityServiceEnabled() bool { return false }
func (b *IOS) OpenAccessibilitySettings()          {}
func (b *IOS) HasOverlayPermission() bool          { return false }
func (b *IOS) OpenOverlaySettings()                {}

// SetBlockedApps records the set and reapplies the managed settings with
// any unexpired temp overrides excluded.
func (b *IOS) SetBlockedApps(ids []string) error {
	b.mu.Lock()
	b.blocked = append([]string(nil), ids...)
	b.mu.Unlock()
	return b.reapply()
}

func (b *IOS) GetBlockedApps() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.blocked...), nil
}

func (b *IOS) SetTempUnblock(targetID string, minutes int) error {
	b.mu.Lock()
	b.unblocked[targetID] = b.clock.Now().Add(time.Duration(minutes) * time.Minute)
	b.mu.Unlock()
	return b.reapply()
}

func (b *IOS) SetTempUnblockWebsite(domainName string, minutes int) error {
	return b.SetTempUnblock(domainName, minutes)
}

func (b *IOS) IsTempUnblocked(targetID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	expiry, ok := b.unblocked[targetID]
	return ok && b.clock.Now().Before(expiry)
}

// LaunchApp is not available through Family Controls.
func (b *IOS) LaunchApp(targetID string) bool { return false }

func (b *IOS) GoToHomeScreen() {}

// WalletBalance mirroring is Android-only; the ledger is authoritative.
func (b *IOS) WalletBalance() int { return 0 }

func (b *IOS) RequestAuthorization() bool {
	if b.fc == nil || b.fc.RequestAuthorization == nil {
		return false
	}
	return b.fc.RequestAuthorization()
}

func (b *IOS) IsAuthorized() bool {
	if b.fc == nil || b.fc.IsAuthorized == nil {
		return false
	}
	return b.fc.IsAuthorized()
}

func (b *IOS) ShowAppPicker() (domain.PickerResult, error) {
	if b.fc == nil || b.fc.ShowAppPicker == nil {
		return domain.PickerResult{}, nil
	}
	return b.fc.ShowAppPicker()
}

func (b *IOS) ApplyBlocking() error {
	return b.reapply()
}

func (b *IOS) ClearBlocking() error {
	b.mu.Lock()
	b.blocked = nil
	b.mu.Unlock()
	if b.fc == nil || b.fc.ClearBlocking == nil {
		return nil
	}
	return b.fc.ClearBlocking()
}

// reapply pushes the effective set (blocked minus unexpired overrides).
func (b *IOS) reapply() error {
	b.mu.Lock()
	now := b.clock.Now()
	effective := make([]string, 0, len(b.blocked))
	for _, id := range b.blocked {
		if expiry, ok := b.unblocked[id]; ok && now.Before(expiry) {
			continue
		}
		effective = append(effective, id)
	}
	for id, expiry := range b.unblocked {
		if !now.Before(expiry) {
			delete(b.unblocked, id)
		}
	}
	b.mu.Unlock()

	if b.fc == nil || b.fc.ApplyBlocking == nil {
		b.logger.Warn("family controls unavailable, blocking not applied",
			zap.Int("targets", len(effective)))
		return nil
	}
	return b.fc.ApplyBlocking(effective)
}

// Ensure IOS implements domain.NativeBridge.
var _ domain.NativeBridge = (*IOS)(nil)
