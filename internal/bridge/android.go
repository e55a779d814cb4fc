// Package bridge implements the native sync boundary. All platform
// branching lives here; the rest of the coordinator sees only
// domain.NativeBridge. Every implementation degrades to conservative
// defaults (false / empty / 0) when the native side is unavailable, so
// coordinator failures trend toward more blocking, never less.
package bridge

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// Transport is the function table bound to the Android native module
// (accessibility service + overlay). A nil table or nil entry means the
// module is not linked on this build; calls then return defaults instead
// of failing.
type Transport struct {
	IsAccessibilityServiceEnabled func() bool
	OpenAccessibilitySettings     func()
	HasOverlayPermission          func() bool
	OpenOverlaySettings           func()
	SetBlockedApps                func(ids []string) error
	GetBlockedApps                func() ([]string, error)
	SetTempUnblock                func(targetID string, minutes int) error
	SetTempUnblockWebsite         func(domain string, minutes int) error
	IsTempUnblocked               func(targetID string) bool
	LaunchApp                     func(targetID string) bool
	GoToHomeScreen                func()
	GetWalletBalance              func() int
}

// Android implements domain.NativeBridge on top of the accessibility
// service / overlay native module.
type Android struct {
	t      *Transport
	logger *zap.Logger
}

// NewAndroid creates the Android bridge. transport may be nil.
func NewAndroid(transport *Transport, logger *zap.Logger) *Android {
	return &Android{t: transport, logger: logger}
}

func (b *Android) IsAccessibilityServiceEnabled() bool {
	if b.t == nil || b.t.IsAccessibilityServiceEnabled == nil {
		return false
	}
	return b.t.IsAccessibilityServiceEnabled()
}

func (b *Android) OpenAccessibilitySettings() {
	if b.t == nil || b.t.OpenAccessibilitySettings == nil {
		return
	}
	b.t.OpenAccessibilitySettings()
}

func (b *Android) HasOverlayPermission() bool {
	if b.t == nil || b.t.HasOverlayPermission == nil {
		return false
	}
	return b.t.HasOverlayPermission()
}

func (b *Android) OpenOverlaySettings() {
	if b.t == nil || b.t.OpenOverlaySettings == nil {
		return
	}
	b.t.OpenOverlaySettings()
}

func (b *Android) SetBlockedApps(ids []string) error {
	if b.t == nil || b.t.SetBlockedApps == nil {
		b.logger.Warn("native module unavailable, blocked set not pushed",
			zap.Int("targets", len(ids)))
		return nil
	}
	return b.t.SetBlockedApps(ids)
}

func (b *Android) GetBlockedApps() ([]string, error) {
	if b.t == nil || b.t.GetBlockedApps == nil {
		return []string{}, nil
	}
	return b.t.GetBlockedApps()
}

func (b *Android) SetTempUnblock(targetID string, minutes int) error {
	if b.t == nil || b.t.SetTempUnblock == nil {
		return nil
	}
	return b.t.SetTempUnblock(targetID, minutes)
}

func (b *Android) SetTempUnblockWebsite(domainName string, minutes int) error {
	if b.t == nil || b.t.SetTempUnblockWebsite == nil {
		return nil
	}
	return b.t.SetTempUnblockWebsite(domainName, minutes)
}

func (b *Android) IsTempUnblocked(targetID string) bool {
	if b.t == nil || b.t.IsTempUnblocked == nil {
		return false
	}
	return b.t.IsTempUnblocked(targetID)
}

func (b *Android) LaunchApp(targetID string) bool {
	if b.t == nil || b.t.LaunchApp == nil {
		return false
	}
	return b.t.LaunchApp(targetID)
}

func (b *Android) GoToHomeScreen() {
	if b.t == nil || b.t.GoToHomeScreen == nil {
		return
	}
	b.t.GoToHomeScreen()
}

func (b *Android) WalletBalance() int {
	if b.t == nil || b.t.GetWalletBalance == nil {
		return 0
	}
	return b.t.GetWalletBalance()
}

// Family Controls is iOS-only; these are conservative no-ops on Android.

func (b *Android) RequestAuthorization() bool { return false }
func (b *Android) IsAuthorized() bool         { return false }

func (b *Android) ShowAppPicker() (domain.PickerResult, error) {
	return domain.PickerResult{}, nil
}

func (b *Android) ApplyBlocking() error { return nil }
func (b *Android) ClearBlocking() error { return nil }

// Ensure Android implements domain.NativeBridge.
var _ domain.NativeBridge = (*Android)(nil)
