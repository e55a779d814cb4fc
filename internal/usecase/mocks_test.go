package usecase

import (
	"sync"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// mockBridge implements domain.NativeBridge for testing, recording calls.
type mockBridge struct {
	mu sync.Mutex

	blocked        []string
	setCalls       int
	unblocks       map[string]int // target -> minutes
	websiteUnblock map[string]int
	launched       []string
	homeCalls      int
	balance        int
	setErr         error
}

func newMockBridge() *mockBridge {
	return &mockBridge{
		unblocks:       make(map[string]int),
		websiteUnblock: make(map[string]int),
	}
}

func (m *mockBridge) IsAccessibilityServiceEnabled() bool { return true }
func (m *mockBridge) OpenAccessibilitySettings()          {}
func (m *mockBridge) HasOverlayPermission() bool          { return true }
func (m *mockBridge) OpenOverlaySettings()                {}

func (m *mockBridge) SetBlockedApps(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.setCalls++
	m.blocked = append([]string(nil), ids...)
	return nil
}

func (m *mockBridge) GetBlockedApps() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.blocked...), nil
}

func (m *mockBridge) SetTempUnblock(targetID string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unblocks[targetID] = minutes
	return nil
}

func (m *mockBridge) SetTempUnblockWebsite(domainName string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.websiteUnblock[domainName] = minutes
	return nil
}

func (m *mockBridge) IsTempUnblocked(targetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.unblocks[targetID]
	return ok
}

func (m *mockBridge) LaunchApp(targetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launched = append(m.launched, targetID)
	return true
}

func (m *mockBridge) GoToHomeScreen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.homeCalls++
}

func (m *mockBridge) WalletBalance() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

func (m *mockBridge) RequestAuthorization() bool { return true }
func (m *mockBridge) IsAuthorized() bool         { return true }

func (m *mockBridge) ShowAppPicker() (domain.PickerResult, error) {
	return domain.PickerResult{}, nil
}

func (m *mockBridge) ApplyBlocking() error { return nil }
func (m *mockBridge) ClearBlocking() error { return nil }

var _ domain.NativeBridge = (*mockBridge)(nil)

// mockUsage implements domain.UsageStatsProvider with canned stats.
type mockUsage struct {
	stats domain.UsageStats
	err   error
}

func (m *mockUsage) InstalledApps() ([]domain.AppInfo, error) { return nil, nil }

func (m *mockUsage) TodayUsageStats() (domain.UsageStats, error) {
	return m.stats, m.err
}

var _ domain.UsageStatsProvider = (*mockUsage)(nil)
