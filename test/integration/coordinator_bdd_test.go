//go:build integration

package integration

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
	"github.com/eliteGoblin/focusd/coordinator/internal/evaluator"
	"github.com/eliteGoblin/focusd/coordinator/internal/infra"
	"github.com/eliteGoblin/focusd/coordinator/internal/usecase"
)

// recordingBridge implements domain.NativeBridge in memory, recording
// every push and override so specs can assert the enforcement surface.
type recordingBridge struct {
	mu       sync.Mutex
	blocked  []string
	unblocks map[string]int
	launched []string
	homeHits int
}

func newRecordingBridge() *recordingBridge {
	return &recordingBridge{unblocks: make(map[string]int)}
}

func (b *recordingBridge) IsAccessibilityServiceEnabled() bool { return true }
func (b *recordingBridge) OpenAccessibilitySettings()          {}
func (b *recordingBridge) HasOverlayPermission() bool          { return true }
func (b *recordingBridge) OpenOverlaySettings()                {}

func (b *recordingBridge) SetBlockedApps(ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked = append([]string(nil), ids...)
	return nil
}

func (b *recordingBridge) GetBlockedApps() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.blocked...), nil
}

func (b *recordingBridge) SetTempUnblock(targetID string, minutes int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unblocks[targetID] = minutes
	return nil
}

func (b *recordingBridge) SetTempUnblockWebsite(domainName string, minutes int) error {
	return b.SetTempUnblock(domainName, minutes)
}

func (b *recordingBridge) IsTempUnblocked(targetID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.unblocks[targetID]
	return ok
}

func (b *recordingBridge) LaunchApp(targetID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launched = append(b.launched, targetID)
	return true
}

func (b *recordingBridge) GoToHomeScreen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.homeHits++
}

func (b *recordingBridge) WalletBalance() int              { return 0 }
func (b *recordingBridge) RequestAuthorization() bool      { return true }
func (b *recordingBridge) IsAuthorized() bool              { return true }
func (b *recordingBridge) ShowAppPicker() (domain.PickerResult, error) {
	return domain.PickerResult{}, nil
}
func (b *recordingBridge) ApplyBlocking() error { return nil }
func (b *recordingBridge) ClearBlocking() error { return nil }

var _ domain.NativeBridge = (*recordingBridge)(nil)

// cannedUsage implements domain.UsageStatsProvider from a fixed report.
type cannedUsage struct {
	stats domain.UsageStats
}

func (u *cannedUsage) InstalledApps() ([]domain.AppInfo, error) { return nil, nil }
func (u *cannedUsage) TodayUsageStats() (domain.UsageStats, error) {
	return u.stats, nil
}

var _ domain.UsageStatsProvider = (*cannedUsage)(nil)

var _ = Describe("Coordinator", func() {
	var (
		tmpDir   string
		key      []byte
		store    *infra.EncryptedStore
		bridge   *recordingBridge
		clock    *infra.FakeClock
		wallet   *usecase.Wallet
		syncer   *usecase.Syncer
		sessions *usecase.SessionManager
		ctx      context.Context
	)

	// 2026-09-02 is a Wednesday.
	morning := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "coordinator-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err = infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())

		bridge = newRecordingBridge()
		clock = infra.NewFakeClock(morning)
		logger := zap.NewNop()
		wallet = usecase.NewWallet(store, clock, logger)
		syncer = usecase.NewSyncer(store, bridge, logger)
		sessions = usecase.NewSessionManager(store, wallet, syncer, clock, logger)
		ctx = context.Background()
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Verified lock-in lifecycle", func() {
		It("blocks during the session and pays out on verified completion", func() {
			started, err := sessions.Start(ctx, usecase.SessionDescriptor{
				Type:            domain.SessionVerified,
				DurationMinutes: 30,
				BlockedApps:     []string{"com.a", "com.b"},
				RequiresTask:    true,
				BeforePhotoRef:  "photos/before.jpg",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(BeTrue())

			// The blocked set reached the enforcement layer.
			Expect(bridge.blocked).To(ConsistOf("com.a", "com.b"))

			// Missing after-photo keeps the session active.
			result, err := sessions.Complete(ctx, "", 30)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.VerificationFailed).To(BeTrue())
			active, err := sessions.Active()
			Expect(err).NotTo(HaveOccurred())
			Expect(active).NotTo(BeNil())

			// A valid after-photo completes it.
			result, err = sessions.Complete(ctx, "photos/after.jpg", 30)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Completed).To(BeTrue())
			Expect(result.FirstOfDay).To(BeTrue())
			Expect(result.PointsEarned).To(Equal(60))

			Expect(wallet.Balance()).To(Equal(30))
			Expect(sessions.Streak()).To(Equal(1))
			Expect(bridge.blocked).To(BeEmpty())

			records, err := store.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(domain.StatusCompleted))
		})

		It("rejects a second start while one session is active", func() {
			started, err := sessions.Start(ctx, usecase.SessionDescriptor{
				Type:            domain.SessionQuick,
				DurationMinutes: 15,
				BlockedApps:     []string{"com.a"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(BeTrue())

			started, err = sessions.Start(ctx, usecase.SessionDescriptor{
				Type:            domain.SessionQuick,
				DurationMinutes: 5,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(BeFalse())
		})

		It("resets the streak on cancellation", func() {
			Expect(store.SetMeta("streak", "7")).To(Succeed())

			_, err := sessions.Start(ctx, usecase.SessionDescriptor{
				Type:            domain.SessionQuick,
				DurationMinutes: 15,
				BlockedApps:     []string{"com.a"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(sessions.Cancel(ctx)).To(Succeed())
			Expect(sessions.Streak()).To(Equal(0))
			Expect(bridge.blocked).To(BeEmpty())

			records, err := store.History()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(domain.StatusCancelled))
		})
	})

	Describe("Wallet persistence", func() {
		It("derives the balance from the ledger across restarts", func() {
			wallet.Earn("focus_session", 45, "verified lock-in")
			Expect(wallet.Spend("com.a", "App A", 10)).To(BeTrue())
			wallet.UrgentSpend("com.a", "App A", 50)
			Expect(wallet.Balance()).To(Equal(-15))

			Expect(store.Close()).To(Succeed())

			reopened, err := infra.NewEncryptedStore(tmpDir, key)
			Expect(err).NotTo(HaveOccurred())
			store = reopened

			rewallet := usecase.NewWallet(store, clock, zap.NewNop())
			Expect(rewallet.Balance()).To(Equal(-15))

			balance, err := store.Balance()
			Expect(err).NotTo(HaveOccurred())
			Expect(balance).To(Equal(-15))
		})
	})

	Describe("Schedule evaluation", func() {
		It("blocks inside the window and releases after, keeping manual blocks", func() {
			Expect(store.SaveSchedule(domain.BlockSchedule{
				ID:         "work",
				Name:       "Work hours",
				TargetIDs:  []string{"com.b"},
				StartTime:  "09:00",
				EndTime:    "17:00",
				DaysOfWeek: []int{1, 2, 3, 4, 5},
				Active:     true,
				CreatedAt:  morning,
			})).To(Succeed())
			Expect(store.SaveBlockedApp(domain.BlockedApp{
				TargetID: "com.a", Type: domain.BlockManual,
			})).To(Succeed())

			ev := evaluator.New(evaluator.DefaultConfig(), store, syncer, sessions, clock, zap.NewNop())

			ev.Tick(ctx)
			Expect(bridge.blocked).To(ConsistOf("com.a", "com.b"))

			clock.Set(time.Date(2026, 9, 2, 18, 0, 0, 0, time.UTC))
			ev.Tick(ctx)
			Expect(bridge.blocked).To(ConsistOf("com.a"))
		})

		It("enforces a reached daily limit until the next day's reset", func() {
			Expect(store.SaveDailyLimit(domain.DailyLimit{
				TargetID:      "com.a",
				LimitMinutes:  30,
				UsedMinutes:   30,
				LastResetDate: "2026-09-02",
			})).To(Succeed())

			ev := evaluator.New(evaluator.DefaultConfig(), store, syncer, sessions, clock, zap.NewNop())

			ev.Tick(ctx)
			Expect(bridge.blocked).To(ConsistOf("com.a"))

			clock.Set(time.Date(2026, 9, 3, 0, 1, 0, 0, time.UTC))
			ev.Tick(ctx)
			Expect(bridge.blocked).To(BeEmpty())

			limits, err := store.DailyLimits()
			Expect(err).NotTo(HaveOccurred())
			Expect(limits[0].UsedMinutes).To(Equal(0))
		})
	})

	Describe("Interception flow", func() {
		It("clamps a spend to the available balance and scopes the unblock", func() {
			wallet.Earn("focus_session", 5, "verified lock-in")
			usage := &cannedUsage{stats: domain.UsageStats{HasPermission: true}}
			interceptor := usecase.NewInterceptor(wallet, bridge, usage, zap.NewNop())

			result, err := interceptor.HandleLaunch(ctx, "com.a", "App A",
				usecase.TargetApp, 10, usecase.DecisionSpend)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.GrantedMinutes).To(Equal(5))
			Expect(result.Launched).To(BeTrue())
			Expect(result.Balance).To(Equal(0))
			Expect(bridge.unblocks).To(HaveKeyWithValue("com.a", 5))
			Expect(bridge.launched).To(ConsistOf("com.a"))
		})

		It("lets an urgent unlock drive the balance negative", func() {
			usage := &cannedUsage{stats: domain.UsageStats{HasPermission: true}}
			interceptor := usecase.NewInterceptor(wallet, bridge, usage, zap.NewNop())

			result, err := interceptor.HandleLaunch(ctx, "com.a", "App A",
				usecase.TargetApp, 20, usecase.DecisionUrgent)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.GrantedMinutes).To(Equal(20))
			Expect(result.Balance).To(Equal(-20))
		})

		It("sends the user home on an earn decision without unlocking anything", func() {
			usage := &cannedUsage{stats: domain.UsageStats{HasPermission: true}}
			interceptor := usecase.NewInterceptor(wallet, bridge, usage, zap.NewNop())

			result, err := interceptor.HandleLaunch(ctx, "com.a", "App A",
				usecase.TargetApp, 10, usecase.DecisionEarn)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.GrantedMinutes).To(Equal(0))
			Expect(bridge.homeHits).To(Equal(1))
			Expect(bridge.unblocks).To(BeEmpty())
		})

		It("deducts measured usage before deciding on the grant", func() {
			wallet.Earn("focus_session", 10, "verified lock-in")
			Expect(store.SaveBlockedApp(domain.BlockedApp{
				TargetID: "com.a", Type: domain.BlockManual,
			})).To(Succeed())

			// Eight minutes of measured foreground time on a controlled target.
			usage := &cannedUsage{stats: domain.UsageStats{
				HasPermission: true,
				Apps:          []domain.AppUsage{{PackageName: "com.a", ForegroundMs: 8 * 60000}},
			}}
			interceptor := usecase.NewInterceptor(wallet, bridge, usage, zap.NewNop())

			result, err := interceptor.HandleLaunch(ctx, "com.a", "App A",
				usecase.TargetApp, 5, usecase.DecisionSpend)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.EffectiveUsedMinutes).To(Equal(8))
			// 10 earned - 8 synced leaves 2 to grant.
			Expect(result.GrantedMinutes).To(Equal(2))
			Expect(result.Balance).To(Equal(0))
		})
	})

	Describe("Scheduled lock-ins", func() {
		It("starts the session once when the window opens", func() {
			Expect(store.SaveScheduledLockIn(domain.ScheduledLockIn{
				ID:              "morning",
				Type:            domain.SessionQuick,
				StartTime:       "10:00",
				DurationMinutes: 25,
				DaysOfWeek:      []int{3},
				TargetIDs:       []string{"com.a"},
				Enabled:         true,
			})).To(Succeed())

			ev := evaluator.New(evaluator.DefaultConfig(), store, syncer, sessions, clock, zap.NewNop())
			ev.Tick(ctx)

			active, err := sessions.Active()
			Expect(err).NotTo(HaveOccurred())
			Expect(active).NotTo(BeNil())
			Expect(active.Type).To(Equal(domain.SessionQuick))
			Expect(bridge.blocked).To(ConsistOf("com.a"))

			// Completing and ticking again inside the window must not restart.
			_, err = sessions.Complete(ctx, "", 0)
			Expect(err).NotTo(HaveOccurred())
			ev.Tick(ctx)
			active, err = sessions.Active()
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeNil())
		})
	})
})
