package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// Decision is the user's choice when a blocked target was launched.
type Decision string

const (
	// DecisionSpend debits min(requested, available) and grants a window
	// sized to the minutes actually granted.
	DecisionSpend Decision = "spend"
	// DecisionUrgent debits the full requested amount, allowing a negative
	// balance, and grants the full window.
	DecisionUrgent Decision = "urgent"
	// DecisionEarn grants nothing; the user navigates away to earn time.
	DecisionEarn Decision = "earn"
)

// TargetKind distinguishes app packages from website domains so the grant
// uses the matching temp-unblock primitive.
type TargetKind string

const (
	TargetApp     TargetKind = "app"
	TargetWebsite TargetKind = "website"
)

// GrantResult reports what a launch decision actually unlocked.
type GrantResult struct {
	GrantedMinutes       int
	Launched             bool
	Balance              int
	EffectiveUsedMinutes int
}

// Interceptor handles blocked-app launch reports from the native layer:
// reconcile measured usage into the wallet, apply the user's decision, and
// grant a temporary unblock scoped to the single target. Blocking is never
// globally disabled here.
type Interceptor struct {
	wallet *Wallet
	bridge domain.NativeBridge
	usage  domain.UsageStatsProvider
	logger *zap.Logger
}

// NewInterceptor creates the interception flow handler.
func NewInterceptor(wallet *Wallet, bridge domain.NativeBridge, usage domain.UsageStatsProvider, logger *zap.Logger) *Interceptor {
	return &Interceptor{wallet: wallet, bridge: bridge, usage: usage, logger: logger}
}

// HandleLaunch runs the interception sequence for one blocked-target
// launch. The audit log records granted minutes, not requested.
func (i *Interceptor) HandleLaunch(ctx context.Context, targetID, displayName string, kind TargetKind, requestedMinutes int, decision Decision) (GrantResult, error) {
	if err := ctx.Err(); err != nil {
		return GrantResult{}, err
	}

	// Native balance mirror and usage stats are independent reads; fetch
	// them concurrently.
	var (
		wg            sync.WaitGroup
		nativeBalance int
		stats         domain.UsageStats
		statsErr      error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		nativeBalance = i.bridge.WalletBalance()
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = i.usage.TodayUsageStats()
	}()
	wg.Wait()

	if statsErr != nil {
		i.logger.Warn("usage stats fetch failed", zap.Error(statsErr))
		stats = domain.UsageStats{}
	}

	i.wallet.SyncUsage(stats)

	if ledger := i.wallet.Balance(); nativeBalance != ledger {
		i.logger.Debug("native wallet mirror out of date",
			zap.Int("native", nativeBalance),
			zap.Int("ledger", ledger))
	}

	used := 0
	for _, u := range stats.Apps {
		if u.PackageName == targetID {
			used = int(u.ForegroundMs / 60000)
			break
		}
	}

	result := GrantResult{EffectiveUsedMinutes: used}

	switch decision {
	case DecisionSpend:
		available := i.wallet.Balance()
		granted := requestedMinutes
		if available < granted {
			granted = available
		}
		if granted < 1 {
			i.logger.Info("access denied, insufficient balance",
				zap.String("target", targetID),
				zap.Int("requested", requestedMinutes),
				zap.Int("available", available))
			result.Balance = available
			return result, nil
		}
		if !i.wallet.Spend(targetID, displayName, granted) {
			// A concurrent writer drained the balance between the read
			// and the spend; the ledger stays consistent, nothing is
			// unlocked.
			result.Balance = i.wallet.Balance()
			return result, nil
		}
		result.GrantedMinutes = granted
		result.Launched = i.grant(targetID, kind, granted)

	case DecisionUrgent:
		i.wallet.UrgentSpend(targetID, displayName, requestedMinutes)
		result.GrantedMinutes = requestedMinutes
		result.Launched = i.grant(targetID, kind, requestedMinutes)

	case DecisionEarn:
		i.bridge.GoToHomeScreen()

	default:
		i.logger.Warn("unknown launch decision", zap.String("decision", string(decision)))
	}

	result.Balance = i.wallet.Balance()

	if result.GrantedMinutes > 0 {
		i.logger.Info("temporary access granted",
			zap.String("target", targetID),
			zap.String("decision", string(decision)),
			zap.Int("granted_minutes", result.GrantedMinutes),
			zap.Int("balance", result.Balance))
	}
	return result, nil
}

// grant issues the target-scoped, time-boxed unblock and launches the app.
func (i *Interceptor) grant(targetID string, kind TargetKind, minutes int) bool {
	var err error
	if kind == TargetWebsite {
		err = i.bridge.SetTempUnblockWebsite(targetID, minutes)
	} else {
		err = i.bridge.SetTempUnblock(targetID, minutes)
	}
	if err != nil {
		i.logger.Error("failed to set temporary unblock",
			zap.String("target", targetID),
			zap.Error(err))
		return false
	}
	if kind == TargetWebsite {
		return true
	}
	return i.bridge.LaunchApp(targetID)
}
