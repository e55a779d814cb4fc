// Package usecase contains application business logic.
package usecase

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

const dateLayout = "2006-01-02"

// Wallet is the earned-time ledger. Every mutation is a ledger append and
// the balance is the fold of all events, so concurrent spends, usage-sync
// deductions, urgent spends and earn credits cannot lose updates.
//
// An optimistic in-memory balance mirrors the fold so a failed persistence
// write does not corrupt the in-flight balance shown to the user; the next
// process start reloads from persisted truth.
type Wallet struct {
	store  domain.Store
	clock  domain.Clock
	logger *zap.Logger

	mu      sync.Mutex
	balance int

	// syncMu serializes the baseline read-deduct-write sequence in
	// SyncUsage so two concurrent syncs over the same OS counters cannot
	// both consume the same usage delta.
	syncMu sync.Mutex
}

// NewWallet creates a wallet seeded from the persisted ledger.
func NewWallet(store domain.Store, clock domain.Clock, logger *zap.Logger) *Wallet {
	w := &Wallet{store: store, clock: clock, logger: logger}

	balance, err := store.Balance()
	if err != nil {
		w.logger.Warn("failed to load wallet balance, starting at zero", zap.Error(err))
		balance = 0
	}
	w.balance = balance
	return w
}

// Balance returns the current available minutes.
func (w *Wallet) Balance() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// Earn credits minutes to the wallet. It never fails: a persistence error
// is retried once and then logged, and the optimistic balance still moves.
func (w *Wallet) Earn(source string, minutes int, note string) {
	if minutes <= 0 {
		return
	}
	w.append(domain.LedgerEvent{
		Source: source,
		Amount: minutes,
		Note:   note,
	})
}

// Spend debits minutes for a target. Returns false without touching the
// balance when minutes exceed the available balance; insufficient funds is
// a normal outcome, not an error.
func (w *Wallet) Spend(targetID, displayName string, minutes int) bool {
	if minutes <= 0 {
		return false
	}

	w.mu.Lock()
	if minutes > w.balance {
		w.mu.Unlock()
		w.logger.Info("spend rejected, insufficient balance",
			zap.String("target", targetID),
			zap.Int("requested", minutes),
			zap.Int("available", w.balance))
		return false
	}
	w.balance -= minutes
	w.mu.Unlock()

	w.persist(domain.LedgerEvent{
		Source:   domain.SourceSpend,
		Amount:   -minutes,
		TargetID: targetID,
		Note:     displayName,
	})

	w.logger.Info("minutes spent",
		zap.String("target", targetID),
		zap.Int("minutes", minutes))
	return true
}

// UrgentSpend unconditionally debits minutes, allowing the balance to go
// negative. It is the explicit, auditable escape hatch and is always logged
// distinctly from ordinary spend.
func (w *Wallet) UrgentSpend(targetID, displayName string, minutes int) {
	if minutes <= 0 {
		return
	}

	w.mu.Lock()
	w.balance -= minutes
	balance := w.balance
	w.mu.Unlock()

	w.persist(domain.LedgerEvent{
		Source:   domain.SourceUrgentSpend,
		Amount:   -minutes,
		TargetID: targetID,
		Note:     displayName,
	})

	w.logger.Warn("urgent access spend",
		zap.String("target", targetID),
		zap.Int("minutes", minutes),
		zap.Int("balance", balance))
}

// SyncUsage reconciles OS-measured foreground time into the wallet. For
// each target under blocking control it deducts the whole-minute delta
// against a persisted per-target per-day baseline, so usage is never
// deducted twice and sub-minute remainders carry to the next sync.
// Returns the total minutes deducted.
func (w *Wallet) SyncUsage(stats domain.UsageStats) int {
	if !stats.HasPermission {
		w.logger.Debug("usage stats unavailable, skipping wallet sync")
		return 0
	}

	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	apps, err := w.store.BlockedApps()
	if err != nil {
		w.logger.Warn("failed to load blocked set for usage sync", zap.Error(err))
		return 0
	}
	controlled := make(map[string]bool, len(apps))
	for _, a := range apps {
		controlled[a.TargetID] = true
	}

	date := w.clock.Now().Format(dateLayout)
	baseline, err := w.store.UsageBaseline(date)
	if err != nil {
		w.logger.Warn("failed to load usage baseline, skipping wallet sync", zap.Error(err))
		return 0
	}

	deducted := 0
	for _, usage := range stats.Apps {
		if !controlled[usage.PackageName] {
			continue
		}

		last := baseline[usage.PackageName]
		delta := usage.ForegroundMs - last
		if delta < 0 {
			// Counter went backwards (device reboot or stats reset).
			// Re-anchor the baseline without deducting.
			w.saveBaseline(date, usage.PackageName, usage.ForegroundMs)
			continue
		}

		minutes := int(delta / 60000)
		if minutes < 1 {
			continue
		}

		w.mu.Lock()
		w.balance -= minutes
		w.mu.Unlock()

		w.persist(domain.LedgerEvent{
			Source:   domain.SourceUsageSync,
			Amount:   -minutes,
			TargetID: usage.PackageName,
		})
		w.saveBaseline(date, usage.PackageName, last+int64(minutes)*60000)
		w.updateLimitUsage(usage.PackageName, int(usage.ForegroundMs/60000), date)
		deducted += minutes
	}

	if deducted > 0 {
		w.logger.Info("usage reconciled into wallet", zap.Int("deducted_minutes", deducted))
	}
	return deducted
}

// TodayEarned sums today's earn events. Display only; spend decisions are
// gated on Balance alone.
func (w *Wallet) TodayEarned() int {
	now := w.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	events, err := w.store.LedgerEvents(midnight)
	if err != nil {
		w.logger.Warn("failed to load ledger events", zap.Error(err))
		return 0
	}

	total := 0
	for _, e := range events {
		if e.Amount > 0 {
			total += e.Amount
		}
	}
	return total
}

// append moves the optimistic balance and persists the event.
func (w *Wallet) append(e domain.LedgerEvent) {
	w.mu.Lock()
	w.balance += e.Amount
	w.mu.Unlock()
	w.persist(e)
}

// persist writes a ledger event, retrying once before giving up. The
// optimistic balance has already been applied by the caller.
func (w *Wallet) persist(e domain.LedgerEvent) {
	e.Timestamp = w.clock.Now()

	err := w.store.AppendLedgerEvent(e)
	if err == nil {
		return
	}
	if retryErr := w.store.AppendLedgerEvent(e); retryErr == nil {
		return
	}
	w.logger.Error("failed to persist ledger event",
		zap.String("source", e.Source),
		zap.Int("amount", e.Amount),
		zap.Error(err))
}

// updateLimitUsage mirrors measured usage into the target's daily limit
// counter so the evaluator can enforce limit blocks.
func (w *Wallet) updateLimitUsage(targetID string, usedMinutes int, date string) {
	limits, err := w.store.DailyLimits()
	if err != nil {
		w.logger.Warn("failed to load daily limits", zap.Error(err))
		return
	}
	for _, l := range limits {
		if l.TargetID != targetID {
			continue
		}
		if l.LastResetDate != date {
			// The evaluator owns the once-per-day reset; don't preempt it.
			return
		}
		if usedMinutes > l.UsedMinutes {
			l.UsedMinutes = usedMinutes
			if err := w.store.SaveDailyLimit(l); err != nil {
				w.logger.Warn("failed to update daily limit usage",
					zap.String("target", targetID), zap.Error(err))
			}
		}
		return
	}
}

func (w *Wallet) saveBaseline(date, targetID string, ms int64) {
	if err := w.store.SaveUsageBaseline(date, targetID, ms); err != nil {
		w.logger.Warn("failed to persist usage baseline",
			zap.String("target", targetID), zap.Error(err))
	}
}

// String reports the balance for status output.
func (w *Wallet) String() string {
	return fmt.Sprintf("%d min", w.Balance())
}
