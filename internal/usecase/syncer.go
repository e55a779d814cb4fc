package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
)

// Syncer pushes the blocked set to the native bridge. Pushing an unchanged
// set is a cheap no-op: the syncer digests the sorted target list and skips
// the native call when the digest matches the last successful push.
type Syncer struct {
	store  domain.Store
	bridge domain.NativeBridge
	logger *zap.Logger

	mu         sync.Mutex
	lastDigest string
}

// NewSyncer creates a blocked-set syncer.
func NewSyncer(store domain.Store, bridge domain.NativeBridge, logger *zap.Logger) *Syncer {
	return &Syncer{store: store, bridge: bridge, logger: logger}
}

// Push recomputes the blocked set from the store and pushes it to the
// native layer if it changed since the last successful push.
func (s *Syncer) Push(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	apps, err := s.store.BlockedApps()
	if err != nil {
		s.logger.Warn("failed to load blocked set, push skipped", zap.Error(err))
		return err
	}

	targets := distinctTargets(apps)
	digest := digestTargets(targets)

	s.mu.Lock()
	defer s.mu.Unlock()

	if digest == s.lastDigest {
		s.logger.Debug("blocked set unchanged, push skipped",
			zap.Int("targets", len(targets)))
		return nil
	}

	if err := s.bridge.SetBlockedApps(targets); err != nil {
		s.logger.Error("failed to push blocked set", zap.Error(err))
		return err
	}

	s.lastDigest = digest
	s.logger.Info("blocked set pushed", zap.Int("targets", len(targets)))
	return nil
}

// Invalidate forces the next Push to call the native layer even if the set
// is unchanged (e.g. after the native side restarted).
func (s *Syncer) Invalidate() {
	s.mu.Lock()
	s.lastDigest = ""
	s.mu.Unlock()
}

// distinctTargets collapses per-reason entries into the sorted target list
// the native layer understands.
func distinctTargets(apps []domain.BlockedApp) []string {
	seen := make(map[string]bool, len(apps))
	targets := make([]string, 0, len(apps))
	for _, a := range apps {
		if seen[a.TargetID] {
			continue
		}
		seen[a.TargetID] = true
		targets = append(targets, a.TargetID)
	}
	sort.Strings(targets)
	return targets
}

func digestTargets(targets []string) string {
	sum := sha256.Sum256([]byte(strings.Join(targets, "\x00")))
	return hex.EncodeToString(sum[:])
}
