package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/store"
)

// sweepTimeout bounds a single pass over the store
const sweepTimeout = 30 * time.Second

// CleanupManager periodically reclaims expired attempt records and rate
// windows from stores that do not expire keys on their own
type CleanupManager struct {
	sweeper  store.Sweeper
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper store.Sweeper, logger *slog.Logger, m *metrics.Metrics, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		logger:   logger,
		metrics:  m,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is done. It blocks;
// run it in its own goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	defer close(cm.doneCh)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes expired entries and reports how many went
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	removed, err := cm.sweeper.Sweep(sweepCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired state", slog.Any("error", err))
		return
	}

	cm.metrics.Swept(removed)
	if removed > 0 {
		cm.logger.Debug("expired state swept", slog.Int("entries_removed", removed))
	}
}

// Stop signals the loop to exit and waits for it. It must follow a call to
// Start; calling it more than once is fine.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
	<-cm.doneCh
}
