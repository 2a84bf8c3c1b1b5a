package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/store"
)

// maxCASAttempts bounds a compare-and-swap loop. Reaching it means the key is
// under sustained write contention far beyond any login pattern.
const maxCASAttempts = 1000

var errStoreContention = errors.New("keyed store: too many concurrent updates")

// LockoutConfig holds configuration for account lockout behavior
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	FailureRetention  time.Duration // how long failures are remembered; 0 keeps them until success
}

// DefaultLockoutConfig locks for 15 minutes after 5 failures
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		FailureRetention:  24 * time.Hour,
	}
}

// LockStatus is a read-only view of an account's lockout state
type LockStatus struct {
	Locked      bool
	Remaining   time.Duration
	FailedCount int
}

// AttemptTracker counts consecutive authentication failures per account and
// applies a temporary lock once the threshold is reached
type AttemptTracker struct {
	store   store.KeyedStore
	clock   clock.Clock
	config  LockoutConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAttemptTracker creates a new AttemptTracker
func NewAttemptTracker(st store.KeyedStore, clk clock.Clock, config LockoutConfig, logger *slog.Logger, m *metrics.Metrics) (*AttemptTracker, error) {
	if config.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("lockout: max failed attempts must be at least 1, got %d", config.MaxFailedAttempts)
	}
	if config.LockoutDuration <= 0 {
		return nil, fmt.Errorf("lockout: duration must be positive, got %s", config.LockoutDuration)
	}
	if config.FailureRetention < 0 {
		return nil, fmt.Errorf("lockout: failure retention cannot be negative, got %s", config.FailureRetention)
	}

	return &AttemptTracker{
		store:   st,
		clock:   clk,
		config:  config,
		logger:  logger,
		metrics: m,
	}, nil
}

// NormalizeAccountKey folds case and whitespace so "Alice@Example.com " and
// "alice@example.com" share one record
func NormalizeAccountKey(accountKey string) string {
	return strings.ToLower(strings.TrimSpace(accountKey))
}

func attemptKey(accountKey string) string {
	return "attempt:" + NormalizeAccountKey(accountKey)
}

// Status reports whether accountKey is currently locked. An elapsed lock
// reads as unlocked; the stored count is reset by the next failure.
func (t *AttemptTracker) Status(ctx context.Context, accountKey string) (LockStatus, error) {
	entry, err := t.store.Get(ctx, attemptKey(accountKey))
	if err != nil {
		return LockStatus{}, fmt.Errorf("read attempt record: %w", err)
	}

	rec, err := decodeAttemptRecord(entry)
	if err != nil {
		return LockStatus{}, err
	}

	now := t.clock.Now()
	status := LockStatus{FailedCount: rec.FailedCount}
	if rec.LockedAt(now) {
		status.Locked = true
		status.Remaining = rec.LockedUntil.Sub(now)
	}
	return status, nil
}

// RecordFailure counts one failed attempt and locks the account when the
// threshold is reached. Failures against an already locked account do not
// extend the lock.
func (t *AttemptTracker) RecordFailure(ctx context.Context, accountKey string) (models.AttemptRecord, error) {
	key := attemptKey(accountKey)

	for i := 0; i < maxCASAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return models.AttemptRecord{}, err
		}

		entry, err := t.store.Get(ctx, key)
		if err != nil {
			return models.AttemptRecord{}, fmt.Errorf("read attempt record: %w", err)
		}
		rec, err := decodeAttemptRecord(entry)
		if err != nil {
			return models.AttemptRecord{}, err
		}

		now := t.clock.Now()
		if rec.LockedAt(now) {
			return rec, nil
		}
		if rec.LockExpiredAt(now) {
			rec = models.AttemptRecord{}
		}

		rec.FailedCount++
		rec.LastFailureAt = &now
		lockedNow := false
		if rec.FailedCount >= t.config.MaxFailedAttempts {
			until := now.Add(t.config.LockoutDuration)
			rec.LockedUntil = &until
			lockedNow = true
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return models.AttemptRecord{}, fmt.Errorf("encode attempt record: %w", err)
		}

		ok, err := t.store.CompareAndSwap(ctx, key, entry.Version, data, t.recordTTL(rec, now))
		if err != nil {
			return models.AttemptRecord{}, fmt.Errorf("write attempt record: %w", err)
		}
		if !ok {
			t.metrics.StoreConflict("attempt")
			continue
		}

		if lockedNow {
			t.metrics.Lockout()
			t.logger.Warn("account locked after repeated failures",
				slog.Int("failed_attempts", rec.FailedCount),
				slog.Duration("lockout_duration", t.config.LockoutDuration))
		}
		return rec, nil
	}

	return models.AttemptRecord{}, errStoreContention
}

// RecordSuccess clears the failure count and any lock
func (t *AttemptTracker) RecordSuccess(ctx context.Context, accountKey string) error {
	if err := t.store.Delete(ctx, attemptKey(accountKey)); err != nil {
		return fmt.Errorf("clear attempt record: %w", err)
	}
	return nil
}

// recordTTL keeps a record for the retention period, and never less than
// its remaining lock
func (t *AttemptTracker) recordTTL(rec models.AttemptRecord, now time.Time) time.Duration {
	if t.config.FailureRetention == 0 {
		return 0
	}
	ttl := t.config.FailureRetention
	if rec.LockedUntil != nil {
		if remaining := rec.LockedUntil.Sub(now); remaining > ttl {
			ttl = remaining
		}
	}
	return ttl
}

func decodeAttemptRecord(entry store.Entry) (models.AttemptRecord, error) {
	var rec models.AttemptRecord
	if !entry.Found() {
		return rec, nil
	}
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return rec, fmt.Errorf("decode attempt record: %w", err)
	}
	return rec, nil
}
